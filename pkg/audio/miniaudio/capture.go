package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

var _ audio.Source = (*Capture)(nil)

// Capture is the default microphone as an [audio.Source].
type Capture struct {
	format audio.Format
	device *malgo.Device

	mu      sync.Mutex
	onFrame func([]byte)
}

// NewCapture initialises the default capture device in format. The device is
// not started until [Capture.Start].
func (c *Context) NewCapture(format audio.Format) (*Capture, error) {
	mctx, err := c.malgoContext()
	if err != nil {
		return nil, err
	}

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * format.Channels

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(format.SampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency

	cp := &Capture{format: format}
	cp.device, err = malgo.InitDevice(mctx, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(in) < n {
				return
			}
			cp.mu.Lock()
			fn := cp.onFrame
			cp.mu.Unlock()
			if fn != nil {
				// The device reuses its buffer after the callback returns.
				fn(append([]byte(nil), in[:n]...))
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("miniaudio: init capture device: %w: %w", types.ErrDeviceUnavailable, err)
	}
	return cp, nil
}

// Format implements [audio.Source].
func (cp *Capture) Format() audio.Format { return cp.format }

// Start implements [audio.Source].
func (cp *Capture) Start(onFrame func([]byte)) error {
	cp.mu.Lock()
	cp.onFrame = onFrame
	cp.mu.Unlock()

	if cp.device.IsStarted() {
		return nil
	}
	if err := cp.device.Start(); err != nil {
		cp.mu.Lock()
		cp.onFrame = nil
		cp.mu.Unlock()
		return fmt.Errorf("miniaudio: start capture: %w: %w", types.ErrDeviceUnavailable, err)
	}
	return nil
}

// Stop implements [audio.Source].
func (cp *Capture) Stop() error {
	cp.mu.Lock()
	cp.onFrame = nil
	cp.mu.Unlock()

	if !cp.device.IsStarted() {
		return nil
	}
	if err := cp.device.Stop(); err != nil {
		return fmt.Errorf("miniaudio: stop capture: %w", err)
	}
	return nil
}

// Close releases the device.
func (cp *Capture) Close() error {
	_ = cp.Stop()
	cp.device.Uninit()
	return nil
}

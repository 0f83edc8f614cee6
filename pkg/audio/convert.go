package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes signed 16-bit little-endian PCM by sample rate and
// interleaved channel count.
type Format struct {
	SampleRate int
	Channels   int
}

// TakeFormat is the format takes are encoded in unless configured otherwise.
// Speech recognizers expect 16 kHz mono.
var TakeFormat = Format{SampleRate: 16000, Channels: 1}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// Valid reports whether both fields are positive.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Converter turns device PCM into the Target format. The first mismatch and
// the first misaligned buffer are logged once each. A Converter belongs to a
// single capture stream and must not be shared between goroutines.
type Converter struct {
	Target Format

	warnMismatch sync.Once
	warnAligned  sync.Once
}

// Convert converts pcm from the given source format to c.Target. When the
// formats already match the input slice is returned as is. Buffers that are
// not a whole number of frames are dropped and nil is returned.
//
// Channels are folded first so the resampler only touches the channels that
// survive.
func (c *Converter) Convert(pcm []byte, from Format) []byte {
	frameBytes := 2 * max(from.Channels, 1)
	if len(pcm)%frameBytes != 0 {
		c.warnAligned.Do(func() {
			slog.Warn("audio converter: PCM buffer not frame aligned, dropping",
				"bytes", len(pcm),
				"format", from.String(),
			)
		})
		return nil
	}
	if from == c.Target || !from.Valid() || !c.Target.Valid() {
		return pcm
	}

	c.warnMismatch.Do(func() {
		slog.Warn("audio converter: converting device audio",
			"from", from.String(),
			"to", c.Target.String(),
		)
	})

	samples := decodePCM(pcm)
	channels := from.Channels

	if c.Target.Channels < channels {
		samples = Downmix(samples, channels, c.Target.Channels)
		channels = c.Target.Channels
	}
	if from.SampleRate != c.Target.SampleRate {
		samples = Resample(samples, channels, from.SampleRate, c.Target.SampleRate)
	}
	if c.Target.Channels > channels {
		samples = Upmix(samples, channels, c.Target.Channels)
	}
	return encodePCM(samples)
}

// Downmix folds interleaved samples from src channels down to dst channels.
// dst == 1 averages every source channel; otherwise the first dst channels
// are kept.
func Downmix(samples []int16, src, dst int) []int16 {
	if src <= dst || src <= 0 || dst <= 0 {
		return samples
	}
	frames := len(samples) / src
	out := make([]int16, frames*dst)
	for f := range frames {
		frame := samples[f*src : (f+1)*src]
		if dst == 1 {
			var sum int32
			for _, s := range frame {
				sum += int32(s)
			}
			out[f] = clamp16(sum / int32(src))
			continue
		}
		copy(out[f*dst:(f+1)*dst], frame[:dst])
	}
	return out
}

// Upmix widens interleaved samples from src to dst channels. Mono is copied to
// every output channel; wider sources repeat their last channel.
func Upmix(samples []int16, src, dst int) []int16 {
	if src >= dst || src <= 0 {
		return samples
	}
	frames := len(samples) / src
	out := make([]int16, frames*dst)
	for f := range frames {
		in := samples[f*src : (f+1)*src]
		for ch := range dst {
			out[f*dst+ch] = in[min(ch, src-1)]
		}
	}
	return out
}

// Resample changes the rate of interleaved samples with linear interpolation
// between neighbouring frames. The last frame is held at the tail.
func Resample(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return samples
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]int16, dstFrames*channels)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := float64(samples[idx*channels+ch])
			b := float64(samples[next*channels+ch])
			out[i*channels+ch] = int16(a + (b-a)*frac)
		}
	}
	return out
}

func clamp16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

func decodePCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func encodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCMToInts widens little-endian 16-bit PCM to ints, the sample type used by
// go-audio buffers.
func PCMToInts(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

package whisper

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/types"
)

// takeSamples decodes a WAV take into mono float32 samples at 16 kHz,
// normalised to [-1.0, 1.0].
func takeSamples(data []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: take is not a WAV file", types.ErrService)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read take: %w", types.ErrService, err)
	}

	channels := max(int(dec.NumChans), 1)
	samples := toInt16(buf.Data, int(dec.BitDepth))
	samples = audio.Downmix(samples, channels, 1)
	samples = audio.Resample(samples, 1, int(dec.SampleRate), sampleRate)
	return int16ToFloat32(samples), nil
}

// toInt16 rescales integer samples of the given bit depth to 16 bits.
func toInt16(data []int, bitDepth int) []int16 {
	out := make([]int16, len(data))
	shift := bitDepth - 16
	for i, v := range data {
		switch {
		case bitDepth == 8:
			// 8-bit WAV is unsigned.
			out[i] = int16((v - 128) << 8)
		case shift > 0:
			out[i] = int16(v >> shift)
		default:
			out[i] = int16(v)
		}
	}
	return out
}

// int16ToFloat32 converts 16-bit samples to float32 in [-1.0, 1.0).
func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

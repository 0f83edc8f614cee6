package audio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Decoder turns an encoded reply payload into a playable stream.
type Decoder func(data []byte) (beep.StreamSeekCloser, beep.Format, error)

// DecodeMP3 is the default [Decoder]. Empty or malformed payloads fail with an
// error wrapping [types.ErrDecode].
func DecodeMP3(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if len(data) == 0 {
		return nil, beep.Format{}, fmt.Errorf("audio: decode mp3: %w: empty payload", types.ErrDecode)
	}
	s, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("audio: decode mp3: %w: %w", types.ErrDecode, err)
	}
	return s, format, nil
}

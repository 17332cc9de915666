// Package wave decodes the single RIFF/WAVE container format the pipeline
// accepts and encodes captured PCM back into it. The decoder is strict:
// anything other than mono 16-bit linear PCM at the configured sample rate
// is rejected, the pipeline never resamples.
package wave

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrFormat reports a malformed or unsupported audio container. Wrapped
// errors carry the specific violation.
var ErrFormat = errors.New("unsupported audio format")

const (
	// minHeaderSize is the smallest well-formed container: RIFF header,
	// fmt chunk, and an empty data chunk.
	minHeaderSize = 44

	formatPCM = 1
)

// Clip is a decoded mono audio clip with samples normalized to [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Decode parses a RIFF/WAVE buffer into a Clip. The container must be
// linear PCM, mono, 16-bit little-endian at exactly sampleRate Hz.
func Decode(data []byte, sampleRate int) (Clip, error) {
	if len(data) < minHeaderSize {
		return Clip{}, fmt.Errorf("%w: container too short (%d bytes)", ErrFormat, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("%w: missing RIFF/WAVE markers", ErrFormat)
	}

	var (
		haveFmt     bool
		audioFormat uint16
		channels    uint16
		rate        uint32
		bitDepth    uint16
		pcm         []byte
	)

	// Walk sub-chunks by declared size; unknown chunks are skipped and
	// odd-sized chunks carry a word-alignment padding byte.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if chunkSize < 0 || body+chunkSize > len(data) {
			return Clip{}, fmt.Errorf("%w: chunk %q overruns container", ErrFormat, chunkID)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Clip{}, fmt.Errorf("%w: fmt chunk too short", ErrFormat)
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitDepth = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
		if haveFmt && pcm != nil {
			break
		}
	}

	if !haveFmt {
		return Clip{}, fmt.Errorf("%w: fmt chunk not found", ErrFormat)
	}
	if pcm == nil {
		return Clip{}, fmt.Errorf("%w: data chunk not found", ErrFormat)
	}
	if audioFormat != formatPCM {
		return Clip{}, fmt.Errorf("%w: audio format %d is not linear PCM", ErrFormat, audioFormat)
	}
	if channels != 1 {
		return Clip{}, fmt.Errorf("%w: expected mono, got %d channels", ErrFormat, channels)
	}
	if bitDepth != 16 {
		return Clip{}, fmt.Errorf("%w: expected 16-bit samples, got %d", ErrFormat, bitDepth)
	}
	if int(rate) != sampleRate {
		return Clip{}, fmt.Errorf("%w: expected %d Hz, got %d", ErrFormat, sampleRate, rate)
	}

	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float64(s) / 32768.0
	}

	return Clip{Samples: samples, SampleRate: sampleRate}, nil
}

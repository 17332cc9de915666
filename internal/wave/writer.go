package wave

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WritePCM16 encodes mono 16-bit samples into a WAV file at path.
// Used by recorder backends that deliver raw PCM and by test fixtures.
func WritePCM16(path string, samples []int, sampleRate int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer file.Close()

	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:   samples,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, formatPCM)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// FloatsToPCM16 converts normalized [-1,1] samples to 16-bit integer
// samples, clamping out-of-range values.
func FloatsToPCM16(samples []float64) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := int(s * 32767.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = v
	}
	return out
}

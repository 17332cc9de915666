// Package mfcc converts a decoded audio clip into the fixed-size cepstral
// feature matrix the classifier consumes. The analysis window is always
// exactly one second of audio: longer clips keep their most recent second,
// shorter clips are left-zero-padded.
package mfcc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/loqalabs/loqa-intent/internal/config"
	"github.com/loqalabs/loqa-intent/internal/dsp"
	"github.com/loqalabs/loqa-intent/internal/wave"
)

// ErrShapeMismatch reports a disagreement between a produced feature or
// tensor length and the shape the loaded model declares. It indicates an
// asset or configuration defect, not a transient condition.
var ErrShapeMismatch = errors.New("feature shape mismatch")

// stdFloor keeps the global standard deviation away from zero for
// degenerate (constant) feature matrices.
const stdFloor = 3.1622776601683795e-5 // sqrt(1e-9)

// Matrix is a frames × coeffs feature matrix in row-major order,
// normalized to zero mean and unit variance across the whole matrix.
type Matrix struct {
	Data   []float64
	Frames int
	Coeffs int
}

// Extractor turns clips into feature matrices. The mel filter bank, DCT
// basis and window coefficients are built once and reused for every clip.
type Extractor struct {
	sampleRate  int
	frameLength int
	frameStep   int
	frameCount  int
	coeffCount  int
	fftSize     int
	preEmphasis float64

	window  []float64
	melBank *dsp.MelFilterBank
	dct     *dsp.DctBasis
}

// New builds an Extractor for the given audio parameters and the frame and
// coefficient counts declared by the model's input shape.
func New(cfg config.AudioConfig, frameCount, coeffCount int) (*Extractor, error) {
	if frameCount <= 0 || coeffCount <= 0 {
		return nil, fmt.Errorf("invalid feature shape %dx%d", frameCount, coeffCount)
	}
	if coeffCount > cfg.NumFilters {
		return nil, fmt.Errorf("coefficient count %d exceeds filter count %d", coeffCount, cfg.NumFilters)
	}

	frameLength := cfg.SampleRate * cfg.FrameLengthMS / 1000
	frameStep := cfg.SampleRate * cfg.FrameStepMS / 1000
	if frameLength <= 0 || frameStep <= 0 {
		return nil, fmt.Errorf("invalid framing: length=%d step=%d samples", frameLength, frameStep)
	}
	fftSize := dsp.NextPowerOfTwo(frameLength)

	return &Extractor{
		sampleRate:  cfg.SampleRate,
		frameLength: frameLength,
		frameStep:   frameStep,
		frameCount:  frameCount,
		coeffCount:  coeffCount,
		fftSize:     fftSize,
		preEmphasis: cfg.PreEmphasis,
		window:      dsp.HammingWindow(frameLength),
		melBank:     dsp.NewMelFilterBank(cfg.NumFilters, fftSize, cfg.SampleRate),
		dct:         dsp.NewDctBasis(coeffCount, cfg.NumFilters),
	}, nil
}

// FrameCount returns the number of analysis frames per clip.
func (e *Extractor) FrameCount() int { return e.frameCount }

// CoeffCount returns the number of cepstral coefficients per frame.
func (e *Extractor) CoeffCount() int { return e.coeffCount }

// Extract computes the normalized cepstral feature matrix for a clip.
func (e *Extractor) Extract(clip wave.Clip) (Matrix, error) {
	signal := e.normalizeLength(clip.Samples)
	emphasized := preEmphasize(signal, e.preEmphasis)

	data := make([]float64, 0, e.frameCount*e.coeffCount)
	re := make([]float64, e.fftSize)
	im := make([]float64, e.fftSize)
	power := make([]float64, e.fftSize/2+1)
	logMel := make([]float64, e.melBank.NumFilters())
	coeffs := make([]float64, e.coeffCount)

	for i := 0; i < e.frameCount; i++ {
		start := i * e.frameStep
		// Clamp the final frames so the window never reads past the
		// signal; tail frames overlap irregularly instead.
		if start+e.frameLength > len(emphasized) {
			start = len(emphasized) - e.frameLength
		}

		for j := 0; j < e.frameLength; j++ {
			re[j] = emphasized[start+j] * e.window[j]
		}
		for j := e.frameLength; j < e.fftSize; j++ {
			re[j] = 0
		}
		for j := range im {
			im[j] = 0
		}

		dsp.Transform(re, im, false)
		dsp.PowerSpectrum(re, im, power)
		e.melBank.LogEnergies(power, logMel)
		e.dct.Apply(logMel, coeffs)
		data = append(data, coeffs...)
	}

	if len(data) != e.frameCount*e.coeffCount {
		return Matrix{}, fmt.Errorf("%w: produced %d values, expected %d", ErrShapeMismatch, len(data), e.frameCount*e.coeffCount)
	}

	normalize(data)
	return Matrix{Data: data, Frames: e.frameCount, Coeffs: e.coeffCount}, nil
}

// normalizeLength fixes the analysis window at exactly one second:
// truncate to the most recent samples, or left-zero-pad.
func (e *Extractor) normalizeLength(samples []float64) []float64 {
	n := e.sampleRate
	if len(samples) >= n {
		return samples[len(samples)-n:]
	}
	padded := make([]float64, n)
	copy(padded[n-len(samples):], samples)
	return padded
}

func preEmphasize(x []float64, alpha float64) []float64 {
	y := make([]float64, len(x))
	if len(x) == 0 {
		return y
	}
	y[0] = x[0]
	for n := 1; n < len(x); n++ {
		y[n] = x[n] - alpha*x[n-1]
	}
	return y
}

// normalize subtracts the global mean and divides by the global standard
// deviation across the entire matrix, not per coefficient.
func normalize(data []float64) {
	mean := stat.Mean(data, nil)
	std := stat.PopStdDev(data, nil)
	if std < stdFloor {
		std = stdFloor
	}
	for i := range data {
		data[i] = (data[i] - mean) / std
	}
}

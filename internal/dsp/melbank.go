package dsp

import "math"

// LogFloor is the minimum mel energy before the natural log is taken, so a
// silent frame yields log(1e-10) instead of -Inf.
const LogFloor = 1e-10

// MelFilterBank holds triangular mel-spaced filters over FFT bin indices.
// Filter i ramps linearly up from bin edge i-1 to edge i and back down to
// edge i+1; the filters approximate, but deliberately do not form, an exact
// partition of the spectrum.
type MelFilterBank struct {
	filters [][]float64
	edges   []int
}

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// NewMelFilterBank builds numFilters triangular filters for the given FFT
// size and sample rate, spanning 0 Hz to Nyquist.
func NewMelFilterBank(numFilters, fftSize, sampleRate int) *MelFilterBank {
	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sampleRate) / 2.0)

	melPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*melStep
	}

	edges := make([]int, len(melPoints))
	for i, mel := range melPoints {
		hz := melToHz(mel)
		bin := int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate) + 0.5))
		if bin > fftSize/2 {
			bin = fftSize / 2
		}
		edges[i] = bin
	}

	filters := make([][]float64, numFilters)
	for m := 1; m <= numFilters; m++ {
		filter := make([]float64, fftSize/2+1)
		left, center, right := edges[m-1], edges[m], edges[m+1]
		for k := left; k < center && k < len(filter); k++ {
			if center != left {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k < right && k < len(filter); k++ {
			if right != center {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}
		filters[m-1] = filter
	}

	return &MelFilterBank{filters: filters, edges: edges}
}

// NumFilters returns the filter count.
func (fb *MelFilterBank) NumFilters() int {
	return len(fb.filters)
}

// LogEnergies applies every filter to the power spectrum and fills out with
// the natural log of each weighted sum, floored at LogFloor. out must hold
// NumFilters values.
func (fb *MelFilterBank) LogEnergies(powerSpectrum []float64, out []float64) {
	for i, filter := range fb.filters {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		if sum < LogFloor {
			sum = LogFloor
		}
		out[i] = math.Log(sum)
	}
}

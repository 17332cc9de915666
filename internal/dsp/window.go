package dsp

import "math"

// HammingWindow returns the symmetric Hamming window coefficients for the
// given frame size.
func HammingWindow(size int) []float64 {
	coeffs := make([]float64, size)
	if size == 1 {
		coeffs[0] = 1
		return coeffs
	}
	denom := float64(size - 1)
	for i := range coeffs {
		coeffs[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/denom)
	}
	return coeffs
}

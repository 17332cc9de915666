// Package dsp holds the signal-processing primitives behind the feature
// extractor: an in-place radix-2 FFT, the Hamming window, the mel filter
// bank and the DCT-II basis. Everything here is allocation-light and built
// once per pipeline instance.
package dsp

import "math"

// Transform runs an iterative in-place Cooley-Tukey FFT over the real and
// imaginary buffers. Both slices must have the same power-of-two length;
// violating that is a caller bug and panics rather than returning an error.
// When inverse is true the twiddle sign flips and the result is scaled by
// 1/n.
func Transform(re, im []float64, inverse bool) {
	n := len(re)
	if n != len(im) {
		panic("dsp: real and imaginary buffers differ in length")
	}
	if n == 0 || n&(n-1) != 0 {
		panic("dsp: transform length must be a power of two")
	}
	if n == 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	// Butterfly combination for stage sizes 2, 4, 8, ..., n.
	for length := 2; length <= n; length <<= 1 {
		angle := 2 * math.Pi / float64(length)
		if !inverse {
			angle = -angle
		}
		wRe := math.Cos(angle)
		wIm := math.Sin(angle)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			half := length / 2
			for k := 0; k < half; k++ {
				evenIdx := start + k
				oddIdx := start + k + half
				oddRe := re[oddIdx]*curRe - im[oddIdx]*curIm
				oddIm := re[oddIdx]*curIm + im[oddIdx]*curRe
				re[oddIdx] = re[evenIdx] - oddRe
				im[oddIdx] = im[evenIdx] - oddIm
				re[evenIdx] += oddRe
				im[evenIdx] += oddIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}

	if inverse {
		scale := 1.0 / float64(n)
		for i := range re {
			re[i] *= scale
			im[i] *= scale
		}
	}
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// PowerSpectrum fills out with re²+im² for bins 0..len(re)/2. out must hold
// len(re)/2+1 values.
func PowerSpectrum(re, im, out []float64) {
	half := len(re) / 2
	for i := 0; i <= half; i++ {
		out[i] = re[i]*re[i] + im[i]*im[i]
	}
}

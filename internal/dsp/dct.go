package dsp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DctBasis is a numCoefficients × numFilters DCT-II matrix in the
// orthonormal convention: the first row carries an extra 1/√2 factor.
// Built once and applied per frame as a matrix-vector product.
type DctBasis struct {
	basis *mat.Dense
	rows  int
	cols  int
}

// NewDctBasis builds the cosine basis mapping numFilters log-mel energies
// to numCoefficients cepstral coefficients.
func NewDctBasis(numCoefficients, numFilters int) *DctBasis {
	basis := mat.NewDense(numCoefficients, numFilters, nil)
	scale := math.Sqrt(2.0 / float64(numFilters))
	for k := 0; k < numCoefficients; k++ {
		rowScale := scale
		if k == 0 {
			rowScale = scale / math.Sqrt2
		}
		for n := 0; n < numFilters; n++ {
			basis.Set(k, n, rowScale*math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numFilters)))
		}
	}
	return &DctBasis{basis: basis, rows: numCoefficients, cols: numFilters}
}

// NumCoefficients returns the number of output coefficients per frame.
func (d *DctBasis) NumCoefficients() int {
	return d.rows
}

// Apply computes out = basis · logMel. logMel must hold numFilters values
// and out numCoefficients values.
func (d *DctBasis) Apply(logMel, out []float64) {
	in := mat.NewVecDense(d.cols, logMel)
	result := mat.NewVecDense(d.rows, out)
	result.MulVec(d.basis, in)
}

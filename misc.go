// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.21
//

package radiolocate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

// CovarianceAccuracy returns the standard accuracy of a position covariance,
// the square root of its largest eigenvalue. NaN when the covariance is nil
// or not decomposable.
func CovarianceAccuracy(cov *mat.SymDense) float64 {
	if cov == nil {
		return math.NaN()
	}
	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return math.NaN()
	}
	vals := eig.Values(nil)
	max := 0.0
	for _, v := range vals {
		if v > max {
			max = v
		}
	}
	return math.Sqrt(max)
}

// cloneSym returns a copy of a symmetric matrix, nil for nil.
func cloneSym(m *mat.SymDense) *mat.SymDense {
	if m == nil {
		return nil
	}
	n := m.SymmetricDim()
	c := mat.NewSymDense(n, nil)
	c.CopySym(m)
	return c
}

// symFromDense symmetrizes a square dense matrix into a SymDense.
func symFromDense(d *mat.Dense) *mat.SymDense {
	r, c := d.Dims()
	if r != c {
		return nil
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return s
}

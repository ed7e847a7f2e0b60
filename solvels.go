// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.22
//

package radiolocate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve the observation equation using weighted least squares
// - x = (G^t W G)^-1 G^t W b
// - Return the error covariance matrix (G^t W G)^-1 as cov
//
// w holds one weight per equation; nil means unit weights.
func SolveLS(G mat.Matrix, b mat.Vector, w []float64) (x *mat.VecDense, cov *mat.Dense, err error) {

	n, p := G.Dims()
	if b.Len() != n {
		return nil, nil, fmt.Errorf("invalid system size. G(%d x %d), b(%d x 1)", n, p, b.Len())
	}
	if w != nil && len(w) != n {
		return nil, nil, fmt.Errorf("invalid weight count. G(%d x %d), w(%d)", n, p, len(w))
	}
	if n < p {
		return nil, nil, fmt.Errorf("underdetermined system: %d equations, %d unknowns", n, p)
	}

	// W G and W b
	WG := mat.NewDense(n, p, nil)
	Wb := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		wi := 1.0
		if w != nil {
			wi = w[i]
			if wi < minWeight {
				wi = minWeight
			}
		}
		for j := 0; j < p; j++ {
			WG.Set(i, j, wi*G.At(i, j))
		}
		Wb.SetVec(i, wi*b.AtVec(i))
	}

	// A (G^t W G)
	var A mat.Dense
	A.Mul(G.T(), WG)

	// g (G^t W b)
	var g mat.VecDense
	g.MulVec(G.T(), Wb)

	// Solve for x (x = A^-1 g)
	x = mat.NewVecDense(p, nil)
	if err = x.SolveVec(&A, &g); err != nil {
		return nil, nil, err
	}

	// Set (G^t W G)^-1 as the covariance matrix
	cov = mat.NewDense(p, p, nil)
	if err = cov.Inverse(&A); err != nil {
		return nil, nil, err
	}

	return x, cov, nil
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.23
//

package radiolocate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Implements the linear multilateration solve. The nonlinear distance
// equations ||x - p_i|| = r_i are linearized against a reference anchor:
// subtracting the reference equation from equation i gives
//
//	2 (p_i - p_0) . x = r_0^2 - r_i^2 + |p_i|^2 - |p_0|^2
//
// which is solved by weighted least squares (inhomogeneous formulation) or
// as the null space of the homogeneous system via SVD.

// solveLinearTrilateration estimates a position from anchors and distances.
// Needs at least dims+1 anchors. w holds one weight per anchor (nil for
// unit weights); the reference anchor's weight is not used.
func solveLinearTrilateration(positions []Point, distances, w []float64, homogeneous bool) (Point, error) {

	n := len(positions)
	if n == 0 {
		return nil, fmt.Errorf("no anchors")
	}
	dims := positions[0].Dims()
	if n < dims+1 {
		return nil, fmt.Errorf("not enough anchors: %d < %d", n, dims+1)
	}
	if len(distances) != n {
		return nil, fmt.Errorf("anchor/distance count mismatch: %d != %d", n, len(distances))
	}

	// Degenerate if any two anchors coincide
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if positions[i].DistanceTo(positions[j]) < minSampleDistance {
				return nil, fmt.Errorf("coincident anchors %d and %d", i, j)
			}
		}
	}

	p0 := positions[0]
	r0sq := SQ(distances[0])
	n0sq := normSq(p0)

	if homogeneous {
		return solveHomogeneous(positions, distances, p0, r0sq, n0sq, dims)
	}

	rows := n - 1
	G := mat.NewDense(rows, dims, nil)
	b := mat.NewVecDense(rows, nil)
	var rw []float64
	if w != nil {
		rw = make([]float64, rows)
	}
	for i := 1; i < n; i++ {
		pi := positions[i]
		for j := 0; j < dims; j++ {
			G.Set(i-1, j, 2*(pi[j]-p0[j]))
		}
		b.SetVec(i-1, r0sq-SQ(distances[i])+normSq(pi)-n0sq)
		if rw != nil {
			rw[i-1] = w[i]
		}
	}

	x, _, err := SolveLS(G, b, rw)
	if err != nil {
		return nil, fmt.Errorf("linear trilateration solve failed: %w", err)
	}

	pos := make(Point, dims)
	for j := 0; j < dims; j++ {
		pos[j] = x.AtVec(j)
	}
	return pos, nil
}

// solveHomogeneous solves the same linearized system with the position in
// homogeneous coordinates (x, s), taking the right singular vector of the
// smallest singular value.
func solveHomogeneous(positions []Point, distances []float64, p0 Point, r0sq, n0sq float64, dims int) (Point, error) {

	rows := len(positions) - 1
	A := mat.NewDense(rows, dims+1, nil)
	for i := 1; i < len(positions); i++ {
		pi := positions[i]
		for j := 0; j < dims; j++ {
			A.Set(i-1, j, 2*(pi[j]-p0[j]))
		}
		A.Set(i-1, dims, -(r0sq - SQ(distances[i]) + normSq(pi) - n0sq))
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return nil, fmt.Errorf("SVD factorization failed")
	}
	var V mat.Dense
	svd.VTo(&V)
	_, c := V.Dims()

	// Null-space direction: column of V for the smallest singular value
	s := V.At(dims, c-1)
	if math.Abs(s) < 1e-12 {
		return nil, fmt.Errorf("homogeneous solution at infinity")
	}
	pos := make(Point, dims)
	for j := 0; j < dims; j++ {
		pos[j] = V.At(j, c-1) / s
	}
	return pos, nil
}

func normSq(p Point) float64 {
	s := 0.0
	for _, v := range p {
		s += SQ(v)
	}
	return s
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.28
//

package radiolocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// exactDistances returns the noise-free distances from src to each anchor.
func exactDistances(src Point, anchors []Point) []float64 {
	d := make([]float64, len(anchors))
	for i, p := range anchors {
		d[i] = src.DistanceTo(p)
	}
	return d
}

func TestSolveLS(t *testing.T) {
	// Overdetermined consistent system: y = 2x + 1 at x = 0, 1, 2
	G := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 1,
		1, 2,
	})
	b := mat.NewVecDense(3, []float64{1, 3, 5})

	x, cov, err := SolveLS(G, b, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x.AtVec(0), 1e-9)
	assert.InDelta(t, 2.0, x.AtVec(1), 1e-9)
	require.NotNil(t, cov)

	// Weights leave a consistent system unchanged
	x2, _, err := SolveLS(G, b, []float64{1, 10, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, x.AtVec(0), x2.AtVec(0), 1e-9)
	assert.InDelta(t, x.AtVec(1), x2.AtVec(1), 1e-9)

	// Size mismatches
	_, _, err = SolveLS(G, mat.NewVecDense(2, nil), nil)
	assert.Error(t, err)
	_, _, err = SolveLS(G, b, []float64{1, 2})
	assert.Error(t, err)
	_, _, err = SolveLS(mat.NewDense(1, 2, []float64{1, 1}), mat.NewVecDense(1, []float64{1}), nil)
	assert.Error(t, err)
}

func TestLinearTrilateration2D(t *testing.T) {
	src := NewPoint2D(3.2, -1.7)
	anchors := []Point{
		NewPoint2D(0, 0),
		NewPoint2D(10, 0),
		NewPoint2D(0, 10),
		NewPoint2D(10, 10),
	}
	dists := exactDistances(src, anchors)

	for _, homogeneous := range []bool{false, true} {
		pos, err := solveLinearTrilateration(anchors, dists, nil, homogeneous)
		require.NoError(t, err)
		assert.InDelta(t, src[0], pos[0], 1e-6, "homogeneous=%v", homogeneous)
		assert.InDelta(t, src[1], pos[1], 1e-6, "homogeneous=%v", homogeneous)
	}
}

func TestLinearTrilateration3D(t *testing.T) {
	src := NewPoint3D(1.5, 2.5, -0.5)
	anchors := []Point{
		NewPoint3D(0, 0, 0),
		NewPoint3D(10, 0, 0),
		NewPoint3D(0, 10, 0),
		NewPoint3D(0, 0, 10),
		NewPoint3D(10, 10, 10),
	}
	dists := exactDistances(src, anchors)

	for _, homogeneous := range []bool{false, true} {
		pos, err := solveLinearTrilateration(anchors, dists, nil, homogeneous)
		require.NoError(t, err)
		for j := 0; j < 3; j++ {
			assert.InDelta(t, src[j], pos[j], 1e-6, "homogeneous=%v axis=%d", homogeneous, j)
		}
	}
}

func TestLinearTrilaterationMinimalSet(t *testing.T) {
	// Exactly dims+1 anchors
	src := NewPoint2D(2, 3)
	anchors := []Point{
		NewPoint2D(0, 0),
		NewPoint2D(8, 1),
		NewPoint2D(3, 9),
	}
	dists := exactDistances(src, anchors)

	for _, homogeneous := range []bool{false, true} {
		pos, err := solveLinearTrilateration(anchors, dists, nil, homogeneous)
		require.NoError(t, err)
		assert.InDelta(t, src[0], pos[0], 1e-6)
		assert.InDelta(t, src[1], pos[1], 1e-6)
	}
}

func TestLinearTrilaterationWeighted(t *testing.T) {
	src := NewPoint2D(-4, 6)
	anchors := []Point{
		NewPoint2D(0, 0),
		NewPoint2D(12, 0),
		NewPoint2D(0, 12),
		NewPoint2D(12, 12),
		NewPoint2D(6, -3),
	}
	dists := exactDistances(src, anchors)
	w := []float64{1, 4, 0.25, 2, 1}

	pos, err := solveLinearTrilateration(anchors, dists, w, false)
	require.NoError(t, err)
	assert.InDelta(t, src[0], pos[0], 1e-6)
	assert.InDelta(t, src[1], pos[1], 1e-6)
}

func TestLinearTrilaterationDegenerate(t *testing.T) {
	// Not enough anchors
	anchors := []Point{NewPoint2D(0, 0), NewPoint2D(1, 0)}
	_, err := solveLinearTrilateration(anchors, []float64{1, 1}, nil, false)
	assert.Error(t, err)

	// Coincident anchors
	anchors = []Point{NewPoint2D(0, 0), NewPoint2D(0, 0), NewPoint2D(1, 1)}
	_, err = solveLinearTrilateration(anchors, []float64{1, 1, 1}, nil, false)
	assert.Error(t, err)

	// Count mismatch
	anchors = []Point{NewPoint2D(0, 0), NewPoint2D(1, 0), NewPoint2D(0, 1)}
	_, err = solveLinearTrilateration(anchors, []float64{1, 1}, nil, false)
	assert.Error(t, err)

	_, err = solveLinearTrilateration(nil, nil, nil, false)
	assert.Error(t, err)
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.28
//

package radiolocate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestPointDistance(t *testing.T) {
	p := NewPoint2D(0, 0)
	q := NewPoint2D(3, 4)
	assert.InDelta(t, 5.0, p.DistanceTo(q), 1e-12)
	assert.InDelta(t, 5.0, q.DistanceTo(p), 1e-12)

	a := NewPoint3D(1, 2, 3)
	b := NewPoint3D(1, 2, 3)
	assert.Equal(t, 0.0, a.DistanceTo(b))
	assert.Equal(t, 3, a.Dims())
}

func TestPointClone(t *testing.T) {
	p := NewPoint2D(1, 2)
	q := p.Clone()
	q[0] = 99
	assert.Equal(t, 1.0, p[0])
}

func TestPointString(t *testing.T) {
	assert.Equal(t, "(1.0000, -2.5000)", NewPoint2D(1, -2.5).String())
}

func TestPowerConversions(t *testing.T) {
	assert.InDelta(t, 1.0, DBmToPower(0), 1e-12)
	assert.InDelta(t, 0.001, DBmToPower(-30), 1e-15)
	assert.InDelta(t, -30.0, PowerToDBm(0.001), 1e-12)

	// Round trip
	for _, dbm := range []float64{-80, -42.5, -12, 0, 17} {
		assert.InDelta(t, dbm, PowerToDBm(DBmToPower(dbm)), 1e-9)
	}
}

func TestCovarianceAccuracy(t *testing.T) {
	assert.True(t, math.IsNaN(CovarianceAccuracy(nil)))

	// Diagonal covariance: accuracy is the largest standard deviation
	cov := mat.NewSymDense(2, []float64{4, 0, 0, 1})
	assert.InDelta(t, 2.0, CovarianceAccuracy(cov), 1e-9)
}

func TestSymFromDense(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{1, 2, 4, 3})
	s := symFromDense(d)
	assert.InDelta(t, 3.0, s.At(0, 1), 1e-12)
	assert.InDelta(t, 3.0, s.At(1, 0), 1e-12)

	assert.Nil(t, symFromDense(mat.NewDense(2, 3, nil)))
}

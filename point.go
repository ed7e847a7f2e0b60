// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.21
//

package radiolocate

import (
	"fmt"
	"math"
	"strings"
)

//-------------------------------------------------------------------
// Point
//-------------------------------------------------------------------

// Point is a 2D or 3D position in meters.
type Point []float64

func NewPoint2D(x, y float64) Point {
	return Point{x, y}
}

func NewPoint3D(x, y, z float64) Point {
	return Point{x, y, z}
}

// Dims returns the number of dimensions.
func (p Point) Dims() int {
	return len(p)
}

// DistanceTo returns the Euclidean distance to q.
func (p Point) DistanceTo(q Point) float64 {
	s := 0.0
	for i := range p {
		s += SQ(p[i] - q[i])
	}
	return math.Sqrt(s)
}

func (p Point) Clone() Point {
	q := make(Point, len(p))
	copy(q, p)
	return q
}

func (p Point) String() string {
	c := make([]string, len(p))
	for i, v := range p {
		c[i] = fmt.Sprintf("%.4f", v)
	}
	return "(" + strings.Join(c, ", ") + ")"
}

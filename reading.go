// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.22
//

package radiolocate

import (
	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// Reading
//-------------------------------------------------------------------

// Reading is one measurement taken by the receiver at a known position:
// a ranging distance to the source, an RSSI sample, or both. Readings are
// immutable after construction; the With* methods return modified copies.
type Reading struct {
	source         RadioSource
	position       Point
	distance       float64
	hasDistance    bool
	rssi           float64
	hasRSSI        bool
	distanceStdDev float64 // 0 when unknown
	rssiStdDev     float64 // 0 when unknown
	positionCov    *mat.SymDense
}

// NewRangingReading creates a reading carrying only a ranging distance [m].
func NewRangingReading(source RadioSource, position Point, distance float64) (Reading, error) {
	if err := checkReadingArgs(source, position); err != nil {
		return Reading{}, err
	}
	if distance < 0 {
		return Reading{}, argErrorf("negative distance: %f", distance)
	}
	return Reading{
		source:      source,
		position:    position.Clone(),
		distance:    distance,
		hasDistance: true,
	}, nil
}

// NewRssiReading creates a reading carrying only an RSSI sample [dBm].
func NewRssiReading(source RadioSource, position Point, rssi float64) (Reading, error) {
	if err := checkReadingArgs(source, position); err != nil {
		return Reading{}, err
	}
	return Reading{
		source:   source,
		position: position.Clone(),
		rssi:     rssi,
		hasRSSI:  true,
	}, nil
}

// NewRangingAndRssiReading creates a reading carrying both a ranging
// distance [m] and an RSSI sample [dBm].
func NewRangingAndRssiReading(source RadioSource, position Point, distance, rssi float64) (Reading, error) {
	if err := checkReadingArgs(source, position); err != nil {
		return Reading{}, err
	}
	if distance < 0 {
		return Reading{}, argErrorf("negative distance: %f", distance)
	}
	return Reading{
		source:      source,
		position:    position.Clone(),
		distance:    distance,
		hasDistance: true,
		rssi:        rssi,
		hasRSSI:     true,
	}, nil
}

func checkReadingArgs(source RadioSource, position Point) error {
	if source == nil {
		return argErrorf("nil radio source")
	}
	if d := position.Dims(); d != 2 && d != 3 {
		return argErrorf("position must be 2D or 3D, got %dD", d)
	}
	return nil
}

// WithStandardDeviations returns a copy with measurement standard deviations
// attached. Pass 0 to leave a deviation unknown.
func (r Reading) WithStandardDeviations(distanceStdDev, rssiStdDev float64) (Reading, error) {
	if distanceStdDev < 0 || rssiStdDev < 0 {
		return Reading{}, argErrorf("negative standard deviation")
	}
	r.distanceStdDev = distanceStdDev
	r.rssiStdDev = rssiStdDev
	return r, nil
}

// WithPositionCovariance returns a copy with the receiver position
// covariance attached. The matrix is copied and must be positive
// semi-definite.
func (r Reading) WithPositionCovariance(cov *mat.SymDense) (Reading, error) {
	if cov == nil {
		r.positionCov = nil
		return r, nil
	}
	if cov.SymmetricDim() != r.position.Dims() {
		return Reading{}, argErrorf("position covariance is %dx%d for a %dD position",
			cov.SymmetricDim(), cov.SymmetricDim(), r.position.Dims())
	}
	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return Reading{}, argErrorf("position covariance is not decomposable")
	}
	for _, v := range eig.Values(nil) {
		if v < -1e-9 {
			return Reading{}, argErrorf("position covariance is not positive semi-definite")
		}
	}
	r.positionCov = cloneSym(cov)
	return r, nil
}

func (r Reading) Source() RadioSource {
	return r.source
}

// Position returns the receiver position at measurement time.
func (r Reading) Position() Point {
	return r.position.Clone()
}

// Distance returns the ranging distance [m] and whether it is present.
func (r Reading) Distance() (float64, bool) {
	return r.distance, r.hasDistance
}

// RSSI returns the RSSI sample [dBm] and whether it is present.
func (r Reading) RSSI() (float64, bool) {
	return r.rssi, r.hasRSSI
}

// DistanceStandardDeviation returns the ranging standard deviation [m],
// 0 when unknown.
func (r Reading) DistanceStandardDeviation() float64 {
	return r.distanceStdDev
}

// RSSIStandardDeviation returns the RSSI standard deviation [dBm],
// 0 when unknown.
func (r Reading) RSSIStandardDeviation() float64 {
	return r.rssiStdDev
}

// PositionCovariance returns the receiver position covariance, nil when
// absent. The returned matrix is a copy.
func (r Reading) PositionCovariance() *mat.SymDense {
	return cloneSym(r.positionCov)
}

//-------------------------------------------------------------------
// Reading set validation
//-------------------------------------------------------------------

// validateReadings checks that a reading set is non-empty, homogeneous in
// source identity and dimensionality, and carries the required measurement
// kinds. Returns the dimensionality.
func validateReadings(readings []Reading, needDistance, needRSSI bool) (int, error) {
	if len(readings) == 0 {
		return 0, argErrorf("empty reading list")
	}
	id := readings[0].source.Identifier()
	dims := readings[0].position.Dims()
	for i, r := range readings {
		if r.source == nil {
			return 0, argErrorf("reading %d has no source", i)
		}
		if r.source.Identifier() != id {
			return 0, argErrorf("reading %d references source %q, expected %q",
				i, r.source.Identifier(), id)
		}
		if r.position.Dims() != dims {
			return 0, argErrorf("reading %d is %dD, expected %dD", i, r.position.Dims(), dims)
		}
		if needDistance && !r.hasDistance {
			return 0, argErrorf("reading %d has no ranging distance", i)
		}
		if needRSSI && !r.hasRSSI {
			return 0, argErrorf("reading %d has no RSSI sample", i)
		}
	}
	return dims, nil
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.25
//

package radiolocate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Solution contains the results of one estimation. Every call to Estimate
// produces a fresh Solution; nothing is patched in place across calls.
type Solution struct {
	// Position is the estimated source position.
	Position Point

	// PositionCovariance is present when covariance keeping and nonlinear
	// refinement were both enabled and the refinement succeeded.
	PositionCovariance *mat.SymDense

	// TransmittedPowerdBm is the estimated (or fixed initial) transmitted
	// power [dBm]; NaN when the estimator has no power notion.
	TransmittedPowerdBm float64

	// TransmittedPowerVariance is NaN unless power estimation was enabled
	// and a variance could be derived.
	TransmittedPowerVariance float64

	// PathLossExponent is the estimated (or fixed initial) path loss
	// exponent; NaN when the estimator has no path loss notion.
	PathLossExponent float64

	// PathLossExponentVariance is NaN unless path loss estimation was
	// enabled and a variance could be derived.
	PathLossExponentVariance float64

	// Inliers marks the accepted readings; nil unless inlier keeping was
	// enabled.
	Inliers []bool

	// Residuals holds the best candidate's residual per reading; nil unless
	// residual keeping was enabled.
	Residuals []float64

	// NumInliers is the accepted reading count (all readings for the
	// non-robust method).
	NumInliers int

	// Iterations is the number of sampling attempts performed (0 for the
	// non-robust method).
	Iterations int

	// Source combines the input identity with the estimated geometry and
	// radio parameters.
	Source *LocatedRadioSource
}

// TransmittedPower returns the transmitted power in linear milliwatts.
func (s *Solution) TransmittedPower() float64 {
	return DBmToPower(s.TransmittedPowerdBm)
}

// Accuracy returns the standard position accuracy [m], NaN without a
// position covariance.
func (s *Solution) Accuracy() float64 {
	return CovarianceAccuracy(s.PositionCovariance)
}

func newSolution() *Solution {
	return &Solution{
		TransmittedPowerdBm:      math.NaN(),
		TransmittedPowerVariance: math.NaN(),
		PathLossExponent:         math.NaN(),
		PathLossExponentVariance: math.NaN(),
	}
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.24
//

package radiolocate

import (
	"fmt"
	"math"

	"github.com/sajari/regression"
	"gonum.org/v1/gonum/mat"
)

// Log-distance path loss model:
//
//	rssi = Pt - 10 k log10(d)
//
// with transmitted power Pt [dBm], path loss exponent k, and distance d [m].

// predictRSSI evaluates the model at distance d.
func predictRSSI(power, pathLoss, d float64) float64 {
	if d < minSampleDistance {
		d = minSampleDistance
	}
	return power - 10*pathLoss*math.Log10(d)
}

// rssiToDistance inverts the model for a given power and path loss exponent.
func rssiToDistance(rssi, power, pathLoss float64) float64 {
	return math.Pow(10, (power-rssi)/(10*pathLoss))
}

// pathLossFit holds the scalar results of a path loss model fit.
type pathLossFit struct {
	power       float64
	pathLoss    float64
	powerVar    float64 // NaN when not derived
	pathLossVar float64 // NaN when not derived
}

// fitPathLossFixed fits transmitted power and/or path loss exponent with the
// source position already known; dists holds the distance from the source to
// each receiver. Parameters not being estimated keep their initial values.
// w holds one weight per sample, nil for unit weights.
func fitPathLossFixed(dists, rssis, w []float64, powerEnabled, pathLossEnabled bool,
	initPower, initPathLoss float64) (pathLossFit, error) {

	fit := pathLossFit{
		power:       initPower,
		pathLoss:    initPathLoss,
		powerVar:    math.NaN(),
		pathLossVar: math.NaN(),
	}
	n := len(dists)
	if n == 0 || len(rssis) != n {
		return fit, fmt.Errorf("invalid sample count: %d distances, %d rssi", n, len(rssis))
	}

	// Regressor: t = -10 log10(d)
	t := make([]float64, n)
	for i, d := range dists {
		if d < minSampleDistance {
			d = minSampleDistance
		}
		t[i] = -10 * math.Log10(d)
	}

	weight := func(i int) float64 {
		if w == nil {
			return 1.0
		}
		if w[i] < minWeight {
			return minWeight
		}
		return w[i]
	}

	switch {
	case powerEnabled && pathLossEnabled:
		// rssi = Pt + k t: two-parameter log-linear fit. The unweighted case
		// takes its coefficients from an ordinary least squares regression,
		// the weighted case from the normal equations; the normal equations
		// always supply the variances.
		if n < 2 {
			return fit, fmt.Errorf("need at least 2 samples, got %d", n)
		}
		G := mat.NewDense(n, 2, nil)
		b := mat.NewVecDense(n, nil)
		for i := 0; i < n; i++ {
			G.Set(i, 0, 1)
			G.Set(i, 1, t[i])
			b.SetVec(i, rssis[i])
		}
		x, cov, err := SolveLS(G, b, w)
		if err != nil {
			return fit, fmt.Errorf("path loss fit failed: %w", err)
		}
		if w == nil {
			r := new(regression.Regression)
			r.SetObserved("rssi")
			r.SetVar(0, "logdist")
			for i := 0; i < n; i++ {
				r.Train(regression.DataPoint(rssis[i], []float64{t[i]}))
			}
			if err := r.Run(); err != nil {
				return fit, fmt.Errorf("path loss fit failed: %w", err)
			}
			fit.power = r.Coeff(0)
			fit.pathLoss = r.Coeff(1)
		} else {
			fit.power = x.AtVec(0)
			fit.pathLoss = x.AtVec(1)
		}
		fit.powerVar = cov.At(0, 0)
		fit.pathLossVar = cov.At(1, 1)

	case powerEnabled:
		// Pt = rssi - k t: weighted mean
		sw, swy := 0.0, 0.0
		for i := 0; i < n; i++ {
			wi := weight(i)
			sw += wi
			swy += wi * (rssis[i] - initPathLoss*t[i])
		}
		fit.power = swy / sw
		fit.powerVar = 1 / sw

	case pathLossEnabled:
		// k = (rssi - Pt) / t: weighted slope through the origin
		swtt, swty := 0.0, 0.0
		for i := 0; i < n; i++ {
			wi := weight(i)
			swtt += wi * SQ(t[i])
			swty += wi * t[i] * (rssis[i] - initPower)
		}
		if swtt < minWeight {
			return fit, fmt.Errorf("degenerate geometry: all samples at unit distance")
		}
		fit.pathLoss = swty / swtt
		fit.pathLossVar = 1 / swtt
	}

	return fit, nil
}

// fitRssiJoint estimates the source position together with the enabled radio
// parameters from RSSI samples alone. The initial position is derived from
// the model-inverted distances when not supplied. Returns the full parameter
// covariance (position block first) when nonLinear is enabled, nil otherwise.
func fitRssiJoint(positions []Point, rssis, w []float64, initPos Point,
	powerEnabled, pathLossEnabled bool, initPower, initPathLoss float64,
	nonLinear, homogeneous bool) (Point, *mat.Dense, pathLossFit, error) {

	n := len(positions)
	fit := pathLossFit{
		power:       initPower,
		pathLoss:    initPathLoss,
		powerVar:    math.NaN(),
		pathLossVar: math.NaN(),
	}
	if n == 0 {
		return nil, nil, fit, fmt.Errorf("no samples")
	}
	dims := positions[0].Dims()

	// Seed position from model-inverted distances
	pos := initPos
	if pos == nil {
		dists := make([]float64, n)
		for i, rssi := range rssis {
			dists[i] = rssiToDistance(rssi, initPower, initPathLoss)
		}
		var err error
		pos, err = solveLinearTrilateration(positions, dists, w, homogeneous)
		if err != nil {
			return nil, nil, fit, fmt.Errorf("initial position solve failed: %w", err)
		}
	} else {
		pos = pos.Clone()
	}

	if !nonLinear {
		// Closed-form radio parameters at the seed position
		dists := make([]float64, n)
		for i, p := range positions {
			dists[i] = pos.DistanceTo(p)
		}
		f, err := fitPathLossFixed(dists, rssis, w, powerEnabled, pathLossEnabled, initPower, initPathLoss)
		if err != nil {
			return nil, nil, fit, err
		}
		return pos, nil, f, nil
	}

	// Jointly refine position and enabled parameters
	np := dims
	powerIdx, pathLossIdx := -1, -1
	if powerEnabled {
		powerIdx = np
		np++
	}
	if pathLossEnabled {
		pathLossIdx = np
		np++
	}
	params := make([]float64, np)
	copy(params, pos)
	if powerIdx >= 0 {
		params[powerIdx] = initPower
	}
	if pathLossIdx >= 0 {
		params[pathLossIdx] = initPathLoss
	}

	fn := func(pr []float64, i int, jac []float64) float64 {
		power := initPower
		pathLoss := initPathLoss
		if powerIdx >= 0 {
			power = pr[powerIdx]
		}
		if pathLossIdx >= 0 {
			pathLoss = pr[pathLossIdx]
		}
		d2 := 0.0
		for j := 0; j < dims; j++ {
			d2 += SQ(pr[j] - positions[i][j])
		}
		if d2 < SQ(minSampleDistance) {
			d2 = SQ(minSampleDistance)
		}
		d := math.Sqrt(d2)
		for j := 0; j < dims; j++ {
			jac[j] = -10 * pathLoss / math.Ln10 * (pr[j] - positions[i][j]) / d2
		}
		if powerIdx >= 0 {
			jac[powerIdx] = 1
		}
		if pathLossIdx >= 0 {
			jac[pathLossIdx] = -10 * math.Log10(d)
		}
		return predictRSSI(power, pathLoss, d) - rssis[i]
	}

	cov, err := solveLM(params, n, fn, w)
	if err != nil {
		return nil, nil, fit, fmt.Errorf("joint RSSI refinement failed: %w", err)
	}

	out := make(Point, dims)
	copy(out, params[:dims])
	if powerIdx >= 0 {
		fit.power = params[powerIdx]
		fit.powerVar = cov.At(powerIdx, powerIdx)
	}
	if pathLossIdx >= 0 {
		fit.pathLoss = params[pathLossIdx]
		fit.pathLossVar = cov.At(pathLossIdx, pathLossIdx)
	}
	return out, cov, fit, nil
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.27
//

package radiolocate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// RssiEstimator
//-------------------------------------------------------------------

// RssiEstimator fits the log-distance path loss model to RSSI readings.
// Depending on the enabled flags it estimates the source position, the
// transmitted power and the path loss exponent; a parameter left disabled
// keeps its configured initial value. A fixed position turns the solve into
// a pure radio-parameter fit (the second stage of the sequential
// estimator).
type RssiEstimator struct {
	estimatorBase
	initialPosition Point
	fixedPosition   Point
	initialPowerdBm float64
	initialPathLoss float64
	powerEnabled    bool
	pathLossEnabled bool
}

// NewRssiEstimator creates an RSSI estimator with default settings: power
// estimation enabled, path loss exponent fixed at the free-space value.
func NewRssiEstimator() *RssiEstimator {
	return &RssiEstimator{
		estimatorBase:   newEstimatorBase(DefaultRssiThreshold),
		initialPowerdBm: DefaultTransmittedPowerdBm,
		initialPathLoss: DefaultPathLossExponent,
		powerEnabled:    true,
	}
}

// SetReadings stores the measurement set. All readings must carry an RSSI
// sample and reference the same source.
func (e *RssiEstimator) SetReadings(readings []Reading) error {
	return e.setReadings(readings, false, true)
}

// Readings returns the configured reading set.
func (e *RssiEstimator) Readings() []Reading {
	return e.readings
}

// SetInitialPosition supplies a starting point for the joint solve; nil
// clears it.
func (e *RssiEstimator) SetInitialPosition(p Point) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if p != nil {
		if d := p.Dims(); d != 2 && d != 3 {
			return argErrorf("initial position must be 2D or 3D, got %dD", d)
		}
	}
	e.initialPosition = p
	return nil
}

// SetFixedPosition holds the source position fixed at p, reducing the solve
// to the radio parameters; nil frees the position again.
func (e *RssiEstimator) SetFixedPosition(p Point) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if p != nil {
		if d := p.Dims(); d != 2 && d != 3 {
			return argErrorf("fixed position must be 2D or 3D, got %dD", d)
		}
	}
	e.fixedPosition = p
	return nil
}

// SetInitialTransmittedPowerdBm sets the initial (or fixed) transmitted
// power [dBm].
func (e *RssiEstimator) SetInitialTransmittedPowerdBm(p float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.initialPowerdBm = p
	return nil
}

// SetInitialTransmittedPower sets the initial transmitted power as linear
// power [mW]. Must be positive.
func (e *RssiEstimator) SetInitialTransmittedPower(mw float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if mw <= 0 {
		return argErrorf("linear power must be positive: %f", mw)
	}
	e.initialPowerdBm = PowerToDBm(mw)
	return nil
}

// SetInitialPathLossExponent sets the initial (or fixed) path loss
// exponent. Must be positive.
func (e *RssiEstimator) SetInitialPathLossExponent(k float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if k <= 0 {
		return argErrorf("path loss exponent must be positive: %f", k)
	}
	e.initialPathLoss = k
	return nil
}

// SetTransmittedPowerEstimationEnabled toggles estimating the transmitted
// power; when disabled the initial value is held fixed.
func (e *RssiEstimator) SetTransmittedPowerEstimationEnabled(on bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.powerEnabled = on
	return nil
}

// SetPathLossEstimationEnabled toggles estimating the path loss exponent;
// when disabled the initial value is held fixed.
func (e *RssiEstimator) SetPathLossEstimationEnabled(on bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.pathLossEnabled = on
	return nil
}

func (e *RssiEstimator) paramFlags() int {
	n := 0
	if e.powerEnabled {
		n++
	}
	if e.pathLossEnabled {
		n++
	}
	return n
}

// MinReadings is the smallest usable reading count: the dimensionality plus
// one unknown per enabled radio parameter, or just the radio parameter
// count when the position is held fixed.
func (e *RssiEstimator) MinReadings() int {
	flags := e.paramFlags()
	if e.fixedPosition != nil {
		if flags == 0 {
			return 1
		}
		return flags
	}
	d := e.dims
	if d == 0 {
		if e.initialPosition != nil {
			d = e.initialPosition.Dims()
		} else {
			d = 2
		}
	}
	return d + flags
}

// subsetSize is the preliminary sample size for the robust loop, one above
// the minimum when enough readings exist, which conditions the joint fit
// better.
func (e *RssiEstimator) subsetSize() int {
	s := e.MinReadings() + 1
	if s > len(e.readings) {
		s = e.MinReadings()
	}
	return s
}

// IsReady reports whether Estimate can run.
func (e *RssiEstimator) IsReady() bool {
	return e.isReadyCommon(e.MinReadings())
}

// Estimate fits the path loss model. It locks the estimator for the
// duration of the call; the lock is released on every exit path.
func (e *RssiEstimator) Estimate() (*Solution, error) {
	if e.state == stateRunning {
		return nil, ErrLocked
	}
	if !e.IsReady() {
		return nil, fmt.Errorf("%w: need at least %d RSSI readings", ErrNotReady, e.MinReadings())
	}
	e.state = stateRunning
	defer func() {
		if e.state == stateRunning {
			e.state = stateFailed
		}
	}()

	e.notifyStart()
	sol, err := e.solve()
	if err != nil {
		e.state = stateFailed
		return nil, err
	}
	e.notifyEnd()
	e.state = stateSucceeded
	return sol, nil
}

func (e *RssiEstimator) solve() (*Solution, error) {

	n := len(e.readings)
	positions := make([]Point, n)
	rssis := make([]float64, n)
	for i, r := range e.readings {
		positions[i] = r.position
		rssis[i], _ = r.RSSI()
	}

	var (
		inliers    []bool
		residuals  []float64
		numInliers = n
		iterations int
	)

	if e.method != MethodNone {
		prob := &rssiProblem{
			positions:       positions,
			rssis:           rssis,
			fixedPos:        e.fixedPosition,
			powerEnabled:    e.powerEnabled,
			pathLossEnabled: e.pathLossEnabled,
			initPower:       e.initialPowerdBm,
			initPathLoss:    e.initialPathLoss,
			nonLinear:       e.nonLinearEnabled,
			homogeneous:     e.homogeneousLinear,
		}
		res, err := runConsensus(prob, consensusOptions{
			method:        e.method,
			subsetSize:    e.subsetSize(),
			threshold:     e.threshold,
			confidence:    e.confidence,
			maxIterations: e.maxIterations,
			progressDelta: e.progressDelta,
			quality:       e.quality,
			seed:          e.sampleSeed(),
			onIteration:   e.iterationCallback(),
			onProgress:    e.progressCallback(),
		})
		if err != nil {
			return nil, err
		}
		inliers = res.inliers
		residuals = res.residuals
		numInliers = res.numInliers
		iterations = res.iterations

		if !e.refineResult {
			// Publish the best candidate as-is, without covariance
			m := res.model.(*rssiModel)
			return e.assemble(m.pos, m.power, m.pathLoss, math.NaN(), math.NaN(), nil,
				inliers, residuals, numInliers, iterations, positions, rssis), nil
		}
	} else {
		inliers = make([]bool, n)
		for i := range inliers {
			inliers[i] = true
		}
	}

	// Fit (or re-fit) on the final inlier set
	inIdx := make([]int, 0, numInliers)
	for i, ok := range inliers {
		if ok {
			inIdx = append(inIdx, i)
		}
	}
	inPos := make([]Point, len(inIdx))
	inRssi := make([]float64, len(inIdx))
	inReadings := make([]Reading, len(inIdx))
	for j, i := range inIdx {
		inPos[j] = positions[i]
		inRssi[j] = rssis[i]
		inReadings[j] = e.readings[i]
	}

	var (
		pos      Point
		fit      pathLossFit
		posCov   *mat.SymDense
		err      error
		powerVar = math.NaN()
		plVar    = math.NaN()
	)

	if e.fixedPosition != nil {
		pos = e.fixedPosition.Clone()
		dists := make([]float64, len(inPos))
		for j, p := range inPos {
			dists[j] = pos.DistanceTo(p)
		}
		w := rssiWeights(inReadings, pos, e.initialPathLoss, e.useReadingCov)
		fit, err = fitPathLossFixed(dists, inRssi, w, e.powerEnabled, e.pathLossEnabled,
			e.initialPowerdBm, e.initialPathLoss)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEstimation, err)
		}
	} else {
		w := rssiWeights(inReadings, nil, e.initialPathLoss, e.useReadingCov)
		var cov *mat.Dense
		pos, cov, fit, err = fitRssiJoint(inPos, inRssi, w, e.initialPosition,
			e.powerEnabled, e.pathLossEnabled, e.initialPowerdBm, e.initialPathLoss,
			e.nonLinearEnabled, e.homogeneousLinear)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEstimation, err)
		}
		if cov != nil && e.keepCovariance {
			dims := pos.Dims()
			pc := mat.NewDense(dims, dims, nil)
			pc.Copy(cov.Slice(0, dims, 0, dims))
			posCov = symFromDense(pc)
		}
	}

	if e.keepCovariance {
		powerVar = fit.powerVar
		plVar = fit.pathLossVar
	}

	return e.assemble(pos, fit.power, fit.pathLoss, powerVar, plVar, posCov,
		inliers, residuals, numInliers, iterations, positions, rssis), nil
}

func (e *RssiEstimator) assemble(pos Point, power, pathLoss, powerVar, plVar float64,
	posCov *mat.SymDense, inliers []bool, residuals []float64, numInliers, iterations int,
	positions []Point, rssis []float64) *Solution {

	sol := newSolution()
	sol.Position = pos.Clone()
	sol.PositionCovariance = posCov
	sol.TransmittedPowerdBm = power
	sol.PathLossExponent = pathLoss
	if e.powerEnabled {
		sol.TransmittedPowerVariance = powerVar
	}
	if e.pathLossEnabled {
		sol.PathLossExponentVariance = plVar
	}
	sol.NumInliers = numInliers
	sol.Iterations = iterations
	if e.keepInliers {
		sol.Inliers = inliers
	}
	if e.keepResiduals {
		if residuals == nil {
			residuals = make([]float64, len(positions))
			for i := range positions {
				residuals[i] = predictRSSI(power, pathLoss, pos.DistanceTo(positions[i])) - rssis[i]
			}
		}
		sol.Residuals = residuals
	}
	sol.Source = &LocatedRadioSource{
		Source:              e.readings[0].source,
		Position:            pos.Clone(),
		PositionCovariance:  cloneSym(posCov),
		TransmittedPowerdBm: power,
		PathLossExponent:    pathLoss,
	}
	return sol
}

//-------------------------------------------------------------------
// RSSI consensus problem
//-------------------------------------------------------------------

type rssiProblem struct {
	positions       []Point
	rssis           []float64
	fixedPos        Point
	powerEnabled    bool
	pathLossEnabled bool
	initPower       float64
	initPathLoss    float64
	nonLinear       bool
	homogeneous     bool
}

func (p *rssiProblem) numReadings() int {
	return len(p.positions)
}

func (p *rssiProblem) fitSample(sample []int) (consensusModel, error) {
	ps := make([]Point, len(sample))
	rs := make([]float64, len(sample))
	for i, idx := range sample {
		ps[i] = p.positions[idx]
		rs[i] = p.rssis[idx]
	}

	if p.fixedPos != nil {
		dists := make([]float64, len(ps))
		for i, q := range ps {
			dists[i] = p.fixedPos.DistanceTo(q)
		}
		fit, err := fitPathLossFixed(dists, rs, nil, p.powerEnabled, p.pathLossEnabled,
			p.initPower, p.initPathLoss)
		if err != nil {
			return nil, err
		}
		return p.model(p.fixedPos, fit), nil
	}

	pos, _, fit, err := fitRssiJoint(ps, rs, nil, nil, p.powerEnabled, p.pathLossEnabled,
		p.initPower, p.initPathLoss, p.nonLinear, p.homogeneous)
	if err != nil {
		return nil, err
	}
	return p.model(pos, fit), nil
}

func (p *rssiProblem) model(pos Point, fit pathLossFit) *rssiModel {
	return &rssiModel{
		pos:       pos,
		power:     fit.power,
		pathLoss:  fit.pathLoss,
		positions: p.positions,
		rssis:     p.rssis,
	}
}

type rssiModel struct {
	pos       Point
	power     float64
	pathLoss  float64
	positions []Point
	rssis     []float64
}

func (m *rssiModel) residual(i int) float64 {
	return predictRSSI(m.power, m.pathLoss, m.pos.DistanceTo(m.positions[i])) - m.rssis[i]
}

//-------------------------------------------------------------------
// Weights
//-------------------------------------------------------------------

// rssiWeights derives inverse-variance weights from the RSSI standard
// deviations, folding in the receiver position covariance propagated
// through the path loss model when requested and a position is known.
// Returns nil (unit weights) when no reading carries uncertainty data.
func rssiWeights(readings []Reading, pos Point, pathLoss float64, useCov bool) []float64 {
	any := false
	w := make([]float64, len(readings))
	for i, r := range readings {
		v := SQ(r.rssiStdDev)
		if r.rssiStdDev > 0 {
			any = true
		}
		if useCov && r.positionCov != nil && pos != nil {
			d := pos.DistanceTo(r.position)
			if d > minSampleDistance {
				dims := pos.Dims()
				u := make([]float64, dims)
				for j := 0; j < dims; j++ {
					u[j] = (pos[j] - r.position[j]) / d
				}
				uv := mat.NewVecDense(dims, u)
				var cu mat.VecDense
				cu.MulVec(r.positionCov, uv)
				// dBm variance via the model gradient 10 k / (d ln10)
				g := 10 * pathLoss / (d * math.Ln10)
				v += SQ(g) * mat.Dot(uv, &cu)
				any = true
			}
		}
		if v < minWeight {
			v = 1.0
		}
		w[i] = 1 / v
	}
	if !any {
		return nil
	}
	return w
}

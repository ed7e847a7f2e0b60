// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.27
//

package radiolocate

import (
	"fmt"
)

//-------------------------------------------------------------------
// SequentialEstimator
//-------------------------------------------------------------------

// SequentialEstimator locates a radio source from readings carrying both a
// ranging distance and an RSSI sample, in two dependent passes: a robust
// ranging solve produces the position and its covariance, then a robust
// RSSI solve with that position held fixed produces the transmitted power
// and/or path loss exponent. The two stages are configured independently
// (ranging and RSSI noise differ) and never share a joint covariance.
//
// The embedded base setters (SetRobustMethod, SetThreshold, SetConfidence,
// SetMaxIterations) configure the ranging stage; the SetRssi* setters
// configure the RSSI stage.
type SequentialEstimator struct {
	estimatorBase
	rssiMethod        RobustMethod
	rssiThreshold     float64
	rssiConfidence    float64
	rssiMaxIterations int
	initialPosition   Point
	initialPowerdBm   float64
	initialPathLoss   float64
	powerEnabled      bool
	pathLossEnabled   bool
}

// NewSequentialEstimator creates a sequential estimator with RANSAC on both
// stages and power estimation enabled.
func NewSequentialEstimator() *SequentialEstimator {
	e := &SequentialEstimator{
		estimatorBase:     newEstimatorBase(DefaultRangingThreshold),
		rssiMethod:        MethodRANSAC,
		rssiThreshold:     DefaultRssiThreshold,
		rssiConfidence:    DefaultConfidence,
		rssiMaxIterations: DefaultMaxIterations,
		initialPowerdBm:   DefaultTransmittedPowerdBm,
		initialPathLoss:   DefaultPathLossExponent,
		powerEnabled:      true,
	}
	e.method = MethodRANSAC
	return e
}

// SetReadings stores the measurement set. All readings must carry both a
// ranging distance and an RSSI sample, and reference the same source.
func (e *SequentialEstimator) SetReadings(readings []Reading) error {
	return e.setReadings(readings, true, true)
}

// Readings returns the configured reading set.
func (e *SequentialEstimator) Readings() []Reading {
	return e.readings
}

// SetRangingRobustMethod selects the ranging stage consensus policy.
func (e *SequentialEstimator) SetRangingRobustMethod(m RobustMethod) error {
	return e.SetRobustMethod(m)
}

// SetRangingThreshold sets the ranging stage inlier threshold [m].
func (e *SequentialEstimator) SetRangingThreshold(t float64) error {
	return e.SetThreshold(t)
}

// SetRssiRobustMethod selects the RSSI stage consensus policy.
func (e *SequentialEstimator) SetRssiRobustMethod(m RobustMethod) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if m < MethodNone || m > MethodPROMedS {
		return argErrorf("unknown robust method %d", m)
	}
	e.rssiMethod = m
	return nil
}

// SetRssiThreshold sets the RSSI stage inlier threshold [dBm].
func (e *SequentialEstimator) SetRssiThreshold(t float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if t <= 0 {
		return argErrorf("threshold must be positive: %f", t)
	}
	e.rssiThreshold = t
	return nil
}

// SetRssiConfidence sets the RSSI stage confidence, strictly inside (0,1).
func (e *SequentialEstimator) SetRssiConfidence(c float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if c <= 0 || c >= 1 {
		return argErrorf("confidence must be in (0,1): %f", c)
	}
	e.rssiConfidence = c
	return nil
}

// SetRssiMaxIterations sets the RSSI stage sampling attempt ceiling.
func (e *SequentialEstimator) SetRssiMaxIterations(n int) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if n < 1 {
		return argErrorf("max iterations must be at least 1: %d", n)
	}
	e.rssiMaxIterations = n
	return nil
}

// SetInitialPosition supplies a starting point for the ranging refinement;
// nil clears it.
func (e *SequentialEstimator) SetInitialPosition(p Point) error {
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

// SetInitialTransmittedPowerdBm sets the initial (or fixed) transmitted
// power [dBm].
func (e *SequentialEstimator) SetInitialTransmittedPowerdBm(p float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.initialPowerdBm = p
	return nil
}

// SetInitialTransmittedPower sets the initial transmitted power as linear
// power [mW]. Must be positive.
func (e *SequentialEstimator) SetInitialTransmittedPower(mw float64) error {
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
func (e *SequentialEstimator) SetInitialPathLossExponent(k float64) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	if k <= 0 {
		return argErrorf("path loss exponent must be positive: %f", k)
	}
	e.initialPathLoss = k
	return nil
}

// SetTransmittedPowerEstimationEnabled toggles the power estimate in the
// RSSI stage.
func (e *SequentialEstimator) SetTransmittedPowerEstimationEnabled(on bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.powerEnabled = on
	return nil
}

// SetPathLossEstimationEnabled toggles the path loss exponent estimate in
// the RSSI stage.
func (e *SequentialEstimator) SetPathLossEstimationEnabled(on bool) error {
	if err := e.checkUnlocked(); err != nil {
		return err
	}
	e.pathLossEnabled = on
	return nil
}

// MinReadings is the dimensionality plus one unknown per enabled radio
// parameter, floored at one more than the dimensionality so the ranging
// stage is always solvable.
func (e *SequentialEstimator) MinReadings() int {
	d := e.dims
	if d == 0 {
		if e.initialPosition != nil {
			d = e.initialPosition.Dims()
		} else {
			d = 2
		}
	}
	m := d
	if e.powerEnabled {
		m++
	}
	if e.pathLossEnabled {
		m++
	}
	if m < d+1 {
		m = d + 1
	}
	return m
}

// IsReady reports whether Estimate can run.
func (e *SequentialEstimator) IsReady() bool {
	min := e.MinReadings()
	if len(e.readings) == 0 || len(e.readings) < min {
		return false
	}
	if e.method.requiresQuality() || e.rssiMethod.requiresQuality() {
		if len(e.quality) != len(e.readings) {
			return false
		}
		if len(e.readings) < min+1 {
			return false
		}
	}
	return true
}

// Estimate runs both stages. It locks the estimator for the duration of
// the call; the lock is released on every exit path.
func (e *SequentialEstimator) Estimate() (*Solution, error) {
	if e.state == stateRunning {
		return nil, ErrLocked
	}
	if !e.IsReady() {
		return nil, fmt.Errorf("%w: need at least %d ranging+RSSI readings", ErrNotReady, e.MinReadings())
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

func (e *SequentialEstimator) solve() (*Solution, error) {

	seed := e.sampleSeed()
	twoStages := e.powerEnabled || e.pathLossEnabled
	lastProgress := 0.0

	// Stage 1: robust ranging solve for position and covariance
	ranging := NewRangingEstimator()
	must(ranging.SetReadings(e.readings))
	must(ranging.SetRobustMethod(e.method))
	if e.method != MethodNone {
		must(ranging.SetThreshold(e.threshold))
		must(ranging.SetConfidence(e.confidence))
		must(ranging.SetMaxIterations(e.maxIterations))
	}
	must(ranging.SetProgressDelta(e.progressDelta))
	must(ranging.SetQualityScores(e.quality))
	must(ranging.SetRandomSeed(seed))
	must(ranging.SetNonLinearSolverEnabled(e.nonLinearEnabled))
	must(ranging.SetHomogeneousLinearSolver(e.homogeneousLinear))
	must(ranging.SetResultRefined(e.refineResult))
	must(ranging.SetCovarianceKept(e.keepCovariance))
	must(ranging.SetComputeAndKeepInliers(true))
	must(ranging.SetComputeAndKeepResiduals(e.keepResiduals))
	must(ranging.SetUseReadingPositionCovariance(e.useReadingCov))
	must(ranging.SetInitialPosition(e.initialPosition))
	must(ranging.SetListener(&stageListener{
		inner: e.listener,
		scale: stageScale(twoStages),
		last:  &lastProgress,
	}))

	rangingSol, err := ranging.Estimate()
	if err != nil {
		return nil, fmt.Errorf("ranging stage: %w", err)
	}

	sol := newSolution()
	sol.Position = rangingSol.Position
	sol.PositionCovariance = rangingSol.PositionCovariance
	sol.NumInliers = rangingSol.NumInliers
	sol.Iterations = rangingSol.Iterations
	if e.keepInliers {
		// The inlier mask published is the position stage's
		inliers := make([]bool, len(e.readings))
		copy(inliers, rangingSol.Inliers)
		sol.Inliers = inliers
	}
	sol.Residuals = rangingSol.Residuals
	sol.TransmittedPowerdBm = e.initialPowerdBm
	sol.PathLossExponent = e.initialPathLoss

	// Stage 2: robust RSSI solve with the position held fixed
	if twoStages {
		rssi := NewRssiEstimator()
		must(rssi.SetReadings(e.readings))
		must(rssi.SetFixedPosition(rangingSol.Position))
		must(rssi.SetRobustMethod(e.rssiMethod))
		if e.rssiMethod != MethodNone {
			must(rssi.SetThreshold(e.rssiThreshold))
			must(rssi.SetConfidence(e.rssiConfidence))
			must(rssi.SetMaxIterations(e.rssiMaxIterations))
		}
		must(rssi.SetProgressDelta(e.progressDelta))
		must(rssi.SetQualityScores(e.quality))
		must(rssi.SetRandomSeed(seed + 1))
		must(rssi.SetNonLinearSolverEnabled(e.nonLinearEnabled))
		must(rssi.SetResultRefined(e.refineResult))
		must(rssi.SetCovarianceKept(e.keepCovariance))
		must(rssi.SetComputeAndKeepInliers(e.keepInliers))
		must(rssi.SetComputeAndKeepResiduals(e.keepResiduals))
		must(rssi.SetUseReadingPositionCovariance(e.useReadingCov))
		must(rssi.SetTransmittedPowerEstimationEnabled(e.powerEnabled))
		must(rssi.SetPathLossEstimationEnabled(e.pathLossEnabled))
		must(rssi.SetInitialTransmittedPowerdBm(e.initialPowerdBm))
		must(rssi.SetInitialPathLossExponent(e.initialPathLoss))
		must(rssi.SetListener(&stageListener{
			inner:  e.listener,
			offset: 0.5,
			scale:  0.5,
			last:   &lastProgress,
		}))

		rssiSol, err := rssi.Estimate()
		if err != nil {
			return nil, fmt.Errorf("RSSI stage: %w", err)
		}

		sol.TransmittedPowerdBm = rssiSol.TransmittedPowerdBm
		sol.PathLossExponent = rssiSol.PathLossExponent
		sol.TransmittedPowerVariance = rssiSol.TransmittedPowerVariance
		sol.PathLossExponentVariance = rssiSol.PathLossExponentVariance
		sol.Iterations += rssiSol.Iterations
	}

	sol.Source = &LocatedRadioSource{
		Source:              e.readings[0].source,
		Position:            sol.Position.Clone(),
		PositionCovariance:  cloneSym(sol.PositionCovariance),
		TransmittedPowerdBm: sol.TransmittedPowerdBm,
		PathLossExponent:    sol.PathLossExponent,
	}

	if e.listener != nil && lastProgress < 1 {
		e.listener.EstimateProgressChange(1)
	}
	return sol, nil
}

// stageScale maps stage-one progress onto the first half of the combined
// progress range when a second stage follows.
func stageScale(twoStages bool) float64 {
	if twoStages {
		return 0.5
	}
	return 1.0
}

// must panics on setter errors against freshly created sub-estimators;
// those setters only fail on locked or invalid arguments, both of which are
// excluded by the sequential estimator's own validation.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

//-------------------------------------------------------------------
// Stage listener
//-------------------------------------------------------------------

// stageListener rescales a sub-estimator's progress into the combined
// range, keeping the sequence non-decreasing, and forwards iteration
// callbacks. Start and end callbacks are owned by the sequential estimator
// itself.
type stageListener struct {
	inner  EstimateListener
	offset float64
	scale  float64
	last   *float64
}

func (s *stageListener) EstimateStart() {}

func (s *stageListener) EstimateEnd() {}

func (s *stageListener) EstimateNextIteration(iteration int) {
	if s.inner != nil {
		s.inner.EstimateNextIteration(iteration)
	}
}

func (s *stageListener) EstimateProgressChange(progress float64) {
	if s.inner == nil {
		return
	}
	v := s.offset + progress*s.scale
	if v > 1 {
		v = 1
	}
	if v > *s.last {
		*s.last = v
		s.inner.EstimateProgressChange(v)
	}
}

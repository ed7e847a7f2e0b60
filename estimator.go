// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.26
//

package radiolocate

import "time"

//-------------------------------------------------------------------
// Listener
//-------------------------------------------------------------------

// EstimateListener receives synchronous notifications during Estimate. The
// estimator is locked while a callback runs: any setter called from inside
// a callback returns ErrLocked.
type EstimateListener interface {
	// EstimateStart fires before the solve begins.
	EstimateStart()
	// EstimateNextIteration fires once per robust sampling attempt.
	EstimateNextIteration(iteration int)
	// EstimateProgressChange fires when normalized progress advances by at
	// least the configured progress delta; values are non-decreasing within
	// one Estimate call.
	EstimateProgressChange(progress float64)
	// EstimateEnd fires after a successful estimation only.
	EstimateEnd()
}

//-------------------------------------------------------------------
// Estimator state
//-------------------------------------------------------------------

// estimatorState is the estimator's logical lifecycle. The lock check is on
// this state, not on the call stack, so listener re-entrancy observes it
// deterministically.
type estimatorState int

const (
	stateIdle estimatorState = iota
	stateRunning
	stateSucceeded
	stateFailed
)

//-------------------------------------------------------------------
// estimatorBase
//-------------------------------------------------------------------

// estimatorBase carries the configuration surface shared by all estimators.
// Every setter refuses mutation while an estimation runs and validates its
// argument before changing any state.
type estimatorBase struct {
	state         estimatorState
	listener      EstimateListener
	readings      []Reading
	quality       []float64
	dims          int
	method        RobustMethod
	threshold     float64
	confidence    float64
	maxIterations int
	progressDelta float64

	nonLinearEnabled  bool
	homogeneousLinear bool
	refineResult      bool
	keepCovariance    bool
	keepInliers       bool
	keepResiduals     bool
	useReadingCov     bool

	seed    uint64
	hasSeed bool
}

func newEstimatorBase(threshold float64) estimatorBase {
	return estimatorBase{
		state:            stateIdle,
		method:           MethodNone,
		threshold:        threshold,
		confidence:       DefaultConfidence,
		maxIterations:    DefaultMaxIterations,
		progressDelta:    DefaultProgressDelta,
		nonLinearEnabled: true,
		refineResult:     true,
		keepCovariance:   true,
	}
}

// checkUnlocked rejects mutation while Estimate is running.
func (b *estimatorBase) checkUnlocked() error {
	if b.state == stateRunning {
		return ErrLocked
	}
	return nil
}

// IsLocked reports whether an estimation is currently in progress.
func (b *estimatorBase) IsLocked() bool {
	return b.state == stateRunning
}

// setReadings validates and stores a reading set requiring the given
// measurement kinds.
func (b *estimatorBase) setReadings(readings []Reading, needDistance, needRSSI bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	dims, err := validateReadings(readings, needDistance, needRSSI)
	if err != nil {
		return err
	}
	b.readings = readings
	b.dims = dims
	return nil
}

// SetQualityScores stores one score per reading, higher meaning more
// trustworthy. Required by the quality-based robust methods; pass nil to
// clear. Length is checked against the reading count at readiness time.
func (b *estimatorBase) SetQualityScores(scores []float64) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.quality = scores
	return nil
}

// QualityScores returns the configured quality scores.
func (b *estimatorBase) QualityScores() []float64 {
	return b.quality
}

// SetRobustMethod selects the sample-consensus policy.
func (b *estimatorBase) SetRobustMethod(m RobustMethod) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	if m < MethodNone || m > MethodPROMedS {
		return argErrorf("unknown robust method %d", m)
	}
	b.method = m
	return nil
}

func (b *estimatorBase) RobustMethod() RobustMethod {
	return b.method
}

// SetThreshold sets the inlier residual threshold. Must be positive.
func (b *estimatorBase) SetThreshold(t float64) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	if t <= 0 {
		return argErrorf("threshold must be positive: %f", t)
	}
	b.threshold = t
	return nil
}

func (b *estimatorBase) Threshold() float64 {
	return b.threshold
}

// SetConfidence sets the probability that the robust loop finds at least
// one outlier-free subset. Must lie strictly inside (0, 1).
func (b *estimatorBase) SetConfidence(c float64) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	if c <= 0 || c >= 1 {
		return argErrorf("confidence must be in (0,1): %f", c)
	}
	b.confidence = c
	return nil
}

func (b *estimatorBase) Confidence() float64 {
	return b.confidence
}

// SetMaxIterations sets the ceiling on robust sampling attempts.
func (b *estimatorBase) SetMaxIterations(n int) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	if n < 1 {
		return argErrorf("max iterations must be at least 1: %d", n)
	}
	b.maxIterations = n
	return nil
}

func (b *estimatorBase) MaxIterations() int {
	return b.maxIterations
}

// SetProgressDelta sets the minimum progress change notified to listeners.
func (b *estimatorBase) SetProgressDelta(d float64) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	if d <= 0 || d >= 1 {
		return argErrorf("progress delta must be in (0,1): %f", d)
	}
	b.progressDelta = d
	return nil
}

// SetListener installs the progress listener, nil to remove it.
func (b *estimatorBase) SetListener(l EstimateListener) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.listener = l
	return nil
}

// SetNonLinearSolverEnabled toggles the Levenberg-Marquardt refinement
// stage. Covariances are only produced when it is enabled.
func (b *estimatorBase) SetNonLinearSolverEnabled(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.nonLinearEnabled = on
	return nil
}

// SetHomogeneousLinearSolver selects the homogeneous-coordinate formulation
// of the linear solve.
func (b *estimatorBase) SetHomogeneousLinearSolver(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.homogeneousLinear = on
	return nil
}

// SetResultRefined toggles re-fitting the model on the final inlier set.
func (b *estimatorBase) SetResultRefined(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.refineResult = on
	return nil
}

// SetCovarianceKept toggles publishing covariances with the result.
func (b *estimatorBase) SetCovarianceKept(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.keepCovariance = on
	return nil
}

// SetComputeAndKeepInliers toggles retaining the inlier mask in the result.
func (b *estimatorBase) SetComputeAndKeepInliers(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.keepInliers = on
	return nil
}

// SetComputeAndKeepResiduals toggles retaining the residual vector in the
// result.
func (b *estimatorBase) SetComputeAndKeepResiduals(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.keepResiduals = on
	return nil
}

// SetUseReadingPositionCovariance toggles folding per-reading receiver
// position covariance into the fit weights.
func (b *estimatorBase) SetUseReadingPositionCovariance(on bool) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.useReadingCov = on
	return nil
}

// SetRandomSeed fixes the robust sampling sequence for reproducible runs.
func (b *estimatorBase) SetRandomSeed(seed uint64) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.seed = seed
	b.hasSeed = true
	return nil
}

// sampleSeed returns the configured seed, or a time-derived one.
func (b *estimatorBase) sampleSeed() uint64 {
	if b.hasSeed {
		return b.seed
	}
	return uint64(time.Now().UnixNano())
}

// isReadyCommon checks reading presence, count and quality score length for
// the given minimum. Quality-based methods need one spare reading beyond
// the minimum.
func (b *estimatorBase) isReadyCommon(minReadings int) bool {
	if len(b.readings) == 0 || len(b.readings) < minReadings {
		return false
	}
	if b.method.requiresQuality() {
		if len(b.quality) != len(b.readings) {
			return false
		}
		if len(b.readings) < minReadings+1 {
			return false
		}
	}
	return true
}

// notifyStart fires the start callback while locked.
func (b *estimatorBase) notifyStart() {
	if b.listener != nil {
		b.listener.EstimateStart()
	}
}

// notifyEnd fires the end callback while locked.
func (b *estimatorBase) notifyEnd() {
	if b.listener != nil {
		b.listener.EstimateEnd()
	}
}

// iterationCallback returns the per-iteration hook, nil without a listener.
func (b *estimatorBase) iterationCallback() func(int) {
	if b.listener == nil {
		return nil
	}
	return b.listener.EstimateNextIteration
}

// progressCallback returns the progress hook, nil without a listener.
func (b *estimatorBase) progressCallback() func(float64) {
	if b.listener == nil {
		return nil
	}
	return b.listener.EstimateProgressChange
}

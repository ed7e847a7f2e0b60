// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.28
//

package radiolocate

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//-------------------------------------------------------------------
// Listeners used across the estimator tests
//-------------------------------------------------------------------

// recordingListener counts callbacks and records the progress sequence.
type recordingListener struct {
	starts     int
	ends       int
	iterations int
	progress   []float64
}

func (l *recordingListener) EstimateStart() { l.starts++ }
func (l *recordingListener) EstimateEnd()   { l.ends++ }
func (l *recordingListener) EstimateNextIteration(iteration int) {
	l.iterations++
}
func (l *recordingListener) EstimateProgressChange(progress float64) {
	l.progress = append(l.progress, progress)
}

// lockProbeListener calls setters from inside the callbacks and records the
// errors they return.
type lockProbeListener struct {
	estimator *RangingEstimator
	startErr  error
	iterErr   error
	endErr    error
}

func (l *lockProbeListener) EstimateStart() {
	l.startErr = l.estimator.SetThreshold(2.0)
}
func (l *lockProbeListener) EstimateEnd() {
	l.endErr = l.estimator.SetThreshold(3.0)
}
func (l *lockProbeListener) EstimateNextIteration(iteration int) {
	if l.iterErr == nil {
		l.iterErr = l.estimator.SetRobustMethod(MethodLMedS)
	}
}
func (l *lockProbeListener) EstimateProgressChange(progress float64) {}

// endLockListener runs an arbitrary setter from inside EstimateEnd and
// records the error it returns.
type endLockListener struct {
	setter func() error
	endErr error
}

func (l *endLockListener) EstimateStart()                          {}
func (l *endLockListener) EstimateEnd()                            { l.endErr = l.setter() }
func (l *endLockListener) EstimateNextIteration(iteration int)     {}
func (l *endLockListener) EstimateProgressChange(progress float64) {}

//-------------------------------------------------------------------
// Tests
//-------------------------------------------------------------------

func TestEstimatorSetterValidation(t *testing.T) {
	e := NewRangingEstimator()

	assert.ErrorIs(t, e.SetThreshold(0), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetThreshold(-1), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetConfidence(0), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetConfidence(1), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetMaxIterations(0), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetProgressDelta(0), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetProgressDelta(1), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetRobustMethod(RobustMethod(-1)), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetRobustMethod(RobustMethod(99)), ErrInvalidArgument)

	// A failed setter leaves the previous value in place
	require.NoError(t, e.SetThreshold(2.5))
	assert.Error(t, e.SetThreshold(-3))
	assert.Equal(t, 2.5, e.Threshold())
}

func TestEstimatorDefaults(t *testing.T) {
	e := NewRangingEstimator()
	assert.Equal(t, MethodNone, e.RobustMethod())
	assert.Equal(t, DefaultRangingThreshold, e.Threshold())
	assert.Equal(t, DefaultConfidence, e.Confidence())
	assert.Equal(t, DefaultMaxIterations, e.MaxIterations())
	assert.False(t, e.IsLocked())

	r := NewRssiEstimator()
	assert.Equal(t, DefaultRssiThreshold, r.Threshold())

	s := NewSequentialEstimator()
	assert.Equal(t, MethodRANSAC, s.RobustMethod())
	assert.Equal(t, DefaultRangingThreshold, s.Threshold())
}

func TestEstimatorLockedDuringCallbacks(t *testing.T) {
	src := NewPoint2D(1, -1)
	readings := rangingReadings(t, src, circleAnchors(10, 9), map[int]float64{2: 5})

	e := NewRangingEstimator()
	probe := &lockProbeListener{estimator: e}
	require.NoError(t, e.SetReadings(readings))
	require.NoError(t, e.SetRobustMethod(MethodRANSAC))
	require.NoError(t, e.SetRandomSeed(19))
	require.NoError(t, e.SetListener(probe))

	_, err := e.Estimate()
	require.NoError(t, err)

	// Setters invoked from inside the callbacks saw the lock
	assert.ErrorIs(t, probe.startErr, ErrLocked)
	assert.ErrorIs(t, probe.iterErr, ErrLocked)
	assert.ErrorIs(t, probe.endErr, ErrLocked)

	// The lock is released afterwards
	assert.False(t, e.IsLocked())
	assert.NoError(t, e.SetThreshold(2.0))
}

func TestEstimatorLockedDuringEndCallback(t *testing.T) {
	// The end callback fires on success, while the estimator is still
	// locked, on every estimator kind.
	src := NewPoint2D(1, 2)

	t.Run("ranging", func(t *testing.T) {
		e := NewRangingEstimator()
		l := &endLockListener{setter: func() error { return e.SetThreshold(3.0) }}
		require.NoError(t, e.SetReadings(rangingReadings(t, src, circleAnchors(6, 9), nil)))
		require.NoError(t, e.SetListener(l))
		_, err := e.Estimate()
		require.NoError(t, err)
		assert.ErrorIs(t, l.endErr, ErrLocked)
		assert.False(t, e.IsLocked())
	})

	t.Run("rssi", func(t *testing.T) {
		e := NewRssiEstimator()
		l := &endLockListener{setter: func() error { return e.SetInitialPathLossExponent(2.5) }}
		require.NoError(t, e.SetReadings(rssiReadings(t, src, circleAnchors(8, 9), -30, 2, nil)))
		require.NoError(t, e.SetFixedPosition(src))
		require.NoError(t, e.SetListener(l))
		_, err := e.Estimate()
		require.NoError(t, err)
		assert.ErrorIs(t, l.endErr, ErrLocked)
		assert.False(t, e.IsLocked())
	})

	t.Run("sequential", func(t *testing.T) {
		e := NewSequentialEstimator()
		l := &endLockListener{setter: func() error { return e.SetRssiThreshold(4.0) }}
		require.NoError(t, e.SetReadings(sequentialReadings(t, src, circleAnchors(8, 9), -30, 2, nil, nil)))
		require.NoError(t, e.SetRandomSeed(1))
		require.NoError(t, e.SetListener(l))
		_, err := e.Estimate()
		require.NoError(t, err)
		assert.ErrorIs(t, l.endErr, ErrLocked)
		assert.False(t, e.IsLocked())
	})
}

func TestEstimatorListenerSequence(t *testing.T) {
	src := NewPoint2D(-2, 2)
	readings := rangingReadings(t, src, circleAnchors(12, 10), map[int]float64{5: 6})

	l := &recordingListener{}
	e := NewRangingEstimator()
	require.NoError(t, e.SetReadings(readings))
	require.NoError(t, e.SetRobustMethod(MethodRANSAC))
	require.NoError(t, e.SetRandomSeed(23))
	require.NoError(t, e.SetListener(l))

	_, err := e.Estimate()
	require.NoError(t, err)

	assert.Equal(t, 1, l.starts)
	assert.Equal(t, 1, l.ends)
	assert.Greater(t, l.iterations, 0)

	require.NotEmpty(t, l.progress)
	for i := 1; i < len(l.progress); i++ {
		assert.GreaterOrEqual(t, l.progress[i], l.progress[i-1])
	}
	assert.Equal(t, 1.0, l.progress[len(l.progress)-1])
}

func TestEstimatorNoEndCallbackOnFailure(t *testing.T) {
	// A consensus failure must not fire EstimateEnd
	src := NewPoint2D(0, 0)
	readings := rangingReadings(t, src, circleAnchors(4, 8), map[int]float64{
		0: 5, 1: -3, 2: 7, 3: -6,
	})

	l := &recordingListener{}
	e := NewRangingEstimator()
	require.NoError(t, e.SetReadings(readings))
	require.NoError(t, e.SetRobustMethod(MethodRANSAC))
	require.NoError(t, e.SetThreshold(0.001))
	require.NoError(t, e.SetMaxIterations(20))
	require.NoError(t, e.SetRandomSeed(2))
	require.NoError(t, e.SetListener(l))

	_, err := e.Estimate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConsensus)

	assert.Equal(t, 1, l.starts)
	assert.Equal(t, 0, l.ends)
	assert.False(t, e.IsLocked())
}

func TestEstimatorQualityScoreAccessors(t *testing.T) {
	e := NewRangingEstimator()
	scores := []float64{1, 2, 3}
	require.NoError(t, e.SetQualityScores(scores))
	assert.Equal(t, scores, e.QualityScores())
	require.NoError(t, e.SetQualityScores(nil))
	assert.Nil(t, e.QualityScores())
}

func TestSetLogLevel(t *testing.T) {
	prev := logger.GetLevel()
	defer SetLogLevel(prev)

	SetLogLevel(logrus.DebugLevel)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.26
//

package radiolocate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// RangingEstimator
//-------------------------------------------------------------------

// RangingEstimator locates a radio source from ranging distance readings.
// It runs a linear multilateration solve, optionally hardened by a robust
// consensus method and refined by a Levenberg-Marquardt stage that also
// produces the position covariance.
type RangingEstimator struct {
	estimatorBase
	initialPosition Point
}

// NewRangingEstimator creates a ranging estimator with default settings:
// non-robust method, nonlinear refinement and covariance keeping enabled.
func NewRangingEstimator() *RangingEstimator {
	return &RangingEstimator{
		estimatorBase: newEstimatorBase(DefaultRangingThreshold),
	}
}

// SetReadings stores the measurement set. All readings must carry a ranging
// distance and reference the same source.
func (e *RangingEstimator) SetReadings(readings []Reading) error {
	return e.setReadings(readings, true, false)
}

// Readings returns the configured reading set.
func (e *RangingEstimator) Readings() []Reading {
	return e.readings
}

// SetInitialPosition supplies a starting point for the nonlinear
// refinement; nil clears it.
func (e *RangingEstimator) SetInitialPosition(p Point) error {
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

// MinReadings is the smallest usable reading count: one more than the
// dimensionality, since the linearization spends one reading on the
// reference anchor.
func (e *RangingEstimator) MinReadings() int {
	d := e.dims
	if d == 0 {
		if e.initialPosition != nil {
			d = e.initialPosition.Dims()
		} else {
			d = 2
		}
	}
	return d + 1
}

// IsReady reports whether Estimate can run.
func (e *RangingEstimator) IsReady() bool {
	return e.isReadyCommon(e.MinReadings())
}

// Estimate solves for the source position. It locks the estimator for the
// duration of the call; the lock is released on every exit path.
func (e *RangingEstimator) Estimate() (*Solution, error) {
	if e.state == stateRunning {
		return nil, ErrLocked
	}
	if !e.IsReady() {
		return nil, fmt.Errorf("%w: need at least %d ranging readings", ErrNotReady, e.MinReadings())
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

func (e *RangingEstimator) solve() (*Solution, error) {

	n := len(e.readings)
	positions := make([]Point, n)
	dists := make([]float64, n)
	for i, r := range e.readings {
		positions[i] = r.position
		dists[i], _ = r.Distance()
	}

	var (
		pos        Point
		inliers    []bool
		residuals  []float64
		numInliers = n
		iterations int
	)

	if e.method == MethodNone {
		var err error
		pos, err = solveLinearTrilateration(positions, dists, rangingWeights(e.readings, nil, e.useReadingCov), e.homogeneousLinear)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEstimation, err)
		}
		inliers = make([]bool, n)
		for i := range inliers {
			inliers[i] = true
		}
	} else {
		prob := &rangingProblem{
			positions:   positions,
			dists:       dists,
			homogeneous: e.homogeneousLinear,
		}
		res, err := runConsensus(prob, consensusOptions{
			method:        e.method,
			subsetSize:    e.dims + 1,
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
		pos = res.model.(*rangingModel).pos
		inliers = res.inliers
		residuals = res.residuals
		numInliers = res.numInliers
		iterations = res.iterations
	}

	// Refine on the final inlier set
	var cov *mat.Dense
	if e.method == MethodNone || e.refineResult {
		inPos := make([]Point, 0, numInliers)
		inDists := make([]float64, 0, numInliers)
		inReadings := make([]Reading, 0, numInliers)
		for i, ok := range inliers {
			if ok {
				inPos = append(inPos, positions[i])
				inDists = append(inDists, dists[i])
				inReadings = append(inReadings, e.readings[i])
			}
		}

		if e.method != MethodNone {
			// Weighted linear refit before the nonlinear stage
			if p, err := solveLinearTrilateration(inPos, inDists, rangingWeights(inReadings, nil, e.useReadingCov), e.homogeneousLinear); err == nil {
				pos = p
			}
		}

		if e.nonLinearEnabled {
			start := pos
			if start == nil {
				start = e.initialPosition
			}
			w := rangingWeights(inReadings, pos, e.useReadingCov)
			refined, c, err := fitRangingNonLinear(inPos, inDists, w, start)
			if err != nil {
				return nil, fmt.Errorf("%w: refinement: %v", ErrEstimation, err)
			}
			pos = refined
			cov = c
		}
	}

	sol := newSolution()
	sol.Position = pos
	if e.keepCovariance && cov != nil {
		sol.PositionCovariance = symFromDense(cov)
	}
	sol.NumInliers = numInliers
	sol.Iterations = iterations
	if e.keepInliers {
		sol.Inliers = inliers
	}
	if e.keepResiduals {
		if residuals == nil {
			residuals = make([]float64, n)
			for i := range positions {
				residuals[i] = pos.DistanceTo(positions[i]) - dists[i]
			}
		}
		sol.Residuals = residuals
	}
	sol.Source = &LocatedRadioSource{
		Source:              e.readings[0].source,
		Position:            pos.Clone(),
		PositionCovariance:  cloneSym(sol.PositionCovariance),
		TransmittedPowerdBm: math.NaN(),
		PathLossExponent:    math.NaN(),
	}
	return sol, nil
}

//-------------------------------------------------------------------
// Ranging consensus problem
//-------------------------------------------------------------------

type rangingProblem struct {
	positions   []Point
	dists       []float64
	homogeneous bool
}

func (p *rangingProblem) numReadings() int {
	return len(p.positions)
}

func (p *rangingProblem) fitSample(sample []int) (consensusModel, error) {
	ps := make([]Point, len(sample))
	ds := make([]float64, len(sample))
	for i, idx := range sample {
		ps[i] = p.positions[idx]
		ds[i] = p.dists[idx]
	}
	pos, err := solveLinearTrilateration(ps, ds, nil, p.homogeneous)
	if err != nil {
		return nil, err
	}
	return &rangingModel{pos: pos, positions: p.positions, dists: p.dists}, nil
}

type rangingModel struct {
	pos       Point
	positions []Point
	dists     []float64
}

func (m *rangingModel) residual(i int) float64 {
	return m.pos.DistanceTo(m.positions[i]) - m.dists[i]
}

//-------------------------------------------------------------------
// Weights and nonlinear fit
//-------------------------------------------------------------------

// rangingWeights derives inverse-variance weights from the ranging standard
// deviations, folding in the receiver position covariance projected on the
// line of sight when requested and a position estimate is available.
// Returns nil (unit weights) when no reading carries uncertainty data.
func rangingWeights(readings []Reading, pos Point, useCov bool) []float64 {
	any := false
	w := make([]float64, len(readings))
	for i, r := range readings {
		v := SQ(r.distanceStdDev)
		if r.distanceStdDev > 0 {
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
				v += mat.Dot(uv, &cu)
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

// fitRangingNonLinear runs the damped least-squares refinement of the
// position against the ranging residuals.
func fitRangingNonLinear(positions []Point, dists, w []float64, start Point) (Point, *mat.Dense, error) {
	if start == nil {
		return nil, nil, fmt.Errorf("no starting position")
	}
	dims := start.Dims()
	params := make([]float64, dims)
	copy(params, start)

	fn := func(pr []float64, i int, jac []float64) float64 {
		d2 := 0.0
		for j := 0; j < dims; j++ {
			d2 += SQ(pr[j] - positions[i][j])
		}
		if d2 < SQ(minSampleDistance) {
			d2 = SQ(minSampleDistance)
		}
		d := math.Sqrt(d2)
		for j := 0; j < dims; j++ {
			jac[j] = (pr[j] - positions[i][j]) / d
		}
		return d - dists[i]
	}

	cov, err := solveLM(params, len(positions), fn, w)
	if err != nil {
		return nil, nil, err
	}
	pos := make(Point, dims)
	copy(pos, params)
	return pos, cov, nil
}

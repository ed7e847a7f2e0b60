// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.25
//

package radiolocate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/sampleuv"
)

//-------------------------------------------------------------------
// RobustMethod
//-------------------------------------------------------------------

// RobustMethod selects the sample-consensus policy used to reject outlier
// readings. MethodNone fits all readings directly without outlier rejection.
type RobustMethod int

const (
	MethodNone RobustMethod = iota
	MethodRANSAC
	MethodLMedS
	MethodMSAC
	MethodPROSAC
	MethodPROMedS
)

func (m RobustMethod) String() string {
	switch m {
	case MethodNone:
		return "NONE"
	case MethodRANSAC:
		return "RANSAC"
	case MethodLMedS:
		return "LMEDS"
	case MethodMSAC:
		return "MSAC"
	case MethodPROSAC:
		return "PROSAC"
	case MethodPROMedS:
		return "PROMEDS"
	default:
		return "UNKNOWN!"
	}
}

// ParseRobustMethod reads a method name, case insensitive.
func ParseRobustMethod(s string) (RobustMethod, error) {
	switch strings.ToUpper(s) {
	case "NONE", "":
		return MethodNone, nil
	case "RANSAC":
		return MethodRANSAC, nil
	case "LMEDS":
		return MethodLMedS, nil
	case "MSAC":
		return MethodMSAC, nil
	case "PROSAC":
		return MethodPROSAC, nil
	case "PROMEDS":
		return MethodPROMedS, nil
	default:
		return MethodNone, argErrorf("unknown robust method %q", s)
	}
}

// requiresQuality reports whether the method samples by reading quality and
// therefore needs quality scores.
func (m RobustMethod) requiresQuality() bool {
	return m == MethodPROSAC || m == MethodPROMedS
}

// medianBased reports whether the method minimizes the median squared
// residual instead of thresholding inliers. Median methods run to the
// deterministic iteration bound derived from the confidence.
func (m RobustMethod) medianBased() bool {
	return m == MethodLMedS || m == MethodPROMedS
}

//-------------------------------------------------------------------
// Consensus engine
//-------------------------------------------------------------------

// consensusModel is a candidate fitted on a preliminary subset; it scores
// any reading by its residual against the model.
type consensusModel interface {
	residual(i int) float64
}

// consensusFitter fits candidate models on preliminary subsets of readings.
type consensusFitter interface {
	numReadings() int
	fitSample(sample []int) (consensusModel, error)
}

type consensusOptions struct {
	method        RobustMethod
	subsetSize    int
	threshold     float64
	confidence    float64
	maxIterations int
	progressDelta float64
	quality       []float64 // required by quality-based methods
	seed          uint64
	onIteration   func(iteration int)
	onProgress    func(progress float64)
}

type consensusResult struct {
	model      consensusModel
	inliers    []bool
	residuals  []float64
	numInliers int
	iterations int
}

// runConsensus draws preliminary subsets, fits candidates and converges on
// the best consensus set according to the selected method. Malformed
// subsets are skipped and count toward the iteration budget; only a fully
// exhausted budget with no usable candidate is fatal.
func runConsensus(f consensusFitter, opt consensusOptions) (*consensusResult, error) {

	n := f.numReadings()
	m := opt.subsetSize
	if n < m || m < 1 {
		return nil, fmt.Errorf("%w: %d readings for subsets of %d", ErrNotReady, n, m)
	}

	src := rand.NewSource(opt.seed)
	rng := rand.New(src)

	// Quality-ordered index list (stable, so ties keep original order)
	var ordered []int
	if opt.method == MethodPROSAC {
		ordered = make([]int, n)
		for i := range ordered {
			ordered[i] = i
		}
		sort.SliceStable(ordered, func(a, b int) bool {
			return opt.quality[ordered[a]] > opt.quality[ordered[b]]
		})
	}

	// Strictly positive sampling weights for quality-weighted draws
	var sampleWeights []float64
	if opt.method == MethodPROMedS {
		min := opt.quality[0]
		for _, q := range opt.quality {
			if q < min {
				min = q
			}
		}
		sampleWeights = make([]float64, n)
		for i, q := range opt.quality {
			sampleWeights[i] = q - min + 1e-3
		}
	}

	bound := opt.maxIterations
	if opt.method.medianBased() {
		// Deterministic bound assuming at least half the readings are inliers
		if b := iterationBound(opt.confidence, 0.5, m); b < bound {
			bound = b
		}
	}

	thrSq := SQ(opt.threshold)
	var (
		best          consensusModel
		bestResiduals []float64
		bestCost      = math.Inf(1)
		bestInliers   = -1
		bestSumRes    = math.Inf(1)
		lastProgress  float64
		iterations    int
	)

	residuals := make([]float64, n)
	sqBuf := make([]float64, n)

	for iter := 0; iter < bound && iter < opt.maxIterations; iter++ {
		iterations = iter + 1

		sample := drawSample(opt.method, iter, n, m, rng, src, ordered, sampleWeights)
		model, err := f.fitSample(sample)

		if opt.onIteration != nil {
			opt.onIteration(iter)
		}
		if opt.onProgress != nil {
			p := float64(iter+1) / float64(bound)
			if p > 1 {
				p = 1
			}
			if p-lastProgress >= opt.progressDelta {
				lastProgress = p
				opt.onProgress(p)
			}
		}

		if err != nil {
			logger.Debugf("consensus iteration %d: degenerate sample skipped: %v", iter, err)
			continue
		}

		for i := 0; i < n; i++ {
			residuals[i] = model.residual(i)
		}

		switch opt.method {
		case MethodLMedS, MethodPROMedS:
			for i, r := range residuals {
				sqBuf[i] = SQ(r)
			}
			sort.Float64s(sqBuf)
			cost := stat.Quantile(0.5, stat.Empirical, sqBuf, nil)
			if cost < bestCost {
				bestCost = cost
				best = model
				bestResiduals = cloneFloats(residuals)
				logger.Debugf("consensus iteration %d: median cost %g", iter, cost)
			}

		case MethodMSAC:
			cost := 0.0
			count := 0
			for _, r := range residuals {
				rsq := SQ(r)
				if rsq <= thrSq {
					cost += rsq
					count++
				} else {
					cost += thrSq
				}
			}
			if cost < bestCost {
				bestCost = cost
				best = model
				bestResiduals = cloneFloats(residuals)
				bound = shrinkBound(bound, iter, opt.confidence, count, n, m)
				logger.Debugf("consensus iteration %d: cost %g, %d/%d inliers", iter, cost, count, n)
			}

		default: // MethodRANSAC, MethodPROSAC
			count := 0
			sumRes := 0.0
			for _, r := range residuals {
				if math.Abs(r) <= opt.threshold {
					count++
					sumRes += math.Abs(r)
				}
			}
			// Tie-break on the smaller inlier residual sum
			if count > bestInliers || (count == bestInliers && sumRes < bestSumRes) {
				bestInliers = count
				bestSumRes = sumRes
				best = model
				bestResiduals = cloneFloats(residuals)
				bound = shrinkBound(bound, iter, opt.confidence, count, n, m)
				logger.Debugf("consensus iteration %d: %d/%d inliers", iter, count, n)
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w after %d iterations", ErrNoConsensus, iterations)
	}

	inliers := make([]bool, n)
	numInliers := 0
	if opt.method.medianBased() {
		// Robust scale cut; the scale is floored so noise-free data still
		// classifies inliers.
		factor := 1.0
		if n > m {
			factor = 1 + 5/float64(n-m)
		}
		s := 1.4826 * factor * math.Sqrt(bestCost)
		if s < minRobustScale {
			s = minRobustScale
		}
		for i, r := range bestResiduals {
			if math.Abs(r) <= 2.5*s {
				inliers[i] = true
				numInliers++
			}
		}
	} else {
		for i, r := range bestResiduals {
			if math.Abs(r) <= opt.threshold {
				inliers[i] = true
				numInliers++
			}
		}
	}

	if numInliers < m {
		return nil, fmt.Errorf("%w: best candidate keeps %d of %d readings", ErrNoConsensus, numInliers, n)
	}

	if opt.onProgress != nil && lastProgress < 1 {
		opt.onProgress(1)
	}

	return &consensusResult{
		model:      best,
		inliers:    inliers,
		residuals:  bestResiduals,
		numInliers: numInliers,
		iterations: iterations,
	}, nil
}

// drawSample draws a preliminary subset of size m according to the method's
// sampling policy.
func drawSample(method RobustMethod, iter, n, m int, rng *rand.Rand, src rand.Source,
	ordered []int, weights []float64) []int {

	switch method {
	case MethodPROSAC:
		// Deterministic growing window over quality-ordered readings: the
		// window's newest reading always joins the sample, the rest is drawn
		// from the readings above it.
		wnd := m + iter
		if wnd > n {
			wnd = n
		}
		if wnd == m {
			return cloneInts(ordered[:m])
		}
		sample := make([]int, 0, m)
		sample = append(sample, ordered[wnd-1])
		perm := rng.Perm(wnd - 1)
		for _, j := range perm[:m-1] {
			sample = append(sample, ordered[j])
		}
		return sample

	case MethodPROMedS:
		// Quality-weighted draw without replacement
		wcopy := cloneFloats(weights)
		wt := sampleuv.NewWeighted(wcopy, src)
		sample := make([]int, 0, m)
		for len(sample) < m {
			idx, ok := wt.Take()
			if !ok {
				break
			}
			sample = append(sample, idx)
		}
		return sample

	default:
		return rng.Perm(n)[:m]
	}
}

// iterationBound is the number of subsets needed to draw at least one
// all-inlier subset with the requested confidence.
func iterationBound(confidence, inlierRatio float64, m int) int {
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	if inlierRatio >= 1 {
		return 1
	}
	pw := math.Pow(inlierRatio, float64(m))
	if pw < 1e-12 {
		return math.MaxInt32
	}
	den := math.Log(1 - pw)
	if den >= 0 {
		return 1
	}
	it := math.Ceil(math.Log(1-confidence) / den)
	if it < 1 {
		return 1
	}
	if it > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(it)
}

// shrinkBound re-derives the adaptive iteration bound from the current best
// inlier ratio, never below the next iteration.
func shrinkBound(bound, iter int, confidence float64, inliers, n, m int) int {
	nb := iterationBound(confidence, float64(inliers)/float64(n), m)
	if nb < bound {
		if nb <= iter+1 {
			return iter + 1
		}
		return nb
	}
	return bound
}

func cloneFloats(s []float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	return c
}

func cloneInts(s []int) []int {
	c := make([]int, len(s))
	copy(c, s)
	return c
}

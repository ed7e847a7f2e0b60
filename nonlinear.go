// Copyright (c) 2026 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.8.23
//

package radiolocate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Damped least-squares (Levenberg-Marquardt) refinement shared by the
// ranging and RSSI fits. The model is supplied as a residual/Jacobian
// callback; the parameter covariance is (J^t W J)^-1 at convergence.

// Calculation constants for the refinement loop
const (
	lmMaxIterations  = 50    // Maximum number of outer iterations
	lmMaxLambdaSteps = 20    // Maximum damping increases per iteration
	lmStepTolerance  = 1e-10 // Convergence threshold on the parameter step
	lmCostTolerance  = 1e-20 // Cost below this is treated as converged
	lmInitialLambda  = 1e-3
	lmLambdaFactor   = 10.0
)

// lmFunc evaluates residual i for the given parameters and fills jac with
// the row of partial derivatives.
type lmFunc func(params []float64, i int, jac []float64) float64

// solveLM refines params in place over n residuals and returns the
// parameter covariance (J^t W J)^-1 at convergence. w holds one weight per
// residual, nil for unit weights.
func solveLM(params []float64, n int, fn lmFunc, w []float64) (*mat.Dense, error) {

	p := len(params)
	if n < p {
		return nil, fmt.Errorf("not enough residuals: %d < %d", n, p)
	}

	J := mat.NewDense(n, p, nil)
	f := make([]float64, n)
	jrow := make([]float64, p)

	weight := func(i int) float64 {
		if w == nil {
			return 1.0
		}
		if w[i] < minWeight {
			return minWeight
		}
		return w[i]
	}

	// Evaluate residuals and the Jacobian, returning the weighted cost
	evaluate := func(pr []float64, fillJac bool) float64 {
		cost := 0.0
		for i := 0; i < n; i++ {
			f[i] = fn(pr, i, jrow)
			if fillJac {
				J.SetRow(i, jrow)
			}
			cost += weight(i) * SQ(f[i])
		}
		return cost
	}

	buildNormal := func() (*mat.Dense, *mat.VecDense) {
		A := mat.NewDense(p, p, nil)
		g := mat.NewVecDense(p, nil)
		for i := 0; i < n; i++ {
			wi := weight(i)
			for j := 0; j < p; j++ {
				gij := J.At(i, j)
				g.SetVec(j, g.AtVec(j)+wi*gij*f[i])
				for k := j; k < p; k++ {
					A.Set(j, k, A.At(j, k)+wi*gij*J.At(i, k))
				}
			}
		}
		for j := 0; j < p; j++ {
			for k := 0; k < j; k++ {
				A.Set(j, k, A.At(k, j))
			}
		}
		return A, g
	}

	lambda := lmInitialLambda
	cost := evaluate(params, true)
	trial := make([]float64, p)

	for loop := 0; loop < lmMaxIterations; loop++ {

		if cost < lmCostTolerance {
			break
		}

		A, g := buildNormal()

		// Try increasing damping until a step reduces the cost
		accepted := false
		var step float64
		for try := 0; try < lmMaxLambdaSteps; try++ {
			Ad := mat.NewDense(p, p, nil)
			Ad.Copy(A)
			for j := 0; j < p; j++ {
				d := A.At(j, j)
				if d <= 0 {
					d = 1.0
				}
				Ad.Set(j, j, d*(1+lambda))
			}
			dx := mat.NewVecDense(p, nil)
			gneg := mat.NewVecDense(p, nil)
			for j := 0; j < p; j++ {
				gneg.SetVec(j, -g.AtVec(j))
			}
			if err := dx.SolveVec(Ad, gneg); err != nil {
				lambda *= lmLambdaFactor
				continue
			}
			step = 0
			for j := 0; j < p; j++ {
				trial[j] = params[j] + dx.AtVec(j)
				if s := math.Abs(dx.AtVec(j)); s > step {
					step = s
				}
			}
			trialCost := evaluate(trial, false)
			if trialCost < cost {
				copy(params, trial)
				cost = trialCost
				lambda /= lmLambdaFactor
				if lambda < 1e-12 {
					lambda = 1e-12
				}
				accepted = true
				break
			}
			lambda *= lmLambdaFactor
		}

		// Refresh residuals and Jacobian at the accepted parameters
		cost = evaluate(params, true)

		if !accepted || step < lmStepTolerance {
			break
		}
	}

	// Covariance from the undamped normal matrix at convergence
	A, _ := buildNormal()
	cov := mat.NewDense(p, p, nil)
	if err := cov.Inverse(A); err != nil {
		return nil, fmt.Errorf("normal matrix not invertible: %w", err)
	}
	return cov, nil
}

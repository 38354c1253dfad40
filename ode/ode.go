// Package ode implements explicit embedded Runge-Kutta methods
// https://en.wikipedia.org/wiki/Runge–Kutta_methods for first order
// ordinary differential equations x'(t) = f(t, x(t)).
package ode

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// System is the derivative function of a first order ODE. It must write
// f(t, x) into dxdt, which is preallocated with the same length as x.
type System func(t float64, x *mat.VecDense, dxdt *mat.VecDense)

// ErrNoConvergence is returned when the adaptive step subdivision exceeds
// its iteration budget without reaching the error target.
var ErrNoConvergence = errors.New("ode: adaptive Runge-Kutta did not converge")

// butcherTableau describes an explicit Runge-Kutta method, see
// https://en.wikipedia.org/wiki/Runge–Kutta_methods. A method with two
// weight rows carries an embedded lower order solution used for local
// error estimation.
type butcherTableau struct {
	stages  int
	nodes   []float64
	weights [][]float64
	matrix  [][]float64
}

// RungeKutta holds the Butcher tableau describing the method together
// with per-instance scratch storage. An instance is stateful across a
// single Step or Integrate call and must not be shared between callers
// integrating independent trajectories.
type RungeKutta struct {
	tableau butcherTableau

	// scratch, sized lazily to the problem dimension
	k    []*mat.VecDense
	tmp  *mat.VecDense
	next *mat.VecDense
	dim  int
}

// NewDormandPrince45 returns a Dormand-Prince 5(4) stepper: fifth order
// solution with an embedded fourth order error estimate.
// https://en.wikipedia.org/wiki/Dormand–Prince_method
func NewDormandPrince45() *RungeKutta {
	var t butcherTableau
	t.stages = 7
	t.nodes = []float64{0, 1. / 5., 3. / 10., 4. / 5., 8. / 9., 1., 1.}
	t.weights = [][]float64{
		{35. / 384., 0, 500. / 1113., 125. / 192., -2187. / 6784., 11. / 84., 0},
		{5179. / 57600., 0, 7571. / 16695., 393. / 640., -92097. / 339200., 187. / 2100., 1. / 40.},
	}
	t.matrix = [][]float64{
		nil,
		{1. / 5.},
		{3. / 40., 9. / 40.},
		{44. / 45., -56. / 15., 32. / 9.},
		{19372. / 6561., -25360. / 2187., 64448. / 6561., -212. / 729.},
		{9017. / 3168., -355. / 33., 46732. / 5247., 49. / 176., -5103. / 18656.},
		{35. / 384., 0, 500. / 1113., 125. / 192., -2187. / 6784., 11. / 84.},
	}
	return &RungeKutta{tableau: t}
}

// NewFehlberg45 returns a Runge-Kutta-Fehlberg 4(5) stepper.
// https://en.wikipedia.org/wiki/Runge–Kutta–Fehlberg_method
func NewFehlberg45() *RungeKutta {
	var t butcherTableau
	t.stages = 6
	t.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	t.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	t.matrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	return &RungeKutta{tableau: t}
}

// Reset discards all internal scratch state. Call between logically
// independent integrations to guarantee no state leaks across them.
func (rk *RungeKutta) Reset() {
	rk.k = nil
	rk.tmp = nil
	rk.next = nil
	rk.dim = 0
}

func (rk *RungeKutta) resize(dim int) {
	if rk.dim == dim {
		return
	}
	rk.k = make([]*mat.VecDense, rk.tableau.stages)
	for i := range rk.k {
		rk.k[i] = mat.NewVecDense(dim, nil)
	}
	rk.tmp = mat.NewVecDense(dim, nil)
	rk.next = mat.NewVecDense(dim, nil)
	rk.dim = dim
}

// Step advances x in place over a single step of length h starting at
// time t. It returns the embedded local error estimate, the sum of
// absolute componentwise differences between the high and low order
// solutions, or zero when the tableau carries no embedded solution.
func (rk *RungeKutta) Step(t, h float64, x *mat.VecDense, f System) float64 {
	rk.resize(x.Len())

	// Evaluate the derivative stages according to the tableau.
	for i := 0; i < rk.tableau.stages; i++ {
		rk.tmp.CopyVec(x)
		for j, a := range rk.tableau.matrix[i] {
			rk.tmp.AddScaledVec(rk.tmp, h*a, rk.k[j])
		}
		f(t+h*rk.tableau.nodes[i], rk.tmp, rk.k[i])
	}

	// Combine the stages with the high order weights and accumulate the
	// difference against the embedded low order weights.
	rk.next.CopyVec(x)
	errEstimate := 0.
	embedded := len(rk.tableau.weights) == 2
	if embedded {
		rk.tmp.Zero()
	}
	for i, k := range rk.k {
		rk.next.AddScaledVec(rk.next, h*rk.tableau.weights[0][i], k)
		if embedded {
			rk.tmp.AddScaledVec(rk.tmp, h*(rk.tableau.weights[0][i]-rk.tableau.weights[1][i]), k)
		}
	}
	if embedded {
		for i := 0; i < rk.tmp.Len(); i++ {
			errEstimate += math.Abs(rk.tmp.AtVec(i))
		}
	}
	x.CopyVec(rk.next)
	return errEstimate
}

// Integrate advances x in place from t0 to t1, subdividing the interval
// until every accepted step has a local error estimate below tol. The
// iteration budget bounds the total number of attempted steps.
func (rk *RungeKutta) Integrate(t0, t1, tol float64, x *mat.VecDense, f System) error {
	const maxIterations = 10000

	rk.resize(x.Len())
	accepted := mat.NewVecDense(x.Len(), nil)
	trial := mat.NewVecDense(x.Len(), nil)
	accepted.CopyVec(x)

	tnow := t0
	count := 0
	for tnow < t1 {
		tnext := t1
		for {
			trial.CopyVec(accepted)
			stepErr := rk.Step(tnow, tnext-tnow, trial, f)
			if stepErr < tol {
				break
			}
			// Halve the integration interval and try again. If the
			// width underflows, a zero-width step would be accepted with
			// a zero error estimate and time would never advance.
			tnext = (tnext-tnow)/2. + tnow
			if tnext <= tnow {
				return ErrNoConvergence
			}

			count++
			if count >= maxIterations {
				return ErrNoConvergence
			}
		}
		accepted.CopyVec(trial)
		tnow = tnext
	}
	x.CopyVec(accepted)
	return nil
}

// Package simulate runs fixed-rate closed-loop simulations of a discrete
// time linear plant, optionally feeding a noisy measurement stream to a
// state estimator.
package simulate

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/oliverlee/biketest/bicycle"
	"github.com/oliverlee/biketest/observer"
	"github.com/oliverlee/biketest/signal"
)

// NoiseFunc perturbs an output sample in place, e.g. by adding
// measurement noise drawn from a generator. The step index identifies
// the sample.
type NoiseFunc func(step int, y *mat.VecDense)

// Record holds the trajectories produced by a run. All slices have one
// entry per step, including the initial condition at index 0.
type Record struct {
	States       []*mat.VecDense
	Outputs      []*mat.VecDense
	Measurements []*mat.VecDense
	Estimates    []*mat.VecDense // nil when no estimator was attached
}

// Run simulates the plant for steps samples starting from x0, driving it
// with the input profile evaluated at each sample instant. When est is
// non-nil it is updated once per step from the (optionally noise
// corrupted) measurement and its estimate is recorded. The plant must be
// discretized (nonzero sample time).
func Run(plant bicycle.DiscreteLinear, x0 mat.Vector, input signal.VectorFunction, est *observer.Kalman, noise NoiseFunc, steps int) (*Record, error) {
	dt := plant.DT()
	if dt == 0 {
		return nil, errors.New("simulate: plant is not discretized")
	}

	rec := &Record{
		States:       make([]*mat.VecDense, 0, steps+1),
		Outputs:      make([]*mat.VecDense, 0, steps+1),
		Measurements: make([]*mat.VecDense, 0, steps+1),
	}
	if est != nil {
		rec.Estimates = make([]*mat.VecDense, 0, steps+1)
	}

	x := mat.VecDenseCopyOf(x0)
	measure := func(step int, x *mat.VecDense, u mat.Vector) (y, z *mat.VecDense) {
		y = plant.Output(x, u)
		z = mat.VecDenseCopyOf(y)
		if noise != nil {
			noise(step, z)
		}
		return y, z
	}
	record := func(x, y, z *mat.VecDense) {
		rec.States = append(rec.States, mat.VecDenseCopyOf(x))
		rec.Outputs = append(rec.Outputs, y)
		rec.Measurements = append(rec.Measurements, z)
		if est != nil {
			rec.Estimates = append(rec.Estimates, est.X())
		}
	}

	// The initial sample is recorded but its measurement is not fed to
	// the estimator.
	y, z := measure(0, x, input.Value(0))
	record(x, y, z)

	for step := 1; step <= steps; step++ {
		u := input.Value(float64(step-1) * dt)
		x = plant.NextState(x, u)
		y, z = measure(step, x, u)
		if est != nil {
			est.TimeUpdate(u)
			if err := est.MeasurementUpdate(z, u); err != nil {
				return rec, err
			}
		}
		record(x, y, z)
	}
	return rec, nil
}

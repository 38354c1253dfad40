package simulate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/oliverlee/biketest/bicycle"
	"github.com/oliverlee/biketest/observer"
	"github.com/oliverlee/biketest/signal"
	"github.com/oliverlee/biketest/simulate"
)

const dt = 1.0 / 200

func newPlant(t *testing.T) *bicycle.Bicycle {
	t.Helper()
	b, err := bicycle.New(bicycle.Benchmark(), 5.0, dt)
	require.NoError(t, err)
	return b
}

func TestRunRejectsUndiscretizedPlant(t *testing.T) {
	b, err := bicycle.New(bicycle.Benchmark(), 5.0, 0)
	require.NoError(t, err)

	_, err = simulate.Run(b, mat.NewVecDense(bicycle.StateSize, nil),
		signal.Zero(bicycle.InputSize), nil, nil, 10)
	assert.Error(t, err)
}

func TestRunOpenLoop(t *testing.T) {
	plant := newPlant(t)
	x0 := mat.NewVecDense(bicycle.StateSize, []float64{0, 0.05, -0.02, 0, 0})

	const steps = 20
	rec, err := simulate.Run(plant, x0, signal.Zero(bicycle.InputSize), nil, nil, steps)
	require.NoError(t, err)

	require.Len(t, rec.States, steps+1)
	require.Len(t, rec.Outputs, steps+1)
	require.Len(t, rec.Measurements, steps+1)
	assert.Nil(t, rec.Estimates)

	// The recorded trajectory is the discrete transition applied
	// repeatedly.
	assert.True(t, mat.Equal(x0, rec.States[0]))
	x := mat.VecDenseCopyOf(x0)
	for i := 1; i <= steps; i++ {
		x = plant.NextState(x, nil)
		assert.True(t, mat.EqualApprox(x, rec.States[i], 1e-12), "step %d", i)
	}

	// Without a noise function the measurements equal the outputs.
	for i := range rec.Outputs {
		assert.True(t, mat.Equal(rec.Outputs[i], rec.Measurements[i]))
	}
}

func TestRunAppliesNoise(t *testing.T) {
	plant := newPlant(t)

	noise := func(_ int, y *mat.VecDense) {
		y.SetVec(0, y.AtVec(0)+0.001)
	}
	rec, err := simulate.Run(plant, mat.NewVecDense(bicycle.StateSize, nil),
		signal.Zero(bicycle.InputSize), nil, noise, 5)
	require.NoError(t, err)

	for i := range rec.Outputs {
		assert.InDelta(t, rec.Outputs[i].AtVec(0)+0.001, rec.Measurements[i].AtVec(0), 1e-15)
		assert.Equal(t, rec.Outputs[i].AtVec(1), rec.Measurements[i].AtVec(1))
	}
}

func TestRunWithEstimator(t *testing.T) {
	plant := newPlant(t)
	n := plant.StateSize()
	l := plant.OutputSize()

	x0 := mat.NewVecDense(n, []float64{0, 0.05, -0.02, 0.1, 0.05})
	r := mat.NewDense(l, l, nil)
	for i := 0; i < l; i++ {
		r.Set(i, i, 1e-4)
	}
	// Exact initial estimate with zero covariance: the estimator must
	// reproduce the plant trajectory.
	kf, err := observer.NewKalman(plant, mat.NewDense(n, n, nil), r, x0, mat.NewDense(n, n, nil))
	require.NoError(t, err)

	const steps = 50
	input := signal.Pulse(0.5, 0, 0.1, mat.NewVecDense(bicycle.InputSize, []float64{0, 1}))
	rec, err := simulate.Run(plant, x0, input, kf, nil, steps)
	require.NoError(t, err)

	require.Len(t, rec.Estimates, steps+1)
	for i, estimate := range rec.Estimates {
		assert.True(t, mat.EqualApprox(rec.States[i], estimate, 1e-9), "step %d", i)
	}
}

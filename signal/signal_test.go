package signal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestValue(t *testing.T) {
	vf := New(func(t float64) float64 { return 2 * t }, mat.NewVecDense(2, []float64{0, 1}))

	assert.True(t, mat.Equal(mat.NewVecDense(2, []float64{0, 6}), vf.Value(3)))
	// The direction vector is not modified by evaluation.
	assert.True(t, mat.Equal(mat.NewVecDense(2, []float64{0, 1}), vf.B))
}

func TestZero(t *testing.T) {
	vf := Zero(3)
	for _, tm := range []float64{0, 1, 100} {
		assert.True(t, mat.Equal(mat.NewVecDense(3, nil), vf.Value(tm)))
	}
}

func TestSinusoid(t *testing.T) {
	const (
		amplitude = 2.0
		frequency = 0.5 // period of 2 seconds
	)
	vf := Sinusoid(amplitude, frequency, mat.NewVecDense(2, []float64{0, 1}))

	assert.InDelta(t, 0, vf.Value(0).AtVec(1), 1e-12)
	assert.InDelta(t, amplitude, vf.Value(0.5).AtVec(1), 1e-12)
	assert.InDelta(t, 0, vf.Value(1).AtVec(1), 1e-12)
	assert.InDelta(t, -amplitude, vf.Value(1.5).AtVec(1), 1e-12)
	assert.InDelta(t, 0, vf.Value(0.5).AtVec(0), 1e-12)
}

func TestPulse(t *testing.T) {
	vf := Pulse(3, 1, 2, mat.NewVecDense(1, []float64{1}))

	assert.Equal(t, 0., vf.Value(0.999).AtVec(0))
	assert.Equal(t, 3., vf.Value(1).AtVec(0))
	assert.Equal(t, 3., vf.Value(1.5).AtVec(0))
	assert.Equal(t, 0., vf.Value(2).AtVec(0))
	assert.Equal(t, 0., vf.Value(math.Inf(1)).AtVec(0))
}

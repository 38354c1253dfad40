package bicycle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With zero roll and steer both contact points lie in the symmetry plane
// and the constraint is satisfied exactly at pitch = lambda.
func TestConstraintPitchUpright(t *testing.T) {
	b := newBenchmarkBicycle(t, 1.0, 0)

	pitch, err := b.SolveConstraintPitch(0, 0, 0)
	require.NoError(t, err)
	assert.InDelta(t, b.SteerAxisTilt(), pitch, 1e-10)

	f, _ := b.constraintPitch(0, 0, b.SteerAxisTilt())
	assert.InDelta(t, 0, f, 1e-14)
}

func TestConstraintPitchResidual(t *testing.T) {
	b := newBenchmarkBicycle(t, 1.0, 0)

	cases := []struct{ roll, steer float64 }{
		{0.05, 0.1},
		{-0.2, 0.3},
		{0.4, -0.6},
		{-0.5, -0.5},
		{1.0, 0.8},
	}
	guess := b.SteerAxisTilt()
	for _, tc := range cases {
		pitch, err := b.SolveConstraintPitch(tc.roll, tc.steer, guess)
		require.NoError(t, err, "roll = %v, steer = %v", tc.roll, tc.steer)
		assert.Greater(t, pitch, -math.Pi/2)
		assert.Less(t, pitch, math.Pi/2)

		f, _ := b.constraintPitch(tc.roll, tc.steer, pitch)
		assert.InDelta(t, 0, f, 1e-10, "roll = %v, steer = %v", tc.roll, tc.steer)
		guess = pitch
	}
}

// Seeding with the previous solution or with zero must reach the same
// root.
func TestConstraintPitchSeedIndependence(t *testing.T) {
	b := newBenchmarkBicycle(t, 1.0, 0)

	const roll, steer = 0.1, 0.2
	fromZero, err := b.SolveConstraintPitch(roll, steer, 0)
	require.NoError(t, err)
	fromTilt, err := b.SolveConstraintPitch(roll, steer, b.SteerAxisTilt())
	require.NoError(t, err)
	assert.InDelta(t, fromTilt, fromZero, 1e-10)
}

func TestConstraintPitchDerivative(t *testing.T) {
	b := newBenchmarkBicycle(t, 1.0, 0)

	const h = 1e-6
	for _, tc := range []struct{ roll, steer, pitch float64 }{
		{0, 0, 0.2},
		{0.1, 0.2, 0.3},
		{-0.3, 0.4, 0.1},
		{0.2, -0.1, -0.2},
	} {
		_, fp := b.constraintPitch(tc.roll, tc.steer, tc.pitch)
		fPlus, _ := b.constraintPitch(tc.roll, tc.steer, tc.pitch+h)
		fMinus, _ := b.constraintPitch(tc.roll, tc.steer, tc.pitch-h)
		numeric := (fPlus - fMinus) / (2 * h)
		assert.InDelta(t, numeric, fp, 1e-5*math.Max(math.Abs(numeric), 1),
			"roll = %v, steer = %v, pitch = %v", tc.roll, tc.steer, tc.pitch)
	}
}

// Pitch varies slowly along a trajectory, so reseeding with the previous
// value keeps the iteration near the root.
func TestConstraintPitchTracking(t *testing.T) {
	b := newBenchmarkBicycle(t, 1.0, 0)

	pitch := b.SteerAxisTilt()
	for i := 0; i <= 100; i++ {
		roll := 0.3 * math.Sin(float64(i)*0.05)
		steer := 0.2 * math.Cos(float64(i)*0.05)
		next, err := b.SolveConstraintPitch(roll, steer, pitch)
		require.NoError(t, err, "step %d", i)
		f, _ := b.constraintPitch(roll, steer, next)
		assert.InDelta(t, 0, f, 1e-10, "step %d", i)
		pitch = next
	}
}

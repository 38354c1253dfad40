package bicycle

import (
	"fmt"
	"math"
)

// Convergence target for the pitch constraint solve: two thirds of the
// float64 mantissa digits, matching the accuracy the seeded Newton
// iteration can reliably reach in a few steps.
const pitchDigits = 53 * 2 / 3

// Iteration budget for the constraint solve. The solver is seeded with
// the previous time step's pitch and normally converges in 2-3 steps;
// hitting the budget means the iteration diverged or stalled.
const pitchMaxIterations = 64

// SolveConstraintPitch returns the pitch angle placing both wheel contact
// points in the ground plane for the given roll and steer angles, valid
// for pitch in (-pi/2, pi/2). The Newton-Raphson iteration is seeded with
// guess; passing the previous time step's pitch exploits the slow
// inter-step variation for fast convergence. On failure the guess must
// not be reused as a pitch estimate.
func (b *Bicycle) SolveConstraintPitch(roll, steer, guess float64) (float64, error) {
	b.ensureMoore()

	const (
		min = -math.Pi / 2
		max = math.Pi / 2
	)
	tol := math.Ldexp(1, -pitchDigits)

	pitch := guess
	for i := 0; i < pitchMaxIterations; i++ {
		f, fp := b.constraintPitch(roll, steer, pitch)
		if fp == 0 {
			return 0, fmt.Errorf("%w: vanishing derivative at pitch %v", ErrPitchNoConvergence, pitch)
		}
		delta := f / fp
		pitch -= delta
		// Newton overshoot outside the valid interval: bisect back
		// toward the violated bound.
		if pitch <= min {
			pitch = ((pitch + delta) + min) / 2
		} else if pitch >= max {
			pitch = ((pitch + delta) + max) / 2
		}
		if math.Abs(delta) <= tol*math.Max(math.Abs(pitch), 1) {
			return pitch, nil
		}
	}
	return 0, fmt.Errorf("%w: iteration budget exhausted", ErrPitchNoConvergence)
}

// constraintPitch evaluates the holonomic ground contact constraint and
// its partial derivative with respect to pitch. The closed-form
// expressions derive from the contact geometry in terms of the Moore
// parameters d1, d2, d3 and the wheel radii; the grouped subterms below
// are shared factors of the generated expressions, not approximations.
func (b *Bicycle) constraintPitch(roll, steer, pitch float64) (f, fp float64) {
	sinPitch, cosPitch := math.Sincos(pitch)
	sinRoll, cosRoll := math.Sincos(roll)
	sinSteer, cosSteer := math.Sincos(steer)

	cosRollSq := cosRoll * cosRoll
	absCosRoll := math.Sqrt(cosRollSq)

	// front wheel contact direction term
	u := -sinPitch*cosRoll*cosSteer + sinRoll*sinSteer

	w2 := u*u + cosPitch*cosPitch*cosRollSq
	sw := math.Sqrt(w2)
	// e = -sw * d(sw)/d(pitch)
	e := u*cosPitch*cosRoll*cosSteer + sinPitch*cosPitch*cosRollSq

	rear := -b.d1*absCosRoll*sinPitch + b.d2*absCosRoll*cosPitch - b.rr*cosRoll

	num := (b.rf*cosPitch*cosPitch*cosRollSq+(b.d3*sw+b.rf*u)*u)*absCosRoll +
		sw*rear*cosRoll
	f = num / (sw * absCosRoll)

	fp = num*e/(w2*sw*absCosRoll) +
		((-b.d1*absCosRoll*cosPitch-b.d2*absCosRoll*sinPitch)*sw*cosRoll+
			-e*rear*cosRoll/sw+
			(-2*b.rf*sinPitch*cosPitch*cosRollSq-
				(b.d3*sw+b.rf*u)*cosPitch*cosRoll*cosSteer+
				(b.d3*(-e)/sw-b.rf*cosPitch*cosRoll*cosSteer)*u)*absCosRoll)/
			(sw * absCosRoll)
	return f, fp
}

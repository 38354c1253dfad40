// Package signal provides time-dependent input profiles for driving
// simulations. A profile is the decomposition of a vector valued input
// B*u(t) into a scalar function u(t) and a fixed direction vector B, for
// instance a steer torque pulse applied along the steer input axis.
package signal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// VectorFunction associates a scalar function U with a direction vector B
// so that Value(t) = U(t)*B.
type VectorFunction struct {
	U func(float64) float64
	B *mat.VecDense
}

// New returns a VectorFunction from a scalar function and direction vector.
func New(u func(float64) float64, b *mat.VecDense) VectorFunction {
	return VectorFunction{U: u, B: b}
}

// Value returns the vectorial function value at time t.
func (vf VectorFunction) Value(t float64) *mat.VecDense {
	var res mat.VecDense
	res.CloneFromVec(vf.B)
	res.ScaleVec(vf.U(t), &res)
	return &res
}

// Zero returns the identically zero profile of the given dimension.
func Zero(dim int) VectorFunction {
	return VectorFunction{
		U: func(float64) float64 { return 0 },
		B: mat.NewVecDense(dim, nil),
	}
}

// Sinusoid returns amplitude*sin(2*pi*frequency*t) along b.
func Sinusoid(amplitude, frequency float64, b *mat.VecDense) VectorFunction {
	return VectorFunction{
		U: func(t float64) float64 {
			return amplitude * math.Sin(2*math.Pi*frequency*t)
		},
		B: b,
	}
}

// Pulse returns a rectangular pulse of the given amplitude over [t0, t1)
// along b.
func Pulse(amplitude, t0, t1 float64, b *mat.VecDense) VectorFunction {
	return VectorFunction{
		U: func(t float64) float64 {
			if t >= t0 && t < t1 {
				return amplitude
			}
			return 0
		},
		B: b,
	}
}

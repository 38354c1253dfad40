package bicycle

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// gravitational constant [m/s^2]
const gravity = 9.80665

// Params collects the physical constants of the linearized model: the
// second order mass, damping and stiffness matrices together with the
// scalar geometry. M must be symmetric positive definite.
type Params struct {
	M  *mat.SymDense
	C1 *mat.Dense
	K0 *mat.Dense
	K2 *mat.Dense

	Wheelbase        float64 // w [m]
	Trail            float64 // c [m]
	SteerAxisTilt    float64 // lambda [rad]
	RearWheelRadius  float64 // rr [m]
	FrontWheelRadius float64 // rf [m]
}

// Benchmark returns the Whipple model benchmark parameter set from
// Meijaard et al. 2007, "Linearized dynamics equations for the balance
// and steer of a bicycle: a benchmark and review".
func Benchmark() Params {
	return Params{
		M: mat.NewSymDense(SecondOrderSize, []float64{
			80.81722, 2.31941332208709,
			2.31941332208709, 0.29784188199686,
		}),
		C1: mat.NewDense(SecondOrderSize, SecondOrderSize, []float64{
			0.0, 33.86641391492494,
			-0.85035641456978, 1.68540397397560,
		}),
		K0: mat.NewDense(SecondOrderSize, SecondOrderSize, []float64{
			-80.95, -2.59951685249872,
			-2.59951685249872, -0.80329488458618,
		}),
		K2: mat.NewDense(SecondOrderSize, SecondOrderSize, []float64{
			0.0, 76.59734589573222,
			0.0, 2.65431523794604,
		}),
		Wheelbase:        1.02,
		Trail:            0.08,
		SteerAxisTilt:    math.Pi / 10,
		RearWheelRadius:  0.3,
		FrontWheelRadius: 0.35,
	}
}

// defaultC selects yaw angle and steer angle as the model output.
func defaultC() *mat.Dense {
	return mat.NewDense(OutputSize, StateSize, []float64{
		1, 0, 0, 0, 0,
		0, 0, 1, 0, 0,
	})
}

// defaultD is the zero feedthrough matrix.
func defaultD() *mat.Dense {
	return mat.NewDense(OutputSize, InputSize, nil)
}

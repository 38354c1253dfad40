package bicycle

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vector sizes of the linearized model.
//
// state:     [yaw angle, roll angle, steer angle, roll rate, steer rate]
// input:     [roll torque, steer torque]
// output:    [yaw angle, steer angle] with the default C and D matrices
// auxiliary: [x rear contact, y rear contact, rear wheel angle, pitch angle]
//
// As C and D can be set after construction, the output fields may change
// from yaw angle and steer angle and the output index constants may no
// longer apply. It is the user's responsibility to ensure correct index
// access in that case.
const (
	StateSize       = 5
	InputSize       = 2
	OutputSize      = 2
	SecondOrderSize = 2 // second order (roll, steer) degrees of freedom
	AuxiliarySize   = 4
	FullStateSize   = AuxiliarySize + StateSize
)

// State vector indices. Yaw is included due to its linear relation to the
// other state elements.
const (
	StateYawAngle = iota
	StateRollAngle
	StateSteerAngle
	StateRollRate
	StateSteerRate
)

// Input vector indices.
const (
	InputRollTorque = iota
	InputSteerTorque
)

// Output vector indices, valid for the default C and D matrices.
const (
	OutputYawAngle = iota
	OutputSteerAngle
)

// Auxiliary state vector indices.
const (
	AuxX = iota
	AuxY
	AuxRearWheelAngle
	AuxPitchAngle
)

// Full state vector indices. Auxiliary state fields are always declared
// first.
const (
	FullX = iota
	FullY
	FullRearWheelAngle
	FullPitchAngle
	FullYawAngle
	FullRollAngle
	FullSteerAngle
	FullRollRate
	FullSteerRate
)

// IsAuxiliaryField reports whether a full state index addresses an
// auxiliary state field.
func IsAuxiliaryField(index int) bool {
	return index < AuxiliarySize
}

// DiscreteLinear is the discrete-time linear system capability contract.
// Generic algorithms (the Kalman observer, LQR and serialization
// collaborators) are written against this interface instead of a concrete
// model type. Matrices returned by the accessors are owned by the model
// and must not be modified by the caller.
type DiscreteLinear interface {
	StateSize() int
	InputSize() int
	OutputSize() int

	A() *mat.Dense
	B() *mat.Dense
	C() *mat.Dense
	D() *mat.Dense
	Ad() *mat.Dense
	Bd() *mat.Dense
	DT() float64

	// NextState returns Ad*x + Bd*u, the deterministic discrete-time
	// state transition. A nil u is treated as zero input.
	NextState(x, u mat.Vector) *mat.VecDense
	// Output returns C*x + D*u. A nil u is treated as zero input.
	Output(x, u mat.Vector) *mat.VecDense

	NormalizeState(x mat.Vector) *mat.VecDense
	NormalizeOutput(y mat.Vector) *mat.VecDense
}

// MakeFullState concatenates an auxiliary state and a dynamic state into
// a full state vector.
func MakeFullState(aux, x mat.Vector) *mat.VecDense {
	xf := mat.NewVecDense(FullStateSize, nil)
	for i := 0; i < AuxiliarySize; i++ {
		xf.SetVec(i, aux.AtVec(i))
	}
	for i := 0; i < StateSize; i++ {
		xf.SetVec(AuxiliarySize+i, x.AtVec(i))
	}
	return xf
}

// StatePart returns a copy of the dynamic state part of a full state.
func StatePart(xf mat.Vector) *mat.VecDense {
	x := mat.NewVecDense(StateSize, nil)
	for i := 0; i < StateSize; i++ {
		x.SetVec(i, xf.AtVec(AuxiliarySize+i))
	}
	return x
}

// AuxiliaryPart returns a copy of the auxiliary state part of a full state.
func AuxiliaryPart(xf mat.Vector) *mat.VecDense {
	aux := mat.NewVecDense(AuxiliarySize, nil)
	for i := 0; i < AuxiliarySize; i++ {
		aux.SetVec(i, xf.AtVec(i))
	}
	return aux
}

// wrapAngle maps an angle to (-2*pi, 2*pi). The wrap exists only to keep
// angles from growing toward infinity; rates are never wrapped.
func wrapAngle(angle float64) float64 {
	return math.Mod(angle, 2*math.Pi)
}

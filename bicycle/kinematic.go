package bicycle

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/oliverlee/biketest/ode"
)

// Kinematic is a quasi-static simplification of the Whipple model. Roll
// and steer rate and acceleration terms are dropped from the equations of
// motion, leaving
//
//	(g*K0 + v^2*K2) [roll, steer]' = u
//
// and the dynamic state is reconstructed directly from the yaw and steer
// angle measurement instead of integrated.
type Kinematic struct {
	Bicycle
	k       *mat.Dense // g*K0 + v^2*K2
	stepper *ode.RungeKutta
}

// NewKinematic returns a kinematic model for the given parameter set.
// The sample time must be nonzero as the measurement-driven update
// divides by it.
func NewKinematic(p Params, v, dt float64, opts ...Option) (*Kinematic, error) {
	base, err := New(p, v, dt, opts...)
	if err != nil {
		return nil, err
	}
	k := &Kinematic{
		Bicycle: *base,
		stepper: ode.NewDormandPrince45(),
	}
	k.setK()
	return k, nil
}

func (k *Kinematic) setK() {
	var vk2 mat.Dense
	k.k = mat.NewDense(SecondOrderSize, SecondOrderSize, nil)
	k.k.Scale(gravity, k.k0)
	vk2.Scale(k.v*k.v, k.k2)
	k.k.Add(k.k, &vk2)
}

// K returns the speed-dependent stiffness matrix g*K0 + v^2*K2. It is
// recomputed from the current parameters and speed on every call, so
// the promoted parameter setters can never leave it stale.
func (k *Kinematic) K() *mat.Dense {
	k.setK()
	return k.k
}

// NextStateFromMeasurement reconstructs the next dynamic state from the
// output measurement z: steer tracks the measurement, roll follows from
// the static stiffness balance, and the rates are backward differences
// over the sample time.
func (k *Kinematic) NextStateFromMeasurement(x, z mat.Vector) *mat.VecDense {
	stiffness := k.K()
	yawMeasurement := z.AtVec(OutputYawAngle)
	steerMeasurement := z.AtVec(OutputSteerAngle)
	nextRoll := -stiffness.At(0, 1) / stiffness.At(0, 0) * steerMeasurement

	next := mat.NewVecDense(StateSize, nil)
	next.SetVec(StateYawAngle, yawMeasurement)
	next.SetVec(StateRollAngle, nextRoll)
	next.SetVec(StateSteerAngle, steerMeasurement)
	next.SetVec(StateRollRate, (nextRoll-x.AtVec(StateRollAngle))/k.dt)
	next.SetVec(StateSteerRate, (steerMeasurement-x.AtVec(StateSteerAngle))/k.dt)
	return next
}

// IntegrateFullState advances a full state over t seconds. As this model
// is already a simplification, the auxiliary part is integrated against
// the dynamic state at the previous time; the dynamic part is then
// reconstructed from the measurement and the pitch recovered from the
// ground contact constraint.
func (k *Kinematic) IntegrateFullState(xf, z mat.Vector, t float64) (*mat.VecDense, error) {
	x := StatePart(xf)
	aux := AuxiliaryPart(xf)
	yaw := x.AtVec(StateYawAngle)

	k.stepper.Reset()
	if err := k.stepper.Integrate(0, t, integrationTolerance, aux, func(_ float64, _, dxdt *mat.VecDense) {
		dxdt.Zero() // pitch is recovered from the constraint, not integrated
		dxdt.SetVec(AuxX, k.v*math.Cos(yaw))
		dxdt.SetVec(AuxY, k.v*math.Sin(yaw))
		dxdt.SetVec(AuxRearWheelAngle, -k.v/k.rr)
	}); err != nil {
		return nil, err
	}

	xNext := k.NextStateFromMeasurement(x, z)
	pitch, err := k.SolveConstraintPitch(
		xNext.AtVec(StateRollAngle), xNext.AtVec(StateSteerAngle), aux.AtVec(AuxPitchAngle))
	if err != nil {
		return nil, err
	}
	aux.SetVec(AuxPitchAngle, pitch)
	return MakeFullState(aux, xNext), nil
}

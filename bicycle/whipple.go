package bicycle

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/oliverlee/biketest/ode"
)

// integrationTolerance is the local error target for the adaptive
// Runge-Kutta steppers.
const integrationTolerance = 1e-9

// Whipple is the full linearized Whipple model. In addition to the
// discrete-time transition of the embedded Bicycle it integrates the
// continuous dynamics and the nonlinear auxiliary kinematics numerically.
//
// The two steppers are independent instances: one for the dynamic state
// context, one for the auxiliary state context. Each is reset before use
// so no integration state leaks between calls, but a Whipple instance
// must not be shared by callers integrating concurrently; give each
// trajectory its own instance.
type Whipple struct {
	Bicycle
	stepper    *ode.RungeKutta
	auxStepper *ode.RungeKutta
}

// NewWhipple returns a Whipple model for the given parameter set at
// forward speed v and sample time dt.
func NewWhipple(p Params, v, dt float64, opts ...Option) (*Whipple, error) {
	base, err := New(p, v, dt, opts...)
	if err != nil {
		return nil, err
	}
	return &Whipple{
		Bicycle:    *base,
		stepper:    ode.NewDormandPrince45(),
		auxStepper: ode.NewDormandPrince45(),
	}, nil
}

// NewWhippleBenchmark returns a Whipple model with the benchmark
// parameter set.
func NewWhippleBenchmark(v, dt float64, opts ...Option) (*Whipple, error) {
	return NewWhipple(Benchmark(), v, dt, opts...)
}

// IntegrateState advances the dynamic state over t seconds with the
// input held constant, integrating x' = A*x + B*u.
func (w *Whipple) IntegrateState(x, u mat.Vector, t float64) (*mat.VecDense, error) {
	w.ensureStateSpace()

	// The state is augmented with the input, whose derivative is zero
	// over the step.
	xu := mat.NewVecDense(StateSize+InputSize, nil)
	for i := 0; i < StateSize; i++ {
		xu.SetVec(i, x.AtVec(i))
	}
	for i := 0; i < InputSize; i++ {
		xu.SetVec(StateSize+i, u.AtVec(i))
	}

	w.stepper.Reset()
	if err := w.stepper.Integrate(0, t, integrationTolerance, xu, w.dynamicDerivative); err != nil {
		return nil, err
	}
	out := mat.NewVecDense(StateSize, nil)
	for i := 0; i < StateSize; i++ {
		out.SetVec(i, xu.AtVec(i))
	}
	return out, nil
}

func (w *Whipple) dynamicDerivative(_ float64, xu, dxdt *mat.VecDense) {
	x := xu.SliceVec(0, StateSize)
	dx := dxdt.SliceVec(0, StateSize).(*mat.VecDense)
	dx.MulVec(w.a, x)
	// Normally we would write dxdt = A*x + B*u but B's lower block is
	// M^-1, so the product B*u is obtained by solving M*qdd = u with the
	// stored factorization instead.
	var accel mat.VecDense
	_ = w.mchol.SolveVecTo(&accel, xu.SliceVec(StateSize, StateSize+InputSize))
	dxdt.SetVec(StateRollRate, dxdt.AtVec(StateRollRate)+accel.AtVec(0))
	dxdt.SetVec(StateSteerRate, dxdt.AtVec(StateSteerRate)+accel.AtVec(1))
	dxdt.SetVec(StateSize+InputRollTorque, 0)
	dxdt.SetVec(StateSize+InputSteerTorque, 0)
}

// IntegrateAuxiliaryState advances the auxiliary kinematic state over t
// seconds. The dynamic state x is held fixed during integration; its yaw
// angle drives the contact point velocity. Pitch is not integrated: the
// result's pitch is recovered from the ground contact constraint using
// the roll and steer angles of x, seeded with the previous pitch.
func (w *Whipple) IntegrateAuxiliaryState(x, aux mat.Vector, t float64) (*mat.VecDense, error) {
	xf := MakeFullState(aux, x)

	w.auxStepper.Reset()
	if err := w.auxStepper.Integrate(0, t, integrationTolerance, xf, w.auxiliaryDerivative); err != nil {
		return nil, err
	}

	pitch, err := w.SolveConstraintPitch(
		x.AtVec(StateRollAngle), x.AtVec(StateSteerAngle), aux.AtVec(AuxPitchAngle))
	if err != nil {
		return nil, err
	}
	out := AuxiliaryPart(xf)
	out.SetVec(AuxPitchAngle, pitch)
	return out, nil
}

func (w *Whipple) auxiliaryDerivative(_ float64, xf, dxdt *mat.VecDense) {
	yaw := xf.AtVec(FullYawAngle)
	dxdt.Zero() // dynamic state and pitch are held fixed over the step
	dxdt.SetVec(FullX, w.v*math.Cos(yaw))
	dxdt.SetVec(FullY, w.v*math.Sin(yaw))
	dxdt.SetVec(FullRearWheelAngle, -w.v/w.rr)
}

// IntegrateFullState advances a full state over t seconds: the auxiliary
// part is integrated against the pre-step dynamic state, the dynamic part
// is integrated with the input held constant, and the resulting pitch is
// recovered from the constraint using the post-step roll and steer. On
// any failure the input state is untouched and no partial result is
// returned.
func (w *Whipple) IntegrateFullState(xf, u mat.Vector, t float64) (*mat.VecDense, error) {
	x := StatePart(xf)
	aux := AuxiliaryPart(xf)

	xNext, err := w.IntegrateState(x, u, t)
	if err != nil {
		return nil, err
	}

	full := MakeFullState(aux, x)
	w.auxStepper.Reset()
	if err := w.auxStepper.Integrate(0, t, integrationTolerance, full, w.auxiliaryDerivative); err != nil {
		return nil, err
	}

	pitch, err := w.SolveConstraintPitch(
		xNext.AtVec(StateRollAngle), xNext.AtVec(StateSteerAngle), aux.AtVec(AuxPitchAngle))
	if err != nil {
		return nil, err
	}
	auxNext := AuxiliaryPart(full)
	auxNext.SetVec(AuxPitchAngle, pitch)
	return MakeFullState(auxNext, xNext), nil
}

// HandlebarFeedbackTorque returns the torque felt at the handlebar for
// the given state and input: the steer angular acceleration from the last
// row of A and B minus the applied steer torque. The result is
// susceptible to state and input noise and should be filtered before use
// with equipment.
func (b *Bicycle) HandlebarFeedbackTorque(x, u mat.Vector) float64 {
	b.ensureStateSpace()
	steerAccel := 0.
	for i := 0; i < StateSize; i++ {
		steerAccel += b.a.At(StateSteerRate, i) * x.AtVec(i)
	}
	for i := 0; i < InputSize; i++ {
		steerAccel += b.b.At(StateSteerRate, i) * u.AtVec(i)
	}
	return steerAccel - u.AtVec(InputSteerTorque)
}

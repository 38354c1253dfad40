// Package bicycle models the linearized dynamics of the Whipple bicycle.
//
// The continuous-time model
//
//	x'(t) = A x(t) + B u(t)
//	y(t)  = C x(t) + D u(t)
//
// is parameterized by forward speed v through the equations of motion
//
//	M q'' + v*C1 q' + (g*K0 + v^2*K2) q = u,  q = [roll, steer]'
//
// together with the yaw rate kinematic relation
//
//	yaw' = cos(lambda)/w * (v*steer + c*steer')
//
// and is discretized exactly for a sample time dt under a zero-order hold
// assumption. Pitch is not part of the dynamic state; it is recovered
// from the holonomic ground contact constraint.
//
// None of the mutating operations are safe for concurrent use on the same
// instance; callers sharing an instance across goroutines must serialize
// access externally.
package bicycle

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bicycle holds the physical parameters and the continuous and discrete
// state space matrices of the linearized model. It implements the shared
// parts of the DiscreteLinear contract; the Whipple and Kinematic types
// build their simulation semantics on top of it.
type Bicycle struct {
	logger *slog.Logger

	v  float64 // forward speed [m/s]
	dt float64 // sample time [s], 0 means no discretization

	m  *mat.SymDense
	c1 *mat.Dense
	k0 *mat.Dense
	k2 *mat.Dense

	w      float64 // wheelbase [m]
	c      float64 // trail [m]
	lambda float64 // steer axis tilt [rad]
	rr     float64 // rear wheel radius [m]
	rf     float64 // front wheel radius [m]

	// Moore parameters, derived from the geometry above
	d1 float64
	d2 float64
	d3 float64

	// As M is positive definite, its Cholesky factorization is stored and
	// used for every linear solve against M instead of an explicit inverse.
	mchol mat.Cholesky

	a  *mat.Dense
	b  *mat.Dense
	cm *mat.Dense
	dm *mat.Dense
	ad *mat.Dense
	bd *mat.Dense

	// externally owned, read-only discretization cache
	ssMap StateSpaceMap

	staleStateSpace bool
	staleMoore      bool
}

// Option configures a Bicycle at construction.
type Option func(*Bicycle)

// WithStateSpaceMap supplies a precomputed discretization cache. The map
// is owned by the caller and is only ever read by the model; it must not
// be mutated while the model may look it up.
func WithStateSpaceMap(m StateSpaceMap) Option {
	return func(b *Bicycle) { b.ssMap = m }
}

// WithLogger sets the logger used for non-fatal diagnostics such as
// discretization accuracy warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bicycle) { b.logger = l }
}

// New returns a model built from the given parameter set at forward speed
// v and sample time dt. It fails if any matrix has the wrong dimensions
// or if M is not symmetric positive definite.
func New(p Params, v, dt float64, opts ...Option) (*Bicycle, error) {
	b := &Bicycle{
		logger: slog.Default(),
		cm:     defaultC(),
		dm:     defaultD(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.setParams(p); err != nil {
		return nil, err
	}
	b.SetMooreParameters()
	b.SetSpeed(v, dt)
	return b, nil
}

func (b *Bicycle) setParams(p Params) error {
	for _, m := range []mat.Matrix{p.M, p.C1, p.K0, p.K2} {
		if m == nil {
			return fmt.Errorf("%w: missing second order matrix", ErrInvalidParam)
		}
		if r, c := m.Dims(); r != SecondOrderSize || c != SecondOrderSize {
			return fmt.Errorf("%w: second order matrix dimensions %dx%d", ErrInvalidParam, r, c)
		}
	}
	b.m = mat.NewSymDense(SecondOrderSize, nil)
	b.m.CopySym(p.M)
	if ok := b.mchol.Factorize(b.m); !ok {
		return fmt.Errorf("%w: M is not positive definite", ErrInvalidParam)
	}
	b.c1 = mat.DenseCopyOf(p.C1)
	b.k0 = mat.DenseCopyOf(p.K0)
	b.k2 = mat.DenseCopyOf(p.K2)
	b.w = p.Wheelbase
	b.c = p.Trail
	b.lambda = p.SteerAxisTilt
	b.rr = p.RearWheelRadius
	b.rf = p.FrontWheelRadius
	b.staleStateSpace = true
	b.staleMoore = true
	return nil
}

// SetSpeed sets the forward speed and sample time. The continuous state
// space matrices are always recalculated; the discrete pair is looked up
// in the cache first and recomputed on a miss.
func (b *Bicycle) SetSpeed(v, dt float64) {
	b.v = v
	b.dt = dt
	b.SetStateSpace()
}

// SetM replaces the mass matrix. The Cholesky factorization is refreshed
// immediately. With recalculate false the state space matrices are marked
// stale and recomputed on next access instead of eagerly.
func (b *Bicycle) SetM(m *mat.SymDense, recalculate bool) error {
	var chol mat.Cholesky
	if ok := chol.Factorize(m); !ok {
		return fmt.Errorf("%w: M is not positive definite", ErrInvalidParam)
	}
	b.m.CopySym(m)
	b.mchol = chol
	b.touchStateSpace(recalculate)
	return nil
}

// SetC1 replaces the damping-like matrix.
func (b *Bicycle) SetC1(c1 *mat.Dense, recalculate bool) {
	b.c1.Copy(c1)
	b.touchStateSpace(recalculate)
}

// SetK0 replaces the gravity-dependent stiffness matrix.
func (b *Bicycle) SetK0(k0 *mat.Dense, recalculate bool) {
	b.k0.Copy(k0)
	b.touchStateSpace(recalculate)
}

// SetK2 replaces the speed-squared stiffness matrix.
func (b *Bicycle) SetK2(k2 *mat.Dense, recalculate bool) {
	b.k2.Copy(k2)
	b.touchStateSpace(recalculate)
}

// SetWheelbase sets w.
func (b *Bicycle) SetWheelbase(w float64, recalculate bool) {
	b.w = w
	b.touchGeometry(recalculate)
}

// SetTrail sets c.
func (b *Bicycle) SetTrail(c float64, recalculate bool) {
	b.c = c
	b.touchGeometry(recalculate)
}

// SetSteerAxisTilt sets lambda.
func (b *Bicycle) SetSteerAxisTilt(lambda float64, recalculate bool) {
	b.lambda = lambda
	b.touchGeometry(recalculate)
}

// SetRearWheelRadius sets rr. Wheel radii enter only the Moore parameters,
// not the state space matrices.
func (b *Bicycle) SetRearWheelRadius(rr float64, recalculate bool) {
	b.rr = rr
	b.touchMoore(recalculate)
}

// SetFrontWheelRadius sets rf.
func (b *Bicycle) SetFrontWheelRadius(rf float64, recalculate bool) {
	b.rf = rf
	b.touchMoore(recalculate)
}

func (b *Bicycle) touchStateSpace(recalculate bool) {
	if recalculate {
		b.SetStateSpace()
	} else {
		b.staleStateSpace = true
	}
}

func (b *Bicycle) touchMoore(recalculate bool) {
	if recalculate {
		b.SetMooreParameters()
	} else {
		b.staleMoore = true
	}
}

func (b *Bicycle) touchGeometry(recalculate bool) {
	if recalculate {
		b.SetMooreParameters()
		b.SetStateSpace()
	} else {
		b.staleMoore = true
		b.staleStateSpace = true
	}
}

// SetC replaces the output matrix. If the output size changes, the
// feedthrough matrix is reset to zero with matching dimensions.
func (b *Bicycle) SetC(c *mat.Dense) error {
	rows, cols := c.Dims()
	if cols != StateSize || rows < 1 {
		return fmt.Errorf("%w: output matrix dimensions %dx%d", ErrInvalidParam, rows, cols)
	}
	b.cm = mat.DenseCopyOf(c)
	if r, _ := b.dm.Dims(); r != rows {
		b.dm = mat.NewDense(rows, InputSize, nil)
	}
	return nil
}

// SetD replaces the feedthrough matrix. Its row count must match the
// current output matrix.
func (b *Bicycle) SetD(d *mat.Dense) error {
	rows, cols := d.Dims()
	if crows, _ := b.cm.Dims(); rows != crows || cols != InputSize {
		return fmt.Errorf("%w: feedthrough matrix dimensions %dx%d", ErrInvalidParam, rows, cols)
	}
	b.dm = mat.DenseCopyOf(d)
	return nil
}

// SetStateSpace recalculates the continuous state space matrices for the
// current parameters and speed and rediscretizes for the current sample
// time. It is the explicit revalidation step for reads after a lazy
// parameter change; the matrix accessors call it automatically when the
// matrices are stale.
//
//	A = [ 0                     a            b       ]   B = [  0   ]
//	    [ 0                     0            I       ]       [  0   ]
//	    [ 0  -M^-1*(g*K0 + v^2*K2)  -M^-1*v*C1       ]       [ M^-1 ]
//
//	a = v*cos(lambda)/w * e_steer,  b = c*cos(lambda)/w * e_steer_rate
func (b *Bicycle) SetStateSpace() {
	const o = SecondOrderSize
	cosLambda := math.Cos(b.lambda)

	a := mat.NewDense(StateSize, StateSize, nil)
	a.Set(0, StateSteerAngle, b.v*cosLambda/b.w) // steer angle component of yaw rate
	a.Set(0, StateSteerRate, b.c*cosLambda/b.w)  // steer rate component of yaw rate
	for i := 0; i < o; i++ {
		a.Set(1+i, 3+i, 1) // rate states are the position state derivatives
	}

	// K = g*K0 + v^2*K2
	var k, vk2 mat.Dense
	k.Scale(gravity, b.k0)
	vk2.Scale(b.v*b.v, b.k2)
	k.Add(&k, &vk2)

	// M is positive definite so the Cholesky factorization is used in
	// solving the linear systems M*X = K and M*Y = v*C1.
	var x, y, vc1 mat.Dense
	_ = b.mchol.SolveTo(&x, &k)
	vc1.Scale(b.v, b.c1)
	_ = b.mchol.SolveTo(&y, &vc1)
	for i := 0; i < o; i++ {
		for j := 0; j < o; j++ {
			a.Set(3+i, 1+j, -x.At(i, j))
			a.Set(3+i, 3+j, -y.At(i, j))
		}
	}

	// B = [0; M^-1], computed from the same factorization. Torques map
	// directly to angular accelerations only.
	var minv mat.SymDense
	_ = b.mchol.InverseTo(&minv)
	bmat := mat.NewDense(StateSize, InputSize, nil)
	for i := 0; i < o; i++ {
		for j := 0; j < o; j++ {
			bmat.Set(3+i, j, minv.At(i, j))
		}
	}

	b.a = a
	b.b = bmat
	b.staleStateSpace = false
	b.discretize()
}

// SetMooreParameters recalculates d1, d2, d3 used in the pitch constraint
// from the wheelbase, trail, steer axis tilt and wheel radii.
func (b *Bicycle) SetMooreParameters() {
	b.d1 = math.Cos(b.lambda) * (b.c + b.w - b.rr*math.Tan(b.lambda))
	b.d3 = -math.Cos(b.lambda) * (b.c - b.rf*math.Tan(b.lambda))
	b.d2 = (b.rr + b.d1*math.Sin(b.lambda) - b.rf + b.d3*math.Sin(b.lambda)) / math.Cos(b.lambda)
	b.staleMoore = false
}

func (b *Bicycle) ensureStateSpace() {
	if b.staleStateSpace {
		b.SetStateSpace()
	}
}

func (b *Bicycle) ensureMoore() {
	if b.staleMoore {
		b.SetMooreParameters()
	}
}

// NeedsStateSpaceRecalculation reports whether a lazy parameter change has
// left the state space matrices stale.
func (b *Bicycle) NeedsStateSpaceRecalculation() bool { return b.staleStateSpace }

// NeedsMooreRecalculation reports whether a lazy geometry change has left
// the Moore parameters stale.
func (b *Bicycle) NeedsMooreRecalculation() bool { return b.staleMoore }

// StateSize returns the dynamic state dimension.
func (b *Bicycle) StateSize() int { return StateSize }

// InputSize returns the input dimension.
func (b *Bicycle) InputSize() int { return InputSize }

// OutputSize returns the current output dimension.
func (b *Bicycle) OutputSize() int {
	rows, _ := b.cm.Dims()
	return rows
}

// A returns the continuous state matrix.
func (b *Bicycle) A() *mat.Dense {
	b.ensureStateSpace()
	return b.a
}

// B returns the continuous input matrix.
func (b *Bicycle) B() *mat.Dense {
	b.ensureStateSpace()
	return b.b
}

// C returns the output matrix.
func (b *Bicycle) C() *mat.Dense { return b.cm }

// D returns the feedthrough matrix.
func (b *Bicycle) D() *mat.Dense { return b.dm }

// Ad returns the discrete state matrix for the current (v, dt).
func (b *Bicycle) Ad() *mat.Dense {
	b.ensureStateSpace()
	return b.ad
}

// Bd returns the discrete input matrix for the current (v, dt).
func (b *Bicycle) Bd() *mat.Dense {
	b.ensureStateSpace()
	return b.bd
}

// M returns the mass matrix.
func (b *Bicycle) M() *mat.SymDense { return b.m }

// C1 returns the damping-like matrix.
func (b *Bicycle) C1() *mat.Dense { return b.c1 }

// K0 returns the gravity-dependent stiffness matrix.
func (b *Bicycle) K0() *mat.Dense { return b.k0 }

// K2 returns the speed-squared stiffness matrix.
func (b *Bicycle) K2() *mat.Dense { return b.k2 }

// V returns the forward speed.
func (b *Bicycle) V() float64 { return b.v }

// DT returns the sample time. Zero means the model is not discretized.
func (b *Bicycle) DT() float64 { return b.dt }

// Wheelbase returns w.
func (b *Bicycle) Wheelbase() float64 { return b.w }

// Trail returns c.
func (b *Bicycle) Trail() float64 { return b.c }

// SteerAxisTilt returns lambda.
func (b *Bicycle) SteerAxisTilt() float64 { return b.lambda }

// RearWheelRadius returns rr.
func (b *Bicycle) RearWheelRadius() float64 { return b.rr }

// FrontWheelRadius returns rf.
func (b *Bicycle) FrontWheelRadius() float64 { return b.rf }

// MooreParameters returns d1, d2, d3.
func (b *Bicycle) MooreParameters() (d1, d2, d3 float64) {
	b.ensureMoore()
	return b.d1, b.d2, b.d3
}

// NextState returns Ad*x + Bd*u. A nil u is treated as zero input.
func (b *Bicycle) NextState(x, u mat.Vector) *mat.VecDense {
	b.ensureStateSpace()
	next := mat.NewVecDense(StateSize, nil)
	next.MulVec(b.ad, x)
	if u != nil {
		var bu mat.VecDense
		bu.MulVec(b.bd, u)
		next.AddVec(next, &bu)
	}
	return next
}

// Output returns C*x + D*u. A nil u is treated as zero input.
func (b *Bicycle) Output(x, u mat.Vector) *mat.VecDense {
	rows, _ := b.cm.Dims()
	y := mat.NewVecDense(rows, nil)
	y.MulVec(b.cm, x)
	if u != nil {
		var du mat.VecDense
		du.MulVec(b.dm, u)
		y.AddVec(y, &du)
	}
	return y
}

// NormalizeState wraps the yaw, roll and steer angles of x. Rates are
// left unwrapped and may still grow without bound.
func (b *Bicycle) NormalizeState(x mat.Vector) *mat.VecDense {
	normalized := mat.VecDenseCopyOf(x)
	normalized.SetVec(StateYawAngle, wrapAngle(x.AtVec(StateYawAngle)))
	normalized.SetVec(StateRollAngle, wrapAngle(x.AtVec(StateRollAngle)))
	normalized.SetVec(StateSteerAngle, wrapAngle(x.AtVec(StateSteerAngle)))
	return normalized
}

// NormalizeOutput wraps every element of y. With the default output
// matrix both outputs are angles; callers installing a C with
// non-angular outputs are responsible for skipping this.
func (b *Bicycle) NormalizeOutput(y mat.Vector) *mat.VecDense {
	normalized := mat.VecDenseCopyOf(y)
	for i := 0; i < y.Len(); i++ {
		normalized.SetVec(i, wrapAngle(y.AtVec(i)))
	}
	return normalized
}

// NormalizeAuxiliaryState wraps the rear wheel angle and pitch angle.
func (b *Bicycle) NormalizeAuxiliaryState(aux mat.Vector) *mat.VecDense {
	normalized := mat.VecDenseCopyOf(aux)
	normalized.SetVec(AuxRearWheelAngle, wrapAngle(aux.AtVec(AuxRearWheelAngle)))
	normalized.SetVec(AuxPitchAngle, wrapAngle(aux.AtVec(AuxPitchAngle)))
	return normalized
}

// NormalizeFullState wraps the angle fields of both state parts.
func (b *Bicycle) NormalizeFullState(xf mat.Vector) *mat.VecDense {
	return MakeFullState(
		b.NormalizeAuxiliaryState(AuxiliaryPart(xf)),
		b.NormalizeState(StatePart(xf)),
	)
}

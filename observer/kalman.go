// Package observer implements recursive state estimation for discrete
// time linear systems. The estimators are written against the
// bicycle.DiscreteLinear capability contract rather than a concrete model
// type, so any plant exposing the discrete state space accessors can be
// observed.
package observer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/oliverlee/biketest/bicycle"
	"github.com/oliverlee/biketest/matutil"
)

// ErrInnovationSingular is returned when the innovation covariance of a
// measurement update is singular or numerically indefinite. The estimate
// mean and covariance are left unchanged in that case.
var ErrInnovationSingular = errors.New("observer: innovation covariance is not invertible")

// Kalman is a recursive linear state estimator alternating time update
// (prediction) and measurement update (correction) phases:
//
//	x' = f(x, u)                    P' = Ad*P*Ad' + Q
//	S  = C*P'*C' + R                K  = P'*C'*S^-1
//	x  = x' + K*(z - C*x' - D*u)    P  = (I - K*C)*P'
//
// where f is the plant's own discrete state transition. The error
// covariance is resymmetrized after every update to counter floating
// point drift. A Kalman instance is not safe for concurrent use.
type Kalman struct {
	plant bicycle.DiscreteLinear

	x *mat.VecDense // estimate mean
	p *mat.Dense    // error covariance
	q *mat.Dense    // default process noise covariance
	r *mat.Dense    // default measurement noise covariance
	k *mat.Dense    // gain of the most recent measurement update
}

// NewKalman returns an estimator for the given plant with initial mean
// x0, initial error covariance p0 and default noise covariances q, r.
func NewKalman(plant bicycle.DiscreteLinear, q, r *mat.Dense, x0 mat.Vector, p0 *mat.Dense) (*Kalman, error) {
	n := plant.StateSize()
	l := plant.OutputSize()
	if x0.Len() != n {
		return nil, fmt.Errorf("observer: initial mean length %d, want %d", x0.Len(), n)
	}
	if err := checkSquare(p0, n, "P0"); err != nil {
		return nil, err
	}
	if err := checkSquare(q, n, "Q"); err != nil {
		return nil, err
	}
	if err := checkSquare(r, l, "R"); err != nil {
		return nil, err
	}
	return &Kalman{
		plant: plant,
		x:     mat.VecDenseCopyOf(x0),
		p:     mat.DenseCopyOf(p0),
		q:     mat.DenseCopyOf(q),
		r:     mat.DenseCopyOf(r),
		k:     mat.NewDense(n, l, nil),
	}, nil
}

func checkSquare(m *mat.Dense, n int, name string) error {
	r, c := m.Dims()
	if r != n || c != n {
		return fmt.Errorf("observer: %s dimensions %dx%d, want %dx%d", name, r, c, n, n)
	}
	return nil
}

// TimeUpdate propagates the estimate through the plant's discrete
// transition with the default process noise. A nil u is treated as zero
// input.
func (kf *Kalman) TimeUpdate(u mat.Vector) {
	kf.TimeUpdateQ(u, kf.q)
}

// TimeUpdateQ is TimeUpdate with a process noise covariance supplied for
// this call only.
func (kf *Kalman) TimeUpdateQ(u mat.Vector, q *mat.Dense) {
	kf.x = kf.plant.NextState(kf.x, u)

	ad := kf.plant.Ad()
	var apa mat.Dense
	apa.Product(ad, kf.p, ad.T())
	kf.p.Add(&apa, q)
	matutil.Symmetrize(kf.p)
}

// MeasurementUpdate corrects the estimate with measurement z using the
// default measurement noise. A nil u is treated as zero input; it enters
// only through the plant's feedthrough matrix. On failure the committed
// mean and covariance are unchanged.
func (kf *Kalman) MeasurementUpdate(z, u mat.Vector) error {
	return kf.MeasurementUpdateR(z, u, kf.r)
}

// MeasurementUpdateR is MeasurementUpdate with a measurement noise
// covariance supplied for this call only.
func (kf *Kalman) MeasurementUpdateR(z, u mat.Vector, r *mat.Dense) error {
	c := kf.plant.C()
	n := kf.plant.StateSize()

	// S = C*P*C' + R
	var s mat.Dense
	s.Product(c, kf.p, c.T())
	s.Add(&s, r)

	// Innovation covariance is symmetric positive definite whenever it is
	// invertible; a failed factorization signals an estimation failure.
	l, _ := s.Dims()
	ssym := mat.NewSymDense(l, nil)
	for i := 0; i < l; i++ {
		for j := i; j < l; j++ {
			ssym.SetSym(i, j, (s.At(i, j)+s.At(j, i))/2)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(ssym); !ok {
		return ErrInnovationSingular
	}

	// K = P*C'*S^-1, computed by solving S*K' = C*P'
	var pct, kt, gain mat.Dense
	pct.Mul(kf.p, c.T())
	if err := chol.SolveTo(&kt, pct.T()); err != nil {
		return fmt.Errorf("%w: %v", ErrInnovationSingular, err)
	}
	gain.CloneFrom(kt.T())

	// x = x' + K*(z - C*x' - D*u)
	innovation := mat.VecDenseCopyOf(z)
	var cx mat.VecDense
	cx.MulVec(c, kf.x)
	innovation.SubVec(innovation, &cx)
	if u != nil {
		var du mat.VecDense
		du.MulVec(kf.plant.D(), u)
		innovation.SubVec(innovation, &du)
	}
	x := mat.VecDenseCopyOf(kf.x)
	var kz mat.VecDense
	kz.MulVec(&gain, innovation)
	x.AddVec(x, &kz)

	// P = (I - K*C)*P'
	var ikc, p mat.Dense
	ikc.Mul(&gain, c)
	ikc.Sub(matutil.Eye(n), &ikc)
	p.Mul(&ikc, kf.p)
	matutil.Symmetrize(&p)

	// commit only after every quantity is computed
	kf.x = x
	kf.p.Copy(&p)
	kf.k = &gain
	return nil
}

// Plant returns the observed plant.
func (kf *Kalman) Plant() bicycle.DiscreteLinear { return kf.plant }

// X returns a copy of the estimate mean.
func (kf *Kalman) X() *mat.VecDense { return mat.VecDenseCopyOf(kf.x) }

// P returns a copy of the error covariance.
func (kf *Kalman) P() *mat.Dense { return mat.DenseCopyOf(kf.p) }

// Q returns a copy of the default process noise covariance.
func (kf *Kalman) Q() *mat.Dense { return mat.DenseCopyOf(kf.q) }

// R returns a copy of the default measurement noise covariance.
func (kf *Kalman) R() *mat.Dense { return mat.DenseCopyOf(kf.r) }

// Gain returns a copy of the gain from the most recent measurement
// update.
func (kf *Kalman) Gain() *mat.Dense { return mat.DenseCopyOf(kf.k) }

// SetX overwrites the estimate mean.
func (kf *Kalman) SetX(x mat.Vector) { kf.x = mat.VecDenseCopyOf(x) }

// SetP overwrites the error covariance.
func (kf *Kalman) SetP(p *mat.Dense) { kf.p = mat.DenseCopyOf(p) }

// SetQ overwrites the default process noise covariance.
func (kf *Kalman) SetQ(q *mat.Dense) { kf.q = mat.DenseCopyOf(q) }

// SetR overwrites the default measurement noise covariance.
func (kf *Kalman) SetR(r *mat.Dense) { kf.r = mat.DenseCopyOf(r) }

// DT returns the plant sample time.
func (kf *Kalman) DT() float64 { return kf.plant.DT() }

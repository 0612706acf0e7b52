package carstate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// KinematicFilter turns raw wheel speed into a smoothed speed and its
// derivative. Implementations hold state and belong to one normalizer.
type KinematicFilter interface {
	Update(vRaw float64) (vEgo, aEgo float64)
}

const (
	// ControlPeriod is the cycle length the speed filter is tuned for.
	ControlPeriod = 0.01
	// speedResetDelta re-seeds the estimator when the raw speed jumps, e.g.
	// when the first message arrives with the car already moving.
	speedResetDelta = 2.0
)

// SpeedKalman is a steady-state Kalman filter over [v, a] with a
// constant-velocity model and speed-only measurement, run in one-step
// predictor form: x = (A - K*C) x + K*z with K the predictor gain.
type SpeedKalman struct {
	ak *mat.Dense // A - K*C
	k  *mat.VecDense
	x  *mat.VecDense
}

func NewSpeedKalman() *SpeedKalman {
	return NewSpeedKalmanWithNoise(ControlPeriod, 10, 100, 1e3)
}

// NewSpeedKalmanWithNoise builds the filter for period dt with process noise
// diag(qv, qa) and measurement noise r.
func NewSpeedKalmanWithNoise(dt, qv, qa, r float64) *SpeedKalman {
	a := mat.NewDense(2, 2, []float64{1, dt, 0, 1})
	c := mat.NewDense(1, 2, []float64{1, 0})
	q := mat.NewDense(2, 2, []float64{qv, 0, 0, qa})

	k := steadyStateGain(a, c, q, r)

	var kc mat.Dense
	kc.Mul(k, c)
	var ak mat.Dense
	ak.Sub(a, &kc)

	return &SpeedKalman{
		ak: &ak,
		k:  mat.NewVecDense(2, []float64{k.At(0, 0), k.At(1, 0)}),
		x:  mat.NewVecDense(2, nil),
	}
}

// steadyStateGain iterates the discrete Riccati recursion until the a-priori
// covariance settles and returns the 2x1 predictor gain A*P*C'/(C*P*C' + R).
// For the default tuning this is [0.12287673, 0.29666309].
func steadyStateGain(a, c, q *mat.Dense, r float64) *mat.Dense {
	p := mat.DenseCopyOf(q)
	k := mat.NewDense(2, 1, nil)

	for i := 0; i < 10000; i++ {
		// S = C P C' + R, scalar for a single measurement.
		var pct mat.Dense
		pct.Mul(p, c.T())
		s := c.At(0, 0)*pct.At(0, 0) + c.At(0, 1)*pct.At(1, 0) + r

		k.Scale(1/s, &pct)

		var kc, ikc mat.Dense
		kc.Mul(k, c)
		ikc.Sub(eye2(), &kc)

		var post mat.Dense
		post.Mul(&ikc, p)

		var next mat.Dense
		next.Product(a, &post, a.T())
		next.Add(&next, q)

		if mat.EqualApprox(&next, p, 1e-12) {
			p = &next
			break
		}
		p = &next
	}

	var pct mat.Dense
	pct.Mul(p, c.T())
	s := c.At(0, 0)*pct.At(0, 0) + c.At(0, 1)*pct.At(1, 0) + r
	k.Scale(1/s, &pct)

	var kp mat.Dense
	kp.Mul(a, k)
	return &kp
}

func eye2() *mat.Dense {
	return mat.NewDense(2, 2, []float64{1, 0, 0, 1})
}

func (f *SpeedKalman) Update(vRaw float64) (float64, float64) {
	if math.Abs(vRaw-f.x.AtVec(0)) > speedResetDelta {
		f.Reset(vRaw)
	}
	var next mat.VecDense
	next.MulVec(f.ak, f.x)
	next.AddScaledVec(&next, vRaw, f.k)
	f.x = &next
	return f.x.AtVec(0), f.x.AtVec(1)
}

func (f *SpeedKalman) Reset(v float64) {
	f.x = mat.NewVecDense(2, []float64{v, 0})
}

// Gain exposes the steady-state gain for diagnostics.
func (f *SpeedKalman) Gain() (float64, float64) {
	return f.k.AtVec(0), f.k.AtVec(1)
}

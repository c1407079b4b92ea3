package deriv

import "gonum.org/v1/gonum/mat"

// JacobianFunc computes ∂f/∂x at x into J (shape ny x nx).
type JacobianFunc func(x []float64, J *mat.Dense) error

// CombinedFunc computes both y = f(x) and its Jacobian in one call, when the
// user's routine can share work between them.
type CombinedFunc func(x, y []float64, J *mat.Dense) error

// AnalyticConfig names the subset of {F, DF, FDF} the user supplied.
// Any field may be nil; at least one of F/FDF must be set for Output to
// work, and at least one of DF/FDF for Jacobian to work.
type AnalyticConfig struct {
	F   Primal
	DF  JacobianFunc
	FDF CombinedFunc
}

// Analytic wraps user-supplied primal/Jacobian/combined routines verbatim —
// no numerical approximation, no AD sweep. It is always preferred over an
// AD or FD provider when present.
type analytic struct {
	cfg AnalyticConfig
}

// NewAnalytic builds a Provider from user-supplied analytic routines.
func NewAnalytic(cfg AnalyticConfig) Provider {
	return &analytic{cfg: cfg}
}

func (a *analytic) Kind() Kind { return Analytic }

func (a *analytic) CanOutput() bool { return a.cfg.F != nil || a.cfg.FDF != nil }

func (a *analytic) CanJacobian() bool { return a.cfg.DF != nil || a.cfg.FDF != nil }

func (a *analytic) Output(x, y []float64) error {
	if a.cfg.F != nil {
		copy(y, a.cfg.F(x))
		return nil
	}
	nx, ny := len(x), len(y)
	J := mat.NewDense(ny, nx, nil)
	return a.cfg.FDF(x, y, J)
}

func (a *analytic) Jacobian(x []float64, J *mat.Dense) error {
	if a.cfg.DF != nil {
		return a.cfg.DF(x, J)
	}
	ny, _ := J.Dims()
	y := make([]float64, ny)
	return a.cfg.FDF(x, y, J)
}

// OutputAndJacobian prefers FDF for combined calls: a user-supplied fdf
// wins over calling f and df separately, even when both are declared.
func (a *analytic) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if a.cfg.FDF != nil {
		return a.cfg.FDF(x, y, J)
	}
	if err := a.Output(x, y); err != nil {
		return err
	}
	return a.Jacobian(x, J)
}

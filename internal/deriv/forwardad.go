package deriv

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Dual is a forward-mode dual number: Val carries the primal value, Deriv
// the directional derivative along whichever input column the current sweep
// seeded. A ForwardAD Jacobian needs nx sweeps, one column at a time.
type Dual struct {
	Val   float64
	Deriv float64
}

func (a Dual) Add(b Dual) Dual { return Dual{a.Val + b.Val, a.Deriv + b.Deriv} }
func (a Dual) Sub(b Dual) Dual { return Dual{a.Val - b.Val, a.Deriv - b.Deriv} }
func (a Dual) Mul(b Dual) Dual {
	return Dual{a.Val * b.Val, a.Deriv*b.Val + a.Val*b.Deriv}
}
func (a Dual) Div(b Dual) Dual {
	return Dual{a.Val / b.Val, (a.Deriv*b.Val - a.Val*b.Deriv) / (b.Val * b.Val)}
}
func (a Dual) Neg() Dual { return Dual{-a.Val, -a.Deriv} }
func (a Dual) Sin() Dual { return Dual{math.Sin(a.Val), a.Deriv * math.Cos(a.Val)} }
func (a Dual) Cos() Dual { return Dual{math.Cos(a.Val), -a.Deriv * math.Sin(a.Val)} }
func (a Dual) Sqrt() Dual {
	s := math.Sqrt(a.Val)
	return Dual{s, a.Deriv / (2 * s)}
}
func (a Dual) Exp() Dual {
	e := math.Exp(a.Val)
	return Dual{e, a.Deriv * e}
}

// Constant lifts a plain float64 into a Dual with zero derivative, for
// primal code that mixes variables with literal constants.
func Constant(v float64) Dual { return Dual{Val: v} }

type forwardAD struct {
	f  GenericPrimal[Dual]
	nx int
	ny int
}

// NewForwardAD builds a ForwardAD Provider around a primal written against
// Number[Dual]. nx/ny fix the input/output widths the Provider expects.
func NewForwardAD(f GenericPrimal[Dual], nx, ny int) Provider {
	return &forwardAD{f: f, nx: nx, ny: ny}
}

func (p *forwardAD) Kind() Kind { return ForwardAD }

func (p *forwardAD) CanOutput() bool { return true }

func (p *forwardAD) CanJacobian() bool { return true }

func (p *forwardAD) evalColumn(x []float64, seed int) []Dual {
	in := make([]Dual, p.nx)
	for i, xi := range x {
		in[i] = Dual{Val: xi}
	}
	if seed >= 0 {
		in[seed].Deriv = 1
	}
	return p.f(in)
}

func (p *forwardAD) Output(x, y []float64) error {
	if err := checkDims("ForwardAD.Output", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	out := p.evalColumn(x, -1)
	for i, d := range out {
		y[i] = d.Val
	}
	return nil
}

func (p *forwardAD) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	if err := checkJacobianDims("ForwardAD.Jacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	for j := 0; j < p.nx; j++ {
		out := p.evalColumn(x, j)
		for i, d := range out {
			J.Set(i, j, d.Deriv)
		}
	}
	return nil
}

func (p *forwardAD) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := p.Output(x, y); err != nil {
		return err
	}
	return p.Jacobian(x, J)
}

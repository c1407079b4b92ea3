package deriv

import "gonum.org/v1/gonum/mat"

type forwardFD struct {
	f    Primal
	nx   int
	ny   int
	step float64
}

// NewForwardFD builds a one-sided finite-difference Provider: J[:,j] =
// (f(x+h e_j) - f(x)) / h. step <= 0 selects DefaultForwardFDStep.
func NewForwardFD(f Primal, nx, ny int, step float64) Provider {
	if step <= 0 {
		step = DefaultForwardFDStep
	}
	return &forwardFD{f: f, nx: nx, ny: ny, step: step}
}

func (p *forwardFD) Kind() Kind { return ForwardFD }

func (p *forwardFD) CanOutput() bool { return true }

func (p *forwardFD) CanJacobian() bool { return true }

func (p *forwardFD) Output(x, y []float64) error {
	if err := checkDims("ForwardFD.Output", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	copy(y, p.f(x))
	return nil
}

func (p *forwardFD) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	if err := checkJacobianDims("ForwardFD.Jacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	base := p.f(x)
	xp := append([]float64(nil), x...)
	for j := 0; j < p.nx; j++ {
		orig := xp[j]
		xp[j] = orig + p.step
		perturbed := p.f(xp)
		xp[j] = orig
		for i := range base {
			J.Set(i, j, (perturbed[i]-base[i])/p.step)
		}
	}
	return nil
}

func (p *forwardFD) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := p.Output(x, y); err != nil {
		return err
	}
	return p.Jacobian(x, J)
}

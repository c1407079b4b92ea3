package deriv

import "gonum.org/v1/gonum/mat"

type centralFD struct {
	f    Primal
	nx   int
	ny   int
	step float64
}

// NewCentralFD builds a centered finite-difference Provider: J[:,j] =
// (f(x+h e_j) - f(x-h e_j)) / (2h). step <= 0 selects DefaultCentralFDStep.
func NewCentralFD(f Primal, nx, ny int, step float64) Provider {
	if step <= 0 {
		step = DefaultCentralFDStep
	}
	return &centralFD{f: f, nx: nx, ny: ny, step: step}
}

func (p *centralFD) Kind() Kind { return CentralFD }

func (p *centralFD) CanOutput() bool { return true }

func (p *centralFD) CanJacobian() bool { return true }

func (p *centralFD) Output(x, y []float64) error {
	if err := checkDims("CentralFD.Output", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	copy(y, p.f(x))
	return nil
}

func (p *centralFD) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	if err := checkJacobianDims("CentralFD.Jacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	xp := append([]float64(nil), x...)
	for j := 0; j < p.nx; j++ {
		orig := xp[j]
		xp[j] = orig + p.step
		plus := p.f(xp)
		xp[j] = orig - p.step
		minus := p.f(xp)
		xp[j] = orig
		for i := range plus {
			J.Set(i, j, (plus[i]-minus[i])/(2*p.step))
		}
	}
	return nil
}

func (p *centralFD) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := p.Output(x, y); err != nil {
		return err
	}
	return p.Jacobian(x, J)
}

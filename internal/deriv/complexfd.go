package deriv

import "gonum.org/v1/gonum/mat"

// ComplexPrimal is a primal written to accept complex inputs, the
// precondition for complex-step differentiation: it must be holomorphic in
// each argument (no abs, conj, or branch-cutting real-only operations).
type ComplexPrimal func(x []complex128) []complex128

type complexFD struct {
	f    ComplexPrimal
	nx   int
	ny   int
	step float64
}

// NewComplexFD builds a complex-step differentiation Provider: J[:,j] =
// Im(f(x + i h e_j)) / h. step <= 0 selects DefaultComplexFDStep. Because
// the step appears only in the imaginary part, there is no subtractive
// cancellation and h can be driven far smaller than a real-valued FD step.
func NewComplexFD(f ComplexPrimal, nx, ny int, step float64) Provider {
	if step <= 0 {
		step = DefaultComplexFDStep
	}
	return &complexFD{f: f, nx: nx, ny: ny, step: step}
}

func (p *complexFD) Kind() Kind { return ComplexFD }

func (p *complexFD) CanOutput() bool { return true }

func (p *complexFD) CanJacobian() bool { return true }

func (p *complexFD) toComplex(x []float64) []complex128 {
	cx := make([]complex128, len(x))
	for i, xi := range x {
		cx[i] = complex(xi, 0)
	}
	return cx
}

func (p *complexFD) Output(x, y []float64) error {
	if err := checkDims("ComplexFD.Output", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	out := p.f(p.toComplex(x))
	for i, v := range out {
		y[i] = real(v)
	}
	return nil
}

func (p *complexFD) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	if err := checkJacobianDims("ComplexFD.Jacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	cx := p.toComplex(x)
	for j := 0; j < p.nx; j++ {
		orig := cx[j]
		cx[j] = complex(real(orig), p.step)
		out := p.f(cx)
		cx[j] = orig
		for i, v := range out {
			J.Set(i, j, imag(v)/p.step)
		}
	}
	return nil
}

func (p *complexFD) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := p.Output(x, y); err != nil {
		return err
	}
	return p.Jacobian(x, J)
}

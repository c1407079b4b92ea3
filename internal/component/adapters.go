package component

import (
	"errors"

	"github.com/vkazantsev/diffgrid/internal/deriv"
	"gonum.org/v1/gonum/mat"
)

// syntheticKind marks a Provider adapter that doesn't correspond to one of
// the six named derivative variants — it exists only to plug an already-
// computed Jacobian (delegated or identity) into the Provider interface.
const syntheticKind = deriv.Kind(-1)

// jacobianFuncProvider adapts a Jacobian-only query function (such as
// Explicit.Jacobian) into a deriv.Provider, for components whose Jacobian
// is obtained by delegating to another component rather than by AD/FD/
// analytic evaluation directly — the shape LiftExplicit needs for ∂r/∂x.
type jacobianFuncProvider struct {
	f func(x []float64) (*mat.Dense, error)
}

func (p jacobianFuncProvider) Kind() deriv.Kind    { return syntheticKind }
func (p jacobianFuncProvider) CanOutput() bool     { return false }
func (p jacobianFuncProvider) CanJacobian() bool   { return true }

func (p jacobianFuncProvider) Output(x, y []float64) error {
	return errors.New("jacobianFuncProvider: output not supported")
}

func (p jacobianFuncProvider) Jacobian(x []float64, J *mat.Dense) error {
	got, err := p.f(x)
	if err != nil {
		return err
	}
	J.Copy(got)
	return nil
}

func (p jacobianFuncProvider) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	return p.Jacobian(x, J)
}

// negatedJacobian wraps another Jacobian source and negates its result,
// realizing ∂r/∂x = -J_f for an explicit-to-implicit lift.
type negatedJacobian struct {
	inner jacobianFuncProvider
}

func (p *negatedJacobian) Kind() deriv.Kind { return syntheticKind }
func (p *negatedJacobian) CanOutput() bool   { return false }
func (p *negatedJacobian) CanJacobian() bool { return true }

func (p *negatedJacobian) Output(x, y []float64) error {
	return errors.New("negatedJacobian: output not supported")
}

func (p *negatedJacobian) Jacobian(x []float64, J *mat.Dense) error {
	if err := p.inner.Jacobian(x, J); err != nil {
		return err
	}
	J.Scale(-1, J)
	return nil
}

func (p *negatedJacobian) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	return p.Jacobian(x, J)
}

// identityProvider is a Jacobian source whose Jacobian is always the n x n
// identity, realizing ∂r/∂y = I for an explicit-to-implicit lift.
type identityProvider struct {
	n int
}

func (p identityProvider) Kind() deriv.Kind { return syntheticKind }
func (p identityProvider) CanOutput() bool   { return true }
func (p identityProvider) CanJacobian() bool { return true }

func (p identityProvider) Output(x, y []float64) error {
	copy(y, x)
	return nil
}

func (p identityProvider) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if i == j {
				J.Set(i, j, 1)
			} else {
				J.Set(i, j, 0)
			}
		}
	}
	return nil
}

func (p identityProvider) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := p.Output(x, y); err != nil {
		return err
	}
	return p.Jacobian(x, J)
}

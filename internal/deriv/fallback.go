package deriv

import "gonum.org/v1/gonum/mat"

// Fallback composes an output provider and a Jacobian provider into a
// single Provider satisfying combined output-and-Jacobian calls:
//
//   - If a single Provider can do both (its CanOutput and CanJacobian are
//     both true) and is passed as both out and jac, its own
//     OutputAndJacobian is used directly — no separate calls.
//   - If out and jac differ, a combined call invokes Output then Jacobian
//     in sequence.
//   - An analytic provider, when present, is always preferred as the
//     Jacobian source; callers arrange this by passing it as jac.
func Fallback(out, jac Provider) Provider {
	if out == jac {
		return out
	}
	return &fallback{out: out, jac: jac}
}

type fallback struct {
	out Provider
	jac Provider
}

func (f *fallback) Kind() Kind { return f.jac.Kind() }

func (f *fallback) CanOutput() bool { return f.out.CanOutput() }

func (f *fallback) CanJacobian() bool { return f.jac.CanJacobian() }

func (f *fallback) Output(x, y []float64) error { return f.out.Output(x, y) }

func (f *fallback) Jacobian(x []float64, J *mat.Dense) error { return f.jac.Jacobian(x, J) }

// OutputAndJacobian calls the output provider and the Jacobian provider in
// sequence, since a single provider supplying both is the out == jac case
// Fallback already short-circuits away.
func (f *fallback) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := f.out.Output(x, y); err != nil {
		return err
	}
	return f.jac.Jacobian(x, J)
}

// PreferAnalytic returns analytic if it can produce a Jacobian, otherwise
// fallback: an analytic Jacobian provider, when present, is always
// preferred over an AD/FD provider.
func PreferAnalytic(analyticProvider, fallbackProvider Provider) Provider {
	if analyticProvider != nil && analyticProvider.CanJacobian() {
		return analyticProvider
	}
	return fallbackProvider
}

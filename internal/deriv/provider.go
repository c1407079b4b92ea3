// Package deriv implements diffgrid's derivative provider abstraction: the
// set of ways a Jacobian can be produced for a user-supplied primal function
// — analytic user code, forward- or reverse-mode automatic differentiation,
// forward/central finite differences, or complex-step differentiation — all
// behind one call signature, with a fallback policy for combining or
// splitting output-and-Jacobian calls.
package deriv

import (
	"fmt"
	"math"

	"github.com/vkazantsev/diffgrid/internal/errs"
	"gonum.org/v1/gonum/mat"
)

// Primal is the user's function, evaluated at flattened x into flattened y.
// len(x) and len(y) must match the component's declared nx/ny; the function
// must not retain x or y beyond the call.
type Primal func(x []float64) []float64

// Kind identifies a derivative provider variant.
type Kind int

const (
	// Analytic wraps a user-supplied df/fdf routine; no numerical error.
	Analytic Kind = iota
	// ForwardAD sweeps dual numbers through a primal written against a
	// generic element type, one dual direction per input column.
	ForwardAD
	// ReverseAD runs a tape sweep over a primal written against a generic
	// element type, propagating adjoints from each output.
	ReverseAD
	// ForwardFD is one-sided finite differences: (f(x+h e_j) - f(x)) / h.
	ForwardFD
	// CentralFD is centered finite differences: (f(x+h e_j) - f(x-h e_j)) / 2h.
	CentralFD
	// ComplexFD is complex-step differentiation: Im(f(x + i h e_j)) / h.
	ComplexFD
)

func (k Kind) String() string {
	switch k {
	case Analytic:
		return "analytic"
	case ForwardAD:
		return "forward-ad"
	case ReverseAD:
		return "reverse-ad"
	case ForwardFD:
		return "forward-fd"
	case CentralFD:
		return "central-fd"
	case ComplexFD:
		return "complex-fd"
	default:
		return fmt.Sprintf("deriv.Kind(%d)", int(k))
	}
}

// Default step sizes, expressed from machine epsilon.
var (
	DefaultForwardFDStep = math.Sqrt(machineEps)
	DefaultCentralFDStep = math.Cbrt(machineEps)
	DefaultComplexFDStep = 1e-20
)

const machineEps = 2.220446049250313e-16

// Provider produces a Jacobian for a primal function at a point, optionally
// together with the primal's own output. Implementations may satisfy only
// F, only DF, only FDF, or any combination — Fallback (fallback.go) composes
// partial providers into the combination a caller actually needs.
type Provider interface {
	// Kind identifies which variant this Provider implements.
	Kind() Kind

	// CanOutput reports whether this Provider can produce y = f(x) itself
	// (true for every AD/FD variant; an Analytic provider reports false when
	// it was given neither F nor FDF).
	CanOutput() bool

	// CanJacobian reports whether this Provider can produce a Jacobian.
	CanJacobian() bool

	// Output evaluates the primal at x, writing into y (len(y) == ny).
	Output(x, y []float64) error

	// Jacobian evaluates the Jacobian at x into J (shape ny x nx).
	Jacobian(x []float64, J *mat.Dense) error

	// OutputAndJacobian evaluates both in one call when the underlying
	// routine can do so more cheaply than two separate calls; callers that
	// don't care use Fallback instead of calling this directly.
	OutputAndJacobian(x, y []float64, J *mat.Dense) error
}

// newShapeError reports a Jacobian/output buffer whose dimensions don't
// match the primal's declared nx/ny.
func newShapeError(where string, gotRows, gotCols, wantRows, wantCols int) error {
	return fmt.Errorf("%s: %w: got (%d,%d), want (%d,%d)", where, errs.SizeMismatch, gotRows, gotCols, wantRows, wantCols)
}

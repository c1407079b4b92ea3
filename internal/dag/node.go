// Package dag implements diffgrid's explicit system: a directed graph of
// inner components joined by a routing table, with forward-sweep output
// evaluation and forward- or reverse-mode chain-rule Jacobian assembly.
package dag

import (
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// Node is anything a System can route into its graph: diffgrid's
// *component.Explicit satisfies this directly; an implicit component must
// first be converted via solver.ToExplicit since only explicit components
// have a well-defined forward output map to route through.
type Node interface {
	Outputs(x []float64) ([]float64, error)
	Jacobian(x []float64) (*mat.Dense, error)
	OutputsAndJacobian(x []float64) ([]float64, *mat.Dense, error)
	NX() int
	NY() int
	InVars() []variable.Variable
	OutVars() []variable.Variable
}

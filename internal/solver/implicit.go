package solver

import (
	"github.com/vkazantsev/diffgrid/internal/component"
	"github.com/vkazantsev/diffgrid/internal/implicitsys"
)

// ToImplicit converts an explicit component into an implicit Inner via
// r = y − f(x), the converse of ToExplicit. It lives beside ToExplicit so
// both halves of the conversion are reachable from one package, even
// though the forward direction needs no solver of its own — it delegates
// to component.LiftExplicit, which does the actual wrapping.
func ToImplicit(e *component.Explicit) (implicitsys.Inner, error) {
	return component.LiftExplicit(e)
}

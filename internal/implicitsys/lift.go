package implicitsys

import "github.com/vkazantsev/diffgrid/internal/component"

// Lift converts an explicit component into an Inner an implicit System can
// route, via r = y - f(x) (component.LiftExplicit). Use this when an
// implicit system's inner components are a mix of genuinely implicit
// components and explicit ones folded in for the coupling.
func Lift(e *component.Explicit) (Inner, error) {
	return component.LiftExplicit(e)
}

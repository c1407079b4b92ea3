// Package errs defines the typed error kinds every diffgrid entry point can
// fail with. Callers compare against the sentinels with errors.Is; internal
// code wraps a sentinel with context via fmt.Errorf("...: %w", errs.Cycle).
package errs

import "errors"

// Sentinel error kinds, matched with errors.Is. A failure of one of the kinds
// below wraps exactly one of these; other errors wrap none (for example a
// no-args cached query made before any evaluation, a duplicate variable
// name, or a malformed variable default).
var (
	// SizeMismatch: a supplied buffer is too small for the declared layout,
	// or a user function's returned value flattens to an unexpected length.
	SizeMismatch = errors.New("size mismatch")

	// UnresolvedInput: an inner component's input matched neither argin nor
	// an earlier component's output.
	UnresolvedInput = errors.New("unresolved input")

	// UnresolvedOutput: a declared argout is not reachable from any
	// component's output.
	UnresolvedOutput = errors.New("unresolved output")

	// Cycle: routing would require a component to consume the output of a
	// component that has not run yet.
	Cycle = errors.New("cycle in component graph")

	// ProviderUnavailable: no analytic, AD, or FD provider can satisfy the
	// requested Jacobian.
	ProviderUnavailable = errors.New("derivative provider unavailable")

	// SolveDiverged: Newton iteration exceeded its budget, stagnated, or hit
	// a non-finite residual or Jacobian.
	SolveDiverged = errors.New("newton solve diverged")

	// SingularJacobian: the linear solve for dy/dx (or a Newton step) failed
	// because ∂r/∂y was singular or numerically unstable.
	SingularJacobian = errors.New("singular jacobian")
)

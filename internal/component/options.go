package component

import (
	"github.com/vkazantsev/diffgrid/internal/deriv"
	"gonum.org/v1/gonum/mat"
)

// config collects the functional options every component constructor
// accepts: a derivative provider, an FD step, and a workspace buffer,
// realized as Go options rather than a textual configuration format.
type config struct {
	provider     deriv.Provider
	analyticDF   deriv.JacobianFunc
	fdStep       float64
	workspace    *mat.Dense
}

// Option configures an Explicit or Implicit component at construction.
type Option func(*config)

// WithDeriv selects an explicit derivative Provider, overriding the
// component's default finite-difference fallback. Use this to plug in
// ForwardAD, ReverseAD, or ComplexFD providers built against the
// component's own primal.
func WithDeriv(p deriv.Provider) Option {
	return func(c *config) { c.provider = p }
}

// WithAnalyticJacobian supplies an analytic Jacobian routine operating on
// the component's flat input, used together with the component's own
// wrapped primal as the combined Analytic provider: an analytic Jacobian,
// when present, is always preferred over AD/FD.
func WithAnalyticJacobian(df deriv.JacobianFunc) Option {
	return func(c *config) { c.analyticDF = df }
}

// WithFDStep overrides the step size of the component's default
// finite-difference provider. Ignored if WithDeriv is also given.
func WithFDStep(h float64) Option {
	return func(c *config) { c.fdStep = h }
}

// WithWorkspace pre-supplies the Jacobian buffer a component caches into,
// letting the caller control its allocation instead of the component
// allocating one at construction.
func WithWorkspace(J *mat.Dense) Option {
	return func(c *config) { c.workspace = J }
}

func applyOptions(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

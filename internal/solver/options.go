package solver

// NewtonConfig collects diffgrid's damped-Newton configuration:
// absolute/relative residual tolerance, the iteration budget, and a fixed
// damping factor applied to every step.
type NewtonConfig struct {
	ATol    float64
	RTol    float64
	MaxIter int
	Damping float64
}

// DefaultNewtonConfig returns the damped-Newton defaults ToExplicit falls
// back to when WithNewtonConfig is not given.
func DefaultNewtonConfig() NewtonConfig {
	return NewtonConfig{
		ATol:    1e-10,
		RTol:    1e-8,
		MaxIter: 50,
		Damping: 1.0,
	}
}

type config struct {
	newton NewtonConfig
}

// Option configures ToExplicit, the same functional-options idiom
// internal/component and internal/dag use for their own constructors.
type Option func(*config)

// WithNewtonConfig overrides the damped-Newton parameters ToExplicit's
// solver uses, in place of DefaultNewtonConfig.
func WithNewtonConfig(cfg NewtonConfig) Option {
	return func(c *config) { c.newton = cfg }
}

func applyOptions(opts []Option) config {
	c := config{newton: DefaultNewtonConfig()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

package dag

// config collects the functional options a System accepts at Build time.
type config struct {
	mode Mode
}

// Option configures a System at construction.
type Option func(*config)

// WithMode overrides the system's automatic forward/reverse mode policy,
// which otherwise selects forward mode when nx <= ny.
func WithMode(m Mode) Option {
	return func(c *config) { c.mode = m }
}

func applyOptions(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (m Mode) resolve(nx, ny int) Mode {
	if m != Auto {
		return m
	}
	if nx <= ny {
		return Forward
	}
	return Reverse
}

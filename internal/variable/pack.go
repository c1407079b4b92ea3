package variable

// Combine allocates a flat vector of width Layout.Width() and writes each
// Variable's default into its slice, in declaration order.
func (l *Layout) Combine() []float64 {
	v := make([]float64, l.width)
	for i, variable := range l.vars {
		copy(l.Slice(v, i), variable.Default())
	}
	return v
}

// CombineInto writes each Variable's default into the caller-provided buffer
// v, which must have length >= Layout.Width(). Returns SizeMismatch if v is
// too short.
func (l *Layout) CombineInto(v []float64) error {
	if err := l.checkWidth(v); err != nil {
		return err
	}
	for i, variable := range l.vars {
		copy(l.Slice(v, i), variable.Default())
	}
	return nil
}

// Separate produces one View per Variable, each a window into v that
// preserves the Variable's shape. Mutating a View writes through to v.
// Returns SizeMismatch if v is shorter than the Layout's width.
func (l *Layout) Separate(v []float64) ([]View, error) {
	if err := l.checkWidth(v); err != nil {
		return nil, err
	}
	views := make([]View, len(l.vars))
	for i, variable := range l.vars {
		views[i] = NewView(variable.Shape(), l.Slice(v, i))
	}
	return views, nil
}

// SeparateInto copies each Variable's slice of v into the corresponding
// caller-provided buffer in dst (dst[i] must have length >= vars[i].Size()).
// Unlike Separate, the destination buffers are independent copies, not views
// into v.
func (l *Layout) SeparateInto(dst [][]float64, v []float64) error {
	if err := l.checkWidth(v); err != nil {
		return err
	}
	if len(dst) != len(l.vars) {
		return errDstArity(len(dst), len(l.vars))
	}
	for i := range l.vars {
		src := l.Slice(v, i)
		if len(dst[i]) < len(src) {
			return errBufTooSmall(i, len(dst[i]), len(src))
		}
		copy(dst[i], src)
	}
	return nil
}

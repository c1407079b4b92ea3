package variable

import (
	"fmt"
	"strings"

	"github.com/vkazantsev/diffgrid/internal/errs"
)

// Layout enumerates, for an ordered tuple of Variables, the contiguous index
// range [offset, offset+size) each occupies inside a flat vector. Layouts are
// computed once at construction and never mutated; layout order equals
// declaration order — there is no alphabetization or reordering.
type Layout struct {
	vars    []Variable
	offsets []int
	width   int
}

// NewLayout computes the Layout for vars, in declaration order.
func NewLayout(vars []Variable) *Layout {
	offsets := make([]int, len(vars))
	width := 0
	for i, v := range vars {
		offsets[i] = width
		width += v.Size()
	}
	return &Layout{vars: append([]Variable(nil), vars...), offsets: offsets, width: width}
}

// Vars returns the Layout's Variables, in declaration order.
func (l *Layout) Vars() []Variable { return l.vars }

// Width returns the total flat vector length the Layout describes.
func (l *Layout) Width() int { return l.width }

// Offset returns the starting index of the i-th Variable's slice.
func (l *Layout) Offset(i int) int { return l.offsets[i] }

// Range returns the [start, end) flat index range of the i-th Variable.
func (l *Layout) Range(i int) (int, int) {
	start := l.offsets[i]
	return start, start + l.vars[i].Size()
}

// IndexOf returns the position of the Variable named name, or -1.
func (l *Layout) IndexOf(name string) int {
	for i, v := range l.vars {
		if v.Name() == name {
			return i
		}
	}
	return -1
}

// Slice returns the sub-slice of v belonging to the i-th Variable. The
// returned slice aliases v — writes through it mutate v.
func (l *Layout) Slice(v []float64, i int) []float64 {
	start, end := l.Range(i)
	return v[start:end]
}

// String renders the Layout as its variables in declaration order, e.g.
// "[x() y() f(10)]", for readable test failures and debug logs.
func (l *Layout) String() string {
	names := make([]string, len(l.vars))
	for i, v := range l.vars {
		names[i] = v.String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// checkWidth returns a SizeMismatch-wrapped error if v is shorter than the
// Layout's width.
func (l *Layout) checkWidth(v []float64) error {
	if len(v) < l.width {
		return fmt.Errorf("%w: buffer has length %d, layout needs %d", errs.SizeMismatch, len(v), l.width)
	}
	return nil
}

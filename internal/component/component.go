// Package component implements diffgrid's explicit and implicit component
// types: an immutable descriptor (declared input/output variables, a
// derivative provider) plus the mutable evaluation caches and the
// four-suffix call contract shared by every evaluable type in diffgrid.
package component

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// cache holds a component's last input and the validity of its cached
// output/Jacobian for that input — the mutable state the four-suffix
// contract reads and writes. A single x* is shared between the output and
// Jacobian caches: last input, last output, last Jacobian block(s).
type cache struct {
	x      []float64
	yValid bool
	jValid bool
}

// sync compares x against the cached input. If it differs, it overwrites
// the cache's x and invalidates both the output and Jacobian caches,
// reporting that the input changed.
func (c *cache) sync(x []float64) bool {
	if c.x != nil && equalFloats(c.x, x) {
		return false
	}
	if c.x == nil {
		c.x = make([]float64, len(x))
	}
	copy(c.x, x)
	c.yValid = false
	c.jValid = false
	return true
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkLen wraps SizeMismatch with a field name for constructor/call-site
// buffer validation.
func checkLen(field string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w: got length %d, want %d", field, errs.SizeMismatch, got, want)
	}
	return nil
}

// checkJacobianShape validates a caller-supplied Jacobian buffer's shape.
func checkJacobianShape(field string, J *mat.Dense, wantRows, wantCols int) error {
	rows, cols := J.Dims()
	if rows != wantRows || cols != wantCols {
		return fmt.Errorf("%s: %w: got (%d,%d), want (%d,%d)", field, errs.SizeMismatch, rows, cols, wantRows, wantCols)
	}
	return nil
}

// namesUnique reports whether vars contains no repeated Variable name.
func namesUnique(vars []variable.Variable) error {
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if seen[v.Name()] {
			return fmt.Errorf("duplicate variable name %q", v.Name())
		}
		seen[v.Name()] = true
	}
	return nil
}

func width(vars []variable.Variable) int {
	n := 0
	for _, v := range vars {
		n += v.Size()
	}
	return n
}

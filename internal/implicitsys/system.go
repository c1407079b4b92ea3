// Package implicitsys implements diffgrid's implicit system: a tuple of
// inner components, each carrying its own residual r_k(x_k, y_k) = 0, whose
// outputs are stacked (never eliminated) into one system-wide y, and whose
// residuals and block Jacobians assemble by iterating components in any
// order and writing their slices at precomputed offsets.
package implicitsys

import (
	"context"
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/ctxlog"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// Inner is the subset of *component.Implicit's surface an implicit System
// routes into its residual/Jacobian assembly. *component.Implicit satisfies
// it directly; an inner explicit component must first be lifted via Lift
// (or component.LiftExplicit), since an implicit system's residual
// assembly is defined in terms of r(x, y), not y = f(x).
type Inner interface {
	Residuals(x, y []float64) ([]float64, error)
	ResidualsAndJacobians(x, y []float64) (r []float64, Jx, Jy *mat.Dense, err error)
	NX() int
	NY() int
	NR() int
	InVars() []variable.Variable
	OutVars() []variable.Variable
}

// sourceKind tags where a routed input slice comes from, mirroring
// internal/dag's route but without the forward-reference restriction:
// unlike an explicit system's routing table, an implicit component's input
// may source from any other component's output, including a later one or
// its own — that coupling is exactly what the residual solve resolves.
type sourceKind int

const (
	fromArgin sourceKind = iota
	fromComponent
)

type route struct {
	kind          sourceKind
	componentIdx  int // valid when kind == fromComponent
	offset        int
	size          int
}

// System is diffgrid's implicit system: Residuals/ResidualsAndJacobians over a
// stacked (x, y) pair, where y is the concatenation of every inner
// component's own output tuple.
type System struct {
	name  string
	inner []Inner
	argin []variable.Variable

	arginLayout *variable.Layout
	yLayout     *variable.Layout

	routing        [][]route
	componentYOff  []int
	componentROff  []int

	nx, ny, nr int

	c cache
}

// Name returns the system's declared name.
func (s *System) Name() string { return s.name }

// NX returns the system's external flat input width.
func (s *System) NX() int { return s.nx }

// NY returns the system's stacked output width (the sum of every inner
// component's own output width).
func (s *System) NY() int { return s.ny }

// NR returns the system's stacked residual width (equal to NY, since every
// inner component contributes one residual per declared output).
func (s *System) NR() int { return s.nr }

// InVars returns the system's argin tuple.
func (s *System) InVars() []variable.Variable { return s.argin }

// OutVars returns the system's stacked output tuple: every inner
// component's own OutVars, concatenated in declared order.
func (s *System) OutVars() []variable.Variable {
	return append([]variable.Variable{}, s.yLayout.Vars()...)
}

// Build constructs and validates an implicit System. Each inner component's
// input variables must resolve against argin or some inner component's
// (possibly its own) output variable; no other input is accepted.
func Build(ctx context.Context, name string, inner []Inner, argin []variable.Variable) (*System, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("starting implicit system construction", "system", name, "components", len(inner))

	arginLayout := variable.NewLayout(argin)

	yVars := make([]variable.Variable, 0)
	componentYOff := make([]int, len(inner))
	componentROff := make([]int, len(inner))
	yOff, rOff := 0, 0
	for i, c := range inner {
		componentYOff[i] = yOff
		componentROff[i] = rOff
		yVars = append(yVars, c.OutVars()...)
		yOff += c.NY()
		rOff += c.NR()
	}
	yLayout := variable.NewLayout(yVars)

	routing := make([][]route, len(inner))
	for i, c := range inner {
		rs := make([]route, len(c.InVars()))
		for vi, v := range c.InVars() {
			r, err := resolveRoute(v, inner, arginLayout, componentYOff)
			if err != nil {
				return nil, fmt.Errorf("system %q: component %d (%q) input %q: %w", name, i, nodeName(c), v.Name(), err)
			}
			rs[vi] = r
		}
		routing[i] = rs
	}
	logger.Debug("routing resolved for all inner inputs", "system", name)

	sys := &System{
		name:          name,
		inner:         inner,
		argin:         argin,
		arginLayout:   arginLayout,
		yLayout:       yLayout,
		routing:       routing,
		componentYOff: componentYOff,
		componentROff: componentROff,
		nx:            arginLayout.Width(),
		ny:            yLayout.Width(),
		nr:            rOff,
	}

	logger.Debug("implicit system construction complete", "system", name, "nx", sys.nx, "ny", sys.ny, "nr", sys.nr)
	return sys, nil
}

// Validate checks that every inner component's declared input/output
// variable tuples flatten to the widths it itself reports via NX/NY/NR —
// a static, pre-evaluation parity check against a hand-written Inner
// implementation, since an Inner built by component.NewImplicit or
// Lift already guarantees it.
func (s *System) Validate() error {
	for i, c := range s.inner {
		inWidth := 0
		for _, v := range c.InVars() {
			inWidth += v.Size()
		}
		if inWidth != c.NX() {
			return fmt.Errorf("system %q: component %d (%q): input vars total width %d, NX() reports %d", s.name, i, nodeName(c), inWidth, c.NX())
		}
		outWidth := 0
		for _, v := range c.OutVars() {
			outWidth += v.Size()
		}
		if outWidth != c.NY() {
			return fmt.Errorf("system %q: component %d (%q): output vars total width %d, NY() reports %d", s.name, i, nodeName(c), outWidth, c.NY())
		}
		if c.NR() != c.NY() {
			return fmt.Errorf("system %q: component %d (%q): NR() %d != NY() %d", s.name, i, nodeName(c), c.NR(), c.NY())
		}
	}
	return nil
}

func nodeName(c Inner) string {
	type named interface{ Name() string }
	if nm, ok := c.(named); ok {
		return nm.Name()
	}
	return "?"
}

// resolveRoute matches input variable v against argin first, then against
// any inner component's output variables — including the component's own,
// since a component may legitimately depend on its own output through an
// algebraic loop the residual solve is meant to resolve.
func resolveRoute(v variable.Variable, inner []Inner, arginLayout *variable.Layout, componentYOff []int) (route, error) {
	if i := arginLayout.IndexOf(v.Name()); i >= 0 {
		start, _ := arginLayout.Range(i)
		return route{kind: fromArgin, offset: start, size: v.Size()}, nil
	}
	for j, c := range inner {
		if off, size, ok := outputOffset(v.Name(), c); ok {
			return route{kind: fromComponent, componentIdx: j, offset: componentYOff[j] + off, size: size}, nil
		}
	}
	return route{}, errs.UnresolvedInput
}

func outputOffset(name string, c Inner) (offset, size int, ok bool) {
	off := 0
	for _, v := range c.OutVars() {
		if v.Name() == name {
			return off, v.Size(), true
		}
		off += v.Size()
	}
	return 0, 0, false
}

// gatherInput builds the flat x_k for component k from the system's
// external input x and the stacked output y, following the routing table.
func (s *System) gatherInput(k int, x, y []float64) []float64 {
	in := make([]float64, s.inner[k].NX())
	pos := 0
	for _, r := range s.routing[k] {
		var src []float64
		if r.kind == fromArgin {
			src = x[r.offset : r.offset+r.size]
		} else {
			src = y[r.offset : r.offset+r.size]
		}
		copy(in[pos:pos+r.size], src)
		pos += r.size
	}
	return in
}

func checkLen(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w: got length %d, want %d", what, errs.SizeMismatch, got, want)
	}
	return nil
}

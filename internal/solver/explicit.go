package solver

import (
	"context"
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/implicitsys"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// NewtonExplicit wraps an implicit Inner (a *component.Implicit, or a
// *implicitsys.System for nesting a converged sub-assembly back into an
// outer explicit system) into the Node surface internal/dag routes:
// Outputs solves the residual by damped Newton, warm-started from the
// previous converged y; Jacobian recovers ∂y/∂x via the implicit function
// theorem. It carries its own construction-time context for the per-
// iteration debug logging Newton.Solve emits, since the Node interface's
// Outputs/Jacobian signatures — shared with every other routable node —
// take no context.
type NewtonExplicit struct {
	ctx    context.Context
	name   string
	inner  implicitsys.Inner
	newton *Newton

	nx, ny          int
	inVars, outVars []variable.Variable

	warmY []float64

	lastX  []float64
	yValid bool
	jValid bool
	lastY  []float64
	lastJ  *mat.Dense
}

// ToExplicit converts an implicit Inner with nr == ny into an explicit
// Node by wrapping it in a damped Newton solve. The inner must already be
// fully constructed (component.NewImplicit, implicitsys.Build, or a
// lifted explicit component); ToExplicit only adds the Newton wrapper
// around it.
func ToExplicit(ctx context.Context, name string, inner implicitsys.Inner, opts ...Option) (*NewtonExplicit, error) {
	if inner.NR() != inner.NY() {
		return nil, fmt.Errorf("solver: %q: %w: nr (%d) != ny (%d)", name, errs.SizeMismatch, inner.NR(), inner.NY())
	}
	cfg := applyOptions(opts)
	outLayout := variable.NewLayout(inner.OutVars())

	return &NewtonExplicit{
		ctx:     ctx,
		name:    name,
		inner:   inner,
		newton:  NewNewton(cfg.newton),
		nx:      inner.NX(),
		ny:      inner.NY(),
		inVars:  inner.InVars(),
		outVars: inner.OutVars(),
		warmY:   outLayout.Combine(),
		lastY:   make([]float64, inner.NY()),
		lastJ:   mat.NewDense(inner.NY(), inner.NX(), nil),
	}, nil
}

// Name returns the wrapper's declared name.
func (e *NewtonExplicit) Name() string { return e.name }

// NX returns the flat external input width.
func (e *NewtonExplicit) NX() int { return e.nx }

// NY returns the flat stacked output width.
func (e *NewtonExplicit) NY() int { return e.ny }

// InVars returns the inner's declared argin tuple.
func (e *NewtonExplicit) InVars() []variable.Variable { return e.inVars }

// OutVars returns the inner's declared, stacked output tuple.
func (e *NewtonExplicit) OutVars() []variable.Variable { return e.outVars }

func (e *NewtonExplicit) syncState(x []float64) bool {
	changed := e.lastX == nil || !equalFloats(e.lastX, x)
	if !changed {
		return false
	}
	if e.lastX == nil {
		e.lastX = make([]float64, e.nx)
	}
	copy(e.lastX, x)
	e.yValid = false
	e.jValid = false
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

func checkLen(field string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w: got length %d, want %d", field, errs.SizeMismatch, got, want)
	}
	return nil
}

func checkJacobianShape(field string, J *mat.Dense, wantRows, wantCols int) error {
	gotRows, gotCols := J.Dims()
	if gotRows != wantRows || gotCols != wantCols {
		return fmt.Errorf("%s: %w: got shape (%d, %d), want (%d, %d)", field, errs.SizeMismatch, gotRows, gotCols, wantRows, wantCols)
	}
	return nil
}

func (e *NewtonExplicit) solve(x []float64) error {
	y, dydx, _, _, _, err := e.newton.Solve(e.ctx, e.inner, x, e.warmY)
	if err != nil {
		return fmt.Errorf("solver %q: %w", e.name, err)
	}
	copy(e.lastY, y)
	copy(e.warmY, y)
	e.lastJ.Copy(dydx)
	e.yValid = true
	e.jValid = true
	return nil
}

func (e *NewtonExplicit) ensure(x []float64, force bool) error {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return err
	}
	changed := e.syncState(x)
	if !force && !changed && e.yValid && e.jValid {
		return nil
	}
	return e.solve(e.lastX)
}

// Outputs is the query variant: it always solves fresh and never touches
// the wrapper's cache.
func (e *NewtonExplicit) Outputs(x []float64) ([]float64, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, err
	}
	y, _, _, _, _, err := e.newton.Solve(e.ctx, e.inner, x, e.warmY)
	if err != nil {
		return nil, fmt.Errorf("solver %q: %w", e.name, err)
	}
	return y, nil
}

// OutputsInto is the "!" with-buffer variant.
func (e *NewtonExplicit) OutputsInto(y, x []float64) error {
	if err := checkLen("y", len(y), e.ny); err != nil {
		return err
	}
	if err := e.ensure(x, false); err != nil {
		return err
	}
	copy(y, e.lastY)
	return nil
}

// OutputsCached is the "!" without-buffers variant.
func (e *NewtonExplicit) OutputsCached(x []float64) ([]float64, error) {
	if err := e.ensure(x, false); err != nil {
		return nil, err
	}
	return e.lastY, nil
}

// OutputsForce is the "!!" variant.
func (e *NewtonExplicit) OutputsForce(x []float64) ([]float64, error) {
	if err := e.ensure(x, true); err != nil {
		return nil, err
	}
	return e.lastY, nil
}

// OutputsCurrent is the no-args query variant.
func (e *NewtonExplicit) OutputsCurrent() ([]float64, error) {
	if !e.yValid {
		return nil, fmt.Errorf("solver %q: outputs() called before any evaluation", e.name)
	}
	return e.lastY, nil
}

// Jacobian is the query variant of ∂y/∂x.
func (e *NewtonExplicit) Jacobian(x []float64) (*mat.Dense, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, err
	}
	_, dydx, _, _, _, err := e.newton.Solve(e.ctx, e.inner, x, e.warmY)
	if err != nil {
		return nil, fmt.Errorf("solver %q: %w", e.name, err)
	}
	return dydx, nil
}

// JacobianInto is the "!" with-buffer variant.
func (e *NewtonExplicit) JacobianInto(J *mat.Dense, x []float64) error {
	if err := checkJacobianShape("J", J, e.ny, e.nx); err != nil {
		return err
	}
	if err := e.ensure(x, false); err != nil {
		return err
	}
	J.Copy(e.lastJ)
	return nil
}

// JacobianCached is the "!" without-buffer variant.
func (e *NewtonExplicit) JacobianCached(x []float64) (*mat.Dense, error) {
	if err := e.ensure(x, false); err != nil {
		return nil, err
	}
	return e.lastJ, nil
}

// JacobianForce is the "!!" variant.
func (e *NewtonExplicit) JacobianForce(x []float64) (*mat.Dense, error) {
	if err := e.ensure(x, true); err != nil {
		return nil, err
	}
	return e.lastJ, nil
}

// JacobianCurrent is the no-args query variant.
func (e *NewtonExplicit) JacobianCurrent() (*mat.Dense, error) {
	if !e.jValid {
		return nil, fmt.Errorf("solver %q: jacobian() called before any evaluation", e.name)
	}
	return e.lastJ, nil
}

// OutputsAndJacobian evaluates both from a single Newton solve.
func (e *NewtonExplicit) OutputsAndJacobian(x []float64) ([]float64, *mat.Dense, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, nil, err
	}
	y, dydx, _, _, _, err := e.newton.Solve(e.ctx, e.inner, x, e.warmY)
	if err != nil {
		return nil, nil, fmt.Errorf("solver %q: %w", e.name, err)
	}
	return y, dydx, nil
}

// OutputsAndJacobianInto is the "!" with-buffers variant.
func (e *NewtonExplicit) OutputsAndJacobianInto(y []float64, J *mat.Dense, x []float64) error {
	if err := checkLen("y", len(y), e.ny); err != nil {
		return err
	}
	if err := checkJacobianShape("J", J, e.ny, e.nx); err != nil {
		return err
	}
	if err := e.ensure(x, false); err != nil {
		return err
	}
	copy(y, e.lastY)
	J.Copy(e.lastJ)
	return nil
}

// OutputsAndJacobianCached is the "!" without-buffers variant.
func (e *NewtonExplicit) OutputsAndJacobianCached(x []float64) ([]float64, *mat.Dense, error) {
	if err := e.ensure(x, false); err != nil {
		return nil, nil, err
	}
	return e.lastY, e.lastJ, nil
}

// OutputsAndJacobianForce is the "!!" variant.
func (e *NewtonExplicit) OutputsAndJacobianForce(x []float64) ([]float64, *mat.Dense, error) {
	if err := e.ensure(x, true); err != nil {
		return nil, nil, err
	}
	return e.lastY, e.lastJ, nil
}

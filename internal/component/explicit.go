package component

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/deriv"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// UserFunc is the calling convention for an explicit component's primal:
// outMut are output buffers, passed positionally first in out_mut
// declaration order; in are input values, passed positionally next in
// in_vars order. The return value is the concatenation of out_vars
// (non-mutating outputs), in declaration order.
type UserFunc func(outMut []variable.View, in []variable.View) []float64

// Explicit wraps a user function y = f(x) with caches and a derivative
// provider, exposing the four-suffix outputs/jacobian/outputs_and_jacobian
// operations.
type Explicit struct {
	name string

	inVars  []variable.Variable
	outVars []variable.Variable
	outMut  []variable.Variable

	inLayout      *variable.Layout
	outVarsLayout *variable.Layout
	outMutLayout  *variable.Layout

	nx, ny int

	fn       UserFunc
	provider deriv.Provider

	outMutScratch []float64

	cache
	lastY []float64
	lastJ *mat.Dense

	// fnErr is set by primal when the user's fn returns a value whose
	// flattened length doesn't match the declared out_vars width, and
	// cleared by the next checkFnErr call. primal itself has no error
	// return — it's used directly as a deriv.Primal by the provider — so
	// every public entry point checks it right after the provider call
	// that may have driven primal.
	fnErr error
}

// NewExplicit builds an Explicit component. inVars, outVars, and outMut
// must have pairwise-unique names across all three tuples considered
// together is not required — only within each layout's own Combine/Separate
// use — but inVars names must be unique among themselves, and so must the
// combined (outVars, outMut) output tuple, since together they form one
// flat output vector, ordered out_vars then out_mut.
func NewExplicit(name string, fn UserFunc, inVars, outVars, outMut []variable.Variable, opts ...Option) (*Explicit, error) {
	if err := namesUnique(inVars); err != nil {
		return nil, fmt.Errorf("component %q: input vars: %w", name, err)
	}
	combinedOut := append(append([]variable.Variable{}, outVars...), outMut...)
	if err := namesUnique(combinedOut); err != nil {
		return nil, fmt.Errorf("component %q: output vars: %w", name, err)
	}

	e := &Explicit{
		name:          name,
		inVars:        inVars,
		outVars:       outVars,
		outMut:        outMut,
		inLayout:      variable.NewLayout(inVars),
		outVarsLayout: variable.NewLayout(outVars),
		outMutLayout:  variable.NewLayout(outMut),
		fn:            fn,
	}
	e.nx = e.inLayout.Width()
	e.ny = e.outVarsLayout.Width() + e.outMutLayout.Width()
	e.outMutScratch = e.outMutLayout.Combine()
	e.lastY = make([]float64, e.ny)

	cfg := applyOptions(opts)
	if cfg.workspace != nil {
		if err := checkJacobianShape("workspace", cfg.workspace, e.ny, e.nx); err != nil {
			return nil, fmt.Errorf("component %q: %w", name, err)
		}
		e.lastJ = cfg.workspace
	} else {
		e.lastJ = mat.NewDense(e.ny, e.nx, nil)
	}

	switch {
	case cfg.analyticDF != nil:
		e.provider = deriv.NewAnalytic(deriv.AnalyticConfig{F: e.primal, DF: cfg.analyticDF})
	case cfg.provider != nil:
		e.provider = cfg.provider
	default:
		e.provider = deriv.NewCentralFD(e.primal, e.nx, e.ny, cfg.fdStep)
	}

	return e, nil
}

// Describe returns the component's declared input/output variable tuples
// and flat sizes, without evaluating it.
func (e *Explicit) Describe() (inVars, outVars, outMut []variable.Variable, nx, ny int) {
	return e.inVars, e.outVars, e.outMut, e.nx, e.ny
}

// NX returns the component's flat input width.
func (e *Explicit) NX() int { return e.nx }

// NY returns the component's flat output width.
func (e *Explicit) NY() int { return e.ny }

// Name returns the component's declared name.
func (e *Explicit) Name() string { return e.name }

// InVars returns the component's declared input variable tuple.
func (e *Explicit) InVars() []variable.Variable { return e.inVars }

// OutVars returns the component's full flat output tuple: out_vars first,
// then out_mut, matching the ordering of its flat output vector.
func (e *Explicit) OutVars() []variable.Variable {
	return append(append([]variable.Variable{}, e.outVars...), e.outMut...)
}

// primal is the wrapped user function as a flat x -> y map, performing the
// four steps of input/output packing: unpack inputs, bind out_mut scratch
// views, invoke fn, and concatenate out_vars then out_mut into one flat
// result. Each call returns a fresh slice — callers that
// sweep it repeatedly (finite differences) rely on that.
func (e *Explicit) primal(x []float64) []float64 {
	inViews, err := e.inLayout.Separate(x)
	if err != nil {
		panic(err) // a malformed x here is a caller bug, not a runtime condition
	}
	outMutViews, err := e.outMutLayout.Separate(e.outMutScratch)
	if err != nil {
		panic(err)
	}
	ret := e.fn(outMutViews, inViews)
	if len(ret) != e.outVarsLayout.Width() {
		e.fnErr = fmt.Errorf("component %q: user function returned %d outputs, want %d: %w", e.name, len(ret), e.outVarsLayout.Width(), errs.SizeMismatch)
	}

	y := make([]float64, e.ny)
	copy(y, ret)
	copy(y[e.outVarsLayout.Width():], e.outMutScratch)
	return y
}

// checkFnErr returns and clears any SizeMismatch primal recorded the last
// time it ran.
func (e *Explicit) checkFnErr() error {
	if e.fnErr == nil {
		return nil
	}
	err := e.fnErr
	e.fnErr = nil
	return err
}

// callProvider forwards a provider call's own error, or else the SizeMismatch
// primal recorded while the provider was driving it.
func (e *Explicit) callProvider(err error) error {
	if err != nil {
		return err
	}
	return e.checkFnErr()
}

// Outputs is the query variant: it always evaluates fresh and never
// touches the component's cache.
func (e *Explicit) Outputs(x []float64) ([]float64, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, err
	}
	y := make([]float64, e.ny)
	if err := e.callProvider(e.provider.Output(x, y)); err != nil {
		return nil, err
	}
	return y, nil
}

// OutputsInto is the "!" with-buffers variant: it writes into y (mutating
// the cache as a side effect) unless the cache already holds this x.
func (e *Explicit) OutputsInto(y, x []float64) error {
	if err := checkLen("y", len(y), e.ny); err != nil {
		return err
	}
	if err := e.ensureOutputs(x, false); err != nil {
		return err
	}
	copy(y, e.lastY)
	return nil
}

// OutputsCached is the "!" without-buffers variant: it writes into the
// component's own cache and returns a reference to it.
func (e *Explicit) OutputsCached(x []float64) ([]float64, error) {
	if err := e.ensureOutputs(x, false); err != nil {
		return nil, err
	}
	return e.lastY, nil
}

// OutputsForce is the "!!" variant: it recomputes even if x matches the
// cached input.
func (e *Explicit) OutputsForce(x []float64) ([]float64, error) {
	if err := e.ensureOutputs(x, true); err != nil {
		return nil, err
	}
	return e.lastY, nil
}

// OutputsCurrent is the no-args query variant: it returns the currently
// cached output without recomputation, failing if nothing has been computed
// yet.
func (e *Explicit) OutputsCurrent() ([]float64, error) {
	if !e.cache.yValid {
		return nil, fmt.Errorf("component %q: outputs() called before any evaluation", e.name)
	}
	return e.lastY, nil
}

func (e *Explicit) ensureOutputs(x []float64, force bool) error {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return err
	}
	changed := e.cache.sync(x)
	if !force && !changed && e.cache.yValid {
		return nil
	}
	if err := e.callProvider(e.provider.Output(e.cache.x, e.lastY)); err != nil {
		return err
	}
	e.cache.yValid = true
	return nil
}

// Jacobian is the query variant for the component's Jacobian.
func (e *Explicit) Jacobian(x []float64) (*mat.Dense, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, err
	}
	J := mat.NewDense(e.ny, e.nx, nil)
	if err := e.callProvider(e.provider.Jacobian(x, J)); err != nil {
		return nil, err
	}
	return J, nil
}

// JacobianInto is the "!" with-buffer variant.
func (e *Explicit) JacobianInto(J *mat.Dense, x []float64) error {
	if err := checkJacobianShape("J", J, e.ny, e.nx); err != nil {
		return err
	}
	if err := e.ensureJacobian(x, false); err != nil {
		return err
	}
	J.Copy(e.lastJ)
	return nil
}

// JacobianCached is the "!" without-buffer variant.
func (e *Explicit) JacobianCached(x []float64) (*mat.Dense, error) {
	if err := e.ensureJacobian(x, false); err != nil {
		return nil, err
	}
	return e.lastJ, nil
}

// JacobianForce is the "!!" variant.
func (e *Explicit) JacobianForce(x []float64) (*mat.Dense, error) {
	if err := e.ensureJacobian(x, true); err != nil {
		return nil, err
	}
	return e.lastJ, nil
}

// JacobianCurrent is the no-args query variant.
func (e *Explicit) JacobianCurrent() (*mat.Dense, error) {
	if !e.cache.jValid {
		return nil, fmt.Errorf("component %q: jacobian() called before any evaluation", e.name)
	}
	return e.lastJ, nil
}

func (e *Explicit) ensureJacobian(x []float64, force bool) error {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return err
	}
	changed := e.cache.sync(x)
	if !force && !changed && e.cache.jValid {
		return nil
	}
	if err := e.callProvider(e.provider.Jacobian(e.cache.x, e.lastJ)); err != nil {
		return err
	}
	e.cache.jValid = true
	return nil
}

// OutputsAndJacobian evaluates both, sharing work when the provider
// supports a combined call.
func (e *Explicit) OutputsAndJacobian(x []float64) ([]float64, *mat.Dense, error) {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return nil, nil, err
	}
	y := make([]float64, e.ny)
	J := mat.NewDense(e.ny, e.nx, nil)
	if err := e.callProvider(e.provider.OutputAndJacobian(x, y, J)); err != nil {
		return nil, nil, err
	}
	return y, J, nil
}

// OutputsAndJacobianInto is the "!" with-buffers variant of the combined call.
func (e *Explicit) OutputsAndJacobianInto(y []float64, J *mat.Dense, x []float64) error {
	if err := checkLen("y", len(y), e.ny); err != nil {
		return err
	}
	if err := checkJacobianShape("J", J, e.ny, e.nx); err != nil {
		return err
	}
	if err := e.ensureBoth(x, false); err != nil {
		return err
	}
	copy(y, e.lastY)
	J.Copy(e.lastJ)
	return nil
}

// OutputsAndJacobianCached is the "!" without-buffers variant.
func (e *Explicit) OutputsAndJacobianCached(x []float64) ([]float64, *mat.Dense, error) {
	if err := e.ensureBoth(x, false); err != nil {
		return nil, nil, err
	}
	return e.lastY, e.lastJ, nil
}

// OutputsAndJacobianForce is the "!!" variant.
func (e *Explicit) OutputsAndJacobianForce(x []float64) ([]float64, *mat.Dense, error) {
	if err := e.ensureBoth(x, true); err != nil {
		return nil, nil, err
	}
	return e.lastY, e.lastJ, nil
}

func (e *Explicit) ensureBoth(x []float64, force bool) error {
	if err := checkLen("x", len(x), e.nx); err != nil {
		return err
	}
	changed := e.cache.sync(x)
	if !force && !changed && e.cache.yValid && e.cache.jValid {
		return nil
	}
	if err := e.callProvider(e.provider.OutputAndJacobian(e.cache.x, e.lastY, e.lastJ)); err != nil {
		return err
	}
	e.cache.yValid = true
	e.cache.jValid = true
	return nil
}

package component

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/deriv"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc computes r(x, y) given shaped input and output views. It
// either returns the flat residual (length nr) or returns nothing and writes
// the residual into rMut (laid out like outVars, one residual component per
// declared output, so nr == ny).
type ResidualFunc func(rMut []variable.View, x, y []variable.View) []float64

// Implicit wraps a user residual r(x, y) = 0 with independent derivative
// providers for ∂r/∂x and ∂r/∂y, caches, and the four-suffix operations
// shared with Explicit.
type Implicit struct {
	name string

	inVars  []variable.Variable
	outVars []variable.Variable

	inLayout  *variable.Layout
	outLayout *variable.Layout

	nx, ny, nr int

	fn      ResidualFunc
	xDeriv  deriv.Provider
	yDeriv  deriv.Provider

	lastX, lastY []float64
	rValid       bool
	jxValid      bool
	jyValid      bool
	lastR        []float64
	lastJx       *mat.Dense
	lastJy       *mat.Dense

	// fnErr is set by residual when the user's fn returns a value whose
	// flattened length doesn't match one of the two shapes residual
	// accepts, and cleared by the next checkFnErr call. residual itself has
	// no error return — it's used directly as a deriv.Primal by the x/y
	// derivative providers — so callers with their own error channel
	// (Residuals, evalJx, evalJy, and the ensure* helpers) check it right
	// after calling residual.
	fnErr error
}

// NewImplicit builds an Implicit component. Two independent providers may
// be supplied — xOpts configures the ∂r/∂x provider, yOpts the ∂r/∂y
// provider — since the two may legitimately use different methods.
func NewImplicit(name string, fn ResidualFunc, inVars, outVars []variable.Variable, xOpts, yOpts []Option) (*Implicit, error) {
	if err := namesUnique(inVars); err != nil {
		return nil, fmt.Errorf("component %q: input vars: %w", name, err)
	}
	if err := namesUnique(outVars); err != nil {
		return nil, fmt.Errorf("component %q: output vars: %w", name, err)
	}

	c := &Implicit{
		name:      name,
		inVars:    inVars,
		outVars:   outVars,
		inLayout:  variable.NewLayout(inVars),
		outLayout: variable.NewLayout(outVars),
		fn:        fn,
	}
	c.nx = c.inLayout.Width()
	c.ny = c.outLayout.Width()
	c.nr = c.ny
	c.lastR = make([]float64, c.nr)

	xcfg := applyOptions(xOpts)
	ycfg := applyOptions(yOpts)

	jx := xcfg.workspace
	if jx == nil {
		jx = mat.NewDense(c.nr, c.nx, nil)
	} else if err := checkJacobianShape("x workspace", jx, c.nr, c.nx); err != nil {
		return nil, fmt.Errorf("component %q: %w", name, err)
	}
	jy := ycfg.workspace
	if jy == nil {
		jy = mat.NewDense(c.nr, c.ny, nil)
	} else if err := checkJacobianShape("y workspace", jy, c.nr, c.ny); err != nil {
		return nil, fmt.Errorf("component %q: %w", name, err)
	}
	c.lastJx, c.lastJy = jx, jy

	c.xDeriv = buildResidualProvider(c.residualOverX, c.nr, xcfg, c.nx)
	c.yDeriv = buildResidualProvider(c.residualOverY, c.nr, ycfg, c.ny)

	return c, nil
}

// residual is the wrapped user function as a flat (x, y) -> r map.
func (c *Implicit) residual(x, y []float64) []float64 {
	xViews, err := c.inLayout.Separate(x)
	if err != nil {
		panic(err)
	}
	yViews, err := c.outLayout.Separate(y)
	if err != nil {
		panic(err)
	}
	rScratch := make([]float64, c.nr)
	rViews, err := c.outLayout.Separate(rScratch)
	if err != nil {
		panic(err)
	}
	ret := c.fn(rViews, xViews, yViews)
	if len(ret) != 0 && len(ret) != c.nr {
		c.fnErr = fmt.Errorf("component %q: residual function returned %d values, want 0 (written via rMut) or %d: %w", c.name, len(ret), c.nr, errs.SizeMismatch)
	}
	r := make([]float64, c.nr)
	copy(r, ret)
	for i := len(ret); i < c.nr; i++ {
		r[i] = rScratch[i]
	}
	return r
}

// checkFnErr returns and clears any SizeMismatch residual recorded the last
// time residual ran.
func (c *Implicit) checkFnErr() error {
	if c.fnErr == nil {
		return nil
	}
	err := c.fnErr
	c.fnErr = nil
	return err
}

// residualOverX and residualOverY adapt the two-argument residual into the
// single-vector primal each provider's primal signature expects, holding
// the other argument fixed at the component's current cache.
func (c *Implicit) residualOverX(x []float64) []float64 { return c.residual(x, c.lastYOrZero()) }
func (c *Implicit) residualOverY(y []float64) []float64 { return c.residual(c.lastXOrZero(), y) }

func (c *Implicit) lastYOrZero() []float64 {
	if c.lastY != nil {
		return c.lastY
	}
	return make([]float64, c.ny)
}

func (c *Implicit) lastXOrZero() []float64 {
	if c.lastX != nil {
		return c.lastX
	}
	return make([]float64, c.nx)
}

// buildResidualProvider constructs the default FD provider over a
// single-vector adaptation of the residual, honoring WithDeriv/WithAnalyticJacobian
// overrides.
func buildResidualProvider(f deriv.Primal, nr int, cfg config, width int) deriv.Provider {
	switch {
	case cfg.analyticDF != nil:
		return deriv.NewAnalytic(deriv.AnalyticConfig{F: f, DF: cfg.analyticDF})
	case cfg.provider != nil:
		return cfg.provider
	default:
		return deriv.NewCentralFD(f, width, nr, cfg.fdStep)
	}
}

// Describe returns the component's declared input/output variable tuples
// and flat sizes.
func (c *Implicit) Describe() (inVars, outVars []variable.Variable, nx, ny, nr int) {
	return c.inVars, c.outVars, c.nx, c.ny, c.nr
}

func (c *Implicit) NX() int { return c.nx }
func (c *Implicit) NY() int { return c.ny }
func (c *Implicit) NR() int { return c.nr }

// Name returns the component's declared name.
func (c *Implicit) Name() string { return c.name }

// InVars returns the component's declared input variable tuple.
func (c *Implicit) InVars() []variable.Variable { return c.inVars }

// OutVars returns the component's declared output variable tuple.
func (c *Implicit) OutVars() []variable.Variable { return c.outVars }

func (c *Implicit) syncState(x, y []float64) bool {
	changed := c.lastX == nil || !equalFloats(c.lastX, x) || c.lastY == nil || !equalFloats(c.lastY, y)
	if !changed {
		return false
	}
	if c.lastX == nil {
		c.lastX = make([]float64, c.nx)
	}
	if c.lastY == nil {
		c.lastY = make([]float64, c.ny)
	}
	copy(c.lastX, x)
	copy(c.lastY, y)
	c.rValid = false
	c.jxValid = false
	c.jyValid = false
	return true
}

// Residuals is the query variant.
func (c *Implicit) Residuals(x, y []float64) ([]float64, error) {
	if err := c.checkXY(x, y); err != nil {
		return nil, err
	}
	r := c.residual(x, y)
	if err := c.checkFnErr(); err != nil {
		return nil, err
	}
	return r, nil
}

// ResidualsInto is the "!" with-buffer variant.
func (c *Implicit) ResidualsInto(r, x, y []float64) error {
	if err := checkLen("r", len(r), c.nr); err != nil {
		return err
	}
	if err := c.ensureResiduals(x, y, false); err != nil {
		return err
	}
	copy(r, c.lastR)
	return nil
}

// ResidualsCached is the "!" without-buffers variant.
func (c *Implicit) ResidualsCached(x, y []float64) ([]float64, error) {
	if err := c.ensureResiduals(x, y, false); err != nil {
		return nil, err
	}
	return c.lastR, nil
}

// ResidualsForce is the "!!" variant.
func (c *Implicit) ResidualsForce(x, y []float64) ([]float64, error) {
	if err := c.ensureResiduals(x, y, true); err != nil {
		return nil, err
	}
	return c.lastR, nil
}

// ResidualsCurrent is the no-args query variant.
func (c *Implicit) ResidualsCurrent() ([]float64, error) {
	if !c.rValid {
		return nil, fmt.Errorf("component %q: residuals() called before any evaluation", c.name)
	}
	return c.lastR, nil
}

func (c *Implicit) ensureResiduals(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.rValid {
		return nil
	}
	r := c.residual(c.lastX, c.lastY)
	if err := c.checkFnErr(); err != nil {
		return err
	}
	copy(c.lastR, r)
	c.rValid = true
	return nil
}

func (c *Implicit) checkXY(x, y []float64) error {
	if err := checkLen("x", len(x), c.nx); err != nil {
		return err
	}
	return checkLen("y", len(y), c.ny)
}

// ResidualInputJacobian is the query variant of ∂r/∂x.
func (c *Implicit) ResidualInputJacobian(x, y []float64) (*mat.Dense, error) {
	if err := c.checkXY(x, y); err != nil {
		return nil, err
	}
	J := mat.NewDense(c.nr, c.nx, nil)
	if err := c.evalJx(x, y, J); err != nil {
		return nil, err
	}
	return J, nil
}

// ResidualInputJacobianInto is the "!" with-buffer variant.
func (c *Implicit) ResidualInputJacobianInto(J *mat.Dense, x, y []float64) error {
	if err := checkJacobianShape("J", J, c.nr, c.nx); err != nil {
		return err
	}
	if err := c.ensureJx(x, y, false); err != nil {
		return err
	}
	J.Copy(c.lastJx)
	return nil
}

// ResidualInputJacobianForce is the "!!" variant.
func (c *Implicit) ResidualInputJacobianForce(x, y []float64) (*mat.Dense, error) {
	if err := c.ensureJx(x, y, true); err != nil {
		return nil, err
	}
	return c.lastJx, nil
}

// ResidualInputJacobianCurrent is the no-args query variant.
func (c *Implicit) ResidualInputJacobianCurrent() (*mat.Dense, error) {
	if !c.jxValid {
		return nil, fmt.Errorf("component %q: residual_input_jacobian() called before any evaluation", c.name)
	}
	return c.lastJx, nil
}

// ResidualInputJacobianCached caches ∂r/∂x at (x, y).
func (c *Implicit) ResidualInputJacobianCached(x, y []float64) (*mat.Dense, error) {
	if err := c.ensureJx(x, y, false); err != nil {
		return nil, err
	}
	return c.lastJx, nil
}

func (c *Implicit) ensureJx(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.jxValid {
		return nil
	}
	if err := c.evalJx(c.lastX, c.lastY, c.lastJx); err != nil {
		return err
	}
	c.jxValid = true
	return nil
}

func (c *Implicit) evalJx(x, y []float64, J *mat.Dense) error {
	prevY := c.lastY
	c.lastY = y
	defer func() { c.lastY = prevY }()
	if err := c.xDeriv.Jacobian(x, J); err != nil {
		return err
	}
	return c.checkFnErr()
}

// ResidualOutputJacobian is the query variant of ∂r/∂y.
func (c *Implicit) ResidualOutputJacobian(x, y []float64) (*mat.Dense, error) {
	if err := c.checkXY(x, y); err != nil {
		return nil, err
	}
	J := mat.NewDense(c.nr, c.ny, nil)
	if err := c.evalJy(x, y, J); err != nil {
		return nil, err
	}
	return J, nil
}

// ResidualOutputJacobianInto is the "!" with-buffer variant.
func (c *Implicit) ResidualOutputJacobianInto(J *mat.Dense, x, y []float64) error {
	if err := checkJacobianShape("J", J, c.nr, c.ny); err != nil {
		return err
	}
	if err := c.ensureJy(x, y, false); err != nil {
		return err
	}
	J.Copy(c.lastJy)
	return nil
}

// ResidualOutputJacobianForce is the "!!" variant.
func (c *Implicit) ResidualOutputJacobianForce(x, y []float64) (*mat.Dense, error) {
	if err := c.ensureJy(x, y, true); err != nil {
		return nil, err
	}
	return c.lastJy, nil
}

// ResidualOutputJacobianCurrent is the no-args query variant.
func (c *Implicit) ResidualOutputJacobianCurrent() (*mat.Dense, error) {
	if !c.jyValid {
		return nil, fmt.Errorf("component %q: residual_output_jacobian() called before any evaluation", c.name)
	}
	return c.lastJy, nil
}

// ResidualOutputJacobianCached caches ∂r/∂y at (x, y).
func (c *Implicit) ResidualOutputJacobianCached(x, y []float64) (*mat.Dense, error) {
	if err := c.ensureJy(x, y, false); err != nil {
		return nil, err
	}
	return c.lastJy, nil
}

func (c *Implicit) ensureJy(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.jyValid {
		return nil
	}
	if err := c.evalJy(c.lastX, c.lastY, c.lastJy); err != nil {
		return err
	}
	c.jyValid = true
	return nil
}

func (c *Implicit) evalJy(x, y []float64, J *mat.Dense) error {
	prevX := c.lastX
	c.lastX = x
	defer func() { c.lastX = prevX }()
	if err := c.yDeriv.Jacobian(y, J); err != nil {
		return err
	}
	return c.checkFnErr()
}

// ResidualsAndInputJacobian evaluates r and ∂r/∂x together.
func (c *Implicit) ResidualsAndInputJacobian(x, y []float64) (r []float64, Jx *mat.Dense, err error) {
	if err = c.checkXY(x, y); err != nil {
		return nil, nil, err
	}
	r = c.residual(x, y)
	if err = c.checkFnErr(); err != nil {
		return nil, nil, err
	}
	Jx = mat.NewDense(c.nr, c.nx, nil)
	if err = c.evalJx(x, y, Jx); err != nil {
		return nil, nil, err
	}
	return r, Jx, nil
}

// ResidualsAndInputJacobianInto is the "!" with-buffers variant.
func (c *Implicit) ResidualsAndInputJacobianInto(r []float64, Jx *mat.Dense, x, y []float64) error {
	if err := checkLen("r", len(r), c.nr); err != nil {
		return err
	}
	if err := checkJacobianShape("Jx", Jx, c.nr, c.nx); err != nil {
		return err
	}
	if err := c.ensureResidualsAndJx(x, y, false); err != nil {
		return err
	}
	copy(r, c.lastR)
	Jx.Copy(c.lastJx)
	return nil
}

// ResidualsAndInputJacobianCached is the "!" without-buffers variant.
func (c *Implicit) ResidualsAndInputJacobianCached(x, y []float64) (r []float64, Jx *mat.Dense, err error) {
	if err = c.ensureResidualsAndJx(x, y, false); err != nil {
		return nil, nil, err
	}
	return c.lastR, c.lastJx, nil
}

// ResidualsAndInputJacobianForce is the "!!" variant.
func (c *Implicit) ResidualsAndInputJacobianForce(x, y []float64) (r []float64, Jx *mat.Dense, err error) {
	if err = c.ensureResidualsAndJx(x, y, true); err != nil {
		return nil, nil, err
	}
	return c.lastR, c.lastJx, nil
}

// ResidualsAndInputJacobianCurrent is the no-args query variant.
func (c *Implicit) ResidualsAndInputJacobianCurrent() (r []float64, Jx *mat.Dense, err error) {
	if !c.rValid || !c.jxValid {
		return nil, nil, fmt.Errorf("component %q: residuals_and_input_jacobian() called before any evaluation", c.name)
	}
	return c.lastR, c.lastJx, nil
}

func (c *Implicit) ensureResidualsAndJx(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.rValid && c.jxValid {
		return nil
	}
	r := c.residual(c.lastX, c.lastY)
	if err := c.checkFnErr(); err != nil {
		return err
	}
	copy(c.lastR, r)
	c.rValid = true
	if err := c.evalJx(c.lastX, c.lastY, c.lastJx); err != nil {
		return err
	}
	c.jxValid = true
	return nil
}

// ResidualsAndOutputJacobian evaluates r and ∂r/∂y together.
func (c *Implicit) ResidualsAndOutputJacobian(x, y []float64) (r []float64, Jy *mat.Dense, err error) {
	if err = c.checkXY(x, y); err != nil {
		return nil, nil, err
	}
	r = c.residual(x, y)
	if err = c.checkFnErr(); err != nil {
		return nil, nil, err
	}
	Jy = mat.NewDense(c.nr, c.ny, nil)
	if err = c.evalJy(x, y, Jy); err != nil {
		return nil, nil, err
	}
	return r, Jy, nil
}

// ResidualsAndOutputJacobianInto is the "!" with-buffers variant.
func (c *Implicit) ResidualsAndOutputJacobianInto(r []float64, Jy *mat.Dense, x, y []float64) error {
	if err := checkLen("r", len(r), c.nr); err != nil {
		return err
	}
	if err := checkJacobianShape("Jy", Jy, c.nr, c.ny); err != nil {
		return err
	}
	if err := c.ensureResidualsAndJy(x, y, false); err != nil {
		return err
	}
	copy(r, c.lastR)
	Jy.Copy(c.lastJy)
	return nil
}

// ResidualsAndOutputJacobianCached is the "!" without-buffers variant.
func (c *Implicit) ResidualsAndOutputJacobianCached(x, y []float64) (r []float64, Jy *mat.Dense, err error) {
	if err = c.ensureResidualsAndJy(x, y, false); err != nil {
		return nil, nil, err
	}
	return c.lastR, c.lastJy, nil
}

// ResidualsAndOutputJacobianForce is the "!!" variant.
func (c *Implicit) ResidualsAndOutputJacobianForce(x, y []float64) (r []float64, Jy *mat.Dense, err error) {
	if err = c.ensureResidualsAndJy(x, y, true); err != nil {
		return nil, nil, err
	}
	return c.lastR, c.lastJy, nil
}

// ResidualsAndOutputJacobianCurrent is the no-args query variant.
func (c *Implicit) ResidualsAndOutputJacobianCurrent() (r []float64, Jy *mat.Dense, err error) {
	if !c.rValid || !c.jyValid {
		return nil, nil, fmt.Errorf("component %q: residuals_and_output_jacobian() called before any evaluation", c.name)
	}
	return c.lastR, c.lastJy, nil
}

func (c *Implicit) ensureResidualsAndJy(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.rValid && c.jyValid {
		return nil
	}
	r := c.residual(c.lastX, c.lastY)
	if err := c.checkFnErr(); err != nil {
		return err
	}
	copy(c.lastR, r)
	c.rValid = true
	if err := c.evalJy(c.lastX, c.lastY, c.lastJy); err != nil {
		return err
	}
	c.jyValid = true
	return nil
}

// ResidualsAndJacobians evaluates r, ∂r/∂x, and ∂r/∂y together.
func (c *Implicit) ResidualsAndJacobians(x, y []float64) (r []float64, Jx, Jy *mat.Dense, err error) {
	if err = c.checkXY(x, y); err != nil {
		return nil, nil, nil, err
	}
	r = c.residual(x, y)
	if err = c.checkFnErr(); err != nil {
		return nil, nil, nil, err
	}
	Jx = mat.NewDense(c.nr, c.nx, nil)
	Jy = mat.NewDense(c.nr, c.ny, nil)
	if err = c.evalJx(x, y, Jx); err != nil {
		return nil, nil, nil, err
	}
	if err = c.evalJy(x, y, Jy); err != nil {
		return nil, nil, nil, err
	}
	return r, Jx, Jy, nil
}

// ResidualsAndJacobiansInto is the "!" with-buffers variant.
func (c *Implicit) ResidualsAndJacobiansInto(r []float64, Jx, Jy *mat.Dense, x, y []float64) error {
	if err := checkLen("r", len(r), c.nr); err != nil {
		return err
	}
	if err := checkJacobianShape("Jx", Jx, c.nr, c.nx); err != nil {
		return err
	}
	if err := checkJacobianShape("Jy", Jy, c.nr, c.ny); err != nil {
		return err
	}
	if err := c.ensureResidualsAndJacobians(x, y, false); err != nil {
		return err
	}
	copy(r, c.lastR)
	Jx.Copy(c.lastJx)
	Jy.Copy(c.lastJy)
	return nil
}

// ResidualsAndJacobiansCached is the "!" without-buffers variant.
func (c *Implicit) ResidualsAndJacobiansCached(x, y []float64) (r []float64, Jx, Jy *mat.Dense, err error) {
	if err = c.ensureResidualsAndJacobians(x, y, false); err != nil {
		return nil, nil, nil, err
	}
	return c.lastR, c.lastJx, c.lastJy, nil
}

// ResidualsAndJacobiansForce is the "!!" variant.
func (c *Implicit) ResidualsAndJacobiansForce(x, y []float64) (r []float64, Jx, Jy *mat.Dense, err error) {
	if err = c.ensureResidualsAndJacobians(x, y, true); err != nil {
		return nil, nil, nil, err
	}
	return c.lastR, c.lastJx, c.lastJy, nil
}

// ResidualsAndJacobiansCurrent is the no-args query variant.
func (c *Implicit) ResidualsAndJacobiansCurrent() (r []float64, Jx, Jy *mat.Dense, err error) {
	if !c.rValid || !c.jxValid || !c.jyValid {
		return nil, nil, nil, fmt.Errorf("component %q: residuals_and_jacobians() called before any evaluation", c.name)
	}
	return c.lastR, c.lastJx, c.lastJy, nil
}

func (c *Implicit) ensureResidualsAndJacobians(x, y []float64, force bool) error {
	if err := c.checkXY(x, y); err != nil {
		return err
	}
	changed := c.syncState(x, y)
	if !force && !changed && c.rValid && c.jxValid && c.jyValid {
		return nil
	}
	r := c.residual(c.lastX, c.lastY)
	if err := c.checkFnErr(); err != nil {
		return err
	}
	copy(c.lastR, r)
	c.rValid = true
	if err := c.evalJx(c.lastX, c.lastY, c.lastJx); err != nil {
		return err
	}
	c.jxValid = true
	if err := c.evalJy(c.lastX, c.lastY, c.lastJy); err != nil {
		return err
	}
	c.jyValid = true
	return nil
}

// LiftExplicit builds an Implicit component from an Explicit one via
// r = y - f(x), with ∂r/∂x = -J_f and ∂r/∂y = I.
func LiftExplicit(e *Explicit) (*Implicit, error) {
	outVars := append(append([]variable.Variable{}, e.outVars...), e.outMut...)
	fn := func(rMut []variable.View, x, y []variable.View) []float64 {
		flatX := flattenViews(x)
		fy, err := e.Outputs(flatX)
		if err != nil {
			panic(err)
		}
		out := make([]float64, e.ny)
		off := 0
		for _, v := range y {
			for j := 0; j < v.Len(); j++ {
				out[off] = v.At(j) - fy[off]
				off++
			}
		}
		return out
	}
	c, err := NewImplicit(e.name+"#implicit", fn, e.inVars, outVars, nil, nil)
	if err != nil {
		return nil, err
	}
	c.xDeriv = &negatedJacobian{inner: jacobianFuncProvider{f: e.Jacobian}}
	c.yDeriv = identityProvider{n: e.ny}
	return c, nil
}

func flattenViews(views []variable.View) []float64 {
	n := 0
	for _, v := range views {
		n += v.Len()
	}
	out := make([]float64, 0, n)
	for _, v := range views {
		out = append(out, v.Flat()...)
	}
	return out
}

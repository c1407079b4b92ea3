package component

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"github.com/zclconf/go-cty/cty"
	"gonum.org/v1/gonum/mat"
)

// couplingResidualComponent builds a hand-written Implicit component with
// r = y - (x0^2 + x1), independent of any lifted Explicit, so tests can
// exercise the combined residual-and-single-Jacobian operations and the
// malformed-fn guard directly.
func couplingResidualComponent(t *testing.T) *Implicit {
	t.Helper()
	x0Var := variable.MustDeclare("x0", cty.NumberFloatVal(0))
	x1Var := variable.MustDeclare("x1", cty.NumberFloatVal(0))
	yVar := variable.MustDeclare("y", cty.NumberFloatVal(0))

	fn := func(rMut []variable.View, x, y []variable.View) []float64 {
		x0, x1 := x[0].Scalar(), x[1].Scalar()
		yy := y[0].Scalar()
		return []float64{yy - (x0*x0 + x1)}
	}

	c, err := NewImplicit("coupling", fn, []variable.Variable{x0Var, x1Var}, []variable.Variable{yVar},
		[]Option{WithAnalyticJacobian(func(x []float64, J *mat.Dense) error {
			J.Set(0, 0, -2*x[0])
			J.Set(0, 1, -1)
			return nil
		})},
		[]Option{WithAnalyticJacobian(func(y []float64, J *mat.Dense) error {
			J.Set(0, 0, 1)
			return nil
		})})
	require.NoError(t, err)
	return c
}

// TestLiftExplicitIdentity checks wrapping the paraboloid explicit
// component as implicit r = y - f(x), verifying the residual and both
// Jacobian blocks at x = (1, 2), y = 9.0.
func TestLiftExplicitIdentity(t *testing.T) {
	e := paraboloidComponent(t)
	c, err := LiftExplicit(e)
	require.NoError(t, err)

	x := []float64{1, 2}
	y := []float64{9}

	r, err := c.Residuals(x, y)
	require.NoError(t, err)
	require.Len(t, r, 1)
	assert.InDelta(t, -30, r[0], 1e-9)

	Jy, err := c.ResidualOutputJacobian(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 1, Jy.At(0, 0), 1e-9)

	Jx, err := c.ResidualInputJacobian(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 2, Jx.At(0, 0), 1e-6)
	assert.InDelta(t, -13, Jx.At(0, 1), 1e-6)
}

func TestImplicitFourSuffixEquivalence(t *testing.T) {
	e := paraboloidComponent(t)
	c, err := LiftExplicit(e)
	require.NoError(t, err)

	x := []float64{1, 2}
	y := []float64{9}

	query, err := c.Residuals(x, y)
	require.NoError(t, err)

	cached, err := c.ResidualsCached(x, y)
	require.NoError(t, err)

	forced, err := c.ResidualsForce(x, y)
	require.NoError(t, err)

	current, err := c.ResidualsCurrent()
	require.NoError(t, err)

	assert.Equal(t, query[0], cached[0])
	assert.Equal(t, query[0], forced[0])
	assert.Equal(t, query[0], current[0])
}

func TestImplicitResidualsAndJacobians(t *testing.T) {
	e := paraboloidComponent(t)
	c, err := LiftExplicit(e)
	require.NoError(t, err)

	r, Jx, Jy, err := c.ResidualsAndJacobians([]float64{1, 2}, []float64{9})
	require.NoError(t, err)
	assert.InDelta(t, -30, r[0], 1e-9)
	assert.InDelta(t, 2, Jx.At(0, 0), 1e-6)
	assert.InDelta(t, 1, Jy.At(0, 0), 1e-9)
}

func TestImplicitResidualsAndJacobiansFourSuffixEquivalence(t *testing.T) {
	c := couplingResidualComponent(t)
	x := []float64{1.5, -0.5}
	y := []float64{2.0}

	qr, qJx, qJy, err := c.ResidualsAndJacobians(x, y)
	require.NoError(t, err)

	rbuf := make([]float64, 1)
	Jxbuf := mat.NewDense(1, 2, nil)
	Jybuf := mat.NewDense(1, 1, nil)
	require.NoError(t, c.ResidualsAndJacobiansInto(rbuf, Jxbuf, Jybuf, x, y))

	cr, cJx, cJy, err := c.ResidualsAndJacobiansCached(x, y)
	require.NoError(t, err)

	fr, fJx, fJy, err := c.ResidualsAndJacobiansForce(x, y)
	require.NoError(t, err)

	gr, gJx, gJy, err := c.ResidualsAndJacobiansCurrent()
	require.NoError(t, err)

	assert.InDeltaSlice(t, qr, rbuf, 1e-12)
	assert.InDeltaSlice(t, qr, cr, 1e-12)
	assert.InDeltaSlice(t, qr, fr, 1e-12)
	assert.InDeltaSlice(t, qr, gr, 1e-12)
	for _, Jx := range []*mat.Dense{Jxbuf, cJx, fJx, gJx} {
		assert.InDelta(t, qJx.At(0, 0), Jx.At(0, 0), 1e-12)
		assert.InDelta(t, qJx.At(0, 1), Jx.At(0, 1), 1e-12)
	}
	for _, Jy := range []*mat.Dense{Jybuf, cJy, fJy, gJy} {
		assert.InDelta(t, qJy.At(0, 0), Jy.At(0, 0), 1e-12)
	}
}

// TestImplicitResidualsAndInputJacobian checks the combined residual-and-
// ∂r/∂x operation against the direct single-operation calls, then its own
// four-suffix ladder.
func TestImplicitResidualsAndInputJacobian(t *testing.T) {
	c := couplingResidualComponent(t)
	x := []float64{1.5, -0.5}
	y := []float64{2.0}

	r, Jx, err := c.ResidualsAndInputJacobian(x, y)
	require.NoError(t, err)

	wantR, err := c.Residuals(x, y)
	require.NoError(t, err)
	wantJx, err := c.ResidualInputJacobian(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantR, r, 1e-12)
	assert.InDelta(t, wantJx.At(0, 0), Jx.At(0, 0), 1e-12)
	assert.InDelta(t, wantJx.At(0, 1), Jx.At(0, 1), 1e-12)

	rbuf := make([]float64, 1)
	Jxbuf := mat.NewDense(1, 2, nil)
	require.NoError(t, c.ResidualsAndInputJacobianInto(rbuf, Jxbuf, x, y))
	assert.InDeltaSlice(t, r, rbuf, 1e-12)

	cr, cJx, err := c.ResidualsAndInputJacobianCached(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, cr, 1e-12)
	assert.InDelta(t, Jx.At(0, 0), cJx.At(0, 0), 1e-12)

	fr, fJx, err := c.ResidualsAndInputJacobianForce(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, fr, 1e-12)
	assert.InDelta(t, Jx.At(0, 0), fJx.At(0, 0), 1e-12)

	gr, gJx, err := c.ResidualsAndInputJacobianCurrent()
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, gr, 1e-12)
	assert.InDelta(t, Jx.At(0, 0), gJx.At(0, 0), 1e-12)
}

// TestImplicitResidualsAndOutputJacobian mirrors
// TestImplicitResidualsAndInputJacobian for the ∂r/∂y combination.
func TestImplicitResidualsAndOutputJacobian(t *testing.T) {
	c := couplingResidualComponent(t)
	x := []float64{1.5, -0.5}
	y := []float64{2.0}

	r, Jy, err := c.ResidualsAndOutputJacobian(x, y)
	require.NoError(t, err)

	wantR, err := c.Residuals(x, y)
	require.NoError(t, err)
	wantJy, err := c.ResidualOutputJacobian(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantR, r, 1e-12)
	assert.InDelta(t, wantJy.At(0, 0), Jy.At(0, 0), 1e-12)

	rbuf := make([]float64, 1)
	Jybuf := mat.NewDense(1, 1, nil)
	require.NoError(t, c.ResidualsAndOutputJacobianInto(rbuf, Jybuf, x, y))
	assert.InDeltaSlice(t, r, rbuf, 1e-12)

	cr, cJy, err := c.ResidualsAndOutputJacobianCached(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, cr, 1e-12)
	assert.InDelta(t, Jy.At(0, 0), cJy.At(0, 0), 1e-12)

	fr, fJy, err := c.ResidualsAndOutputJacobianForce(x, y)
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, fr, 1e-12)
	assert.InDelta(t, Jy.At(0, 0), fJy.At(0, 0), 1e-12)

	gr, gJy, err := c.ResidualsAndOutputJacobianCurrent()
	require.NoError(t, err)
	assert.InDeltaSlice(t, r, gr, 1e-12)
	assert.InDelta(t, Jy.At(0, 0), gJy.At(0, 0), 1e-12)
}

// TestImplicitResidualFunctionWrongOutputWidthIsSizeMismatch checks that a
// residual function returning a value whose flattened length is neither 0
// (written entirely via rMut) nor nr surfaces as SizeMismatch through every
// entry point that can drive it.
func TestImplicitResidualFunctionWrongOutputWidthIsSizeMismatch(t *testing.T) {
	x0Var := variable.MustDeclare("x0", cty.NumberFloatVal(0))
	y0Var := variable.MustDeclare("y0", cty.NumberFloatVal(0))
	y1Var := variable.MustDeclare("y1", cty.NumberFloatVal(0))

	broken := func(rMut []variable.View, x, y []variable.View) []float64 {
		return []float64{y[0].Scalar() - x[0].Scalar()}
	}
	c, err := NewImplicit("broken", broken, []variable.Variable{x0Var}, []variable.Variable{y0Var, y1Var}, nil, nil)
	require.NoError(t, err)

	_, err = c.Residuals([]float64{1}, []float64{2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.SizeMismatch))

	_, err = c.ResidualInputJacobian([]float64{1}, []float64{2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.SizeMismatch))

	_, _, _, err = c.ResidualsAndJacobians([]float64{1}, []float64{2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.SizeMismatch))
}

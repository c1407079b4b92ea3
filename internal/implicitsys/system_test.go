package implicitsys

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkazantsev/diffgrid/internal/component"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"github.com/zclconf/go-cty/cty"
	"gonum.org/v1/gonum/mat"
)

// twoDisciplineSystem builds a coupled two-discipline system in the style
// of the Sellar multidisciplinary analysis problem: y1 = z1^2 + z2 + x -
// 0.2*y2, y2 = sqrt(y1) + z1 + z2. Each discipline's residual depends on
// the other's output, so routing discipline 1's "y2" input against
// discipline 2's output is a forward reference in declaration order — legal
// for an implicit system, unlike for an explicit one.
func twoDisciplineSystem(t *testing.T) *System {
	t.Helper()

	xVar := variable.MustDeclare("x", cty.NumberFloatVal(0))
	z1Var := variable.MustDeclare("z1", cty.NumberFloatVal(0))
	z2Var := variable.MustDeclare("z2", cty.NumberFloatVal(0))
	y1Var := variable.MustDeclare("y1", cty.NumberFloatVal(0))
	y2Var := variable.MustDeclare("y2", cty.NumberFloatVal(0))

	disc1, err := component.NewImplicit("disc1",
		func(rMut []variable.View, x, y []variable.View) []float64 {
			z1, z2, xx, y2 := x[0].Scalar(), x[1].Scalar(), x[2].Scalar(), x[3].Scalar()
			y1 := y[0].Scalar()
			return []float64{y1 - (z1*z1 + z2 + xx - 0.2*y2)}
		},
		[]variable.Variable{z1Var, z2Var, xVar, y2Var}, []variable.Variable{y1Var},
		[]component.Option{component.WithAnalyticJacobian(func(x []float64, J *mat.Dense) error {
			z1 := x[0]
			J.Set(0, 0, -2*z1)
			J.Set(0, 1, -1)
			J.Set(0, 2, -1)
			J.Set(0, 3, 0.2)
			return nil
		})},
		[]component.Option{component.WithAnalyticJacobian(func(y []float64, J *mat.Dense) error {
			J.Set(0, 0, 1)
			return nil
		})},
	)
	require.NoError(t, err)

	disc2, err := component.NewImplicit("disc2",
		func(rMut []variable.View, x, y []variable.View) []float64 {
			y1, z1, z2 := x[0].Scalar(), x[1].Scalar(), x[2].Scalar()
			y2 := y[0].Scalar()
			return []float64{y2 - (math.Sqrt(y1) + z1 + z2)}
		},
		[]variable.Variable{y1Var, z1Var, z2Var}, []variable.Variable{y2Var},
		[]component.Option{component.WithAnalyticJacobian(func(x []float64, J *mat.Dense) error {
			y1 := x[0]
			J.Set(0, 0, -1/(2*math.Sqrt(y1)))
			J.Set(0, 1, -1)
			J.Set(0, 2, -1)
			return nil
		})},
		[]component.Option{component.WithAnalyticJacobian(func(y []float64, J *mat.Dense) error {
			J.Set(0, 0, 1)
			return nil
		})},
	)
	require.NoError(t, err)

	sys, err := Build(context.Background(), "sellar-mda", []Inner{disc1, disc2}, []variable.Variable{xVar, z1Var, z2Var})
	require.NoError(t, err)
	return sys
}

func TestImplicitSystemResidualsMatchDirectComputation(t *testing.T) {
	sys := twoDisciplineSystem(t)
	x, z1, z2, y1, y2 := 0.29, 0.78, 0.60, 1.0, 2.0

	r1 := y1 - (z1*z1 + z2 + x - 0.2*y2)
	r2 := y2 - (math.Sqrt(y1) + z1 + z2)

	r, err := sys.Residuals([]float64{x, z1, z2}, []float64{y1, y2})
	require.NoError(t, err)
	assert.InDelta(t, r1, r[0], 1e-9)
	assert.InDelta(t, r2, r[1], 1e-9)
}

// TestImplicitSystemBlockJacobianCoupling checks the block-diagonal-plus-
// coupling structure of ∂r/∂y: the diagonal blocks are each discipline's
// own ∂r_k/∂y_k, and the off-diagonal blocks are the coupling partials
// scattered from each discipline's ∂r_k/∂x_k.
func TestImplicitSystemBlockJacobianCoupling(t *testing.T) {
	sys := twoDisciplineSystem(t)
	x, z1, z2, y1, y2 := 0.29, 0.78, 0.60, 1.0, 2.0

	_, Jx, Jy, err := sys.ResidualsAndJacobians([]float64{x, z1, z2}, []float64{y1, y2})
	require.NoError(t, err)

	assert.InDelta(t, 1, Jy.At(0, 0), 1e-9)             // dr1/dy1 (direct)
	assert.InDelta(t, 0.2, Jy.At(0, 1), 1e-9)            // dr1/dy2 (coupling)
	assert.InDelta(t, -1/(2*math.Sqrt(y1)), Jy.At(1, 0), 1e-9) // dr2/dy1 (coupling)
	assert.InDelta(t, 1, Jy.At(1, 1), 1e-9)              // dr2/dy2 (direct)

	assert.InDelta(t, -1, Jx.At(0, 0), 1e-9)  // dr1/dx
	assert.InDelta(t, -2*z1, Jx.At(0, 1), 1e-9) // dr1/dz1
	assert.InDelta(t, -1, Jx.At(0, 2), 1e-9)  // dr1/dz2
	assert.InDelta(t, 0, Jx.At(1, 0), 1e-9)   // dr2/dx (no direct dependency)
	assert.InDelta(t, -1, Jx.At(1, 1), 1e-9)  // dr2/dz1
	assert.InDelta(t, -1, Jx.At(1, 2), 1e-9)  // dr2/dz2
}

func TestImplicitSystemValidatePassesForConstructorBuiltComponents(t *testing.T) {
	sys := twoDisciplineSystem(t)
	assert.NoError(t, sys.Validate())
}

func TestImplicitSystemFourSuffixEquivalence(t *testing.T) {
	sys := twoDisciplineSystem(t)
	x := []float64{0.29, 0.78, 0.60}
	y := []float64{1.0, 2.0}

	query, err := sys.Residuals(x, y)
	require.NoError(t, err)

	buf := make([]float64, 2)
	require.NoError(t, sys.ResidualsInto(buf, x, y))

	cached, err := sys.ResidualsCached(x, y)
	require.NoError(t, err)

	forced, err := sys.ResidualsForce(x, y)
	require.NoError(t, err)

	current, err := sys.ResidualsCurrent()
	require.NoError(t, err)

	assert.InDeltaSlice(t, query, buf, 1e-12)
	assert.InDeltaSlice(t, query, cached, 1e-12)
	assert.InDeltaSlice(t, query, forced, 1e-12)
	assert.InDeltaSlice(t, query, current, 1e-12)
}

package solver

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkazantsev/diffgrid/internal/component"
	"github.com/vkazantsev/diffgrid/internal/dag"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"github.com/zclconf/go-cty/cty"
	"gonum.org/v1/gonum/mat"
)

// sellarObjectives builds the explicit component computing the Sellar
// problem's objective and constraints from (x, z1, z2, y1, y2):
// f = x² + z1 + y1 + e^(−y2), g1 = 3.16 − y1, g2 = y2 − 24.
func sellarObjectives(t *testing.T, xVar, z1Var, z2Var, y1Var, y2Var variable.Variable) *component.Explicit {
	t.Helper()
	fVar := variable.MustDeclare("f", cty.NumberFloatVal(0))
	g1Var := variable.MustDeclare("g1", cty.NumberFloatVal(0))
	g2Var := variable.MustDeclare("g2", cty.NumberFloatVal(0))

	fn := func(outMut []variable.View, in []variable.View) []float64 {
		x, z1, y1, y2 := in[0].Scalar(), in[1].Scalar(), in[3].Scalar(), in[4].Scalar()
		f := x*x + z1 + y1 + math.Exp(-y2)
		g1 := 3.16 - y1
		g2 := y2 - 24
		return []float64{f, g1, g2}
	}

	df := func(x []float64, J *mat.Dense) error {
		xx, y2 := x[0], x[4]
		J.Set(0, 0, 2*xx)
		J.Set(0, 1, 1)
		J.Set(0, 2, 0)
		J.Set(0, 3, 1)
		J.Set(0, 4, -math.Exp(-y2))

		J.Set(1, 0, 0)
		J.Set(1, 1, 0)
		J.Set(1, 2, 0)
		J.Set(1, 3, -1)
		J.Set(1, 4, 0)

		J.Set(2, 0, 0)
		J.Set(2, 1, 0)
		J.Set(2, 2, 0)
		J.Set(2, 3, 0)
		J.Set(2, 4, 1)
		return nil
	}

	e, err := component.NewExplicit("sellar-objectives", fn,
		[]variable.Variable{xVar, z1Var, z2Var, y1Var, y2Var},
		[]variable.Variable{fVar, g1Var, g2Var}, nil,
		component.WithAnalyticJacobian(df))
	require.NoError(t, err)
	return e
}

// TestSellarMDAFullJacobian wires the coupled Newton solve into a full
// explicit system: argin (x, z1, z2) feeds both the Newton-converted
// coupling (producing y1, y2) and the objective component (which also
// consumes y1, y2 from the coupling's output), and checks the resulting
// system Jacobian of (f, g1, g2) against the reference values.
func TestSellarMDAFullJacobian(t *testing.T) {
	sys, xVar, z1Var, z2Var := sellarCoupling(t)
	y1Var, y2Var := sys.OutVars()[0], sys.OutVars()[1]

	coupling, err := ToExplicit(context.Background(), "sellar-coupling", sys)
	require.NoError(t, err)

	objectives := sellarObjectives(t, xVar, z1Var, z2Var, y1Var, y2Var)

	full, err := dag.Build(context.Background(), "sellar-full",
		[]dag.Node{coupling, objectives},
		[]variable.Variable{xVar, z1Var, z2Var},
		objectives.OutVars())
	require.NoError(t, err)

	x := []float64{0.29, 0.78, 0.60}
	y, J, err := full.OutputsAndJacobian(x)
	require.NoError(t, err)
	require.Len(t, y, 3)

	want := [3][3]float64{
		{1.44865684668, 2.08975601036, 0.60330817622},
		{-0.90992087775, -1.23749239485, -0.72793670331},
		{0.45039561123, 1.61253802570, 1.36031648341},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, want[i][j], J.At(i, j), 1e-6)
		}
	}
}

func paraboloidComponent(t *testing.T) *component.Explicit {
	t.Helper()
	xVar := variable.MustDeclare("x", cty.NumberFloatVal(0))
	yVar := variable.MustDeclare("y", cty.NumberFloatVal(0))
	outVar := variable.MustDeclare("f", cty.NumberFloatVal(0))

	fn := func(outMut []variable.View, in []variable.View) []float64 {
		x, y := in[0].Scalar(), in[1].Scalar()
		return []float64{(x-3)*(x-3) + x*y + (y+4)*(y+4) - 3}
	}
	df := func(x []float64, J *mat.Dense) error {
		a, b := x[0], x[1]
		J.Set(0, 0, 2*(a-3)+b)
		J.Set(0, 1, a+2*(b+4))
		return nil
	}

	e, err := component.NewExplicit("paraboloid", fn, []variable.Variable{xVar, yVar}, []variable.Variable{outVar}, nil,
		component.WithAnalyticJacobian(df))
	require.NoError(t, err)
	return e
}

// TestExplicitToImplicitToExplicitRoundTrip checks that lifting an
// explicit component to implicit via ToImplicit and converting it back to
// explicit via ToExplicit's Newton solve reproduces the original outputs
// and Jacobian.
func TestExplicitToImplicitToExplicitRoundTrip(t *testing.T) {
	e := paraboloidComponent(t)

	lifted, err := ToImplicit(e)
	require.NoError(t, err)

	roundTripped, err := ToExplicit(context.Background(), "paraboloid-roundtrip", lifted)
	require.NoError(t, err)

	x := []float64{1.5, -2.25}
	wantY, err := e.Outputs(x)
	require.NoError(t, err)
	wantJ, err := e.Jacobian(x)
	require.NoError(t, err)

	gotY, gotJ, err := roundTripped.OutputsAndJacobian(x)
	require.NoError(t, err)

	assert.InDelta(t, wantY[0], gotY[0], 1e-6)
	rows, cols := wantJ.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.InDelta(t, wantJ.At(i, j), gotJ.At(i, j), 1e-6)
		}
	}
}

func TestNewtonExplicitFourSuffixEquivalence(t *testing.T) {
	sys, _, _, _ := sellarCoupling(t)
	e, err := ToExplicit(context.Background(), "sellar-coupling", sys)
	require.NoError(t, err)

	x := []float64{0.29, 0.78, 0.60}

	query, err := e.Outputs(x)
	require.NoError(t, err)

	buf := make([]float64, 2)
	require.NoError(t, e.OutputsInto(buf, x))

	cached, err := e.OutputsCached(x)
	require.NoError(t, err)

	forced, err := e.OutputsForce(x)
	require.NoError(t, err)

	current, err := e.OutputsCurrent()
	require.NoError(t, err)

	assert.InDeltaSlice(t, query, buf, 1e-9)
	assert.InDeltaSlice(t, query, cached, 1e-9)
	assert.InDeltaSlice(t, query, forced, 1e-9)
	assert.InDeltaSlice(t, query, current, 1e-9)
}

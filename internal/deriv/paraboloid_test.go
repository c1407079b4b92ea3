package deriv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// paraboloidFloat evaluates f(x,y) = (x-3)^2 + x*y + (y+4)^2 - 3.
func paraboloidFloat(x []float64) []float64 {
	a, b := x[0], x[1]
	return []float64{(a-3)*(a-3) + a*b + (b+4)*(b+4) - 3}
}

func paraboloidDual(x []Dual) []Dual {
	a, b := x[0], x[1]
	three := Constant(3)
	four := Constant(4)
	term1 := a.Sub(three).Mul(a.Sub(three))
	term2 := a.Mul(b)
	term3 := b.Add(four).Mul(b.Add(four))
	return []Dual{term1.Add(term2).Add(term3).Sub(Constant(3))}
}

func paraboloidVar(x []Var) []Var {
	a, b := x[0], x[1]
	t := a.tape
	three := t.leaf(3)
	four := t.leaf(4)
	offset := t.leaf(3)
	term1 := a.Sub(three).Mul(a.Sub(three))
	term2 := a.Mul(b)
	term3 := b.Add(four).Mul(b.Add(four))
	return []Var{term1.Add(term2).Add(term3).Sub(offset)}
}

func paraboloidComplex(x []complex128) []complex128 {
	a, b := x[0], x[1]
	three := complex(3.0, 0)
	four := complex(4.0, 0)
	return []complex128{(a-three)*(a-three) + a*b + (b+four)*(b+four) - three}
}

func paraboloidDF(x []float64, J *mat.Dense) error {
	a, b := x[0], x[1]
	J.Set(0, 0, 2*(a-3)+b)
	J.Set(0, 1, a+2*(b+4))
	return nil
}

func TestParaboloidAllProviders(t *testing.T) {
	x := []float64{0, 0}
	wantY := []float64{22}
	wantJ := []float64{-6, 8}

	providers := map[string]Provider{
		"analytic":   NewAnalytic(AnalyticConfig{F: paraboloidFloat, DF: paraboloidDF}),
		"forward-ad": NewForwardAD(paraboloidDual, 2, 1),
		"reverse-ad": NewReverseAD(paraboloidVar, 2, 1),
		"forward-fd": NewForwardFD(paraboloidFloat, 2, 1, 0),
		"central-fd": NewCentralFD(paraboloidFloat, 2, 1, 0),
		"complex-fd": NewComplexFD(paraboloidComplex, 2, 1, 0),
	}

	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			y := make([]float64, 1)
			J := mat.NewDense(1, 2, nil)
			require.NoError(t, p.OutputAndJacobian(x, y, J))

			assert.InDelta(t, wantY[0], y[0], 1e-6)
			assert.InDelta(t, wantJ[0], J.At(0, 0), 1e-5)
			assert.InDelta(t, wantJ[1], J.At(0, 1), 1e-5)
		})
	}
}

func TestForwardADExactOnPolynomial(t *testing.T) {
	p := NewForwardAD(paraboloidDual, 2, 1)
	J := mat.NewDense(1, 2, nil)
	require.NoError(t, p.Jacobian([]float64{1, 2}, J))
	assert.Equal(t, 2*(1-3)+2.0, J.At(0, 0))
	assert.Equal(t, 1+2*(2+4.0), J.At(0, 1))
}

func TestReverseADMatchesForwardAD(t *testing.T) {
	fwd := NewForwardAD(paraboloidDual, 2, 1)
	rev := NewReverseAD(paraboloidVar, 2, 1)

	x := []float64{1.3, -2.7}
	Jf := mat.NewDense(1, 2, nil)
	Jr := mat.NewDense(1, 2, nil)
	require.NoError(t, fwd.Jacobian(x, Jf))
	require.NoError(t, rev.Jacobian(x, Jr))

	assert.InDelta(t, Jf.At(0, 0), Jr.At(0, 0), 1e-12)
	assert.InDelta(t, Jf.At(0, 1), Jr.At(0, 1), 1e-12)
}

func TestProviderDimensionMismatch(t *testing.T) {
	p := NewForwardFD(paraboloidFloat, 2, 1, 0)
	J := mat.NewDense(2, 2, nil)
	err := p.Jacobian([]float64{0, 0}, J)
	require.Error(t, err)
}

func TestFallbackUsesAnalyticJacobianOverFD(t *testing.T) {
	an := NewAnalytic(AnalyticConfig{DF: paraboloidDF})
	fd := NewCentralFD(paraboloidFloat, 2, 1, 0)
	chosen := PreferAnalytic(an, fd)
	assert.Equal(t, Analytic, chosen.Kind())
}

func TestFallbackCombinesSeparateProviders(t *testing.T) {
	an := NewAnalytic(AnalyticConfig{F: paraboloidFloat})
	fd := NewCentralFD(paraboloidFloat, 2, 1, 0)
	combined := Fallback(an, fd)

	y := make([]float64, 1)
	J := mat.NewDense(1, 2, nil)
	require.NoError(t, combined.OutputAndJacobian([]float64{0, 0}, y, J))
	assert.InDelta(t, 22, y[0], 1e-9)
	assert.InDelta(t, -6, J.At(0, 0), 1e-5)
}

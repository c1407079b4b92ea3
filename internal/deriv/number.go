package deriv

import "math"

// Number is the arithmetic capability set a primal must be written against
// to support both ForwardAD and ReverseAD: a primal with a generic element
// type. Go has no operator overloading, so a primal written for
// AD calls these methods instead of using +, -, *, /; Real and Dual both
// satisfy Number, letting the same generic primal run at float64 precision
// or swept through dual numbers without change.
type Number[T any] interface {
	Add(T) T
	Sub(T) T
	Mul(T) T
	Div(T) T
	Neg() T
	Sin() T
	Cos() T
	Sqrt() T
	Exp() T
}

// GenericPrimal is a primal function written against Number[T], usable by
// both ForwardAD (T = Dual) and a plain float64 evaluation (T = Real).
type GenericPrimal[T Number[T]] func(x []T) []T

// Real is float64 wearing the Number interface, so a GenericPrimal can be
// run at ordinary precision with no AD overhead.
type Real float64

func (a Real) Add(b Real) Real  { return a + b }
func (a Real) Sub(b Real) Real  { return a - b }
func (a Real) Mul(b Real) Real  { return a * b }
func (a Real) Div(b Real) Real  { return a / b }
func (a Real) Neg() Real        { return -a }
func (a Real) Sin() Real        { return Real(math.Sin(float64(a))) }
func (a Real) Cos() Real        { return Real(math.Cos(float64(a))) }
func (a Real) Sqrt() Real       { return Real(math.Sqrt(float64(a))) }
func (a Real) Exp() Real        { return Real(math.Exp(float64(a))) }

// RealsToFloats and FloatsToReals convert between []float64 and []Real for
// callers that only need Number's operations incidentally (e.g. FD
// providers calling a GenericPrimal at a single precision).
func RealsToFloats(rs []Real) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = float64(r)
	}
	return out
}

func FloatsToReals(fs []float64) []Real {
	out := make([]Real, len(fs))
	for i, f := range fs {
		out[i] = Real(f)
	}
	return out
}

// Package variable implements the named, shaped value model of diffgrid:
// Variable declarations, the flat-vector Layout they imply, and the
// combine/separate packing operations every evaluation entry point is built
// on.
//
// A Variable carries no value at evaluation time, only a layout descriptor —
// a name, a Shape, and a default that fixes both. Two Variables compare equal
// iff their names match.
package variable

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Shape describes a scalar (nil/empty), a 1-D sequence (len 1), or an n-D
// rectangular array (len > 1) of float64 elements, in native memory order.
type Shape []int

// Size returns the number of scalar elements a value of this Shape holds.
func (s Shape) Size() int {
	n := 1
	for _, d := range s {
		n *= d
	}
	return n
}

// String renders the shape the way a scalar, vector, or n-D array would be
// described in an error message, e.g. "()", "(10)", "(10,10,10,10)".
func (s Shape) String() string {
	if len(s) == 0 {
		return "()"
	}
	out := "("
	for i, d := range s {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%d", d)
	}
	return out + ")"
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Variable is a named value with a default that fixes its shape. It carries
// no value at evaluation time — only a layout descriptor. Two Variables are
// equal iff their names match.
type Variable struct {
	name  string
	shape Shape
	def   []float64
}

// Declare builds a Variable from a name and a cty.Value default. The default
// must be a cty.Number (scalar), or a (possibly nested) cty.List/cty.Tuple of
// Numbers describing a 1-D or n-D rectangular array; its nesting depth and
// per-level lengths fix the Variable's Shape, and its leaves — read in
// native/declaration order — become the Variable's default flat values.
func Declare(name string, def cty.Value) (Variable, error) {
	shape, flat, err := shapeAndFlatten(def)
	if err != nil {
		return Variable{}, fmt.Errorf("declare %q: %w", name, err)
	}
	return Variable{name: name, shape: shape, def: flat}, nil
}

// MustDeclare is Declare, panicking on error. Intended for package-level
// variable declarations at program startup, not for data-dependent input.
func MustDeclare(name string, def cty.Value) Variable {
	v, err := Declare(name, def)
	if err != nil {
		panic(err)
	}
	return v
}

// Name returns the Variable's declared name.
func (v Variable) Name() string { return v.name }

// Shape returns the Variable's declared shape.
func (v Variable) Shape() Shape { return v.shape }

// Size returns the flat element count of the Variable's shape.
func (v Variable) Size() int { return v.shape.Size() }

// Default returns the Variable's default value flattened into native
// declaration order. The returned slice must not be mutated by the caller.
func (v Variable) Default() []float64 { return v.def }

// Equal reports whether two Variables share a name — the only equality the
// data model recognizes: two variables are equal iff their names match.
func (v Variable) Equal(o Variable) bool { return v.name == o.name }

func (v Variable) String() string {
	return fmt.Sprintf("%s%s", v.name, v.shape)
}

// shapeAndFlatten recursively walks a cty.Value, inferring a rectangular
// Shape from its nesting and flattening its leaves in iteration order. This
// mirrors the recursive descent a cty.Value's ElementIterator performs when
// converting a value tree to a plain Go structure.
func shapeAndFlatten(v cty.Value) (Shape, []float64, error) {
	if !v.IsKnown() || v.IsNull() {
		return nil, nil, fmt.Errorf("default value is unknown or null")
	}
	t := v.Type()
	switch {
	case t == cty.Number:
		bf := v.AsBigFloat()
		f, _ := bf.Float64()
		return Shape{}, []float64{f}, nil
	case t.IsListType() || t.IsTupleType() || t.IsSetType():
		var elemShape Shape
		var flat []float64
		n := 0
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			s, f, err := shapeAndFlatten(elem)
			if err != nil {
				return nil, nil, err
			}
			if n == 0 {
				elemShape = s
			} else if !elemShape.Equal(s) {
				return nil, nil, fmt.Errorf("ragged default value: element %d has shape %s, want %s", n, s, elemShape)
			}
			flat = append(flat, f...)
			n++
		}
		shape := append(Shape{n}, elemShape...)
		return shape, flat, nil
	default:
		return nil, nil, fmt.Errorf("unsupported default value type %s", t.FriendlyName())
	}
}

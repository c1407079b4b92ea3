package variable

// View is a shaped window into a flat vector. Mutating a View's elements
// writes through to the underlying flat vector it was carved from. For a
// scalar Variable the View is a one-element sequence.
type View struct {
	shape Shape
	data  []float64
}

// NewView wraps data (len(data) == shape.Size()) as a shaped View.
func NewView(shape Shape, data []float64) View {
	return View{shape: shape, data: data}
}

// Shape returns the View's shape.
func (v View) Shape() Shape { return v.shape }

// Flat returns the View's backing storage. Mutating it mutates the vector
// the View was carved from.
func (v View) Flat() []float64 { return v.data }

// Scalar returns the sole element of a scalar (or any single-element) View.
func (v View) Scalar() float64 { return v.data[0] }

// Len reports the number of scalar elements in the View.
func (v View) Len() int { return len(v.data) }

// At returns the element at the given flat (row-major) index.
func (v View) At(i int) float64 { return v.data[i] }

// Set writes the element at the given flat (row-major) index.
func (v View) Set(i int, x float64) { v.data[i] = x }

// CopyFrom overwrites the View's elements with src, in flat order.
func (v View) CopyFrom(src []float64) { copy(v.data, src) }

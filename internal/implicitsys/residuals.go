package implicitsys

import "gonum.org/v1/gonum/mat"

// Residuals evaluates the stacked residual vector at (x, y): every inner
// component's input is gathered per the routing table, its own residual is
// computed, and the results are concatenated at the component's
// precomputed residual offset.
func (s *System) Residuals(x, y []float64) ([]float64, error) {
	if err := s.checkXY(x, y); err != nil {
		return nil, err
	}
	r := make([]float64, s.nr)
	for k, c := range s.inner {
		xk := s.gatherInput(k, x, y)
		yk := y[s.componentYOff[k] : s.componentYOff[k]+c.NY()]
		rk, err := c.Residuals(xk, yk)
		if err != nil {
			return nil, err
		}
		copy(r[s.componentROff[k]:s.componentROff[k]+c.NR()], rk)
	}
	return r, nil
}

func (s *System) checkXY(x, y []float64) error {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return err
	}
	return checkLen("y", len(y), s.ny)
}

// ResidualsAndJacobians evaluates the stacked residual together with its
// block Jacobians: ∂r/∂y is block-diagonal-plus-coupling (block (k, k) is
// inner ∂r_k/∂y_k; block (k, j != k) is inner ∂r_k/∂x_k restricted to the
// columns of x_k sourced from component j's output, scattered into
// component j's column range — accumulated, since a component may couple
// to another, or to itself, through more than one routed variable).
// ∂r/∂x is inner ∂r_k/∂x_k restricted to the columns sourced from argin,
// scattered into the matching argin column range.
func (s *System) ResidualsAndJacobians(x, y []float64) (r []float64, Jx, Jy *mat.Dense, err error) {
	if err = s.checkXY(x, y); err != nil {
		return nil, nil, nil, err
	}
	r = make([]float64, s.nr)
	Jx = mat.NewDense(s.nr, s.nx, nil)
	Jy = mat.NewDense(s.nr, s.ny, nil)

	for k, c := range s.inner {
		xk := s.gatherInput(k, x, y)
		yk := y[s.componentYOff[k] : s.componentYOff[k]+c.NY()]
		rk, Jxk, Jyk, cerr := c.ResidualsAndJacobians(xk, yk)
		if cerr != nil {
			return nil, nil, nil, cerr
		}
		rowOff := s.componentROff[k]
		copy(r[rowOff:rowOff+c.NR()], rk)

		// Direct block (k, k): the component's own ∂r_k/∂y_k.
		addBlock(Jy, rowOff, s.componentYOff[k], Jyk)

		// Scatter ∂r_k/∂x_k's columns to ∂r/∂x (argin-sourced) or ∂r/∂y
		// (component-sourced, including a self-loop back into block (k,k)).
		pos := 0
		for _, rt := range s.routing[k] {
			if rt.kind == fromArgin {
				addColumns(Jx, rowOff, rt.offset, Jxk, pos, rt.size)
			} else {
				addColumns(Jy, rowOff, rt.offset, Jxk, pos, rt.size)
			}
			pos += rt.size
		}
	}
	return r, Jx, Jy, nil
}

// addBlock adds src (rows x cols) into dst at row/col offset, elementwise.
func addBlock(dst *mat.Dense, rowOff, colOff int, src *mat.Dense) {
	rows, cols := src.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst.Set(rowOff+i, colOff+j, dst.At(rowOff+i, colOff+j)+src.At(i, j))
		}
	}
}

// addColumns adds src's columns [srcCol : srcCol+n) into dst at
// [rowOff : rowOff+src.Rows(), colOff : colOff+n), elementwise.
func addColumns(dst *mat.Dense, rowOff, colOff int, src *mat.Dense, srcCol, n int) {
	rows, _ := src.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < n; j++ {
			dst.Set(rowOff+i, colOff+j, dst.At(rowOff+i, colOff+j)+src.At(i, srcCol+j))
		}
	}
}

package deriv

// checkDims validates an (x, y) call against a Provider's declared nx/ny.
func checkDims(where string, gotX, gotY, wantX, wantY int) error {
	if gotX != wantX {
		return newShapeError(where+" (input)", 1, gotX, 1, wantX)
	}
	if gotY != wantY {
		return newShapeError(where+" (output)", 1, gotY, 1, wantY)
	}
	return nil
}

// checkJacobianDims validates a Jacobian buffer's shape against the
// declared (ny, nx).
func checkJacobianDims(where string, gotRows, gotCols, wantRows, wantCols int) error {
	if gotRows != wantRows || gotCols != wantCols {
		return newShapeError(where, gotRows, gotCols, wantRows, wantCols)
	}
	return nil
}

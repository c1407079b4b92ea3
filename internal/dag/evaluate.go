package dag

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/errs"
	"gonum.org/v1/gonum/mat"
)

func checkLen(what string, got, want int) error {
	if got != want {
		return fmt.Errorf("%s: %w: got length %d, want %d", what, errs.SizeMismatch, got, want)
	}
	return nil
}

// Outputs is the query variant: always evaluates fresh, never touches the
// system's cache.
func (s *System) Outputs(x []float64) ([]float64, error) {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return nil, err
	}
	y := make([]float64, s.ny)
	if err := s.forwardSweep(x, y, false); err != nil {
		return nil, err
	}
	return y, nil
}

// OutputsInto is the "!" with-buffer variant.
func (s *System) OutputsInto(y, x []float64) error {
	if err := checkLen("y", len(y), s.ny); err != nil {
		return err
	}
	if err := s.ensureOutputs(x, false); err != nil {
		return err
	}
	copy(y, s.lastY)
	return nil
}

// OutputsCached is the "!" without-buffer variant.
func (s *System) OutputsCached(x []float64) ([]float64, error) {
	if err := s.ensureOutputs(x, false); err != nil {
		return nil, err
	}
	return s.lastY, nil
}

// OutputsForce is the "!!" variant: recomputes unconditionally.
func (s *System) OutputsForce(x []float64) ([]float64, error) {
	if err := s.ensureOutputs(x, true); err != nil {
		return nil, err
	}
	return s.lastY, nil
}

// OutputsCurrent is the no-args query variant.
func (s *System) OutputsCurrent() ([]float64, error) {
	if !s.yValid {
		return nil, fmt.Errorf("system %q: outputs() called before any evaluation", s.name)
	}
	return s.lastY, nil
}

func (s *System) ensureOutputs(x []float64, force bool) error {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return err
	}
	changed := s.sync(x)
	if !force && !changed && s.yValid {
		return nil
	}
	if err := s.forwardSweep(s.lastX, s.lastY, false); err != nil {
		return err
	}
	s.yValid = true
	return nil
}

// Jacobian is the query variant.
func (s *System) Jacobian(x []float64) (*mat.Dense, error) {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return nil, err
	}
	y := make([]float64, s.ny)
	if err := s.forwardSweep(x, y, true); err != nil {
		return nil, err
	}
	J := mat.NewDense(s.ny, s.nx, nil)
	s.assemble(J)
	return J, nil
}

// JacobianInto is the "!" with-buffer variant.
func (s *System) JacobianInto(J *mat.Dense, x []float64) error {
	if err := checkJacobianShape(J, s.ny, s.nx); err != nil {
		return err
	}
	if err := s.ensureJacobian(x, false); err != nil {
		return err
	}
	J.Copy(s.lastJ)
	return nil
}

// JacobianCached is the "!" without-buffer variant.
func (s *System) JacobianCached(x []float64) (*mat.Dense, error) {
	if err := s.ensureJacobian(x, false); err != nil {
		return nil, err
	}
	return s.lastJ, nil
}

// JacobianForce is the "!!" variant.
func (s *System) JacobianForce(x []float64) (*mat.Dense, error) {
	if err := s.ensureJacobian(x, true); err != nil {
		return nil, err
	}
	return s.lastJ, nil
}

// JacobianCurrent is the no-args query variant.
func (s *System) JacobianCurrent() (*mat.Dense, error) {
	if !s.jValid {
		return nil, fmt.Errorf("system %q: jacobian() called before any evaluation", s.name)
	}
	return s.lastJ, nil
}

func (s *System) ensureJacobian(x []float64, force bool) error {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return err
	}
	changed := s.sync(x)
	if !force && !changed && s.jValid {
		return nil
	}
	if err := s.forwardSweep(s.lastX, s.lastY, true); err != nil {
		return err
	}
	s.assemble(s.lastJ)
	s.yValid = true
	s.jValid = true
	return nil
}

// OutputsAndJacobian evaluates both in one forward sweep, reusing each
// node's own combined call so no node is evaluated twice.
func (s *System) OutputsAndJacobian(x []float64) ([]float64, *mat.Dense, error) {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return nil, nil, err
	}
	y := make([]float64, s.ny)
	if err := s.forwardSweep(x, y, true); err != nil {
		return nil, nil, err
	}
	J := mat.NewDense(s.ny, s.nx, nil)
	s.assemble(J)
	return y, J, nil
}

// OutputsAndJacobianInto is the "!" with-buffers variant.
func (s *System) OutputsAndJacobianInto(y []float64, J *mat.Dense, x []float64) error {
	if err := checkLen("y", len(y), s.ny); err != nil {
		return err
	}
	if err := checkJacobianShape(J, s.ny, s.nx); err != nil {
		return err
	}
	if err := s.ensureBoth(x, false); err != nil {
		return err
	}
	copy(y, s.lastY)
	J.Copy(s.lastJ)
	return nil
}

// OutputsAndJacobianCached is the "!" without-buffers variant.
func (s *System) OutputsAndJacobianCached(x []float64) ([]float64, *mat.Dense, error) {
	if err := s.ensureBoth(x, false); err != nil {
		return nil, nil, err
	}
	return s.lastY, s.lastJ, nil
}

// OutputsAndJacobianForce is the "!!" variant.
func (s *System) OutputsAndJacobianForce(x []float64) ([]float64, *mat.Dense, error) {
	if err := s.ensureBoth(x, true); err != nil {
		return nil, nil, err
	}
	return s.lastY, s.lastJ, nil
}

func (s *System) ensureBoth(x []float64, force bool) error {
	if err := checkLen("x", len(x), s.nx); err != nil {
		return err
	}
	changed := s.sync(x)
	if !force && !changed && s.yValid && s.jValid {
		return nil
	}
	if err := s.forwardSweep(s.lastX, s.lastY, true); err != nil {
		return err
	}
	s.assemble(s.lastJ)
	s.yValid = true
	s.jValid = true
	return nil
}

// Invalidate is the system-level "!!!" deep invalidation: it drops the
// system's own cache and clears lastX so the next evaluation
// recomputes unconditionally, without needing to know whether any inner
// node's own cache (which a System never touches directly — every call
// below goes through each Node's own query method) is itself stale. Use
// this when an inner node was reconfigured out from under the system, e.g.
// a component's analytic Jacobian provider was swapped after construction.
func (s *System) Invalidate() {
	s.yValid = false
	s.jValid = false
	for i := range s.lastX {
		s.lastX[i] = 0
	}
}

func checkJacobianShape(J *mat.Dense, wantRows, wantCols int) error {
	rows, cols := J.Dims()
	if rows != wantRows || cols != wantCols {
		return fmt.Errorf("jacobian buffer: %w: got shape (%d,%d), want (%d,%d)", errs.SizeMismatch, rows, cols, wantRows, wantCols)
	}
	return nil
}

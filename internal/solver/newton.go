package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/vkazantsev/diffgrid/internal/ctxlog"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/implicitsys"
	"gonum.org/v1/gonum/mat"
)

// stagnationLimit is how many consecutive non-decreasing residual
// iterations Solve tolerates before declaring SolveDiverged rather than
// waiting out the full iteration budget.
const stagnationLimit = 5

// illConditioned is the condition-number threshold past which ∂r/∂y is
// treated as numerically singular.
const illConditioned = 1e14

// Newton is diffgrid's damped-Newton solver for converting an implicit
// residual network into an output map: iterate y ← y − damping·(∂r/∂y)⁻¹ r
// until the residual is within tolerance, then recover ∂y/∂x by the
// implicit function theorem using the same LU factorization the
// convergence check already computed.
type Newton struct {
	cfg NewtonConfig
}

// NewNewton builds a Newton solver with the given configuration.
func NewNewton(cfg NewtonConfig) *Newton {
	return &Newton{cfg: cfg}
}

// Solve finds y such that r(x, y) = 0, starting the iteration from y0. On
// convergence it returns the converged y, the recovered ∂y/∂x, and the
// residual's ∂r/∂x and ∂r/∂y at the converged point (callers that only
// need y may discard the rest).
func (n *Newton) Solve(ctx context.Context, inner implicitsys.Inner, x, y0 []float64) (y []float64, dydx, Jx, Jy *mat.Dense, iterations int, err error) {
	logger := ctxlog.FromContext(ctx)
	ny := inner.NY()

	y = make([]float64, ny)
	copy(y, y0)

	prevNorm := math.Inf(1)
	stagnant := 0
	var lu mat.LU

	for iterations = 0; iterations < n.cfg.MaxIter; iterations++ {
		var r []float64
		r, Jx, Jy, err = inner.ResidualsAndJacobians(x, y)
		if err != nil {
			return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w", err)
		}
		if !finiteSlice(r) || !finiteMat(Jx) || !finiteMat(Jy) {
			return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: non-finite residual or jacobian at iteration %d", errs.SolveDiverged, iterations)
		}

		normR, normY := infNorm(r), infNorm(y)
		logger.Debug("newton iteration", "iter", iterations, "residual_norm", normR, "damping", n.cfg.Damping)

		converged := normR <= n.cfg.ATol+n.cfg.RTol*normY

		lu.Factorize(Jy)
		if cond := lu.Cond(); math.IsInf(cond, 1) || cond > illConditioned {
			return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: ill-conditioned ∂r/∂y at iteration %d", errs.SingularJacobian, iterations)
		}

		if converged {
			rows, _ := Jy.Dims()
			_, cols := Jx.Dims()
			dydx = mat.NewDense(rows, cols, nil)
			if serr := lu.SolveTo(dydx, false, Jx); serr != nil {
				return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: %v", errs.SingularJacobian, serr)
			}
			dydx.Scale(-1, dydx)
			return y, dydx, Jx, Jy, iterations, nil
		}

		if normR >= prevNorm {
			stagnant++
			if stagnant >= stagnationLimit {
				return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: residual stagnated at iteration %d (norm %g)", errs.SolveDiverged, iterations, normR)
			}
		} else {
			stagnant = 0
		}
		prevNorm = normR

		negR := make([]float64, ny)
		for i, ri := range r {
			negR[i] = -ri
		}
		var dy mat.VecDense
		if serr := lu.SolveVecTo(&dy, false, mat.NewVecDense(ny, negR)); serr != nil {
			return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: %v", errs.SingularJacobian, serr)
		}
		for i := 0; i < ny; i++ {
			y[i] += n.cfg.Damping * dy.AtVec(i)
		}
	}
	return nil, nil, nil, nil, iterations, fmt.Errorf("newton solve: %w: exceeded %d iterations", errs.SolveDiverged, n.cfg.MaxIter)
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, vi := range v {
		if a := math.Abs(vi); a > m {
			m = a
		}
	}
	return m
}

func finiteSlice(v []float64) bool {
	for _, vi := range v {
		if math.IsNaN(vi) || math.IsInf(vi, 0) {
			return false
		}
	}
	return true
}

func finiteMat(m *mat.Dense) bool {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

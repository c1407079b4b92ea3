package dag

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// System is diffgrid's explicit system: an ordered list of inner Nodes
// joined by a routing table built at construction, exposing the same
// outputs/jacobian/outputs_and_jacobian suffix ladder as a single component,
// plus the deep-invalidation "!!!" variant proper to systems.
type System struct {
	name   string
	nodes  []Node
	argin  []variable.Variable
	argout []variable.Variable

	arginLayout  *variable.Layout
	argoutLayout *variable.Layout

	routing          [][]route
	argoutRouting    []route
	nodeOutputOffset []int
	publishWidth     int

	mode   Mode
	nx, ny int

	nodeInputs [][]float64
	publish    []float64
	localJ     []*mat.Dense

	lastX   []float64
	yValid  bool
	jValid  bool
	lastY   []float64
	lastJ   *mat.Dense
}

// Name returns the system's declared name.
func (s *System) Name() string { return s.name }

// NX returns the system's external flat input width.
func (s *System) NX() int { return s.nx }

// NY returns the system's external flat output width.
func (s *System) NY() int { return s.ny }

// InVars returns the system's argin tuple, letting a System itself satisfy
// Node and be routed as an inner component of an outer System.
func (s *System) InVars() []variable.Variable { return s.argin }

// OutVars returns the system's argout tuple.
func (s *System) OutVars() []variable.Variable { return s.argout }

// Validate checks that every inner node's declared input/output variable
// tuples flatten to the width it itself reports via NX/NY — a static,
// pre-evaluation parity check against a hand-written Node implementation,
// since a Node built by this package's own constructors already
// guarantees it.
func (s *System) Validate() error {
	for i, n := range s.nodes {
		inWidth := 0
		for _, v := range n.InVars() {
			inWidth += v.Size()
		}
		if inWidth != n.NX() {
			return fmt.Errorf("system %q: node %d (%q): input vars total width %d, NX() reports %d", s.name, i, nodeName(n), inWidth, n.NX())
		}
		outWidth := 0
		for _, v := range n.OutVars() {
			outWidth += v.Size()
		}
		if outWidth != n.NY() {
			return fmt.Errorf("system %q: node %d (%q): output vars total width %d, NY() reports %d", s.name, i, nodeName(n), outWidth, n.NY())
		}
	}
	return nil
}

// buildNodeInput fills s.nodeInputs[i] from x and the already-published
// outputs of earlier nodes (s.publish), following the routing table built
// at construction. Callers must invoke this in node declaration order so
// every fromNode route's source has already been published.
func (s *System) buildNodeInput(x []float64, i int) {
	in := s.nodeInputs[i]
	pos := 0
	for _, r := range s.routing[i] {
		var src []float64
		if r.kind == fromArgin {
			src = x[r.offset : r.offset+r.size]
		} else {
			src = s.publish[r.offset : r.offset+r.size]
		}
		copy(in[pos:pos+r.size], src)
		pos += r.size
	}
}

// forwardSweep evaluates every node in declared order, publishing each
// node's flat output into s.publish, then gathers argout from it into y.
// collectJacobians, when true, also records each node's local Jacobian into
// s.localJ for the assembly pass that follows.
func (s *System) forwardSweep(x []float64, y []float64, collectJacobians bool) error {
	for i, n := range s.nodes {
		s.buildNodeInput(x, i)
		off := s.nodeOutputOffset[i]
		if collectJacobians {
			yi, Ji, err := n.OutputsAndJacobian(s.nodeInputs[i])
			if err != nil {
				return fmt.Errorf("system %q: node %d (%q): %w", s.name, i, nodeName(n), err)
			}
			copy(s.publish[off:off+n.NY()], yi)
			s.localJ[i] = Ji
		} else {
			yi, err := n.Outputs(s.nodeInputs[i])
			if err != nil {
				return fmt.Errorf("system %q: node %d (%q): %w", s.name, i, nodeName(n), err)
			}
			copy(s.publish[off:off+n.NY()], yi)
		}
	}
	for ai, r := range s.argoutRouting {
		start, end := s.argoutLayout.Range(ai)
		copy(y[start:end], s.publish[r.offset:r.offset+r.size])
	}
	return nil
}

// assembleForward threads a "D" matrix of every known quantity's derivative
// with respect to x: the first nx rows are the identity (argin wrt itself),
// followed by one row block per node's published output, each computed as
// that node's local Jacobian times the already-known derivative of its
// inputs (the forward-mode chain rule).
func (s *System) assembleForward(J *mat.Dense) {
	avail := mat.NewDense(s.nx+s.publishWidth, s.nx, nil)
	for i := 0; i < s.nx; i++ {
		avail.Set(i, i, 1)
	}
	for i, n := range s.nodes {
		nxi, nyi := n.NX(), n.NY()
		dudx := mat.NewDense(nxi, s.nx, nil)
		pos := 0
		for _, r := range s.routing[i] {
			availRow := r.offset
			if r.kind == fromNode {
				availRow = s.nx + r.offset
			}
			for k := 0; k < r.size; k++ {
				dudx.SetRow(pos+k, avail.RawRowView(availRow+k))
			}
			pos += r.size
		}
		var dydx mat.Dense
		dydx.Mul(s.localJ[i], dudx)
		off := s.nx + s.nodeOutputOffset[i]
		for k := 0; k < nyi; k++ {
			avail.SetRow(off+k, dydx.RawRowView(k))
		}
	}
	for ai, r := range s.argoutRouting {
		start, end := s.argoutLayout.Range(ai)
		for k := 0; k < end-start; k++ {
			J.SetRow(start+k, avail.RawRowView(s.nx+r.offset+k))
		}
	}
}

// assembleReverse propagates a row-adjoint matrix backward over the node
// list, one output row of the system at a time but all rows in a single
// pass: bar[:, slot] holds the partial of every system output with respect
// to that argin element or published node-output element (the reverse-mode
// chain rule / adjoint sweep).
func (s *System) assembleReverse(J *mat.Dense) {
	bar := mat.NewDense(s.ny, s.nx+s.publishWidth, nil)
	for ai, r := range s.argoutRouting {
		start, end := s.argoutLayout.Range(ai)
		for k := 0; k < end-start; k++ {
			bar.Set(start+k, s.nx+r.offset+k, 1)
		}
	}
	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := s.nodes[i]
		nyi := n.NY()
		off := s.nx + s.nodeOutputOffset[i]
		subBar := bar.Slice(0, s.ny, off, off+nyi)
		var contrib mat.Dense
		contrib.Mul(subBar, s.localJ[i])

		pos := 0
		for _, r := range s.routing[i] {
			targetBase := r.offset
			if r.kind == fromNode {
				targetBase = s.nx + r.offset
			}
			for k := 0; k < r.size; k++ {
				for row := 0; row < s.ny; row++ {
					bar.Set(row, targetBase+k, bar.At(row, targetBase+k)+contrib.At(row, pos+k))
				}
			}
			pos += r.size
		}
	}
	for row := 0; row < s.ny; row++ {
		for col := 0; col < s.nx; col++ {
			J.Set(row, col, bar.At(row, col))
		}
	}
}

func (s *System) assemble(J *mat.Dense) {
	if s.mode.resolve(s.nx, s.ny) == Forward {
		s.assembleForward(J)
	} else {
		s.assembleReverse(J)
	}
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *System) sync(x []float64) bool {
	if equalFloats(s.lastX, x) {
		return false
	}
	copy(s.lastX, x)
	s.yValid = false
	s.jValid = false
	return true
}

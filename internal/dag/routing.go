package dag

import (
	"context"
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/ctxlog"
	"github.com/vkazantsev/diffgrid/internal/errs"
	"github.com/vkazantsev/diffgrid/internal/variable"
	"gonum.org/v1/gonum/mat"
)

// sourceKind tags where a routed input slice comes from.
type sourceKind int

const (
	fromArgin sourceKind = iota
	fromNode
)

// route is one inner-component input variable's resolved source: either a
// slice of the system's external input vector, or a slice of an earlier
// component's published output vector.
type route struct {
	kind     sourceKind
	nodeIdx  int // valid when kind == fromNode
	offset   int
	size     int
}

// Mode selects the Jacobian assembly strategy for a System.
type Mode int

const (
	// Auto picks Forward when nx <= ny, Reverse otherwise.
	Auto Mode = iota
	Forward
	Reverse
)

// Build constructs and validates a System from an ordered list of inner
// nodes, an external input tuple (argin), and an external output tuple
// (argout). Construction performs a three-pass check: resolve every inner
// input, reject forward references as Cycle, and confirm every argout is
// reachable.
func Build(ctx context.Context, name string, nodes []Node, argin, argout []variable.Variable, opts ...Option) (*System, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("starting explicit system construction", "system", name, "nodes", len(nodes))

	arginLayout := variable.NewLayout(argin)

	// nodeOutputOffset[i] is where node i's published output begins inside
	// the system-wide publish buffer (the concatenation of every node's
	// output, in declared order).
	nodeOutputOffset := make([]int, len(nodes))
	publishWidth := 0
	for i, n := range nodes {
		nodeOutputOffset[i] = publishWidth
		publishWidth += n.NY()
	}

	routing := make([][]route, len(nodes))
	for i, n := range nodes {
		rs := make([]route, len(n.InVars()))
		for vi, v := range n.InVars() {
			r, err := resolveRoute(v, i, nodes, arginLayout, nodeOutputOffset)
			if err != nil {
				return nil, fmt.Errorf("system %q: node %d (%q) input %q: %w", name, i, nodeName(n), v.Name(), err)
			}
			rs[vi] = r
		}
		routing[i] = rs
	}
	logger.Debug("routing resolved for all inner inputs", "system", name)

	argoutRouting := make([]route, len(argout))
	for ai, v := range argout {
		r, found := findOutputSource(v, nodes, nodeOutputOffset)
		if !found {
			return nil, fmt.Errorf("system %q: argout %q: %w", name, v.Name(), errs.UnresolvedOutput)
		}
		argoutRouting[ai] = r
	}
	logger.Debug("argout resolution complete", "system", name)

	cfg := applyOptions(opts)
	sys := &System{
		name:             name,
		nodes:            nodes,
		argin:            argin,
		argout:           argout,
		arginLayout:      arginLayout,
		argoutLayout:     variable.NewLayout(argout),
		routing:          routing,
		argoutRouting:    argoutRouting,
		nodeOutputOffset: nodeOutputOffset,
		publishWidth:     publishWidth,
		mode:             cfg.mode,
	}
	sys.nx = arginLayout.Width()
	sys.ny = sys.argoutLayout.Width()
	sys.publish = make([]float64, publishWidth)
	sys.nodeInputs = make([][]float64, len(nodes))
	for i, n := range nodes {
		sys.nodeInputs[i] = make([]float64, n.NX())
	}
	sys.localJ = make([]*mat.Dense, len(nodes))
	sys.lastX = make([]float64, sys.nx)
	sys.lastY = make([]float64, sys.ny)
	sys.lastJ = mat.NewDense(sys.ny, sys.nx, nil)

	logger.Debug("explicit system construction complete", "system", name, "nx", sys.nx, "ny", sys.ny)
	return sys, nil
}

func nodeName(n Node) string {
	type named interface{ Name() string }
	if nm, ok := n.(named); ok {
		return nm.Name()
	}
	return "?"
}

// resolveRoute matches input variable v (belonging to node at index nodeIdx)
// against argin first, then against the published output of any earlier
// node. A match against node nodeIdx itself or a later node is a Cycle —
// explicit systems admit no feedback across components.
func resolveRoute(v variable.Variable, nodeIdx int, nodes []Node, arginLayout *variable.Layout, nodeOutputOffset []int) (route, error) {
	if i := arginLayout.IndexOf(v.Name()); i >= 0 {
		start, _ := arginLayout.Range(i)
		return route{kind: fromArgin, offset: start, size: v.Size()}, nil
	}
	for j := 0; j < nodeIdx; j++ {
		if off, size, ok := outputOffset(v.Name(), nodes[j]); ok {
			return route{kind: fromNode, nodeIdx: j, offset: nodeOutputOffset[j] + off, size: size}, nil
		}
	}
	for j := nodeIdx; j < len(nodes); j++ {
		if _, _, ok := outputOffset(v.Name(), nodes[j]); ok {
			return route{}, errs.Cycle
		}
	}
	return route{}, errs.UnresolvedInput
}

// findOutputSource matches an argout variable against any node's output.
func findOutputSource(v variable.Variable, nodes []Node, nodeOutputOffset []int) (route, bool) {
	for j, n := range nodes {
		if off, size, ok := outputOffset(v.Name(), n); ok {
			return route{kind: fromNode, nodeIdx: j, offset: nodeOutputOffset[j] + off, size: size}, true
		}
	}
	return route{}, false
}

// outputOffset returns the within-node flat offset and size of the output
// variable named name on node n, and whether it exists.
func outputOffset(name string, n Node) (offset, size int, ok bool) {
	off := 0
	for _, v := range n.OutVars() {
		if v.Name() == name {
			return off, v.Size(), true
		}
		off += v.Size()
	}
	return 0, 0, false
}

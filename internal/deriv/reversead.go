package deriv

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// tape records every Var created during one primal evaluation, so Backward
// can sweep it in reverse and accumulate adjoints. A fresh tape is built for
// every call — tape nodes are cheap, and only construction-time buffers are
// expected to be allocated once and reused.
type tape struct {
	values  []float64
	partial [][2]float64 // local derivative w.r.t. each of up to two parents
	parents [][2]int      // parent node indices, -1 if unused
}

func newTape() *tape { return &tape{} }

func (t *tape) push(val float64, p0, p1 int, d0, d1 float64) Var {
	t.values = append(t.values, val)
	t.partial = append(t.partial, [2]float64{d0, d1})
	t.parents = append(t.parents, [2]int{p0, p1})
	return Var{tape: t, idx: len(t.values) - 1}
}

// leaf records an independent input variable (no parents).
func (t *tape) leaf(val float64) Var { return t.push(val, -1, -1, 0, 0) }

// Var is a reverse-mode tape variable: a value plus a handle back into the
// tape that recorded how it was computed.
type Var struct {
	tape *tape
	idx  int
}

func (v Var) val() float64 { return v.tape.values[v.idx] }

func (a Var) Add(b Var) Var {
	return a.tape.push(a.val()+b.val(), a.idx, b.idx, 1, 1)
}
func (a Var) Sub(b Var) Var {
	return a.tape.push(a.val()-b.val(), a.idx, b.idx, 1, -1)
}
func (a Var) Mul(b Var) Var {
	return a.tape.push(a.val()*b.val(), a.idx, b.idx, b.val(), a.val())
}
func (a Var) Div(b Var) Var {
	av, bv := a.val(), b.val()
	return a.tape.push(av/bv, a.idx, b.idx, 1/bv, -av/(bv*bv))
}
func (a Var) Neg() Var {
	return a.tape.push(-a.val(), a.idx, -1, -1, 0)
}
func (a Var) Sin() Var {
	return a.tape.push(math.Sin(a.val()), a.idx, -1, math.Cos(a.val()), 0)
}
func (a Var) Cos() Var {
	return a.tape.push(math.Cos(a.val()), a.idx, -1, -math.Sin(a.val()), 0)
}
func (a Var) Sqrt() Var {
	s := math.Sqrt(a.val())
	return a.tape.push(s, a.idx, -1, 1/(2*s), 0)
}
func (a Var) Exp() Var {
	e := math.Exp(a.val())
	return a.tape.push(e, a.idx, -1, e, 0)
}

// backward runs the reverse sweep seeded by an output index, returning the
// adjoint (∂output/∂·) of every tape node — in particular, of the leaves.
func (t *tape) backward(outputIdx int) []float64 {
	adj := make([]float64, len(t.values))
	adj[outputIdx] = 1
	for i := len(t.values) - 1; i >= 0; i-- {
		bar := adj[i]
		if bar == 0 {
			continue
		}
		p0, p1 := t.parents[i][0], t.parents[i][1]
		d0, d1 := t.partial[i][0], t.partial[i][1]
		if p0 >= 0 {
			adj[p0] += bar * d0
		}
		if p1 >= 0 {
			adj[p1] += bar * d1
		}
	}
	return adj
}

type reverseAD struct {
	f  GenericPrimal[Var]
	nx int
	ny int
}

// NewReverseAD builds a ReverseAD Provider around a primal written against
// Number[Var]. Its Jacobian costs ny reverse sweeps over one shared tape,
// cheaper than ForwardAD's nx sweeps when ny < nx.
func NewReverseAD(f GenericPrimal[Var], nx, ny int) Provider {
	return &reverseAD{f: f, nx: nx, ny: ny}
}

func (p *reverseAD) Kind() Kind { return ReverseAD }

func (p *reverseAD) CanOutput() bool { return true }

func (p *reverseAD) CanJacobian() bool { return true }

// record replays the primal on a fresh tape and returns the leaves plus the
// output nodes, so both Output and Jacobian share one evaluation.
func (p *reverseAD) record(x []float64) (*tape, []Var, []Var) {
	t := newTape()
	leaves := make([]Var, p.nx)
	for i, xi := range x {
		leaves[i] = t.leaf(xi)
	}
	outputs := p.f(leaves)
	return t, leaves, outputs
}

func (p *reverseAD) Output(x, y []float64) error {
	if err := checkDims("ReverseAD.Output", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	_, _, outputs := p.record(x)
	for i, o := range outputs {
		y[i] = o.val()
	}
	return nil
}

func (p *reverseAD) Jacobian(x []float64, J *mat.Dense) error {
	rows, cols := J.Dims()
	if err := checkJacobianDims("ReverseAD.Jacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	t, leaves, outputs := p.record(x)
	for i, o := range outputs {
		adj := t.backward(o.idx)
		for j, leaf := range leaves {
			J.Set(i, j, adj[leaf.idx])
		}
	}
	return nil
}

func (p *reverseAD) OutputAndJacobian(x, y []float64, J *mat.Dense) error {
	if err := checkDims("ReverseAD.OutputAndJacobian", len(x), len(y), p.nx, p.ny); err != nil {
		return err
	}
	rows, cols := J.Dims()
	if err := checkJacobianDims("ReverseAD.OutputAndJacobian", rows, cols, p.ny, p.nx); err != nil {
		return err
	}
	t, leaves, outputs := p.record(x)
	for i, o := range outputs {
		y[i] = o.val()
		adj := t.backward(o.idx)
		for j, leaf := range leaves {
			J.Set(i, j, adj[leaf.idx])
		}
	}
	return nil
}

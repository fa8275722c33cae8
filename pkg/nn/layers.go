package nn

import (
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

// Dense is y = W x + b.
type Dense struct {
	Weight Param
	Bias   Param
	In     int
	Out    int
}

func NewDense(in *Initializer, name string, nin, nout int) *Dense {
	return &Dense{
		Weight: in.matrix(name+"/kernel", nout, nin),
		Bias:   zerosParam(name+"/bias", nout),
		In:     nin,
		Out:    nout,
	}
}

func (d *Dense) Params() []Param { return []Param{d.Weight, d.Bias} }

func (d *Dense) Forward(x []*autograd.Value) ([]*autograd.Value, error) {
	if len(x) != d.In {
		return nil, fmt.Errorf("%s: input width %d, want %d", d.Weight.Name, len(x), d.In)
	}
	out := make([]*autograd.Value, d.Out)
	bias := d.Bias.W[0]
	for o, row := range d.Weight.W {
		terms := make([]*autograd.Value, 0, len(x)+1)
		for i := range x {
			terms = append(terms, autograd.Mul(row[i], x[i]))
		}
		terms = append(terms, bias[o])
		out[o] = autograd.Sum(terms...)
	}
	return out, nil
}

// Embedding maps token ids to learned rows.
type Embedding struct {
	Table Param
	Vocab int
	Dim   int
}

func NewEmbedding(in *Initializer, name string, vocab, dim int) *Embedding {
	return &Embedding{Table: in.matrix(name+"/embeddings", vocab, dim), Vocab: vocab, Dim: dim}
}

func (e *Embedding) Params() []Param { return []Param{e.Table} }

func (e *Embedding) Lookup(id int) ([]*autograd.Value, error) {
	if id < 0 || id >= e.Vocab {
		return nil, fmt.Errorf("token id %d out of range [0,%d)", id, e.Vocab)
	}
	return e.Table.W[id], nil
}

func add(a, b []*autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, len(a))
	for i := range a {
		out[i] = autograd.Add(a[i], b[i])
	}
	return out
}

func apply(xs []*autograd.Value, fn func(*autograd.Value) *autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, len(xs))
	for i, x := range xs {
		out[i] = fn(x)
	}
	return out
}

func mul(a, b []*autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, len(a))
	for i := range a {
		out[i] = autograd.Mul(a[i], b[i])
	}
	return out
}

// ReLU applies max(0, x) element-wise.
func ReLU(xs []*autograd.Value) []*autograd.Value { return apply(xs, autograd.ReLU) }

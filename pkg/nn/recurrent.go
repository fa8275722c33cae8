package nn

import (
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

// CellState is the carried memory of one sequence. C is only used by LSTM.
type CellState struct {
	H []*autograd.Value
	C []*autograd.Value
}

// Cell advances a recurrent state by one timestep.
type Cell interface {
	Step(x []*autograd.Value, s CellState) (CellState, error)
	Zero() CellState
	Units() int
	Params() []Param
}

// GRUCell follows the reset-after formulation:
//
//	z = sigmoid(Wz x + Uz h)
//	r = sigmoid(Wr x + Ur h)
//	n = tanh(Wn x + r * (Un h))
//	h' = z*h + (1-z)*n
type GRUCell struct {
	units      int
	wz, wr, wn *Dense
	uz, ur, un *Dense
}

func NewGRUCell(in *Initializer, name string, nin, units int) *GRUCell {
	return &GRUCell{
		units: units,
		wz:    NewDense(in, name+"/update/input", nin, units),
		wr:    NewDense(in, name+"/reset/input", nin, units),
		wn:    NewDense(in, name+"/candidate/input", nin, units),
		uz:    NewDense(in, name+"/update/recurrent", units, units),
		ur:    NewDense(in, name+"/reset/recurrent", units, units),
		un:    NewDense(in, name+"/candidate/recurrent", units, units),
	}
}

func (g *GRUCell) Units() int { return g.units }

func (g *GRUCell) Zero() CellState { return CellState{H: autograd.Zeros(g.units)} }

func (g *GRUCell) Params() []Param {
	var out []Param
	for _, d := range []*Dense{g.wz, g.wr, g.wn, g.uz, g.ur, g.un} {
		out = append(out, d.Params()...)
	}
	return out
}

func (g *GRUCell) Step(x []*autograd.Value, s CellState) (CellState, error) {
	if len(s.H) != g.units {
		return CellState{}, fmt.Errorf("gru: hidden width %d, want %d", len(s.H), g.units)
	}
	xz, err := g.wz.Forward(x)
	if err != nil {
		return CellState{}, err
	}
	xr, err := g.wr.Forward(x)
	if err != nil {
		return CellState{}, err
	}
	xn, err := g.wn.Forward(x)
	if err != nil {
		return CellState{}, err
	}
	hz, err := g.uz.Forward(s.H)
	if err != nil {
		return CellState{}, err
	}
	hr, err := g.ur.Forward(s.H)
	if err != nil {
		return CellState{}, err
	}
	hn, err := g.un.Forward(s.H)
	if err != nil {
		return CellState{}, err
	}

	z := apply(add(xz, hz), autograd.Sigmoid)
	r := apply(add(xr, hr), autograd.Sigmoid)
	n := apply(add(xn, mul(r, hn)), autograd.Tanh)

	h := make([]*autograd.Value, g.units)
	for i := range h {
		keep := autograd.Mul(z[i], s.H[i])
		fresh := autograd.Mul(autograd.Sub(autograd.V(1), z[i]), n[i])
		h[i] = autograd.Add(keep, fresh)
	}
	return CellState{H: h}, nil
}

// LSTMCell is the standard input/forget/cell/output gate cell.
type LSTMCell struct {
	units          int
	wi, wf, wg, wo *Dense
	ui, uf, ug, uo *Dense
}

func NewLSTMCell(in *Initializer, name string, nin, units int) *LSTMCell {
	return &LSTMCell{
		units: units,
		wi:    NewDense(in, name+"/input_gate/input", nin, units),
		wf:    NewDense(in, name+"/forget_gate/input", nin, units),
		wg:    NewDense(in, name+"/cell/input", nin, units),
		wo:    NewDense(in, name+"/output_gate/input", nin, units),
		ui:    NewDense(in, name+"/input_gate/recurrent", units, units),
		uf:    NewDense(in, name+"/forget_gate/recurrent", units, units),
		ug:    NewDense(in, name+"/cell/recurrent", units, units),
		uo:    NewDense(in, name+"/output_gate/recurrent", units, units),
	}
}

func (l *LSTMCell) Units() int { return l.units }

func (l *LSTMCell) Zero() CellState {
	return CellState{H: autograd.Zeros(l.units), C: autograd.Zeros(l.units)}
}

func (l *LSTMCell) Params() []Param {
	var out []Param
	for _, d := range []*Dense{l.wi, l.wf, l.wg, l.wo, l.ui, l.uf, l.ug, l.uo} {
		out = append(out, d.Params()...)
	}
	return out
}

func (l *LSTMCell) gate(w, u *Dense, x, h []*autograd.Value, act func(*autograd.Value) *autograd.Value) ([]*autograd.Value, error) {
	a, err := w.Forward(x)
	if err != nil {
		return nil, err
	}
	b, err := u.Forward(h)
	if err != nil {
		return nil, err
	}
	return apply(add(a, b), act), nil
}

func (l *LSTMCell) Step(x []*autograd.Value, s CellState) (CellState, error) {
	if len(s.H) != l.units || len(s.C) != l.units {
		return CellState{}, fmt.Errorf("lstm: state width %d/%d, want %d", len(s.H), len(s.C), l.units)
	}
	i, err := l.gate(l.wi, l.ui, x, s.H, autograd.Sigmoid)
	if err != nil {
		return CellState{}, err
	}
	f, err := l.gate(l.wf, l.uf, x, s.H, autograd.Sigmoid)
	if err != nil {
		return CellState{}, err
	}
	g, err := l.gate(l.wg, l.ug, x, s.H, autograd.Tanh)
	if err != nil {
		return CellState{}, err
	}
	o, err := l.gate(l.wo, l.uo, x, s.H, autograd.Sigmoid)
	if err != nil {
		return CellState{}, err
	}
	c := add(mul(f, s.C), mul(i, g))
	h := mul(o, apply(c, autograd.Tanh))
	return CellState{H: h, C: c}, nil
}

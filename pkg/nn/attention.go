package nn

import (
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

// Attention is additive (Bahdanau) attention over image regions:
//
//	score_r = v . tanh(W1 f_r + W2 h)
//	alpha   = softmax(score)
//	context = sum_r alpha_r f_r
type Attention struct {
	w1, w2, v *Dense
	featDim   int
	units     int
}

func NewAttention(in *Initializer, name string, featDim, units int) *Attention {
	return &Attention{
		w1:      NewDense(in, name+"/w1", featDim, units),
		w2:      NewDense(in, name+"/w2", units, units),
		v:       NewDense(in, name+"/v", units, 1),
		featDim: featDim,
		units:   units,
	}
}

func (a *Attention) Params() []Param {
	var out []Param
	for _, d := range []*Dense{a.w1, a.w2, a.v} {
		out = append(out, d.Params()...)
	}
	return out
}

// Forward returns the context vector and the attention weights for one
// example. features is [regions][featDim]; hidden is [units].
func (a *Attention) Forward(features [][]*autograd.Value, hidden []*autograd.Value) ([]*autograd.Value, []*autograd.Value, error) {
	if len(features) == 0 {
		return nil, nil, fmt.Errorf("attention: no feature regions")
	}
	hproj, err := a.w2.Forward(hidden)
	if err != nil {
		return nil, nil, err
	}
	scores := make([]*autograd.Value, len(features))
	for r, f := range features {
		fproj, err := a.w1.Forward(f)
		if err != nil {
			return nil, nil, err
		}
		s, err := a.v.Forward(apply(add(fproj, hproj), autograd.Tanh))
		if err != nil {
			return nil, nil, err
		}
		scores[r] = s[0]
	}
	alpha := autograd.Softmax(scores)
	context := make([]*autograd.Value, a.featDim)
	for e := 0; e < a.featDim; e++ {
		terms := make([]*autograd.Value, len(features))
		for r, f := range features {
			terms[r] = autograd.Mul(alpha[r], f[e])
		}
		context[e] = autograd.Sum(terms...)
	}
	return context, alpha, nil
}

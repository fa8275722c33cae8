// Package autograd implements scalar reverse-mode automatic differentiation.
//
// Every arithmetic operation allocates a new Value that remembers its
// children and the local derivative with respect to each of them. Calling
// Backward on a result walks the recorded graph once and accumulates
// gradients into every Value that contributed to it.
package autograd

import "math"

// Value represents a scalar for autograd
type Value struct {
	Data       float64
	Grad       float64
	Children   []*Value
	LocalGrads []float64
}

func V(x float64) *Value {
	return &Value{Data: x}
}

func Add(a, b *Value) *Value {
	return &Value{Data: a.Data + b.Data, Children: []*Value{a, b}, LocalGrads: []float64{1, 1}}
}

// Sum adds any number of values as a single graph node. It keeps long
// reductions (dot products, softmax denominators) one level deep instead of
// building a chain of Add nodes.
func Sum(xs ...*Value) *Value {
	if len(xs) == 0 {
		return V(0)
	}
	total := 0.0
	grads := make([]float64, len(xs))
	for i, x := range xs {
		total += x.Data
		grads[i] = 1
	}
	children := make([]*Value, len(xs))
	copy(children, xs)
	return &Value{Data: total, Children: children, LocalGrads: grads}
}

func Sub(a, b *Value) *Value {
	return Add(a, Neg(b))
}

func Mul(a, b *Value) *Value {
	return &Value{Data: a.Data * b.Data, Children: []*Value{a, b}, LocalGrads: []float64{b.Data, a.Data}}
}

// Scale multiplies a by a constant without allocating a leaf for it.
func Scale(a *Value, c float64) *Value {
	return &Value{Data: a.Data * c, Children: []*Value{a}, LocalGrads: []float64{c}}
}

func Pow(a *Value, p float64) *Value {
	return &Value{Data: math.Pow(a.Data, p), Children: []*Value{a}, LocalGrads: []float64{p * math.Pow(a.Data, p-1)}}
}

func Div(a, b *Value) *Value {
	return Mul(a, Pow(b, -1))
}

func Neg(a *Value) *Value {
	return Scale(a, -1)
}

func Log(a *Value) *Value {
	return &Value{Data: math.Log(a.Data), Children: []*Value{a}, LocalGrads: []float64{1 / a.Data}}
}

func Exp(a *Value) *Value {
	ed := math.Exp(a.Data)
	return &Value{Data: ed, Children: []*Value{a}, LocalGrads: []float64{ed}}
}

func ReLU(a *Value) *Value {
	if a.Data > 0 {
		return &Value{Data: a.Data, Children: []*Value{a}, LocalGrads: []float64{1}}
	}
	return &Value{Data: 0, Children: []*Value{a}, LocalGrads: []float64{0}}
}

func Tanh(a *Value) *Value {
	t := math.Tanh(a.Data)
	return &Value{Data: t, Children: []*Value{a}, LocalGrads: []float64{1 - t*t}}
}

func Sigmoid(a *Value) *Value {
	s := 1 / (1 + math.Exp(-a.Data))
	return &Value{Data: s, Children: []*Value{a}, LocalGrads: []float64{s * (1 - s)}}
}

// Backward sets out.Grad to 1 and propagates gradients to every value
// reachable from out. Gradients of the reachable graph are reset first, so
// leaves shared across calls must not rely on accumulation between calls.
func Backward(out *Value) {
	topo := topoOrder(out)
	for _, v := range topo {
		v.Grad = 0
	}
	out.Grad = 1
	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		for j, ch := range v.Children {
			ch.Grad += v.LocalGrads[j] * v.Grad
		}
	}
}

// topoOrder lists every value reachable from out with children before their
// parents, walking the graph with an explicit stack instead of recursion.
func topoOrder(out *Value) []*Value {
	type frame struct {
		v    *Value
		next int
	}
	var topo []*Value
	visited := map[*Value]bool{out: true}
	stack := []frame{{v: out}}
	for len(stack) > 0 {
		f := &stack[len(stack)-1]
		if f.next < len(f.v.Children) {
			ch := f.v.Children[f.next]
			f.next++
			if !visited[ch] {
				visited[ch] = true
				stack = append(stack, frame{v: ch})
			}
			continue
		}
		topo = append(topo, f.v)
		stack = stack[:len(stack)-1]
	}
	return topo
}

package autograd

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBackwardProductRule(t *testing.T) {
	a, b := V(2), V(3)
	out := Add(Mul(a, b), a) // a*b + a

	Backward(out)

	if !approx(out.Data, 8) {
		t.Fatalf("forward = %f, want 8", out.Data)
	}
	if !approx(a.Grad, 4) {
		t.Errorf("da = %f, want 4", a.Grad)
	}
	if !approx(b.Grad, 2) {
		t.Errorf("db = %f, want 2", b.Grad)
	}
}

func TestBackwardResetsReachableGrads(t *testing.T) {
	a := V(1.5)
	Backward(Mul(a, V(2)))
	Backward(Mul(a, V(2)))
	if !approx(a.Grad, 2) {
		t.Fatalf("grad after second pass = %f, want 2", a.Grad)
	}
}

func TestActivationDerivatives(t *testing.T) {
	tests := []struct {
		name string
		fn   func(*Value) *Value
		x    float64
		want float64
	}{
		{"tanh at 0", Tanh, 0, 1},
		{"sigmoid at 0", Sigmoid, 0, 0.25},
		{"relu positive", ReLU, 2, 1},
		{"relu negative", ReLU, -2, 0},
		{"exp at 0", Exp, 0, 1},
		{"log at 2", Log, 2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := V(tt.x)
			Backward(tt.fn(x))
			if !approx(x.Grad, tt.want) {
				t.Errorf("grad = %f, want %f", x.Grad, tt.want)
			}
		})
	}
}

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax(Constants([]float64{1000, 1001, 999}))
	total := 0.0
	for _, p := range probs {
		total += p.Data
	}
	if !approx(total, 1) {
		t.Fatalf("softmax sum = %f, want 1", total)
	}
}

func TestLogSumExpMatchesDirect(t *testing.T) {
	xs := []float64{0.1, -0.4, 2.0}
	direct := math.Log(math.Exp(0.1) + math.Exp(-0.4) + math.Exp(2.0))
	if got := LogSumExp(Constants(xs)).Data; !approx(got, direct) {
		t.Fatalf("LogSumExp = %f, want %f", got, direct)
	}
}

func TestSumGradient(t *testing.T) {
	xs := Constants([]float64{1, 2, 3})
	Backward(Scale(Sum(xs...), 3))
	for i, x := range xs {
		if !approx(x.Grad, 3) {
			t.Errorf("xs[%d].Grad = %f, want 3", i, x.Grad)
		}
	}
}

func TestBackwardDeepChain(t *testing.T) {
	x := V(1)
	y := x
	for i := 0; i < 200000; i++ {
		y = Scale(y, 1)
	}
	Backward(y)
	if x.Grad != 1 {
		t.Fatalf("x.Grad = %v, want 1", x.Grad)
	}
}

func TestTopoOrderSharedNode(t *testing.T) {
	a := V(2)
	b := Mul(a, a)
	c := Add(b, a)
	d := Mul(c, b)
	order := topoOrder(d)
	if len(order) != 4 {
		t.Fatalf("got %d values, want 4", len(order))
	}
	pos := map[*Value]int{}
	for i, v := range order {
		pos[v] = i
	}
	if !(pos[a] < pos[b] && pos[b] < pos[c] && pos[c] < pos[d]) {
		t.Fatalf("children must precede parents: %v", pos)
	}
	Backward(d)
	// d = (a^2 + a) * a^2, so dd/da = 4a^3 + 3a^2.
	if !approx(a.Grad, 4*8+3*4) {
		t.Fatalf("a.Grad = %v, want 44", a.Grad)
	}
}

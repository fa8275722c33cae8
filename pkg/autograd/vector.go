package autograd

// Constants wraps plain floats as leaves that take no part in training.
func Constants(xs []float64) []*Value {
	out := make([]*Value, len(xs))
	for i, x := range xs {
		out[i] = V(x)
	}
	return out
}

// Zeros returns n fresh zero leaves.
func Zeros(n int) []*Value {
	out := make([]*Value, n)
	for i := range out {
		out[i] = V(0)
	}
	return out
}

// Data copies the forward values out of xs.
func Data(xs []*Value) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x.Data
	}
	return out
}

// Dot returns sum(a[i]*b[i]). a and b must have the same length.
func Dot(a, b []*Value) *Value {
	terms := make([]*Value, len(a))
	for i := range a {
		terms[i] = Mul(a[i], b[i])
	}
	return Sum(terms...)
}

func softmaxMax(logits []*Value) float64 {
	maxVal := logits[0].Data
	for i := 1; i < len(logits); i++ {
		if logits[i].Data > maxVal {
			maxVal = logits[i].Data
		}
	}
	return maxVal
}

// Softmax normalizes logits into probabilities. The running maximum is
// subtracted as a constant so large logits do not overflow.
func Softmax(logits []*Value) []*Value {
	maxVal := softmaxMax(logits)
	exps := make([]*Value, len(logits))
	for i, l := range logits {
		exps[i] = Exp(Sub(l, V(maxVal)))
	}
	total := Sum(exps...)
	probs := make([]*Value, len(logits))
	for i := range exps {
		probs[i] = Div(exps[i], total)
	}
	return probs
}

// LogSumExp returns log(sum(exp(logits))) computed around the maximum.
func LogSumExp(logits []*Value) *Value {
	maxVal := softmaxMax(logits)
	exps := make([]*Value, len(logits))
	for i, l := range logits {
		exps[i] = Exp(Sub(l, V(maxVal)))
	}
	return Add(Log(Sum(exps...)), V(maxVal))
}

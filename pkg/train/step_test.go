package train

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/config"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/dataset"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/model"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/optim"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/vocab"
)

// eightWords has ids 0..7: the four markers plus a, b, c, d.
func eightWords(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.New(vocab.ModeWord, "", 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Build([]string{"a b c d"}); err != nil {
		t.Fatal(err)
	}
	if v.Len() != 8 {
		t.Fatalf("vocabulary has %d ids", v.Len())
	}
	return v
}

type nullEncoder struct{}

func (nullEncoder) Encode(f []*mat.Dense) ([][][]*autograd.Value, error) {
	return make([][][]*autograd.Value, len(f)), nil
}
func (nullEncoder) Parameters() []nn.Param                   { return nil }
func (nullEncoder) ExportState() map[string][][]float64      { return nil }
func (nullEncoder) ImportState(map[string][][]float64) error { return nil }

// uniformDecoder scores every word equally and records its inputs.
type uniformDecoder struct {
	vocab  int
	inputs [][]int
	err    error
}

func (d *uniformDecoder) Step(input []int, _ [][][]*autograd.Value, h model.Hidden) ([][]*autograd.Value, model.Hidden, [][]*autograd.Value, error) {
	if d.err != nil {
		return nil, model.Hidden{}, nil, d.err
	}
	d.inputs = append(d.inputs, append([]int(nil), input...))
	logits := make([][]*autograd.Value, len(input))
	for i := range logits {
		logits[i] = autograd.Zeros(d.vocab)
	}
	return logits, h, nil, nil
}

func (d *uniformDecoder) ResetState(n int) model.Hidden {
	return model.Hidden{States: make([]nn.CellState, n)}
}
func (d *uniformDecoder) Parameters() []nn.Param                   { return nil }
func (d *uniformDecoder) ExportState() map[string][][]float64      { return nil }
func (d *uniformDecoder) ImportState(map[string][][]float64) error { return nil }

type countingOptimizer struct {
	optim.Optimizer
	applied int
}

func (c *countingOptimizer) Apply(params []nn.Param) error {
	c.applied++
	return c.Optimizer.Apply(params)
}

func scenarioBatch() dataset.Batch {
	return dataset.Batch{
		Features: []*mat.Dense{mat.NewDense(1, 1, nil), mat.NewDense(1, 1, nil)},
		Targets:  [][]int{{1, 5, 6, 2}, {1, 7, 2, 0}},
	}
}

func TestStepGroundTruthInputsScenario(t *testing.T) {
	logV := math.Log(8)
	tests := []struct {
		normalization string
		denom         float64
	}{
		{config.NormalizeTimesteps, 3},
		{config.NormalizeSequenceLength, 4},
	}
	for _, tt := range tests {
		t.Run(tt.normalization, func(t *testing.T) {
			dec := &uniformDecoder{vocab: 8}
			m := &model.Model{Encoder: nullEncoder{}, Decoder: dec, Vocabulary: eightWords(t)}
			opt := &countingOptimizer{Optimizer: optim.NewSGD(0.1)}
			s, err := NewStepper(m, opt, tt.normalization)
			if err != nil {
				t.Fatal(err)
			}
			r, err := s.Step(scenarioBatch())
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			// Timesteps 1 and 2 score both captions, timestep 3 only the
			// first: the padded position adds nothing but still counts in
			// the batch mean.
			want := logV + logV + logV/2
			if r.Timesteps != 3 {
				t.Fatalf("Timesteps = %d, want 3", r.Timesteps)
			}
			if math.Abs(r.Loss-want) > 1e-12 {
				t.Fatalf("Loss = %v, want %v", r.Loss, want)
			}
			if math.Abs(r.TotalLoss-want/tt.denom) > 1e-12 {
				t.Fatalf("TotalLoss = %v, want %v", r.TotalLoss, want/tt.denom)
			}
			wantInputs := [][]int{{1, 1}, {5, 7}, {6, 2}}
			if !reflect.DeepEqual(dec.inputs, wantInputs) {
				t.Fatalf("decoder inputs = %v, want %v", dec.inputs, wantInputs)
			}
			if opt.applied != 1 {
				t.Fatalf("optimizer applied %d times, want 1", opt.applied)
			}
		})
	}
}

func TestStepShortCaptionsAreNoOp(t *testing.T) {
	for _, targets := range [][][]int{{{1}, {1}}, {{}, {}}} {
		dec := &uniformDecoder{vocab: 8}
		opt := &countingOptimizer{Optimizer: optim.NewSGD(0.1)}
		s, err := NewStepper(&model.Model{Encoder: nullEncoder{}, Decoder: dec, Vocabulary: eightWords(t)}, opt, "")
		if err != nil {
			t.Fatal(err)
		}
		r, err := s.Step(dataset.Batch{Features: make([]*mat.Dense, 2), Targets: targets})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if r != (StepResult{}) || opt.applied != 0 || len(dec.inputs) != 0 {
			t.Fatalf("expected a zero step, got %+v (applied=%d, calls=%d)", r, opt.applied, len(dec.inputs))
		}
	}
}

func buildSmall(t *testing.T, seed int64) *model.Model {
	t.Helper()
	m, err := model.Build(model.Spec{FeatureDim: 3, EmbeddingDim: 4, Units: 4, RNN: "gru", Init: nn.InitGlorot, Seed: seed}, eightWords(t))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func realBatch() dataset.Batch {
	f := func(offset float64) *mat.Dense {
		return mat.NewDense(2, 3, []float64{offset, 0.2, 0.3, 0.4, offset, 0.6})
	}
	return dataset.Batch{
		Features: []*mat.Dense{f(0.1), f(0.9)},
		Targets:  [][]int{{1, 4, 5, 2}, {1, 6, 2, 0}},
	}
}

func TestStepIsDeterministic(t *testing.T) {
	var results []StepResult
	var states []map[string][][]float64
	for i := 0; i < 2; i++ {
		m := buildSmall(t, 11)
		s, err := NewStepper(m, optim.NewAdam(0.01), "")
		if err != nil {
			t.Fatal(err)
		}
		r, err := s.Step(realBatch())
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		results = append(results, r)
		states = append(states, nn.ExportParams(m.Parameters()))
	}
	if results[0] != results[1] {
		t.Fatalf("results differ: %+v vs %+v", results[0], results[1])
	}
	if !reflect.DeepEqual(states[0], states[1]) {
		t.Fatal("parameters differ after identical steps")
	}
}

func TestStepReducesLoss(t *testing.T) {
	m := buildSmall(t, 3)
	s, err := NewStepper(m, optim.NewAdam(0.05), "")
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Step(realBatch())
	if err != nil {
		t.Fatal(err)
	}
	var last StepResult
	for i := 0; i < 20; i++ {
		if last, err = s.Step(realBatch()); err != nil {
			t.Fatal(err)
		}
	}
	if last.TotalLoss >= first.TotalLoss {
		t.Fatalf("loss did not decrease: %v -> %v", first.TotalLoss, last.TotalLoss)
	}
	for _, p := range m.Parameters() {
		for _, v := range p.Values() {
			if v.Grad != 0 {
				t.Fatalf("%s gradient not cleared after step", p.Name)
			}
		}
	}
}

func TestStepShapeErrors(t *testing.T) {
	s, err := NewStepper(buildSmall(t, 1), optim.NewSGD(0.1), "")
	if err != nil {
		t.Fatal(err)
	}
	wrongDim := realBatch()
	wrongDim.Features[1] = mat.NewDense(2, 5, nil)
	if _, err := s.Step(wrongDim); !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("wrong feature dim: err = %v", err)
	}
	ragged := realBatch()
	ragged.Targets[1] = []int{1, 2}
	if _, err := s.Step(ragged); !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("ragged targets: err = %v", err)
	}

	failing := &uniformDecoder{vocab: 8, err: model.ErrShapeMismatch}
	s, err = NewStepper(&model.Model{Encoder: nullEncoder{}, Decoder: failing, Vocabulary: eightWords(t)}, optim.NewSGD(0.1), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Step(scenarioBatch()); !errors.Is(err, model.ErrShapeMismatch) {
		t.Fatalf("decoder error: err = %v", err)
	}
}

func TestNewStepperRejectsUnknownNormalization(t *testing.T) {
	if _, err := NewStepper(buildSmall(t, 1), optim.NewSGD(0.1), "tokens"); err == nil {
		t.Fatal("expected error")
	}
}

// Package train fits the captioning model by feeding ground-truth tokens
// back into the decoder at every timestep.
package train

import (
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/config"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/dataset"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/loss"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/model"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/optim"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/vocab"
)

// StepResult reports one optimizer step. Loss is the sum of the per-timestep
// masked losses and TotalLoss is Loss divided by the normalization length.
type StepResult struct {
	Loss      float64
	TotalLoss float64
	Timesteps int
}

// Stepper performs one forward/backward pass over ground-truth inputs and one
// optimizer update per batch.
type Stepper struct {
	Model         *model.Model
	Optimizer     optim.Optimizer
	Normalization string

	startID int
}

func NewStepper(m *model.Model, opt optim.Optimizer, normalization string) (*Stepper, error) {
	if m == nil || m.Encoder == nil || m.Decoder == nil || m.Vocabulary == nil {
		return nil, fmt.Errorf("stepper needs an encoder, a decoder and a vocabulary")
	}
	if opt == nil {
		return nil, fmt.Errorf("stepper needs an optimizer")
	}
	switch normalization {
	case "":
		normalization = config.NormalizeTimesteps
	case config.NormalizeTimesteps, config.NormalizeSequenceLength:
	default:
		return nil, fmt.Errorf("unknown loss normalization %q", normalization)
	}
	start, ok := m.Vocabulary.ID(vocab.Start)
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %s marker", vocab.Start)
	}
	return &Stepper{Model: m, Optimizer: opt, Normalization: normalization, startID: start}, nil
}

func (s *Stepper) Step(b dataset.Batch) (StepResult, error) {
	n := b.Size()
	if n == 0 {
		return StepResult{}, fmt.Errorf("empty batch")
	}
	if len(b.Features) != n {
		return StepResult{}, fmt.Errorf("%w: %d feature matrices for %d captions", model.ErrShapeMismatch, len(b.Features), n)
	}
	seqLen := b.SequenceLength()
	for i, t := range b.Targets {
		if len(t) != seqLen {
			return StepResult{}, fmt.Errorf("%w: caption %d has length %d, batch has %d", model.ErrShapeMismatch, i, len(t), seqLen)
		}
	}
	if seqLen <= 1 {
		return StepResult{}, nil
	}

	hidden := s.Model.Decoder.ResetState(n)
	input := make([]int, n)
	for i := range input {
		input[i] = s.startID
	}
	features, err := s.Model.Encoder.Encode(b.Features)
	if err != nil {
		return StepResult{}, fmt.Errorf("encode: %w", err)
	}

	terms := make([]*autograd.Value, 0, seqLen-1)
	for i := 1; i < seqLen; i++ {
		logits, next, _, err := s.Model.Decoder.Step(input, features, hidden)
		if err != nil {
			return StepResult{}, fmt.Errorf("decode timestep %d: %w", i, err)
		}
		labels := make([]int, n)
		for j, t := range b.Targets {
			labels[j] = t[i]
		}
		l, err := loss.Masked(labels, logits)
		if err != nil {
			return StepResult{}, fmt.Errorf("loss at timestep %d: %w", i, err)
		}
		terms = append(terms, l)
		hidden = next
		input = labels
	}
	total := autograd.Sum(terms...)

	params := s.Model.Parameters()
	autograd.Backward(total)
	if err := s.Optimizer.Apply(params); err != nil {
		return StepResult{}, fmt.Errorf("apply gradients: %w", err)
	}
	for _, p := range params {
		for _, v := range p.Values() {
			v.Grad = 0
		}
	}

	denom := seqLen - 1
	if s.Normalization == config.NormalizeSequenceLength {
		denom = seqLen
	}
	return StepResult{Loss: total.Data, TotalLoss: total.Data / float64(denom), Timesteps: seqLen - 1}, nil
}

// Package model defines the encoder/decoder contract used by the trainer and
// the attention captioning model that implements it.
package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/vocab"
)

// ErrShapeMismatch marks structural mismatches between encoder output,
// decoder expectations and batch contents. They are never retried.
var ErrShapeMismatch = errors.New("shape mismatch")

// Hidden holds one recurrent state per example of a batch.
type Hidden struct {
	States []nn.CellState
}

// BatchSize is the number of sequences carried.
func (h Hidden) BatchSize() int { return len(h.States) }

// Encoder projects per-image region features once per batch.
type Encoder interface {
	// Encode maps [batch] regions x featureDim matrices to
	// [batch][regions][embeddingDim] values.
	Encode(features []*mat.Dense) ([][][]*autograd.Value, error)
	Parameters() []nn.Param
	ExportState() map[string][][]float64
	ImportState(map[string][][]float64) error
}

// Decoder advances every sequence of a batch by one token.
type Decoder interface {
	// Step returns logits [batch][vocab], the new hidden state and the
	// attention weights [batch][regions].
	Step(input []int, features [][][]*autograd.Value, hidden Hidden) ([][]*autograd.Value, Hidden, [][]*autograd.Value, error)
	ResetState(batchSize int) Hidden
	Parameters() []nn.Param
	ExportState() map[string][][]float64
	ImportState(map[string][][]float64) error
}

// Model bundles the trainable parts with the vocabulary they were built for.
type Model struct {
	Encoder    Encoder
	Decoder    Decoder
	Vocabulary *vocab.Vocabulary
}

// Parameters returns encoder parameters followed by decoder parameters.
func (m *Model) Parameters() []nn.Param {
	params := append([]nn.Param(nil), m.Encoder.Parameters()...)
	return append(params, m.Decoder.Parameters()...)
}

// Spec describes the architecture to build.
type Spec struct {
	FeatureDim   int
	EmbeddingDim int
	Units        int
	RNN          string // gru or lstm
	Init         nn.Init
	Seed         int64
}

func (s Spec) validate() error {
	if s.FeatureDim < 1 || s.EmbeddingDim < 1 || s.Units < 1 {
		return fmt.Errorf("feature_dim, embedding_dim and units must be positive (got %d, %d, %d)", s.FeatureDim, s.EmbeddingDim, s.Units)
	}
	switch s.RNN {
	case "gru", "lstm":
	default:
		return fmt.Errorf("unknown rnn %q: use gru or lstm", s.RNN)
	}
	return nil
}

// Build creates a freshly initialized model for v.
func Build(s Spec, v *vocab.Vocabulary) (*Model, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if v == nil || v.Len() == 0 {
		return nil, fmt.Errorf("model needs a non-empty vocabulary")
	}
	in := nn.NewInitializer(s.Init, s.Seed)
	enc := NewCNNEncoder(in, s.FeatureDim, s.EmbeddingDim)
	dec := NewRNNDecoder(in, s.RNN, s.EmbeddingDim, s.Units, v.Len())
	return &Model{Encoder: enc, Decoder: dec, Vocabulary: v}, nil
}

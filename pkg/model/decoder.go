package model

import (
	"fmt"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
)

// RNNDecoder attends over the encoded regions, feeds [context; embedding]
// into a recurrent cell and projects the new hidden state to vocabulary
// logits through two dense layers.
type RNNDecoder struct {
	embedding    *nn.Embedding
	attention    *nn.Attention
	cell         nn.Cell
	fc1, fc2     *nn.Dense
	embeddingDim int
}

func NewRNNDecoder(in *nn.Initializer, rnn string, embeddingDim, units, vocabSize int) *RNNDecoder {
	var cell nn.Cell
	if rnn == "lstm" {
		cell = nn.NewLSTMCell(in, "decoder/lstm", 2*embeddingDim, units)
	} else {
		cell = nn.NewGRUCell(in, "decoder/gru", 2*embeddingDim, units)
	}
	return &RNNDecoder{
		embedding:    nn.NewEmbedding(in, "decoder/embedding", vocabSize, embeddingDim),
		attention:    nn.NewAttention(in, "decoder/attention", embeddingDim, cell.Units()),
		cell:         cell,
		fc1:          nn.NewDense(in, "decoder/fc1", cell.Units(), cell.Units()),
		fc2:          nn.NewDense(in, "decoder/fc2", cell.Units(), vocabSize),
		embeddingDim: embeddingDim,
	}
}

func (d *RNNDecoder) Parameters() []nn.Param {
	var out []nn.Param
	out = append(out, d.embedding.Params()...)
	out = append(out, d.attention.Params()...)
	out = append(out, d.cell.Params()...)
	out = append(out, d.fc1.Params()...)
	return append(out, d.fc2.Params()...)
}

func (d *RNNDecoder) ExportState() map[string][][]float64 { return nn.ExportParams(d.Parameters()) }

func (d *RNNDecoder) ImportState(src map[string][][]float64) error {
	return nn.ImportParams(d.Parameters(), src)
}

// ResetState returns zero memory for batchSize independent captions.
func (d *RNNDecoder) ResetState(batchSize int) Hidden {
	h := Hidden{States: make([]nn.CellState, batchSize)}
	for i := range h.States {
		h.States[i] = d.cell.Zero()
	}
	return h
}

func (d *RNNDecoder) Step(input []int, features [][][]*autograd.Value, hidden Hidden) ([][]*autograd.Value, Hidden, [][]*autograd.Value, error) {
	n := len(input)
	if len(features) != n || hidden.BatchSize() != n {
		return nil, Hidden{}, nil, fmt.Errorf("%w: batch of %d inputs, %d feature sets, %d hidden states",
			ErrShapeMismatch, n, len(features), hidden.BatchSize())
	}
	logits := make([][]*autograd.Value, n)
	attn := make([][]*autograd.Value, n)
	next := Hidden{States: make([]nn.CellState, n)}
	for b := 0; b < n; b++ {
		for r, f := range features[b] {
			if len(f) != d.embeddingDim {
				return nil, Hidden{}, nil, fmt.Errorf("%w: example %d region %d has width %d, decoder expects %d",
					ErrShapeMismatch, b, r, len(f), d.embeddingDim)
			}
		}
		context, alpha, err := d.attention.Forward(features[b], hidden.States[b].H)
		if err != nil {
			return nil, Hidden{}, nil, fmt.Errorf("%w: example %d: %v", ErrShapeMismatch, b, err)
		}
		emb, err := d.embedding.Lookup(input[b])
		if err != nil {
			return nil, Hidden{}, nil, fmt.Errorf("example %d: %w", b, err)
		}
		x := make([]*autograd.Value, 0, len(context)+len(emb))
		x = append(x, context...)
		x = append(x, emb...)

		state, err := d.cell.Step(x, hidden.States[b])
		if err != nil {
			return nil, Hidden{}, nil, fmt.Errorf("%w: example %d: %v", ErrShapeMismatch, b, err)
		}
		out, err := d.fc1.Forward(state.H)
		if err != nil {
			return nil, Hidden{}, nil, err
		}
		if logits[b], err = d.fc2.Forward(out); err != nil {
			return nil, Hidden{}, nil, err
		}
		next.States[b] = state
		attn[b] = alpha
	}
	return logits, next, attn, nil
}

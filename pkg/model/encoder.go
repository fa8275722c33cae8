package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
)

// CNNEncoder is a single fully connected layer with ReLU applied to every
// region of pre-extracted CNN features.
type CNNEncoder struct {
	fc           *nn.Dense
	featureDim   int
	embeddingDim int
}

func NewCNNEncoder(in *nn.Initializer, featureDim, embeddingDim int) *CNNEncoder {
	return &CNNEncoder{
		fc:           nn.NewDense(in, "encoder/fc", featureDim, embeddingDim),
		featureDim:   featureDim,
		embeddingDim: embeddingDim,
	}
}

func (e *CNNEncoder) Parameters() []nn.Param { return e.fc.Params() }

func (e *CNNEncoder) ExportState() map[string][][]float64 { return nn.ExportParams(e.Parameters()) }

func (e *CNNEncoder) ImportState(src map[string][][]float64) error {
	return nn.ImportParams(e.Parameters(), src)
}

func (e *CNNEncoder) Encode(features []*mat.Dense) ([][][]*autograd.Value, error) {
	out := make([][][]*autograd.Value, len(features))
	row := make([]float64, e.featureDim)
	for b, m := range features {
		if m == nil {
			return nil, fmt.Errorf("%w: image %d has no features", ErrShapeMismatch, b)
		}
		regions, cols := m.Dims()
		if cols != e.featureDim {
			return nil, fmt.Errorf("%w: image %d has feature dim %d, encoder expects %d", ErrShapeMismatch, b, cols, e.featureDim)
		}
		out[b] = make([][]*autograd.Value, regions)
		for r := 0; r < regions; r++ {
			mat.Row(row, r, m)
			y, err := e.fc.Forward(autograd.Constants(row))
			if err != nil {
				return nil, err
			}
			out[b][r] = nn.ReLU(y)
		}
	}
	return out, nil
}

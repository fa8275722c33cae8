// Package nn holds the trainable building blocks of the captioning model.
package nn

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

// Param is a named trainable matrix. Vectors (biases) are stored as a single row.
type Param struct {
	Name string
	W    [][]*autograd.Value
}

// Shape returns rows, cols.
func (p Param) Shape() (int, int) {
	if len(p.W) == 0 {
		return 0, 0
	}
	return len(p.W), len(p.W[0])
}

// Values flattens the matrix in row-major order.
func (p Param) Values() []*autograd.Value {
	rows, cols := p.Shape()
	out := make([]*autograd.Value, 0, rows*cols)
	for _, row := range p.W {
		out = append(out, row...)
	}
	return out
}

// Init selects how weights are drawn.
type Init string

const (
	InitGlorot Init = "glorot"
	InitNormal Init = "normal"
)

// Initializer draws weights from a seeded source so that two models built
// with the same seed are identical.
type Initializer struct {
	Method Init
	Rng    *rand.Rand
}

func NewInitializer(method Init, seed int64) *Initializer {
	return &Initializer{Method: method, Rng: rand.New(rand.NewSource(seed))}
}

func (in *Initializer) matrix(name string, nout, nin int) Param {
	limit := math.Sqrt(6 / float64(nin+nout))
	m := make([][]*autograd.Value, nout)
	for o := 0; o < nout; o++ {
		row := make([]*autograd.Value, nin)
		for i := 0; i < nin; i++ {
			switch in.Method {
			case InitNormal:
				row[i] = autograd.V(in.Rng.NormFloat64() * 0.08)
			default:
				row[i] = autograd.V((in.Rng.Float64()*2 - 1) * limit)
			}
		}
		m[o] = row
	}
	return Param{Name: name, W: m}
}

func zerosParam(name string, n int) Param {
	return Param{Name: name, W: [][]*autograd.Value{autograd.Zeros(n)}}
}

// ExportParams copies the current weights into a plain, serializable map.
func ExportParams(params []Param) map[string][][]float64 {
	out := make(map[string][][]float64, len(params))
	for _, p := range params {
		rows := make([][]float64, len(p.W))
		for i, row := range p.W {
			rows[i] = autograd.Data(row)
		}
		out[p.Name] = rows
	}
	return out
}

// ImportParams overwrites weights in place. Every param must be present with
// a matching shape and no unknown names are accepted; nothing is written
// unless the whole map validates.
func ImportParams(params []Param, src map[string][][]float64) error {
	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
		mat, ok := src[p.Name]
		if !ok {
			return fmt.Errorf("missing parameter %q", p.Name)
		}
		rows, cols := p.Shape()
		if len(mat) != rows {
			return fmt.Errorf("parameter %q: got %d rows, want %d", p.Name, len(mat), rows)
		}
		for i, row := range mat {
			if len(row) != cols {
				return fmt.Errorf("parameter %q row %d: got %d cols, want %d", p.Name, i, len(row), cols)
			}
		}
	}
	var extra []string
	for name := range src {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("unexpected parameters %v", extra)
	}
	for _, p := range params {
		for i, row := range src[p.Name] {
			for j, v := range row {
				p.W[i][j].Data = v
				p.W[i][j].Grad = 0
			}
		}
	}
	return nil
}

// Count returns the number of scalar weights.
func Count(params []Param) int {
	n := 0
	for _, p := range params {
		rows, cols := p.Shape()
		n += rows * cols
	}
	return n
}

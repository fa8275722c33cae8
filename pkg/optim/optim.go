// Package optim applies accumulated gradients to model parameters and keeps
// the optimizer slots that must survive a checkpoint restore.
package optim

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
)

// Optimizer updates params from their Grad fields. Apply does not zero
// gradients; the caller owns the step boundary.
type Optimizer interface {
	Name() string
	Apply(params []nn.Param) error
	Iterations() int
	ExportState() map[string][][]float64
	ImportState(map[string][][]float64) error
}

const iterationsKey = "iterations"

// New returns the named optimizer. lr <= 0 selects its default rate.
func New(name string, lr float64) (Optimizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "adam":
		return NewAdam(orDefault(lr, 0.001)), nil
	case "rmsprop":
		return NewRMSProp(orDefault(lr, 0.001)), nil
	case "momentum":
		return NewMomentum(orDefault(lr, 0.01)), nil
	case "sgd":
		return NewSGD(orDefault(lr, 0.01)), nil
	}
	return nil, fmt.Errorf("unknown optimizer %q: use adam, rmsprop, momentum or sgd", name)
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

// slots holds per-parameter moment buffers keyed "<kind>/<param name>".
type slots struct {
	kinds      []string
	iterations int
	buf        map[string][][]float64
}

func newSlots(kinds ...string) slots {
	return slots{kinds: kinds, buf: map[string][][]float64{}}
}

func (s *slots) Iterations() int { return s.iterations }

// get returns the buffer for p, creating zeros on first use.
func (s *slots) get(kind string, p nn.Param) ([][]float64, error) {
	key := kind + "/" + p.Name
	rows, cols := p.Shape()
	b, ok := s.buf[key]
	if !ok {
		b = make([][]float64, rows)
		for i := range b {
			b[i] = make([]float64, cols)
		}
		s.buf[key] = b
		return b, nil
	}
	if len(b) != rows {
		return nil, fmt.Errorf("slot %s has %d rows, parameter is %dx%d", key, len(b), rows, cols)
	}
	for i, row := range b {
		if len(row) != cols {
			return nil, fmt.Errorf("slot %s row %d has %d columns, parameter is %dx%d", key, i, len(row), rows, cols)
		}
	}
	return b, nil
}

func (s *slots) ExportState() map[string][][]float64 {
	out := make(map[string][][]float64, len(s.buf)+1)
	out[iterationsKey] = [][]float64{{float64(s.iterations)}}
	for k, b := range s.buf {
		out[k] = copyMatrix(b)
	}
	return out
}

// ImportState replaces all slots. The iteration count is required; slots for
// parameters that have not been updated yet may be absent.
func (s *slots) ImportState(src map[string][][]float64) error {
	it, ok := src[iterationsKey]
	if !ok || len(it) != 1 || len(it[0]) != 1 {
		return fmt.Errorf("optimizer state has no %s entry", iterationsKey)
	}
	if it[0][0] < 0 {
		return fmt.Errorf("optimizer state has negative iteration count %v", it[0][0])
	}
	buf := make(map[string][][]float64, len(src))
	var unknown []string
	for k, b := range src {
		if k == iterationsKey {
			continue
		}
		if !s.knows(k) {
			unknown = append(unknown, k)
			continue
		}
		if !rectangular(b) {
			return fmt.Errorf("optimizer slot %s is empty or ragged", k)
		}
		buf[k] = copyMatrix(b)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("optimizer state has unexpected slots %v", unknown)
	}
	s.iterations = int(it[0][0])
	s.buf = buf
	return nil
}

func (s *slots) knows(key string) bool {
	kind, _, ok := strings.Cut(key, "/")
	if !ok {
		return false
	}
	for _, k := range s.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// rectangular reports whether b has at least one row and every row has the
// same non-zero width.
func rectangular(b [][]float64) bool {
	if len(b) == 0 || len(b[0]) == 0 {
		return false
	}
	for _, row := range b[1:] {
		if len(row) != len(b[0]) {
			return false
		}
	}
	return true
}

func copyMatrix(b [][]float64) [][]float64 {
	out := make([][]float64, len(b))
	for i, row := range b {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

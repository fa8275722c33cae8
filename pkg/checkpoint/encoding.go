package checkpoint

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// State is the saved form of one component. Each matrix is stored as gonum's
// binary Dense encoding, so NaN and infinite weights survive a round trip.
type State map[string][][]float64

type encodedMatrix struct {
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
	Data []byte `json:"data,omitempty"`
}

func (s State) MarshalJSON() ([]byte, error) {
	out := make(map[string]encodedMatrix, len(s))
	for k, rows := range s {
		em, err := encodeMatrix(rows)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = em
	}
	return json.Marshal(out)
}

func (s *State) UnmarshalJSON(b []byte) error {
	var in map[string]encodedMatrix
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in == nil {
		*s = nil
		return nil
	}
	st := make(State, len(in))
	for k, em := range in {
		m, err := decodeMatrix(em)
		if err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		st[k] = m
	}
	*s = st
	return nil
}

func encodeMatrix(rows [][]float64) (encodedMatrix, error) {
	r := len(rows)
	if r == 0 {
		return encodedMatrix{}, nil
	}
	c := len(rows[0])
	for i, row := range rows {
		if len(row) != c {
			return encodedMatrix{}, fmt.Errorf("row %d has %d columns, want %d", i, len(row), c)
		}
	}
	if c == 0 {
		return encodedMatrix{Rows: r}, nil
	}
	flat := make([]float64, 0, r*c)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	data, err := mat.NewDense(r, c, flat).MarshalBinary()
	if err != nil {
		return encodedMatrix{}, err
	}
	return encodedMatrix{Rows: r, Cols: c, Data: data}, nil
}

func decodeMatrix(em encodedMatrix) ([][]float64, error) {
	if em.Rows < 0 || em.Cols < 0 {
		return nil, fmt.Errorf("negative shape %dx%d", em.Rows, em.Cols)
	}
	if em.Rows == 0 || em.Cols == 0 {
		if len(em.Data) != 0 {
			return nil, fmt.Errorf("shape %dx%d carries data", em.Rows, em.Cols)
		}
		out := make([][]float64, em.Rows)
		for i := range out {
			out[i] = []float64{}
		}
		return out, nil
	}
	var d mat.Dense
	if err := d.UnmarshalBinary(em.Data); err != nil {
		return nil, err
	}
	if r, c := d.Dims(); r != em.Rows || c != em.Cols {
		return nil, fmt.Errorf("data is %dx%d, header says %dx%d", r, c, em.Rows, em.Cols)
	}
	out := make([][]float64, em.Rows)
	for i := range out {
		out[i] = append([]float64(nil), d.RawRowView(i)...)
	}
	return out, nil
}

// Series is a loss history. Non-finite values are written as the strings
// "NaN", "+Inf" and "-Inf".
type Series []float64

func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]any, len(s))
	for i, v := range s {
		switch {
		case math.IsNaN(v):
			out[i] = "NaN"
		case math.IsInf(v, 1):
			out[i] = "+Inf"
		case math.IsInf(v, -1):
			out[i] = "-Inf"
		default:
			out[i] = v
		}
	}
	return json.Marshal(out)
}

func (s *Series) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Series, len(raw))
	for i, r := range raw {
		var str string
		if err := json.Unmarshal(r, &str); err == nil {
			v, err := strconv.ParseFloat(str, 64)
			if err != nil || !(math.IsNaN(v) || math.IsInf(v, 0)) {
				return fmt.Errorf("loss %d: unexpected string %q", i, str)
			}
			out[i] = v
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return fmt.Errorf("loss %d: %w", i, err)
		}
	}
	*s = out
	return nil
}

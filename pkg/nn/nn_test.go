package nn

import (
	"math"
	"strings"
	"testing"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/autograd"
)

func TestDenseForward(t *testing.T) {
	d := NewDense(NewInitializer(InitGlorot, 1), "fc", 2, 1)
	d.Weight.W[0][0].Data = 2
	d.Weight.W[0][1].Data = -1
	d.Bias.W[0][0].Data = 0.5

	out, err := d.Forward(autograd.Constants([]float64{3, 4}))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got := out[0].Data; math.Abs(got-2.5) > 1e-12 {
		t.Fatalf("Forward = %f, want 2.5", got)
	}

	if _, err := d.Forward(autograd.Constants([]float64{1})); err == nil {
		t.Fatal("expected width mismatch error")
	}
}

func TestEmbeddingLookupBounds(t *testing.T) {
	e := NewEmbedding(NewInitializer(InitNormal, 1), "emb", 3, 2)
	if _, err := e.Lookup(2); err != nil {
		t.Fatalf("Lookup(2): %v", err)
	}
	for _, id := range []int{-1, 3} {
		if _, err := e.Lookup(id); err == nil {
			t.Errorf("Lookup(%d) succeeded, want error", id)
		}
	}
}

func TestInitializerIsSeeded(t *testing.T) {
	a := NewDense(NewInitializer(InitGlorot, 7), "fc", 4, 3)
	b := NewDense(NewInitializer(InitGlorot, 7), "fc", 4, 3)
	ea, eb := ExportParams(a.Params()), ExportParams(b.Params())
	for name, rows := range ea {
		for i := range rows {
			for j := range rows[i] {
				if rows[i][j] != eb[name][i][j] {
					t.Fatalf("%s[%d][%d] differs between equal seeds", name, i, j)
				}
			}
		}
	}
}

func TestImportParamsValidates(t *testing.T) {
	d := NewDense(NewInitializer(InitGlorot, 1), "fc", 2, 2)
	good := ExportParams(d.Params())

	tests := []struct {
		name    string
		mutate  func(map[string][][]float64)
		wantErr string
	}{
		{"round trip", func(map[string][][]float64) {}, ""},
		{"missing", func(m map[string][][]float64) { delete(m, "fc/bias") }, "missing parameter"},
		{"bad rows", func(m map[string][][]float64) { m["fc/kernel"] = m["fc/kernel"][:1] }, "rows"},
		{"bad cols", func(m map[string][][]float64) { m["fc/bias"] = [][]float64{{1}} }, "cols"},
		{"extra", func(m map[string][][]float64) { m["fc/other"] = [][]float64{{1}} }, "unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make(map[string][][]float64, len(good))
			for k, v := range good {
				src[k] = v
			}
			tt.mutate(src)
			err := ImportParams(d.Params(), src)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ImportParams: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ImportParams error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestRecurrentCellsKeepWidth(t *testing.T) {
	in := NewInitializer(InitGlorot, 3)
	cells := map[string]Cell{
		"gru":  NewGRUCell(in, "gru", 5, 4),
		"lstm": NewLSTMCell(in, "lstm", 5, 4),
	}
	for name, c := range cells {
		t.Run(name, func(t *testing.T) {
			s, err := c.Step(autograd.Constants([]float64{1, 0, -1, 0.5, 2}), c.Zero())
			if err != nil {
				t.Fatalf("Step: %v", err)
			}
			if len(s.H) != 4 || c.Units() != 4 {
				t.Fatalf("hidden width = %d, Units() = %d, want 4", len(s.H), c.Units())
			}
			if _, err := c.Step(autograd.Constants([]float64{1}), c.Zero()); err == nil {
				t.Fatal("expected input width error")
			}
		})
	}
}

func TestGRURecurrentErrorsPropagate(t *testing.T) {
	in := NewInitializer(InitGlorot, 5)
	for _, gate := range []string{"update", "reset", "candidate"} {
		t.Run(gate, func(t *testing.T) {
			g := NewGRUCell(in, "gru", 2, 3)
			bad := NewDense(in, "gru/"+gate+"/recurrent", 2, 3)
			switch gate {
			case "update":
				g.uz = bad
			case "reset":
				g.ur = bad
			default:
				g.un = bad
			}
			if _, err := g.Step(autograd.Constants([]float64{1, -1}), g.Zero()); err == nil {
				t.Fatal("expected recurrent width error")
			}
		})
	}
}

func TestAttentionWeightsNormalize(t *testing.T) {
	a := NewAttention(NewInitializer(InitGlorot, 5), "attn", 3, 4)
	features := [][]*autograd.Value{
		autograd.Constants([]float64{1, 0, 0}),
		autograd.Constants([]float64{0, 1, 0}),
	}
	ctx, alpha, err := a.Forward(features, autograd.Zeros(4))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(ctx) != 3 || len(alpha) != 2 {
		t.Fatalf("shapes = %d/%d, want 3/2", len(ctx), len(alpha))
	}
	if total := alpha[0].Data + alpha[1].Data; math.Abs(total-1) > 1e-12 {
		t.Fatalf("attention weights sum to %f", total)
	}
}

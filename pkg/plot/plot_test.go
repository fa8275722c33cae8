package plot

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLineChartShape(t *testing.T) {
	lines := LineChart([]float64{3, 2.5, 1, 0.5}, 10, 4)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if !strings.Contains(lines[0], "3.000") || !strings.Contains(lines[3], "0.500") {
		t.Fatalf("missing axis labels:\n%s", strings.Join(lines, "\n"))
	}
	if !strings.Contains(lines[0], "●") || !strings.Contains(lines[3], "●") {
		t.Fatalf("extremes not plotted:\n%s", strings.Join(lines, "\n"))
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		width  int
		want   string
	}{
		{"empty", nil, 5, "....."},
		{"flat", []float64{1, 1}, 4, "▇▇▇▇"},
		{"rising padded", []float64{0, 1}, 4, "▁█▁▁"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sparkline(tt.series, tt.width); got != tt.want {
				t.Fatalf("Sparkline() = %q, want %q", got, tt.want)
			}
		})
	}
	long := make([]float64, 100)
	for i := range long {
		long[i] = float64(i)
	}
	if n := utf8.RuneCountInString(Sparkline(long, 10)); n != 10 {
		t.Fatalf("resampled sparkline has %d runes", n)
	}
}

func TestSummarize(t *testing.T) {
	s, ok := Summarize([]float64{4, 2, 3})
	if !ok {
		t.Fatal("expected stats")
	}
	if s.Min != 2 || s.Max != 4 || s.Mean != 3 || s.Latest != 3 || s.Delta != 1 || s.N != 3 {
		t.Fatalf("Summarize() = %+v", s)
	}
	if _, ok := Summarize(nil); ok {
		t.Fatal("expected no stats for empty series")
	}
}

func TestPlotWritesHistory(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	losses := []float64{1.5, 1.25, 0.875}
	if err := (Plotter{Dir: dir, Out: &out}).Plot(losses); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	got, err := ReadLosses(dir)
	if err != nil {
		t.Fatalf("ReadLosses: %v", err)
	}
	if !reflect.DeepEqual(got, losses) {
		t.Fatalf("losses = %v, want %v", got, losses)
	}
	if !strings.Contains(out.String(), "Loss per epoch") {
		t.Fatalf("chart not echoed: %q", out.String())
	}
}

func TestChartsSkipNonFinite(t *testing.T) {
	series := []float64{2, math.NaN(), 1, math.Inf(1), 0.5, math.Inf(-1)}
	if got := Sparkline(series, 3); len([]rune(got)) != 3 {
		t.Fatalf("Sparkline = %q", got)
	}
	lines := LineChart(series, 8, 3)
	if len(lines) != 3 || !strings.Contains(lines[0], "2.000") || !strings.Contains(lines[2], "0.500") {
		t.Fatalf("LineChart = %q", lines)
	}
	if got := Sparkline([]float64{math.NaN()}, 4); got != "...." {
		t.Fatalf("all-NaN Sparkline = %q", got)
	}

	dir := t.TempDir()
	if err := (Plotter{Dir: dir}).Plot(series); err != nil {
		t.Fatalf("Plot: %v", err)
	}
	got, err := ReadLosses(dir)
	if err != nil {
		t.Fatalf("ReadLosses: %v", err)
	}
	if len(got) != len(series) || !math.IsNaN(got[1]) || !math.IsInf(got[3], 1) || !math.IsInf(got[5], -1) || got[4] != 0.5 {
		t.Fatalf("losses = %v", got)
	}
}

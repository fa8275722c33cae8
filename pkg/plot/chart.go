// Package plot renders loss curves as terminal charts.
package plot

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// resample picks width evenly spaced points when series is longer than width.
func resample(series []float64, width int) []float64 {
	if len(series) <= width {
		return append([]float64(nil), series...)
	}
	out := make([]float64, 0, width)
	step := float64(len(series)-1) / float64(width-1)
	for i := 0; i < width; i++ {
		idx := int(math.Round(float64(i) * step))
		if idx >= len(series) {
			idx = len(series) - 1
		}
		out = append(out, series[idx])
	}
	return out
}

// finite drops NaN and infinite points, which have no place on the axis.
func finite(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// LineChart draws series into height rows of width cells, labelling the
// top and bottom rows with the max and min values.
func LineChart(series []float64, width, height int) []string {
	if width < 8 {
		width = 8
	}
	if height < 3 {
		height = 3
	}
	series = finite(series)
	if len(series) == 0 {
		return []string{strings.Repeat(".", width)}
	}
	sampled := resample(series, width)
	minV, maxV := floats.Min(sampled), floats.Max(sampled)

	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = []rune(strings.Repeat(" ", width))
	}
	center := height / 2
	lastRow := center
	for x, v := range sampled {
		row := center
		if maxV > minV {
			ratio := (v - minV) / (maxV - minV)
			row = height - 1 - int(math.Round(ratio*float64(height-1)))
		}
		grid[row][x] = '●'
		if x > 0 {
			lo, hi := lastRow, row
			if lo > hi {
				lo, hi = hi, lo
			}
			for rr := lo + 1; rr < hi; rr++ {
				if grid[rr][x-1] == ' ' {
					grid[rr][x-1] = '│'
				}
			}
		}
		lastRow = row
	}
	lines := make([]string, 0, height)
	for r := 0; r < height; r++ {
		label := "         │"
		if r == 0 {
			label = fmt.Sprintf("%8.3f ┤", maxV)
		} else if r == height-1 {
			label = fmt.Sprintf("%8.3f ┤", minV)
		}
		lines = append(lines, label+string(grid[r]))
	}
	return lines
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

// Sparkline compresses series into a single row of block characters.
func Sparkline(series []float64, width int) string {
	if width < 4 {
		width = 4
	}
	series = finite(series)
	if len(series) == 0 {
		return strings.Repeat(".", width)
	}
	sampled := resample(series, width)
	minV, maxV := floats.Min(sampled), floats.Max(sampled)
	if maxV == minV {
		return strings.Repeat(string(sparkChars[len(sparkChars)-2]), width)
	}
	var b strings.Builder
	for _, v := range sampled {
		pos := int(math.Round((v - minV) / (maxV - minV) * float64(len(sparkChars)-1)))
		b.WriteRune(sparkChars[pos])
	}
	for i := len(sampled); i < width; i++ {
		b.WriteRune(sparkChars[0])
	}
	return b.String()
}

type Stats struct {
	Latest, Min, Max, Mean, Delta float64
	N                             int
}

func Summarize(series []float64) (Stats, bool) {
	if len(series) == 0 {
		return Stats{}, false
	}
	s := Stats{
		Latest: series[len(series)-1],
		Min:    floats.Min(series),
		Max:    floats.Max(series),
		Mean:   floats.Sum(series) / float64(len(series)),
		N:      len(series),
	}
	if len(series) >= 2 {
		s.Delta = series[len(series)-1] - series[len(series)-2]
	}
	return s, true
}

func (s Stats) String() string {
	return fmt.Sprintf("latest %.4f | delta %+0.4f | min %.4f | max %.4f | mean %.4f | n=%d",
		s.Latest, s.Delta, s.Min, s.Max, s.Mean, s.N)
}

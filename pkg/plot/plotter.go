package plot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
)

const (
	ChartFile  = "loss.txt"
	LossesFile = "losses.json"
)

// Plotter writes the per-epoch loss history of a finished run into Dir and
// echoes a styled chart to Out when it is set.
type Plotter struct {
	Dir    string
	Width  int
	Height int
	Out    io.Writer
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7DD3FC"))
	lineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F472B6"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#94A3B8"))
)

// Render returns the unstyled chart with a title and summary line.
func (p Plotter) Render(losses []float64) string {
	w, h := p.Width, p.Height
	if w == 0 {
		w = 60
	}
	if h == 0 {
		h = 10
	}
	lines := []string{"Loss per epoch"}
	lines = append(lines, LineChart(losses, w, h)...)
	if s, ok := Summarize(losses); ok {
		lines = append(lines, s.String())
	}
	return strings.Join(lines, "\n")
}

func (p Plotter) Plot(losses []float64) error {
	if p.Dir != "" {
		if err := os.MkdirAll(p.Dir, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(p.Dir, ChartFile), []byte(p.Render(losses)+"\n"), 0o644); err != nil {
			return err
		}
		b, err := json.MarshalIndent(map[string]checkpoint.Series{"loss": losses}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(p.Dir, LossesFile), b, 0o644); err != nil {
			return err
		}
		klog.Infof("[plot] loss chart saved: %s", filepath.Join(p.Dir, ChartFile))
	}
	if p.Out != nil {
		lines := strings.Split(p.Render(losses), "\n")
		fmt.Fprintln(p.Out, titleStyle.Render(lines[0]))
		for _, l := range lines[1 : len(lines)-1] {
			fmt.Fprintln(p.Out, lineStyle.Render(l))
		}
		if len(losses) > 0 {
			fmt.Fprintln(p.Out, dimStyle.Render(lines[len(lines)-1]))
		} else {
			fmt.Fprintln(p.Out, lineStyle.Render(lines[len(lines)-1]))
		}
	}
	return nil
}

// ReadLosses loads the history written by Plot.
func ReadLosses(dir string) ([]float64, error) {
	b, err := os.ReadFile(filepath.Join(dir, LossesFile))
	if err != nil {
		return nil, err
	}
	var doc map[string]checkpoint.Series
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", LossesFile, err)
	}
	return doc["loss"], nil
}

package main

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/lipgloss"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/plot"
)

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	header := m.renderTabs()
	contentW := max(70, m.width-4)
	footer := m.viewFooter(contentW)
	contentH := max(8, m.height-lipgloss.Height(header)-lipgloss.Height(footer)-2)

	var content string
	switch m.tabIdx {
	case 0:
		if contentW < 120 {
			content = lipgloss.JoinVertical(lipgloss.Left, m.viewTrainTab(contentW), m.viewFieldDetail(contentW))
		} else {
			leftW := max(38, int(float64(contentW)*0.60))
			rightW := max(30, contentW-leftW-2)
			content = lipgloss.JoinHorizontal(lipgloss.Top, m.viewTrainTab(leftW), "  ", m.viewFieldDetail(rightW))
		}
	case 1:
		content = m.viewMonitorTab(contentW)
	case 2:
		content = m.viewLogsTab(contentW, contentH)
	default:
		content = m.viewCheckpointsTab(contentW)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, "", fitHeight(content, contentH), footer)
}

func (m model) renderTabs() string {
	parts := make([]string, len(m.tabs))
	for i, t := range m.tabs {
		if i == m.tabIdx {
			parts[i] = m.styles.tabActive.Render(t)
		} else {
			parts[i] = m.styles.tab.Render(t)
		}
	}
	return strings.Join(parts, " ") + "  " + m.statusBadge()
}

func (m model) statusBadge() string {
	switch m.status {
	case "running":
		return m.spin.View() + " running"
	case "completed":
		return m.styles.ok.Render("completed")
	case "error":
		return m.styles.warn.Render("error")
	}
	return m.styles.dim.Render(m.status)
}

func (m model) panel(title string, lines []string, w int) string {
	return m.styles.panel.Width(panelInnerWidth(w)).Render(m.styles.panelTitle.Render(title) + "\n" + strings.Join(lines, "\n"))
}

func panelInnerWidth(total int) int {
	// Rounded border and horizontal padding take two columns each.
	return max(8, total-4)
}

func (m model) viewTrainTab(w int) string {
	lines := make([]string, 0, len(m.fields))
	labelW := 0
	for _, f := range m.fields {
		labelW = max(labelW, len(f.Label))
	}
	for i, f := range m.fields {
		value := f.Value
		if m.editing && i == m.fieldIdx {
			value = m.editor.View()
		}
		row := fmt.Sprintf("%-*s  %s", labelW, f.Label, value)
		if i == m.fieldIdx {
			lines = append(lines, m.styles.selected.Render("> "+row))
		} else {
			lines = append(lines, "  "+row)
		}
	}
	title := "Configuration"
	if m.running {
		title += " (locked while training)"
	}
	return m.panel(title, lines, w)
}

func (m model) viewFieldDetail(w int) string {
	f := m.fields[m.fieldIdx]
	inner := max(20, panelInnerWidth(w)-2)
	lines := []string{m.styles.selected.Render(f.Key)}
	lines = append(lines, wrapText(f.Desc, inner)...)
	if len(f.Choices) > 0 {
		lines = append(lines, m.styles.dim.Render("choices: "+strings.Join(f.Choices, ", ")))
	}
	lines = append(lines, "", m.styles.panelTitle.Render("Presets"))
	for i, p := range m.presets {
		lines = append(lines, fmt.Sprintf("[%d] %s: %s", i+1, p.name, p.description))
	}
	if _, err := validateFields(m.fields); err != nil {
		lines = append(lines, "")
		lines = append(lines, wrapText(m.styles.warn.Render("invalid: ")+err.Error(), inner)...)
	}
	if m.lastError != "" {
		lines = append(lines, "", m.styles.warn.Render("last error"))
		lines = append(lines, wrapText(m.lastError, inner)...)
	}
	return m.panel("Details", lines, w)
}

func (m model) progressBar(w int) string {
	w = max(10, w)
	done := int(math.Round(m.prog.ratio() * float64(w)))
	done = min(max(done, 0), w)
	return strings.Repeat("#", done) + strings.Repeat("-", w-done)
}

func (m model) viewMonitorTab(w int) string {
	p := m.prog
	summary := []string{
		fmt.Sprintf("epoch %d/%d  batch %d/%d", p.epoch, p.epochs, p.batch, p.batches),
		m.progressBar(panelInnerWidth(w) - 2),
		fmt.Sprintf("batch loss %.4f  epoch loss %.6f  elapsed %s", p.batchLoss, p.epochLoss, p.elapsed.Round(time.Second)),
	}
	if p.resumed {
		summary = append(summary, m.styles.ok.Render(fmt.Sprintf("resumed from epoch %d", p.startEpoch)))
	}
	if p.saved != "" {
		summary = append(summary, "last checkpoint: "+p.saved)
	}
	if p.done {
		summary = append(summary, m.styles.ok.Render("training finished"))
	}
	series := m.animSeries
	if len(series) == 0 {
		series = m.batchSeries
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.panel("Run", summary, w),
		m.graphPanel("Batch loss (per token)", series, w, m.styles.graphBatch),
		m.graphPanel("Epoch loss", m.epochSeries, w, m.styles.graphEpoch),
	)
}

func (m model) graphPanel(title string, series []float64, w int, st lipgloss.Style) string {
	height := 5
	if w < 48 {
		height = 4
	}
	graphLines := plot.LineChart(series, max(16, w-16), height)
	for i := range graphLines {
		graphLines[i] = st.Render(graphLines[i])
	}
	graph := strings.Join(graphLines, "\n")
	stats, ok := plot.Summarize(series)
	if !ok {
		return m.panel(title, []string{graph, m.styles.dim.Render("waiting for data...")}, w)
	}
	sub := stats.String() + "  " + plot.Sparkline(series, min(24, len(series)))
	return m.panel(title, []string{graph, m.styles.dim.Render(sub)}, w)
}

func (m model) viewLogsTab(w, h int) string {
	lv := m.logView
	innerW := max(20, panelInnerWidth(w)-2)
	lv.Width = innerW
	lv.Height = max(4, h-5)

	wrapped := make([]string, 0, len(m.logs)*2)
	for _, ln := range m.logs {
		wrapped = append(wrapped, wrapText(ln, innerW)...)
	}
	lv.SetContent(strings.Join(wrapped, "\n"))
	if m.running {
		lv.GotoBottom()
	}
	return m.styles.panel.Width(panelInnerWidth(w)).Render(m.styles.panelTitle.Render("Live Logs") + "\n" + lv.View())
}

func (m model) viewCheckpointsTab(w int) string {
	lines := []string{"Directory: " + m.checkpointsDir()}
	switch {
	case m.ckptErr != "":
		lines = append(lines, m.styles.warn.Render(m.ckptErr))
	case len(m.checkpoints) == 0:
		lines = append(lines, m.styles.dim.Render("(none yet)"))
	default:
		for _, c := range m.checkpoints {
			row := fmt.Sprintf("%-16s epochs completed: %d", c.name, c.epoch)
			if c.latest {
				row = m.styles.ok.Render(row + "  latest")
			}
			lines = append(lines, row)
		}
	}
	return m.panel("Checkpoints", lines, w)
}

func (m model) viewFooter(w int) string {
	h := m.help
	h.Width = max(20, w-8)
	return m.styles.panel.Width(panelInnerWidth(w)).Render(h.View(m.keys))
}

func fitHeight(s string, h int) string {
	if h <= 0 {
		return s
	}
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if len(lines) > h {
		lines = lines[:h]
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// wrapText breaks s into lines of at most width runes, splitting long words.
func wrapText(s string, width int) []string {
	if width <= 1 {
		return []string{s}
	}
	paras := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(paras)*2)
	for _, p := range paras {
		words := strings.FieldsFunc(p, unicode.IsSpace)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		cur := ""
		for _, w := range words {
			rs := []rune(w)
			for len(rs) > width {
				if cur != "" {
					out = append(out, cur)
					cur = ""
				}
				out = append(out, string(rs[:width]))
				rs = rs[width:]
			}
			w = string(rs)
			switch {
			case w == "":
			case cur == "":
				cur = w
			case len([]rune(cur))+1+len(rs) <= width:
				cur += " " + w
			default:
				out = append(out, cur)
				cur = w
			}
		}
		if cur != "" {
			out = append(out, cur)
		}
	}
	return out
}

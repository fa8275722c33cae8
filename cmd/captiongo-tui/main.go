// Command captiongo-tui configures, launches and monitors caption training
// runs from the terminal.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/plot"
)

const seriesCap = 5000

type styles struct {
	tab        lipgloss.Style
	tabActive  lipgloss.Style
	panel      lipgloss.Style
	panelTitle lipgloss.Style
	selected   lipgloss.Style
	dim        lipgloss.Style
	ok         lipgloss.Style
	warn       lipgloss.Style
	graphBatch lipgloss.Style
	graphEpoch lipgloss.Style
}

type keyMap struct {
	Start    key.Binding
	Stop     key.Binding
	Quit     key.Binding
	TabNext  key.Binding
	TabPrev  key.Binding
	Up       key.Binding
	Down     key.Binding
	Edit     key.Binding
	Apply    key.Binding
	Cancel   key.Binding
	Cycle    key.Binding
	Preset1  key.Binding
	Preset2  key.Binding
	Preset3  key.Binding
	Refresh  key.Binding
	ClearLog key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.TabNext, k.Edit, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.ClearLog, k.Refresh, k.Quit},
		{k.TabNext, k.TabPrev, k.Up, k.Down},
		{k.Edit, k.Apply, k.Cancel, k.Cycle},
		{k.Preset1, k.Preset2, k.Preset3},
	}
}

type lineMsg string
type doneMsg struct{ err error }
type refreshMsg struct{}
type animTickMsg struct{}

// checkpointRow is one retained snapshot as listed by the index.
type checkpointRow struct {
	name   string
	epoch  int
	latest bool
}

type model struct {
	width   int
	height  int
	styles  styles
	keys    keyMap
	help    help.Model
	spin    spinner.Model
	tabs    []string
	tabIdx  int
	presets []preset

	fields   []cfgField
	fieldIdx int
	editing  bool
	editor   textinput.Model

	projectRoot string
	cmd         *exec.Cmd
	running     bool
	status      string
	lastError   string
	lineCh      chan string
	doneCh      chan error

	logs    []string
	logView viewport.Model

	prog        progress
	batchSeries []float64
	epochSeries []float64
	animSeries  []float64
	anim        float64
	animVel     float64
	animPrimed  bool
	spring      harmonica.Spring

	checkpoints []checkpointRow
	ckptErr     string
}

func defaultStyles() styles {
	brand := lipgloss.AdaptiveColor{Light: "26", Dark: "81"}
	subtle := lipgloss.AdaptiveColor{Light: "245", Dark: "244"}
	border := lipgloss.AdaptiveColor{Light: "250", Dark: "238"}
	return styles{
		tab:        lipgloss.NewStyle().Padding(0, 1).Foreground(subtle),
		tabActive:  lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("15")).Background(brand),
		panel:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(border).Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Bold(true).Foreground(brand),
		selected:   lipgloss.NewStyle().Bold(true).Foreground(brand),
		dim:        lipgloss.NewStyle().Foreground(subtle),
		ok:         lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warn:       lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		graphBatch: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		graphEpoch: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	}
}

func initialModel(root string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	ed := textinput.New()
	ed.CharLimit = 512
	ed.Width = 36

	logVP := viewport.New(100, 16)
	logVP.SetContent("logs will appear here")

	m := model{
		styles:      defaultStyles(),
		tabs:        []string{"Train", "Monitor", "Logs", "Checkpoints"},
		presets:     defaultPresets(),
		fields:      defaultFields(root),
		editor:      ed,
		status:      "idle",
		lineCh:      make(chan string, 4096),
		doneCh:      make(chan error, 1),
		spin:        sp,
		logView:     logVP,
		help:        help.New(),
		projectRoot: root,
		spring:      harmonica.NewSpring(harmonica.FPS(30), 6.0, 1.0),
		keys: keyMap{
			Start:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
			Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
			Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
			TabNext:  key.NewBinding(key.WithKeys("tab", "l"), key.WithHelp("tab/l", "next tab")),
			TabPrev:  key.NewBinding(key.WithKeys("shift+tab", "h"), key.WithHelp("shift+tab/h", "prev tab")),
			Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("up/k", "up")),
			Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("down/j", "down")),
			Edit:     key.NewBinding(key.WithKeys("e", "enter"), key.WithHelp("e/enter", "edit")),
			Apply:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply")),
			Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel edit")),
			Cycle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "cycle toggle")),
			Preset1:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "preset demo")),
			Preset2:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "preset balanced")),
			Preset3:  key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "preset full")),
			Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh checkpoints")),
			ClearLog: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear logs")),
		},
	}
	m.refreshCheckpoints()
	return m
}

func projectRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		cwd, err := os.Getwd()
		if err != nil {
			return "."
		}
		return cwd
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "../.."))
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitLineCmd(m.lineCh), waitDoneCmd(m.doneCh), refreshCmd(), animTickCmd())
}

func waitLineCmd(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return lineMsg(<-ch)
	}
}

func waitDoneCmd(ch <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-ch}
	}
}

func refreshCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return refreshMsg{} })
}

func animTickCmd() tea.Cmd {
	return tea.Tick(time.Second/30, func(time.Time) tea.Msg { return animTickMsg{} })
}

func (m *model) fieldByKey(key string) *cfgField {
	for i := range m.fields {
		if m.fields[i].Key == key {
			return &m.fields[i]
		}
	}
	return nil
}

func (m *model) applyPreset(idx int) {
	if m.running || idx < 0 || idx >= len(m.presets) {
		return
	}
	for k, v := range m.presets[idx].values {
		if f := m.fieldByKey(k); f != nil {
			f.Value = v
		}
	}
	m.appendLog("[system] preset loaded: " + m.presets[idx].name)
}

func (m *model) startEdit() {
	if m.running || m.tabIdx != 0 {
		return
	}
	f := m.fields[m.fieldIdx]
	if f.Type == fieldBool || f.Type == fieldChoice {
		m.fields[m.fieldIdx].Value = cycled(f)
		return
	}
	m.editing = true
	m.editor.SetValue(f.Value)
	m.editor.Placeholder = f.Label
	m.editor.Focus()
}

func (m *model) applyEdit() {
	m.fields[m.fieldIdx].Value = strings.TrimSpace(m.editor.Value())
	m.editing = false
	m.editor.Blur()
}

func (m *model) cancelEdit() {
	m.editing = false
	m.editor.Blur()
}

func (m *model) appendLog(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > 3500 {
		m.logs = m.logs[len(m.logs)-3500:]
	}
}

// ingest records a trainer output line and updates progress and series.
func (m *model) ingest(line string) {
	m.appendLog(line)
	if ev, ok := parseBatch(line); ok {
		m.prog.epoch, m.prog.batch, m.prog.batches = ev.epoch, ev.batch, ev.batches
		m.prog.batchLoss = ev.loss
		m.batchSeries = appendSeries(m.batchSeries, ev.loss, seriesCap)
	}
	if ev, ok := parseEpoch(line); ok {
		m.prog.epoch, m.prog.epochs = ev.epoch, ev.epochs
		m.prog.batch = m.prog.batches
		m.prog.epochLoss = ev.loss
		m.prog.elapsed += ev.elapsed
		m.epochSeries = appendSeries(m.epochSeries, ev.loss, seriesCap)
	}
	if start, ok := parseResume(line); ok {
		m.prog.resumed = true
		m.prog.startEpoch = start
	}
	if path, ok := parseSaved(line); ok {
		m.prog.saved = path
		m.refreshCheckpoints()
	}
	if _, ok := parseDone(line); ok {
		m.prog.done = true
	}
}

func (m *model) startTraining() {
	if m.running {
		m.appendLog("[system] training already running")
		return
	}
	cfg, err := validateFields(m.fields)
	if err != nil {
		m.lastError = err.Error()
		m.appendLog("[system] config validation failed: " + err.Error())
		return
	}

	cmd := exec.Command("go", "run", ".", "train")
	cmd.Dir = m.projectRoot
	cmd.Env = os.Environ()
	for k, v := range envMap(m.fields) {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.appendLog("[system] failed stdout pipe: " + err.Error())
		return
	}
	// klog writes to stderr.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.appendLog("[system] failed stderr pipe: " + err.Error())
		return
	}
	if err := cmd.Start(); err != nil {
		m.appendLog("[system] failed start: " + err.Error())
		return
	}
	m.cmd = cmd
	m.running = true
	m.status = "running"
	m.lastError = ""
	m.prog = progress{epochs: cfg.NumEpochs}
	m.batchSeries, m.epochSeries, m.animSeries = nil, nil, nil
	m.animPrimed = false
	m.appendLog(fmt.Sprintf("[system] pid=%d rnn=%s epochs=%d batch_size=%d", cmd.Process.Pid, cfg.RNN, cfg.NumEpochs, cfg.BatchSize))

	pump := func(sc *bufio.Scanner) {
		for sc.Scan() {
			m.lineCh <- sc.Text()
		}
	}
	go pump(bufio.NewScanner(stdout))
	go pump(bufio.NewScanner(stderr))
	go func() { m.doneCh <- cmd.Wait() }()
}

// stopTraining interrupts the trainer so it stops at the next batch
// boundary. Completed epochs are already checkpointed.
func (m *model) stopTraining() {
	if !m.running || m.cmd == nil || m.cmd.Process == nil {
		m.appendLog("[system] no active training process")
		return
	}
	m.appendLog("[system] stop requested")
	_ = m.cmd.Process.Signal(syscall.SIGINT)
	go func(proc *os.Process) {
		time.Sleep(5 * time.Second)
		_ = proc.Kill()
	}(m.cmd.Process)
}

func (m *model) checkpointsDir() string {
	if f := m.fieldByKey("CHECKPOINTS_DIR"); f != nil {
		return strings.TrimSpace(f.Value)
	}
	return filepath.Join(m.projectRoot, "models")
}

func (m *model) refreshCheckpoints() {
	idx, err := checkpoint.ReadIndex(m.checkpointsDir())
	if err != nil {
		m.ckptErr = err.Error()
		m.checkpoints = nil
		return
	}
	m.ckptErr = ""
	rows := make([]checkpointRow, 0, len(idx.Checkpoints))
	for i := len(idx.Checkpoints) - 1; i >= 0; i-- {
		name := idx.Checkpoints[i]
		ep, err := checkpoint.EpochFromName(name)
		if err != nil {
			continue
		}
		rows = append(rows, checkpointRow{name: name, epoch: ep, latest: name == idx.Latest})
	}
	m.checkpoints = rows
}

// loadSummary replaces the epoch series with the full history written by the
// trainer's plotter, which includes epochs recovered from a checkpoint.
func (m *model) loadSummary() {
	f := m.fieldByKey("SUMMARY_DIR")
	if f == nil {
		return
	}
	losses, err := plot.ReadLosses(strings.TrimSpace(f.Value))
	if err != nil || len(losses) == 0 {
		return
	}
	m.epochSeries = losses
}

func (m *model) animate() {
	if len(m.batchSeries) == 0 {
		return
	}
	target := m.batchSeries[len(m.batchSeries)-1]
	if !m.animPrimed {
		m.anim, m.animVel = target, 0
		m.animPrimed = true
	}
	m.anim, m.animVel = m.spring.Update(m.anim, m.animVel, target)
	m.animSeries = appendSeries(m.animSeries, m.anim, seriesCap)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.spin, cmd = m.spin.Update(msg)
	cmds = append(cmds, cmd)
	if m.editing {
		m.editor, cmd = m.editor.Update(msg)
		cmds = append(cmds, cmd)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logView.Width = max(60, m.width-8)
		m.logView.Height = max(9, m.height-14)
		m.editor.Width = max(24, min(64, m.width/2))
		m.help.Width = m.width

	case tea.KeyMsg:
		if m.editing {
			switch {
			case key.Matches(msg, m.keys.Apply):
				m.applyEdit()
			case key.Matches(msg, m.keys.Cancel):
				m.cancelEdit()
			}
			return m, tea.Batch(cmds...)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.running {
				m.stopTraining()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.TabNext):
			m.tabIdx = (m.tabIdx + 1) % len(m.tabs)
		case key.Matches(msg, m.keys.TabPrev):
			m.tabIdx = (m.tabIdx + len(m.tabs) - 1) % len(m.tabs)
		case key.Matches(msg, m.keys.Start):
			m.startTraining()
			m.tabIdx = 1
		case key.Matches(msg, m.keys.Stop):
			m.stopTraining()
		case key.Matches(msg, m.keys.Refresh):
			m.refreshCheckpoints()
		case key.Matches(msg, m.keys.ClearLog):
			if m.tabIdx == 2 {
				m.logs = nil
			}
		case key.Matches(msg, m.keys.Up):
			if m.tabIdx == 0 {
				m.fieldIdx = max(0, m.fieldIdx-1)
			} else if m.tabIdx == 2 {
				m.logView.LineUp(1)
			}
		case key.Matches(msg, m.keys.Down):
			if m.tabIdx == 0 {
				m.fieldIdx = min(len(m.fields)-1, m.fieldIdx+1)
			} else if m.tabIdx == 2 {
				m.logView.LineDown(1)
			}
		case key.Matches(msg, m.keys.Edit):
			m.startEdit()
		case key.Matches(msg, m.keys.Cycle):
			if m.tabIdx == 0 && !m.running {
				m.fields[m.fieldIdx].Value = cycled(m.fields[m.fieldIdx])
			}
		case key.Matches(msg, m.keys.Preset1):
			m.applyPreset(0)
		case key.Matches(msg, m.keys.Preset2):
			m.applyPreset(1)
		case key.Matches(msg, m.keys.Preset3):
			m.applyPreset(2)
		}

	case lineMsg:
		m.ingest(string(msg))
		cmds = append(cmds, waitLineCmd(m.lineCh))

	case doneMsg:
		m.running = false
		m.cmd = nil
		if msg.err != nil {
			m.status = "error"
			m.lastError = msg.err.Error()
			m.appendLog("[system] process ended with error: " + msg.err.Error())
		} else {
			m.status = "completed"
			m.appendLog("[system] training process exited")
			m.loadSummary()
		}
		m.refreshCheckpoints()
		cmds = append(cmds, waitDoneCmd(m.doneCh))

	case refreshMsg:
		m.refreshCheckpoints()
		cmds = append(cmds, refreshCmd())

	case animTickMsg:
		m.animate()
		cmds = append(cmds, animTickCmd())
	}

	return m, tea.Batch(cmds...)
}

func appendSeries(series []float64, v float64, capN int) []float64 {
	series = append(series, v)
	if len(series) > capN {
		series = series[len(series)-capN:]
	}
	return series
}

func main() {
	p := tea.NewProgram(initialModel(projectRoot()), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

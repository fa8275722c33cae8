package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/optim"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/plot"
)

func TestParseLines(t *testing.T) {
	klogPrefix := "I1018 12:00:00.123456   4242 observer.go:55] "

	b, ok := parseBatch(klogPrefix + "[batch] epoch=2 batch=7/12 loss=1.2345")
	if !ok || b.epoch != 2 || b.batch != 7 || b.batches != 12 || b.loss != 1.2345 {
		t.Errorf("parseBatch = %+v, %v", b, ok)
	}
	if _, ok := parseBatch("[batch] epoch=2 batch=7/12 loss=NaNx"); ok {
		t.Error("parseBatch accepted an unparsable loss")
	}

	e, ok := parseEpoch(klogPrefix + "[epoch] epoch=3/10 loss=0.912000 elapsed=1m2.5s")
	if !ok || e.epoch != 3 || e.epochs != 10 || e.loss != 0.912 || e.elapsed != 62500*time.Millisecond {
		t.Errorf("parseEpoch = %+v, %v", e, ok)
	}

	if n, ok := parseResume("[resume] did_resume=true start_epoch=4"); !ok || n != 4 {
		t.Errorf("parseResume = %d, %v", n, ok)
	}
	if p, ok := parseSaved("[model] checkpoint saved: models/ckpt-3.json"); !ok || p != "models/ckpt-3.json" {
		t.Errorf("parseSaved = %q, %v", p, ok)
	}
	if n, ok := parseDone("[done] epochs=10 final_loss=0.5 elapsed=3s"); !ok || n != 10 {
		t.Errorf("parseDone = %d, %v", n, ok)
	}
	if _, ok := parseEpoch("dataset: coco | captions: 10"); ok {
		t.Error("parseEpoch matched an unrelated line")
	}
}

func TestProgressRatio(t *testing.T) {
	tests := []struct {
		p    progress
		want float64
	}{
		{progress{}, 0},
		{progress{epoch: 1, epochs: 4, batch: 5, batches: 10}, 0.125},
		{progress{epoch: 4, epochs: 4, batch: 10, batches: 10}, 1},
		{progress{epoch: 5, epochs: 4, batch: 10, batches: 10}, 1},
	}
	for _, tt := range tests {
		if got := tt.p.ratio(); got != tt.want {
			t.Errorf("%+v ratio = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestIngestUpdatesProgress(t *testing.T) {
	m := initialModel(t.TempDir())
	for _, line := range []string{
		"[resume] did_resume=true start_epoch=1",
		"[batch] epoch=2 batch=1/2 loss=2.5",
		"[batch] epoch=2 batch=2/2 loss=2.0",
		"[epoch] epoch=2/3 loss=2.250000 elapsed=1.5s",
		"[model] checkpoint saved: /tmp/ckpt-2.json",
	} {
		m.ingest(line)
	}
	if !m.prog.resumed || m.prog.startEpoch != 1 {
		t.Errorf("resume not recorded: %+v", m.prog)
	}
	if len(m.batchSeries) != 2 || len(m.epochSeries) != 1 || m.epochSeries[0] != 2.25 {
		t.Errorf("series = %v / %v", m.batchSeries, m.epochSeries)
	}
	if m.prog.batch != 2 || m.prog.epochs != 3 || m.prog.saved != "/tmp/ckpt-2.json" {
		t.Errorf("progress = %+v", m.prog)
	}
	if len(m.logs) != 5 {
		t.Errorf("logs = %d, want 5", len(m.logs))
	}
}

func TestCycled(t *testing.T) {
	tests := []struct {
		f    cfgField
		want string
	}{
		{cfgField{Type: fieldBool, Value: "true"}, "false"},
		{cfgField{Type: fieldBool, Value: "false"}, "true"},
		{cfgField{Type: fieldChoice, Value: "gru", Choices: []string{"gru", "lstm"}}, "lstm"},
		{cfgField{Type: fieldChoice, Value: "lstm", Choices: []string{"gru", "lstm"}}, "gru"},
		{cfgField{Type: fieldChoice, Value: "other", Choices: []string{"gru", "lstm"}}, "lstm"},
		{cfgField{Type: fieldInt, Value: "3"}, "3"},
	}
	for _, tt := range tests {
		if got := cycled(tt.f); got != tt.want {
			t.Errorf("cycled(%+v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestValidateFields(t *testing.T) {
	root := t.TempDir()
	cfg, err := validateFields(defaultFields(root))
	if err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
	if cfg.CheckpointsDir != filepath.Join(root, "models") || cfg.RNN != "gru" {
		t.Errorf("config = %+v", cfg)
	}

	tests := []struct {
		key, value, want string
	}{
		{"BATCH_SIZE", "lots", "BATCH_SIZE"},
		{"LEARNING_RATE", "fast", "LEARNING_RATE"},
		{"SHUFFLE", "maybe", "SHUFFLE"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"RNN", "transformer", "RNN"},
		{"TRAIN_CAPTIONS_FILE", " ", "TRAIN_CAPTIONS_FILE"},
	}
	for _, tt := range tests {
		fields := defaultFields(root)
		for i := range fields {
			if fields[i].Key == tt.key {
				fields[i].Value = tt.value
			}
		}
		_, err := validateFields(fields)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s=%q: err = %v, want mention of %s", tt.key, tt.value, err, tt.want)
		}
	}
}

func TestPresetsOnlyTouchKnownFields(t *testing.T) {
	known := map[string]bool{}
	for _, f := range defaultFields(".") {
		known[f.Key] = true
	}
	for _, p := range defaultPresets() {
		for k := range p.values {
			if !known[k] {
				t.Errorf("preset %s sets unknown field %s", p.name, k)
			}
		}
	}
}

func TestRefreshCheckpointsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	m := initialModel(dir)
	m.fieldByKey("CHECKPOINTS_DIR").Value = dir

	opt, err := optim.New("sgd", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := checkpoint.NewManager(dir, 2, map[string]checkpoint.Component{"optimizer": opt})
	if err != nil {
		t.Fatal(err)
	}
	for epoch := 1; epoch <= 3; epoch++ {
		if _, err := mgr.Save(epoch, make([]float64, epoch)); err != nil {
			t.Fatal(err)
		}
	}
	m.refreshCheckpoints()
	if len(m.checkpoints) != 2 {
		t.Fatalf("checkpoints = %+v", m.checkpoints)
	}
	if m.checkpoints[0].epoch != 3 || !m.checkpoints[0].latest || m.checkpoints[1].epoch != 2 {
		t.Errorf("checkpoints = %+v", m.checkpoints)
	}
}

func TestLoadSummaryUsesFullHistory(t *testing.T) {
	dir := t.TempDir()
	m := initialModel(dir)
	m.fieldByKey("SUMMARY_DIR").Value = dir
	m.epochSeries = []float64{0.5}
	if err := (plot.Plotter{Dir: dir}).Plot([]float64{2, 1, 0.5}); err != nil {
		t.Fatal(err)
	}
	m.loadSummary()
	if len(m.epochSeries) != 3 || m.epochSeries[0] != 2 {
		t.Errorf("epochSeries = %v", m.epochSeries)
	}
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  []string
	}{
		{"a bb ccc", 4, []string{"a bb", "ccc"}},
		{"abcdefgh", 3, []string{"abc", "def", "gh"}},
		{"x\n\ny", 10, []string{"x", "", "y"}},
	}
	for _, tt := range tests {
		got := wrapText(tt.in, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFitHeightAndAppendSeries(t *testing.T) {
	if got := fitHeight("a\nb\nc", 2); got != "a\nb" {
		t.Errorf("fitHeight trim = %q", got)
	}
	if got := fitHeight("a", 3); got != "a\n\n" {
		t.Errorf("fitHeight pad = %q", got)
	}
	var s []float64
	for i := 0; i < 5; i++ {
		s = appendSeries(s, float64(i), 3)
	}
	if len(s) != 3 || s[0] != 2 || s[2] != 4 {
		t.Errorf("appendSeries = %v", s)
	}
}

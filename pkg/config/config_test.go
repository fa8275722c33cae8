package config

import (
	"errors"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CHECKPOINTS_DIR", "")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RNN != "gru" || c.MaxCaptionLength != 20 || c.EmbeddingDim != 256 || c.Units != 512 {
		t.Errorf("unexpected model defaults: %+v", c)
	}
	if c.NumEpochs != 50 || c.BatchSize != 64 || c.BufferSize != 1000 || c.MaxCheckpoints != 5 {
		t.Errorf("unexpected training defaults: %+v", c)
	}
	if c.LossNormalization != NormalizeTimesteps || !c.ResumeFromCheckpoint {
		t.Errorf("unexpected run defaults: %+v", c)
	}
	if c.VocabularyFile != "./models/vocabulary.json" {
		t.Errorf("VocabularyFile = %q", c.VocabularyFile)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RNN", " LSTM ")
	t.Setenv("BATCH_SIZE", "8")
	t.Setenv("LEARNING_RATE", "0.005")
	t.Setenv("SHUFFLE", "off")
	t.Setenv("RESUME_FROM_CHECKPOINT", "no")
	t.Setenv("LOSS_NORMALIZATION", "sequence_length")
	t.Setenv("NUM_EPOCHS", "not-a-number")
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RNN != "lstm" || c.BatchSize != 8 || c.LearningRate != 0.005 {
		t.Errorf("overrides not applied: %+v", c)
	}
	if c.Shuffle || c.ResumeFromCheckpoint {
		t.Errorf("boolean overrides not applied: %+v", c)
	}
	if c.LossNormalization != NormalizeSequenceLength {
		t.Errorf("LossNormalization = %q", c.LossNormalization)
	}
	if c.NumEpochs != 50 {
		t.Errorf("unparsable NUM_EPOCHS should fall back to default, got %d", c.NumEpochs)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RNN", "transformer"},
		{"OPTIMIZER", "adagrad"},
		{"BATCH_SIZE", "0"},
		{"MAX_CAPTION_LENGTH", "1"},
		{"MAX_CHECKPOINTS", "0"},
		{"LOSS_NORMALIZATION", "tokens"},
		{"TOKENIZER", "chars"},
		{"TRAIN_DEVICE", "tpu"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load() with %s=%s: err = %v, want ErrInvalid", tt.key, tt.value, err)
			}
		})
	}
}

func TestLoadFromLookup(t *testing.T) {
	vals := map[string]string{
		"RNN":             "lstm",
		"NUM_EPOCHS":      "3",
		"CHECKPOINTS_DIR": "/tmp/ckpts",
	}
	c, err := LoadFrom(func(k string) string { return vals[k] })
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if c.RNN != "lstm" || c.NumEpochs != 3 {
		t.Errorf("lookup values not applied: %+v", c)
	}
	if c.VocabularyFile != "/tmp/ckpts/vocabulary.json" {
		t.Errorf("VocabularyFile = %q", c.VocabularyFile)
	}

	vals["OPTIMIZER"] = "lbfgs"
	if _, err := LoadFrom(func(k string) string { return vals[k] }); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestSizeWarning(t *testing.T) {
	tests := []struct {
		name              string
		emb, units, vocab int
		warn              bool
	}{
		{"defaults", 256, 512, 10000, true},
		{"demo", 16, 32, 100, false},
		{"balanced", 64, 128, 5000, false},
		{"wide vocabulary", 16, 32, 20000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Config{EmbeddingDim: tt.emb, Units: tt.units, VocabularySize: tt.vocab}
			if got := c.SizeWarning(); (got != "") != tt.warn {
				t.Fatalf("SizeWarning() = %q, want warning %v", got, tt.warn)
			}
		})
	}
}

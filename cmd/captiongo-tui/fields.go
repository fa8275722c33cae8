package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/config"
)

type fieldType int

const (
	fieldString fieldType = iota
	fieldInt
	fieldFloat
	fieldBool
	fieldChoice
)

type cfgField struct {
	Key     string
	Label   string
	Type    fieldType
	Value   string
	Desc    string
	Choices []string
}

type preset struct {
	name        string
	description string
	values      map[string]string
}

func defaultFields(root string) []cfgField {
	return []cfgField{
		{Key: "TRAIN_CAPTIONS_FILE", Label: "Captions file", Type: fieldString, Value: filepath.Join(root, "data", "captions_train.json"), Desc: "COCO-style annotations JSON."},
		{Key: "TRAIN_FEATURES_DIR", Label: "Features dir", Type: fieldString, Value: filepath.Join(root, "data", "features"), Desc: "One .feat matrix per image id."},
		{Key: "NUM_EXAMPLES", Label: "Examples", Type: fieldInt, Value: "0", Desc: "Caption subset size. 0 uses every caption."},
		{Key: "TOKENIZER", Label: "Tokenizer", Type: fieldChoice, Value: "word", Choices: []string{"word", "bpe"}, Desc: "Word splitting or tiktoken BPE pieces."},
		{Key: "VOCABULARY_SIZE", Label: "Vocabulary size", Type: fieldInt, Value: "5000", Desc: "Most frequent tokens kept; the rest map to <unk>."},
		{Key: "MAX_CAPTION_LENGTH", Label: "Max caption length", Type: fieldInt, Value: "20", Desc: "Tokens per caption including start and end markers."},
		{Key: "RNN", Label: "Recurrent cell", Type: fieldChoice, Value: "gru", Choices: []string{"gru", "lstm"}, Desc: "Decoder cell type."},
		{Key: "EMBEDDING_DIM", Label: "Embedding dim", Type: fieldInt, Value: "64", Desc: "Word embedding and encoder output width."},
		{Key: "RNN_UNITS", Label: "RNN units", Type: fieldInt, Value: "128", Desc: "Hidden state width of the decoder cell."},
		{Key: "WEIGHT_INIT", Label: "Weight init", Type: fieldChoice, Value: "glorot", Choices: []string{"glorot", "normal"}, Desc: "Initializer for fresh parameters."},
		{Key: "OPTIMIZER", Label: "Optimizer", Type: fieldChoice, Value: "adam", Choices: []string{"adam", "rmsprop", "momentum", "sgd"}, Desc: "Update rule applied after every batch."},
		{Key: "LEARNING_RATE", Label: "Learning rate", Type: fieldFloat, Value: "0.001", Desc: "Step size. 0 picks the optimizer default."},
		{Key: "NUM_EPOCHS", Label: "Epochs", Type: fieldInt, Value: "20", Desc: "Total epochs, counted across resumed runs."},
		{Key: "BATCH_SIZE", Label: "Batch size", Type: fieldInt, Value: "32", Desc: "Captions per batch."},
		{Key: "SHUFFLE", Label: "Shuffle", Type: fieldBool, Value: "true", Desc: "Reorder captions every epoch."},
		{Key: "DROP_REMAINDER", Label: "Drop remainder", Type: fieldBool, Value: "false", Desc: "Skip the last partial batch."},
		{Key: "SEED", Label: "Seed", Type: fieldInt, Value: "42", Desc: "Seed for init, subset selection and shuffling."},
		{Key: "LOSS_NORMALIZATION", Label: "Loss normalization", Type: fieldChoice, Value: config.NormalizeTimesteps, Choices: []string{config.NormalizeTimesteps, config.NormalizeSequenceLength}, Desc: "Divide the summed loss by timesteps or by the padded length."},
		{Key: "CHECKPOINTS_DIR", Label: "Checkpoints dir", Type: fieldString, Value: filepath.Join(root, "models"), Desc: "Snapshots, index and vocabulary."},
		{Key: "MAX_CHECKPOINTS", Label: "Max checkpoints", Type: fieldInt, Value: "5", Desc: "Older snapshots are deleted."},
		{Key: "RESUME_FROM_CHECKPOINT", Label: "Resume", Type: fieldBool, Value: "true", Desc: "Continue from the latest snapshot."},
		{Key: "SUMMARY_DIR", Label: "Summary dir", Type: fieldString, Value: filepath.Join(root, "summary"), Desc: "Loss chart and losses.json."},
		{Key: "LOG_INTERVAL", Label: "Log interval", Type: fieldInt, Value: "10", Desc: "Batches between progress lines."},
		{Key: "TRAIN_DEVICE", Label: "Device", Type: fieldChoice, Value: "cpu", Choices: []string{"cpu", "gpu"}, Desc: "gpu falls back to cpu with a warning."},
	}
}

func defaultPresets() []preset {
	return []preset{
		{name: "demo", description: "tiny model for the gen-demo dataset", values: map[string]string{
			"VOCABULARY_SIZE": "100", "EMBEDDING_DIM": "16", "RNN_UNITS": "32", "NUM_EPOCHS": "5", "BATCH_SIZE": "16", "LOG_INTERVAL": "1",
		}},
		{name: "balanced", description: "small model for a few thousand captions", values: map[string]string{
			"VOCABULARY_SIZE": "5000", "EMBEDDING_DIM": "64", "RNN_UNITS": "128", "NUM_EPOCHS": "20", "BATCH_SIZE": "32", "LOG_INTERVAL": "10",
		}},
		{name: "full", description: "reference sizes, slow on CPU", values: map[string]string{
			"VOCABULARY_SIZE": "10000", "EMBEDDING_DIM": "256", "RNN_UNITS": "512", "NUM_EPOCHS": "50", "BATCH_SIZE": "64", "LOG_INTERVAL": "100",
		}},
	}
}

// cycled returns the value after f.Value for bools and choices.
func cycled(f cfgField) string {
	switch f.Type {
	case fieldBool:
		if strings.EqualFold(f.Value, "true") {
			return "false"
		}
		return "true"
	case fieldChoice:
		if len(f.Choices) == 0 {
			return f.Value
		}
		idx := 0
		for j, c := range f.Choices {
			if c == f.Value {
				idx = j
				break
			}
		}
		return f.Choices[(idx+1)%len(f.Choices)]
	}
	return f.Value
}

func envMap(fields []cfgField) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		out[f.Key] = strings.TrimSpace(f.Value)
	}
	return out
}

// validateFields checks that every value parses as its type and that the
// trainer would accept the resulting configuration.
func validateFields(fields []cfgField) (config.Config, error) {
	for _, f := range fields {
		v := strings.TrimSpace(f.Value)
		switch f.Type {
		case fieldInt:
			if _, err := strconv.Atoi(v); err != nil {
				return config.Config{}, fmt.Errorf("%s must be an integer, got %q", f.Key, v)
			}
		case fieldFloat:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return config.Config{}, fmt.Errorf("%s must be a number, got %q", f.Key, v)
			}
		case fieldBool:
			if _, err := strconv.ParseBool(v); err != nil {
				return config.Config{}, fmt.Errorf("%s must be true or false, got %q", f.Key, v)
			}
		}
	}
	vals := envMap(fields)
	if vals["TRAIN_CAPTIONS_FILE"] == "" || vals["TRAIN_FEATURES_DIR"] == "" {
		return config.Config{}, fmt.Errorf("TRAIN_CAPTIONS_FILE and TRAIN_FEATURES_DIR cannot be empty")
	}
	return config.LoadFrom(func(k string) string { return vals[k] })
}

// Package config reads trainer settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	NormalizeTimesteps      = "timesteps"
	NormalizeSequenceLength = "sequence_length"
)

type Config struct {
	CNN              string
	RNN              string
	MaxCaptionLength int
	EmbeddingDim     int
	Units            int
	WeightInit       string

	NumEpochs     int
	BatchSize     int
	Optimizer     string
	LearningRate  float64
	BufferSize    int
	Shuffle       bool
	DropRemainder bool
	Seed          int64
	Prefetch      int

	DatasetName       string
	TrainFeaturesDir  string
	TrainCaptionsFile string
	NumExamples       int
	VocabularyFile    string
	VocabularySize    int
	Tokenizer         string
	BPEEncoding       string

	CheckpointsDir       string
	MaxCheckpoints       int
	ResumeFromCheckpoint bool
	SummaryDir           string

	LossNormalization string
	LogInterval       int
	Device            string
}

// Load reads every key from the environment, falling back to defaults, and
// validates the result.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup, e.g. a form of pending
// values that has not been exported yet.
func LoadFrom(get func(string) string) (Config, error) {
	c := Config{
		CNN:              strings.ToLower(envString(get, "CNN", "inception_v3")),
		RNN:              strings.ToLower(envString(get, "RNN", "gru")),
		MaxCaptionLength: envInt(get, "MAX_CAPTION_LENGTH", 20),
		EmbeddingDim:     envInt(get, "EMBEDDING_DIM", 256),
		Units:            envInt(get, "RNN_UNITS", 512),
		WeightInit:       strings.ToLower(envString(get, "WEIGHT_INIT", "glorot")),

		NumEpochs:     envInt(get, "NUM_EPOCHS", 50),
		BatchSize:     envInt(get, "BATCH_SIZE", 64),
		Optimizer:     strings.ToLower(envString(get, "OPTIMIZER", "adam")),
		LearningRate:  envFloat(get, "LEARNING_RATE", 0),
		BufferSize:    envInt(get, "BUFFER_SIZE", 1000),
		Shuffle:       envBool(get, "SHUFFLE", true),
		DropRemainder: envBool(get, "DROP_REMAINDER", false),
		Seed:          int64(envInt(get, "SEED", 42)),
		Prefetch:      envInt(get, "PREFETCH", 2),

		DatasetName:       envString(get, "DATASET_NAME", "coco"),
		TrainFeaturesDir:  envString(get, "TRAIN_FEATURES_DIR", "data/features"),
		TrainCaptionsFile: envString(get, "TRAIN_CAPTIONS_FILE", "data/captions_train.json"),
		NumExamples:       envInt(get, "NUM_EXAMPLES", 0),
		VocabularyFile:    envString(get, "VOCABULARY_FILE", ""),
		VocabularySize:    envInt(get, "VOCABULARY_SIZE", 10000),
		Tokenizer:         strings.ToLower(envString(get, "TOKENIZER", "word")),
		BPEEncoding:       envString(get, "BPE_ENCODING", "cl100k_base"),

		CheckpointsDir:       envString(get, "CHECKPOINTS_DIR", "./models/"),
		MaxCheckpoints:       envInt(get, "MAX_CHECKPOINTS", 5),
		ResumeFromCheckpoint: envBool(get, "RESUME_FROM_CHECKPOINT", true),
		SummaryDir:           envString(get, "SUMMARY_DIR", "./summary/"),

		LossNormalization: strings.ToLower(envString(get, "LOSS_NORMALIZATION", NormalizeTimesteps)),
		LogInterval:       envInt(get, "LOG_INTERVAL", 100),
		Device:            strings.ToLower(envString(get, "TRAIN_DEVICE", "cpu")),
	}
	if c.VocabularyFile == "" {
		c.VocabularyFile = strings.TrimSuffix(c.CheckpointsDir, "/") + "/vocabulary.json"
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first setting that cannot be trained with.
func (c Config) Validate() error {
	switch {
	case c.RNN != "gru" && c.RNN != "lstm":
		return invalid("RNN must be gru or lstm, got %q", c.RNN)
	case c.WeightInit != "glorot" && c.WeightInit != "normal":
		return invalid("WEIGHT_INIT must be glorot or normal, got %q", c.WeightInit)
	case c.Tokenizer != "word" && c.Tokenizer != "bpe":
		return invalid("TOKENIZER must be word or bpe, got %q", c.Tokenizer)
	case c.LossNormalization != NormalizeTimesteps && c.LossNormalization != NormalizeSequenceLength:
		return invalid("LOSS_NORMALIZATION must be %s or %s, got %q", NormalizeTimesteps, NormalizeSequenceLength, c.LossNormalization)
	case c.Device != "cpu" && c.Device != "gpu":
		return invalid("TRAIN_DEVICE must be cpu or gpu, got %q", c.Device)
	case c.MaxCaptionLength < 2:
		return invalid("MAX_CAPTION_LENGTH must be >= 2 to hold start and end markers")
	case c.EmbeddingDim < 1 || c.Units < 1:
		return invalid("EMBEDDING_DIM and RNN_UNITS must be >= 1")
	case c.NumEpochs < 1:
		return invalid("NUM_EPOCHS must be >= 1")
	case c.BatchSize < 1:
		return invalid("BATCH_SIZE must be >= 1")
	case c.LearningRate < 0:
		return invalid("LEARNING_RATE must not be negative")
	case c.BufferSize < 1:
		return invalid("BUFFER_SIZE must be >= 1")
	case c.Prefetch < 0:
		return invalid("PREFETCH must not be negative")
	case c.NumExamples < 0:
		return invalid("NUM_EXAMPLES must not be negative")
	case c.VocabularySize < 5:
		return invalid("VOCABULARY_SIZE must be >= 5")
	case c.MaxCheckpoints < 1:
		return invalid("MAX_CHECKPOINTS must be >= 1")
	case c.LogInterval < 1:
		return invalid("LOG_INTERVAL must be >= 1")
	case c.CheckpointsDir == "":
		return invalid("CHECKPOINTS_DIR must be set")
	}
	switch c.Optimizer {
	case "adam", "rmsprop", "momentum", "sgd":
	default:
		return invalid("OPTIMIZER must be adam, rmsprop, momentum or sgd, got %q", c.Optimizer)
	}
	return nil
}

// Sizes above these train very slowly on the scalar autograd engine.
const (
	largeEmbeddingDim   = 64
	largeUnits          = 128
	largeVocabularySize = 5000
)

// SizeWarning describes model sizes that make training impractically slow,
// or returns "" when every size is modest.
func (c Config) SizeWarning() string {
	if c.EmbeddingDim <= largeEmbeddingDim && c.Units <= largeUnits && c.VocabularySize <= largeVocabularySize {
		return ""
	}
	return fmt.Sprintf("EMBEDDING_DIM=%d RNN_UNITS=%d VOCABULARY_SIZE=%d will train very slowly on CPU; "+
		"try EMBEDDING_DIM=16 RNN_UNITS=32 VOCABULARY_SIZE=100 with the gen-demo dataset",
		c.EmbeddingDim, c.Units, c.VocabularySize)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}

func envString(get func(string) string, name, def string) string {
	v := normalize(get(name))
	if v == "" {
		return def
	}
	return v
}

func envInt(get func(string) string, name string, def int) int {
	v := normalize(get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(get func(string) string, name string, def float64) float64 {
	v := normalize(get(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func envBool(get func(string) string, name string, def bool) bool {
	v := strings.ToLower(normalize(get(name)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

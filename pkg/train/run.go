package train

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/config"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/dataset"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/model"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/nn"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/optim"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/vocab"
)

// Plotter receives the full, ordered per-epoch loss history of a run.
type Plotter interface {
	Plot(losses []float64) error
}

// Run prepares data and model from cfg, trains to completion and plots the
// loss history. It returns the history.
func Run(ctx context.Context, cfg config.Config, obs Observer, plotter Plotter) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	began := time.Now()
	if cfg.Device == "gpu" {
		klog.Warning("[warn] TRAIN_DEVICE=gpu requested, but this trainer runs on CPU kernels. Falling back to CPU.")
	}
	if w := cfg.SizeWarning(); w != "" {
		klog.Warning("[warn] " + w)
	}

	caps, err := dataset.ReadCaptions(cfg.TrainCaptionsFile)
	if err != nil {
		return nil, err
	}
	anns := dataset.Limit(caps.Annotations, cfg.NumExamples, cfg.Seed)
	v, loaded, err := vocab.LoadOrBuild(cfg.VocabularyFile, cfg.Tokenizer, cfg.BPEEncoding, cfg.VocabularySize, dataset.Texts(anns))
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	klog.Infof("dataset: %s | captions: %d | vocab size: %d (loaded=%v)", cfg.DatasetName, len(anns), v.Len(), loaded)

	ds, err := dataset.New(anns, v, dataset.Options{
		FeaturesDir:      cfg.TrainFeaturesDir,
		MaxCaptionLength: cfg.MaxCaptionLength,
		BatchSize:        cfg.BatchSize,
		Shuffle:          cfg.Shuffle,
		BufferSize:       cfg.BufferSize,
		DropRemainder:    cfg.DropRemainder,
		Seed:             cfg.Seed,
		Prefetch:         cfg.Prefetch,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}

	m, err := model.Build(model.Spec{
		FeatureDim:   ds.FeatureDim(),
		EmbeddingDim: cfg.EmbeddingDim,
		Units:        cfg.Units,
		RNN:          cfg.RNN,
		Init:         nn.Init(cfg.WeightInit),
		Seed:         cfg.Seed,
	}, v)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	klog.Infof("config: cnn=%s rnn=%s embedding_dim=%d units=%d feature_dim=%d regions=%d",
		cfg.CNN, cfg.RNN, cfg.EmbeddingDim, cfg.Units, ds.FeatureDim(), ds.Regions())
	klog.Infof("num params: %d", nn.Count(m.Parameters()))

	opt, err := optim.New(cfg.Optimizer, cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	klog.Infof("optimizer: %s batches/epoch=%d epochs=%d", opt.Name(), ds.NumBatches(), cfg.NumEpochs)

	stepper, err := NewStepper(m, opt, cfg.LossNormalization)
	if err != nil {
		return nil, err
	}
	ckpts, err := checkpoint.NewManager(cfg.CheckpointsDir, cfg.MaxCheckpoints, map[string]checkpoint.Component{
		"encoder":   m.Encoder,
		"decoder":   m.Decoder,
		"optimizer": opt,
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoints: %w", err)
	}

	loop := &Loop{
		Dataset:     ds,
		Stepper:     stepper,
		Checkpoints: ckpts,
		Observer:    obs,
		NumEpochs:   cfg.NumEpochs,
		Resume:      cfg.ResumeFromCheckpoint,
	}
	losses, err := loop.Run(ctx)
	if err != nil {
		return losses, err
	}
	final := 0.0
	if len(losses) > 0 {
		final = losses[len(losses)-1]
	}
	klog.Infof("training finished in %s, final loss %.6f", time.Since(began).Round(time.Millisecond), final)

	if plotter != nil {
		if err := plotter.Plot(losses); err != nil {
			return losses, fmt.Errorf("plot losses: %w", err)
		}
	}
	return losses, nil
}

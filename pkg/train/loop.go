package train

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/frfdnpg/image-captioning-with-attention/pkg/checkpoint"
	"github.com/frfdnpg/image-captioning-with-attention/pkg/dataset"
)

// Dataset yields the batches of one epoch in a fixed order.
type Dataset interface {
	NumInstances() int
	NumBatches() int
	BatchSize() int
	Batches(epoch int) dataset.BatchIterator
}

func describeDataset(ds Dataset) string {
	return fmt.Sprintf("Training on %d examples divided into %d batches of size %d",
		ds.NumInstances(), ds.NumBatches(), ds.BatchSize())
}

type BatchStepper interface {
	Step(dataset.Batch) (StepResult, error)
}

type Checkpointer interface {
	Restore() (checkpoint.RunState, error)
	Save(epoch int, losses []float64) (string, error)
}

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseResuming
	PhaseRunning
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseResuming:
		return "resuming"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	default:
		return "not_started"
	}
}

// Loop drives epochs: every batch once per epoch, the mean loss recorded in
// the history and a checkpoint saved after each epoch.
type Loop struct {
	Dataset     Dataset
	Stepper     BatchStepper
	Checkpoints Checkpointer
	Observer    Observer
	NumEpochs   int
	Resume      bool

	phase  Phase
	epoch  int
	resume checkpoint.RunState
	losses []float64
}

func (l *Loop) Phase() Phase { return l.phase }

// Epoch is the zero-based epoch being run, or the next one to run.
func (l *Loop) Epoch() int { return l.epoch }

// Resumed reports what Restore found; zero when the run started fresh.
func (l *Loop) Resumed() checkpoint.RunState { return l.resume }

// Run trains until NumEpochs are complete and returns the full loss history,
// including epochs recovered from a checkpoint. An interrupted epoch is not
// saved and will be repeated by the next run.
func (l *Loop) Run(ctx context.Context) ([]float64, error) {
	if l.phase != PhaseNotStarted {
		return nil, fmt.Errorf("loop already %s", l.phase)
	}
	obs := l.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	began := time.Now()

	l.phase = PhaseResuming
	if l.Resume {
		rs, err := l.Checkpoints.Restore()
		if err != nil {
			return nil, fmt.Errorf("restore checkpoint: %w", err)
		}
		l.resume = rs
		l.epoch = rs.StartEpoch
		l.losses = append(l.losses, rs.Losses...)
		if rs.DidResume {
			klog.Infof("[resume] did_resume=true start_epoch=%d", rs.StartEpoch)
		}
	}
	if l.epoch >= l.NumEpochs {
		klog.Infof("[resume] nothing to do: %d of %d epochs already complete", l.epoch, l.NumEpochs)
	}

	numBatches := l.Dataset.NumBatches()
	if numBatches < 1 || l.Dataset.NumInstances() < 1 {
		return nil, fmt.Errorf("dataset has no batches")
	}
	klog.Info(describeDataset(l.Dataset))
	for ; l.epoch < l.NumEpochs; l.epoch++ {
		l.phase = PhaseRunning
		start := time.Now()
		sum, err := l.runEpoch(ctx, obs, numBatches)
		if err != nil {
			return l.losses, err
		}
		mean := sum / float64(numBatches)
		l.losses = append(l.losses, mean)
		path, err := l.Checkpoints.Save(l.epoch+1, l.losses)
		if err != nil {
			return l.losses, fmt.Errorf("save checkpoint after epoch %d: %w", l.epoch+1, err)
		}
		obs.EpochEnd(EpochSummary{
			Epoch:          l.epoch,
			NumEpochs:      l.NumEpochs,
			MeanLoss:       mean,
			Elapsed:        time.Since(start),
			CheckpointPath: path,
		})
	}
	l.phase = PhaseCompleted
	obs.Finished(l.losses, time.Since(began))
	return l.losses, nil
}

func (l *Loop) runEpoch(ctx context.Context, obs Observer, numBatches int) (float64, error) {
	it := l.Dataset.Batches(l.epoch)
	defer it.Close()
	sum := 0.0
	for batch := 0; ; batch++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("epoch %d interrupted: %w", l.epoch+1, err)
		}
		b, ok := it.Next()
		if !ok {
			break
		}
		r, err := l.Stepper.Step(b)
		if err != nil {
			return 0, fmt.Errorf("epoch %d batch %d: %w", l.epoch+1, batch, err)
		}
		sum += r.TotalLoss
		obs.BatchEnd(BatchSummary{Epoch: l.epoch, Batch: batch, NumBatches: numBatches, Result: r})
	}
	if err := it.Err(); err != nil {
		return 0, fmt.Errorf("epoch %d: read batches: %w", l.epoch+1, err)
	}
	return sum, nil
}

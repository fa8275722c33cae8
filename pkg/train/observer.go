package train

import (
	"time"

	"k8s.io/klog/v2"
)

type BatchSummary struct {
	Epoch      int
	Batch      int
	NumBatches int
	Result     StepResult
}

type EpochSummary struct {
	Epoch          int
	NumEpochs      int
	MeanLoss       float64
	Elapsed        time.Duration
	CheckpointPath string
}

// Observer receives progress from a Loop. Epochs are zero-based.
type Observer interface {
	BatchEnd(BatchSummary)
	EpochEnd(EpochSummary)
	Finished(losses []float64, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) BatchEnd(BatchSummary)             {}
func (nopObserver) EpochEnd(EpochSummary)             {}
func (nopObserver) Finished([]float64, time.Duration) {}

// LogObserver prints progress lines through klog. Batch lines report the
// summed loss divided by the caption length, every Interval batches.
type LogObserver struct {
	Interval int
}

func (o LogObserver) BatchEnd(s BatchSummary) {
	interval := o.Interval
	if interval < 1 {
		interval = 1
	}
	if s.Batch%interval != 0 {
		return
	}
	perToken := 0.0
	if s.Result.Timesteps > 0 {
		perToken = s.Result.Loss / float64(s.Result.Timesteps+1)
	}
	klog.Infof("[batch] epoch=%d batch=%d/%d loss=%.4f", s.Epoch+1, s.Batch, s.NumBatches, perToken)
	klog.V(2).InfoS("step", "timesteps", s.Result.Timesteps, "loss_sum", s.Result.Loss, "total_loss", s.Result.TotalLoss)
}

func (o LogObserver) EpochEnd(s EpochSummary) {
	klog.Infof("[epoch] epoch=%d/%d loss=%.6f elapsed=%s", s.Epoch+1, s.NumEpochs, s.MeanLoss, s.Elapsed.Round(time.Millisecond))
	if s.CheckpointPath != "" {
		klog.Infof("[model] checkpoint saved: %s", s.CheckpointPath)
	}
}

func (o LogObserver) Finished(losses []float64, elapsed time.Duration) {
	final := 0.0
	if len(losses) > 0 {
		final = losses[len(losses)-1]
	}
	klog.Infof("[done] epochs=%d final_loss=%.6f elapsed=%s", len(losses), final, elapsed.Round(time.Millisecond))
}

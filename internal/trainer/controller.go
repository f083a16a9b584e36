package trainer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/born-ml/nfnet/internal/metrics"
	"k8s.io/klog/v2"
)

// Harness is one trainable model together with its data.
type Harness interface {
	// TrainEpoch runs one training pass. epoch is 1-based.
	TrainEpoch(epoch int) error
	// TrainAccuracy evaluates the training sequence.
	TrainAccuracy() (float64, error)
	// ValidationAccuracy evaluates the held-out sequence.
	ValidationAccuracy() (float64, error)
}

// Scheduler is advanced once per completed epoch.
type Scheduler interface {
	Step(epoch int) error
}

// Checkpointer persists the current parameters.
type Checkpointer interface {
	Save(epoch int, validationAccuracy float64) error
}

// BestTracker holds the best validation accuracy seen so far. It starts at
// zero and never decreases.
type BestTracker struct {
	best float64
}

// Observe records acc and reports whether it strictly improves on the best.
func (t *BestTracker) Observe(acc float64) bool {
	if acc > t.best {
		t.best = acc
		return true
	}
	return false
}

// Best returns the best accuracy observed.
func (t *BestTracker) Best() float64 {
	return t.best
}

// Controller repeats train/evaluate for a fixed number of epochs.
type Controller struct {
	Harness     Harness
	Scheduler   Scheduler
	Checkpoints Checkpointer
	Epochs      int

	// RecordsPath receives the metrics file after the last epoch. Empty
	// skips writing.
	RecordsPath string

	// Out receives one progress line per epoch.
	Out io.Writer

	// Now is the clock used to time training passes. Defaults to time.Now.
	Now func() time.Time
}

// Result is the outcome of a completed run.
type Result struct {
	Records metrics.Records
	// BestHistory[i] is the tracker value after epoch i+1.
	BestHistory []float64
	// CheckpointEpochs lists the 1-based epochs that wrote a checkpoint.
	CheckpointEpochs []int
}

// Best returns the final best validation accuracy.
func (r *Result) Best() float64 {
	if len(r.BestHistory) == 0 {
		return 0
	}
	return r.BestHistory[len(r.BestHistory)-1]
}

// Run executes every epoch and writes the metrics file. On error the run
// stops immediately; no metrics file is written, but checkpoints from earlier
// epochs stay on disk.
func (c *Controller) Run() (*Result, error) {
	if c.Harness == nil || c.Checkpoints == nil {
		return nil, errors.New("trainer: controller needs a harness and a checkpointer")
	}
	if c.Epochs <= 0 {
		return nil, fmt.Errorf("trainer: epochs must be positive, got %d", c.Epochs)
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	out := c.Out
	if out == nil {
		out = io.Discard
	}

	var (
		tracker BestTracker
		result  = &Result{}
	)
	for epoch := 1; epoch <= c.Epochs; epoch++ {
		start := now()
		if err := c.Harness.TrainEpoch(epoch); err != nil {
			return nil, fmt.Errorf("epoch %d: train: %w", epoch, err)
		}
		elapsed := now().Sub(start)

		trainAcc, err := c.Harness.TrainAccuracy()
		if err != nil {
			return nil, fmt.Errorf("epoch %d: training accuracy: %w", epoch, err)
		}
		valAcc, err := c.Harness.ValidationAccuracy()
		if err != nil {
			return nil, fmt.Errorf("epoch %d: validation accuracy: %w", epoch, err)
		}

		fmt.Fprintf(out, "Epoch[%d/%d], training accuracy: %v, validation accuracy: %v, training time: %v\n",
			epoch, c.Epochs, trainAcc, valAcc, elapsed.Seconds())

		if tracker.Observe(valAcc) {
			if err := c.Checkpoints.Save(epoch, valAcc); err != nil {
				return nil, fmt.Errorf("epoch %d: checkpoint: %w", epoch, err)
			}
			result.CheckpointEpochs = append(result.CheckpointEpochs, epoch)
			klog.InfoS("Saved checkpoint", "epoch", epoch, "validationAccuracy", valAcc)
		}
		result.BestHistory = append(result.BestHistory, tracker.Best())

		if c.Scheduler != nil {
			if err := c.Scheduler.Step(epoch); err != nil {
				return nil, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		result.Records = append(result.Records, metrics.Record{
			TrainingTime:       elapsed,
			TrainAccuracy:      trainAcc,
			ValidationAccuracy: valAcc,
		})
	}

	if c.RecordsPath != "" {
		if err := result.Records.Save(c.RecordsPath); err != nil {
			return nil, err
		}
		klog.InfoS("Wrote metrics", "path", c.RecordsPath, "epochs", len(result.Records))
	}
	return result, nil
}

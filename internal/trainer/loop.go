package trainer

import (
	"fmt"
	"math"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/nfnet/internal/cifar"
	"github.com/born-ml/nfnet/internal/optim"
	"k8s.io/klog/v2"
)

// EpochOptions controls logging of a training pass.
type EpochOptions struct {
	Epoch    int // 1-based, for log lines only
	LogEvery int // log the loss every N steps, 0 disables
}

// EpochStats summarizes a training pass.
type EpochStats struct {
	Steps    int
	Samples  int
	MeanLoss float64
}

// TrainEpoch runs one pass over loader. For every batch, in order: forward,
// cross-entropy loss, gradient reset, backward, optimizer step and tape
// clear. No batch is skipped or retried; a non-finite loss stops the pass
// with ErrNonFiniteLoss before the optimizer sees it.
func TrainEpoch[B Backend](
	model Classifier[B],
	opt optim.Optimizer,
	loader *cifar.Loader[B],
	backend B,
	opts EpochOptions,
) (EpochStats, error) {
	model.Train()
	criterion := nn.NewCrossEntropyLoss(backend)

	tape := backend.Tape()
	tape.StartRecording()
	defer tape.Clear()

	var (
		stats     EpochStats
		totalLoss float64
	)
	it := loader.Iter()
	for it.Next() {
		batch := it.Batch()
		step := stats.Steps + 1

		logits := model.Forward(batch.Images)
		loss := criterion.Forward(logits, batch.Labels)

		value := float64(loss.Data()[0])
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return stats, fmt.Errorf("%w: epoch %d step %d: %v", ErrNonFiniteLoss, opts.Epoch, step, value)
		}

		opt.ZeroGrad()
		grads := autodiff.Backward(loss, backend)
		opt.Step(grads)
		tape.Clear()

		stats.Steps = step
		stats.Samples += batch.Size
		totalLoss += value

		if opts.LogEvery > 0 && step%opts.LogEvery == 0 {
			klog.V(1).InfoS("Training step", "epoch", opts.Epoch, "step", step, "loss", value, "lr", opt.GetLR())
		}
	}
	if err := it.Err(); err != nil {
		return stats, err
	}

	if stats.Steps > 0 {
		stats.MeanLoss = totalLoss / float64(stats.Steps)
	}
	return stats, nil
}

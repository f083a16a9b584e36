// Package trainer runs NFNet training: the per-epoch loop, accuracy
// evaluation and the run controller that tracks the best validation accuracy,
// writes checkpoints and records per-epoch metrics.
package trainer

import (
	"errors"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
)

// Common errors.
var (
	ErrNonFiniteLoss = errors.New("trainer: loss is not finite")
	ErrEmptyDataset  = errors.New("trainer: evaluation sequence is empty")
)

// Backend is an autodiff-capable compute backend.
type Backend interface {
	autodiff.BackwardCapable
	Tape() *autodiff.GradientTape
}

// Classifier maps image batches to class logits and has training-only
// behavior (dropout, stochastic depth) that can be switched off.
type Classifier[B tensor.Backend] interface {
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	Train()
	Eval()
}

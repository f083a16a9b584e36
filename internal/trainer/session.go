package trainer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/nfnet/internal/cifar"
	"github.com/born-ml/nfnet/internal/optim"
	"k8s.io/klog/v2"
)

// Session binds a model, its optimizer and both data sequences into a
// Harness.
type Session[B Backend] struct {
	Model      Classifier[B]
	Optimizer  optim.Optimizer
	Train      *cifar.Loader[B] // augmented and shuffled
	Validation *cifar.Loader[B] // fixed order, no augmentation
	Backend    B
	LogEvery   int
}

// TrainEpoch runs one training pass.
func (s *Session[B]) TrainEpoch(epoch int) error {
	stats, err := TrainEpoch(s.Model, s.Optimizer, s.Train, s.Backend, EpochOptions{Epoch: epoch, LogEvery: s.LogEvery})
	if err != nil {
		return err
	}
	klog.V(1).InfoS("Epoch finished", "epoch", epoch, "steps", stats.Steps, "meanLoss", stats.MeanLoss, "lr", s.Optimizer.GetLR())
	return nil
}

// TrainAccuracy re-evaluates the training sequence. The sequence is the
// augmented, shuffled one used for training.
func (s *Session[B]) TrainAccuracy() (float64, error) {
	return Evaluate(s.Model, s.Train, s.Backend)
}

// ValidationAccuracy evaluates the held-out sequence.
func (s *Session[B]) ValidationAccuracy() (float64, error) {
	return Evaluate(s.Model, s.Validation, s.Backend)
}

// ModuleCheckpointer writes a module to a fixed path in the Born format.
// Each save replaces the previous file.
type ModuleCheckpointer[B Backend] struct {
	Module    nn.Module[B]
	Path      string
	ModelType string
	// Metadata is stored with every checkpoint, alongside the epoch and
	// validation accuracy.
	Metadata map[string]string
}

// Save writes the checkpoint via a temporary file in the same directory.
func (c *ModuleCheckpointer[B]) Save(epoch int, validationAccuracy float64) error {
	meta := make(map[string]string, len(c.Metadata)+2)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["epoch"] = strconv.Itoa(epoch)
	meta["validation_accuracy"] = strconv.FormatFloat(validationAccuracy, 'f', -1, 64)

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(c.Path)+".tmp")
	if err := nn.Save(c.Module, tmp, c.ModelType, meta); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/nfnet/internal/cifar"
	"github.com/born-ml/nfnet/internal/config"
	"github.com/born-ml/nfnet/internal/metrics"
	"github.com/born-ml/nfnet/internal/nfnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHarness struct{ epochs int }

func (h *countingHarness) TrainEpoch(int) error                 { h.epochs++; return nil }
func (h *countingHarness) TrainAccuracy() (float64, error)      { return 0, nil }
func (h *countingHarness) ValidationAccuracy() (float64, error) { return 0, nil }

func TestCancellableStopsBetweenEpochs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &countingHarness{}
	h := &cancellable{Harness: inner, ctx: ctx}

	require.NoError(t, h.TrainEpoch(1))
	cancel()
	assert.ErrorIs(t, h.TrainEpoch(2), context.Canceled)
	assert.Equal(t, 1, inner.epochs)
}

func TestDatasetsSynthetic(t *testing.T) {
	s := config.Default()
	s.Synthetic = true

	trainSet, testSet, err := datasets(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, syntheticTrain, trainSet.Len())
	assert.Equal(t, syntheticTest, testSet.Len())
}

func TestDatasetsMissingWithoutDownload(t *testing.T) {
	s := config.Default()
	s.DataDir = filepath.Join(t.TempDir(), "data")
	s.Download = false

	_, _, err := datasets(context.Background(), s)
	assert.ErrorIs(t, err, cifar.ErrDatasetMissing)
}

func tinyConfig() nfnet.Config {
	return nfnet.Config{
		NumClasses:    cifar.NumClasses,
		Width:         []int{8, 16},
		Depth:         []int{1, 1},
		StemChannels:  []int{4, 8},
		FinalConvMult: 2,
		Alpha:         0.2,
		Expansion:     0.5,
		GroupSize:     2,
		SERatio:       0.5,
		DropRate:      0.2,
		StochDepth:    0.25,
		Activation:    nfnet.ActivationGELU,
		Seed:          1,
	}
}

// useTinyModel shrinks the network and the synthetic dataset for the
// duration of a test.
func useTinyModel(t *testing.T) {
	t.Helper()
	prevConfig, prevTrain, prevTest := modelConfig, syntheticTrain, syntheticTest
	t.Cleanup(func() {
		modelConfig, syntheticTrain, syntheticTest = prevConfig, prevTrain, prevTest
	})
	modelConfig = func(config.Variant) (nfnet.Config, error) { return tinyConfig(), nil }
	syntheticTrain, syntheticTest = 48, 40
}

func TestRunSyntheticEndToEnd(t *testing.T) {
	useTinyModel(t)
	dir := t.TempDir()
	ckpt := filepath.Join(dir, "nfnet.ckpt")

	code := run([]string{
		"-synthetic",
		"-num_epochs", "1",
		"-batch_size", "16",
		"-seed", "3",
		"-device", "cpu",
		"-records_dir", dir,
		"-checkpoint", ckpt,
	})
	require.Equal(t, 0, code)

	records, err := metrics.Load(filepath.Join(dir, "F0_records.npy"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.GreaterOrEqual(t, records[0].ValidationAccuracy, 0.0)
	assert.LessOrEqual(t, records[0].ValidationAccuracy, 100.0)

	// Labels are balanced, so a first-epoch score of exactly zero would need
	// every prediction wrong; with the fixed seed the first epoch checkpoints.
	require.FileExists(t, ckpt)
	backend := autodiff.New(cpu.New())
	model, err := nfnet.New(tinyConfig(), backend)
	require.NoError(t, err)
	header, err := nn.Load(ckpt, backend, model)
	require.NoError(t, err)
	assert.Equal(t, "nfnet-F0", header.ModelType)
	assert.Equal(t, "1", header.Metadata["epoch"])
	assert.Equal(t, "cpu", header.Metadata["device"])
	assert.NotEmpty(t, header.Metadata["run_id"])
}

func TestRunExitCodes(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"malformed number", []string{"-num_epochs=abc"}, 1},
		{"unknown flag", []string{"-no_such_flag"}, 1},
		{"invalid variant", []string{"-variant", "F9"}, 1},
		{"non-positive batch size", []string{"-batch_size", "0"}, 1},
		{"help", []string{"-help"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}

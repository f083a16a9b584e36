package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"
	"github.com/born-ml/nfnet/internal/cifar"
	"github.com/born-ml/nfnet/internal/config"
	"github.com/born-ml/nfnet/internal/device"
	"github.com/born-ml/nfnet/internal/nfnet"
	"github.com/born-ml/nfnet/internal/optim"
	"github.com/born-ml/nfnet/internal/trainer"
	"k8s.io/klog/v2"
)

// Sizes of the in-memory dataset used by --synthetic.
var (
	syntheticTrain = 512
	syntheticTest  = 128
)

// modelConfig resolves the network built for a variant.
var modelConfig = func(variant config.Variant) (nfnet.Config, error) {
	return nfnet.ConfigFor(string(variant), cifar.NumClasses)
}

func train[B tensor.Backend](ctx context.Context, s config.Settings, base B, dev config.Device, runID string) error {
	host := device.Describe()
	klog.InfoS("Using device", "device", dev, "host", host.String())

	backend := autodiff.New(base)

	trainSet, testSet, err := datasets(ctx, s)
	if err != nil {
		return err
	}
	trainLoader, err := cifar.NewLoader(trainSet, backend, cifar.LoaderOptions{
		BatchSize: s.BatchSize,
		Shuffle:   true,
		Augment:   true,
		Seed:      s.Seed,
	})
	if err != nil {
		return err
	}
	testLoader, err := cifar.NewLoader(testSet, backend, cifar.LoaderOptions{BatchSize: s.BatchSize})
	if err != nil {
		return err
	}

	cfg, err := modelConfig(s.Variant)
	if err != nil {
		return err
	}
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	model, err := nfnet.New(cfg, backend)
	if err != nil {
		return err
	}
	klog.InfoS("Built model", "variant", s.Variant, "blocks", cfg.NumBlocks(), "parameters", model.NumParameters())

	opt := optim.NewSGDAGC(model.Parameters(), optim.DefaultSGDAGCConfig(float32(s.LR)))
	sched := optim.NewCosineAnnealing(opt, s.LR, s.LRHorizon, 0)

	controller := &trainer.Controller{
		Harness: &cancellable{
			ctx: ctx,
			Harness: &trainer.Session[*autodiff.Backend[B]]{
				Model:      model,
				Optimizer:  opt,
				Train:      trainLoader,
				Validation: testLoader,
				Backend:    backend,
				LogEvery:   s.LogEvery,
			},
		},
		Scheduler: sched,
		Checkpoints: &trainer.ModuleCheckpointer[*autodiff.Backend[B]]{
			Module:    model,
			Path:      s.CheckpointPath,
			ModelType: "nfnet-" + string(s.Variant),
			Metadata: map[string]string{
				"variant": string(s.Variant),
				"run_id":  runID,
				"device":  string(dev),
				"host":    host.String(),
			},
		},
		Epochs:      s.Epochs,
		RecordsPath: filepath.Join(s.RecordsDir, s.RecordsFile()),
		Out:         os.Stdout,
	}
	result, err := controller.Run()
	if err != nil {
		return err
	}
	klog.InfoS("Training complete", "bestValidationAccuracy", result.Best(), "checkpoints", len(result.CheckpointEpochs))
	return nil
}

// datasets returns the training and test splits. Only the training split is
// downloaded; a missing test split is an error.
func datasets(ctx context.Context, s config.Settings) (*cifar.Dataset, *cifar.Dataset, error) {
	if s.Synthetic {
		klog.InfoS("Using synthetic dataset", "train", syntheticTrain, "test", syntheticTest)
		return cifar.Synthetic(syntheticTrain, s.Seed+1), cifar.Synthetic(syntheticTest, s.Seed+2), nil
	}
	if s.Download {
		if err := cifar.EnsureDownloaded(ctx, s.DataDir, cifar.DownloadOptions{}); err != nil {
			return nil, nil, err
		}
	}
	trainSet, err := cifar.Load(s.DataDir, cifar.Train)
	if err != nil {
		return nil, nil, fmt.Errorf("load training split: %w", err)
	}
	testSet, err := cifar.Load(s.DataDir, cifar.Test)
	if err != nil {
		return nil, nil, fmt.Errorf("load test split: %w", err)
	}
	klog.InfoS("Loaded CIFAR-10", "train", trainSet.Len(), "test", testSet.Len())
	return trainSet, testSet, nil
}

// cancellable stops between epochs once ctx is done.
type cancellable struct {
	trainer.Harness
	ctx context.Context
}

func (c *cancellable) TrainEpoch(epoch int) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	return c.Harness.TrainEpoch(epoch)
}

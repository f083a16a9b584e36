// Command nfnet trains a Normalizer-Free ResNet on CIFAR-10.
//
// Usage:
//
//	nfnet --variant F0 --num_epochs 100 --batch_size 128 --lr 0.1
//
// Progress is printed once per epoch. The best checkpoint (by validation
// accuracy) is written to --checkpoint and the per-epoch metrics to
// <records_dir>/<variant>_records.npy.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/born-ml/nfnet/internal/config"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run parses args and trains. It returns the process exit code: 0 on success
// or -help, 1 on any failure including malformed flags.
func run(args []string) int {
	fs := flag.NewFlagSet("nfnet", flag.ContinueOnError)
	klog.InitFlags(fs)
	defer klog.Flush()

	settings, err := config.Parse(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		klog.ErrorS(err, "Invalid configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runID := uuid.NewString()
	klog.InfoS("Starting run", "runID", runID, "variant", settings.Variant,
		"epochs", settings.Epochs, "batchSize", settings.BatchSize, "lr", settings.LR)

	if err := start(ctx, settings, runID); err != nil {
		klog.ErrorS(err, "Training failed", "runID", runID)
		return 1
	}
	return 0
}

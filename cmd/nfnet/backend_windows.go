//go:build windows

package main

import (
	"context"
	"fmt"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"
	"github.com/born-ml/nfnet/internal/config"
	"github.com/born-ml/nfnet/internal/device"
)

func start(ctx context.Context, s config.Settings, runID string) error {
	dev, err := device.Select(s.Device, webgpu.IsAvailable())
	if err != nil {
		return err
	}
	if dev == config.DeviceCPU {
		return train(ctx, s, cpu.New(), dev, runID)
	}

	gpu, err := webgpu.New()
	if err != nil {
		return fmt.Errorf("init webgpu: %w", err)
	}
	defer gpu.Release()
	return train(ctx, s, gpu, dev, runID)
}

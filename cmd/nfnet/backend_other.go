//go:build !windows

package main

import (
	"context"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/nfnet/internal/config"
	"github.com/born-ml/nfnet/internal/device"
)

// start runs on the CPU; the WebGPU backend is only built on Windows.
func start(ctx context.Context, s config.Settings, runID string) error {
	if _, err := device.Select(s.Device, false); err != nil {
		return err
	}
	return train(ctx, s, cpu.New(), config.DeviceCPU, runID)
}

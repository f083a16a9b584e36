// Package config parses the command-line surface of the NFNet trainer into an
// immutable Settings value.
//
// Flags keep the names of the reference training script (--variant, --lr,
// --num_epochs, --batch_size) so existing launch scripts keep working. An
// optional YAML file supplies the same keys; flags given explicitly on the
// command line win over the file.
//
// Example:
//
//	fs := flag.NewFlagSet("nfnet", flag.ContinueOnError)
//	settings, err := config.Parse(fs, os.Args[1:])
//	if err != nil {
//	    return err
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Common errors.
var (
	ErrInvalidVariant = errors.New("invalid model variant")
	ErrInvalidSetting = errors.New("invalid setting")
)

// Variant identifies one of the NFNet model sizes.
type Variant string

// Supported variants.
const (
	F0 Variant = "F0"
	F1 Variant = "F1"
	F2 Variant = "F2"
	F3 Variant = "F3"
	F4 Variant = "F4"
	F5 Variant = "F5"
	F6 Variant = "F6"
	F7 Variant = "F7"
)

// Variants lists every accepted variant in order.
var Variants = []Variant{F0, F1, F2, F3, F4, F5, F6, F7}

// ParseVariant validates s against the enumerated variants.
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if string(v) == s {
			return v, nil
		}
	}
	names := make([]string, len(Variants))
	for i, v := range Variants {
		names[i] = string(v)
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidVariant, s, strings.Join(names, ", "))
}

// Device selects the compute backend.
type Device string

// Supported devices.
const (
	DeviceAuto   Device = "auto"
	DeviceCPU    Device = "cpu"
	DeviceWebGPU Device = "webgpu"
)

// Defaults.
const (
	DefaultVariant        = F0
	DefaultLR             = 0.1
	DefaultEpochs         = 100
	DefaultBatchSize      = 128
	DefaultDataDir        = "./data/"
	DefaultCheckpointPath = "nfnet.ckpt"
	DefaultRecordsDir     = "."
	DefaultLRHorizon      = 200
)

// Settings is the parsed run configuration. It is passed by value and never
// mutated after Parse returns.
type Settings struct {
	Variant   Variant `yaml:"variant"`
	LR        float64 `yaml:"lr"`
	Epochs    int     `yaml:"num_epochs"`
	BatchSize int     `yaml:"batch_size"`

	DataDir        string `yaml:"data_dir"`
	Download       bool   `yaml:"download"`
	Synthetic      bool   `yaml:"synthetic"`
	CheckpointPath string `yaml:"checkpoint"`
	RecordsDir     string `yaml:"records_dir"`
	Seed           int64  `yaml:"seed"`
	Device         Device `yaml:"device"`
	LogEvery       int    `yaml:"log_every"`
	LRHorizon      int    `yaml:"lr_horizon"`
}

// Default returns the settings used when no flag or file overrides them.
func Default() Settings {
	return Settings{
		Variant:        DefaultVariant,
		LR:             DefaultLR,
		Epochs:         DefaultEpochs,
		BatchSize:      DefaultBatchSize,
		DataDir:        DefaultDataDir,
		Download:       true,
		CheckpointPath: DefaultCheckpointPath,
		RecordsDir:     DefaultRecordsDir,
		Device:         DeviceAuto,
		LRHorizon:      DefaultLRHorizon,
	}
}

// Validate verifies the settings are runnable.
func (s Settings) Validate() error {
	if _, err := ParseVariant(string(s.Variant)); err != nil {
		return err
	}
	if s.LR <= 0 {
		return fmt.Errorf("%w: lr must be > 0 (got %g)", ErrInvalidSetting, s.LR)
	}
	if s.Epochs <= 0 {
		return fmt.Errorf("%w: num_epochs must be > 0 (got %d)", ErrInvalidSetting, s.Epochs)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0 (got %d)", ErrInvalidSetting, s.BatchSize)
	}
	if s.LRHorizon <= 0 {
		return fmt.Errorf("%w: lr_horizon must be > 0 (got %d)", ErrInvalidSetting, s.LRHorizon)
	}
	if s.LogEvery < 0 {
		return fmt.Errorf("%w: log_every must be >= 0 (got %d)", ErrInvalidSetting, s.LogEvery)
	}
	if s.CheckpointPath == "" {
		return fmt.Errorf("%w: checkpoint path is empty", ErrInvalidSetting)
	}
	switch s.Device {
	case DeviceAuto, DeviceCPU, DeviceWebGPU:
	default:
		return fmt.Errorf("%w: device %q: must be one of auto, cpu, webgpu", ErrInvalidSetting, s.Device)
	}
	return nil
}

// RecordsFile returns the metrics file name for the configured variant.
func (s Settings) RecordsFile() string {
	return string(s.Variant) + "_records.npy"
}

// Parse registers the trainer flags on fs, parses args and returns validated
// settings. Values from --config are applied first; flags set explicitly on
// the command line override them.
func Parse(fs *flag.FlagSet, args []string) (Settings, error) {
	s := Default()

	var (
		variant    = fs.String("variant", string(s.Variant), "NFNet variant (F0..F7)")
		lr         = fs.Float64("lr", s.LR, "the learning rate")
		epochs     = fs.Int("num_epochs", s.Epochs, "the number of the epochs")
		batchSize  = fs.Int("batch_size", s.BatchSize, "batch sizes")
		dataDir    = fs.String("data_dir", s.DataDir, "CIFAR-10 dataset directory")
		download   = fs.Bool("download", s.Download, "download the training split if it is missing")
		synthetic  = fs.Bool("synthetic", s.Synthetic, "use a small deterministic in-memory dataset")
		checkpoint = fs.String("checkpoint", s.CheckpointPath, "checkpoint file written on validation improvement")
		recordsDir = fs.String("records_dir", s.RecordsDir, "directory for the <variant>_records.npy file")
		seed       = fs.Int64("seed", s.Seed, "shuffle/augmentation seed (0 = time-seeded)")
		device     = fs.String("device", string(s.Device), "compute device: auto, cpu or webgpu")
		logEvery   = fs.Int("log_every", s.LogEvery, "log training loss every N steps (0 = off)")
		lrHorizon  = fs.Int("lr_horizon", s.LRHorizon, "cosine schedule horizon in epochs")
		configPath = fs.String("config", "", "optional YAML file with the same keys as the flags")
	)

	if err := fs.Parse(args); err != nil {
		return Settings{}, err
	}
	if fs.NArg() > 0 {
		return Settings{}, fmt.Errorf("%w: unexpected arguments %v", ErrInvalidSetting, fs.Args())
	}

	if *configPath != "" {
		fileSettings, err := Load(*configPath)
		if err != nil {
			return Settings{}, err
		}
		s = fileSettings
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "variant":
			s.Variant = Variant(*variant)
		case "lr":
			s.LR = *lr
		case "num_epochs":
			s.Epochs = *epochs
		case "batch_size":
			s.BatchSize = *batchSize
		case "data_dir":
			s.DataDir = *dataDir
		case "download":
			s.Download = *download
		case "synthetic":
			s.Synthetic = *synthetic
		case "checkpoint":
			s.CheckpointPath = *checkpoint
		case "records_dir":
			s.RecordsDir = *recordsDir
		case "seed":
			s.Seed = *seed
		case "device":
			s.Device = Device(*device)
		case "log_every":
			s.LogEvery = *logEvery
		case "lr_horizon":
			s.LRHorizon = *lrHorizon
		}
	})

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads settings from a YAML file. Keys absent from the file keep their
// defaults. Unknown keys are rejected.
func Load(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	s := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}

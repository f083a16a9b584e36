package config

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("nfnet", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseDefaults(t *testing.T) {
	s, err := Parse(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, F0, s.Variant)
	assert.Equal(t, 0.1, s.LR)
	assert.Equal(t, 100, s.Epochs)
	assert.Equal(t, 128, s.BatchSize)
	assert.Equal(t, "nfnet.ckpt", s.CheckpointPath)
	assert.Equal(t, DeviceAuto, s.Device)
	assert.Equal(t, 200, s.LRHorizon)
	assert.True(t, s.Download)
	assert.Equal(t, "F0_records.npy", s.RecordsFile())
}

func TestParseSuppliedValues(t *testing.T) {
	for _, v := range Variants {
		t.Run(string(v), func(t *testing.T) {
			s, err := Parse(newFlagSet(), []string{
				"--variant", string(v),
				"--lr", "0.05",
				"--num_epochs", "3",
				"--batch_size", "32",
			})
			require.NoError(t, err)
			assert.Equal(t, v, s.Variant)
			assert.Equal(t, 0.05, s.LR)
			assert.Equal(t, 3, s.Epochs)
			assert.Equal(t, 32, s.BatchSize)
			assert.Equal(t, string(v)+"_records.npy", s.RecordsFile())
		})
	}
}

func TestParseInvalidVariant(t *testing.T) {
	_, err := Parse(newFlagSet(), []string{"--variant", "F8"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidVariant))
	assert.Contains(t, err.Error(), `"F8"`)
	assert.Contains(t, err.Error(), "F0, F1, F2, F3, F4, F5, F6, F7")
}

func TestParseRejectsNonPositive(t *testing.T) {
	cases := map[string][]string{
		"lr":         {"--lr", "0"},
		"epochs":     {"--num_epochs", "-1"},
		"batch_size": {"--batch_size", "0"},
		"horizon":    {"--lr_horizon", "0"},
		"log_every":  {"--log_every", "-5"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(newFlagSet(), args)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSetting)
		})
	}
}

func TestParseRejectsUnknownDevice(t *testing.T) {
	_, err := Parse(newFlagSet(), []string{"--device", "tpu"})
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestParseRejectsPositionalArgs(t *testing.T) {
	_, err := Parse(newFlagSet(), []string{"train"})
	assert.ErrorIs(t, err, ErrInvalidSetting)
}

func TestParseConfigFileWithFlagOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := "variant: F3\nlr: 0.2\nnum_epochs: 7\nbatch_size: 64\nseed: 9\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Parse(newFlagSet(), []string{"--config", path, "--num_epochs", "2"})
	require.NoError(t, err)

	assert.Equal(t, F3, s.Variant)
	assert.Equal(t, 0.2, s.LR)
	assert.Equal(t, 2, s.Epochs, "explicit flag overrides file")
	assert.Equal(t, 64, s.BatchSize)
	assert.Equal(t, int64(9), s.Seed)
	assert.Equal(t, DefaultCheckpointPath, s.CheckpointPath, "absent keys keep defaults")
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimizer: adam\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("F7")
	require.NoError(t, err)
	assert.Equal(t, F7, v)

	_, err = ParseVariant("f0")
	assert.ErrorIs(t, err, ErrInvalidVariant)
}

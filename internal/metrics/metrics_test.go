package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() Records {
	return Records{
		{TrainingTime: 1500 * time.Millisecond, TrainAccuracy: 35.5, ValidationAccuracy: 40},
		{TrainingTime: 2 * time.Second, TrainAccuracy: 61.25, ValidationAccuracy: 58.75},
	}
}

func TestMatrixLayout(t *testing.T) {
	m := sample().Matrix()
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, Columns, cols)
	assert.Equal(t, []float64{1.5, 35.5, 40}, m.RawRowView(0))
	assert.Equal(t, []float64{2, 61.25, 58.75}, m.RawRowView(1))

	assert.Nil(t, Records{}.Matrix())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "F0_records.npy")
	require.NoError(t, sample().Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "F1_records.npy")
	require.NoError(t, sample().Save(path))
	require.NoError(t, sample()[:1].Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSaveRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]Records{
		"empty":          {},
		"negative time":  {{TrainingTime: -time.Second, TrainAccuracy: 1, ValidationAccuracy: 1}},
		"accuracy > 100": {{TrainingTime: time.Second, TrainAccuracy: 101, ValidationAccuracy: 1}},
		"accuracy < 0":   {{TrainingTime: time.Second, TrainAccuracy: 1, ValidationAccuracy: -1}},
	}
	for name, rs := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".npy")
			assert.ErrorIs(t, rs.Save(path), ErrInvalidRecord)
			assert.NoFileExists(t, path)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.npy"))
	assert.Error(t, err)
}

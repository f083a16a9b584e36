// Package metrics holds the per-epoch training record and its .npy encoding.
//
// The file layout is a float64 array of shape (epochs, 3) with columns
// [training_time_seconds, training_accuracy, validation_accuracy], readable
// with numpy.load.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Columns is the number of values stored per epoch.
const Columns = 3

// ErrInvalidRecord is returned for rows that cannot describe a real epoch.
var ErrInvalidRecord = errors.New("metrics: invalid record")

// Record is one epoch of results.
type Record struct {
	TrainingTime       time.Duration
	TrainAccuracy      float64 // percent
	ValidationAccuracy float64 // percent
}

// Validate checks the duration is non-negative and both accuracies lie in
// [0, 100].
func (r Record) Validate() error {
	if r.TrainingTime < 0 {
		return fmt.Errorf("%w: negative training time %v", ErrInvalidRecord, r.TrainingTime)
	}
	for _, acc := range []float64{r.TrainAccuracy, r.ValidationAccuracy} {
		if math.IsNaN(acc) || acc < 0 || acc > 100 {
			return fmt.Errorf("%w: accuracy %g outside [0, 100]", ErrInvalidRecord, acc)
		}
	}
	return nil
}

// Records is the ordered per-epoch history of a run.
type Records []Record

// Matrix lays the records out as an (epochs, 3) matrix. It returns nil for an
// empty history.
func (rs Records) Matrix() *mat.Dense {
	if len(rs) == 0 {
		return nil
	}
	data := make([]float64, 0, len(rs)*Columns)
	for _, r := range rs {
		data = append(data, r.TrainingTime.Seconds(), r.TrainAccuracy, r.ValidationAccuracy)
	}
	return mat.NewDense(len(rs), Columns, data)
}

// FromMatrix is the inverse of Matrix.
func FromMatrix(m *mat.Dense) (Records, error) {
	rows, cols := m.Dims()
	if cols != Columns {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrInvalidRecord, Columns, cols)
	}
	rs := make(Records, rows)
	for i := range rs {
		rs[i] = Record{
			TrainingTime:       time.Duration(m.At(i, 0) * float64(time.Second)),
			TrainAccuracy:      m.At(i, 1),
			ValidationAccuracy: m.At(i, 2),
		}
	}
	return rs, nil
}

// Save writes the records to path as .npy. The file is written to a
// temporary name in the same directory and renamed into place.
func (rs Records) Save(path string) error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: no epochs recorded", ErrInvalidRecord)
	}
	for i, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("epoch %d: %w", i+1, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("metrics: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".records-*.npy")
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := npyio.Write(tmp, rs.Matrix()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("metrics: encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// Load reads a records file written by Save.
func Load(path string) (Records, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("metrics: decode %s: %w", path, err)
	}
	return FromMatrix(&m)
}

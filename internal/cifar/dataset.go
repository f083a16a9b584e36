// Package cifar loads the CIFAR-10 binary dataset and turns it into batches of
// Born tensors for training and evaluation.
//
// The binary distribution stores each example as one label byte followed by
// 3072 pixel bytes: 1024 red, 1024 green, then 1024 blue values in row-major
// order. That channel-major layout is already the [C, H, W] layout expected by
// Conv2D, so examples are kept as raw bytes and only converted to float32 when
// a batch is assembled.
//
// Files expected under the dataset root:
//   - cifar-10-batches-bin/data_batch_1.bin ... data_batch_5.bin (training, 50,000 examples)
//   - cifar-10-batches-bin/test_batch.bin (evaluation, 10,000 examples)
package cifar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
)

// Dataset geometry.
const (
	NumClasses  = 10
	Channels    = 3
	ImageSize   = 32
	PlaneBytes  = ImageSize * ImageSize
	ImageBytes  = Channels * PlaneBytes
	RecordBytes = 1 + ImageBytes

	// BatchDir is the directory created by extracting the binary archive.
	BatchDir = "cifar-10-batches-bin"
)

// Common errors.
var (
	ErrDatasetMissing = errors.New("cifar: dataset file not found")
	ErrCorruptBatch   = errors.New("cifar: corrupt batch file")
)

// Split selects the training or held-out part of the dataset.
type Split int

// Dataset splits.
const (
	Train Split = iota
	Test
)

// String returns the split name.
func (s Split) String() string {
	if s == Train {
		return "train"
	}
	return "test"
}

// Files returns the batch file names that make up the split.
func (s Split) Files() []string {
	if s == Test {
		return []string{"test_batch.bin"}
	}
	return []string{
		"data_batch_1.bin",
		"data_batch_2.bin",
		"data_batch_3.bin",
		"data_batch_4.bin",
		"data_batch_5.bin",
	}
}

// Dataset holds decoded examples in file order.
type Dataset struct {
	Images []byte  // [n * ImageBytes], channel-major per example
	Labels []uint8 // [n]
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Image returns the raw pixel bytes of example i.
func (d *Dataset) Image(i int) []byte {
	return d.Images[i*ImageBytes : (i+1)*ImageBytes]
}

// ReadBatch decodes one CIFAR-10 binary batch file.
func ReadBatch(r io.Reader) (*Dataset, error) {
	ds := &Dataset{}
	if err := ds.readFrom(r); err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *Dataset) readFrom(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cifar: read batch: %w", err)
	}
	if len(data) == 0 || len(data)%RecordBytes != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of %d", ErrCorruptBatch, len(data), RecordBytes)
	}

	n := len(data) / RecordBytes
	d.Images = growBytes(d.Images, n*ImageBytes)
	d.Labels = growBytes(d.Labels, n)
	for i := 0; i < n; i++ {
		record := data[i*RecordBytes : (i+1)*RecordBytes]
		if record[0] >= NumClasses {
			return fmt.Errorf("%w: record %d has label %d", ErrCorruptBatch, i, record[0])
		}
		d.Labels = append(d.Labels, record[0])
		d.Images = append(d.Images, record[1:]...)
	}
	return nil
}

func growBytes(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b
	}
	grown := make([]byte, len(b), len(b)+n)
	copy(grown, b)
	return grown
}

// Load reads every batch file of split from root/cifar-10-batches-bin.
func Load(root string, split Split) (*Dataset, error) {
	dir := filepath.Join(root, BatchDir)
	ds := &Dataset{}
	for _, name := range split.Files() {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, path)
			}
			return nil, fmt.Errorf("cifar: open %s: %w", path, err)
		}
		err = ds.readFrom(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return ds, nil
}

// Present reports whether every file of split exists under root.
func Present(root string, split Split) bool {
	for _, name := range split.Files() {
		info, err := os.Stat(filepath.Join(root, BatchDir, name))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Synthetic builds a small deterministic dataset for smoke runs and tests.
//
// Each class gets a distinct horizontal band of bright pixels in a distinct
// channel so the classes are separable; seeded noise is added on top.
func Synthetic(n int, seed int64) *Dataset {
	//nolint:gosec // Synthetic pixels, not security-critical
	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{
		Images: make([]byte, n*ImageBytes),
		Labels: make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		label := uint8(i % NumClasses)
		ds.Labels[i] = label

		img := ds.Image(i)
		for j := range img {
			img[j] = uint8(rng.Intn(64))
		}
		plane := img[int(label)%Channels*PlaneBytes : (int(label)%Channels+1)*PlaneBytes]
		row0 := int(label) * 3
		for y := row0; y < row0+3 && y < ImageSize; y++ {
			for x := 0; x < ImageSize; x++ {
				plane[y*ImageSize+x] = 255
			}
		}
	}
	return ds
}

package cifar

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/born-ml/born/tensor"
)

// ErrInvalidBatchSize is returned for non-positive batch sizes.
var ErrInvalidBatchSize = errors.New("cifar: batch size must be positive")

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	Augment   bool
	Seed      int64 // 0 seeds from the clock
}

// Batch is one mini-batch ready for the model.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [n, 3, 32, 32]
	Labels *tensor.Tensor[int32, B]   // [n]
	Size   int
}

// Loader turns a Dataset into a sequence of batches. The final partial batch
// is kept, so an epoch always yields ceil(Len/BatchSize) batches.
//
// A Loader is not safe for concurrent use.
type Loader[B tensor.Backend] struct {
	data    *Dataset
	backend B
	opts    LoaderOptions
	rng     *rand.Rand
}

// NewLoader creates a loader over ds.
func NewLoader[B tensor.Backend](ds *Dataset, backend B, opts LoaderOptions) (*Loader[B], error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, opts.BatchSize)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Loader[B]{
		data:    ds,
		backend: backend,
		opts:    opts,
		//nolint:gosec // Shuffling and augmentation, not security-critical
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Len returns the number of examples.
func (l *Loader[B]) Len() int {
	return l.data.Len()
}

// NumBatches returns the number of batches in one pass.
func (l *Loader[B]) NumBatches() int {
	return (l.data.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Iter starts a new pass over the data. Shuffled loaders draw a fresh order
// on every call.
func (l *Loader[B]) Iter() *Iterator[B] {
	n := l.data.Len()
	var order []int
	if l.opts.Shuffle {
		order = l.rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	return &Iterator[B]{loader: l, order: order}
}

// Iterator walks one pass of a Loader.
//
//	it := loader.Iter()
//	for it.Next() {
//	    batch := it.Batch()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[B tensor.Backend] struct {
	loader *Loader[B]
	order  []int
	pos    int
	batch  Batch[B]
	err    error
}

// Next assembles the next batch. It returns false at the end of the pass or
// on error.
func (it *Iterator[B]) Next() bool {
	if it.err != nil || it.pos >= len(it.order) {
		return false
	}
	l := it.loader
	end := min(it.pos+l.opts.BatchSize, len(it.order))
	indices := it.order[it.pos:end]
	it.pos = end

	n := len(indices)
	pixels := make([]float32, n*ImageBytes)
	labels := make([]int32, n)
	for i, idx := range indices {
		dst := pixels[i*ImageBytes : (i+1)*ImageBytes]
		if l.opts.Augment {
			Augment(dst, l.data.Image(idx), RandomCrop(l.rng))
		} else {
			Normalize(dst, l.data.Image(idx))
		}
		labels[i] = int32(l.data.Labels[idx])
	}

	images, err := tensor.FromSlice(pixels, tensor.Shape{n, Channels, ImageSize, ImageSize}, l.backend)
	if err != nil {
		it.err = fmt.Errorf("cifar: build image batch: %w", err)
		return false
	}
	targets, err := tensor.FromSlice(labels, tensor.Shape{n}, l.backend)
	if err != nil {
		it.err = fmt.Errorf("cifar: build label batch: %w", err)
		return false
	}
	it.batch = Batch[B]{Images: images, Labels: targets, Size: n}
	return true
}

// Batch returns the batch assembled by the last successful Next.
func (it *Iterator[B]) Batch() Batch[B] {
	return it.batch
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator[B]) Err() error {
	return it.err
}

package optim

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/blas/blas32"
)

// SGDAGC is SGD with momentum, weight decay and adaptive gradient clipping.
//
// Update rule for a parameter w with gradient g:
//
//	g = agc(g, w)               // skipped for excluded parameters
//	d = g + weightDecay * w
//	buf = d                     // first step
//	buf = momentum * buf + d    // later steps
//	d = d + momentum * buf      // Nesterov, otherwise d = buf
//	w = w - lr * d
//
// Parameters are matched to exclusions by name, so the classifier head can be
// left unclipped.
type SGDAGC[B tensor.Backend] struct {
	params  []*nn.Parameter[B]
	cfg     SGDAGCConfig
	lr      float32
	buffers map[*nn.Parameter[B]][]float32
	scratch []float32
}

// SGDAGCConfig holds configuration for SGDAGC.
type SGDAGCConfig struct {
	LR          float32
	Momentum    float32
	Nesterov    bool
	WeightDecay float32
	Clipping    float32 // AGC clipping threshold
	Eps         float32 // floor on the parameter norm

	// Exclude lists parameter name prefixes that skip clipping. A prefix
	// matches the name itself or any name below it ("fc" matches "fc.weight").
	Exclude []string
}

// DefaultSGDAGCConfig returns the NFNet training recipe for the given rate.
func DefaultSGDAGCConfig(lr float32) SGDAGCConfig {
	return SGDAGCConfig{
		LR:          lr,
		Momentum:    0.9,
		Nesterov:    true,
		WeightDecay: 5e-4,
		Clipping:    0.1,
		Eps:         1e-3,
		Exclude:     []string{"fc"},
	}
}

// NewSGDAGC creates the optimizer over params.
func NewSGDAGC[B tensor.Backend](params []*nn.Parameter[B], cfg SGDAGCConfig) *SGDAGC[B] {
	if cfg.LR == 0 {
		cfg.LR = 0.1
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-3
	}
	return &SGDAGC[B]{
		params:  params,
		cfg:     cfg,
		lr:      cfg.LR,
		buffers: make(map[*nn.Parameter[B]][]float32),
	}
}

// Step performs a single optimization step. Parameters without a gradient are
// skipped and keep their momentum buffer.
func (s *SGDAGC[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	for _, param := range s.params {
		grad := getGradient(param, grads)
		if grad == nil {
			continue
		}

		w := param.Tensor().Raw().AsFloat32()
		g := grad.AsFloat32()
		if len(g) != len(w) {
			panic(fmt.Sprintf("optim: gradient for %q has %d elements, parameter has %d", param.Name(), len(g), len(w)))
		}

		d := s.scratchOf(len(w))
		copy(d, g)

		if s.cfg.Clipping > 0 && !s.excluded(param.Name()) {
			ClipUnitwise(d, w, UnitSize(param.Tensor().Shape()), s.cfg.Clipping, s.cfg.Eps)
		}
		if s.cfg.WeightDecay != 0 {
			blas32.Axpy(s.cfg.WeightDecay, vector(w), vector(d))
		}

		update := d
		if s.cfg.Momentum != 0 {
			buf, ok := s.buffers[param]
			if !ok {
				buf = make([]float32, len(d))
				copy(buf, d)
				s.buffers[param] = buf
			} else {
				blas32.Scal(s.cfg.Momentum, vector(buf))
				blas32.Axpy(1, vector(d), vector(buf))
			}
			if s.cfg.Nesterov {
				blas32.Axpy(s.cfg.Momentum, vector(buf), vector(d))
			} else {
				update = buf
			}
		}

		blas32.Axpy(-s.lr, vector(update), vector(w))
	}
}

func (s *SGDAGC[B]) scratchOf(n int) []float32 {
	if cap(s.scratch) < n {
		s.scratch = make([]float32, n)
	}
	return s.scratch[:n]
}

func (s *SGDAGC[B]) excluded(name string) bool {
	for _, prefix := range s.cfg.Exclude {
		if name == prefix || strings.HasPrefix(name, prefix+".") {
			return true
		}
	}
	return false
}

// ZeroGrad clears gradients for all parameters.
func (s *SGDAGC[B]) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGDAGC[B]) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGDAGC[B]) SetLR(lr float32) {
	s.lr = lr
}

// MomentumBuffer returns a copy of the momentum buffer for param, or nil
// before its first update.
func (s *SGDAGC[B]) MomentumBuffer(param *nn.Parameter[B]) []float32 {
	buf, ok := s.buffers[param]
	if !ok {
		return nil
	}
	out := make([]float32, len(buf))
	copy(out, buf)
	return out
}

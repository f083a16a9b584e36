package nfnet

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// SqueezeExcite produces a per-channel gate in (0, 1) from globally pooled
// features: sigmoid(fc1(relu(fc0(pool(x))))).
type SqueezeExcite[B tensor.Backend] struct {
	channels int
	fc0      *Dense[B]
	fc1      *Dense[B]
}

// NewSqueezeExcite creates an SE module with hidden width channels*ratio.
func NewSqueezeExcite[B tensor.Backend](name string, channels int, ratio float64, rng *rand.Rand, backend B) *SqueezeExcite[B] {
	hidden := max(1, int(float64(channels)*ratio))
	return &SqueezeExcite[B]{
		channels: channels,
		fc0:      NewDense(name+".fc0", channels, hidden, fanInStd(channels), rng, backend),
		fc1:      NewDense(name+".fc1", hidden, channels, fanInStd(hidden), rng, backend),
	}
}

// Forward returns the gate shaped [N, C, 1, 1].
func (s *SqueezeExcite[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	n := x.Shape()[0]
	h := nn.ReLUFunc(s.fc0.Forward(globalAvgPool(x)))
	return nn.SigmoidFunc(s.fc1.Forward(h)).Reshape(n, s.channels, 1, 1)
}

// Parameters returns the parameters of both projections.
func (s *SqueezeExcite[B]) Parameters() []*nn.Parameter[B] {
	return append(s.fc0.Parameters(), s.fc1.Parameters()...)
}

// BlockSpec describes one NFBlock.
type BlockSpec struct {
	In, Out    int
	Stride     int
	Alpha      float32
	Beta       float32 // 1 / expected std of the block input
	Expansion  float64
	GroupSize  int
	SERatio    float64
	StochDepth float64
}

// Block is a normalizer-free bottleneck residual block:
//
//	out = act(x) * beta
//	shortcut = x, or conv_shortcut(avgpool(out)) when the shape changes
//	out = conv2(act(conv1b(act(conv1(act(conv0(out)))))))
//	out = 2 * se(out) * out
//	return stochdepth(out) * skip_gain * alpha + shortcut
//
// skip_gain starts at zero, so a fresh block is the identity on its shortcut.
type Block[B tensor.Backend] struct {
	spec BlockSpec
	act  Activation[B]
	mode *mode

	conv0    *WSConv2D[B]
	conv1    *WSConv2D[B]
	conv1b   *WSConv2D[B]
	conv2    *WSConv2D[B]
	shortcut *WSConv2D[B] // nil for identity shortcuts
	se       *SqueezeExcite[B]
	skipGain *nn.Parameter[B]
}

func newBlock[B tensor.Backend](name string, spec BlockSpec, act Activation[B], m *mode, backend B) *Block[B] {
	width := int(float64(spec.Out) * spec.Expansion)
	groups := width / spec.GroupSize
	rng := m.rng

	b := &Block[B]{
		spec:     spec,
		act:      act,
		mode:     m,
		conv0:    NewWSConv2D(name+".conv0", spec.In, width, 1, 1, 0, 1, rng, backend),
		conv1:    NewWSConv2D(name+".conv1", width, width, 3, spec.Stride, 1, groups, rng, backend),
		conv1b:   NewWSConv2D(name+".conv1b", width, width, 3, 1, 1, groups, rng, backend),
		conv2:    NewWSConv2D(name+".conv2", width, spec.Out, 1, 1, 0, 1, rng, backend),
		se:       NewSqueezeExcite(name+".se", spec.Out, spec.SERatio, rng, backend),
		skipGain: nn.NewParameter(name+".skip_gain", tensor.Zeros[float32](tensor.Shape{1}, backend)),
	}
	if spec.Stride > 1 || spec.In != spec.Out {
		b.shortcut = NewWSConv2D(name+".conv_shortcut", spec.In, spec.Out, 1, 1, 0, 1, rng, backend)
	}
	return b
}

// Forward applies the block to [N, In, H, W].
func (b *Block[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out := b.act(x).Mul(scalarLike(x, b.spec.Beta))

	shortcut := x
	if b.shortcut != nil {
		s := out
		if b.spec.Stride > 1 {
			s = avgPool2x2(s)
		}
		shortcut = b.shortcut.Forward(s)
	}

	out = b.conv0.Forward(out)
	out = b.conv1.Forward(b.act(out))
	out = b.conv1b.Forward(b.act(out))
	out = b.conv2.Forward(b.act(out))
	gate := b.se.Forward(out)
	out = out.Mul(gate.Mul(scalarLike(gate, 2)))

	if b.mode.training && b.spec.StochDepth > 0 {
		out = stochasticDepth(out, b.spec.StochDepth, b.mode.rng)
	}

	out = out.Mul(b.skipGain.Tensor().Reshape(1, 1, 1, 1)).Mul(scalarLike(out, b.spec.Alpha))
	return out.Add(shortcut)
}

// Parameters returns all block parameters in registration order.
func (b *Block[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, conv := range []*WSConv2D[B]{b.conv0, b.conv1, b.conv1b, b.conv2} {
		params = append(params, conv.Parameters()...)
	}
	if b.shortcut != nil {
		params = append(params, b.shortcut.Parameters()...)
	}
	params = append(params, b.se.Parameters()...)
	return append(params, b.skipGain)
}

// Spec returns the block hyperparameters.
func (b *Block[B]) Spec() BlockSpec {
	return b.spec
}

// HasProjection reports whether the shortcut is a 1x1 convolution.
func (b *Block[B]) HasProjection() bool {
	return b.shortcut != nil
}

func (b *Block[B]) String() string {
	return fmt.Sprintf("NFBlock(in=%d, out=%d, stride=%d, beta=%.4f, stochdepth=%.4f)",
		b.spec.In, b.spec.Out, b.spec.Stride, b.spec.Beta, b.spec.StochDepth)
}

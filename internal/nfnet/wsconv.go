package nfnet

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// wsEps keeps the standardization finite for constant filters.
const wsEps = 1e-4

// WSConv2D is a 2D convolution with scaled weight standardization.
//
// Before every forward pass each output filter is standardized over its fan-in
// and multiplied by a learnable gain:
//
//	w_hat = gain * (w - mean(w)) / sqrt(var(w) * fanIn + eps)
//
// Grouped convolutions split input channels and filters into equal groups and
// concatenate the per-group outputs.
//
// Parameters are named <name>.weight [out, in/groups, k, k], <name>.bias [out]
// and <name>.gain [out].
type WSConv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	groups      int

	weight *nn.Parameter[B]
	bias   *nn.Parameter[B]
	gain   *nn.Parameter[B]

	backend B
}

// NewWSConv2D creates a square-kernel WSConv2D layer.
func NewWSConv2D[B tensor.Backend](
	name string,
	inChannels, outChannels int,
	kernelSize, stride, padding, groups int,
	rng *rand.Rand,
	backend B,
) *WSConv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("wsconv2d %s: invalid channels in=%d, out=%d", name, inChannels, outChannels))
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("wsconv2d %s: invalid geometry k=%d, s=%d, p=%d", name, kernelSize, stride, padding))
	}
	if groups <= 0 || inChannels%groups != 0 || outChannels%groups != 0 {
		panic(fmt.Sprintf("wsconv2d %s: %d groups do not divide in=%d, out=%d", name, groups, inChannels, outChannels))
	}

	groupIn := inChannels / groups
	fanIn := groupIn * kernelSize * kernelSize
	weight := normal(rng, tensor.Shape{outChannels, groupIn, kernelSize, kernelSize}, fanInStd(fanIn), backend)

	return &WSConv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		groups:      groups,
		weight:      nn.NewParameter(name+".weight", weight),
		bias:        nn.NewParameter(name+".bias", tensor.Zeros[float32](tensor.Shape{outChannels}, backend)),
		gain:        nn.NewParameter(name+".gain", tensor.Ones[float32](tensor.Shape{outChannels}, backend)),
		backend:     backend,
	}
}

// StandardizedWeight returns the effective convolution kernel.
func (c *WSConv2D[B]) StandardizedWeight() *tensor.Tensor[float32, B] {
	groupIn := c.inChannels / c.groups
	fanIn := groupIn * c.kernelSize * c.kernelSize

	flat := c.weight.Tensor().Reshape(c.outChannels, fanIn)
	centered := flat.Sub(meanDim(flat, 1))
	variance := meanDim(centered.Mul(centered), 1)
	scale := variance.Mul(scalarLike(variance, float32(fanIn))).
		Add(scalarLike(variance, wsEps)).
		Rsqrt().
		Mul(c.gain.Tensor().Reshape(c.outChannels, 1))

	return centered.Mul(scale).Reshape(c.outChannels, groupIn, c.kernelSize, c.kernelSize)
}

// Forward applies the convolution to input [N, C_in, H, W].
func (c *WSConv2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s := input.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("wsconv2d: expected 4D input [N,C,H,W], got %dD", len(s)))
	}
	if s[1] != c.inChannels {
		panic(fmt.Sprintf("wsconv2d: input channels %d != expected %d", s[1], c.inChannels))
	}

	kernel := c.StandardizedWeight()

	var output *tensor.Tensor[float32, B]
	if c.groups == 1 {
		output = c.conv(input, kernel)
	} else {
		inputs := input.Chunk(c.groups, 1)
		kernels := kernel.Chunk(c.groups, 0)
		outputs := make([]*tensor.Tensor[float32, B], c.groups)
		for g := range outputs {
			outputs[g] = c.conv(inputs[g], kernels[g])
		}
		output = tensor.Cat(outputs, 1)
	}

	return output.Add(c.bias.Tensor().Reshape(1, c.outChannels, 1, 1))
}

func (c *WSConv2D[B]) conv(input, kernel *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return tensor.New[float32, B](c.backend.Conv2D(input.Raw(), kernel.Raw(), c.stride, c.padding), c.backend)
}

// Parameters returns weight, bias and gain.
func (c *WSConv2D[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{c.weight, c.bias, c.gain}
}

// OutChannels returns the number of output channels.
func (c *WSConv2D[B]) OutChannels() int {
	return c.outChannels
}

// Groups returns the number of channel groups.
func (c *WSConv2D[B]) Groups() int {
	return c.groups
}

func (c *WSConv2D[B]) String() string {
	return fmt.Sprintf("WSConv2D(in_channels=%d, out_channels=%d, kernel_size=%d, stride=%d, padding=%d, groups=%d)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding, c.groups)
}

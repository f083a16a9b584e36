package nfnet

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// scalarLike returns v as a one-element constant with the rank of x, shaped
// [1, ..., 1]. Broadcast operands must match their partner's rank or the
// gradient reduction in backward cannot reshape them back.
func scalarLike[B tensor.Backend](x *tensor.Tensor[float32, B], v float32) *tensor.Tensor[float32, B] {
	shape := make(tensor.Shape, len(x.Shape()))
	for i := range shape {
		shape[i] = 1
	}
	return tensor.Full[float32](shape, v, x.Backend())
}

// meanDim averages over dim, keeping it as size 1.
func meanDim[B tensor.Backend](x *tensor.Tensor[float32, B], dim int) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	return tensor.New[float32, B](backend.MeanDim(x.Raw(), dim, true), backend)
}

// globalAvgPool reduces [N, C, H, W] to [N, C].
func globalAvgPool[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s := x.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("nfnet: global pool expects [N,C,H,W], got %v", s))
	}
	return meanDim(x.Reshape(s[0], s[1], s[2]*s[3]), 2).Reshape(s[0], s[1])
}

// avgPool2x2 is a 2x2 average pool with stride 2, done as a depthwise
// convolution with a constant kernel.
func avgPool2x2[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s := x.Shape()
	if len(s) != 4 {
		panic(fmt.Sprintf("nfnet: avg pool expects [N,C,H,W], got %v", s))
	}
	n, c, h, w := s[0], s[1], s[2], s[3]
	backend := x.Backend()

	kernel := tensor.Full[float32](tensor.Shape{1, 1, 2, 2}, 0.25, backend)
	flat := x.Reshape(n*c, 1, h, w)
	pooled := tensor.New[float32, B](backend.Conv2D(flat.Raw(), kernel.Raw(), 2, 0), backend)
	return pooled.Reshape(n, c, h/2, w/2)
}

// normal returns a tensor drawn from N(0, std^2) using rng.
func normal[B tensor.Backend](rng *rand.Rand, shape tensor.Shape, std float64, backend B) *tensor.Tensor[float32, B] {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	t, err := tensor.FromSlice(data, shape, backend)
	if err != nil {
		panic(err)
	}
	return t
}

// fanInStd is the He-style standard deviation 1/sqrt(fanIn).
func fanInStd(fanIn int) float64 {
	return 1 / math.Sqrt(float64(fanIn))
}

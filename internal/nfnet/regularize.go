package nfnet

import (
	"math"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// mode is shared by every layer of a model.
type mode struct {
	training bool
	rng      *rand.Rand
}

// stochasticDepth zeroes whole samples of x with probability rate and scales
// the survivors by 1/(1-rate).
func stochasticDepth[B tensor.Backend](x *tensor.Tensor[float32, B], rate float64, rng *rand.Rand) *tensor.Tensor[float32, B] {
	s := x.Shape()
	keep := 1 - rate
	mask := make([]float32, s[0])
	for i := range mask {
		mask[i] = float32(math.Floor(keep+rng.Float64()) / keep)
	}
	shape := make(tensor.Shape, len(s))
	shape[0] = s[0]
	for i := 1; i < len(shape); i++ {
		shape[i] = 1
	}
	m, err := tensor.FromSlice(mask, shape, x.Backend())
	if err != nil {
		panic(err)
	}
	return x.Mul(m)
}

// dropout zeroes elements of x with probability rate and scales the
// survivors by 1/(1-rate).
func dropout[B tensor.Backend](x *tensor.Tensor[float32, B], rate float64, rng *rand.Rand) *tensor.Tensor[float32, B] {
	keep := 1 - rate
	mask := make([]float32, x.NumElements())
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = float32(1 / keep)
		}
	}
	m, err := tensor.FromSlice(mask, x.Shape(), x.Backend())
	if err != nil {
		panic(err)
	}
	return x.Mul(m)
}

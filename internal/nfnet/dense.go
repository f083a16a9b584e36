package nfnet

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dense is a fully connected layer y = x @ W^T + b with named parameters.
type Dense[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *nn.Parameter[B] // [out, in]
	bias        *nn.Parameter[B] // [out]
}

// NewDense creates a layer whose weights are drawn from N(0, std^2) and whose
// bias starts at zero.
func NewDense[B tensor.Backend](name string, inFeatures, outFeatures int, std float64, rng *rand.Rand, backend B) *Dense[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("dense %s: invalid features in=%d, out=%d", name, inFeatures, outFeatures))
	}
	return &Dense[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      nn.NewParameter(name+".weight", normal(rng, tensor.Shape{outFeatures, inFeatures}, std, backend)),
		bias:        nn.NewParameter(name+".bias", tensor.Zeros[float32](tensor.Shape{outFeatures}, backend)),
	}
}

// Forward maps [batch, in] to [batch, out].
func (d *Dense[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s := input.Shape()
	if len(s) != 2 || s[1] != d.inFeatures {
		panic(fmt.Sprintf("dense: expected input [batch, %d], got %v", d.inFeatures, s))
	}
	output := input.MatMul(d.weight.Tensor().Transpose())
	return output.Add(d.bias.Tensor().Reshape(1, d.outFeatures))
}

// Parameters returns weight and bias.
func (d *Dense[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{d.weight, d.bias}
}

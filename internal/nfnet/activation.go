package nfnet

import (
	"math"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Activation names.
const (
	ActivationGELU = "gelu"
	ActivationReLU = "relu"
)

// Gammas rescale each activation so a unit Gaussian input keeps unit
// variance at the output.
const (
	GELUGamma = 1.7015043497085571
	ReLUGamma = 1.7139588594436646
)

// Activation is an element-wise nonlinearity.
type Activation[B tensor.Backend] func(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

func activationByName[B tensor.Backend](name string) Activation[B] {
	if name == ActivationReLU {
		return ScaledReLU[B]
	}
	return ScaledGELU[B]
}

// ScaledGELU computes GELUGamma * gelu(x) with the tanh approximation.
//
// The backend must implement Tanh (autodiff.Backend does).
func ScaledGELU[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	backend := x.Backend()

	type tanhBackend interface {
		Tanh(x *tensor.RawTensor) *tensor.RawTensor
	}
	tb, ok := any(backend).(tanhBackend)
	if !ok {
		panic("ScaledGELU: backend must implement Tanh operation (use autodiff.Backend)")
	}

	// gelu(x) = 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3)))
	x3 := x.Mul(x).Mul(x)
	inner := x.Add(x3.Mul(scalarLike(x, 0.044715))).Mul(scalarLike(x, float32(math.Sqrt(2/math.Pi))))
	t := tensor.New[float32, B](tb.Tanh(inner.Raw()), backend)
	gate := t.Add(scalarLike(x, 1)).Mul(scalarLike(x, 0.5*GELUGamma))
	return x.Mul(gate)
}

// ScaledReLU computes ReLUGamma * relu(x).
func ScaledReLU[B tensor.Backend](x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return nn.ReLUFunc(x).Mul(scalarLike(x, ReLUGamma))
}

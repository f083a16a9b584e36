package optim

import (
	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/blas/blas32"
)

// minGradNorm guards the clip ratio against division by zero.
const minGradNorm = 1e-6

// UnitSize returns the length of one clipping unit for a parameter of the
// given shape. Weights with two or more dimensions are clipped per output
// unit (a row along dim 0); vectors and scalars are clipped as a whole.
func UnitSize(shape tensor.Shape) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if len(shape) <= 1 || shape[0] == 0 {
		return n
	}
	return n / shape[0]
}

// ClipUnitwise applies adaptive gradient clipping in place.
//
// For each unit u: if ||g_u|| > clipping * max(||w_u||, eps), g_u is rescaled
// to exactly that bound. grad and param must have the same length, a
// multiple of unit.
func ClipUnitwise(grad, param []float32, unit int, clipping, eps float32) {
	if len(grad) != len(param) {
		panic("optim: gradient and parameter sizes differ")
	}
	if unit <= 0 || len(grad)%unit != 0 {
		panic("optim: invalid clipping unit")
	}
	for start := 0; start < len(grad); start += unit {
		g := vector(grad[start : start+unit])
		w := vector(param[start : start+unit])

		maxNorm := max(blas32.Nrm2(w), eps) * clipping
		gradNorm := blas32.Nrm2(g)
		if gradNorm > maxNorm {
			blas32.Scal(maxNorm/max(gradNorm, minGradNorm), g)
		}
	}
}

func vector(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}

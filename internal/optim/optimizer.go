// Package optim implements the optimizer and learning-rate schedule used to
// train NFNets.
//
// This package provides:
//   - Optimizer: the interface the training loop drives
//   - SGDAGC: SGD with Nesterov momentum, weight decay and adaptive gradient clipping
//   - CosineAnnealing: per-epoch cosine learning-rate decay
//
// Example usage:
//
//	opt := optim.NewSGDAGC(model.Parameters(), optim.DefaultSGDAGCConfig(0.1))
//	sched := optim.NewCosineAnnealing(opt, 0.1, 200, 0)
//
//	for epoch := 1; epoch <= epochs; epoch++ {
//	    for each batch {
//	        opt.ZeroGrad()
//	        grads := autodiff.Backward(loss, backend)
//	        opt.Step(grads)
//	    }
//	    if err := sched.Step(epoch); err != nil { ... }
//	}
package optim

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Optimizer updates model parameters from computed gradients.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// The gradient map is the result of autodiff.Backward and is keyed by
	// the parameter's raw tensor.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients. Called once per batch before
	// the backward pass.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR replaces the learning rate. Used by schedules.
	SetLR(lr float32)
}

// getGradient returns the gradient for param, or nil when param did not take
// part in the computation.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}

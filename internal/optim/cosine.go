package optim

import (
	"errors"
	"fmt"
	"math"
)

// ErrScheduleDesync is returned when a schedule is stepped out of order with
// the epochs it tracks.
var ErrScheduleDesync = errors.New("optim: learning-rate schedule out of sync with epochs")

// CosineAnnealing lowers the optimizer's learning rate once per epoch along
//
//	lr(t) = etaMin + (base - etaMin) * (1 + cos(pi * t / tMax)) / 2
//
// where t counts completed epochs.
type CosineAnnealing struct {
	opt    Optimizer
	base   float64
	etaMin float64
	tMax   int
	epoch  int
}

// NewCosineAnnealing attaches a schedule starting at base to opt and sets the
// optimizer's rate to base. base is kept in float64 so the schedule does not
// inherit the optimizer's float32 rounding. tMax must be positive.
func NewCosineAnnealing(opt Optimizer, base float64, tMax int, etaMin float64) *CosineAnnealing {
	if tMax <= 0 {
		panic(fmt.Sprintf("optim: cosine horizon must be positive, got %d", tMax))
	}
	opt.SetLR(float32(base))
	return &CosineAnnealing{
		opt:    opt,
		base:   base,
		etaMin: etaMin,
		tMax:   tMax,
	}
}

// Step records that epoch (1-based) has completed and applies lr(epoch).
// Epochs must be reported exactly once each, in order.
func (c *CosineAnnealing) Step(epoch int) error {
	if epoch != c.epoch+1 {
		return fmt.Errorf("%w: got epoch %d, expected %d", ErrScheduleDesync, epoch, c.epoch+1)
	}
	c.epoch = epoch
	c.opt.SetLR(float32(c.LR(epoch)))
	return nil
}

// LR returns the scheduled rate after t completed epochs.
func (c *CosineAnnealing) LR(t int) float64 {
	return c.etaMin + (c.base-c.etaMin)*(1+math.Cos(math.Pi*float64(t)/float64(c.tMax)))/2
}

// Epoch returns the number of epochs the schedule has seen.
func (c *CosineAnnealing) Epoch() int {
	return c.epoch
}

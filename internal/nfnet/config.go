// Package nfnet implements Normalizer-Free ResNets (NFNets) on the Born
// tensor API.
//
// NFNets train without batch normalization. Signal propagation is kept in
// check by scaled weight standardization (WSConv2D), scaled activations and
// residual branches whose variance is tracked analytically (the alpha/beta
// scheme). The same constructor builds every size F0 through F7; sizes only
// differ in per-stage depth and dropout rate.
//
// Architecture:
//
//	stem:   WSConv 3x3 (16, s2) -> act -> WSConv 3x3 (32) -> act -> WSConv 3x3 (64) -> act -> WSConv 3x3 (128, s2)
//	stages: NFBlock x depth[i], first block of stage i>0 has stride 2
//	head:   WSConv 1x1 (2 * width[last]) -> act -> global average pool -> dropout -> linear
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	cfg, _ := nfnet.ConfigFor("F0", 10)
//	model, err := nfnet.New(cfg, backend)
//	logits := model.Forward(images) // [N, 10]
package nfnet

import (
	"errors"
	"fmt"
	"slices"
)

// Common errors.
var (
	ErrUnknownVariant = errors.New("nfnet: unknown variant")
	ErrInvalidConfig  = errors.New("nfnet: invalid config")
)

// Params holds the per-variant hyperparameters.
type Params struct {
	Width    []int
	Depth    []int
	DropRate float64
}

// variants maps each model size to its stage layout.
var variants = map[string]Params{
	"F0": {Width: []int{256, 512, 1536, 1536}, Depth: []int{1, 2, 6, 3}, DropRate: 0.2},
	"F1": {Width: []int{256, 512, 1536, 1536}, Depth: []int{2, 4, 12, 6}, DropRate: 0.3},
	"F2": {Width: []int{256, 512, 1536, 1536}, Depth: []int{3, 6, 18, 9}, DropRate: 0.4},
	"F3": {Width: []int{256, 512, 1536, 1536}, Depth: []int{4, 8, 24, 12}, DropRate: 0.4},
	"F4": {Width: []int{256, 512, 1536, 1536}, Depth: []int{5, 10, 30, 15}, DropRate: 0.5},
	"F5": {Width: []int{256, 512, 1536, 1536}, Depth: []int{6, 12, 36, 18}, DropRate: 0.5},
	"F6": {Width: []int{256, 512, 1536, 1536}, Depth: []int{7, 14, 42, 21}, DropRate: 0.5},
	"F7": {Width: []int{256, 512, 1536, 1536}, Depth: []int{8, 16, 48, 24}, DropRate: 0.5},
}

// VariantNames returns the known variant names in order.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the hyperparameters of a named variant.
func Lookup(name string) (Params, error) {
	p, ok := variants[name]
	if !ok {
		return Params{}, fmt.Errorf("%w %q", ErrUnknownVariant, name)
	}
	return Params{
		Width:    slices.Clone(p.Width),
		Depth:    slices.Clone(p.Depth),
		DropRate: p.DropRate,
	}, nil
}

// Config fully describes a network.
type Config struct {
	NumClasses int

	Width []int // output channels per stage
	Depth []int // blocks per stage

	StemChannels  []int   // 3x3 stem conv widths; first and last use stride 2
	FinalConvMult int     // final 1x1 conv width as a multiple of the last stage width
	Alpha         float32 // residual branch scale
	Expansion     float64 // bottleneck width ratio
	GroupSize     int     // channels per group in the 3x3 convs
	SERatio       float64 // squeeze-excite hidden ratio
	DropRate      float64 // dropout before the classifier
	StochDepth    float64 // stochastic depth rate of the deepest block
	Activation    string  // "gelu" or "relu"

	// Seed drives weight initialization and the train-mode dropout masks.
	Seed int64
}

// ConfigFor returns the standard configuration of a named variant.
func ConfigFor(name string, numClasses int) (Config, error) {
	p, err := Lookup(name)
	if err != nil {
		return Config{}, err
	}
	return Config{
		NumClasses:    numClasses,
		Width:         p.Width,
		Depth:         p.Depth,
		StemChannels:  []int{16, 32, 64, 128},
		FinalConvMult: 2,
		Alpha:         0.2,
		Expansion:     0.5,
		GroupSize:     128,
		SERatio:       0.5,
		DropRate:      p.DropRate,
		StochDepth:    0.25,
		Activation:    ActivationGELU,
		Seed:          1,
	}, nil
}

// Validate checks the configuration can be built.
func (c Config) Validate() error {
	switch {
	case c.NumClasses <= 0:
		return fmt.Errorf("%w: num classes must be positive", ErrInvalidConfig)
	case len(c.Width) == 0 || len(c.Width) != len(c.Depth):
		return fmt.Errorf("%w: width and depth must have the same non-zero length", ErrInvalidConfig)
	case len(c.StemChannels) < 2:
		return fmt.Errorf("%w: stem needs at least two convs", ErrInvalidConfig)
	case c.FinalConvMult <= 0:
		return fmt.Errorf("%w: final conv multiplier must be positive", ErrInvalidConfig)
	case c.Expansion <= 0 || c.SERatio <= 0:
		return fmt.Errorf("%w: expansion and SE ratio must be positive", ErrInvalidConfig)
	case c.GroupSize <= 0:
		return fmt.Errorf("%w: group size must be positive", ErrInvalidConfig)
	case c.DropRate < 0 || c.DropRate >= 1 || c.StochDepth < 0 || c.StochDepth >= 1:
		return fmt.Errorf("%w: drop rates must be in [0, 1)", ErrInvalidConfig)
	}
	if c.Activation != ActivationGELU && c.Activation != ActivationReLU {
		return fmt.Errorf("%w: unknown activation %q", ErrInvalidConfig, c.Activation)
	}
	for i, w := range c.Width {
		if c.Depth[i] <= 0 {
			return fmt.Errorf("%w: stage %d has depth %d", ErrInvalidConfig, i, c.Depth[i])
		}
		bw := c.blockWidth(w)
		if bw <= 0 || bw%c.GroupSize != 0 {
			return fmt.Errorf("%w: stage %d bottleneck width %d is not a multiple of group size %d",
				ErrInvalidConfig, i, bw, c.GroupSize)
		}
	}
	return nil
}

func (c Config) blockWidth(out int) int {
	return int(float64(out) * c.Expansion)
}

// NumBlocks returns the total block count.
func (c Config) NumBlocks() int {
	n := 0
	for _, d := range c.Depth {
		n += d
	}
	return n
}

package nfnet

import (
	"fmt"
	"math"
	"math/rand"
	"slices"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// inputChannels is the channel count of RGB images.
const inputChannels = 3

// Model is an NFNet image classifier. It satisfies nn.Module.
//
// A Model starts in training mode: dropout and stochastic depth are active.
// Call Eval before measuring accuracy.
type Model[B tensor.Backend] struct {
	cfg  Config
	act  Activation[B]
	mode *mode

	stem      []*WSConv2D[B]
	blocks    []*Block[B]
	finalConv *WSConv2D[B]
	fc        *Dense[B]

	params  []*nn.Parameter[B]
	byName  map[string]*nn.Parameter[B]
	backend B
}

// New builds a model from cfg.
func New[B tensor.Backend](cfg Config, backend B) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	//nolint:gosec // Weight init and dropout masks, not security-critical
	m := &mode{training: true, rng: rand.New(rand.NewSource(cfg.Seed))}
	model := &Model[B]{
		cfg:     cfg,
		act:     activationByName[B](cfg.Activation),
		mode:    m,
		backend: backend,
	}

	in := inputChannels
	last := len(cfg.StemChannels) - 1
	for i, out := range cfg.StemChannels {
		stride := 1
		if i == 0 || i == last {
			stride = 2
		}
		name := fmt.Sprintf("stem.conv%d", i)
		model.stem = append(model.stem, NewWSConv2D(name, in, out, 3, stride, 1, 1, m.rng, backend))
		in = out
	}

	numBlocks := cfg.NumBlocks()
	expectedStd := 1.0
	index := 0
	for stage, width := range cfg.Width {
		stageStride := 2
		if stage == 0 {
			stageStride = 1
		}
		for i := 0; i < cfg.Depth[stage]; i++ {
			stride := 1
			if i == 0 {
				stride = stageStride
			}
			spec := BlockSpec{
				In:         in,
				Out:        width,
				Stride:     stride,
				Alpha:      cfg.Alpha,
				Beta:       float32(1 / expectedStd),
				Expansion:  cfg.Expansion,
				GroupSize:  cfg.GroupSize,
				SERatio:    cfg.SERatio,
				StochDepth: cfg.StochDepth * float64(index) / float64(numBlocks),
			}
			name := fmt.Sprintf("stages.%d.%d", stage, i)
			model.blocks = append(model.blocks, newBlock(name, spec, model.act, m, backend))

			in = width
			index++
			// Transition blocks reset the variance of the residual stream.
			if i == 0 {
				expectedStd = 1
			}
			expectedStd = math.Sqrt(expectedStd*expectedStd + float64(cfg.Alpha)*float64(cfg.Alpha))
		}
	}

	finalWidth := cfg.FinalConvMult * cfg.Width[len(cfg.Width)-1]
	model.finalConv = NewWSConv2D("final_conv", in, finalWidth, 1, 1, 0, 1, m.rng, backend)
	model.fc = NewDense("fc", finalWidth, cfg.NumClasses, 0.01, m.rng, backend)

	model.collect()
	return model, nil
}

func (m *Model[B]) collect() {
	for _, conv := range m.stem {
		m.params = append(m.params, conv.Parameters()...)
	}
	for _, block := range m.blocks {
		m.params = append(m.params, block.Parameters()...)
	}
	m.params = append(m.params, m.finalConv.Parameters()...)
	m.params = append(m.params, m.fc.Parameters()...)

	m.byName = make(map[string]*nn.Parameter[B], len(m.params))
	for _, p := range m.params {
		if _, dup := m.byName[p.Name()]; dup {
			panic(fmt.Sprintf("nfnet: duplicate parameter name %q", p.Name()))
		}
		m.byName[p.Name()] = p
	}
}

// Forward maps images [N, 3, H, W] to logits [N, NumClasses].
func (m *Model[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	s := input.Shape()
	if len(s) != 4 || s[1] != inputChannels {
		panic(fmt.Sprintf("nfnet: expected input [N,3,H,W], got %v", s))
	}

	out := input
	for i, conv := range m.stem {
		if i > 0 {
			out = m.act(out)
		}
		out = conv.Forward(out)
	}
	for _, block := range m.blocks {
		out = block.Forward(out)
	}
	out = m.act(m.finalConv.Forward(out))

	pooled := globalAvgPool(out)
	if m.mode.training && m.cfg.DropRate > 0 {
		pooled = dropout(pooled, m.cfg.DropRate, m.mode.rng)
	}
	return m.fc.Forward(pooled)
}

// Train enables dropout and stochastic depth.
func (m *Model[B]) Train() {
	m.mode.training = true
}

// Eval disables dropout and stochastic depth.
func (m *Model[B]) Eval() {
	m.mode.training = false
}

// Training reports whether the model is in training mode.
func (m *Model[B]) Training() bool {
	return m.mode.training
}

// Parameters returns every trainable parameter. Names are unique and
// dot-separated, e.g. "stages.1.0.conv1.weight" or "fc.bias".
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	return m.params
}

// Parameter looks up a parameter by name.
func (m *Model[B]) Parameter(name string) (*nn.Parameter[B], bool) {
	p, ok := m.byName[name]
	return p, ok
}

// NumParameters returns the total number of scalar weights.
func (m *Model[B]) NumParameters() int {
	n := 0
	for _, p := range m.params {
		n += p.Tensor().NumElements()
	}
	return n
}

// Blocks returns the residual blocks in order.
func (m *Model[B]) Blocks() []*Block[B] {
	return m.blocks
}

// Config returns the configuration the model was built from.
func (m *Model[B]) Config() Config {
	return m.cfg
}

// StateDict returns parameter tensors keyed by name.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor, len(m.params))
	for _, p := range m.params {
		state[p.Name()] = p.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies values from state into the parameters. Every
// parameter must be present with a matching shape and no extra keys are
// allowed.
func (m *Model[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	for name := range state {
		if _, ok := m.byName[name]; !ok {
			return fmt.Errorf("nfnet: unexpected parameter %q in state dict", name)
		}
	}
	for _, p := range m.params {
		raw, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("nfnet: missing parameter %q in state dict", p.Name())
		}
		if !slices.Equal(raw.Shape(), p.Tensor().Shape()) {
			return fmt.Errorf("nfnet: parameter %q has shape %v, expected %v", p.Name(), raw.Shape(), p.Tensor().Shape())
		}
		copy(p.Tensor().Raw().AsFloat32(), raw.AsFloat32())
	}
	return nil
}

var _ nn.Module[tensor.Backend] = (*Model[tensor.Backend])(nil)

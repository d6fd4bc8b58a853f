package dnn

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nreh/MNIST-DNN-Training/costfuncs"
	"github.com/nreh/MNIST-DNN-Training/initializers"
	"github.com/nreh/MNIST-DNN-Training/operators"
)

// Network is an ordered list of Layers, the first of which is the input layer. A Network owns its
// Layers, and through them every weight and bias.
//
// A Network holds no per-record state: all of the buffers used to propagate through it are owned
// by the caller (usually a trainer.Trainer).
type Network struct {
	layers []*Layer
}

// New creates a Network with the given layer sizes. sizes[0] is the size of the input layer and
// the last is the size of the output layer, so there must be at least 2 of them.
//
// Every weight and bias is drawn from a normal distribution with mean initializers.DefaultMean and
// standard deviation initializers.DefaultSD, using r for every layer. Every non-input layer uses
// ReLU; this can be changed per layer with SetActivation.
func New(sizes []int, r *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, errors.Wrapf(ErrInvalidArgument, "Network must contain at least 2 layers (given %d)", len(sizes))
	} else if r == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "no random source given to initialize the Network with")
	}

	for i, s := range sizes {
		if s <= 0 {
			return nil, errors.Wrapf(ErrInvalidArgument, "size of layer %d is not positive (%d)", i, s)
		}
	}

	rng := initializers.Normal(r)

	net := &Network{layers: make([]*Layer, len(sizes))}
	net.layers[0] = NewInputLayer(sizes[0])

	for i := 1; i < len(sizes); i++ {
		l, err := NewLayer(sizes[i], sizes[i-1], i, operators.ReLUKind, rng)
		if err != nil {
			return nil, errors.Wrapf(err, "Couldn't create layer %d", i)
		}

		net.layers[i] = l
	}

	return net, nil
}

// Len returns the number of layers in the Network, including the input layer.
func (net *Network) Len() int {
	return len(net.layers)
}

// Layer returns the layer at index i. Layer panics if i is out of range.
func (net *Network) Layer(i int) *Layer {
	return net.layers[i]
}

// Layers returns the list of all layers in the Network. The slice is a copy, but the Layers are
// not.
func (net *Network) Layers() []*Layer {
	ls := make([]*Layer, len(net.layers))
	copy(ls, net.layers)
	return ls
}

// Output returns the output (last) layer of the Network.
func (net *Network) Output() *Layer {
	return net.layers[len(net.layers)-1]
}

// Sizes returns the number of neurons in each layer.
func (net *Network) Sizes() []int {
	sizes := make([]int, len(net.layers))
	for i, l := range net.layers {
		sizes[i] = l.Size
	}

	return sizes
}

// InputSize returns the number of values expected as input to the Network.
func (net *Network) InputSize() int {
	return net.layers[0].Size
}

// OutputSize returns the number of values output by the Network.
func (net *Network) OutputSize() int {
	return net.Output().Size
}

// NewActivations allocates a set of per-layer activation buffers that fit the Network, as used by
// Propagate and PropagateBackpropagate.
func (net *Network) NewActivations() [][]float64 {
	as := make([][]float64, len(net.layers))
	for i, l := range net.layers {
		as[i] = make([]float64, l.Size)
	}

	return as
}

// NewErrors allocates a set of per-layer error buffers that fit the Network. There is no entry for
// the input layer: errors[l-1] belongs to layer l.
func (net *Network) NewErrors() [][]float64 {
	es := make([][]float64, len(net.layers)-1)
	for i := range es {
		es[i] = make([]float64, net.layers[i+1].Size)
	}

	return es
}

// NewWeightGradients allocates zeroed weight-gradient matrices that fit the Network: gradient[l-1]
// has the same shape as the weights of layer l.
func (net *Network) NewWeightGradients() []*mat.Dense {
	gs := make([]*mat.Dense, len(net.layers)-1)
	for i := range gs {
		l := net.layers[i+1]
		gs[i] = mat.NewDense(l.PreviousSize, l.Size, nil)
	}

	return gs
}

// Propagate runs the Network forward. activations[0] must already hold the input; the rest of the
// buffers are overwritten, layer by layer. Propagate doesn't allocate.
func (net *Network) Propagate(activations [][]float64) error {
	if len(activations) != len(net.layers) {
		return errors.Wrapf(ErrInvalidArgument, "expected activations for %d layers, got %d", len(net.layers), len(activations))
	}

	for l := 1; l < len(net.layers); l++ {
		if err := net.layers[l].Propagate(activations[l-1], activations[l]); err != nil {
			return errors.Wrapf(err, "Propagating through layer %d failed", l)
		}
	}

	return nil
}

// PropagateBackpropagate runs the Network forward on activations[0] and then backpropagates the
// quadratic cost of the outputs against the one-hot encoding of label.
//
// When it returns, errors[l-1] holds the error (δ) of every neuron in layer l, which is also the
// gradient of the cost with respect to that neuron's bias. The gradient of every weight is ADDED
// to weightGradient, so that repeated calls over a batch leave the sum of the gradients of the
// whole batch.
func (net *Network) PropagateBackpropagate(activations, errs [][]float64, weightGradient []*mat.Dense, label int) error {
	last := len(net.layers) - 1

	if len(activations) != len(net.layers) {
		return errors.Wrapf(ErrInvalidArgument, "expected activations for %d layers, got %d", len(net.layers), len(activations))
	} else if len(errs) != last {
		return errors.Wrapf(ErrInvalidArgument, "expected errors for %d layers, got %d", last, len(errs))
	} else if len(weightGradient) != last {
		return errors.Wrapf(ErrInvalidArgument, "expected weight gradients for %d layers, got %d", last, len(weightGradient))
	} else if label < 0 || label >= net.OutputSize() {
		return errors.Wrapf(ErrInvalidArgument, "label %d is outside of the output layer (size %d)", label, net.OutputSize())
	}

	for l := 1; l <= last; l++ {
		if r, c := weightGradient[l-1].Dims(); r != net.layers[l].PreviousSize || c != net.layers[l].Size {
			return errors.Wrapf(ErrInvalidArgument, "weight gradient %d is %dx%d, layer %d weights are %dx%d",
				l-1, r, c, l, net.layers[l].PreviousSize, net.layers[l].Size)
		}
	}

	// The forward pass must be completed entirely before going backwards; errs[l-1] holds f'(z)
	// of layer l until it is multiplied through below.
	for l := 1; l <= last; l++ {
		if err := net.layers[l].PropagateAndDifferentiate(activations[l-1], activations[l], errs[l-1]); err != nil {
			return errors.Wrapf(err, "Propagating through layer %d failed", l)
		}
	}

	// output layer: δ = (a - y)·f'(z)
	outErr := errs[last-1]
	costfuncs.Quadratic().DerivLabel(activations[last], label, func(x int, d float64) {
		outErr[x] *= d
	})

	// hidden layers: δ_l = (W_{l+1}·δ_{l+1})·f'(z_l)
	for l := last - 1; l >= 1; l-- {
		next := net.layers[l+1]
		raw := next.Weights.RawMatrix()

		for x := range errs[l-1] {
			errs[l-1][x] *= floats.Dot(raw.Data[x*raw.Stride:x*raw.Stride+next.Size], errs[l])
		}
	}

	for l := 1; l <= last; l++ {
		g := weightGradient[l-1].RawMatrix()
		size := net.layers[l].Size

		for x, a := range activations[l-1] {
			if a == 0 {
				continue
			}

			floats.AddScaled(g.Data[x*g.Stride:x*g.Stride+size], a, errs[l-1])
		}
	}

	return nil
}

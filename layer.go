package dnn

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/nreh/MNIST-DNN-Training/initializers"
	"github.com/nreh/MNIST-DNN-Training/operators"
)

// Layer is a single layer of neurons in a Network. Every layer but the input layer owns a weight
// matrix and a bias vector, which are allocated when the Layer is created and never resized.
type Layer struct {
	// Size is the number of neurons in the layer
	Size int

	// PreviousSize is the number of neurons in the layer before this one. It is 0 for the input
	// layer.
	PreviousSize int

	// Index is the position of the layer in its Network
	Index int

	// Weights is a PreviousSize × Size matrix; entry (i, j) is the weight of the connection from
	// neuron i of the previous layer to neuron j of this layer. nil for the input layer.
	Weights *mat.Dense

	// Biases contains the bias of every neuron in the layer. nil for the input layer.
	Biases []float64

	act operators.Activation
}

// NewInputLayer returns the input layer of a Network, which has no weights or biases.
func NewInputLayer(size int) *Layer {
	return &Layer{Size: size}
}

// NewLayer returns a hidden or output layer, with every weight and bias drawn independently from
// rng. The caller owns rng; using the same generator for every layer of a Network makes its
// initialization reproducible.
func NewLayer(size, previousSize, index int, kind operators.Kind, rng initializers.RNG) (*Layer, error) {
	if size <= 0 || previousSize <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "layer sizes must be positive (size %d, previous size %d)", size, previousSize)
	} else if index <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "layer index %d is reserved for the input layer", index)
	} else if rng == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "no RNG to initialize weights with")
	}

	act, err := operators.Resolve(kind)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "couldn't create layer %d: %v", index, err)
	}

	init := initializers.Random(rng)

	ws := make([]float64, previousSize*size)
	init.Set(ws)

	bs := make([]float64, size)
	init.Set(bs)

	return &Layer{
		Size:         size,
		PreviousSize: previousSize,
		Index:        index,
		Weights:      mat.NewDense(previousSize, size, ws),
		Biases:       bs,
		act:          act,
	}, nil
}

// IsInput returns whether or not the layer is the input layer of its Network.
func (l *Layer) IsInput() bool {
	return l.Index == 0 || l.Weights == nil
}

// Activation returns the kind of activation function applied by the layer.
func (l *Layer) Activation() operators.Kind {
	return l.act.Kind
}

// SetActivation changes the activation function of the layer. It is commonly used to make the
// output layer of a Network a Sigmoid.
func (l *Layer) SetActivation(kind operators.Kind) error {
	if l.IsInput() {
		return errors.Wrap(ErrInvalidOperation, "the input layer has no activation function")
	}

	act, err := operators.Resolve(kind)
	if err != nil {
		return errors.Wrapf(ErrInvalidArgument, "couldn't set activation of layer %d: %v", l.Index, err)
	}

	l.act = act
	return nil
}

// Propagate sets out to the activations of the layer, given the activations of the previous layer:
//	out[j] = f(Σ in[i]·Weights[i][j] + Biases[j])
// out is owned by the caller and is overwritten. Propagate doesn't allocate.
func (l *Layer) Propagate(in, out []float64) error {
	if err := l.check(in, out); err != nil {
		return err
	}

	l.weightedSum(in, out)
	for j, z := range out {
		out[j] = l.act.Value(z)
	}

	return nil
}

// PropagateAndDifferentiate is Propagate, but additionally sets grad[j] to the derivative of the
// activation function at the pre-activation value of neuron j. The pre-activation values are not
// kept.
func (l *Layer) PropagateAndDifferentiate(in, out, grad []float64) error {
	if err := l.check(in, out); err != nil {
		return err
	} else if len(grad) != l.Size {
		return errors.Wrapf(ErrInvalidArgument, "layer %d has %d neurons, derivative buffer has %d", l.Index, l.Size, len(grad))
	}

	l.weightedSum(in, out)
	for j, z := range out {
		grad[j] = l.act.Deriv(z)
		out[j] = l.act.Value(z)
	}

	return nil
}

// weightedSum sets out to the pre-activation values of the layer. Each row of Weights holds the
// connections from a single input neuron, so the sum is built up one row at a time.
func (l *Layer) weightedSum(in, out []float64) {
	copy(out, l.Biases)

	raw := l.Weights.RawMatrix()
	for i, a := range in {
		if a == 0 {
			continue
		}

		floats.AddScaled(out, a, raw.Data[i*raw.Stride:i*raw.Stride+l.Size])
	}
}

func (l *Layer) check(in, out []float64) error {
	if l.IsInput() {
		return errors.Wrap(ErrInvalidOperation, "can't propagate through the input layer")
	}

	if len(in) != l.PreviousSize {
		return errors.Wrapf(ErrInvalidArgument, "layer %d expects %d inputs, got %d", l.Index, l.PreviousSize, len(in))
	} else if len(out) != l.Size {
		return errors.Wrapf(ErrInvalidArgument, "layer %d has %d neurons, output buffer has %d", l.Index, l.Size, len(out))
	}

	return nil
}

// Package dnn provides a small feedforward neural network (multilayer perceptron) and the
// propagation and backpropagation through it. It is trained on MNIST-style image datasets by the
// trainer subpackage.
//
// Creating Networks
//
// A Network is created from the sizes of its layers, the first of which is the input layer:
//
//		net, err := dnn.New([]int{28 * 28, 15, 15, 10}, rand.New(rand.NewSource(seed)))
//		if err != nil {
//			return err
//		}
//
// The random source is used for every weight and bias, so the same seed always gives the same
// Network. Every layer but the input uses ReLU by default; the activation of any layer can be
// changed afterwards:
//
//		err = net.Output().SetActivation(operators.SigmoidKind)
//
// Propagation
//
// The Network itself keeps no state besides its weights and biases. Buffers for activations,
// errors and weight gradients are created with NewActivations, NewErrors and NewWeightGradients,
// and are owned by the caller:
//
//		as := net.NewActivations()
//		copy(as[0], input)
//		err := net.Propagate(as)
//		output := as[net.Len()-1]
//
// PropagateBackpropagate does the same forward pass while storing activation derivatives, then
// fills in the error of every neuron and adds the gradient of every weight to the given
// gradient matrices. Applying those gradients is left to the trainer.
//
// Errors
//
// Invalid inputs and broken calling contracts, here and in the dataset and trainer packages, are
// reported with a root cause (given by errors.Cause from github.com/pkg/errors) of either
// ErrInvalidArgument or ErrInvalidOperation.
package dnn

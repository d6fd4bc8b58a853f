// Package operators contains the elementwise activation functions that a Layer can apply to its
// pre-activation values, along with their derivatives.
//
// Every derivative is evaluated at the pre-activation value z (before the activation function
// has been applied), which is why both halves of an Activation take the same argument.
package operators

import (
	"math"
)

// Kind identifies an activation function.
type Kind int8

const (
	// ReLUKind is the rectified linear unit. It is the default for every non-input layer.
	ReLUKind Kind = iota

	// SigmoidKind is the "fast sigmoid" x/(1+|x|), also known as softsign.
	SigmoidKind
)

// String returns the type string of the Kind, as accepted by ByName.
func (k Kind) String() string {
	switch k {
	case ReLUKind:
		return "relu"
	case SigmoidKind:
		return "sigmoid"
	}

	return "unknown"
}

// Activation pairs an activation function with its derivative. It is resolved once per layer so
// that propagation doesn't have to switch on the Kind for every neuron.
type Activation struct {
	Kind  Kind
	Value func(float64) float64
	Deriv func(float64) float64
}

// ****************************************
// ReLU
// ****************************************

// ReLU returns x if x >= 0, else 0.
func ReLU(x float64) float64 {
	if x < 0 {
		return 0
	}
	return x
}

// ReLUDeriv is the derivative of ReLU. The derivative at 0 is taken to be 1.
func ReLUDeriv(x float64) float64 {
	if x < 0 {
		return 0
	}
	return 1
}

// ****************************************
// Fast sigmoid
// ****************************************

// Sigmoid is the fast approximation of a sigmoid, x / (1 + |x|). Its range is (-1, 1); it is NOT
// numerically interchangeable with the logistic function.
func Sigmoid(x float64) float64 {
	return x / (1 + math.Abs(x))
}

// SigmoidDeriv is the derivative of Sigmoid: 1 / (|x| + 1)^2
func SigmoidDeriv(x float64) float64 {
	d := math.Abs(x) + 1
	return 1 / (d * d)
}

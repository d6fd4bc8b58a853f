// Package optimizers provides the update rules that turn accumulated gradients into changes to a
// Network's weights and biases.
package optimizers

// Optimizer applies a set of gradients to a set of values.
//
// arguments: number of values, gradient of value at index, add to value at index, learning rate
//
// number of values can be 0
type Optimizer interface {
	Run(int, func(int) float64, func(int, float64), float64)
	// Run(size int, grad func(int) float64, add func(int, float64), learningRate float64)

	// TypeString returns the name of the Optimizer, e.g. "gradient descent"
	TypeString() string
}

type gradientdescent int8

// GradientDescent is standard, run of the mill, gradient descent. No momentum or anything fancy.
func GradientDescent() gradientdescent {
	return gradientdescent(0)
}

// TypeString returns the name of the optimizer.
func (g gradientdescent) TypeString() string {
	return "gradient descent"
}

// Run adds -learningRate * grad(i) to every value.
func (g gradientdescent) Run(size int, grad func(int) float64, add func(int, float64), learningRate float64) {
	for i := 0; i < size; i++ {
		add(i, -1*learningRate*grad(i))
	}
}

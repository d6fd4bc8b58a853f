// Package costfuncs provides the cost function that the output error of a Network is derived from.
package costfuncs

type quadratic int8

// Quadratic returns the per-neuron quadratic cost ½(a-y)², averaged over the outputs. Its
// derivative with respect to each output is simply a-y.
func Quadratic() quadratic {
	return quadratic(0)
}

// TypeString returns the name of the cost function.
func (c quadratic) TypeString() string {
	return "quadratic"
}

// CostLabel returns the average of ½(a-y)² over every output, where the targets y are the one-hot
// encoding of label.
func (c quadratic) CostLabel(outs []float64, label int) float64 {
	var sum float64
	for i := range outs {
		d := outs[i] - Target(i, label)
		sum += 0.5 * d * d
	}

	return sum / float64(len(outs))
}

// DerivLabel provides the derivative a-y of every output through returnFunc, which is given the
// index of the output and its derivative. The targets are the one-hot encoding of label; no target
// slice is built.
func (c quadratic) DerivLabel(outs []float64, label int, returnFunc func(int, float64)) {
	for i := range outs {
		returnFunc(i, outs[i]-Target(i, label))
	}
}

// Target returns the one-hot target value of output neuron i for the given class label: 1 if
// they are equal, else 0.
func Target(i, label int) float64 {
	if i == label {
		return 1
	}
	return 0
}

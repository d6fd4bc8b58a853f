// Package hyperparams provides learning-rate schedules, keyed by training epoch.
package hyperparams

// HyperParameter gives the value of a hyperparameter at a given iteration. For the trainer, the
// iteration is the epoch number.
type HyperParameter interface {
	Value(iter int) float64

	// TypeString returns the name of the schedule, e.g. "constant"
	TypeString() string
}

type constant float64

// Constant returns a HyperParameter that is v at every iteration.
func Constant(value float64) *constant {
	c := constant(value)
	return &c
}

func (c constant) TypeString() string {
	return "constant"
}

func (c *constant) Value(iter int) float64 {
	return *(*float64)(c)
}

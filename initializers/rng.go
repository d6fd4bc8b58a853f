// Package initializers provides the random number generators used to set the starting weights and
// biases of a Network.
//
// Generators never touch the global math/rand source; each one draws from a *rand.Rand supplied
// by the caller, so that a fixed seed always produces the same Network.
package initializers

import "math/rand"

// Defaults for Normal: every weight and bias of a new Network is drawn from N(0, 0.05).
const (
	DefaultMean float64 = 0
	DefaultSD   float64 = 0.05
)

// RNG needs no explanation
type RNG interface {
	Gen() float64
}

type normal struct {
	src  *rand.Rand
	µ, σ float64
}

// Normal returns an RNG that gives values within a normal distribution, drawn from src. The center
// and standard deviation default to DefaultMean and DefaultSD, and can be set by Mean and SD,
// respectively.
//
// Normal panics if src is nil.
func Normal(src *rand.Rand) *normal {
	if src == nil {
		panic("initializers: nil source given to Normal")
	}

	return &normal{src, DefaultMean, DefaultSD}
}

// SD sets the value of the standard deviation of the normal distribution.
func (n *normal) SD(sd float64) *normal {
	n.σ = sd
	return n
}

// Mean sets the center of the normal distribution.
func (n *normal) Mean(mean float64) *normal {
	n.µ = mean
	return n
}

// Gen is the implementation of RNG for Normal. It returns a random number.
func (n *normal) Gen() float64 {
	return n.src.NormFloat64()*n.σ + n.µ
}

type constant float64

// Constant returns an RNG that always gives v. It is mostly useful for setting known weights.
func Constant(v float64) constant {
	return constant(v)
}

// Gen is the implementation of RNG for Constant.
func (c constant) Gen() float64 {
	return float64(c)
}

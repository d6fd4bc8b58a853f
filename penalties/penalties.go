// Package penalties provides weight regularization for training. A Penalty adjusts the gradient of
// a single weight before it is applied; biases are never penalized.
package penalties

import (
	"github.com/pkg/errors"
)

// Penalty returns the gradient of a weight with its regularization term added, given the weight
// and its unpenalized (batch-averaged) gradient.
type Penalty interface {
	Penalize(weight, grad float64) float64

	// TypeString returns the name of the Penalty, as accepted by New
	TypeString() string
}

// Names gives the type strings accepted by New.
var Names = []string{"l1-lasso", "l2-ridge", "elastic-net"}

// New returns the Penalty with the given type string (or its short form: "l1", "lasso", "l2",
// "ridge"). α is only used by "elastic-net".
func New(name string, λ, α float64) (Penalty, error) {
	if λ <= 0 {
		return nil, errors.Errorf("Penalty strength must be positive (given %g)", λ)
	}

	switch name {
	case "l1-lasso", "l1":
		return L1(λ), nil
	case "lasso":
		return Lasso(λ), nil
	case "l2-ridge", "l2":
		return L2(λ), nil
	case "ridge":
		return Ridge(λ), nil
	case "elastic-net":
		if α < 0 || α > 1 {
			return nil, errors.Errorf("Elastic net α must be within [0, 1] (given %g)", α)
		}
		return ElasticNet(α, λ), nil
	}

	return nil, errors.Errorf("Unknown penalty %q", name)
}

// sign is -1, 0 or 1; a weight of 0 gets no L1 push in either direction
func sign(w float64) float64 {
	switch {
	case w > 0:
		return 1
	case w < 0:
		return -1
	}
	return 0
}

// **********************************************
// L1 (Lasso)
// **********************************************

type l1 float64

// λ is a small value close to 0 where λ > 0
func L1(λ float64) *l1 {
	p := l1(λ)
	return &p
}

// λ is a small value close to 0 where λ > 0
func Lasso(λ float64) *l1 {
	return L1(λ)
}

func (p *l1) TypeString() string {
	return "l1-lasso"
}

func (p *l1) Penalize(w, grad float64) float64 {
	return grad + float64(*p)*sign(w)
}

// **********************************************
// L2 (Ridge)
// **********************************************

type l2 float64

// λ is a small value close to 0 where λ > 0
func L2(λ float64) *l2 {
	p := l2(λ)
	return &p
}

// λ is a small value close to 0 where λ > 0
func Ridge(λ float64) *l2 {
	return L2(λ)
}

func (p *l2) TypeString() string {
	return "l2-ridge"
}

func (p *l2) Penalize(w, grad float64) float64 {
	return grad + 2*float64(*p)*w
}

// **********************************************
// Elastic net
// **********************************************

type elasticNet struct {
	α float64
	λ float64
}

// λ is a small value close to 0 where λ > 0,
// α is a value that controls the ratio between L1 and L2 regularization, where 0 ≤ α ≤ 1. α = 1 is
// functionally identical to L1 and α = 0 is equivalent to L2.
func ElasticNet(α, λ float64) *elasticNet {
	return &elasticNet{α, λ}
}

func (p *elasticNet) TypeString() string {
	return "elastic-net"
}

func (p *elasticNet) Penalize(w, grad float64) float64 {
	return grad + p.λ*((1-p.α)*2*w+p.α*sign(w))
}

package operators

import (
	"github.com/pkg/errors"
)

// Error is the type of the errors returned by this package.
type Error struct{ string }

func (err Error) Error() string {
	return err.string
}

// ErrUnknownKind is returned when a Kind or type string doesn't name a registered activation.
var ErrUnknownKind = Error{"activation kind is not recognized"}

var registered = map[Kind]Activation{
	ReLUKind:    {ReLUKind, ReLU, ReLUDeriv},
	SigmoidKind: {SigmoidKind, Sigmoid, SigmoidDeriv},
}

// Resolve returns the pair of functions for the given Kind.
func Resolve(k Kind) (Activation, error) {
	a, ok := registered[k]
	if !ok {
		return Activation{}, errors.Wrapf(ErrUnknownKind, "kind %d", k)
	}

	return a, nil
}

// ByName returns the Kind whose type string is name.
func ByName(name string) (Kind, error) {
	for k := range registered {
		if k.String() == name {
			return k, nil
		}
	}

	return 0, errors.Wrapf(ErrUnknownKind, "%q", name)
}

// Names returns the type strings of every registered Kind, in Kind order.
func Names() []string {
	names := make([]string, 0, len(registered))
	for k := Kind(0); int(k) < len(registered); k++ {
		names = append(names, k.String())
	}

	return names
}

package trainer

import (
	"github.com/nreh/MNIST-DNN-Training/dataset"
	"github.com/nreh/MNIST-DNN-Training/hyperparams"
	"github.com/nreh/MNIST-DNN-Training/penalties"
)

// DefaultStepSize is the learning rate used by DefaultConfig.
const DefaultStepSize = 0.005

// DefaultLogDir is the folder that training logs are written to by default. It must already exist.
const DefaultLogDir = "./log"

// Config holds the settings of a Trainer. The zero value is not usable; start from DefaultConfig.
type Config struct {
	// BatchSize is the number of records whose gradients are averaged for each update
	BatchSize int

	// StepSize gives the learning rate, keyed by epoch
	StepSize hyperparams.HyperParameter

	// Penalty, if not nil, regularizes every weight (but no bias) on each update
	Penalty penalties.Penalty

	// LogDir is the folder that the accuracy log of Train and Run is created in
	LogDir string

	// DisableLog stops Train and Run from writing an accuracy log
	DisableLog bool

	// Update, if not nil, is given the Result of every evaluation made by Train and Run
	Update func(Result)
}

// DefaultConfig returns the settings used to train on MNIST.
func DefaultConfig() Config {
	return Config{
		BatchSize: dataset.DefaultBatchSize,
		StepSize:  hyperparams.Constant(DefaultStepSize),
		LogDir:    DefaultLogDir,
	}
}

// Result is the outcome of evaluating a Network on the test set.
type Result struct {
	// Epoch is the number of epochs trained before the evaluation
	Epoch int

	// Cost is the average quadratic cost over the test set
	Cost float64

	// Correct is the fraction of test records that were classified correctly, 0 → 1
	Correct float64
}

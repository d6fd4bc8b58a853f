// Package trainer trains a dnn.Network on the data provided by a dataset.Reader, using mini-batch
// gradient descent on the quadratic cost.
//
// A Trainer borrows the Network given to Bind; the Network must stay alive for as long as the
// Trainer is used, and must not be modified in shape after binding.
package trainer

import (
	"context"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	dnn "github.com/nreh/MNIST-DNN-Training"
	"github.com/nreh/MNIST-DNN-Training/costfuncs"
	"github.com/nreh/MNIST-DNN-Training/dataset"
	"github.com/nreh/MNIST-DNN-Training/optimizers"
	"github.com/nreh/MNIST-DNN-Training/trainlog"
)

// Trainer owns a dataset.Reader and every buffer needed to train a Network on it.
type Trainer struct {
	cfg  Config
	data *dataset.Reader
	net  *dnn.Network
	opt  optimizers.Optimizer

	// per batch slot: [slot][layer][neuron]
	activations [][][]float64
	// per batch slot: [slot][layer-1][neuron]; there are no errors for the input layer
	errs [][][]float64
	// shared by every slot, so that it holds the sum over the batch
	weightGradient []*mat.Dense

	evalActivations [][]float64

	// epoch is given to cfg.StepSize
	epoch int
}

// New returns a Trainer with the given settings. Its Reader has no files open yet.
func New(cfg Config) (*Trainer, error) {
	if cfg.StepSize == nil {
		return nil, errors.Wrap(dnn.ErrInvalidArgument, "no step size given")
	}

	data, err := dataset.NewReader(cfg.BatchSize)
	if err != nil {
		return nil, errors.Wrap(err, "Couldn't create Trainer")
	}

	t := &Trainer{cfg: cfg, data: data, opt: optimizers.GradientDescent()}

	penalty := "none"
	if cfg.Penalty != nil {
		penalty = cfg.Penalty.TypeString()
	}
	glog.V(1).Infof("Training with %s cost, %s, %s step size, penalty %s",
		costfuncs.Quadratic().TypeString(), t.opt.TypeString(), cfg.StepSize.TypeString(), penalty)

	return t, nil
}

// Data returns the Reader that the Trainer gets its training and test data from.
func (t *Trainer) Data() *dataset.Reader {
	return t.data
}

// Network returns the bound Network, or nil if Bind hasn't been called.
func (t *Trainer) Network() *dnn.Network {
	return t.net
}

// Bind sets the Network to train, allocating every buffer that training it requires.
func (t *Trainer) Bind(net *dnn.Network) error {
	if net == nil {
		return errors.Wrap(dnn.ErrInvalidArgument, "can't bind a nil Network")
	}

	t.net = net

	batch := t.data.BatchSize()
	t.activations = make([][][]float64, batch)
	t.errs = make([][][]float64, batch)
	for b := 0; b < batch; b++ {
		t.activations[b] = net.NewActivations()
		t.errs[b] = net.NewErrors()
	}

	t.weightGradient = net.NewWeightGradients()
	t.evalActivations = net.NewActivations()

	glog.V(1).Infof("Bound network with layer sizes %v, batch size %d", net.Sizes(), batch)
	return nil
}

func (t *Trainer) checkBound(action string) error {
	if t.net == nil {
		return errors.Wrapf(dnn.ErrInvalidOperation, "Trainer does not have any network to %s", action)
	}

	return nil
}

// Evaluate runs every loaded test record through the Network and returns the fraction that it
// classifies correctly. The class picked by the Network is its most active output neuron; on a
// tie, the lowest index wins. Both test files must have been opened and loaded; a test set of 0
// records gives an accuracy of 0.
func (t *Trainer) Evaluate() (float64, error) {
	r, err := t.evaluate()
	return r.Correct, err
}

func (t *Trainer) evaluate() (Result, error) {
	r := Result{Epoch: t.epoch}

	if err := t.checkBound("test"); err != nil {
		return r, err
	} else if err := t.data.TestSetLoaded(); err != nil {
		return r, errors.Wrap(err, "Can't test network")
	}

	data, labels := t.data.TestData(), t.data.TestLabels()
	count := len(data)
	if len(labels) < count {
		count = len(labels)
	}
	if count == 0 {
		return r, nil
	}

	if len(data[0]) != t.net.InputSize() {
		return r, errors.Wrapf(dnn.ErrInvalidArgument, "test records have %d values, network input has %d", len(data[0]), t.net.InputSize())
	}

	cf := costfuncs.Quadratic()
	as := t.evalActivations
	out := as[len(as)-1]

	var correct int
	for i := 0; i < count; i++ {
		copy(as[0], data[i])
		if err := t.net.Propagate(as); err != nil {
			return r, errors.Wrapf(err, "Testing record %d failed", i)
		}

		if floats.MaxIdx(out) == int(labels[i]) {
			correct++
		}
		r.Cost += cf.CostLabel(out, int(labels[i]))
	}

	r.Cost /= float64(count)
	r.Correct = float64(correct) / float64(count)
	return r, nil
}

// TrainRecord runs a single record through the Network in the given batch slot, adding its weight
// gradients to those of the rest of the batch. Nothing in the Network is changed.
func (t *Trainer) TrainRecord(record []float64, label int, slot int) error {
	if err := t.checkBound("train"); err != nil {
		return err
	} else if slot < 0 || slot >= len(t.activations) {
		return errors.Wrapf(dnn.ErrInvalidArgument, "batch slot %d is out of range (batch size %d)", slot, len(t.activations))
	} else if len(record) != t.net.InputSize() {
		return errors.Wrapf(dnn.ErrInvalidArgument, "record has %d values, network input has %d", len(record), t.net.InputSize())
	}

	as := t.activations[slot]
	copy(as[0], record)

	return t.net.PropagateBackpropagate(as, t.errs[slot], t.weightGradient, label)
}

// TrainNextBatch trains the Network on the next batch of training data, then updates every weight
// by the average of its gradients over the batch, and every bias by the average error of its
// neuron. The final batch of the training data may hold fewer records than the batch size; the
// averages are then taken over the records it does hold.
//
// The divisor of both averages is the number of records actually read, not the batch size.
func (t *Trainer) TrainNextBatch() error {
	if err := t.checkBound("train"); err != nil {
		return err
	}

	n, err := t.data.NextTrainingBatch()
	if err != nil {
		return errors.Wrap(err, "Couldn't read training data")
	}
	ln, err := t.data.NextTrainingLabelBatch()
	if err != nil {
		return errors.Wrap(err, "Couldn't read training labels")
	}

	if ln != n {
		glog.Warningf("Read %d training records but %d labels, using %d", n, ln, min(n, ln))
		n = min(n, ln)
	}
	if n == 0 {
		return nil
	}

	t.zero()

	records, labels := t.data.TrainingBatch(), t.data.TrainingLabelBatch()
	for s := 0; s < n; s++ {
		if err := t.TrainRecord(records[s], int(labels[s]), s); err != nil {
			return errors.Wrapf(err, "Training record %d of batch %d failed", s, t.data.CurrentBatch())
		}
	}

	t.update(n)
	return nil
}

func (t *Trainer) zero() {
	for s := range t.activations {
		for l := range t.activations[s] {
			clear(t.activations[s][l])
		}
		for l := range t.errs[s] {
			clear(t.errs[s][l])
		}
	}

	for _, g := range t.weightGradient {
		g.Zero()
	}
}

// update applies the gradients of the first n slots.
func (t *Trainer) update(n int) {
	step := t.cfg.StepSize.Value(t.epoch)
	opt := t.opt

	for l := 1; l < t.net.Len(); l++ {
		layer := t.net.Layer(l)

		// both are PreviousSize × Size and contiguous
		w := layer.Weights.RawMatrix().Data
		g := t.weightGradient[l-1].RawMatrix().Data

		grad, rate := func(i int) float64 {
			return g[i]
		}, step/float64(n)

		if p := t.cfg.Penalty; p != nil {
			grad, rate = func(i int) float64 {
				return p.Penalize(w[i], g[i]/float64(n))
			}, step
		}

		opt.Run(len(w), grad, func(i int, d float64) {
			w[i] += d
		}, rate)

		opt.Run(layer.Size, func(x int) float64 {
			var sum float64
			for s := 0; s < n; s++ {
				sum += t.errs[s][l-1][x]
			}
			return sum / float64(n)
		}, func(x int, d float64) {
			layer.Biases[x] += d
		}, step)
	}
}

// TrainEpoch trains the Network on every batch of the training data once.
func (t *Trainer) TrainEpoch() error {
	if err := t.checkBound("train"); err != nil {
		return err
	}

	total := t.data.TotalBatches()
	for b := 0; b < total; b++ {
		if err := t.TrainNextBatch(); err != nil {
			return errors.Wrapf(err, "Training batch %d/%d failed", b+1, total)
		}
	}

	return nil
}

// Train tests and then trains the Network, epochs+1 times over, so that the first accuracy is that
// of the untrained Network. Every accuracy is logged and, unless disabled, written to a new log
// file in the configured folder. The accuracies are returned in order.
func (t *Trainer) Train(epochs int) ([]float64, error) {
	return t.TrainContext(context.Background(), epochs)
}

// TrainContext is Train, stopping early once ctx is done. The accuracies up to that point are
// returned; cancelling ctx is not an error.
func (t *Trainer) TrainContext(ctx context.Context, epochs int) ([]float64, error) {
	if epochs < 0 {
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "can't train for %d epochs", epochs)
	}

	glog.Infof("Training network for %d epochs", epochs)
	return t.run(ctx, epochs)
}

// Run is Train without an end: it keeps testing and training the Network until ctx is done,
// checking between epochs. Cancelling ctx is not an error.
func (t *Trainer) Run(ctx context.Context) error {
	glog.Infof("Training network until stopped")
	_, err := t.run(ctx, -1)
	return err
}

// run trains for epochs+1 epochs, or until ctx is done if epochs is negative.
func (t *Trainer) run(ctx context.Context, epochs int) ([]float64, error) {
	if err := t.checkBound("train"); err != nil {
		return nil, err
	}

	lg := t.createLog()
	defer func() {
		if err := lg.Close(); err != nil {
			glog.Warningf("%v", err)
		}
	}()

	var accuracies []float64
	for epoch := 0; epochs < 0 || epoch <= epochs; epoch++ {
		if ctx.Err() != nil {
			glog.Infof("Stopped training after %d epochs", epoch)
			break
		}

		t.epoch = epoch

		r, err := t.evaluate()
		if err != nil {
			return accuracies, errors.Wrapf(err, "Testing before epoch %d failed", epoch)
		}

		accuracies = append(accuracies, r.Correct)
		glog.Infof("Accuracy: %.4f%%", r.Correct*100)
		glog.V(1).Infof("Average test cost: %g", r.Cost)

		if t.cfg.Update != nil {
			t.cfg.Update(r)
		}

		if lg != nil {
			if err := lg.Append(epoch, r.Correct); err != nil {
				glog.Warningf("Stopped writing training log: %v", err)
				lg.Close()
				lg = nil
			}
		}

		glog.Infof("Training epoch %d...", epoch)
		if err := t.TrainEpoch(); err != nil {
			return accuracies, errors.Wrapf(err, "Training epoch %d failed", epoch)
		}
	}

	return accuracies, nil
}

// createLog returns nil if logging is disabled or the log file can't be created.
func (t *Trainer) createLog() *trainlog.Log {
	if t.cfg.DisableLog {
		return nil
	}

	lg, err := trainlog.Create(t.cfg.LogDir, trainlog.HeaderFrom(t.data))
	if err != nil {
		glog.Warningf("Unable to create log file, are you sure the target folder (%s) exists? %v", t.cfg.LogDir, err)
		return nil
	}

	return lg
}

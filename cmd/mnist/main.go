// Command mnist trains a fully connected network on the MNIST handwritten digits, printing (and
// logging) its accuracy on the test set after every epoch.
//
// The data files are the idx files distributed with MNIST, uncompressed:
//
//	mnist -training-data train-images-idx3-ubyte -training-labels train-labels-idx1-ubyte \
//	      -test-data t10k-images-idx3-ubyte -test-labels t10k-labels-idx1-ubyte
//
// CSV versions of the dataset can be converted to idx files with csv2idx.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	dnn "github.com/nreh/MNIST-DNN-Training"
	"github.com/nreh/MNIST-DNN-Training/hyperparams"
	"github.com/nreh/MNIST-DNN-Training/operators"
	"github.com/nreh/MNIST-DNN-Training/penalties"
	"github.com/nreh/MNIST-DNN-Training/trainer"
)

// layer sizes of the network: 28x28 inputs, two hidden layers, one output per digit
var topology = []int{784, 15, 15, 10}

var (
	trainingData   = flag.String("training-data", "", "path to the training images (required)")
	trainingLabels = flag.String("training-labels", "", "path to the training labels (required)")
	testData       = flag.String("test-data", "", "path to the test images (required)")
	testLabels     = flag.String("test-labels", "", "path to the test labels (required)")

	verbose = flag.Bool("verbose", false, "print debug output (same as -v=1)")
	noLog   = flag.Bool("no-log", false, "don't write the accuracy of each epoch to a CSV file")
	logDir  = flag.String("log-dir", trainer.DefaultLogDir, "folder to write the accuracy CSV to; must exist")

	seed       = flag.Int64("seed", 0, "seed for the initial weights and biases; 0 picks one from the current time")
	epochs     = flag.Int("epochs", 30, "number of epochs to train for")
	forever    = flag.Bool("forever", false, "train until interrupted, ignoring -epochs")
	batchSize  = flag.Int("batch-size", trainer.DefaultConfig().BatchSize, "number of records in each training batch")
	stepSize   = flag.Float64("step-size", trainer.DefaultStepSize, "learning rate")
	stepDecay  = flag.String("step-decay", "", "changes to the learning rate, as EPOCH:VALUE[,EPOCH:VALUE...]")
	penalty    = flag.String("penalty", "", "regularization of the weights, one of: "+strings.Join(penalties.Names, ", "))
	lambda     = flag.Float64("lambda", 0.0001, "strength of -penalty")
	alpha      = flag.Float64("alpha", 0.5, "ratio of L1 to L2 for -penalty=elastic-net, 0 → 1")
	outputKind = flag.String("output-activation", operators.ReLUKind.String(),
		"activation function of the output layer, one of: "+strings.Join(operators.Names(), ", "))
)

func main() {
	// glog registers its flags on the default FlagSet; log to stderr unless told otherwise
	flag.Set("logtostderr", "true")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -training-data FILE -training-labels FILE -test-data FILE -test-labels FILE [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *trainingData == "" || *trainingLabels == "" || *testData == "" || *testLabels == "" {
		fmt.Fprintln(flag.CommandLine.Output(), "All four of -training-data, -training-labels, -test-data and -test-labels are required")
		flag.Usage()
		os.Exit(2)
	}
	if *verbose {
		flag.Set("v", "1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()

	if err != nil {
		glog.Errorf("%+v", err)
		glog.Flush()
		os.Exit(1)
	}

	glog.Flush()
}

func run(ctx context.Context) error {
	kind, err := operators.ByName(*outputKind)
	if err != nil {
		return errors.Wrapf(dnn.ErrInvalidArgument, "-output-activation: %v", err)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	glog.Infof("Initializing network %v with seed %d", topology, *seed)

	net, err := dnn.New(topology, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return errors.Wrap(err, "Couldn't create network")
	}
	if err = net.Output().SetActivation(kind); err != nil {
		return errors.Wrap(err, "Couldn't set output activation")
	}

	cfg := trainer.DefaultConfig()
	cfg.BatchSize = *batchSize
	if cfg.StepSize, err = schedule(*stepSize, *stepDecay); err != nil {
		return errors.Wrapf(dnn.ErrInvalidArgument, "-step-decay: %v", err)
	}
	cfg.LogDir = *logDir
	cfg.DisableLog = *noLog
	if *penalty != "" {
		if cfg.Penalty, err = penalties.New(*penalty, *lambda, *alpha); err != nil {
			return errors.Wrapf(dnn.ErrInvalidArgument, "-penalty: %v", err)
		}
	}

	tr, err := trainer.New(cfg)
	if err != nil {
		return errors.Wrap(err, "Couldn't create trainer")
	}

	data := tr.Data()
	defer data.Close()

	for _, open := range []struct {
		f    func(string) error
		path string
	}{
		{data.OpenTrainingData, *trainingData},
		{data.OpenTrainingLabels, *trainingLabels},
		{data.OpenTestData, *testData},
		{data.OpenTestLabels, *testLabels},
	} {
		if err = open.f(open.path); err != nil {
			return err
		}
	}

	if data.InputSize() != net.InputSize() {
		return errors.Wrapf(dnn.ErrInvalidArgument, "images have %d pixels, network takes %d", data.InputSize(), net.InputSize())
	}

	glog.Infof("Loading test data...")
	if err = data.LoadTestData(); err != nil {
		return err
	}
	if err = data.LoadTestLabels(); err != nil {
		return err
	}

	if err = tr.Bind(net); err != nil {
		return err
	}

	if *forever {
		return tr.Run(ctx)
	}

	accs, err := tr.TrainContext(ctx, *epochs)
	if err != nil {
		return err
	} else if len(accs) == 0 {
		return nil
	}

	glog.Infof("Final accuracy: %.4f%%", accs[len(accs)-1]*100)
	return nil
}

// schedule returns the learning rate, starting at base and changing as given by decay, a list of
// EPOCH:VALUE pairs separated by commas. An empty decay gives a constant rate.
func schedule(base float64, decay string) (hyperparams.HyperParameter, error) {
	if decay == "" {
		return hyperparams.Constant(base), nil
	}

	st := hyperparams.Step(base)
	for _, pair := range strings.Split(decay, ",") {
		e, v, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, errors.Errorf("%q is not of the form EPOCH:VALUE", pair)
		}

		epoch, err := strconv.Atoi(e)
		if err != nil || epoch <= 0 {
			return nil, errors.Errorf("bad epoch in %q", pair)
		}
		value, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad value in %q", pair)
		}

		st.Add(epoch, value)
	}

	return st, nil
}

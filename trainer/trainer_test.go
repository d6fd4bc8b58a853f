package trainer

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	dnn "github.com/nreh/MNIST-DNN-Training"
	"github.com/nreh/MNIST-DNN-Training/dataset"
	"github.com/nreh/MNIST-DNN-Training/hyperparams"
	"github.com/nreh/MNIST-DNN-Training/operators"
	"github.com/nreh/MNIST-DNN-Training/penalties"
)

// separable is a linearly separable set of 1×2 images: class 0 is bright on the left, class 1 on
// the right
var (
	separableImages = [][]byte{{255, 0}, {204, 26}, {0, 255}, {26, 204}}
	separableLabels = []byte{0, 0, 1, 1}
)

func writeFiles(t *testing.T, cols int, images [][]byte, labels []byte) (imagePath, labelPath string) {
	t.Helper()

	dir := t.TempDir()
	imagePath = filepath.Join(dir, "images")
	labelPath = filepath.Join(dir, "labels")

	f, err := os.Create(imagePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := dataset.WriteImages(f, 1, cols, images); err != nil {
		t.Fatal(err)
	}

	g, err := os.Create(labelPath)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if err := dataset.WriteLabels(g, labels); err != nil {
		t.Fatal(err)
	}

	return
}

// newTrainer returns a Trainer with the images and labels open as both training and test data
func newTrainer(t *testing.T, cfg Config, images [][]byte, labels []byte) *Trainer {
	t.Helper()

	tr, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Data().Close() })

	imagePath, labelPath := writeFiles(t, len(images[0]), images, labels)
	r := tr.Data()
	for _, err := range []error{
		r.OpenTrainingData(imagePath),
		r.OpenTrainingLabels(labelPath),
		r.OpenTestData(imagePath),
		r.OpenTestLabels(labelPath),
		r.LoadTestData(),
		r.LoadTestLabels(),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}

	return tr
}

func newNetwork(t *testing.T, sizes []int, seed int64, kind operators.Kind) *dnn.Network {
	t.Helper()

	net, err := dnn.New(sizes, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatal(err)
	}
	for l := 1; l < net.Len(); l++ {
		if err := net.Layer(l).SetActivation(kind); err != nil {
			t.Fatal(err)
		}
	}

	return net
}

func testConfig(batchSize int, step float64) Config {
	cfg := DefaultConfig()
	cfg.BatchSize = batchSize
	cfg.StepSize = hyperparams.Constant(step)
	cfg.DisableLog = true
	return cfg
}

// expectedUpdate returns the weights and biases that net should have after a gradient descent step
// on the given records, computed independently of the Trainer.
func expectedUpdate(t *testing.T, net *dnn.Network, records [][]float64, labels []int, step float64) ([]*mat.Dense, [][]float64) {
	t.Helper()

	grads := net.NewWeightGradients()
	errSums := net.NewErrors()

	for i, rec := range records {
		as := net.NewActivations()
		copy(as[0], rec)
		errs := net.NewErrors()

		if err := net.PropagateBackpropagate(as, errs, grads, labels[i]); err != nil {
			t.Fatal(err)
		}
		for l := range errs {
			for x, e := range errs[l] {
				errSums[l][x] += e
			}
		}
	}

	n := float64(len(records))
	weights := make([]*mat.Dense, net.Len()-1)
	biases := make([][]float64, net.Len()-1)
	for l := 1; l < net.Len(); l++ {
		layer := net.Layer(l)

		var w mat.Dense
		w.Scale(-step/n, grads[l-1])
		w.Add(layer.Weights, &w)
		weights[l-1] = &w

		biases[l-1] = make([]float64, layer.Size)
		for x := range biases[l-1] {
			biases[l-1][x] = layer.Biases[x] - errSums[l-1][x]/n*step
		}
	}

	return weights, biases
}

func checkParameters(t *testing.T, net *dnn.Network, weights []*mat.Dense, biases [][]float64) {
	t.Helper()

	const tol = 1e-12
	for l := 1; l < net.Len(); l++ {
		layer := net.Layer(l)
		if !mat.EqualApprox(layer.Weights, weights[l-1], tol) {
			t.Errorf("layer %d weights:\n%v\nwant:\n%v", l, mat.Formatted(layer.Weights), mat.Formatted(weights[l-1]))
		}
		for x, b := range layer.Biases {
			if math.Abs(b-biases[l-1][x]) > tol {
				t.Errorf("layer %d bias %d = %g, want %g", l, x, b, biases[l-1][x])
			}
		}
	}
}

func normalized(images [][]byte) [][]float64 {
	out := make([][]float64, len(images))
	for i, img := range images {
		out[i] = make([]float64, len(img))
		for j, b := range img {
			out[i][j] = float64(b) / 255
		}
	}
	return out
}

func TestNewInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 0
	if _, err := New(cfg); !dnn.IsInvalidArgument(err) {
		t.Errorf("batch size 0: error = %v, want ErrInvalidArgument", err)
	}

	cfg = DefaultConfig()
	cfg.StepSize = nil
	if _, err := New(cfg); !dnn.IsInvalidArgument(err) {
		t.Errorf("no step size: error = %v, want ErrInvalidArgument", err)
	}

	tr, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Bind(nil); !dnn.IsInvalidArgument(err) {
		t.Errorf("Bind(nil): error = %v, want ErrInvalidArgument", err)
	}
}

func TestNoNetwork(t *testing.T) {
	tr := newTrainer(t, testConfig(2, 0.1), separableImages, separableLabels)

	if _, err := tr.Evaluate(); !dnn.IsInvalidOperation(err) {
		t.Errorf("Evaluate: error = %v, want ErrInvalidOperation", err)
	}
	if err := tr.TrainRecord([]float64{0, 1}, 0, 0); !dnn.IsInvalidOperation(err) {
		t.Errorf("TrainRecord: error = %v, want ErrInvalidOperation", err)
	}
	if err := tr.TrainNextBatch(); !dnn.IsInvalidOperation(err) {
		t.Errorf("TrainNextBatch: error = %v, want ErrInvalidOperation", err)
	}
	if err := tr.TrainEpoch(); !dnn.IsInvalidOperation(err) {
		t.Errorf("TrainEpoch: error = %v, want ErrInvalidOperation", err)
	}
	if _, err := tr.Train(1); !dnn.IsInvalidOperation(err) {
		t.Errorf("Train: error = %v, want ErrInvalidOperation", err)
	}
	if err := tr.Run(context.Background()); !dnn.IsInvalidOperation(err) {
		t.Errorf("Run: error = %v, want ErrInvalidOperation", err)
	}
}

func TestTrainRecordInvalid(t *testing.T) {
	tr := newTrainer(t, testConfig(2, 0.1), separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{2, 3, 2}, 1, operators.SigmoidKind)); err != nil {
		t.Fatal(err)
	}

	if err := tr.TrainRecord([]float64{0, 1}, 0, 2); !dnn.IsInvalidArgument(err) {
		t.Errorf("slot out of range: error = %v, want ErrInvalidArgument", err)
	}
	if err := tr.TrainRecord([]float64{0, 1, 2}, 0, 0); !dnn.IsInvalidArgument(err) {
		t.Errorf("record too long: error = %v, want ErrInvalidArgument", err)
	}
	if err := tr.TrainRecord([]float64{0, 1}, 2, 0); !dnn.IsInvalidArgument(err) {
		t.Errorf("label out of range: error = %v, want ErrInvalidArgument", err)
	}
}

// n identical records should move the parameters exactly as far as one of them would on its own
func TestIdenticalRecords(t *testing.T) {
	images := [][]byte{{200, 40}, {200, 40}, {200, 40}}
	labels := []byte{1, 1, 1}

	const step = 0.3
	tr := newTrainer(t, testConfig(3, step), images, labels)
	net := newNetwork(t, []int{2, 3, 2}, 4, operators.SigmoidKind)
	if err := tr.Bind(net); err != nil {
		t.Fatal(err)
	}

	weights, biases := expectedUpdate(t, net, normalized(images[:1]), []int{1}, step)

	if err := tr.TrainNextBatch(); err != nil {
		t.Fatal(err)
	}

	checkParameters(t, net, weights, biases)
}

func TestBatchAverages(t *testing.T) {
	images := [][]byte{{10, 250}, {200, 40}, {0, 0}, {128, 128}, {90, 30}}
	labels := []byte{1, 0, 1, 0, 1}
	recs := normalized(images)

	const step = 0.2
	tr := newTrainer(t, testConfig(4, step), images, labels)
	net := newNetwork(t, []int{2, 3, 2}, 5, operators.ReLUKind)
	if err := tr.Bind(net); err != nil {
		t.Fatal(err)
	}

	weights, biases := expectedUpdate(t, net, recs[:4], []int{1, 0, 1, 0}, step)
	if err := tr.TrainNextBatch(); err != nil {
		t.Fatal(err)
	}
	checkParameters(t, net, weights, biases)

	// the final batch holds a single record, which is averaged on its own
	weights, biases = expectedUpdate(t, net, recs[4:], []int{1}, step)
	if err := tr.TrainNextBatch(); err != nil {
		t.Fatal(err)
	}
	checkParameters(t, net, weights, biases)

	if tr.Data().CurrentBatch() != 0 {
		t.Errorf("CurrentBatch() = %d after the final batch", tr.Data().CurrentBatch())
	}
}

func TestPenalty(t *testing.T) {
	images := [][]byte{{10, 250}, {200, 40}}
	labels := []byte{1, 0}

	const step, λ = 0.2, 0.01
	cfg := testConfig(2, step)
	cfg.Penalty = penalties.L2(λ)

	tr := newTrainer(t, cfg, images, labels)
	net := newNetwork(t, []int{2, 3, 2}, 7, operators.SigmoidKind)
	if err := tr.Bind(net); err != nil {
		t.Fatal(err)
	}

	weights, biases := expectedUpdate(t, net, normalized(images), []int{1, 0}, step)
	for l := 1; l < net.Len(); l++ {
		// w -= step·2λ·w on top of the unpenalized update
		var decay mat.Dense
		decay.Scale(-step*2*λ, net.Layer(l).Weights)
		weights[l-1].Add(weights[l-1], &decay)
	}

	if err := tr.TrainNextBatch(); err != nil {
		t.Fatal(err)
	}
	checkParameters(t, net, weights, biases)
}

func TestEvaluate(t *testing.T) {
	tr := newTrainer(t, testConfig(2, 0.1), separableImages, separableLabels)
	net := newNetwork(t, []int{2, 2}, 1, operators.ReLUKind)

	// every output is equal, so the first output neuron is always picked
	out := net.Output()
	out.Weights.Zero()
	for x := range out.Biases {
		out.Biases[x] = 0.5
	}

	if err := tr.Bind(net); err != nil {
		t.Fatal(err)
	}

	acc, err := tr.Evaluate()
	if err != nil {
		t.Fatal(err)
	}
	if acc != 0.5 {
		t.Errorf("Evaluate() = %g, want 0.5", acc)
	}

	// output 1 now follows the right pixel, output 0 the left
	out.Weights.Set(0, 0, 1)
	out.Weights.Set(1, 1, 1)
	for x := range out.Biases {
		out.Biases[x] = 0
	}
	if acc, err = tr.Evaluate(); err != nil || acc != 1 {
		t.Errorf("Evaluate() = %g, %v; want 1", acc, err)
	}
}

func TestEvaluateMismatch(t *testing.T) {
	tr := newTrainer(t, testConfig(2, 0.1), separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{3, 2}, 1, operators.ReLUKind)); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Evaluate(); !dnn.IsInvalidArgument(err) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestEvaluateNotLoaded(t *testing.T) {
	tr, err := New(testConfig(2, 0.1))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Data().Close()
	if err := tr.Bind(newNetwork(t, []int{2, 2}, 1, operators.ReLUKind)); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Evaluate(); !dnn.IsInvalidOperation(err) {
		t.Errorf("no test files: error = %v, want ErrInvalidOperation", err)
	}
	if _, err := tr.Train(1); !dnn.IsInvalidOperation(err) {
		t.Errorf("Train without test files: error = %v, want ErrInvalidOperation", err)
	}

	imagePath, labelPath := writeFiles(t, 2, separableImages, separableLabels)
	r := tr.Data()
	if err := r.OpenTestData(imagePath); err != nil {
		t.Fatal(err)
	}
	if err := r.OpenTestLabels(labelPath); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Evaluate(); !dnn.IsInvalidOperation(err) {
		t.Errorf("test files opened but not loaded: error = %v, want ErrInvalidOperation", err)
	}

	if err := r.LoadTestData(); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Evaluate(); !dnn.IsInvalidOperation(err) {
		t.Errorf("test labels not loaded: error = %v, want ErrInvalidOperation", err)
	}

	if err := r.LoadTestLabels(); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Evaluate(); err != nil {
		t.Errorf("test set loaded: %v", err)
	}
}

func TestEvaluateEmpty(t *testing.T) {
	tr, err := New(testConfig(2, 0.1))
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Data().Close()
	if err := tr.Bind(newNetwork(t, []int{2, 2}, 1, operators.ReLUKind)); err != nil {
		t.Fatal(err)
	}

	// test files with no records
	imagePath, labelPath := writeFiles(t, 2, nil, nil)
	r := tr.Data()
	for _, err := range []error{
		r.OpenTestData(imagePath),
		r.OpenTestLabels(labelPath),
		r.LoadTestData(),
		r.LoadTestLabels(),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}

	if acc, err := tr.Evaluate(); err != nil || acc != 0 {
		t.Errorf("Evaluate() = %g, %v; want 0, nil", acc, err)
	}
}

func TestLearnsSeparable(t *testing.T) {
	const epochs = 200

	tr := newTrainer(t, testConfig(4, 0.5), separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{2, 4, 2}, 1, operators.SigmoidKind)); err != nil {
		t.Fatal(err)
	}

	accs, err := tr.Train(epochs)
	if err != nil {
		t.Fatal(err)
	}

	if len(accs) != epochs+1 {
		t.Fatalf("got %d accuracies, want %d", len(accs), epochs+1)
	}
	for i, a := range accs {
		if a < 0 || a > 1 {
			t.Errorf("accuracy %d = %g is outside [0, 1]", i, a)
		}
	}
	if final := accs[epochs]; final != 1 {
		t.Errorf("final accuracy = %g, want 1", final)
	}
}

func TestTrainLog(t *testing.T) {
	dir := t.TempDir()

	cfg := testConfig(2, 0.1)
	cfg.DisableLog = false
	cfg.LogDir = dir

	var epochs []int
	cfg.Update = func(r Result) {
		epochs = append(epochs, r.Epoch)
	}

	tr := newTrainer(t, cfg, separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{2, 3, 2}, 2, operators.SigmoidKind)); err != nil {
		t.Fatal(err)
	}

	accs, err := tr.Train(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(epochs) != 3 || epochs[0] != 0 || epochs[2] != 2 {
		t.Errorf("updates for epochs %v, want [0 1 2]", epochs)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("log folder holds %d files, want 1", len(entries))
	}

	b, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}

	_, rows, ok := strings.Cut(string(b), "\nepoch,accuracy\n")
	if !ok {
		t.Fatalf("no CSV header in log:\n%s", b)
	}
	if lines := strings.Split(strings.TrimSpace(rows), "\n"); len(lines) != len(accs) {
		t.Errorf("log has %d rows, want %d", len(lines), len(accs))
	}
	if !strings.Contains(string(b), "# Batch Size: 2\n") {
		t.Errorf("log header is missing the batch size:\n%s", b)
	}
}

func TestMissingLogFolder(t *testing.T) {
	cfg := testConfig(2, 0.1)
	cfg.DisableLog = false
	cfg.LogDir = filepath.Join(t.TempDir(), "missing")

	tr := newTrainer(t, cfg, separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{2, 2}, 1, operators.ReLUKind)); err != nil {
		t.Fatal(err)
	}

	if accs, err := tr.Train(1); err != nil || len(accs) != 2 {
		t.Errorf("Train(1) = %v, %v; want 2 accuracies", accs, err)
	}
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(2, 0.1)

	var seen int
	cfg.Update = func(r Result) {
		seen++
		if r.Epoch == 3 {
			cancel()
		}
	}

	tr := newTrainer(t, cfg, separableImages, separableLabels)
	if err := tr.Bind(newNetwork(t, []int{2, 3, 2}, 3, operators.SigmoidKind)); err != nil {
		t.Fatal(err)
	}

	if err := tr.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil on cancellation", err)
	}
	if seen != 4 {
		t.Errorf("evaluated %d times, want 4", seen)
	}

	// a context that is already done stops before anything is tested
	seen = 0
	if err := tr.Run(ctx); err != nil || seen != 0 {
		t.Errorf("Run() = %v after %d evaluations, want nil after 0", err, seen)
	}
}

func TestStepSchedule(t *testing.T) {
	cfg := testConfig(4, 0.5)
	// no learning from epoch 1 onwards
	cfg.StepSize = hyperparams.Step(0.5).Add(1, 0)

	tr := newTrainer(t, cfg, separableImages, separableLabels)
	net := newNetwork(t, []int{2, 2}, 6, operators.SigmoidKind)
	if err := tr.Bind(net); err != nil {
		t.Fatal(err)
	}

	var before, after mat.Dense
	before.CloneFrom(net.Output().Weights)

	if _, err := tr.Train(2); err != nil {
		t.Fatal(err)
	}
	after.CloneFrom(net.Output().Weights)
	if mat.Equal(&before, &after) {
		t.Errorf("weights didn't change during epoch 0")
	}

	// the Trainer is left at epoch 2
	if err := tr.TrainEpoch(); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(&after, net.Output().Weights) {
		t.Errorf("weights changed with a step size of 0")
	}
}

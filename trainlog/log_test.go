package trainlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dnn "github.com/nreh/MNIST-DNN-Training"
	"github.com/nreh/MNIST-DNN-Training/dataset"
)

var testHeader = Header{
	Paths: dataset.Paths{
		TrainingData:   "train-images",
		TrainingLabels: "train-labels",
		TestData:       "test-images",
		TestLabels:     "test-labels",
	},
	BatchSize:     100,
	TotalBatches:  600,
	TrainingCount: 60000,
	TestCount:     10000,
}

func TestLayout(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, time.March, 5, 14, 3, 59, 0, time.Local)

	lg, err := create(dir, testHeader, now)
	if err != nil {
		t.Fatal(err)
	}
	if err := lg.Append(0, 0.1); err != nil {
		t.Fatal(err)
	}
	if err := lg.Append(1, 0.875); err != nil {
		t.Fatal(err)
	}
	if err := lg.Close(); err != nil {
		t.Fatal(err)
	}

	if want := filepath.Join(dir, "log_05-March-2024_14:03:59.csv"); lg.Path() != want {
		t.Errorf("Path() = %q, want %q", lg.Path(), want)
	}

	b, err := os.ReadFile(lg.Path())
	if err != nil {
		t.Fatal(err)
	}

	want := `# Training Log File
# ******************************************
# Generated On: 05-March-2024_14:03:59
# Training Data File: train-images
# Training Labels File: train-labels
# Test Data File: test-images
# Test Labels File: test-labels
# Batch Size: 100
# Total batches in training data: 600
# Total records in training data: 60000
# Total records in test data: 10000

epoch,accuracy
0,0.1
1,0.875
`
	if string(b) != want {
		t.Errorf("log file contents:\n%s\nwant:\n%s", b, want)
	}
}

func TestUniqueNames(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, time.March, 5, 14, 3, 59, 0, time.Local)

	var names []string
	for i := 0; i < 3; i++ {
		lg, err := create(dir, testHeader, now)
		if err != nil {
			t.Fatal(err)
		}
		defer lg.Close()

		names = append(names, filepath.Base(lg.Path()))
	}

	want := []string{
		"log_05-March-2024_14:03:59.csv",
		"log_05-March-2024_14:03:59_1.csv",
		"log_05-March-2024_14:03:59_2.csv",
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("log %d is named %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMissingFolder(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing"), testHeader)
	if !dnn.IsInvalidArgument(err) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(file, testHeader); !dnn.IsInvalidArgument(err) {
		t.Errorf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateNow(t *testing.T) {
	lg, err := Create(t.TempDir(), Header{})
	if err != nil {
		t.Fatal(err)
	}
	defer lg.Close()

	if name := filepath.Base(lg.Path()); !strings.HasPrefix(name, "log_") || !strings.HasSuffix(name, ".csv") {
		t.Errorf("unexpected log file name %q", name)
	}
}

func TestCloseNil(t *testing.T) {
	var lg *Log
	if err := lg.Close(); err != nil {
		t.Errorf("Close() on a nil Log = %v", err)
	}
}

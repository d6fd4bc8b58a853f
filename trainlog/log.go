// Package trainlog writes the accuracy of a Network over the course of its training to a CSV file,
// one row per epoch, preceded by a block of '#' comment lines describing the run.
package trainlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	dnn "github.com/nreh/MNIST-DNN-Training"
	"github.com/nreh/MNIST-DNN-Training/dataset"
)

// TimeFormat is the layout of the timestamps in file names and in the header, e.g.
// 05-March-2024_14:03:59
const TimeFormat = "02-January-2006_15:04:05"

// Header describes the training run that a Log is recording.
type Header struct {
	Paths dataset.Paths

	BatchSize     int
	TotalBatches  int
	TrainingCount int
	TestCount     int
}

// HeaderFrom fills a Header from the files that r has open.
func HeaderFrom(r *dataset.Reader) Header {
	return Header{
		Paths:         r.Paths(),
		BatchSize:     r.BatchSize(),
		TotalBatches:  r.TotalBatches(),
		TrainingCount: r.TrainingCount(),
		TestCount:     r.TestCount(),
	}
}

// Log is an open training log file.
type Log struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// Create makes a new log file in dir, named after the current time. If a file with that name
// already exists, "_1", "_2", ... is appended to the name until it doesn't.
//
// Create fails with ErrInvalidArgument if dir doesn't exist or isn't a directory.
func Create(dir string, h Header) (*Log, error) {
	return create(dir, h, time.Now())
}

func create(dir string, h Header, now time.Time) (*Log, error) {
	if info, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Log folder '%s' is unusable: %v", dir, err)
	} else if !info.IsDir() {
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Log folder '%s' is not a folder", dir)
	}

	stamp := now.Format(TimeFormat)
	name := "log_" + stamp

	var f *os.File
	path := filepath.Join(dir, name+".csv")
	for suffix := 1; ; suffix++ {
		var err error
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			break
		} else if !os.IsExist(err) {
			return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Couldn't create log file '%s': %v", path, err)
		}

		path = filepath.Join(dir, name+"_"+strconv.Itoa(suffix)+".csv")
	}

	glog.Infof("Writing training stats to %s", path)

	lg := &Log{path: path, f: f, w: csv.NewWriter(f)}
	if err := lg.writeHeader(h, stamp); err != nil {
		f.Close()
		return nil, err
	}

	return lg, nil
}

func (lg *Log) writeHeader(h Header, stamp string) error {
	lines := []string{
		"Training Log File",
		"******************************************",
		"Generated On: " + stamp,
		"Training Data File: " + h.Paths.TrainingData,
		"Training Labels File: " + h.Paths.TrainingLabels,
		"Test Data File: " + h.Paths.TestData,
		"Test Labels File: " + h.Paths.TestLabels,
		"Batch Size: " + strconv.Itoa(h.BatchSize),
		"Total batches in training data: " + strconv.Itoa(h.TotalBatches),
		"Total records in training data: " + strconv.Itoa(h.TrainingCount),
		"Total records in test data: " + strconv.Itoa(h.TestCount),
	}

	for _, l := range lines {
		if _, err := fmt.Fprintf(lg.f, "# %s\n", l); err != nil {
			return errors.Wrapf(err, "Couldn't write header of '%s'", lg.path)
		}
	}
	if _, err := fmt.Fprintln(lg.f); err != nil {
		return errors.Wrapf(err, "Couldn't write header of '%s'", lg.path)
	}

	return lg.write("epoch", "accuracy")
}

func (lg *Log) write(record ...string) error {
	if err := lg.w.Write(record); err != nil {
		return errors.Wrapf(err, "Couldn't write to '%s'", lg.path)
	}

	// every row is flushed so that the file can be followed while training
	lg.w.Flush()
	return errors.Wrapf(lg.w.Error(), "Couldn't write to '%s'", lg.path)
}

// Append adds the accuracy of the Network after the given epoch.
func (lg *Log) Append(epoch int, accuracy float64) error {
	return lg.write(strconv.Itoa(epoch), strconv.FormatFloat(accuracy, 'g', -1, 64))
}

// Path returns the path of the log file.
func (lg *Log) Path() string {
	return lg.path
}

// Close closes the log file. It is safe to call on a nil Log.
func (lg *Log) Close() error {
	if lg == nil {
		return nil
	}

	lg.w.Flush()
	return errors.Wrapf(lg.f.Close(), "Couldn't close '%s'", lg.path)
}

// Package dataset reads MNIST-style (idx) image and label files.
//
// Image files start with a 4-byte magic number, the number of images, the number of rows and the
// number of columns, all big-endian 32-bit integers, followed by one byte per pixel. Label files
// have the magic number and the number of labels, followed by one byte per label. Pixels are
// scaled to [0, 1] as they are read.
//
// Training data is read in batches, looping back to the start of the file once every record has
// been read, so that any number of epochs can be trained without re-opening the files. Test data
// is loaded in one go.
package dataset

import (
	"io"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	dnn "github.com/nreh/MNIST-DNN-Training"
)

// DefaultBatchSize is the number of records in a batch, unless another size is given to NewReader.
const DefaultBatchSize = 100

// Paths gives the files that a Reader has opened. Paths of files that haven't been opened are
// empty.
type Paths struct {
	TrainingData   string
	TrainingLabels string
	TestData       string
	TestLabels     string
}

// Reader holds the training and test files, and the buffers that records are read into.
type Reader struct {
	batchSize int

	trainData, trainLabels *file
	testData, testLabels   *file

	// index of the next record to be read from each training file
	dataCursor, labelCursor int

	// number of batches read since the training data last looped back
	currentBatch int

	trainingBatch      [][]float64
	trainingLabelBatch []uint8

	testDataBuf   [][]float64
	testLabelsBuf []uint8

	// whether the open test files have been loaded into the buffers
	testDataLoaded, testLabelsLoaded bool
}

// NewReader returns a Reader that reads training data in batches of batchSize.
func NewReader(batchSize int) (*Reader, error) {
	if batchSize <= 0 {
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "batch size must be positive (given %d)", batchSize)
	}

	return &Reader{batchSize: batchSize}, nil
}

// BatchSize returns the number of records in a full batch.
func (r *Reader) BatchSize() int {
	return r.batchSize
}

// OpenTrainingData opens the training image file at path, replacing any that is already open.
func (r *Reader) OpenTrainingData(path string) error {
	glog.Infof("Opening training data file '%s' ...", path)

	fl, err := openFile(path, true)
	if err != nil {
		return errors.Wrap(err, "Couldn't open training data")
	}

	r.trainData.close()
	r.trainData = fl
	r.dataCursor = 0
	r.currentBatch = 0

	glog.V(1).Infof("count = %d, rows,cols = %d,%d", fl.count, fl.rows, fl.cols)

	// a single backing slice for the whole batch
	size := fl.recordSize()
	backing := make([]float64, r.batchSize*size)
	r.trainingBatch = make([][]float64, r.batchSize)
	for i := range r.trainingBatch {
		r.trainingBatch[i] = backing[i*size : (i+1)*size : (i+1)*size]
	}

	r.checkCounts()
	return nil
}

// OpenTrainingLabels opens the training label file at path, replacing any that is already open.
func (r *Reader) OpenTrainingLabels(path string) error {
	glog.Infof("Opening training labels file '%s' ...", path)

	fl, err := openFile(path, false)
	if err != nil {
		return errors.Wrap(err, "Couldn't open training labels")
	}

	r.trainLabels.close()
	r.trainLabels = fl
	r.labelCursor = 0

	glog.V(1).Infof("count = %d", fl.count)

	r.trainingLabelBatch = make([]uint8, r.batchSize)

	r.checkCounts()
	return nil
}

// OpenTestData opens the test image file at path, replacing any that is already open. The images
// aren't read until LoadTestData is called.
func (r *Reader) OpenTestData(path string) error {
	glog.Infof("Opening test data file '%s' ...", path)

	fl, err := openFile(path, true)
	if err != nil {
		return errors.Wrap(err, "Couldn't open test data")
	}

	r.testData.close()
	r.testData = fl
	r.testDataLoaded = false

	glog.V(1).Infof("count = %d, rows,cols = %d,%d", fl.count, fl.rows, fl.cols)

	size := fl.recordSize()
	backing := make([]float64, fl.count*size)
	r.testDataBuf = make([][]float64, fl.count)
	for i := range r.testDataBuf {
		r.testDataBuf[i] = backing[i*size : (i+1)*size : (i+1)*size]
	}

	return nil
}

// OpenTestLabels opens the test label file at path, replacing any that is already open. The labels
// aren't read until LoadTestLabels is called.
func (r *Reader) OpenTestLabels(path string) error {
	glog.Infof("Opening test labels file '%s' ...", path)

	fl, err := openFile(path, false)
	if err != nil {
		return errors.Wrap(err, "Couldn't open test labels")
	}

	r.testLabels.close()
	r.testLabels = fl
	r.testLabelsLoaded = false

	glog.V(1).Infof("count = %d", fl.count)

	r.testLabelsBuf = make([]uint8, fl.count)
	return nil
}

func (r *Reader) checkCounts() {
	if r.trainData != nil && r.trainLabels != nil && r.trainData.count != r.trainLabels.count {
		glog.Warningf("Training data has %d records but training labels has %d", r.trainData.count, r.trainLabels.count)
	}
}

func notOpen(fl *file, kind string) error {
	if fl == nil {
		return errors.Wrapf(dnn.ErrInvalidOperation, "%s file has not been opened for reading", kind)
	}

	return nil
}

// LoadTestData reads every test image into memory. If the file turns out shorter than it was when
// opened, reading stops there and the remaining images are left blank.
func (r *Reader) LoadTestData() error {
	if err := notOpen(r.testData, "Test data"); err != nil {
		return err
	}

	n, err := r.loadAll(r.testData, func(i int, rec []byte) {
		normalize(r.testDataBuf[i], rec)
	})
	if err != nil {
		return err
	}

	glog.V(1).Infof("Loaded %d test images", n)
	r.testDataLoaded = true
	return nil
}

// LoadTestLabels reads every test label into memory. As with LoadTestData, a short file is not an
// error.
func (r *Reader) LoadTestLabels() error {
	if err := notOpen(r.testLabels, "Test labels"); err != nil {
		return err
	}

	n, err := r.loadAll(r.testLabels, func(i int, rec []byte) {
		r.testLabelsBuf[i] = rec[0]
	})
	if err != nil {
		return err
	}

	glog.V(1).Infof("Loaded %d test labels", n)
	r.testLabelsLoaded = true
	return nil
}

// TestSetLoaded returns an error unless both test files have been opened and loaded, with cause
// ErrInvalidOperation.
func (r *Reader) TestSetLoaded() error {
	if err := notOpen(r.testData, "Test data"); err != nil {
		return err
	} else if err := notOpen(r.testLabels, "Test labels"); err != nil {
		return err
	}

	if !r.testDataLoaded {
		return errors.Wrap(dnn.ErrInvalidOperation, "Test data has not been loaded")
	} else if !r.testLabelsLoaded {
		return errors.Wrap(dnn.ErrInvalidOperation, "Test labels have not been loaded")
	}

	return nil
}

func (r *Reader) loadAll(fl *file, store func(int, []byte)) (int, error) {
	if err := fl.rewind(); err != nil {
		return 0, errors.Wrap(dnn.ErrInvalidArgument, err.Error())
	}

	for i := 0; i < fl.count; i++ {
		if err := fl.next(); err == io.EOF {
			glog.Warningf("File '%s' ends after %d of %d records", fl.path, i, fl.count)
			return i, nil
		} else if err != nil {
			return i, errors.Wrapf(dnn.ErrInvalidArgument, "Couldn't read record %d of '%s': %v", i, fl.path, err)
		}

		store(i, fl.record)
	}

	return fl.count, nil
}

// NextTrainingBatch reads the next batch of training images, available afterwards through
// TrainingBatch, and returns the number of images read. This is the batch size, except for the
// final batch of the file, which holds whatever records remain.
//
// Once the last record has been read, the file loops back to the first record and the batch
// counter is reset to 0.
func (r *Reader) NextTrainingBatch() (int, error) {
	if err := notOpen(r.trainData, "Training data"); err != nil {
		return 0, err
	}

	n, wrapped, err := r.readBatch(r.trainData, &r.dataCursor, func(i int, rec []byte) {
		normalize(r.trainingBatch[i], rec)
	})
	if err != nil {
		r.currentBatch = 0
		return 0, err
	}

	r.currentBatch++
	if wrapped {
		glog.V(1).Infof("Looped back training data file")
		r.currentBatch = 0
	}

	return n, nil
}

// NextTrainingLabelBatch is NextTrainingBatch for the training labels, which are available
// afterwards through TrainingLabelBatch.
func (r *Reader) NextTrainingLabelBatch() (int, error) {
	if err := notOpen(r.trainLabels, "Training labels"); err != nil {
		return 0, err
	}

	n, wrapped, err := r.readBatch(r.trainLabels, &r.labelCursor, func(i int, rec []byte) {
		r.trainingLabelBatch[i] = rec[0]
	})
	if err != nil {
		return 0, err
	}

	if wrapped {
		glog.V(1).Infof("Looped back training labels file")
	}

	return n, nil
}

// readBatch reads up to one batch of records from fl, starting at *cursor. If the end of the
// records is reached, fl is rewound and *cursor reset before returning, so that the next call
// starts at the first record again.
//
// If reading fails, fl is rewound as well; a failed call never leaves the cursor partway through
// a batch.
func (r *Reader) readBatch(fl *file, cursor *int, store func(int, []byte)) (n int, wrapped bool, err error) {
	eof := false
	for n < r.batchSize && *cursor < fl.count {
		if err = fl.next(); err == io.EOF {
			glog.Warningf("File '%s' ends after %d of %d records", fl.path, *cursor, fl.count)
			err, eof = nil, true
			break
		} else if err != nil {
			err = errors.Wrapf(dnn.ErrInvalidArgument, "Couldn't read record %d of '%s': %v", *cursor, fl.path, err)
			break
		}

		store(n, fl.record)
		n++
		*cursor++
	}

	if err == nil && !eof && *cursor < fl.count {
		return n, false, nil
	}

	*cursor = 0
	if rerr := fl.rewind(); rerr != nil && err == nil {
		err = errors.Wrap(dnn.ErrInvalidArgument, rerr.Error())
	}
	if err != nil {
		return 0, false, err
	}

	return n, true, nil
}

// Close closes every open file. The Reader can't be read from afterwards until its files are
// opened again.
func (r *Reader) Close() error {
	var first error
	for _, fl := range []**file{&r.trainData, &r.trainLabels, &r.testData, &r.testLabels} {
		if err := (*fl).close(); err != nil && first == nil {
			first = errors.Wrapf(err, "Couldn't close '%s'", (*fl).path)
		}
		*fl = nil
	}
	r.testDataLoaded, r.testLabelsLoaded = false, false

	return first
}

// CurrentBatch returns the number of batches of training data read since the file last looped
// back.
func (r *Reader) CurrentBatch() int {
	return r.currentBatch
}

// TotalBatches returns the number of batches in one pass over the training data.
func (r *Reader) TotalBatches() int {
	return (r.TrainingCount() + r.batchSize - 1) / r.batchSize
}

// TrainingCount returns the number of records in the training set.
func (r *Reader) TrainingCount() int {
	if r.trainData != nil {
		return r.trainData.count
	} else if r.trainLabels != nil {
		return r.trainLabels.count
	}

	return 0
}

// TestCount returns the number of records in the test set.
func (r *Reader) TestCount() int {
	if r.testData != nil {
		return r.testData.count
	} else if r.testLabels != nil {
		return r.testLabels.count
	}

	return 0
}

// Rows returns the number of rows in each image, or 0 if no image file is open.
func (r *Reader) Rows() int {
	if r.trainData != nil {
		return r.trainData.rows
	} else if r.testData != nil {
		return r.testData.rows
	}

	return 0
}

// Columns returns the number of columns in each image, or 0 if no image file is open.
func (r *Reader) Columns() int {
	if r.trainData != nil {
		return r.trainData.cols
	} else if r.testData != nil {
		return r.testData.cols
	}

	return 0
}

// InputSize returns the number of pixels in each image.
func (r *Reader) InputSize() int {
	return r.Rows() * r.Columns()
}

// TrainingBatch returns the buffer holding the most recent batch of training images. Only the
// first n records are valid, where n was returned by NextTrainingBatch. The buffer is reused by
// every call.
func (r *Reader) TrainingBatch() [][]float64 {
	return r.trainingBatch
}

// TrainingLabelBatch returns the buffer holding the most recent batch of training labels.
func (r *Reader) TrainingLabelBatch() []uint8 {
	return r.trainingLabelBatch
}

// TestData returns every test image, as loaded by LoadTestData.
func (r *Reader) TestData() [][]float64 {
	return r.testDataBuf
}

// TestLabels returns every test label, as loaded by LoadTestLabels.
func (r *Reader) TestLabels() []uint8 {
	return r.testLabelsBuf
}

// Paths returns the paths of the files that are open.
func (r *Reader) Paths() Paths {
	var p Paths
	for _, f := range []struct {
		fl  *file
		dst *string
	}{
		{r.trainData, &p.TrainingData},
		{r.trainLabels, &p.TrainingLabels},
		{r.testData, &p.TestData},
		{r.testLabels, &p.TestLabels},
	} {
		if f.fl != nil {
			*f.dst = f.fl.path
		}
	}

	return p
}

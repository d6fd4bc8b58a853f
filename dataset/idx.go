package dataset

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	dnn "github.com/nreh/MNIST-DNN-Training"
)

// Header sizes of the two file types. Both start with a 4-byte magic number (which is skipped)
// and a 4-byte item count; image files follow that with the number of rows and columns.
const (
	imageHeaderSize = 16
	labelHeaderSize = 8
)

// MaxRecordSize is the largest number of pixels in an image that a file may declare.
const MaxRecordSize = 1 << 24

// Magic numbers written by WriteImages and WriteLabels. They are never checked when reading.
const (
	ImageMagic uint32 = 0x00000803
	LabelMagic uint32 = 0x00000801
)

// file is an open image or label file, positioned somewhere after its header.
type file struct {
	path string

	f *os.File
	r *bufio.Reader

	// headerSize is the offset of the first record
	headerSize int64

	count      int
	rows, cols int

	// reusable buffer for a single record
	record []byte
}

// openFile opens the file at path and parses its header. Label files are treated as images of
// 1×1 pixels.
func openFile(path string, image bool) (*file, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Unable to open file '%s': %v", path, err)
	}

	fl := &file{path: path, f: f, r: bufio.NewReader(f), headerSize: labelHeaderSize, rows: 1, cols: 1}
	if image {
		fl.headerSize = imageHeaderSize
	}

	header := make([]byte, fl.headerSize)
	if _, err = io.ReadFull(fl.r, header); err != nil {
		f.Close()
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Unable to read header of file '%s': %v", path, err)
	}

	// header[0:4] is the magic number
	count := binary.BigEndian.Uint32(header[4:8])
	if image {
		rows := binary.BigEndian.Uint32(header[8:12])
		cols := binary.BigEndian.Uint32(header[12:16])

		// compared as uint64, where the product can't overflow
		if rows == 0 || cols == 0 || uint64(rows)*uint64(cols) > MaxRecordSize {
			f.Close()
			return nil, errors.Wrapf(dnn.ErrInvalidArgument, "File '%s' has images of %dx%d pixels", path, rows, cols)
		}

		fl.rows, fl.cols = int(rows), int(cols)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(dnn.ErrInvalidArgument, "Unable to stat file '%s': %v", path, err)
	}

	// buffers are sized by the count, so it can't be trusted beyond what the file holds
	held := uint64(info.Size()-fl.headerSize) / uint64(fl.recordSize())
	if uint64(count) > held {
		glog.Warningf("File '%s' claims %d records but only holds %d", path, count, held)
		count = uint32(held)
	}
	fl.count = int(count)

	fl.record = make([]byte, fl.recordSize())
	return fl, nil
}

func (fl *file) recordSize() int {
	return fl.rows * fl.cols
}

// rewind moves back to the first record, just past the header.
func (fl *file) rewind() error {
	if _, err := fl.f.Seek(fl.headerSize, io.SeekStart); err != nil {
		return errors.Wrapf(err, "Couldn't rewind file '%s'", fl.path)
	}

	fl.r.Reset(fl.f)
	return nil
}

// next reads the next record into fl.record. It returns io.EOF if the file ends before the record
// is complete.
func (fl *file) next() error {
	_, err := io.ReadFull(fl.r, fl.record)
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}

	return err
}

func (fl *file) close() error {
	if fl == nil {
		return nil
	}

	return fl.f.Close()
}

// normalize writes the pixels of rec into dst, scaled from [0, 255] to [0, 1].
func normalize(dst []float64, rec []byte) {
	for i, b := range rec {
		dst[i] = float64(b) / 255
	}
}

package dataset

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// WriteImages writes an image file with the given dimensions to w. Every image must have exactly
// rows*cols pixels.
func WriteImages(w io.Writer, rows, cols int, images [][]byte) error {
	bw := bufio.NewWriter(w)

	header := make([]byte, imageHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], ImageMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(images)))
	binary.BigEndian.PutUint32(header[8:12], uint32(rows))
	binary.BigEndian.PutUint32(header[12:16], uint32(cols))

	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(err, "Couldn't write image header")
	}

	for i, img := range images {
		if len(img) != rows*cols {
			return errors.Errorf("Image %d has %d pixels, should have %d", i, len(img), rows*cols)
		}

		if _, err := bw.Write(img); err != nil {
			return errors.Wrapf(err, "Couldn't write image %d", i)
		}
	}

	return errors.Wrap(bw.Flush(), "Couldn't flush images")
}

// WriteLabels writes a label file to w.
func WriteLabels(w io.Writer, labels []byte) error {
	bw := bufio.NewWriter(w)

	header := make([]byte, labelHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], LabelMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(labels)))

	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(err, "Couldn't write label header")
	}
	if _, err := bw.Write(labels); err != nil {
		return errors.Wrap(err, "Couldn't write labels")
	}

	return errors.Wrap(bw.Flush(), "Couldn't flush labels")
}

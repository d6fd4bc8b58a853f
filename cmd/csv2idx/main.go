// Command csv2idx converts a dataset in CSV form into the pair of idx files read by mnist. Each
// line of the input holds the class followed by every pixel of the image, row by row:
//
//	<class>, img[0], img[1], img[2], ... img[783]
//
// where <class> is 0 -> 9 and img[n] is an integer in the range [0, 255].
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/nreh/MNIST-DNN-Training/dataset"
)

var (
	in         = flag.String("in", "", "CSV file to convert (required)")
	imagesOut  = flag.String("images", "", "image file to write (required)")
	labelsOut  = flag.String("labels", "", "label file to write (required)")
	rows       = flag.Int("rows", 28, "number of rows in each image")
	cols       = flag.Int("cols", 28, "number of columns in each image")
	numClasses = flag.Int("classes", 10, "number of classes; every class must be below this")
)

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()

	if *in == "" || *imagesOut == "" || *labelsOut == "" {
		fmt.Fprintln(flag.CommandLine.Output(), "-in, -images and -labels are required")
		flag.Usage()
		os.Exit(2)
	}

	if err := convert(); err != nil {
		glog.Errorf("%+v", err)
		glog.Flush()
		os.Exit(1)
	}

	glog.Flush()
}

func convert() error {
	f, err := os.Open(*in)
	if err != nil {
		return errors.Wrapf(err, "Couldn't open file %s", *in)
	}
	defer f.Close()

	images, labels, err := parse(f, *rows**cols, *numClasses)
	if err != nil {
		return errors.Wrapf(err, "Couldn't read %s", *in)
	}

	glog.Infof("Read %d images from %s", len(images), *in)

	if err = write(*imagesOut, func(w io.Writer) error {
		return dataset.WriteImages(w, *rows, *cols, images)
	}); err != nil {
		return err
	}

	return write(*labelsOut, func(w io.Writer) error {
		return dataset.WriteLabels(w, labels)
	})
}

func write(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Couldn't create file %s", path)
	}

	if err = fn(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "Couldn't write %s", path)
	}

	glog.Infof("Wrote %s", path)
	return errors.Wrapf(f.Close(), "Couldn't close %s", path)
}

// parse reads every line of r as an image of imgSize pixels, preceded by its class. Blank lines
// are skipped.
func parse(r io.Reader, imgSize, numClasses int) (images [][]byte, labels []byte, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for line := 1; sc.Scan(); line++ {
		str := strings.TrimSpace(sc.Text())
		if str == "" {
			continue
		}

		img, class, err := image(str, imgSize, numClasses)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "Couldn't get image on line %d", line)
		}

		images = append(images, img)
		labels = append(labels, class)
	}

	if err = sc.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "Scanning encountered an error")
	}

	return images, labels, nil
}

func image(str string, imgSize, numClasses int) (img []byte, class byte, err error) {
	s := strings.Split(str, ",")

	if len(s) != imgSize+1 {
		err = errors.Errorf("Can't get image, wrong number of values on line (had %d, should be %d)", len(s), imgSize+1)
		return
	}

	c, err := strconv.ParseUint(strings.TrimSpace(s[0]), 10, 8)
	if err != nil {
		err = errors.Wrapf(err, "Couldn't parse value of class (given: %s)", s[0])
		return
	} else if int(c) >= numClasses {
		err = errors.Errorf("Class is out of bounds (%d >= %d)", c, numClasses)
		return
	}
	class = byte(c)

	img = make([]byte, imgSize)
	for i := range img {
		var v uint64
		if v, err = strconv.ParseUint(strings.TrimSpace(s[i+1]), 10, 8); err != nil {
			err = errors.Wrapf(err, "Couldn't parse value %d of line (given: %s)", i, s[i+1])
			return
		}

		img[i] = byte(v)
	}

	return
}

package archivefs

import (
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Filter wraps a stream with bzip2 via dsnet/compress, which (unlike
// stdlib compress/bzip2) can write, not just read.
type bzip2Filter struct{}

func (bzip2Filter) Code() FilterCode { return FilterBzip2 }

func (bzip2Filter) WrapReader(r io.Reader) (io.Reader, error) {
	return bzip2.NewReader(r, nil)
}

func (bzip2Filter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return bzip2.NewWriter(w, nil)
}

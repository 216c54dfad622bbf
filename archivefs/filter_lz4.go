package archivefs

import (
	"io"

	"github.com/pierrec/lz4/v4"
)

// lz4Filter wraps a stream with LZ4, chosen over the archive's other
// filters when decode speed matters more than ratio.
type lz4Filter struct{}

func (lz4Filter) Code() FilterCode { return FilterLZ4 }

func (lz4Filter) WrapReader(r io.Reader) (io.Reader, error) {
	return lz4.NewReader(r), nil
}

func (lz4Filter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

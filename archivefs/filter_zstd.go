package archivefs

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// zstdFilter wraps a stream with zstd, the modern high-ratio/high-speed
// option libarchive itself grew support for well after the original
// filter code list was fixed; kept as its own filter code here rather
// than overloading one of the legacy ones.
type zstdFilter struct{}

func (zstdFilter) Code() FilterCode { return FilterZstd }

func (zstdFilter) WrapReader(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (zstdFilter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

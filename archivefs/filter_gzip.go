package archivefs

import (
	"io"

	pgzip "github.com/klauspost/pgzip"
)

// gzipFilter wraps a stream with parallel gzip, using klauspost/pgzip
// rather than stdlib compress/gzip for the throughput win on large
// archives — the filter stage is where this module leans on the pack's
// compression libraries instead of stdlib (see DESIGN.md).
type gzipFilter struct{}

func (gzipFilter) Code() FilterCode { return FilterGzip }

func (gzipFilter) WrapReader(r io.Reader) (io.Reader, error) {
	return pgzip.NewReader(r)
}

func (gzipFilter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return pgzip.NewWriter(w), nil
}

package archivefs

import (
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// xzFilter wraps a stream with xz, matching libarchive's distinct
// ARCHIVE_FILTER_XZ.
type xzFilter struct{}

func (xzFilter) Code() FilterCode { return FilterXZ }

func (xzFilter) WrapReader(r io.Reader) (io.Reader, error) {
	return xz.NewReader(r)
}

func (xzFilter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(w)
}

// lzmaFilter wraps a stream with raw LZMA, matching libarchive's
// distinct ARCHIVE_FILTER_LZMA (xz is LZMA2 framed differently; the two
// are kept as separate filter codes just as libarchive keeps them).
type lzmaFilter struct{}

func (lzmaFilter) Code() FilterCode { return FilterLZMA }

func (lzmaFilter) WrapReader(r io.Reader) (io.Reader, error) {
	return lzma.NewReader(r)
}

func (lzmaFilter) WrapWriter(w io.Writer) (io.WriteCloser, error) {
	return lzma.NewWriter(w)
}

package archivefs

import (
	"archive/zip"
	"io"
	"os"
)

// zipFormat implements Format over the stdlib zip package, the second
// writable container this module supports. See format_tar.go's doc
// comment and DESIGN.md for why stdlib rather than one of the pack's zip
// libraries.
type zipFormat struct{}

func (zipFormat) Code() FormatCode { return FormatZip }
func (zipFormat) Writable() bool   { return true }

func (zipFormat) NewReader(r io.Reader) (Reader, error) {
	ra, ok := r.(io.ReaderAt)
	if !ok {
		return nil, newErr(ErrNotSupported, "zip.NewReader", "", nil)
	}
	sz, err := seekableSize(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, sz)
	if err != nil {
		return nil, err
	}
	return &zipReader{zr: zr}, nil
}

func (zipFormat) NewWriter(w io.Writer) (Writer, error) {
	return &zipWriter{zw: zip.NewWriter(w)}, nil
}

func seekableSize(r io.Reader) (int64, error) {
	s, ok := r.(io.Seeker)
	if !ok {
		return 0, newErr(ErrNotSupported, "zip.NewReader", "", nil)
	}
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

type zipReader struct {
	zr  *zip.Reader
	idx int
	cur io.ReadCloser
}

func (r *zipReader) Next() (*Header, error) {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	if r.idx >= len(r.zr.File) {
		return nil, io.EOF
	}
	f := r.zr.File[r.idx]
	r.idx++

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	r.cur = rc

	typ := EntryRegular
	if f.FileInfo().IsDir() {
		typ = EntryDirectory
	}
	return &Header{
		Name:    f.Name,
		Size:    int64(f.UncompressedSize64),
		Mode:    uint32(f.Mode()),
		Type:    typ,
		ModTime: f.Modified,
	}, nil
}

func (r *zipReader) Read(p []byte) (int, error) {
	if r.cur == nil {
		return 0, io.EOF
	}
	return r.cur.Read(p)
}

type zipWriter struct {
	zw  *zip.Writer
	cur io.Writer
}

func (w *zipWriter) WriteHeader(h *Header) error {
	fh := &zip.FileHeader{
		Name:     h.Name,
		Method:   zip.Deflate,
		Modified: h.ModTime,
	}
	fh.SetMode(os.FileMode(h.Mode))
	if h.Type == EntryDirectory && len(fh.Name) > 0 && fh.Name[len(fh.Name)-1] != '/' {
		fh.Name += "/"
	}
	cw, err := w.zw.CreateHeader(fh)
	if err != nil {
		return err
	}
	w.cur = cw
	return nil
}

func (w *zipWriter) Write(p []byte) (int, error) {
	if w.cur == nil {
		return 0, newErr(ErrInvalidArgument, "zip.Write", "", nil)
	}
	return w.cur.Write(p)
}

func (w *zipWriter) Close() error { return w.zw.Close() }

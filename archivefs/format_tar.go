package archivefs

import (
	"archive/tar"
	"io"
)

// tarFormat implements Format over the stdlib tar package. Tar is the
// one container format every archive codec needs to get exactly right —
// every ArchiveTree/ArchiveSession/ArchiveBackend operation streams
// through it — so it's grounded on the one fully-known API in reach
// (see DESIGN.md for why the pack's third-party format libraries weren't
// used here instead).
type tarFormat struct{}

func (tarFormat) Code() FormatCode   { return FormatTar }
func (tarFormat) Writable() bool     { return true }

func (tarFormat) NewReader(r io.Reader) (Reader, error) {
	return &tarReader{tr: tar.NewReader(r)}, nil
}

func (tarFormat) NewWriter(w io.Writer) (Writer, error) {
	return &tarWriter{tw: tar.NewWriter(w)}, nil
}

type tarReader struct {
	tr *tar.Reader
}

func (r *tarReader) Next() (*Header, error) {
	th, err := r.tr.Next()
	if err != nil {
		return nil, err
	}
	return &Header{
		Name:       th.Name,
		Size:       th.Size,
		Mode:       uint32(th.Mode),
		Type:       tarTypeflagToEntryType(th.Typeflag),
		Linkname:   th.Linkname,
		ModTime:    th.ModTime,
		AccessTime: th.AccessTime,
		ChangeTime: th.ChangeTime,
	}, nil
}

func (r *tarReader) Read(p []byte) (int, error) { return r.tr.Read(p) }

type tarWriter struct {
	tw *tar.Writer
}

func (w *tarWriter) WriteHeader(h *Header) error {
	return w.tw.WriteHeader(&tar.Header{
		Name:       h.Name,
		Size:       h.Size,
		Mode:       int64(h.Mode),
		Typeflag:   entryTypeToTarTypeflag(h.Type),
		Linkname:   h.Linkname,
		ModTime:    h.ModTime,
		AccessTime: h.AccessTime,
		ChangeTime: h.ChangeTime,
	})
}

func (w *tarWriter) Write(p []byte) (int, error) { return w.tw.Write(p) }
func (w *tarWriter) Close() error                { return w.tw.Close() }

func tarTypeflagToEntryType(flag byte) EntryType {
	switch flag {
	case tar.TypeDir:
		return EntryDirectory
	case tar.TypeSymlink:
		return EntrySymlink
	case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
		return EntrySpecial
	default:
		return EntryRegular
	}
}

func entryTypeToTarTypeflag(t EntryType) byte {
	switch t {
	case EntryDirectory:
		return tar.TypeDir
	case EntrySymlink:
		return tar.TypeSymlink
	case EntrySpecial:
		return tar.TypeChar
	default:
		return tar.TypeReg
	}
}

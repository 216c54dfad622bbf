package archivefs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// blockSize is the fixed I/O buffer size used when streaming entry data
// between a read session and a write session — gvfs_archive_copy_data's
// own 10,240-byte buffer.
const blockSize = 10240

// Session wraps one read pass and/or one write pass over an archive
// through a Format/Filter codec. Every operation is sticky: once one
// fails, every later call on the session short-circuits and returns that
// same failure, matching gvfs_archive's own latch-on-first-error
// behavior rather than letting a caller paper over a torn stream.
type Session struct {
	ID uuid.UUID

	ctx    context.Context
	logger *zap.Logger

	readFile *os.File
	reader   Reader

	origPath string
	tmpFile  *os.File
	tmpPath  string
	writer   Writer

	hasOrigOwnership bool
	origMode         os.FileMode
	origUID          int
	origGID          int

	buf [blockSize]byte
	err error
}

// OpenSession opens path for reading (if wantRead), and/or a fresh
// same-directory temp file for writing (if wantWrite), running both
// through format with filterChain applied outermost-first.
func OpenSession(ctx context.Context, path string, format Format, filterChain []FilterCode, wantRead, wantWrite bool, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{ID: uuid.New(), ctx: ctx, logger: logger, origPath: path}

	if wantRead {
		f, err := os.Open(path)
		if err != nil {
			return nil, newErr(ErrNotFound, "open", path, err)
		}
		s.readFile = f

		var r io.Reader = f
		for _, code := range filterChain {
			filt, ok := LookupFilter(code)
			if !ok {
				f.Close()
				return nil, newErr(ErrNotSupported, "open", path, nil)
			}
			wrapped, err := filt.WrapReader(r)
			if err != nil {
				f.Close()
				return nil, newErr(ErrFailed, "open", path, err)
			}
			r = wrapped
		}
		reader, err := format.NewReader(r)
		if err != nil {
			f.Close()
			return nil, newErr(ErrFailed, "open", path, err)
		}
		s.reader = reader
	}

	if wantWrite {
		dir := filepath.Dir(path)
		tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
		if err != nil {
			if s.readFile != nil {
				s.readFile.Close()
			}
			return nil, newErr(ErrFailed, "open", path, err)
		}
		s.tmpFile = tmp
		s.tmpPath = tmp.Name()

		if fi, statErr := os.Stat(path); statErr == nil {
			s.origMode = fi.Mode()
			if st, ok := fi.Sys().(*syscall.Stat_t); ok {
				s.origUID = int(st.Uid)
				s.origGID = int(st.Gid)
				s.hasOrigOwnership = true
			}
			if err := os.Chmod(s.tmpPath, s.origMode); err != nil {
				s.abortTemp()
				return nil, newErr(ErrFailed, "open", path, err)
			}
		}

		var w io.Writer = tmp
		var closers []io.Closer
		for _, code := range filterChain {
			filt, ok := LookupFilter(code)
			if !ok {
				s.abortTemp()
				return nil, newErr(ErrNotSupported, "open", path, nil)
			}
			wc, err := filt.WrapWriter(w)
			if err != nil {
				s.abortTemp()
				return nil, newErr(ErrFailed, "open", path, err)
			}
			closers = append(closers, wc)
			w = wc
		}
		writer, err := format.NewWriter(w)
		if err != nil {
			s.abortTemp()
			return nil, newErr(ErrFailed, "open", path, err)
		}
		s.writer = filterClosingWriter{Writer: writer, closers: closers}
	}

	return s, nil
}

// filterClosingWriter makes sure every filter's WrapWriter return value
// gets Closed (flushing any buffered compressor state) when the format
// writer itself closes.
type filterClosingWriter struct {
	Writer
	closers []io.Closer
}

func (w filterClosingWriter) Close() error {
	err := w.Writer.Close()
	for i := len(w.closers) - 1; i >= 0; i-- {
		if cerr := w.closers[i].Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Err returns the session's sticky error, if one has been latched.
func (s *Session) Err() error { return s.err }

func (s *Session) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return s.err
}

func (s *Session) checkCancelled() error {
	if s.err != nil {
		return s.err
	}
	select {
	case <-s.ctx.Done():
		return s.fail(newErr(ErrCancelled, "session", s.origPath, s.ctx.Err()))
	default:
		return nil
	}
}

// Next advances the read half to the next entry header.
func (s *Session) Next() (*Header, error) {
	if err := s.checkCancelled(); err != nil {
		return nil, err
	}
	h, err := s.reader.Next()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, s.fail(newErr(ErrFailed, "read", s.origPath, err))
	}
	return h, nil
}

// Skip discards the current entry's data without copying it anywhere —
// used when a mutation drops an entry from the rewritten archive.
func (s *Session) Skip() error {
	if err := s.checkCancelled(); err != nil {
		return err
	}
	if _, err := io.CopyBuffer(io.Discard, s.reader, s.buf[:]); err != nil && err != io.EOF {
		return s.fail(newErr(ErrFailed, "skip", s.origPath, err))
	}
	return nil
}

// CopyEntry writes h (typically the just-read header, possibly with a
// renamed Name) to the write half, then streams the current read entry's
// data across in blockSize chunks — gvfs_archive_copy_data's loop.
func (s *Session) CopyEntry(h *Header) error {
	if err := s.checkCancelled(); err != nil {
		return err
	}
	if err := s.writer.WriteHeader(h); err != nil {
		return s.fail(newErr(ErrFailed, "write", s.origPath, err))
	}
	for {
		if err := s.checkCancelled(); err != nil {
			return err
		}
		n, rerr := s.reader.Read(s.buf[:])
		if n > 0 {
			if _, werr := s.writer.Write(s.buf[:n]); werr != nil {
				return s.fail(newErr(ErrFailed, "write", s.origPath, werr))
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return s.fail(newErr(ErrFailed, "read", s.origPath, rerr))
		}
	}
}

// CopyFrom writes h followed by src's full contents to the write half —
// used when an entry's data comes from outside the archive being
// rewritten (Push), rather than from the paired read session (CopyEntry).
func (s *Session) CopyFrom(h *Header, src io.Reader) error {
	if err := s.checkCancelled(); err != nil {
		return err
	}
	if err := s.writer.WriteHeader(h); err != nil {
		return s.fail(newErr(ErrFailed, "write", s.origPath, err))
	}
	for {
		if err := s.checkCancelled(); err != nil {
			return err
		}
		n, rerr := src.Read(s.buf[:])
		if n > 0 {
			if _, werr := s.writer.Write(s.buf[:n]); werr != nil {
				return s.fail(newErr(ErrFailed, "write", s.origPath, werr))
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return s.fail(newErr(ErrFailed, "read", s.origPath, rerr))
		}
	}
}

// WriteHeaderOnly appends a zero-data entry (a directory, typically).
func (s *Session) WriteHeaderOnly(h *Header) error {
	if err := s.checkCancelled(); err != nil {
		return err
	}
	if err := s.writer.WriteHeader(h); err != nil {
		return s.fail(newErr(ErrFailed, "write", s.origPath, err))
	}
	return nil
}

// ReadData reads from the current entry's data directly, for callers
// that want the bytes rather than a verbatim copy (query/open-for-read).
func (s *Session) ReadData(p []byte) (int, error) {
	if err := s.checkCancelled(); err != nil {
		return 0, err
	}
	n, err := s.reader.Read(p)
	if err != nil && err != io.EOF {
		return n, s.fail(newErr(ErrFailed, "read", s.origPath, err))
	}
	return n, err
}

// CopyPrefix reports whether name sits at or under prefix1 as a full
// path-segment match (not just a string prefix — "/ab" must not match
// prefix1 "/a"), returning the name with prefix1 replaced by prefix2 when
// it does. The caller decides what to do with a match (rename it, drop
// it for a delete, etc.); CopyPrefix never copies data itself — that's
// gvfs_archive_copy_prefix's split of responsibility.
func CopyPrefix(name, prefix1, prefix2 string) (newName string, matched bool) {
	if name == prefix1 {
		return prefix2, true
	}
	withSlash := prefix1
	if withSlash != "" && withSlash[len(withSlash)-1] != '/' {
		withSlash += "/"
	}
	if len(name) > len(withSlash) && name[:len(withSlash)] == withSlash {
		return prefix2 + name[len(prefix1):], true
	}
	return name, false
}

// Finish closes out the session: on success, the write half's temp file
// is renamed over the original (same directory, so the rename is atomic)
// and the read half is closed; on failure (or a session that was never
// going to succeed), the temp file is deleted and the original is left
// untouched.
func (s *Session) Finish(success bool) error {
	if s.readFile != nil {
		s.readFile.Close()
	}
	if s.writer == nil {
		return s.err
	}

	if !success || s.err != nil {
		s.abortTemp()
		return s.err
	}

	if err := s.writer.Close(); err != nil {
		s.abortTemp()
		return s.fail(newErr(ErrFailed, "close", s.origPath, err))
	}
	if err := s.tmpFile.Close(); err != nil {
		os.Remove(s.tmpPath)
		return s.fail(newErr(ErrFailed, "close", s.origPath, err))
	}
	if s.hasOrigOwnership {
		if err := os.Chown(s.tmpPath, s.origUID, s.origGID); err != nil {
			os.Remove(s.tmpPath)
			return s.fail(newErr(ErrFailed, "chown", s.origPath, err))
		}
	}
	if err := os.Rename(s.tmpPath, s.origPath); err != nil {
		os.Remove(s.tmpPath)
		return s.fail(newErr(ErrFailed, "rename", s.origPath, err))
	}
	return nil
}

func (s *Session) abortTemp() {
	if s.tmpFile != nil {
		s.tmpFile.Close()
		os.Remove(s.tmpPath)
	}
}

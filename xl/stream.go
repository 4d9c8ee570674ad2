package xl

import (
	"bufio"
	"io"
)

// DefaultBufferSize is the number of bytes a stream buffers before writing
// them to the underlying file.
const DefaultBufferSize = 1 << 20

// Stream is a buffered, append-only part writer that can overwrite bytes
// it already wrote. It tracks the absolute offset of the next write.
type Stream struct {
	path   string
	f      File
	bw     *bufio.Writer
	offset int64
	closed bool
	err    error
}

func newStream(path string, f File, size int) *Stream {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Stream{path: path, f: f, bw: bufio.NewWriterSize(f, size)}
}

// Path is the part name of the stream inside the package.
func (s *Stream) Path() string { return s.path }

// Offset is the absolute position of the next written byte.
func (s *Stream) Offset() int64 { return s.offset }

func (s *Stream) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.bw.Write(p)
	s.offset += int64(n)
	if err != nil {
		s.err = &IOError{Path: s.path, Op: "write", Err: err}
		return n, s.err
	}
	return n, nil
}

func (s *Stream) WriteString(p string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.bw.WriteString(p)
	s.offset += int64(n)
	if err != nil {
		s.err = &IOError{Path: s.path, Op: "write", Err: err}
		return n, s.err
	}
	return n, nil
}

// WriteAt overwrites already written bytes. The buffer is flushed first so
// the file holds everything written so far.
func (s *Stream) WriteAt(p []byte, off int64) (int, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	if off < 0 || off+int64(len(p)) > s.offset {
		return 0, &IOError{Path: s.path, Op: "patch", Err: io.ErrShortWrite}
	}
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		s.err = &IOError{Path: s.path, Op: "patch", Err: err}
		return n, s.err
	}
	return n, nil
}

func (s *Stream) Flush() error {
	if s.err != nil {
		return s.err
	}
	if err := s.bw.Flush(); err != nil {
		s.err = &IOError{Path: s.path, Op: "flush", Err: err}
	}
	return s.err
}

// Close flushes and closes the underlying file. Only the first call has
// an effect.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.Flush()
	if cerr := s.f.Close(); cerr != nil && err == nil {
		err = &IOError{Path: s.path, Op: "close", Err: cerr}
	}
	return err
}

package xl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createTestStream(t *testing.T, size int) (*Stream, string) {
	t.Helper()
	fn := filepath.Join(t.TempDir(), "part.xml")
	f, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	return newStream("part.xml", f, size), fn
}

func TestStreamOffset(t *testing.T) {
	s, fn := createTestStream(t, 4)
	s.WriteString("hello")
	s.Write([]byte(", world"))
	if got := s.Offset(); got != 12 {
		t.Errorf("offset=%d", got)
	}
	if _, err := s.WriteAt([]byte("J"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteAt([]byte("xx"), 11); err == nil {
		t.Error("patch past the end succeeded")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %+v", err)
	}
	b, err := os.ReadFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "Jello, world" {
		t.Errorf("got %q", b)
	}
}

type failingFile struct{ err error }

func (ff failingFile) Write(p []byte) (int, error) { return 0, ff.err }
func (ff failingFile) WriteAt(p []byte, off int64) (int, error) { return 0, ff.err }
func (ff failingFile) Close() error { return nil }

func TestStreamStickyError(t *testing.T) {
	diskFull := errors.New("disk full")
	s := newStream("xl/workbook.xml", failingFile{diskFull}, 16)
	_, err := s.WriteString("this is longer than sixteen bytes")
	var ioErr *IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, diskFull) {
		t.Fatalf("got %#v", err)
	}
	if ioErr.Path != "xl/workbook.xml" {
		t.Errorf("path=%q", ioErr.Path)
	}
	if _, err2 := s.WriteString("x"); err2 != err {
		t.Errorf("error not sticky: %v", err2)
	}
}

package xl

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

// File is a writable package part that can overwrite bytes it already
// holds.
type File interface {
	io.Writer
	io.WriterAt
	io.Closer
}

// Storage is the interface for writing Excel file parts (XML and media files).
// Implementations can write to ZIP archives or directory structures.
type Storage interface {
	// Create opens the part at path for streaming.
	Create(path string) (File, error)
	// WriteBlob writes a complete part at once.
	WriteBlob(path string, blob []byte) error
}

// DirStorage writes Excel file parts to a directory structure on disk.
// This is useful for debugging as it allows inspection of generated XML files.
type DirStorage struct {
	Dir string // Root directory path
}

// NewDirStorage creates a new directory-based storage that writes files to the specified directory.
// The directory will be created if it doesn't exist.
func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{
		Dir: dir,
	}
}

func (ds *DirStorage) fileName(path string) (string, error) {
	path = strings.TrimPrefix(path, "/")
	fn := filepath.Join(ds.Dir, filepath.FromSlash(path))
	return fn, os.MkdirAll(filepath.Dir(fn), 0777)
}

// Create creates (or truncates) the file of a part.
func (ds *DirStorage) Create(path string) (File, error) {
	fn, err := ds.fileName(path)
	if err != nil {
		return nil, err
	}
	return os.Create(fn)
}

// WriteBlob writes a file part to the directory structure.
// Creates any necessary parent directories automatically.
func (ds *DirStorage) WriteBlob(path string, blob []byte) error {
	fn, err := ds.fileName(path)
	if err != nil {
		return err
	}
	return os.WriteFile(fn, blob, 0666)
}

// ZipStorage stages parts in a temporary directory and packs them into a
// ZIP archive, creating a standard .xlsx file, on Close.
type ZipStorage struct {
	out   io.Writer
	stage *DirStorage

	mu   sync.Mutex
	open int
	done bool
}

// NewZipStorage creates a new ZIP-based storage that writes to the given writer.
// The writer is typically a file opened for writing (e.g., os.Create("output.xlsx")).
// An empty tempDir uses the default directory for temporary files.
func NewZipStorage(out io.Writer, tempDir string) (*ZipStorage, error) {
	dir, err := os.MkdirTemp(tempDir, "xlstream-")
	if err != nil {
		return nil, &IOError{Path: tempDir, Op: "mkdir", Err: err}
	}
	return &ZipStorage{out: out, stage: NewDirStorage(dir)}, nil
}

type trackedFile struct {
	File
	zs   *ZipStorage
	once sync.Once
}

func (tf *trackedFile) Close() error {
	err := tf.File.Close()
	tf.once.Do(func() {
		tf.zs.mu.Lock()
		tf.zs.open--
		tf.zs.mu.Unlock()
	})
	return err
}

// Create opens a staged part. Close refuses to finalize the archive until
// every part opened here is closed.
func (zs *ZipStorage) Create(path string) (File, error) {
	f, err := zs.stage.Create(path)
	if err != nil {
		return nil, err
	}
	zs.mu.Lock()
	zs.open++
	zs.mu.Unlock()
	return &trackedFile{File: f, zs: zs}, nil
}

func (zs *ZipStorage) WriteBlob(path string, blob []byte) error {
	return zs.stage.WriteBlob(path, blob)
}

// Close finalizes the ZIP archive. Must be called after all writes are complete.
// Failure to call Close will result in an invalid/corrupted Excel file.
func (zs *ZipStorage) Close() error {
	zs.mu.Lock()
	open, done := zs.open, zs.done
	zs.mu.Unlock()
	if done {
		return nil
	}
	if open != 0 {
		return fmt.Errorf("%d: %w", open, ErrStreamsOpen)
	}
	zs.done = true
	defer os.RemoveAll(zs.stage.Dir)

	var names []string
	err := filepath.WalkDir(zs.stage.Dir, func(fn string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(zs.stage.Dir, fn)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return &IOError{Path: zs.stage.Dir, Op: "walk", Err: err}
	}
	// [Content_Types].xml goes first, as readers sniffing the package expect.
	for i, nm := range names {
		if nm == contentTypesPath && i != 0 {
			copy(names[1:i+1], names[:i])
			names[0] = nm
			break
		}
	}

	z := zip.NewWriter(zs.out)
	for _, nm := range names {
		if err := zs.addFile(z, nm); err != nil {
			z.Close()
			return err
		}
	}
	if err := z.Close(); err != nil {
		return &IOError{Path: "zip", Op: "close", Err: err}
	}
	return nil
}

func (zs *ZipStorage) addFile(z *zip.Writer, name string) error {
	fh, err := os.Open(filepath.Join(zs.stage.Dir, filepath.FromSlash(name)))
	if err != nil {
		return &IOError{Path: name, Op: "open", Err: err}
	}
	defer fh.Close()
	w, err := z.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return &IOError{Path: name, Op: "zip", Err: err}
	}
	if _, err = io.Copy(w, fh); err != nil {
		return &IOError{Path: name, Op: "zip", Err: err}
	}
	return nil
}

// Abort discards every staged part without writing the archive.
func (zs *ZipStorage) Abort() error {
	zs.mu.Lock()
	zs.done = true
	zs.mu.Unlock()
	return os.RemoveAll(zs.stage.Dir)
}

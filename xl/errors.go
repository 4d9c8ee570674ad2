package xl

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned for cell values that cannot be written.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrSheetNotOpen is returned when rows are added to a sheet that was not
// started or was already closed.
var ErrSheetNotOpen = errors.New("sheet is not open")

// ErrStreamsOpen is returned when a package is finalized while part
// streams are still open.
var ErrStreamsOpen = errors.New("part streams still open")

// IOError is a fatal failure to open, write or close a package part. It
// aborts the generation of the whole file.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func invalidArgument(ref, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", ref, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

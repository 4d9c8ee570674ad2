package xl

import "log/slog"

// OverflowPolicy decides what happens to strings longer than
// MaxCharactersPerCell.
type OverflowPolicy int

const (
	// TruncateOverflow keeps the first MaxCharactersPerCell-5 characters
	// followed by " ...".
	TruncateOverflow OverflowPolicy = iota
	// RejectOverflow fails the row with ErrInvalidArgument.
	RejectOverflow
)

// Options configures a workbook.
type Options struct {
	AppName string

	// InlineStrings embeds strings in the cells instead of the shared
	// strings table.
	InlineStrings bool
	// PreserveEmptyRows writes rows whose cells are all empty.
	PreserveEmptyRows bool
	// EagerDrawings opens the drawing parts of every sheet when it starts,
	// instead of when the sheet closes with queued images.
	EagerDrawings bool
	// WrapTextOnNewline forces wrap text on merged styles of multi-line
	// string cells.
	WrapTextOnNewline bool
	StringOverflow    OverflowPolicy

	// BufferSize is the number of bytes buffered per part before they are
	// written out. Defaults to DefaultBufferSize.
	BufferSize int

	// Fetcher downloads image cells. Defaults to an HTTPFetcher.
	Fetcher Fetcher
	// ImageConcurrency bounds simultaneous image fetches. Defaults to
	// DefaultImageConcurrency.
	ImageConcurrency int

	Logger *slog.Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		BufferSize:       DefaultBufferSize,
		ImageConcurrency: DefaultImageConcurrency,
	}
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.ImageConcurrency <= 0 {
		o.ImageConcurrency = DefaultImageConcurrency
	}
	if o.Fetcher == nil {
		o.Fetcher = NewHTTPFetcher(nil)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// AutoWidth is the column width sentinel asking for a width computed from
// the written strings.
const AutoWidth ColumnWidth = "auto"

// ColumnWidth is a column width in characters, AutoWidth, or "" for the
// default width.
type ColumnWidth string

// FreezePane is the split point kept visible while scrolling: Cols columns
// on the left and Rows rows on top.
type FreezePane struct {
	Cols, Rows int
}

func (fp FreezePane) IsZero() bool { return fp.Cols <= 0 && fp.Rows <= 0 }

// SheetOptions configures a single worksheet.
type SheetOptions struct {
	FreezePane   FreezePane
	ColumnWidths []ColumnWidth // indexed by 0-based column
	// Filter adds an auto filter over the first row.
	Filter bool
}

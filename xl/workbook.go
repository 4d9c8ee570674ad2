package xl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Workbook streams sheets into a Storage. Sheets are written one at a
// time: adding a sheet closes the one currently open.
type Workbook struct {
	AppName string
	Sheets  []*Worksheet

	opts     Options
	storage  Storage
	registry *StyleRegistry
	styles   *StyleManager
	sst      *SharedStrings
	sheetMap map[string]*Worksheet
	current  *Worksheet
	media    map[string]string // stored media name -> content type
	closed   bool
	err      error
}

// NewWorkbook returns a workbook writing its parts to s.
func NewWorkbook(s Storage, opts Options) *Workbook {
	opts = opts.withDefaults()
	wb := &Workbook{
		AppName:  opts.AppName,
		opts:     opts,
		storage:  s,
		registry: NewStyleRegistry(),
		sheetMap: map[string]*Worksheet{},
		media:    map[string]string{},
	}
	// The default style is registered first, so it is ID 0.
	wb.registry.Register(Style{})
	wb.styles = newStyleManager(wb.registry, opts.WrapTextOnNewline)
	wb.sst = newSharedStrings(func() (*Stream, error) {
		return wb.createStream(sharedStringsPath)
	})
	return wb
}

// StyleRegistry returns the registry holding every style used so far.
func (wb *Workbook) StyleRegistry() *StyleRegistry { return wb.registry }

// SharedStrings returns the workbook string table.
func (wb *Workbook) SharedStrings() *SharedStrings { return wb.sst }

// RegisterStyle registers s ahead of its first use.
func (wb *Workbook) RegisterStyle(s Style) Style { return wb.styles.RegisterStyle(s) }

// AddSheet closes the sheet currently open, then creates and starts a new
// one.
func (wb *Workbook) AddSheet(ctx context.Context, name string, opts SheetOptions) (*Worksheet, error) {
	if wb.closed {
		return nil, errors.New("workbook is closed")
	}
	if wb.err != nil {
		return nil, wb.err
	}
	if _, exists := wb.sheetMap[name]; exists {
		return nil, fmt.Errorf("duplicate sheet name '%s'", name)
	}
	if err := validateSheetName(name); err != nil {
		return nil, err
	}
	if err := validateColumnWidths(opts.ColumnWidths); err != nil {
		return nil, err
	}
	if wb.current != nil {
		if err := wb.current.Close(ctx); err != nil {
			return nil, err
		}
	}

	index := len(wb.Sheets) + 1
	ws := &Worksheet{
		Name:       name,
		workbook:   wb,
		index:      index,
		filePath:   fmt.Sprintf("xl/worksheets/sheet%d.xml", index),
		patches:    NewPatchTable(),
		tooltipIdx: map[string]int{},
		autoWidths: map[int]int{},
		images: imagePipeline{
			fetcher: wb.opts.Fetcher,
			limit:   wb.opts.ImageConcurrency,
			logger:  wb.opts.Logger,
		},
	}
	if err := ws.start(opts); err != nil {
		if ws.out != nil {
			ws.Close(ctx)
		}
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			wb.err = err
		}
		return nil, err
	}
	wb.Sheets = append(wb.Sheets, ws)
	wb.sheetMap[name] = ws
	wb.current = ws
	wb.opts.Logger.Debug("sheet started", "name", name, "path", ws.filePath)
	return ws, nil
}

func (wb *Workbook) sheetClosed(ws *Worksheet) {
	if wb.current == ws {
		wb.current = nil
	}
	if ws.err != nil && wb.err == nil {
		wb.err = ws.err
	}
	wb.opts.Logger.Debug("sheet closed", "name", ws.Name, "rows", ws.lastWrittenRowIndex, "error", ws.err)
}

func (wb *Workbook) createStream(path string) (*Stream, error) {
	f, err := wb.storage.Create(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "create", Err: err}
	}
	return newStream(path, f, wb.opts.BufferSize), nil
}

// storeMedia persists an image once per workbook.
func (wb *Workbook) storeMedia(img *fetchedImage) error {
	if _, ok := wb.media[img.Name]; ok {
		return nil
	}
	path := "xl/media/" + img.Name
	if err := wb.storage.WriteBlob(path, img.Blob); err != nil {
		return &IOError{Path: path, Op: "write", Err: err}
	}
	wb.media[img.Name] = imageContentTypes[img.Format]
	return nil
}

// Close closes the open sheet and writes the workbook-level parts. The
// storage itself is not closed.
func (wb *Workbook) Close(ctx context.Context) error {
	if wb.closed {
		return wb.err
	}
	wb.closed = true
	if wb.current != nil {
		wb.current.Close(ctx)
	}
	if wb.err != nil {
		wb.sst.abort()
		return wb.err
	}
	if err := wb.sst.Close(); err != nil {
		wb.err = err
		return err
	}
	if err := newPackageWriter(wb.storage).Write(wb); err != nil {
		wb.err = err
	}
	return wb.err
}

func validateSheetName(s string) error {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return errors.New("empty sheet name is not allowed")
	} else if n > 31 {
		return errors.New("the sheet name is too long")
	}
	if strings.HasPrefix(s, "'") || strings.HasSuffix(s, "'") {
		return errors.New("the first or last character of the sheet name can not be a single quote")
	}
	if strings.ContainsAny(s, ":\\/?*[]") {
		return errors.New("the sheet can not contain any of the characters :\\/?*[]")
	}
	return nil
}

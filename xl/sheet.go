package xl

import (
	"fmt"
	"strconv"
)

type sheetState int

const (
	sheetUnopened sheetState = iota
	sheetOpen
	sheetClosed
)

// Worksheet is a sheet being streamed. Rows are serialized as they are
// added; the sheet is finalized by Close.
type Worksheet struct {
	Name string

	workbook *Workbook
	index    int // 1-based
	filePath string
	opts     SheetOptions
	state    sheetState
	err      error

	out     *Stream
	drawing *drawingParts
	patches *PatchTable
	images  imagePipeline

	lastWrittenRowIndex int
	maxColumns          int
	tooltips            []tooltip
	tooltipIdx          map[string]int
	autoWidths          map[int]int // column index -> longest line seen
}

type tooltip struct {
	Ref, Text string
}

// LastWrittenRowIndex is the number of rows added so far, written or
// skipped.
func (ws *Worksheet) LastWrittenRowIndex() int { return ws.lastWrittenRowIndex }

// MaxColumns is the largest number of cells of a written row.
func (ws *Worksheet) MaxColumns() int { return ws.maxColumns }

// FilePath is the part name of the sheet XML.
func (ws *Worksheet) FilePath() string { return ws.filePath }

// Err returns the fatal error that aborted the sheet, if any.
func (ws *Worksheet) Err() error { return ws.err }

// Options returns the options applied when the sheet was started.
func (ws *Worksheet) Options() SheetOptions { return ws.opts }

// Tooltip returns the tooltip recorded for the cell reference.
func (ws *Worksheet) Tooltip(ref string) (string, bool) {
	i, ok := ws.tooltipIdx[ref]
	if !ok {
		return "", false
	}
	return ws.tooltips[i].Text, true
}

func (ws *Worksheet) hasDrawing() bool { return ws.drawing != nil }

// filterRef is the range covered by the auto filter, "" when the sheet has
// none.
func (ws *Worksheet) filterRef() string {
	if !ws.opts.Filter || ws.maxColumns == 0 {
		return ""
	}
	return "A1:" + CellCoordAsString(ws.maxColumns, 1)
}

func (ws *Worksheet) recordTooltip(t tooltip) {
	if i, ok := ws.tooltipIdx[t.Ref]; ok {
		ws.tooltips[i] = t
		return
	}
	ws.tooltipIdx[t.Ref] = len(ws.tooltips)
	ws.tooltips = append(ws.tooltips, t)
}

func (ws *Worksheet) isAutoWidth(col int) bool {
	return col < len(ws.opts.ColumnWidths) && ws.opts.ColumnWidths[col] == AutoWidth
}

// autoWidth maps the longest line of a column to its width, as
// ceil(0.9 * clamp(n, 10, 80)).
func autoWidth(n int) int {
	n = max(10, min(80, n))
	return (9*n + 9) / 10
}

func validateColumnWidths(widths []ColumnWidth) error {
	for i, w := range widths {
		if w == "" || w == AutoWidth {
			continue
		}
		f, err := strconv.ParseFloat(string(w), 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("column %d: %w: width %q", i+1, ErrInvalidArgument, w)
		}
	}
	return nil
}

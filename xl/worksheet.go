package xl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/quicktemplate"
)

// MaxCharactersPerCell is the longest string a cell can hold.
const MaxCharactersPerCell = 32767

const overflowMarker = " ..."

const autoWidthPlaceholder = 3

const sheetXMLHeader = xmlHeader +
	`<worksheet xmlns="` + nsSpreadsheetML + `" xmlns:r="` + nsOfficeRelationships + `">`

// start opens the sheet part and writes everything that precedes the rows.
func (ws *Worksheet) start(opts SheetOptions) error {
	if ws.state != sheetUnopened {
		return fmt.Errorf("sheet %q already started", ws.Name)
	}
	wb := ws.workbook
	out, err := wb.createStream(ws.filePath)
	if err != nil {
		return err
	}
	ws.out = out
	ws.state = sheetOpen
	if wb.opts.EagerDrawings {
		if ws.drawing, err = openDrawingParts(ws.index, wb.createStream); err != nil {
			return ws.fail(err)
		}
	}

	ws.opts = opts
	out.WriteString(sheetXMLHeader)
	if !opts.FreezePane.IsZero() {
		ws.writeFreezePane(opts.FreezePane)
	}
	if err := ws.writeCols(opts.ColumnWidths); err != nil {
		return ws.fail(err)
	}
	if _, err := out.WriteString(`<sheetData>`); err != nil {
		return ws.fail(err)
	}
	return nil
}

func (ws *Worksheet) writeFreezePane(fp FreezePane) {
	x, y := max(fp.Cols, 0), max(fp.Rows, 0)
	topLeft := CellCoordAsString(x+1, y+1)
	out := ws.out
	tabSelected := ""
	if ws.index == 1 {
		tabSelected = ` tabSelected="1"`
	}
	fmt.Fprintf(out, `<sheetViews><sheetView%s workbookViewId="0">`, tabSelected)
	switch {
	case x > 0 && y > 0:
		topRight := CellCoordAsString(x+1, 1)
		bottomLeft := CellCoordAsString(1, y+1)
		fmt.Fprintf(out, `<pane xSplit="%d" ySplit="%d" topLeftCell="%s" activePane="bottomRight" state="frozen"/>`, x, y, topLeft)
		fmt.Fprintf(out, `<selection pane="topRight" activeCell="%s" sqref="%s"/>`, topRight, topRight)
		fmt.Fprintf(out, `<selection pane="bottomLeft" activeCell="%s" sqref="%s"/>`, bottomLeft, bottomLeft)
		fmt.Fprintf(out, `<selection pane="bottomRight" activeCell="%s" sqref="%s"/>`, topLeft, topLeft)
	case y > 0:
		fmt.Fprintf(out, `<pane ySplit="%d" topLeftCell="%s" activePane="bottomLeft" state="frozen"/>`, y, topLeft)
		fmt.Fprintf(out, `<selection pane="bottomLeft" activeCell="%s" sqref="%s"/>`, topLeft, topLeft)
	default:
		fmt.Fprintf(out, `<pane xSplit="%d" topLeftCell="%s" activePane="topRight" state="frozen"/>`, x, topLeft)
		fmt.Fprintf(out, `<selection pane="topRight" activeCell="%s" sqref="%s"/>`, topLeft, topLeft)
	}
	out.WriteString(`</sheetView></sheetViews>`)
}

// writeCols writes the column widths. An auto width gets a placeholder
// whose offset is kept for the final value.
func (ws *Worksheet) writeCols(widths []ColumnWidth) error {
	if err := validateColumnWidths(widths); err != nil {
		return err
	}
	var hasWidth bool
	for _, w := range widths {
		hasWidth = hasWidth || w != ""
	}
	if !hasWidth {
		return nil
	}
	out := ws.out
	out.WriteString(`<cols>`)
	for i, w := range widths {
		switch w {
		case "":
			continue
		case AutoWidth:
			fmt.Fprintf(out, `<col min="%d" max="%d" width="`, i+1, i+1)
			if err := ws.patches.Reserve(out, i, autoWidthPlaceholder); err != nil {
				return err
			}
			ws.autoWidths[i] = 0
			out.WriteString(`" customWidth="1"/>`)
		default:
			fmt.Fprintf(out, `<col min="%d" max="%d" width="%s" customWidth="1"/>`, i+1, i+1, w)
		}
	}
	_, err := out.WriteString(`</cols>`)
	return err
}

// AddRow serializes the row. Rows whose cells are all empty are skipped
// unless empty rows are preserved, but they still take a row index.
func (ws *Worksheet) AddRow(row Row) error {
	if ws.state != sheetOpen {
		return fmt.Errorf("%s: %w", ws.Name, ErrSheetNotOpen)
	}
	if ws.err != nil {
		return ws.err
	}
	if !row.IsEmpty() || ws.workbook.opts.PreserveEmptyRows {
		if err := ws.addNonEmptyRow(&row); err != nil {
			return err
		}
	}
	ws.lastWrittenRowIndex++
	return nil
}

// AppendRow adds a row holding values.
func (ws *Worksheet) AppendRow(values ...any) error {
	return ws.AddRow(NewRow(values...))
}

// rowEffects are the sheet changes of a row, applied only once the whole
// row has been written.
type rowEffects struct {
	images   []queuedImage
	tooltips []tooltip
	widths   [][2]int
	sstRefs  int
}

func (ws *Worksheet) addNonEmptyRow(row *Row) error {
	rowIndex := ws.lastWrittenRowIndex + 1
	numCells := len(row.Cells)

	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	qw := quicktemplate.AcquireWriter(b)
	defer quicktemplate.ReleaseWriter(qw)

	qw.N().S(`<row r="`)
	qw.N().D(rowIndex)
	qw.N().S(`"`)
	if numCells > 0 {
		qw.N().S(` spans="1:`)
		qw.N().D(numCells)
		qw.N().S(`"`)
	}
	if row.hasImage() {
		qw.N().S(` ht="`)
		qw.N().D(imageRowHeight)
		qw.N().S(`" customHeight="1"`)
	}
	qw.N().S(`>`)

	var fx rowEffects
	for i := range row.Cells {
		c := &row.Cells[i]
		if err := ws.writeCell(qw, &fx, rowIndex, i, c, row.Style); err != nil {
			ws.workbook.sst.unref(fx.sstRefs)
			return err
		}
		if c.Tooltip != "" {
			fx.tooltips = append(fx.tooltips, tooltip{Ref: CellCoordAsString(i+1, rowIndex), Text: c.Tooltip})
		}
	}
	qw.N().S(`</row>`)

	if _, err := ws.out.Write(b.B); err != nil {
		ws.workbook.sst.unref(fx.sstRefs)
		return ws.fail(err)
	}

	ws.maxColumns = max(ws.maxColumns, numCells)
	for _, t := range fx.tooltips {
		ws.recordTooltip(t)
	}
	for _, img := range fx.images {
		ws.images.Enqueue(img)
	}
	for _, w := range fx.widths {
		ws.autoWidths[w[0]] = max(ws.autoWidths[w[0]], w[1])
	}
	return nil
}

func (ws *Worksheet) writeCell(qw *quicktemplate.Writer, fx *rowEffects, rowIndex, col int, c *Cell, rowStyle *Style) error {
	sm := ws.workbook.styles
	styleID, styled := sm.resolve(c, rowStyle)

	if c.IsEmpty() && (!styled || styleID == 0 || !sm.shouldApplyStyleOnEmptyCell(styleID)) {
		return nil
	}
	if c.Type() == CellTypeImage {
		fx.images = append(fx.images, queuedImage{Row: rowIndex, Col: col, URL: c.stringValue()})
		return nil
	}

	ref := CellCoordAsString(col+1, rowIndex)
	qw.N().S(`<c r="`)
	qw.N().S(ref)
	qw.N().S(`"`)
	if styled && styleID != 0 {
		qw.N().S(` s="`)
		qw.N().D(styleID)
		qw.N().S(`"`)
	}

	switch c.Type() {
	case CellTypeString:
		s, err := ws.limitString(ref, validXMLText(c.stringValue()))
		if err != nil {
			return err
		}
		if ws.workbook.opts.InlineStrings {
			qw.N().S(` t="inlineStr"><is><t`)
			if needsSpacePreserve(s) {
				qw.N().S(` xml:space="preserve"`)
			}
			qw.N().S(`>`)
			writeEscaped(qw, s)
			qw.N().S(`</t></is></c>`)
		} else {
			id, err := ws.workbook.sst.Intern(s)
			if err != nil {
				return ws.fail(err)
			}
			fx.sstRefs++
			qw.N().S(` t="s"><v>`)
			qw.N().D(id)
			qw.N().S(`</v></c>`)
		}
		if rowIndex > 1 && ws.isAutoWidth(col) {
			fx.widths = append(fx.widths, [2]int{col, longestLine(s)})
		}

	case CellTypeBool:
		v := 0
		if c.Value().(bool) {
			v = 1
		}
		qw.N().S(` t="b"><v>`)
		qw.N().D(v)
		qw.N().S(`</v></c>`)

	case CellTypeNumber:
		n, err := formatNumber(c.Value())
		if err != nil {
			return invalidArgument(ref, "%v", err)
		}
		qw.N().S(`><v>`)
		qw.N().S(n)
		qw.N().S(`</v></c>`)

	case CellTypeLink:
		u := strings.ReplaceAll(c.stringValue(), `"`, `""`)
		qw.N().S(` t="str"><f>HYPERLINK("`)
		writeEscaped(qw, u)
		qw.N().S(`")</f><v>`)
		writeEscaped(qw, c.stringValue())
		qw.N().S(`</v></c>`)

	case CellTypeEmpty:
		qw.N().S(`/>`)

	default:
		return invalidArgument(ref, "unsupported %s value of type %T", c.Type(), c.Value())
	}
	return nil
}

// limitString applies the overflow policy to strings longer than
// MaxCharactersPerCell characters.
func (ws *Worksheet) limitString(ref, s string) (string, error) {
	if len(s) <= MaxCharactersPerCell || utf8.RuneCountInString(s) <= MaxCharactersPerCell {
		return s, nil
	}
	if ws.workbook.opts.StringOverflow == RejectOverflow {
		return "", invalidArgument(ref, "string of %d characters exceeds %d",
			utf8.RuneCountInString(s), MaxCharactersPerCell)
	}
	keep := MaxCharactersPerCell - len(overflowMarker) - 1
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + overflowMarker, nil
		}
		n++
	}
	return s, nil
}

func longestLine(s string) int {
	var n int
	for line := range strings.SplitSeq(s, "\n") {
		n = max(n, utf8.RuneCountInString(line))
	}
	return n
}

func formatNumber(v any) (string, error) {
	switch x := v.(type) {
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFloat(float64(x), 32)
	case float64:
		return formatFloat(x, 64)
	case Number:
		s := strings.TrimSpace(string(x))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || strings.HasPrefix(strings.TrimLeft(s, "+-"), "0x") {
			return "", fmt.Errorf("%q is not a number", string(x))
		}
		return s, nil
	}
	return "", fmt.Errorf("%T is not a number", v)
}

func formatFloat(f float64, bitSize int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%v is not a finite number", f)
	}
	if a := math.Abs(f); a == 0 || (a >= 1e-9 && a < 1e15) {
		return strconv.FormatFloat(f, 'f', -1, bitSize), nil
	}
	return strconv.FormatFloat(f, 'E', -1, bitSize), nil
}

// Close finishes the sheet: the data block is closed, queued images are
// fetched and embedded, deferred widths are patched in, and every stream of
// the sheet is closed. Calling Close again has no effect.
func (ws *Worksheet) Close(ctx context.Context) error {
	switch ws.state {
	case sheetClosed:
		return ws.err
	case sheetUnopened:
		ws.state = sheetClosed
		return nil
	}
	ws.state = sheetClosed
	defer ws.workbook.sheetClosed(ws)

	err := ws.finish(ctx)
	if ws.drawing != nil {
		if cerr := ws.drawing.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := ws.out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil && ws.err == nil {
		ws.err = err
	}
	return ws.err
}

func (ws *Worksheet) finish(ctx context.Context) error {
	if ws.err != nil {
		return ws.err
	}
	out := ws.out
	out.WriteString(`</sheetData>`)

	if ref := ws.filterRef(); ref != "" {
		fmt.Fprintf(out, `<autoFilter ref="%s"/>`, ref)
		if len(ws.tooltips) > 0 {
			ws.writeDataValidations()
		}
	}

	if err := ws.embedImages(ctx); err != nil {
		return err
	}
	if ws.drawing != nil {
		out.WriteString(`<drawing r:id="rId1"/>`)
	}

	for col, n := range ws.autoWidths {
		if err := ws.patches.Set(col, autoWidth(n)); err != nil {
			return err
		}
	}
	if err := ws.patches.Apply(out); err != nil {
		return ws.fail(err)
	}
	if _, err := out.WriteString(`</worksheet>`); err != nil {
		return ws.fail(err)
	}
	return nil
}

func (ws *Worksheet) writeDataValidations() {
	b := bytebufferpool.Get()
	defer bytebufferpool.Put(b)
	qw := quicktemplate.AcquireWriter(b)
	defer quicktemplate.ReleaseWriter(qw)

	qw.N().S(`<dataValidations count="`)
	qw.N().D(len(ws.tooltips))
	qw.N().S(`">`)
	for _, t := range ws.tooltips {
		qw.N().S(`<dataValidation allowBlank="1" showInputMessage="1" showErrorMessage="1" prompt="`)
		writeEscapedAttr(qw, t.Text)
		qw.N().S(`" sqref="`)
		qw.N().S(t.Ref)
		qw.N().S(`"/>`)
	}
	qw.N().S(`</dataValidations>`)
	ws.out.Write(b.B)
}

// embedImages is the barrier between the row data and the drawing parts:
// it returns only after every queued fetch succeeded or failed.
func (ws *Worksheet) embedImages(ctx context.Context) error {
	if ws.images.Len() == 0 && ws.drawing == nil {
		return nil
	}
	wb := ws.workbook
	if ws.drawing == nil {
		dp, err := openDrawingParts(ws.index, wb.createStream)
		if err != nil {
			return ws.fail(err)
		}
		ws.drawing = dp
	}
	queued := ws.images.Len()
	fetched := ws.images.Drain(ctx)
	for _, img := range fetched {
		if img == nil {
			continue
		}
		if err := wb.storeMedia(img); err != nil {
			return ws.fail(err)
		}
		ws.drawing.addImage(img)
	}
	ws.drawing.terminate()
	wb.opts.Logger.Debug("images embedded", "sheet", ws.Name, "queued", queued, "embedded", ws.drawing.anchors)
	return nil
}

// fail records a fatal error. Invalid arguments are returned unchanged as
// they only abort the current row.
func (ws *Worksheet) fail(err error) error {
	if errors.Is(err, ErrInvalidArgument) {
		return err
	}
	if ws.err == nil {
		ws.err = err
	}
	return ws.err
}

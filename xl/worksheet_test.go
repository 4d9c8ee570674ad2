package xl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testBook struct {
	*Workbook
	dir string
}

func newTestBook(t *testing.T, opts Options) *testBook {
	t.Helper()
	dir := t.TempDir()
	return &testBook{Workbook: NewWorkbook(NewDirStorage(dir), opts), dir: dir}
}

func (tb *testBook) sheet(t *testing.T, name string, opts SheetOptions) *Worksheet {
	t.Helper()
	ws, err := tb.AddSheet(context.Background(), name, opts)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func (tb *testBook) close(t *testing.T) {
	t.Helper()
	if err := tb.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (tb *testBook) part(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(tb.dir, filepath.FromSlash(path)))
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func (tb *testBook) exists(path string) bool {
	_, err := os.Stat(filepath.Join(tb.dir, filepath.FromSlash(path)))
	return err == nil
}

func mustContain(t *testing.T, got string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("%s\ndoes not contain\n%s", got, want)
		}
	}
}

func mustNotContain(t *testing.T, got string, unwanted ...string) {
	t.Helper()
	for _, s := range unwanted {
		if strings.Contains(got, s) {
			t.Errorf("%s\ncontains\n%s", got, s)
		}
	}
}

func TestWorksheetBasicRow(t *testing.T) {
	tb := newTestBook(t, Options{})
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	if err := ws.AppendRow("Hello", 42, true); err != nil {
		t.Fatal(err)
	}
	tb.close(t)

	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet,
		`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`,
		`<sheetData><row r="1" spans="1:3"><c r="A1" t="s"><v>0</v></c><c r="B1"><v>42</v></c><c r="C1" t="b"><v>1</v></c></row></sheetData>`,
	)
	if !strings.HasSuffix(sheet, `</worksheet>`) {
		t.Errorf("sheet is not terminated: %s", sheet)
	}
	mustContain(t, tb.part(t, sharedStringsPath),
		`count="0000000001" uniqueCount="0000000001"><si><t>Hello</t></si></sst>`)
	if ws.LastWrittenRowIndex() != 1 || ws.MaxColumns() != 3 {
		t.Errorf("index=%d columns=%d", ws.LastWrittenRowIndex(), ws.MaxColumns())
	}
	if tb.exists(drawingPath(1)) {
		t.Error("drawing created for a sheet without images")
	}
}

func TestWorksheetEmptyRows(t *testing.T) {
	for _, preserve := range []bool{false, true} {
		tb := newTestBook(t, Options{PreserveEmptyRows: preserve})
		ws := tb.sheet(t, "Sheet1", SheetOptions{})
		ws.AppendRow("a")
		ws.AppendRow(nil, "")
		ws.AppendRow("b")
		if ws.LastWrittenRowIndex() != 3 {
			t.Errorf("index=%d", ws.LastWrittenRowIndex())
		}
		tb.close(t)

		sheet := tb.part(t, "xl/worksheets/sheet1.xml")
		mustContain(t, sheet, `<row r="1" spans="1:1">`, `<row r="3" spans="1:1">`)
		if preserve {
			mustContain(t, sheet, `<row r="2" spans="1:2"></row>`)
		} else {
			mustNotContain(t, sheet, `<row r="2"`)
		}
	}
}

func TestWorksheetCellKinds(t *testing.T) {
	tb := newTestBook(t, Options{InlineStrings: true})
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	if err := ws.AppendRow(
		1.5, 1e20, Number(" 7 "), int64(-3), uint8(9),
		Link("https://example.com/a?b=1&c=2"),
		" spaced ", "ctl\x01", false,
	); err != nil {
		t.Fatal(err)
	}
	tb.close(t)

	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet,
		`<c r="A1"><v>1.5</v></c>`,
		`<c r="B1"><v>1E+20</v></c>`,
		`<c r="C1"><v>7</v></c>`,
		`<c r="D1"><v>-3</v></c>`,
		`<c r="E1"><v>9</v></c>`,
		`<c r="F1" t="str"><f>HYPERLINK("https://example.com/a?b=1&amp;c=2")</f><v>https://example.com/a?b=1&amp;c=2</v></c>`,
		`<c r="G1" t="inlineStr"><is><t xml:space="preserve"> spaced </t></is></c>`,
		`<c r="H1" t="inlineStr"><is><t>ctl_x0001_</t></is></c>`,
		`<c r="I1" t="b"><v>0</v></c>`,
	)
	if tb.exists(sharedStringsPath) {
		t.Error("shared strings written in inline mode")
	}
}

func TestWorksheetInvalidArgument(t *testing.T) {
	tb := newTestBook(t, Options{})
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	for _, v := range []any{
		struct{}{},
		time.Now(),
		Formula("SUM(A1:A2)"),
		Number("abc"),
		Number("NaN"),
	} {
		err := ws.AppendRow("tip", v)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%#v: got %v", v, err)
		}
		if err != nil && !strings.Contains(err.Error(), "B1") {
			t.Errorf("%#v: cell reference missing from %q", v, err)
		}
	}
	if ws.LastWrittenRowIndex() != 0 {
		t.Errorf("failed rows advanced the index to %d", ws.LastWrittenRowIndex())
	}
	if ws.Err() != nil {
		t.Errorf("invalid argument is sticky: %v", ws.Err())
	}
	if err := ws.AppendRow("ok"); err != nil {
		t.Fatal(err)
	}
	tb.close(t)
	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet, `<sheetData><row r="1" spans="1:1">`)
	mustNotContain(t, sheet, `<row r="2"`)
}

func TestWorksheetFailedRowStringCount(t *testing.T) {
	tb := newTestBook(t, Options{})
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	if err := ws.AppendRow("kept", "dropped", struct{}{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got %v", err)
	}
	if err := ws.AppendRow("kept"); err != nil {
		t.Fatal(err)
	}
	if n := tb.sst.Count(); n != 1 {
		t.Errorf("%d references counted", n)
	}
	tb.close(t)
	mustContain(t, tb.part(t, sharedStringsPath), `count="0000000001" uniqueCount="0000000002">`)
}

func TestWorksheetStringOverflow(t *testing.T) {
	long := strings.Repeat("x", MaxCharactersPerCell+100)

	tb := newTestBook(t, Options{InlineStrings: true})
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	if err := ws.AppendRow(long); err != nil {
		t.Fatal(err)
	}
	if err := ws.AppendRow(strings.Repeat("é", MaxCharactersPerCell)); err != nil {
		t.Fatal(err)
	}
	tb.close(t)
	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet,
		`<t>`+strings.Repeat("x", MaxCharactersPerCell-5)+` ...</t>`,
		`<t>`+strings.Repeat("é", MaxCharactersPerCell)+`</t>`,
	)

	tb = newTestBook(t, Options{StringOverflow: RejectOverflow})
	ws = tb.sheet(t, "Sheet1", SheetOptions{})
	if err := ws.AppendRow(long); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("got %v", err)
	}
	if ws.LastWrittenRowIndex() != 0 {
		t.Errorf("index=%d", ws.LastWrittenRowIndex())
	}
	tb.close(t)
}

func TestWorksheetStyles(t *testing.T) {
	tb := newTestBook(t, Options{})
	bold := tb.RegisterStyle(Style{Font: Font{Bold: true}})
	fill := Style{BackgroundColor: "FFFFFF00"}
	ws := tb.sheet(t, "Sheet1", SheetOptions{})
	ws.AddRow(NewRow("a", nil).WithStyle(&bold))
	ws.AddRow(NewRow("b", nil).WithStyle(&fill))
	ws.AddRow(Row{Cells: []Cell{NewStyledCell("c", &Style{})}})
	tb.close(t)

	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet,
		`<row r="1" spans="1:2"><c r="A1" s="1" t="s"><v>0</v></c></row>`,
		`<row r="2" spans="1:2"><c r="A2" s="2" t="s"><v>1</v></c><c r="B2" s="2"/></row>`,
		`<row r="3" spans="1:1"><c r="A3" t="s"><v>2</v></c></row>`,
	)
	if n := tb.StyleRegistry().Len(); n != 3 {
		t.Errorf("%d styles registered", n)
	}
}

func TestWorksheetFreezePane(t *testing.T) {
	for _, tc := range []struct {
		fp   FreezePane
		want []string
	}{
		{FreezePane{Rows: 1}, []string{
			`<sheetView tabSelected="1" workbookViewId="0"><pane ySplit="1" topLeftCell="A2" activePane="bottomLeft" state="frozen"/>`,
		}},
		{FreezePane{Cols: 2}, []string{
			`<pane xSplit="2" topLeftCell="C1" activePane="topRight" state="frozen"/>`,
		}},
		{FreezePane{Cols: 1, Rows: 1}, []string{
			`<pane xSplit="1" ySplit="1" topLeftCell="B2" activePane="bottomRight" state="frozen"/>`,
			`<selection pane="bottomRight" activeCell="B2" sqref="B2"/>`,
		}},
	} {
		tb := newTestBook(t, Options{})
		ws := tb.sheet(t, "Sheet1", SheetOptions{FreezePane: tc.fp})
		ws.AppendRow("a", "b", "c")
		tb.close(t)
		mustContain(t, tb.part(t, "xl/worksheets/sheet1.xml"), tc.want...)
	}
}

func TestWorksheetAutoWidth(t *testing.T) {
	tb := newTestBook(t, Options{})
	ws := tb.sheet(t, "Sheet1", SheetOptions{
		ColumnWidths: []ColumnWidth{AutoWidth, "12.5", "", AutoWidth, AutoWidth},
	})
	ws.AppendRow("a header far longer than anything below it", "x", "y", "z", "w")
	ws.AppendRow("short", "x", "y", strings.Repeat("q", 200), "")
	ws.AppendRow(strings.Repeat("r", 30)+"\nshort line", "x", "y", "z")
	tb.close(t)

	sheet := tb.part(t, "xl/worksheets/sheet1.xml")
	mustContain(t, sheet,
		`<cols><col min="1" max="1" width="027" customWidth="1"/>`,
		`<col min="2" max="2" width="12.5" customWidth="1"/>`,
		`<col min="4" max="4" width="072" customWidth="1"/>`,
		`<col min="5" max="5" width="009" customWidth="1"/></cols><sheetData>`,
	)
	mustNotContain(t, sheet, `min="3"`)
}

func TestAutoWidth(t *testing.T) {
	for n, want := range map[int]int{0: 9, 10: 9, 11: 10, 30: 27, 80: 72, 500: 72} {
		if got := autoWidth(n); got != want {
			t.Errorf("%d: got %d, wanted %d", n, got, want)
		}
	}
}

func TestWorksheetFilterAndTooltips(t *testing.T) {
	tb := newTestBook(t, Options{})
	ws := tb.sheet(t, "Data", SheetOptions{Filter: true})
	name := NewCell("Name")
	name.Tooltip = `the "full" name`
	qty := NewCell("Qty")
	qty.Tooltip = "pieces\tper\nbox"
	ws.AddRow(Row{Cells: []Cell{name, qty}})
	ws.AppendRow("apple", 3)
	if tip, ok := ws.Tooltip("A1"); !ok || tip != `the "full" name` {
		t.Errorf("tooltip A1: %q %t", tip, ok)
	}
	tb.close(t)

	mustContain(t, tb.part(t, "xl/worksheets/sheet1.xml"),
		`</sheetData><autoFilter ref="A1:B1"/><dataValidations count="2">`,
		`prompt="the &quot;full&quot; name" sqref="A1"/>`,
		`prompt="pieces&#9;per&#10;box" sqref="B1"/></dataValidations></worksheet>`,
	)
	mustContain(t, tb.part(t, "xl/workbook.xml"), `_xlnm._FilterDatabase`, `!$A$1:$B$1`)
}

func TestWorksheetLifecycle(t *testing.T) {
	ctx := context.Background()
	tb := newTestBook(t, Options{})
	first := tb.sheet(t, "First", SheetOptions{})
	first.AppendRow("one")
	second := tb.sheet(t, "Second", SheetOptions{})

	if err := first.AppendRow("late"); !errors.Is(err, ErrSheetNotOpen) {
		t.Errorf("row added to a replaced sheet: %v", err)
	}
	if err := second.AppendRow("two"); err != nil {
		t.Fatal(err)
	}
	if err := second.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := second.Close(ctx); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := second.AppendRow("three"); !errors.Is(err, ErrSheetNotOpen) {
		t.Errorf("got %v", err)
	}
	if _, err := tb.AddSheet(ctx, "First", SheetOptions{}); err == nil {
		t.Error("duplicate sheet name accepted")
	}
	for _, name := range []string{"", "a/b", "'quoted'", strings.Repeat("n", 32)} {
		if _, err := tb.AddSheet(ctx, name, SheetOptions{}); err == nil {
			t.Errorf("sheet name %q accepted", name)
		}
	}
	if _, err := tb.AddSheet(ctx, "Widths", SheetOptions{ColumnWidths: []ColumnWidth{"wide"}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad width: %v", err)
	}
	tb.close(t)

	if err := tb.Close(ctx); err != nil {
		t.Errorf("second workbook close: %v", err)
	}
	if _, err := tb.AddSheet(ctx, "Third", SheetOptions{}); err == nil {
		t.Error("sheet added to a closed workbook")
	}
	mustContain(t, tb.part(t, "xl/worksheets/sheet1.xml"), `<c r="A1" t="s"><v>0</v></c>`)
	mustContain(t, tb.part(t, "xl/worksheets/sheet2.xml"), `<c r="A1" t="s"><v>1</v></c>`)
	mustContain(t, tb.part(t, sharedStringsPath), `<si><t>one</t></si><si><t>two</t></si>`)
}

type failingStorage struct{ err error }

func (fs failingStorage) Create(path string) (File, error) { return failingFile{fs.err}, nil }
func (fs failingStorage) WriteBlob(path string, blob []byte) error { return fs.err }

func TestWorkbookStickyIOError(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")
	wb := NewWorkbook(failingStorage{diskFull}, Options{BufferSize: 16})
	_, err := wb.AddSheet(ctx, "Sheet1", SheetOptions{})
	var ioErr *IOError
	if !errors.As(err, &ioErr) || !errors.Is(err, diskFull) {
		t.Fatalf("got %v", err)
	}
	if _, err2 := wb.AddSheet(ctx, "Sheet2", SheetOptions{}); !errors.Is(err2, diskFull) {
		t.Errorf("second sheet: %v", err2)
	}
	if err := wb.Close(ctx); !errors.Is(err, diskFull) {
		t.Errorf("close: %v", err)
	}
}

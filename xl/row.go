package xl

import "strconv"

// Row is an ordered list of cells. Style, when set, is the fallback for
// cells without their own style.
type Row struct {
	Cells []Cell
	Style *Style
}

// NewRow returns a row with one cell per value.
func NewRow(values ...any) Row {
	r := Row{Cells: make([]Cell, len(values))}
	for i, v := range values {
		r.Cells[i] = NewCell(v)
	}
	return r
}

// WithStyle sets the row style and returns the row.
func (r Row) WithStyle(s *Style) Row {
	r.Style = s
	return r
}

// IsEmpty reports whether every cell of the row is empty.
func (r *Row) IsEmpty() bool {
	for i := range r.Cells {
		if !r.Cells[i].IsEmpty() {
			return false
		}
	}
	return true
}

func (r *Row) hasImage() bool {
	for i := range r.Cells {
		if r.Cells[i].Type() == CellTypeImage {
			return true
		}
	}
	return false
}

// ColumnNumberAsLetters converts a 1-based column number to its letters:
// 1 is A, 26 is Z, 27 is AA, 703 is AAA.
func ColumnNumberAsLetters(n int) string {
	if n < 1 {
		panic("invalid column number")
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte((n-1)%26 + 'A')
		n = (n - 1) / 26
	}
	return string(buf[i:])
}

// CellCoordAsString returns the A1-style reference of a 1-based column and row.
func CellCoordAsString(col, row int) string {
	if row < 1 {
		panic("invalid row number")
	}
	return ColumnNumberAsLetters(col) + strconv.Itoa(row)
}

package xl

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"
)

// Cell is a single value pushed into a worksheet row. The value type is
// classified once, when the cell is created.
type Cell struct {
	Style   *Style
	Tooltip string

	value any
	typ   CellType
}

// CellType is the type of cell value type.
type CellType int

// Cell value types enumeration.
const (
	CellTypeEmpty CellType = iota
	CellTypeBool
	CellTypeNumber
	CellTypeDate
	CellTypeString
	CellTypeError
	CellTypeLink
	CellTypeImage
	CellTypeFormula
)

var cellTypeNames = [...]string{
	CellTypeEmpty:   "empty",
	CellTypeBool:    "boolean",
	CellTypeNumber:  "numeric",
	CellTypeDate:    "date",
	CellTypeString:  "string",
	CellTypeError:   "error",
	CellTypeLink:    "link",
	CellTypeImage:   "image",
	CellTypeFormula: "formula",
}

func (t CellType) String() string {
	if t < 0 || int(t) >= len(cellTypeNames) {
		return fmt.Sprintf("CellType(%d)", int(t))
	}
	return cellTypeNames[t]
}

// Link is a URL rendered as a HYPERLINK formula.
type Link string

// Image is the URL of a picture fetched and embedded when the sheet closes.
type Image string

// Formula is a formula expression (without the leading '=').
type Formula string

// Number is a string that contains a number.
type Number string

// NewCell returns a cell holding v.
func NewCell(v any) Cell {
	v = unwrapValuer(v)
	return Cell{value: v, typ: classify(v)}
}

// NewStyledCell returns a cell holding v rendered with style.
func NewStyledCell(v any, style *Style) Cell {
	c := NewCell(v)
	c.Style = style
	return c
}

func (c *Cell) Value() any     { return c.value }
func (c *Cell) Type() CellType { return c.typ }
func (c *Cell) IsEmpty() bool  { return c.typ == CellTypeEmpty }
func (c *Cell) IsError() bool  { return c.typ == CellTypeError }
func (c *Cell) String() string { return fmt.Sprint(c.value) }

func (c *Cell) stringValue() string {
	switch x := c.value.(type) {
	case string:
		return x
	case Link:
		return string(x)
	case Image:
		return string(x)
	case Formula:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(c.value)
}

// unwrapValuer replaces database values with their driver value. An invalid
// sql.Null* yields nil.
func unwrapValuer(v any) any {
	vr, ok := v.(driver.Valuer)
	if !ok {
		return v
	}
	if rv := reflect.ValueOf(vr); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	vv, err := vr.Value()
	if err != nil {
		return v
	}
	return vv
}

// classify maps a value to its cell type. The order matters: booleans are
// checked before anything numeric-like, and empty strings before strings.
func classify(v any) CellType {
	if _, ok := v.(bool); ok {
		return CellTypeBool
	}
	if v == nil {
		return CellTypeEmpty
	}
	if s, ok := v.(string); ok && s == "" {
		return CellTypeEmpty
	}
	switch x := v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return CellTypeNumber
	case Number:
		if x == "" {
			return CellTypeEmpty
		}
		return CellTypeNumber
	case time.Time, time.Duration:
		return CellTypeDate
	case Link:
		if x == "" {
			return CellTypeEmpty
		}
		return CellTypeLink
	case Image:
		if x == "" {
			return CellTypeEmpty
		}
		return CellTypeImage
	case Formula:
		if x == "" {
			return CellTypeEmpty
		}
		return CellTypeFormula
	case string, fmt.Stringer:
		return CellTypeString
	}
	return CellTypeError
}

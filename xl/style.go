package xl

import "strings"

// Font represents font formatting properties for cell content.
// These properties correspond to the OpenXML font element as defined in ECMA-376.
type Font struct {
	Name          string        // Font name ("" = use default Calibri)
	Size          float64       // Font size in points (0 = use default of 11)
	Color         string        // ARGB hex color, e.g. "FFFF0000"
	Bold          bool          // Bold text
	Italic        bool          // Italic text
	Underline     UnderlineType // Underline style
	Strikethrough bool          // Strikethrough text
}

// UnderlineType represents the type of underline formatting.
type UnderlineType string

// Underline type constants as defined in ECMA-376 (ST_UnderlineValues).
const (
	UnderlineNone             UnderlineType = ""                 // No underline (default)
	UnderlineSingle           UnderlineType = "single"           // Single underline
	UnderlineDouble           UnderlineType = "double"           // Double underline
	UnderlineSingleAccounting UnderlineType = "singleAccounting" // Single accounting underline
	UnderlineDoubleAccounting UnderlineType = "doubleAccounting" // Double accounting underline
)

// IsDefault returns true if the font uses all default properties.
func (f *Font) IsDefault() bool {
	return *f == Font{}
}

// BorderStyle is the line style applied to all four cell edges.
type BorderStyle string

const (
	BorderNone   BorderStyle = ""
	BorderThin   BorderStyle = "thin"
	BorderMedium BorderStyle = "medium"
	BorderThick  BorderStyle = "thick"
	BorderDashed BorderStyle = "dashed"
	BorderDotted BorderStyle = "dotted"
)

// Style is a set of cell formatting properties. The zero value of every
// property means "not set". Two styles with equal properties are the same
// style and share one registered ID.
type Style struct {
	Font            Font
	BackgroundColor string // ARGB hex fill color
	Border          BorderStyle
	WrapText        bool
	NumberFormat    string // custom number format code

	id int // registered ID + 1
}

// ID returns the registered ID of the style.
func (s Style) ID() (int, bool) {
	return s.id - 1, s.id > 0
}

func (s Style) key() Style {
	s.id = 0
	return s
}

// MergeStyles returns a new style where every property set on cell wins
// over the one of row.
func MergeStyles(cell, row Style) Style {
	m := cell.key()
	f, rf := &m.Font, row.Font
	if f.Name == "" {
		f.Name = rf.Name
	}
	if f.Size == 0 {
		f.Size = rf.Size
	}
	if f.Color == "" {
		f.Color = rf.Color
	}
	f.Bold = f.Bold || rf.Bold
	f.Italic = f.Italic || rf.Italic
	if f.Underline == UnderlineNone {
		f.Underline = rf.Underline
	}
	f.Strikethrough = f.Strikethrough || rf.Strikethrough
	if m.BackgroundColor == "" {
		m.BackgroundColor = row.BackgroundColor
	}
	if m.Border == BorderNone {
		m.Border = row.Border
	}
	m.WrapText = m.WrapText || row.WrapText
	if m.NumberFormat == "" {
		m.NumberFormat = row.NumberFormat
	}
	return m
}

// StyleRegistry assigns IDs to distinct styles in registration order.
type StyleRegistry struct {
	ids    map[Style]int
	styles []Style
}

func NewStyleRegistry() *StyleRegistry {
	return &StyleRegistry{ids: map[Style]int{}}
}

// Register returns s carrying its registry ID. The first style ever
// registered gets ID 0.
func (sr *StyleRegistry) Register(s Style) Style {
	k := s.key()
	id, ok := sr.ids[k]
	if !ok {
		id = len(sr.styles)
		k.id = id + 1
		sr.ids[k.key()] = id
		sr.styles = append(sr.styles, k)
	}
	k.id = id + 1
	return k
}

// Styles returns the registered styles indexed by ID.
func (sr *StyleRegistry) Styles() []Style {
	return sr.styles
}

// Get returns the style registered as id.
func (sr *StyleRegistry) Get(id int) (Style, bool) {
	if id < 0 || id >= len(sr.styles) {
		return Style{}, false
	}
	return sr.styles[id], true
}

func (sr *StyleRegistry) Len() int { return len(sr.styles) }

// StyleManager resolves the effective style of every written cell.
type StyleManager struct {
	registry      *StyleRegistry
	wrapOnNewline bool
}

func newStyleManager(registry *StyleRegistry, wrapOnNewline bool) *StyleManager {
	return &StyleManager{registry: registry, wrapOnNewline: wrapOnNewline}
}

// RegisterStyle registers s as a used style.
func (sm *StyleManager) RegisterStyle(s Style) Style {
	return sm.registry.Register(s)
}

// applyExtraStylesIfNeeded derives implicit properties from the cell
// content. Wrapping is forced for multi-line strings when enabled.
func (sm *StyleManager) applyExtraStylesIfNeeded(c *Cell, s Style) Style {
	if sm.wrapOnNewline && !s.WrapText && c.Type() == CellTypeString &&
		strings.Contains(c.stringValue(), "\n") {
		s.WrapText = true
	}
	return s
}

// shouldApplyStyleOnEmptyCell reports whether the style is visible on a
// cell without content.
func (sm *StyleManager) shouldApplyStyleOnEmptyCell(id int) bool {
	s, ok := sm.registry.Get(id)
	return ok && (s.BackgroundColor != "" || s.Border != BorderNone)
}

// resolve returns the registered style ID of the cell, if any.
func (sm *StyleManager) resolve(c *Cell, rowStyle *Style) (int, bool) {
	var s Style
	switch {
	case rowStyle != nil && c.Style != nil:
		s = sm.applyExtraStylesIfNeeded(c, MergeStyles(*c.Style, *rowStyle))
	case rowStyle != nil:
		s = *rowStyle
	case c.Style != nil:
		s = *c.Style
	default:
		return 0, false
	}
	return sm.RegisterStyle(s).ID()
}

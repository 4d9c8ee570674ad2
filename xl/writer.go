package xl

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/adnsv/srw/xml"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

const (
	nsSpreadsheetML       = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsOfficeRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsRelationships       = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsContentTypes        = "http://schemas.openxmlformats.org/package/2006/content-types"
	nsSpreadsheetDrawing  = "http://schemas.openxmlformats.org/drawingml/2006/spreadsheetDrawing"
	nsDrawingML           = "http://schemas.openxmlformats.org/drawingml/2006/main"

	relTypeDrawing = nsOfficeRelationships + "/drawing"
	relTypeImage   = nsOfficeRelationships + "/image"

	contentTypesPath = "[Content_Types].xml"
)

// packageWriter writes the workbook-level parts once every sheet has been
// streamed: workbook, styles, document properties, relationships and
// content types.
type packageWriter struct {
	out            Storage
	lastGlobalId   int
	lastWorkbookId int

	GlobalRels          map[string]RelInfo // maps id to absolute path
	WorkbookRels        map[string]RelInfo // maps id to absolute paths
	DefaultContentTypes map[string]string  // maps path extension to content-type
	PartContentTypes    map[string]string  // maps path partname to content-type
}

type RelInfo struct {
	Type   string // url to schema type
	Target string // relative path
}

func newPackageWriter(s Storage) *packageWriter {
	w := &packageWriter{
		out:                 s,
		GlobalRels:          map[string]RelInfo{},
		WorkbookRels:        map[string]RelInfo{},
		DefaultContentTypes: map[string]string{},
		PartContentTypes:    map[string]string{},
	}

	w.DefaultContentTypes["xml"] = "application/xml"
	w.DefaultContentTypes["rels"] = "application/vnd.openxmlformats-package.relationships+xml"

	return w
}

func (w *packageWriter) nextGlobalID() (int, string) {
	w.lastGlobalId++
	return w.lastGlobalId, fmt.Sprintf("rId%d", w.lastGlobalId)
}
func (w *packageWriter) nextWorkbookID() (int, string) {
	w.lastWorkbookId++
	return w.lastWorkbookId, fmt.Sprintf("rId%d", w.lastWorkbookId)
}

func (w *packageWriter) Write(wb *Workbook) error {
	var err error

	err = w.writeWorkbook(wb)
	if err != nil {
		return err
	}

	err = w.writeStyles(wb.registry)
	if err != nil {
		return err
	}

	if wb.sst.Used() {
		w.registerSharedStrings()
	}

	for name, ctype := range wb.media {
		w.DefaultContentTypes[mediaExtension(name)] = ctype
	}

	err = w.writeCoreProperties()
	if err != nil {
		return err
	}
	err = w.writeExtendedProperties(wb.AppName)
	if err != nil {
		return err
	}

	err = w.writeRels("/xl/_rels/workbook.xml.rels", w.WorkbookRels)
	if err != nil {
		return err
	}

	err = w.writeRels("/_rels/.rels", w.GlobalRels)
	if err != nil {
		return err
	}

	return w.writeContentTypes()
}

func (w *packageWriter) writeBlob(abspath string, blob []byte) error {
	if err := w.out.WriteBlob(abspath, blob); err != nil {
		return &IOError{Path: abspath, Op: "write", Err: err}
	}
	return nil
}

func (w *packageWriter) writeCoreProperties() error {
	_, rid := w.nextGlobalID()

	relpath := "docProps/core.xml"
	abspath := "/" + relpath

	w.PartContentTypes[abspath] = "application/vnd.openxmlformats-package.core-properties+xml"
	w.GlobalRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties",
		Target: relpath,
	}

	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})

	x.XmlStandaloneDecl()
	x.OTag("cp:coreProperties")
	x.Attr("xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties")
	x.Attr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	x.Attr("xmlns:dcterms", "http://purl.org/dc/terms/")
	x.Attr("xmlns:dcmitype", "http://purl.org/dc/dcmitype/")
	x.Attr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")

	x.OTag("+dcterms:created")
	x.Attr("xsi:type", "dcterms:W3CDTF")
	x.Write(time.Now().UTC().Format(time.RFC3339))
	x.CTag()

	x.CTag()

	return w.writeBlob(abspath, bb.Bytes())
}

func (w *packageWriter) writeExtendedProperties(appname string) error {
	_, rid := w.nextGlobalID()

	relpath := "docProps/app.xml"
	abspath := "/" + relpath

	w.PartContentTypes[abspath] = "application/vnd.openxmlformats-officedocument.extended-properties+xml"
	w.GlobalRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties",
		Target: relpath,
	}

	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})
	x.XmlStandaloneDecl()

	x.OTag("Properties")
	x.Attr("xmlns", "http://schemas.openxmlformats.org/officeDocument/2006/extended-properties")
	x.Attr("xmlns:vt", "http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes")

	if appname != "" {
		x.OTag("+Application").String(appname).CTag()
	}

	x.CTag()

	return w.writeBlob(abspath, bb.Bytes())
}

func (w *packageWriter) writeContentTypes() error {
	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})

	x.XmlStandaloneDecl()
	x.OTag("Types")
	x.Attr("xmlns", nsContentTypes)
	enumerate(w.DefaultContentTypes, func(ext, ctype string) error {
		x.OTag("+Default").Attr("Extension", ext).Attr("ContentType", ctype).CTag()
		return nil
	})
	enumerate(w.PartContentTypes, func(abspath, ctype string) error {
		x.OTag("+Override").Attr("PartName", abspath).Attr("ContentType", ctype).CTag()
		return nil
	})

	x.CTag()

	return w.writeBlob(contentTypesPath, bb.Bytes())
}

func (w *packageWriter) writeWorkbook(wb *Workbook) error {
	_, rid := w.nextGlobalID()

	relpath := "xl/workbook.xml"
	abspath := "/" + relpath

	w.PartContentTypes[abspath] = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"
	w.GlobalRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument",
		Target: relpath,
	}

	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})
	x.XmlStandaloneDecl()

	x.OTag("workbook")
	x.Attr("xmlns", nsSpreadsheetML)
	x.Attr("xmlns:r", nsOfficeRelationships)

	x.OTag("+sheets")
	for _, sheet := range wb.Sheets {
		sheet_id, sheet_rid := w.nextWorkbookID()
		{
			x.OTag("+sheet")
			x.Attr("name", sheet.Name)
			x.Attr("sheetId", sheet_id)
			x.Attr("r:id", sheet_rid)
			x.CTag()
		}
		w.registerSheet(sheet, sheet_rid)
	}
	x.CTag()

	var filtered []*Worksheet
	for _, sheet := range wb.Sheets {
		if sheet.filterRef() != "" {
			filtered = append(filtered, sheet)
		}
	}
	if len(filtered) > 0 {
		x.OTag("+definedNames")
		for _, sheet := range filtered {
			x.OTag("+definedName")
			x.Attr("name", "_xlnm._FilterDatabase")
			x.Attr("localSheetId", sheet.index-1)
			x.Attr("hidden", 1)
			x.Write(absoluteRange(sheet.Name, sheet.filterRef()))
			x.CTag()
		}
		x.CTag()
	}

	x.CTag()

	return w.writeBlob(abspath, bb.Bytes())
}

// registerSheet records the relationships and content types of the parts
// streamed for a sheet.
func (w *packageWriter) registerSheet(sh *Worksheet, rid string) {
	relpath := strings.TrimPrefix(sh.filePath, "xl/")
	w.PartContentTypes["/"+sh.filePath] = "application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"
	w.WorkbookRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet",
		Target: relpath,
	}
	if sh.hasDrawing() {
		w.PartContentTypes["/"+drawingPath(sh.index)] = "application/vnd.openxmlformats-officedocument.drawing+xml"
	}
}

func (w *packageWriter) registerSharedStrings() {
	_, rid := w.nextWorkbookID()
	w.PartContentTypes["/"+sharedStringsPath] = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"
	w.WorkbookRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings",
		Target: strings.TrimPrefix(sharedStringsPath, "xl/"),
	}
}

// absoluteRange turns "A1:C1" of sheet into 'sheet'!$A$1:$C$1.
func absoluteRange(sheet, ref string) string {
	parts := strings.Split(ref, ":")
	for i, p := range parts {
		j := strings.IndexAny(p, "0123456789")
		parts[i] = "$" + p[:j] + "$" + p[j:]
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + strings.Join(parts, ":")
}

// writeStyles writes the registered styles as cellXfs, in ID order, so the
// s attribute of every cell points at its style.
func (w *packageWriter) writeStyles(registry *StyleRegistry) error {
	_, rid := w.nextWorkbookID()

	relpath := "styles.xml"
	abspath := "/xl/" + relpath

	w.PartContentTypes[abspath] = "application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"
	w.WorkbookRels[rid] = RelInfo{
		Type:   "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles",
		Target: relpath,
	}

	styles := registry.Styles()
	fonts := newIndex[Font]()
	fills := newIndex[string]()
	borders := newIndex[BorderStyle]()
	numFmts := newIndex[string]()
	fonts.add(Font{})
	fills.add("")
	fills.add("gray125")
	borders.add(BorderNone)
	for _, s := range styles {
		fonts.add(s.Font)
		if s.BackgroundColor != "" {
			fills.add(s.BackgroundColor)
		}
		borders.add(s.Border)
		if s.NumberFormat != "" {
			numFmts.add(s.NumberFormat)
		}
	}

	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})
	x.XmlStandaloneDecl()

	x.OTag("styleSheet")
	x.Attr("xmlns", nsSpreadsheetML)

	if len(numFmts.items) > 0 {
		x.OTag("+numFmts").Attr("count", len(numFmts.items))
		for i, code := range numFmts.items {
			x.OTag("+numFmt").Attr("numFmtId", firstCustomNumFmtID+i).Attr("formatCode", code).CTag()
		}
		x.CTag()
	}

	x.OTag("+fonts").Attr("count", len(fonts.items))
	for _, f := range fonts.items {
		writeFont(x, f)
	}
	x.CTag()

	x.OTag("+fills").Attr("count", len(fills.items))
	for i, color := range fills.items {
		x.OTag("+fill")
		switch i {
		case 0:
			x.OTag("patternFill").Attr("patternType", "none").CTag()
		case 1:
			x.OTag("patternFill").Attr("patternType", "gray125").CTag()
		default:
			x.OTag("patternFill").Attr("patternType", "solid")
			x.OTag("fgColor").Attr("rgb", color).CTag()
			x.CTag()
		}
		x.CTag()
	}
	x.CTag()

	x.OTag("+borders").Attr("count", len(borders.items))
	for _, b := range borders.items {
		x.OTag("+border")
		writeBorderEdge(x.OTag("left"), b)
		writeBorderEdge(x.OTag("right"), b)
		writeBorderEdge(x.OTag("top"), b)
		writeBorderEdge(x.OTag("bottom"), b)
		x.OTag("diagonal").CTag()
		x.CTag()
	}
	x.CTag()

	x.OTag("+cellStyleXfs").Attr("count", 1)
	x.OTag("+xf").Attr("numFmtId", 0).Attr("fontId", 0).Attr("fillId", 0).Attr("borderId", 0).CTag()
	x.CTag()

	x.OTag("+cellXfs").Attr("count", len(styles))
	for _, s := range styles {
		numFmtID := 0
		if s.NumberFormat != "" {
			numFmtID = firstCustomNumFmtID + numFmts.ids[s.NumberFormat]
		}
		fillID := 0
		if s.BackgroundColor != "" {
			fillID = fills.ids[s.BackgroundColor]
		}
		x.OTag("+xf")
		x.Attr("numFmtId", numFmtID)
		x.Attr("fontId", fonts.ids[s.Font])
		x.Attr("fillId", fillID)
		x.Attr("borderId", borders.ids[s.Border])
		x.Attr("xfId", 0)
		if numFmtID != 0 {
			x.Attr("applyNumberFormat", 1)
		}
		if !s.Font.IsDefault() {
			x.Attr("applyFont", 1)
		}
		if fillID != 0 {
			x.Attr("applyFill", 1)
		}
		if s.Border != BorderNone {
			x.Attr("applyBorder", 1)
		}
		if s.WrapText {
			x.Attr("applyAlignment", 1)
			x.OTag("alignment").Attr("wrapText", 1).CTag()
		}
		x.CTag()
	}
	x.CTag()

	x.OTag("+cellStyles").Attr("count", 1)
	x.OTag("+cellStyle").Attr("name", "Normal").Attr("xfId", 0).Attr("builtinId", 0).CTag()
	x.CTag()

	x.CTag()

	return w.writeBlob(abspath, bb.Bytes())
}

const firstCustomNumFmtID = 164

func writeBorderEdge(x *xml.Writer, b BorderStyle) {
	if b != BorderNone {
		x.Attr("style", string(b))
		x.OTag("color").Attr("auto", 1).CTag()
	}
	x.CTag()
}

func writeFont(x *xml.Writer, f Font) {
	x.OTag("+font")
	if f.Bold {
		x.OTag("b").CTag()
	}
	if f.Italic {
		x.OTag("i").CTag()
	}
	if f.Strikethrough {
		x.OTag("strike").CTag()
	}
	if f.Underline != UnderlineNone {
		x.OTag("u").Attr("val", string(f.Underline)).CTag()
	}
	size := f.Size
	if size == 0 {
		size = 11
	}
	x.OTag("sz").Attr("val", strconv.FormatFloat(size, 'f', -1, 64)).CTag()
	if f.Color != "" {
		x.OTag("color").Attr("rgb", f.Color).CTag()
	}
	name := f.Name
	if name == "" {
		name = "Calibri"
	}
	x.OTag("name").Attr("val", name).CTag()
	x.OTag("family").Attr("val", 2).CTag()
	x.CTag()
}

// index assigns sequential IDs to distinct values.
type index[K comparable] struct {
	ids   map[K]int
	items []K
}

func newIndex[K comparable]() *index[K] {
	return &index[K]{ids: map[K]int{}}
}

func (ix *index[K]) add(k K) int {
	if id, ok := ix.ids[k]; ok {
		return id
	}
	id := len(ix.items)
	ix.ids[k] = id
	ix.items = append(ix.items, k)
	return id
}

func (w *packageWriter) writeRels(path string, rels map[string]RelInfo) error {
	bb := bytes.Buffer{}
	x := xml.NewWriter(&bb, xml.WriterConfig{Indent: xml.Indent2Spaces})
	x.XmlStandaloneDecl()

	x.OTag("Relationships")
	x.Attr("xmlns", nsRelationships)
	err := enumerate(rels, func(rid string, info RelInfo) error {
		x.OTag("+Relationship").Attr("Id", rid).Attr("Type", info.Type).Attr("Target", info.Target)
		x.CTag()

		return nil
	})
	if err != nil {
		return err
	}
	x.CTag()

	return w.writeBlob(path, bb.Bytes())
}

func enumerate[M ~map[K]V, K constraints.Ordered, V any](m M, callback func(k K, v V) error) error {
	keys := maps.Keys(m)
	slices.Sort(keys)
	for _, k := range keys {
		err := callback(k, m[k])
		if err != nil {
			return err
		}
	}
	return nil
}

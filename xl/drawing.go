package xl

import (
	"fmt"
	"path"

	"github.com/adnsv/srw/xml"
)

const (
	emuPerPixel     = 9525
	imageRowHeight  = 100     // points, applied to rows holding image cells
	imageAnchorRowE = 1270000 // imageRowHeight in EMU
)

// drawingParts are the three parts linking a sheet to its pictures: the
// sheet rels, the drawing and the drawing rels.
type drawingParts struct {
	index      int
	sheetRels  *Stream
	drawing    *Stream
	rels       *Stream
	x, rx      *xml.Writer
	lastRelID  int
	anchors    int
	terminated bool
}

func drawingPath(index int) string     { return fmt.Sprintf("xl/drawings/drawing%d.xml", index) }
func drawingRelsPath(index int) string { return fmt.Sprintf("xl/drawings/_rels/drawing%d.xml.rels", index) }
func sheetRelsPath(index int) string   { return fmt.Sprintf("xl/worksheets/_rels/sheet%d.xml.rels", index) }

// openDrawingParts creates the parts and writes their headers. The sheet
// rels is complete right away: it only holds the link to the drawing.
func openDrawingParts(index int, create func(string) (*Stream, error)) (*drawingParts, error) {
	dp := &drawingParts{index: index}
	var err error
	if dp.sheetRels, err = create(sheetRelsPath(index)); err != nil {
		return nil, err
	}
	if dp.drawing, err = create(drawingPath(index)); err != nil {
		dp.sheetRels.Close()
		return nil, err
	}
	if dp.rels, err = create(drawingRelsPath(index)); err != nil {
		dp.sheetRels.Close()
		dp.drawing.Close()
		return nil, err
	}

	x := xml.NewWriter(dp.sheetRels, xml.WriterConfig{Indent: xml.Indent2Spaces})
	x.XmlStandaloneDecl()
	x.OTag("Relationships")
	x.Attr("xmlns", nsRelationships)
	x.OTag("+Relationship").Attr("Id", "rId1").Attr("Type", relTypeDrawing).
		Attr("Target", "../drawings/"+path.Base(drawingPath(index))).CTag()
	x.CTag()

	dp.x = xml.NewWriter(dp.drawing, xml.WriterConfig{Indent: xml.Indent2Spaces})
	dp.x.XmlStandaloneDecl()
	dp.x.OTag("xdr:wsDr")
	dp.x.Attr("xmlns:xdr", nsSpreadsheetDrawing)
	dp.x.Attr("xmlns:a", nsDrawingML)
	dp.x.Attr("xmlns:r", nsOfficeRelationships)

	dp.rx = xml.NewWriter(dp.rels, xml.WriterConfig{Indent: xml.Indent2Spaces})
	dp.rx.XmlStandaloneDecl()
	dp.rx.OTag("Relationships")
	dp.rx.Attr("xmlns", nsRelationships)
	return dp, nil
}

// addImage appends the anchor of img and the relationship to its media
// file. Relationship IDs only advance here, so a dropped image never
// consumes one.
func (dp *drawingParts) addImage(img *fetchedImage) {
	dp.lastRelID++
	rid := fmt.Sprintf("rId%d", dp.lastRelID)
	dp.anchors++

	x := dp.x
	x.OTag("+xdr:twoCellAnchor").Attr("editAs", "oneCell")

	x.OTag("+xdr:from")
	x.OTag("+xdr:col").Write(img.Col).CTag()
	x.OTag("+xdr:colOff").Write(0).CTag()
	x.OTag("+xdr:row").Write(img.Row - 1).CTag()
	x.OTag("+xdr:rowOff").Write(0).CTag()
	x.CTag()

	x.OTag("+xdr:to")
	x.OTag("+xdr:col").Write(img.Col).CTag()
	x.OTag("+xdr:colOff").Write(img.Width * emuPerPixel).CTag()
	x.OTag("+xdr:row").Write(img.Row - 1).CTag()
	x.OTag("+xdr:rowOff").Write(imageAnchorRowE).CTag()
	x.CTag()

	x.OTag("+xdr:pic")
	x.OTag("+xdr:nvPicPr")
	x.OTag("+xdr:cNvPr").Attr("id", dp.lastRelID+1).Attr("name", fmt.Sprintf("Picture %d", dp.lastRelID)).
		Attr("descr", img.URL).CTag()
	x.OTag("+xdr:cNvPicPr")
	x.OTag("+a:picLocks").Attr("noChangeAspect", 1).Attr("noChangeArrowheads", 1).CTag()
	x.CTag() // cNvPicPr
	x.CTag() // nvPicPr
	x.OTag("+xdr:blipFill")
	x.OTag("+a:blip").Attr("r:embed", rid).CTag()
	x.OTag("+a:srcRect").CTag()
	x.OTag("+a:stretch")
	x.OTag("+a:fillRect").CTag()
	x.CTag() // stretch
	x.CTag() // blipFill
	x.OTag("+xdr:spPr").Attr("bwMode", "auto")
	x.OTag("+a:xfrm").CTag()
	x.OTag("+a:prstGeom").Attr("prst", "rect")
	x.OTag("+a:avLst").CTag()
	x.CTag() // prstGeom
	x.OTag("+a:noFill").CTag()
	x.CTag() // spPr
	x.CTag() // pic
	x.OTag("+xdr:clientData").CTag()
	x.CTag() // twoCellAnchor

	dp.rx.OTag("+Relationship").Attr("Id", rid).Attr("Type", relTypeImage).
		Attr("Target", "../media/"+img.Name).CTag()
}

// terminate closes the root elements of the drawing and its rels.
func (dp *drawingParts) terminate() {
	if dp.terminated {
		return
	}
	dp.terminated = true
	dp.x.CTag()
	dp.rx.CTag()
}

// Close closes every part stream exactly once.
func (dp *drawingParts) Close() error {
	var first error
	for _, s := range []*Stream{dp.sheetRels, dp.drawing, dp.rels} {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

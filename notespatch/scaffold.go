package notespatch

import "fmt"

const nsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

// scaffoldTmpl is the smallest notes part the schema allows: a shape tree
// with the body placeholder and an empty spare for the paragraph fragment.
const scaffoldTmpl = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n" +
	`<p:notes xmlns:a="` + nsDrawingML + `" xmlns:r="` + nsRelationships + `" xmlns:p="` + nsPresentationML + `">` +
	`<p:cSld><p:spTree>` +
	`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr/>` +
	`<p:sp>` +
	`<p:nvSpPr><p:cNvPr id="2" name="Notes Placeholder"/>` +
	`<p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr>` +
	`<p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>` +
	`<p:spPr/>` +
	`<p:txBody><a:bodyPr/><a:lstStyle/>%s</p:txBody>` +
	`</p:sp>` +
	`</p:spTree></p:cSld></p:notes>`

// Scaffold synthesizes a minimal notes part carrying the given text, for
// slides that have no notes part yet. The result parses with SetText and
// ExtractText like any stored part.
func Scaffold(text string) []byte {
	p := part{aPrefix: "a", aBound: true}
	return fmt.Appendf(nil, scaffoldTmpl, p.paragraphXML(Sanitize(text)))
}

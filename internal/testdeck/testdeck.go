// Package testdeck assembles small presentation archives for tests.
// Decks are structurally valid: slide order lives in sldIdLst, slides are
// wired through relationship parts, and notes parts are declared in the
// content-types index.
package testdeck

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/hazyhaar/souffleur/notespatch"
)

// Slide describes one slide of a fixture deck.
type Slide struct {
	Title        string
	Notes        string
	HasNotes     bool // a notes part exists, possibly with empty text
	Hidden       bool // show="0" on the slide part root
	HiddenInList bool // show="0" on the sldId entry, slide part untouched
	PartIndex    int  // explicit slideN.xml index; 0 uses the slide position
}

// Deck describes a fixture presentation.
type Deck struct {
	Slides        []Slide
	NoNotesMaster bool
	// Mutate lets a test corrupt or extend the parts before zipping.
	Mutate func(parts map[string][]byte)
}

const (
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"

	relNotesSlide  = nsR + "/notesSlide"
	relNotesMaster = nsR + "/notesMaster"
	relSlide       = nsR + "/slide"
)

// Write builds the deck and writes it to path.
func Write(t testing.TB, path string, d Deck) {
	t.Helper()

	names, parts := build(d)
	if d.Mutate != nil {
		d.Mutate(parts)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("testdeck: create %s: %v", path, err)
	}
	zw := zip.NewWriter(f)
	for _, name := range names {
		data, ok := parts[name]
		if !ok {
			continue // removed by Mutate
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("testdeck: entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("testdeck: write %s: %v", name, err)
		}
		delete(parts, name)
	}
	for name, data := range parts { // parts added by Mutate
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("testdeck: entry %s: %v", name, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("testdeck: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("testdeck: close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("testdeck: close file: %v", err)
	}
}

func build(d Deck) (names []string, parts map[string][]byte) {
	parts = make(map[string][]byte)
	add := func(name string, data []byte) {
		names = append(names, name)
		parts[name] = data
	}

	var ctOverrides, sldIds, presRels strings.Builder
	presRels.WriteString(`<Relationship Id="rId1" Type="` + relNotesMaster + `" Target="notesMasters/notesMaster1.xml"/>`)

	for i, s := range d.Slides {
		pos := i + 1
		idx := s.PartIndex
		if idx == 0 {
			idx = pos
		}
		slidePart := fmt.Sprintf("ppt/slides/slide%d.xml", idx)
		rid := fmt.Sprintf("rId%d", pos+1)

		show := ""
		if s.HiddenInList {
			show = ` show="0"`
		}
		sldIds.WriteString(fmt.Sprintf(`<p:sldId id="%d" r:id="%s"%s/>`, 255+pos, rid, show))
		presRels.WriteString(`<Relationship Id="` + rid + `" Type="` + relSlide + `" Target="slides/slide` + fmt.Sprint(idx) + `.xml"/>`)
		ctOverrides.WriteString(`<Override PartName="/` + slidePart + `" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`)

		add(slidePart, slideXML(s))
		if s.HasNotes {
			notesPart := fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", idx)
			add(notesPart, notespatch.Scaffold(s.Notes))
			add(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", idx), []byte(
				`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
					`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
					`<Relationship Id="rId1" Type="`+relNotesSlide+`" Target="../notesSlides/notesSlide`+fmt.Sprint(idx)+`.xml"/>`+
					`</Relationships>`))
			add(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", idx), []byte(
				`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
					`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
					`<Relationship Id="rId1" Type="`+relNotesMaster+`" Target="../notesMasters/notesMaster1.xml"/>`+
					`<Relationship Id="rId2" Type="`+relSlide+`" Target="../slides/slide`+fmt.Sprint(idx)+`.xml"/>`+
					`</Relationships>`))
			ctOverrides.WriteString(`<Override PartName="/` + notesPart + `" ContentType="application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"/>`)
		}
	}

	contentTypes := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` +
		ctOverrides.String() + `</Types>`

	presentation := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<p:presentation xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
		`<p:notesMasterIdLst><p:notesMasterId r:id="rId1"/></p:notesMasterIdLst>` +
		`<p:sldIdLst>` + sldIds.String() + `</p:sldIdLst>` +
		`<p:sldSz cx="12192000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/>` +
		`</p:presentation>`

	rootRels := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
		`<Relationship Id="rId1" Type="` + nsR + `/officeDocument" Target="ppt/presentation.xml"/>` +
		`</Relationships>`

	// Fixed archive layout: index parts first, then content parts.
	head := []string{"[Content_Types].xml", "_rels/.rels", "ppt/presentation.xml", "ppt/_rels/presentation.xml.rels"}
	headData := [][]byte{[]byte(contentTypes), []byte(rootRels), []byte(presentation), []byte(
		`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			presRels.String() + `</Relationships>`)}

	names = append(head, names...)
	for i, n := range head {
		parts[n] = headData[i]
	}

	if !d.NoNotesMaster {
		add("ppt/notesMasters/notesMaster1.xml", []byte(
			`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+
				`<p:notesMaster xmlns:a="`+nsA+`" xmlns:p="`+nsP+`">`+
				`<p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/></p:spTree></p:cSld>`+
				`</p:notesMaster>`))
	}
	return names, parts
}

func slideXML(s Slide) []byte {
	show := ""
	if s.Hidden {
		show = ` show="0"`
	}
	title := ""
	if s.Title != "" {
		title = `<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr/><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:spPr/>` +
			`<p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:t>` + xmlEscape(s.Title) + `</a:t></a:r></a:p></p:txBody></p:sp>`
	}
	return []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<p:sld xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"` + show + `>` +
		`<p:cSld><p:spTree>` +
		`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		title +
		`</p:spTree></p:cSld></p:sld>`)
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func xmlEscape(s string) string { return escaper.Replace(s) }

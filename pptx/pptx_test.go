package pptx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/souffleur/internal/testdeck"
)

func writeDeck(t *testing.T, d testdeck.Deck) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "deck.pptx")
	testdeck.Write(t, p, d)
	return p
}

func openDeck(t *testing.T, d testdeck.Deck) *Container {
	t.Helper()
	c, err := Open(writeDeck(t, d))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// Slide order comes from sldIdLst, not from part file names: a deck whose
// first slide is stored in slide3.xml must still resolve position 1 to it.
func TestOpenResolvesSlideOrder(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{
		{PartIndex: 3, HasNotes: true, Notes: "first in order"},
		{PartIndex: 1, HasNotes: true, Notes: "second in order"},
		{PartIndex: 2},
	}})

	if got := c.SlideCount(); got != 3 {
		t.Fatalf("SlideCount = %d, want 3", got)
	}

	wantParts := []string{"ppt/slides/slide3.xml", "ppt/slides/slide1.xml", "ppt/slides/slide2.xml"}
	for i, want := range wantParts {
		got, err := c.SlidePart(i + 1)
		if err != nil {
			t.Fatalf("SlidePart(%d): %v", i+1, err)
		}
		if got != want {
			t.Errorf("SlidePart(%d) = %q, want %q", i+1, got, want)
		}
	}

	name, ok, err := c.NotesPart(1)
	if err != nil || !ok {
		t.Fatalf("NotesPart(1) = %q, %v, %v", name, ok, err)
	}
	if name != "ppt/notesSlides/notesSlide3.xml" {
		t.Errorf("NotesPart(1) = %q, want notesSlide3.xml", name)
	}
	if _, ok, _ := c.NotesPart(3); ok {
		t.Errorf("NotesPart(3): slide without notes reported a part")
	}
}

func TestOpenStructureErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(parts map[string][]byte)
	}{
		{"missing presentation part", func(parts map[string][]byte) {
			delete(parts, "ppt/presentation.xml")
		}},
		{"malformed presentation part", func(parts map[string][]byte) {
			parts["ppt/presentation.xml"] = []byte("<p:presentation")
		}},
		{"missing presentation rels", func(parts map[string][]byte) {
			delete(parts, "ppt/_rels/presentation.xml.rels")
		}},
		{"dangling slide relationship", func(parts map[string][]byte) {
			parts["ppt/_rels/presentation.xml.rels"] = []byte(
				`<?xml version="1.0"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`)
		}},
		{"malformed slide rels", func(parts map[string][]byte) {
			parts["ppt/slides/_rels/slide1.xml.rels"] = []byte("<Relationships")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeDeck(t, testdeck.Deck{
				Slides: []testdeck.Slide{{HasNotes: true, Notes: "x"}},
				Mutate: tt.mutate,
			})
			if _, err := Open(p); !errors.Is(err, ErrDeckStructure) {
				t.Fatalf("Open error = %v, want ErrDeckStructure", err)
			}
		})
	}
}

func TestOpenNotAnArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(p, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p); err == nil {
		t.Fatal("Open accepted a non-zip file")
	}
}

func TestSlideNumberOutOfRange(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{}, {}}})
	for _, n := range []int{0, -1, 3} {
		if _, err := c.SlidePart(n); !errors.Is(err, ErrNoSlide) {
			t.Errorf("SlidePart(%d) error = %v, want ErrNoSlide", n, err)
		}
		if _, _, err := c.NotesPart(n); !errors.Is(err, ErrNoSlide) {
			t.Errorf("NotesPart(%d) error = %v, want ErrNoSlide", n, err)
		}
	}
}

func TestReadPart(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{HasNotes: true, Notes: "hello"}}})

	data, err := c.ReadPart("ppt/notesSlides/notesSlide1.xml")
	if err != nil {
		t.Fatalf("ReadPart: %v", err)
	}
	if !bytes.Contains(data, []byte("hello")) {
		t.Errorf("notes part does not contain the fixture text")
	}

	if _, err := c.ReadPart("ppt/slides/slide99.xml"); !errors.Is(err, ErrNoPart) {
		t.Errorf("ReadPart(missing) error = %v, want ErrNoPart", err)
	}
	if c.HasPart("ppt/slides/slide99.xml") {
		t.Errorf("HasPart reported a missing part")
	}
	if !c.HasPart("ppt/slides/slide1.xml") {
		t.Errorf("HasPart missed an existing part")
	}
}

func TestNotesMaster(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{}}})
	name, ok := c.NotesMaster()
	if !ok || name != "ppt/notesMasters/notesMaster1.xml" {
		t.Fatalf("NotesMaster = %q, %v", name, ok)
	}

	bare := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{}}, NoNotesMaster: true})
	if name, ok := bare.NotesMaster(); ok {
		t.Fatalf("NotesMaster on masterless deck = %q, want none", name)
	}
}

func TestSlideSize(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{}}})
	w, h := c.SlideSize()
	if w != 12192000 || h != 6858000 {
		t.Fatalf("SlideSize = %d x %d, want 12192000 x 6858000", w, h)
	}
}

func TestPartNameHelpers(t *testing.T) {
	if got := RelsName("ppt/slides/slide3.xml"); got != "ppt/slides/_rels/slide3.xml.rels" {
		t.Errorf("RelsName = %q", got)
	}
	if got := RelsName("ppt/presentation.xml"); got != "ppt/_rels/presentation.xml.rels" {
		t.Errorf("RelsName(presentation) = %q", got)
	}
	if got := NotesPartName(7); got != "ppt/notesSlides/notesSlide7.xml" {
		t.Errorf("NotesPartName = %q", got)
	}
}

func TestRelativeTarget(t *testing.T) {
	tests := []struct {
		from, to, want string
	}{
		{"ppt/slides/slide1.xml", "ppt/notesSlides/notesSlide1.xml", "../notesSlides/notesSlide1.xml"},
		{"ppt/notesSlides/notesSlide2.xml", "ppt/slides/slide2.xml", "../slides/slide2.xml"},
		{"ppt/presentation.xml", "ppt/slides/slide1.xml", "slides/slide1.xml"},
		{"ppt/slides/slide1.xml", "ppt/slides/slide2.xml", "slide2.xml"},
		{"ppt/notesSlides/notesSlide1.xml", "ppt/notesMasters/notesMaster1.xml", "../notesMasters/notesMaster1.xml"},
	}
	for _, tt := range tests {
		if got := RelativeTarget(tt.from, tt.to); got != tt.want {
			t.Errorf("RelativeTarget(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		base, target, want string
	}{
		{"ppt", "slides/slide1.xml", "ppt/slides/slide1.xml"},
		{"ppt/slides", "../notesSlides/notesSlide1.xml", "ppt/notesSlides/notesSlide1.xml"},
		{"ppt/slides", `..\notesSlides\notesSlide1.xml`, "ppt/notesSlides/notesSlide1.xml"},
		{"ppt/slides", "/ppt/notesSlides/notesSlide1.xml", "ppt/notesSlides/notesSlide1.xml"},
	}
	for _, tt := range tests {
		if got := resolveTarget(tt.base, tt.target); got != tt.want {
			t.Errorf("resolveTarget(%q, %q) = %q, want %q", tt.base, tt.target, got, tt.want)
		}
	}
}

func TestAddRelationship(t *testing.T) {
	data := NewRelationships(
		Relationship{ID: "rId1", Type: RelTypeNotesMaster, Target: "../notesMasters/notesMaster1.xml"},
		Relationship{ID: "rId4", Type: RelTypeSlide, Target: "../slides/slide1.xml"},
	)

	out, id, err := AddRelationship(data, RelTypeNotesSlide, "../notesSlides/notesSlide1.xml")
	if err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if id != "rId5" {
		t.Errorf("new relationship id = %q, want rId5 (max existing + 1)", id)
	}

	rels, err := ParseRelationships(out)
	if err != nil {
		t.Fatalf("ParseRelationships after add: %v", err)
	}
	if len(rels.Rels) != 3 {
		t.Fatalf("relationship count = %d, want 3", len(rels.Rels))
	}
	last := rels.Rels[2]
	if last.ID != "rId5" || last.Type != RelTypeNotesSlide || last.Target != "../notesSlides/notesSlide1.xml" {
		t.Errorf("appended relationship = %+v", last)
	}

	// Existing bytes stay put; the entry lands before the closing tag.
	if !bytes.HasPrefix(out, data[:len(data)-len("</Relationships>")]) {
		t.Errorf("AddRelationship rewrote existing bytes")
	}
}

func TestAddRelationshipNoClosingTag(t *testing.T) {
	// Self-closed root parses fine but has nowhere to splice.
	doc := []byte(`<Relationships xmlns="` + nsRelationships + `"/>`)
	if _, _, err := AddRelationship(doc, RelTypeNotesSlide, "x"); !errors.Is(err, ErrDeckStructure) {
		t.Fatalf("error = %v, want ErrDeckStructure", err)
	}
}

func TestNewRelationshipsRoundTrip(t *testing.T) {
	data := NewRelationships(Relationship{ID: "rId1", Type: RelTypeNotesSlide, Target: `a&b"c.xml`})
	rels, err := ParseRelationships(data)
	if err != nil {
		t.Fatalf("ParseRelationships: %v", err)
	}
	if len(rels.Rels) != 1 || rels.Rels[0].Target != `a&b"c.xml` {
		t.Fatalf("round trip = %+v", rels.Rels)
	}
}

func TestEnsureOverride(t *testing.T) {
	base := []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` +
		`</Types>`)

	part := "/ppt/notesSlides/notesSlide1.xml"
	out, err := EnsureOverride(base, part, ContentTypeNotesSlide)
	if err != nil {
		t.Fatalf("EnsureOverride: %v", err)
	}
	if !bytes.Contains(out, []byte(`PartName="`+part+`"`)) {
		t.Fatalf("override not added:\n%s", out)
	}
	if !bytes.HasPrefix(out, base[:len(base)-len("</Types>")]) || !bytes.HasSuffix(out, []byte("</Types>")) {
		t.Errorf("EnsureOverride disturbed surrounding bytes")
	}

	again, err := EnsureOverride(out, part, ContentTypeNotesSlide)
	if err != nil {
		t.Fatalf("EnsureOverride (present): %v", err)
	}
	if !bytes.Equal(again, out) {
		t.Errorf("EnsureOverride changed a document that already had the override")
	}

	if _, err := EnsureOverride([]byte("<Types"), part, ContentTypeNotesSlide); !errors.Is(err, ErrDeckStructure) {
		t.Errorf("malformed content types error = %v, want ErrDeckStructure", err)
	}
}

func TestSetHidden(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{Title: "Intro"}}})
	data, err := c.ReadPart("ppt/slides/slide1.xml")
	if err != nil {
		t.Fatal(err)
	}
	if Hidden(data) {
		t.Fatal("fixture slide starts hidden")
	}

	hid, err := SetHidden(data, true)
	if err != nil {
		t.Fatalf("SetHidden(true): %v", err)
	}
	if !Hidden(hid) {
		t.Fatal("slide not hidden after SetHidden(true)")
	}
	if !bytes.Contains(hid, []byte(` show="0"`)) {
		t.Errorf("hidden slide missing show attribute:\n%s", hid)
	}

	// Everything outside the root start tag must be byte-identical.
	rootEnd := bytes.Index(data, []byte("><p:cSld"))
	hidEnd := bytes.Index(hid, []byte("><p:cSld"))
	if rootEnd < 0 || hidEnd < 0 {
		t.Fatal("cannot locate root tag boundary in fixture")
	}
	if !bytes.Equal(data[rootEnd:], hid[hidEnd:]) {
		t.Errorf("SetHidden changed bytes after the root tag")
	}
	if !bytes.HasPrefix(hid, []byte(`<?xml`)) {
		t.Errorf("SetHidden dropped the XML declaration")
	}

	shown, err := SetHidden(hid, false)
	if err != nil {
		t.Fatalf("SetHidden(false): %v", err)
	}
	if Hidden(shown) {
		t.Fatal("slide still hidden after SetHidden(false)")
	}
	if !bytes.Equal(shown, data) {
		t.Errorf("hide then show did not restore the original bytes:\n%s", shown)
	}

	// Hiding an already-hidden slide keeps a single show attribute.
	twice, err := SetHidden(hid, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := bytes.Count(twice, []byte("show=")); got != 1 {
		t.Errorf("show attribute count = %d, want 1", got)
	}
}

func TestSetHiddenNoRoot(t *testing.T) {
	if _, err := SetHidden([]byte("<?xml version=\"1.0\"?>"), true); err == nil {
		t.Fatal("expected error for part without a root element")
	}
}

func TestSetSlideIDHidden(t *testing.T) {
	c := openDeck(t, testdeck.Deck{Slides: []testdeck.Slide{{}, {}, {}}})
	data, err := c.ReadPart(PresentationPart)
	if err != nil {
		t.Fatal(err)
	}

	hid, err := SetSlideIDHidden(data, 2, true)
	if err != nil {
		t.Fatalf("SetSlideIDHidden: %v", err)
	}
	if got := bytes.Count(hid, []byte(` show="0"`)); got != 1 {
		t.Fatalf("show attribute count = %d, want 1:\n%s", got, hid)
	}
	// The attribute lands on the second entry and the tag stays self-closed.
	if !bytes.Contains(hid, []byte(`r:id="rId3" show="0"/>`)) {
		t.Errorf("second sldId entry not hidden:\n%s", hid)
	}

	shown, err := SetSlideIDHidden(hid, 2, false)
	if err != nil {
		t.Fatalf("SetSlideIDHidden(false): %v", err)
	}
	if !bytes.Equal(shown, data) {
		t.Errorf("hide then show did not restore the original bytes:\n%s", shown)
	}

	twice, err := SetSlideIDHidden(hid, 2, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(twice, hid) {
		t.Errorf("hiding an already-hidden entry changed the bytes")
	}

	for _, n := range []int{0, -1, 4} {
		if _, err := SetSlideIDHidden(data, n, true); !errors.Is(err, ErrDeckStructure) {
			t.Errorf("SetSlideIDHidden(%d) error = %v, want ErrDeckStructure", n, err)
		}
	}
}

func TestSetSlideIDHiddenKeepsChildren(t *testing.T) {
	doc := []byte(`<p:sldIdLst><p:sldId id="256" r:id="rId2"><p:ext/></p:sldId></p:sldIdLst>`)
	out, err := SetSlideIDHidden(doc, 1, true)
	if err != nil {
		t.Fatalf("SetSlideIDHidden: %v", err)
	}
	want := `<p:sldIdLst><p:sldId id="256" r:id="rId2" show="0"><p:ext/></p:sldId></p:sldIdLst>`
	if string(out) != want {
		t.Errorf("patched entry = %s, want %s", out, want)
	}
}

func TestLoadSnapshot(t *testing.T) {
	p := writeDeck(t, testdeck.Deck{Slides: []testdeck.Slide{
		{Title: "Opening", HasNotes: true, Notes: "welcome everyone"},
		{Title: "Backup", Hidden: true},
		{HasNotes: true, Notes: ""},
	}})

	d, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Path != p || d.Size <= 0 || d.ModTime.IsZero() {
		t.Errorf("snapshot identity = %q size=%d mtime=%v", d.Path, d.Size, d.ModTime)
	}
	if d.SlideWidth != 12192000 || d.SlideHeight != 6858000 {
		t.Errorf("slide size = %d x %d", d.SlideWidth, d.SlideHeight)
	}
	if len(d.Slides) != 3 {
		t.Fatalf("slide count = %d, want 3", len(d.Slides))
	}

	s1 := d.Slides[0]
	if s1.Number != 1 || s1.Title != "Opening" || s1.Hidden {
		t.Errorf("slide 1 = %+v", s1)
	}
	if !s1.HasNotes || s1.NotesText != "welcome everyone" {
		t.Errorf("slide 1 notes = %q (has=%v)", s1.NotesText, s1.HasNotes)
	}
	if len(s1.Texts) == 0 || s1.Texts[0] != "Opening" {
		t.Errorf("slide 1 texts = %q", s1.Texts)
	}

	s2 := d.Slides[1]
	if !s2.Hidden || s2.HasNotes || s2.NotesText != "" {
		t.Errorf("slide 2 = %+v", s2)
	}

	s3 := d.Slides[2]
	if !s3.HasNotes || s3.NotesText != "" || s3.Title != "" {
		t.Errorf("slide 3 = %+v", s3)
	}

	if got := d.VisibleCount(); got != 2 {
		t.Errorf("VisibleCount = %d, want 2", got)
	}
	if _, ok := d.Slide(2); !ok {
		t.Errorf("Slide(2) not found")
	}
	if _, ok := d.Slide(4); ok {
		t.Errorf("Slide(4) found in a 3-slide deck")
	}
}

// show="0" can sit on a slide's sldId entry with the slide part itself
// untouched; the snapshot reports such slides hidden all the same.
func TestLoadHiddenFromSlideID(t *testing.T) {
	p := writeDeck(t, testdeck.Deck{Slides: []testdeck.Slide{
		{Title: "Opening"},
		{Title: "Backup", HiddenInList: true},
		{Title: "Closing", Hidden: true},
	}})

	d, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Slides[0].Hidden {
		t.Errorf("slide 1 reads hidden")
	}
	if !d.Slides[1].Hidden {
		t.Errorf("slide hidden via its sldId entry reads as visible")
	}
	if !d.Slides[2].Hidden {
		t.Errorf("slide hidden via its root element reads as visible")
	}
	if got := d.VisibleCount(); got != 1 {
		t.Errorf("VisibleCount = %d, want 1", got)
	}
}

func TestLoadCorruptNotesPart(t *testing.T) {
	p := writeDeck(t, testdeck.Deck{
		Slides: []testdeck.Slide{{HasNotes: true, Notes: "fine"}},
		Mutate: func(parts map[string][]byte) {
			parts["ppt/notesSlides/notesSlide1.xml"] = []byte("<p:notes><unclosed>")
		},
	})
	_, err := Load(p)
	if err == nil {
		t.Fatal("Load accepted a corrupt notes part")
	}
	var pe *PartError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want *PartError", err)
	}
	if pe.Part != "ppt/notesSlides/notesSlide1.xml" {
		t.Errorf("PartError.Part = %q", pe.Part)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.pptx")); err == nil {
		t.Fatal("Load accepted a missing file")
	} else if !strings.Contains(err.Error(), "absent.pptx") {
		t.Errorf("error does not name the file: %v", err)
	}
}

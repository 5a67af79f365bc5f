// Package pptx indexes PresentationML containers: it resolves slide
// numbers to slide and notes part names by walking the presentation's
// slide-order list and relationship records, and loads read-only deck
// snapshots for cached reads.
//
// Slide numbers are 1-based positions in the sldIdLst element of
// ppt/presentation.xml. Part file names carry no ordering authority: a
// deck whose third slide lives in slide17.xml still resolves slide 3 to
// that part.
package pptx

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

const (
	// PresentationPart is the fixed name of the presentation root part.
	PresentationPart = "ppt/presentation.xml"
	// ContentTypesPart is the fixed name of the content-types index.
	ContentTypesPart = "[Content_Types].xml"

	presentationRels = "ppt/_rels/presentation.xml.rels"
	notesDir         = "ppt/notesSlides"
	notesMasterDir   = "ppt/notesMasters"
)

var (
	// ErrNoSlide reports a slide number outside the deck's slide order.
	ErrNoSlide = errors.New("pptx: no such slide")
	// ErrDeckStructure reports missing or unparseable presentation metadata
	// (the presentation part, its relationships, or a slide relationship).
	ErrDeckStructure = errors.New("pptx: presentation structure invalid")
	// ErrNoPart reports a part name absent from the archive.
	ErrNoPart = errors.New("pptx: part not found")
)

// PartError wraps a failure to read or parse one named part.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string { return fmt.Sprintf("pptx: part %s: %v", e.Part, e.Err) }
func (e *PartError) Unwrap() error { return e.Err }

// Container is an open presentation archive with its slide order resolved.
// It reads lazily and never writes; rewriting is the archive rewriter's job.
type Container struct {
	path   string
	zr     *zip.ReadCloser
	parts  map[string]*zip.File
	slides []slideRef
	slideW int64
	slideH int64
}

type slideRef struct {
	part      string
	notesPart string // "" when the slide has no notes part
	hidden    bool   // show="0" on the sldId entry
}

type presentationXML struct {
	SlideIDs []struct {
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		Show string `xml:"show,attr"`
	} `xml:"sldIdLst>sldId"`
	SldSz struct {
		CX int64 `xml:"cx,attr"`
		CY int64 `xml:"cy,attr"`
	} `xml:"sldSz"`
}

// Open opens the archive at path and resolves its slide order eagerly:
// the sldIdLst entries of ppt/presentation.xml are mapped through the
// presentation relationships to slide part names, and each slide's own
// relationships are scanned for its notes part.
func Open(pathName string) (*Container, error) {
	zr, err := zip.OpenReader(pathName)
	if err != nil {
		return nil, fmt.Errorf("pptx: open %s: %w", pathName, err)
	}

	c := &Container{
		path:  pathName,
		zr:    zr,
		parts: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		c.parts[f.Name] = f
	}

	if err := c.resolve(); err != nil {
		zr.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) resolve() error {
	data, err := c.ReadPart(PresentationPart)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeckStructure, err)
	}
	var pres presentationXML
	if err := xml.Unmarshal(data, &pres); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrDeckStructure, PresentationPart, err)
	}
	c.slideW, c.slideH = pres.SldSz.CX, pres.SldSz.CY

	relData, err := c.ReadPart(presentationRels)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeckStructure, err)
	}
	rels, err := ParseRelationships(relData)
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrDeckStructure, presentationRels, err)
	}
	byID := make(map[string]string, len(rels.Rels))
	for _, r := range rels.Rels {
		byID[r.ID] = resolveTarget(path.Dir(PresentationPart), r.Target)
	}

	c.slides = make([]slideRef, 0, len(pres.SlideIDs))
	for i, id := range pres.SlideIDs {
		part, ok := byID[id.RID]
		if !ok || part == "" {
			return fmt.Errorf("%w: sldIdLst entry %d references unknown relationship %q",
				ErrDeckStructure, i+1, id.RID)
		}
		notes, err := c.notesFor(part)
		if err != nil {
			return err
		}
		c.slides = append(c.slides, slideRef{
			part:      part,
			notesPart: notes,
			hidden:    strings.TrimSpace(id.Show) == "0",
		})
	}
	return nil
}

// notesFor finds the notes part linked from a slide part, if any.
func (c *Container) notesFor(slidePart string) (string, error) {
	relsName := RelsName(slidePart)
	if !c.HasPart(relsName) {
		return "", nil
	}
	data, err := c.ReadPart(relsName)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeckStructure, err)
	}
	rels, err := ParseRelationships(data)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", ErrDeckStructure, relsName, err)
	}
	for _, r := range rels.Rels {
		if r.Type == RelTypeNotesSlide {
			return resolveTarget(path.Dir(slidePart), r.Target), nil
		}
	}
	return "", nil
}

// Close releases the underlying archive handle.
func (c *Container) Close() error { return c.zr.Close() }

// Path returns the file the container was opened from.
func (c *Container) Path() string { return c.path }

// SlideCount returns the number of slides in presentation order.
func (c *Container) SlideCount() int { return len(c.slides) }

// SlideSize returns the slide dimensions in EMU.
func (c *Container) SlideSize() (w, h int64) { return c.slideW, c.slideH }

// SlidePart returns the part name of the n-th slide (1-based).
func (c *Container) SlidePart(n int) (string, error) {
	if n < 1 || n > len(c.slides) {
		return "", fmt.Errorf("%w: slide %d of %d", ErrNoSlide, n, len(c.slides))
	}
	return c.slides[n-1].part, nil
}

// NotesPart returns the notes part name linked from the n-th slide.
// A slide without notes returns ok=false with no error: absence is a
// normal state, not a failure.
func (c *Container) NotesPart(n int) (name string, ok bool, err error) {
	if n < 1 || n > len(c.slides) {
		return "", false, fmt.Errorf("%w: slide %d of %d", ErrNoSlide, n, len(c.slides))
	}
	ref := c.slides[n-1]
	return ref.notesPart, ref.notesPart != "", nil
}

// HasPart reports whether the archive holds a part with this exact name.
func (c *Container) HasPart(name string) bool {
	_, ok := c.parts[name]
	return ok
}

// ReadPart returns the decompressed bytes of a named part.
func (c *Container) ReadPart(name string) ([]byte, error) {
	f, ok := c.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPart, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &PartError{Part: name, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &PartError{Part: name, Err: err}
	}
	return data, nil
}

// NotesMaster returns the name of the first notes master part, if the
// deck has one. New notes parts link back to it.
func (c *Container) NotesMaster() (string, bool) {
	var masters []string
	for name := range c.parts {
		if strings.HasPrefix(name, notesMasterDir+"/") && strings.HasSuffix(name, ".xml") &&
			!strings.Contains(name, "/_rels/") {
			masters = append(masters, name)
		}
	}
	if len(masters) == 0 {
		return "", false
	}
	sort.Strings(masters)
	return masters[0], true
}

// RelsName returns the relationships part name for a part:
// ppt/slides/slide3.xml has ppt/slides/_rels/slide3.xml.rels.
func RelsName(part string) string {
	return path.Dir(part) + "/_rels/" + path.Base(part) + ".rels"
}

// NotesPartName returns the conventional part name for notes index k.
func NotesPartName(k int) string {
	return fmt.Sprintf("%s/notesSlide%d.xml", notesDir, k)
}

// RelativeTarget returns the relationship target string that reaches
// toPart from fromPart's directory, e.g. from ppt/slides/slide1.xml to
// ppt/notesSlides/notesSlide1.xml the target is
// ../notesSlides/notesSlide1.xml.
func RelativeTarget(fromPart, toPart string) string {
	from := strings.Split(path.Dir(fromPart), "/")
	to := strings.Split(toPart, "/")
	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}
	var b []string
	for i := common; i < len(from); i++ {
		b = append(b, "..")
	}
	b = append(b, to[common:]...)
	return strings.Join(b, "/")
}

// resolveTarget turns a relationship target into an archive part name.
// Targets may be relative to the source part's directory, use backslashes,
// or be absolute ("/ppt/slides/slide1.xml").
func resolveTarget(baseDir, target string) string {
	target = strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Clean(baseDir + "/" + target)
}

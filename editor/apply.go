package editor

import (
	"context"
	"fmt"

	"github.com/hazyhaar/souffleur/notespatch"
	"github.com/hazyhaar/souffleur/pptx"
	"github.com/hazyhaar/souffleur/rezip"
)

// Update sets one slide's notes text.
type Update struct {
	Slide int    `json:"slide_number"`
	Text  string `json:"notes_text"`
}

// Options control where a write lands. An empty OutputPath edits the
// source file in place.
type Options struct {
	OutputPath string
}

// Result reports a committed write.
type Result struct {
	Path          string   `json:"path"`
	UpdatedSlides []int    `json:"updated_slides"`
	CreatedParts  []string `json:"created_parts,omitempty"`
	InPlace       bool     `json:"in_place"`
}

// UpdateNotes rewrites one slide's notes text.
func (s *Service) UpdateNotes(ctx context.Context, path string, u Update, opts Options) (*Result, error) {
	return s.ApplyUpdates(ctx, path, []Update{u}, opts)
}

// ApplyUpdates applies a batch of notes updates in one commit. The batch
// is all-or-nothing: every update is validated and computed against the
// open container first, and only then is the archive rewritten and
// renamed into place. Any failure before the rename leaves the
// destination untouched.
func (s *Service) ApplyUpdates(ctx context.Context, path string, updates []Update, opts Options) (*Result, error) {
	// Validating: request shape only, no file content.
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	if err := s.validateUpdates(updates); err != nil {
		return nil, err
	}
	dst, inPlace, err := s.resolveDst(abs, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Computing: build every substitution before any byte is written.
	c, err := pptx.Open(abs)
	if err != nil {
		return nil, mapLoadError(abs, err)
	}
	defer c.Close()

	b := newBatch(c)
	slides := make([]int, 0, len(updates))
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := b.setNotes(u.Slide, u.Text); err != nil {
			return nil, err
		}
		slides = append(slides, u.Slide)
	}

	// Committing: one rewrite, one rename.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rezip.Rewrite(abs, dst, b.subs); err != nil {
		return nil, &ErrFileOp{Op: "commit", Path: dst, Cause: err}
	}
	s.cache.Invalidate(dst)

	s.writes.Add(1)
	s.slidesUpdated.Add(int64(len(slides)))
	s.partsCreated.Add(int64(len(b.created)))
	s.logger.Info("notes updated",
		"path", abs, "output", dst, "slides", len(slides),
		"created_parts", len(b.created), "in_place", inPlace)

	return &Result{Path: dst, UpdatedSlides: slides, CreatedParts: b.created, InPlace: inPlace}, nil
}

// SetSlideHidden toggles a slide's visibility through the same
// compute-then-commit pipeline as notes edits.
func (s *Service) SetSlideHidden(ctx context.Context, path string, slide int, hidden bool, opts Options) (*Result, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	if slide < 1 {
		return nil, &ErrValidation{Msg: fmt.Sprintf("slide numbers start at 1, got %d", slide), Slide: slide}
	}
	dst, inPlace, err := s.resolveDst(abs, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := pptx.Open(abs)
	if err != nil {
		return nil, mapLoadError(abs, err)
	}
	defer c.Close()

	if total := c.SlideCount(); slide > total {
		return nil, &ErrSlideNotFound{Slide: slide, Total: total}
	}
	slidePart, err := c.SlidePart(slide)
	if err != nil {
		return nil, &ErrSlideNotFound{Slide: slide, Total: c.SlideCount()}
	}
	data, err := c.ReadPart(slidePart)
	if err != nil {
		return nil, &ErrCorruptPart{Part: slidePart, Slide: slide, Cause: err}
	}
	patched, err := pptx.SetHidden(data, hidden)
	if err != nil {
		return nil, &ErrCorruptPart{Part: slidePart, Slide: slide, Cause: err}
	}

	// Visibility is recorded both on the slide root and on the sldId entry
	// of the presentation part; hide and unhide rewrite the two together.
	presData, err := c.ReadPart(pptx.PresentationPart)
	if err != nil {
		return nil, &ErrCorruptPart{Part: pptx.PresentationPart, Slide: slide, Cause: err}
	}
	presPatched, err := pptx.SetSlideIDHidden(presData, slide, hidden)
	if err != nil {
		return nil, &ErrCorruptPart{Part: pptx.PresentationPart, Slide: slide, Cause: err}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rezip.Rewrite(abs, dst, map[string][]byte{
		slidePart:             patched,
		pptx.PresentationPart: presPatched,
	}); err != nil {
		return nil, &ErrFileOp{Op: "commit", Path: dst, Cause: err}
	}
	s.cache.Invalidate(dst)

	s.writes.Add(1)
	s.logger.Info("slide visibility set",
		"path", abs, "output", dst, "slide", slide, "hidden", hidden)

	return &Result{Path: dst, UpdatedSlides: []int{slide}, InPlace: inPlace}, nil
}

func (s *Service) resolveDst(abs string, opts Options) (dst string, inPlace bool, err error) {
	if opts.OutputPath == "" {
		return abs, true, nil
	}
	dst, err = s.validateOutputPath(opts.OutputPath)
	if err != nil {
		return "", false, err
	}
	return dst, dst == abs, nil
}

// batch accumulates part substitutions for one commit. Parts already
// touched by the batch are read back from the pending set, so several
// creations compound their edits to shared parts instead of clobbering
// each other.
type batch struct {
	c       *pptx.Container
	subs    map[string][]byte
	created []string
}

func newBatch(c *pptx.Container) *batch {
	return &batch{c: c, subs: make(map[string][]byte)}
}

// current returns the working copy of a part.
func (b *batch) current(name string) ([]byte, error) {
	if data, ok := b.subs[name]; ok {
		return data, nil
	}
	return b.c.ReadPart(name)
}

// setNotes stages one slide's new notes text: a patch of the existing
// notes part, or a full creation when the slide has none.
func (b *batch) setNotes(slide int, text string) error {
	total := b.c.SlideCount()
	if slide > total {
		return &ErrSlideNotFound{Slide: slide, Total: total}
	}
	notesPart, ok, err := b.c.NotesPart(slide)
	if err != nil {
		return &ErrSlideNotFound{Slide: slide, Total: total}
	}
	if !ok {
		return b.createNotes(slide, text)
	}

	data, err := b.current(notesPart)
	if err != nil {
		return &ErrCorruptPart{Part: notesPart, Slide: slide, Cause: err}
	}
	patched, err := notespatch.SetText(data, text)
	if err != nil {
		return &ErrCorruptPart{Part: notesPart, Slide: slide, Cause: err}
	}
	b.subs[notesPart] = patched
	return nil
}

// createNotes stages a new notes part for a slide plus everything that
// makes it reachable: the part itself, its relationships, the slide's
// notesSlide relationship, and the content-types override. All of it
// lands in the same commit as the text.
func (b *batch) createNotes(slide int, text string) error {
	slidePart, err := b.c.SlidePart(slide)
	if err != nil {
		return &ErrSlideNotFound{Slide: slide, Total: b.c.SlideCount()}
	}
	notesPart := b.freeNotesPart(slide)

	b.subs[notesPart] = notespatch.Scaffold(text)

	var rels []pptx.Relationship
	next := 1
	if master, ok := b.c.NotesMaster(); ok {
		rels = append(rels, pptx.Relationship{
			ID:     "rId1",
			Type:   pptx.RelTypeNotesMaster,
			Target: pptx.RelativeTarget(notesPart, master),
		})
		next = 2
	}
	rels = append(rels, pptx.Relationship{
		ID:     fmt.Sprintf("rId%d", next),
		Type:   pptx.RelTypeSlide,
		Target: pptx.RelativeTarget(notesPart, slidePart),
	})
	b.subs[pptx.RelsName(notesPart)] = pptx.NewRelationships(rels...)

	slideRels := pptx.RelsName(slidePart)
	target := pptx.RelativeTarget(slidePart, notesPart)
	_, pending := b.subs[slideRels]
	if pending || b.c.HasPart(slideRels) {
		data, err := b.current(slideRels)
		if err != nil {
			return &ErrCorruptPart{Part: slideRels, Slide: slide, Cause: err}
		}
		out, _, err := pptx.AddRelationship(data, pptx.RelTypeNotesSlide, target)
		if err != nil {
			return &ErrCorruptPart{Part: slideRels, Slide: slide, Cause: err}
		}
		b.subs[slideRels] = out
	} else {
		b.subs[slideRels] = pptx.NewRelationships(pptx.Relationship{
			ID:     "rId1",
			Type:   pptx.RelTypeNotesSlide,
			Target: target,
		})
	}

	ct, err := b.current(pptx.ContentTypesPart)
	if err != nil {
		return &ErrCorruptPart{Part: pptx.ContentTypesPart, Slide: slide, Cause: err}
	}
	withOverride, err := pptx.EnsureOverride(ct, "/"+notesPart, pptx.ContentTypeNotesSlide)
	if err != nil {
		return &ErrCorruptPart{Part: pptx.ContentTypesPart, Slide: slide, Cause: err}
	}
	b.subs[pptx.ContentTypesPart] = withOverride

	b.created = append(b.created, notesPart)
	return nil
}

// freeNotesPart picks the smallest unused notesSlideK.xml index at or
// above the slide number, skipping parts the batch is already adding.
func (b *batch) freeNotesPart(slide int) string {
	for k := slide; ; k++ {
		name := pptx.NotesPartName(k)
		if b.c.HasPart(name) {
			continue
		}
		if _, pending := b.subs[name]; pending {
			continue
		}
		return name
	}
}

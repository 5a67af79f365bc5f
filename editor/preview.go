package editor

import (
	"context"

	"github.com/hazyhaar/souffleur/notespatch"
	"github.com/hazyhaar/souffleur/pptx"
	"github.com/hazyhaar/souffleur/rezip"
)

// SlideDiff pairs one slide's current notes text with its proposed text.
type SlideDiff struct {
	Slide       int    `json:"slide_number"`
	Old         string `json:"old_text"`
	New         string `json:"new_text"`
	CreatesPart bool   `json:"creates_part"`
}

// Preview reports what ApplyUpdates would change, without writing.
type Preview struct {
	Path    string        `json:"path"`
	Slides  []SlideDiff   `json:"slides"`
	Entries []rezip.Entry `json:"entries"`
}

// PreviewUpdates runs the validate and compute phases of ApplyUpdates and
// reports the per-slide text changes plus the archive entry dispositions
// the commit would produce. The file is left untouched.
func (s *Service) PreviewUpdates(ctx context.Context, path string, updates []Update) (*Preview, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	if err := s.validateUpdates(updates); err != nil {
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

	b := newBatch(c)
	diffs := make([]SlideDiff, 0, len(updates))
	for _, u := range updates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := SlideDiff{Slide: u.Slide, New: u.Text}
		if notesPart, ok, err := c.NotesPart(u.Slide); err == nil {
			if ok {
				if data, err := c.ReadPart(notesPart); err == nil {
					if text, err := notespatch.ExtractText(data); err == nil {
						d.Old = text
					}
				}
			} else {
				d.CreatesPart = true
			}
		}
		if err := b.setNotes(u.Slide, u.Text); err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}

	entries, err := rezip.Plan(abs, b.subs)
	if err != nil {
		return nil, &ErrFileOp{Op: "plan", Path: abs, Cause: err}
	}
	return &Preview{Path: abs, Slides: diffs, Entries: entries}, nil
}

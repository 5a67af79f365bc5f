package pptx

import (
	"os"
	"time"

	"github.com/hazyhaar/souffleur/notespatch"
)

// Deck is an immutable snapshot of a presentation, precomputed at load
// time so cached reads never touch the archive again. Callers must not
// mutate a Deck; the read cache hands the same snapshot to everyone.
type Deck struct {
	Path        string
	Size        int64
	ModTime     time.Time
	SlideWidth  int64 // EMU
	SlideHeight int64 // EMU
	Slides      []SlideInfo
}

// SlideInfo is the read-side view of one slide.
type SlideInfo struct {
	Number    int
	PartName  string
	NotesPart string // "" when the slide has no notes part
	Title     string
	Hidden    bool
	HasNotes  bool
	NotesText string
	Texts     []string // text of every shape with a text body, in order
}

// Load opens the archive at path and builds a full snapshot: slide order,
// titles, visibility, shape texts, and notes text per slide. The file's
// size and mtime are captured before parsing so the cache fingerprint
// matches what was read.
func Load(path string) (*Deck, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	c, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	d := &Deck{
		Path:    path,
		Size:    st.Size(),
		ModTime: st.ModTime(),
		Slides:  make([]SlideInfo, 0, c.SlideCount()),
	}
	d.SlideWidth, d.SlideHeight = c.SlideSize()

	for i, ref := range c.slides {
		info := SlideInfo{
			Number:    i + 1,
			PartName:  ref.part,
			NotesPart: ref.notesPart,
		}

		data, err := c.ReadPart(ref.part)
		if err != nil {
			return nil, err
		}
		// Visibility is recorded either on the slide root or on the sldId
		// entry of the presentation part.
		info.Hidden = Hidden(data) || ref.hidden

		shapes, err := notespatch.Shapes(data)
		if err != nil {
			return nil, &PartError{Part: ref.part, Err: err}
		}
		for _, sh := range shapes {
			if !sh.HasText {
				continue
			}
			info.Texts = append(info.Texts, sh.Text())
			if info.Title == "" && (sh.PhType == "title" || sh.PhType == "ctrTitle") {
				info.Title = sh.Text()
			}
		}

		if ref.notesPart != "" {
			notesData, err := c.ReadPart(ref.notesPart)
			if err != nil {
				return nil, err
			}
			text, err := notespatch.ExtractText(notesData)
			if err != nil {
				return nil, &PartError{Part: ref.notesPart, Err: err}
			}
			info.HasNotes = true
			info.NotesText = text
		}

		d.Slides = append(d.Slides, info)
	}
	return d, nil
}

// Slide returns the snapshot of the n-th slide (1-based).
func (d *Deck) Slide(n int) (SlideInfo, bool) {
	if n < 1 || n > len(d.Slides) {
		return SlideInfo{}, false
	}
	return d.Slides[n-1], true
}

// VisibleCount returns how many slides are not hidden.
func (d *Deck) VisibleCount() int {
	n := 0
	for _, s := range d.Slides {
		if !s.Hidden {
			n++
		}
	}
	return n
}

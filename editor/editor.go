// Package editor is the safe-editing service for presentation speaker
// notes. Reads come from cached deck snapshots; writes go through a
// validate, compute, commit pipeline that patches notes parts byte-exactly
// and replaces the archive atomically. All file paths are validated
// against the service configuration before anything is opened.
package editor

import (
	"archive/zip"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/souffleur/deckcache"
	"github.com/hazyhaar/souffleur/pptx"
)

// Config bounds what the service accepts.
type Config struct {
	MaxFileSize       int64    // archive size ceiling in bytes
	MaxTextLen        int      // notes text ceiling in bytes per slide
	AllowedExtensions []string // lower-case, dot included
	WorkspaceRoots    []string // when set, paths must resolve under one of these
}

func defaultConfig() *Config {
	return &Config{}
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 1 << 30
	}
	if c.MaxTextLen <= 0 {
		c.MaxTextLen = 1 << 20
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = []string{".pptx", ".pptm"}
	}
}

// Service orchestrates notes reads and edits over one shared cache.
type Service struct {
	cache        *deckcache.Cache
	config       *Config
	logger       *slog.Logger
	now          func() time.Time
	startedAt    time.Time
	auditEnabled bool

	reads         atomic.Int64
	writes        atomic.Int64
	slidesUpdated atomic.Int64
	partsCreated  atomic.Int64
}

// ServiceOption customizes a Service beyond the required wiring.
type ServiceOption func(*Service)

// WithClock overrides the service clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithAuditEnabled marks the audit journal as active in health reports.
func WithAuditEnabled() ServiceOption {
	return func(s *Service) { s.auditEnabled = true }
}

// New creates the editing service. The cache is required; cfg and logger
// may be nil for defaults.
func New(cache *deckcache.Cache, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cache == nil {
		return nil, errors.New("editor: cache is required")
	}
	if cfg == nil {
		cfg = defaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s, nil
}

// deck returns the snapshot for an already-validated absolute path,
// loading through the cache on miss.
func (s *Service) deck(abs string) (*pptx.Deck, error) {
	if d, ok := s.cache.Get(abs); ok {
		return d, nil
	}
	d, err := pptx.Load(abs)
	if err != nil {
		return nil, mapLoadError(abs, err)
	}
	s.cache.Put(d)
	return d, nil
}

// mapLoadError folds the container package's failures into the editor
// taxonomy. Structure errors pass through: Kind sends them to not_found.
func mapLoadError(path string, err error) error {
	var pe *pptx.PartError
	switch {
	case errors.As(err, &pe):
		return &ErrCorruptPart{Part: pe.Part, Cause: pe.Err}
	case errors.Is(err, zip.ErrFormat):
		return &ErrCorruptPart{Part: filepath.Base(path), Cause: err}
	case errors.Is(err, pptx.ErrDeckStructure):
		return err
	case errors.Is(err, os.ErrNotExist):
		return validationf("file not found: %s", path)
	}
	return &ErrFileOp{Op: "open", Path: path, Cause: err}
}

// SlideNotes is one slide's notes text.
type SlideNotes struct {
	Slide int    `json:"slide_number"`
	Text  string `json:"notes_text"`
}

// ReadNotes returns the notes text of one slide and the deck's slide
// count. A slide without a notes part reads as empty text.
func (s *Service) ReadNotes(ctx context.Context, path string, slide int) (*SlideNotes, int, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, 0, err
	}
	d, err := s.deck(abs)
	if err != nil {
		return nil, 0, err
	}
	total := len(d.Slides)
	if err := checkSlides([]int{slide}, total); err != nil {
		return nil, 0, err
	}
	s.reads.Add(1)
	return &SlideNotes{Slide: slide, Text: d.Slides[slide-1].NotesText}, total, nil
}

// ReadNotesBatch returns notes for an explicit slide list, a "start-end"
// range, or the whole deck when neither is given. Passing both selectors
// is a validation error.
func (s *Service) ReadNotesBatch(ctx context.Context, path string, numbers []int, slideRange string) ([]SlideNotes, int, error) {
	if len(numbers) > 0 && slideRange != "" {
		return nil, 0, validationf("slide_numbers and slide_range are mutually exclusive")
	}

	abs, err := s.validatePath(path)
	if err != nil {
		return nil, 0, err
	}
	d, err := s.deck(abs)
	if err != nil {
		return nil, 0, err
	}
	total := len(d.Slides)

	if slideRange != "" {
		if numbers, err = parseSlideRange(slideRange); err != nil {
			return nil, 0, err
		}
	}
	if len(numbers) == 0 {
		numbers = make([]int, total)
		for i := range numbers {
			numbers[i] = i + 1
		}
	}
	if err := checkSlides(numbers, total); err != nil {
		return nil, 0, err
	}

	notes := make([]SlideNotes, 0, len(numbers))
	for _, n := range numbers {
		notes = append(notes, SlideNotes{Slide: n, Text: d.Slides[n-1].NotesText})
	}
	s.reads.Add(1)
	return notes, total, nil
}

// Info summarizes a presentation.
type Info struct {
	FileName      string `json:"file_name"`
	SlideCount    int    `json:"slide_count"`
	VisibleSlides int    `json:"visible_slides"`
	HiddenSlides  int    `json:"hidden_slides"`
	SlideWidth    int64  `json:"slide_width_emu"`
	SlideHeight   int64  `json:"slide_height_emu"`
}

// Info returns deck-level metadata.
func (s *Service) Info(ctx context.Context, path string) (*Info, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	d, err := s.deck(abs)
	if err != nil {
		return nil, err
	}
	visible := d.VisibleCount()
	s.reads.Add(1)
	return &Info{
		FileName:      filepath.Base(abs),
		SlideCount:    len(d.Slides),
		VisibleSlides: visible,
		HiddenSlides:  len(d.Slides) - visible,
		SlideWidth:    d.SlideWidth,
		SlideHeight:   d.SlideHeight,
	}, nil
}

// SlideText is all visible text of one slide.
type SlideText struct {
	Slide int      `json:"slide_number"`
	Title string   `json:"title,omitempty"`
	Texts []string `json:"texts"`
}

// SlideText returns the text of every shape on a slide, title included.
func (s *Service) SlideText(ctx context.Context, path string, slide int) (*SlideText, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	d, err := s.deck(abs)
	if err != nil {
		return nil, err
	}
	if err := checkSlides([]int{slide}, len(d.Slides)); err != nil {
		return nil, err
	}
	info := d.Slides[slide-1]
	s.reads.Add(1)
	return &SlideText{Slide: slide, Title: info.Title, Texts: info.Texts}, nil
}

// SlideMeta is the per-slide metadata row.
type SlideMeta struct {
	Slide    int    `json:"slide_number"`
	Title    string `json:"title,omitempty"`
	Hidden   bool   `json:"hidden"`
	HasNotes bool   `json:"has_notes"`
}

// SlidesMetadata lists slide metadata in presentation order. Hidden
// slides are skipped unless includeHidden is set.
func (s *Service) SlidesMetadata(ctx context.Context, path string, includeHidden bool) ([]SlideMeta, error) {
	abs, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}
	d, err := s.deck(abs)
	if err != nil {
		return nil, err
	}
	metas := make([]SlideMeta, 0, len(d.Slides))
	for _, info := range d.Slides {
		if info.Hidden && !includeHidden {
			continue
		}
		metas = append(metas, SlideMeta{
			Slide:    info.Number,
			Title:    info.Title,
			Hidden:   info.Hidden,
			HasNotes: info.HasNotes,
		})
	}
	s.reads.Add(1)
	return metas, nil
}

// OpStats are cumulative operation counters.
type OpStats struct {
	Reads         int64 `json:"reads"`
	Writes        int64 `json:"writes"`
	SlidesUpdated int64 `json:"slides_updated"`
	PartsCreated  int64 `json:"parts_created"`
}

// Stats returns a snapshot of the operation counters.
func (s *Service) Stats() OpStats {
	return OpStats{
		Reads:         s.reads.Load(),
		Writes:        s.writes.Load(),
		SlidesUpdated: s.slidesUpdated.Load(),
		PartsCreated:  s.partsCreated.Load(),
	}
}

// Health is the health_check payload.
type Health struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Cache         deckcache.Stats `json:"cache"`
	Ops           OpStats         `json:"operations"`
	AuditEnabled  bool            `json:"audit_enabled"`
}

// Health reports service liveness and counters.
func (s *Service) Health() *Health {
	return &Health{
		Status:        "healthy",
		UptimeSeconds: int64(s.now().Sub(s.startedAt).Seconds()),
		Cache:         s.cache.Stats(),
		Ops:           s.Stats(),
		AuditEnabled:  s.auditEnabled,
	}
}

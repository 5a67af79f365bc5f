package editor

import (
	"errors"
	"fmt"

	"github.com/hazyhaar/souffleur/pptx"
)

// Wire error kinds reported by the tool layer. Every error leaving the
// service maps to exactly one of these via Kind.
const (
	KindValidation  = "validation"
	KindNotFound    = "not_found"
	KindCorruptPart = "corrupt_part"
	KindFileError   = "file_error"
	KindRateLimited = "rate_limited"
	KindInternal    = "internal"
)

// ErrValidation is returned when a request is rejected before any file
// content is touched: bad paths, bad extensions, oversized files, empty or
// duplicated batches, malformed ranges.
type ErrValidation struct {
	Msg   string
	Slide int // 0 when the rejection is not scoped to one slide
}

func (e *ErrValidation) Error() string {
	return "editor: " + e.Msg
}

// ErrSlideNotFound is returned when a slide number lies beyond the deck.
type ErrSlideNotFound struct {
	Slide int
	Total int
}

func (e *ErrSlideNotFound) Error() string {
	return fmt.Sprintf("editor: slide %d not found (presentation has %d slides)", e.Slide, e.Total)
}

// ErrCorruptPart is returned when a part the operation must touch cannot
// be parsed, or when the archive itself is not a readable zip.
type ErrCorruptPart struct {
	Part  string
	Slide int // 0 when not attributable to one slide
	Cause error
}

func (e *ErrCorruptPart) Error() string {
	return fmt.Sprintf("editor: corrupt part %s: %v", e.Part, e.Cause)
}

func (e *ErrCorruptPart) Unwrap() error { return e.Cause }

// ErrFileOp is returned when the filesystem fails underneath an operation:
// reads, temp-file writes, the final rename.
type ErrFileOp struct {
	Op    string // "open", "read", "write", "commit"
	Path  string
	Cause error
}

func (e *ErrFileOp) Error() string {
	return fmt.Sprintf("editor: %s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *ErrFileOp) Unwrap() error { return e.Cause }

// Kind classifies any error into a wire kind. Unrecognized errors are
// internal: the caller sees a stable vocabulary no matter what leaked.
func Kind(err error) string {
	var (
		ev *ErrValidation
		en *ErrSlideNotFound
		ec *ErrCorruptPart
		ef *ErrFileOp
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ev):
		return KindValidation
	case errors.As(err, &en):
		return KindNotFound
	case errors.As(err, &ec):
		return KindCorruptPart
	case errors.As(err, &ef):
		return KindFileError
	case errors.Is(err, pptx.ErrNoSlide):
		return KindNotFound
	case errors.Is(err, pptx.ErrDeckStructure):
		// Presentation metadata that cannot be walked means the requested
		// slides cannot be located.
		return KindNotFound
	}
	return KindInternal
}

// SlideOf returns the slide number an error is scoped to, or 0.
func SlideOf(err error) int {
	var (
		ev *ErrValidation
		en *ErrSlideNotFound
		ec *ErrCorruptPart
	)
	switch {
	case errors.As(err, &en):
		return en.Slide
	case errors.As(err, &ec):
		return ec.Slide
	case errors.As(err, &ev):
		return ev.Slide
	}
	return 0
}

func validationf(format string, args ...any) error {
	return &ErrValidation{Msg: fmt.Sprintf(format, args...)}
}

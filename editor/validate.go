package editor

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const maxPathLen = 4096

// validatePath vets a deck path before any content is read: shape,
// traversal, extension, existence, regular file, size ceiling, workspace
// boundary. Returns the absolute path every later step uses.
func (s *Service) validatePath(path string) (string, error) {
	abs, err := s.validatePathShape(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", validationf("file not found: %s", path)
		}
		return "", &ErrFileOp{Op: "stat", Path: abs, Cause: err}
	}
	if st.IsDir() {
		return "", validationf("not a file: %s", path)
	}
	if st.Size() > s.config.MaxFileSize {
		return "", validationf("file too large: %d bytes (limit %d)", st.Size(), s.config.MaxFileSize)
	}
	return abs, nil
}

// validateOutputPath vets a write destination. The file may not exist yet,
// but its directory must, and the same extension and boundary rules apply.
func (s *Service) validateOutputPath(path string) (string, error) {
	abs, err := s.validatePathShape(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(abs)
	st, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", validationf("output directory does not exist: %s", dir)
		}
		return "", &ErrFileOp{Op: "stat", Path: dir, Cause: err}
	}
	if !st.IsDir() {
		return "", validationf("output directory is not a directory: %s", dir)
	}
	if target, err := os.Stat(abs); err == nil && target.IsDir() {
		return "", validationf("output path is a directory: %s", path)
	}
	return abs, nil
}

// validatePathShape runs the checks common to inputs and outputs.
func (s *Service) validatePathShape(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", validationf("path is empty")
	}
	if len(path) > maxPathLen {
		return "", validationf("path too long: %d chars (limit %d)", len(path), maxPathLen)
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", validationf("path traversal rejected: %s", path)
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", validationf("invalid path %q: %v", path, err)
	}
	ext := strings.ToLower(filepath.Ext(abs))
	if !s.allowedExt(ext) {
		return "", validationf("unsupported file extension %q (allowed: %s)",
			ext, strings.Join(s.config.AllowedExtensions, ", "))
	}
	if err := s.checkWorkspace(abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (s *Service) allowedExt(ext string) bool {
	for _, allowed := range s.config.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// checkWorkspace enforces the configured roots. No roots means no
// restriction.
func (s *Service) checkWorkspace(abs string) error {
	if len(s.config.WorkspaceRoots) == 0 {
		return nil
	}
	for _, root := range s.config.WorkspaceRoots {
		r, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(r, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return nil
		}
	}
	return validationf("path outside configured workspace: %s", abs)
}

// validateUpdates checks batch shape without touching the deck: non-empty,
// positive slide numbers, no duplicates, text under the ceiling. Whether
// the slides exist is the deck's business, checked after load.
func (s *Service) validateUpdates(updates []Update) error {
	if len(updates) == 0 {
		return validationf("no updates given")
	}
	seen := make(map[int]bool, len(updates))
	for i, u := range updates {
		if u.Slide < 1 {
			return &ErrValidation{
				Msg:   "slide numbers start at 1, update " + strconv.Itoa(i) + " has " + strconv.Itoa(u.Slide),
				Slide: u.Slide,
			}
		}
		if seen[u.Slide] {
			return &ErrValidation{
				Msg:   "duplicate update for slide " + strconv.Itoa(u.Slide),
				Slide: u.Slide,
			}
		}
		seen[u.Slide] = true
		if len(u.Text) > s.config.MaxTextLen {
			return &ErrValidation{
				Msg:   "notes text for slide " + strconv.Itoa(u.Slide) + " too large: " + strconv.Itoa(len(u.Text)) + " bytes (limit " + strconv.Itoa(s.config.MaxTextLen) + ")",
				Slide: u.Slide,
			}
		}
	}
	return nil
}

// parseSlideRange parses an inclusive "start-end" range.
func parseSlideRange(s string) ([]int, error) {
	first, second, ok := strings.Cut(s, "-")
	if !ok {
		return nil, validationf("invalid slide range %q: expected \"start-end\"", s)
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(first))
	end, err2 := strconv.Atoi(strings.TrimSpace(second))
	if err1 != nil || err2 != nil {
		return nil, validationf("invalid slide range %q: both bounds must be integers", s)
	}
	if start < 1 {
		return nil, validationf("invalid slide range %q: start must be >= 1", s)
	}
	if end < start {
		return nil, validationf("invalid slide range %q: end before start", s)
	}
	nums := make([]int, 0, end-start+1)
	for n := start; n <= end; n++ {
		nums = append(nums, n)
	}
	return nums, nil
}

// checkSlides verifies each requested slide exists in a deck of total
// slides. Numbers below 1 are a validation error, numbers beyond the deck
// are not found.
func checkSlides(nums []int, total int) error {
	for _, n := range nums {
		if n < 1 {
			return &ErrValidation{Msg: "slide numbers start at 1, got " + strconv.Itoa(n), Slide: n}
		}
		if n > total {
			return &ErrSlideNotFound{Slide: n, Total: total}
		}
	}
	return nil
}

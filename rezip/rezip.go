// Package rezip rewrites zip archives with part-level substitutions.
//
// A rewrite streams the source archive into a temporary file in the
// destination directory: untouched entries are raw-copied without
// recompression, substituted entries keep their original header but carry
// the new bytes, and entries absent from the source are appended. The
// temporary file replaces the destination with a single rename, so readers
// only ever see the old archive or the complete new one.
package rezip

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Action says what a rewrite does with one archive entry.
type Action int

const (
	Kept Action = iota
	Replaced
	Added
)

func (a Action) String() string {
	switch a {
	case Kept:
		return "kept"
	case Replaced:
		return "replaced"
	case Added:
		return "added"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Entry is the planned disposition of one archive entry.
type Entry struct {
	Name   string
	Action Action
}

// Plan reports what Rewrite would do with each entry: source entries in
// archive order, then added entries in sorted order. Nothing is written.
func Plan(src string, subs map[string][]byte) ([]Entry, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("rezip: open %s: %w", src, err)
	}
	defer zr.Close()

	entries := make([]Entry, 0, len(zr.File)+len(subs))
	seen := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		seen[f.Name] = true
		act := Kept
		if _, ok := subs[f.Name]; ok {
			act = Replaced
		}
		entries = append(entries, Entry{Name: f.Name, Action: act})
	}
	for _, name := range addedNames(subs, seen) {
		entries = append(entries, Entry{Name: name, Action: Added})
	}
	return entries, nil
}

// Rewrite copies the archive at src to dst applying subs, which maps
// archive entry names to replacement bytes. Entries named in subs but not
// present in src are appended. src and dst may be the same path: the
// temporary file is renamed over dst only after it is fully written and
// synced, and it is removed on any failure.
func Rewrite(src, dst string, subs map[string][]byte) (err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("rezip: open %s: %w", src, err)
	}
	defer zr.Close()

	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("rezip: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	zw := zip.NewWriter(tmp)
	seen := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		seen[f.Name] = true
		data, ok := subs[f.Name]
		if !ok {
			// Raw copy, no decompress/recompress round trip.
			if err := zw.Copy(f); err != nil {
				return fmt.Errorf("rezip: copy entry %s: %w", f.Name, err)
			}
			continue
		}
		hdr := &zip.FileHeader{
			Name:          f.Name,
			Method:        f.Method,
			Modified:      f.Modified,
			Comment:       f.Comment,
			Extra:         f.Extra,
			ExternalAttrs: f.ExternalAttrs,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("rezip: replace entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("rezip: replace entry %s: %w", f.Name, err)
		}
	}

	for _, name := range addedNames(subs, seen) {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("rezip: add entry %s: %w", name, err)
		}
		if _, err := w.Write(subs[name]); err != nil {
			return fmt.Errorf("rezip: add entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("rezip: finish archive: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("rezip: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rezip: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rezip: rename into place: %w", err)
	}
	return nil
}

// addedNames returns the sub names absent from the source, sorted so
// appended entries land in a stable order.
func addedNames(subs map[string][]byte, seen map[string]bool) []string {
	var names []string
	for name := range subs {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

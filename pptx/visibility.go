package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// SetHidden rewrites the show attribute on a slide part's root element:
// hidden slides carry show="0", visible slides carry no show attribute.
// Only the root start tag is touched; every other byte of the part is
// preserved.
func SetHidden(data []byte, hidden bool) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var prev int64
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: slide part has no root element", ErrDeckStructure)
		}
		if err != nil {
			return nil, &PartError{Part: "slide", Err: err}
		}
		off := dec.InputOffset()
		start, ok := tok.(xml.StartElement)
		if !ok {
			prev = off
			continue
		}

		var b strings.Builder
		b.WriteString("<" + rawName(start.Name))
		for _, a := range start.Attr {
			if rawName(a.Name) == "show" {
				continue
			}
			b.WriteString(" " + rawName(a.Name) + `="` + escapeAttr(a.Value) + `"`)
		}
		if hidden {
			b.WriteString(` show="0"`)
		}
		b.WriteString(">")

		out := make([]byte, 0, len(data)+16)
		out = append(out, data[:prev]...)
		out = append(out, b.String()...)
		out = append(out, data[off:]...)
		return out, nil
	}
}

// SetSlideIDHidden rewrites the show attribute on the n-th sldId entry
// (1-based) of a presentation part. PowerPoint records slide visibility
// both here and on the slide part's root element, so writers touch the
// two locations together.
func SetSlideIDHidden(data []byte, n int, hidden bool) ([]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: no sldId entry %d", ErrDeckStructure, n)
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var prev int64
	seen := 0
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: no sldId entry %d", ErrDeckStructure, n)
		}
		if err != nil {
			return nil, &PartError{Part: PresentationPart, Err: err}
		}
		off := dec.InputOffset()
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sldId" {
			prev = off
			continue
		}
		if seen++; seen < n {
			prev = off
			continue
		}

		var b strings.Builder
		b.WriteString("<" + rawName(start.Name))
		for _, a := range start.Attr {
			if rawName(a.Name) == "show" {
				continue
			}
			b.WriteString(" " + rawName(a.Name) + `="` + escapeAttr(a.Value) + `"`)
		}
		if hidden {
			b.WriteString(` show="0"`)
		}
		if bytes.HasSuffix(data[prev:off], []byte("/>")) {
			b.WriteString("/>")
		} else {
			b.WriteString(">")
		}

		out := make([]byte, 0, len(data)+16)
		out = append(out, data[:prev]...)
		out = append(out, b.String()...)
		out = append(out, data[off:]...)
		return out, nil
	}
}

// Hidden reports whether a slide part's root element carries show="0".
// The sldId entry in the presentation part can record visibility too;
// deck loading checks both.
func Hidden(data []byte) bool {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.RawToken()
		if err != nil {
			return false
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, a := range start.Attr {
			if rawName(a.Name) == "show" {
				return strings.TrimSpace(a.Value) == "0"
			}
		}
		return false
	}
}

// rawName rebuilds the literal name of a RawToken name, whose prefix is
// left in Space untranslated.
func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Package notespatch rewrites the text of speaker-notes parts inside
// PresentationML archives without disturbing the surrounding XML.
//
// A notes part keeps its bytes exactly as stored except for the paragraph
// region of the body placeholder's text body, which SetText replaces with a
// single paragraph holding a single run. Formatting carried by the old
// paragraphs is dropped; everything else in the part (shape geometry,
// placeholder wiring, color overrides) survives byte for byte.
//
// Usage:
//
//	patched, err := notespatch.SetText(partXML, "new speaker notes")
//	text, err := notespatch.ExtractText(partXML)
package notespatch

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nsDrawingML      = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPresentationML = "http://schemas.openxmlformats.org/presentationml/2006/main"
)

// ErrNoTextBody is returned when a part contains no shape with a usable
// text body, so there is nowhere to write the text.
var ErrNoTextBody = errors.New("notespatch: no text body in part")

// Shape describes one sp element of a part's shape tree.
type Shape struct {
	PhType     string   // placeholder type attribute, "" when not a placeholder
	HasText    bool     // the shape carries a non-empty txBody element
	Paragraphs []string // paragraph texts in document order, breaks as "\n"

	paraStart, paraEnd int64 // byte span of the txBody paragraph region
}

// Text returns the shape's paragraphs joined with newlines.
func (s *Shape) Text() string {
	return strings.Join(s.Paragraphs, "\n")
}

// part is the parsed view of a slide or notes part.
type part struct {
	shapes  []*Shape
	aPrefix string // prefix bound to the drawingml namespace at the root
	aBound  bool
}

// SetText replaces the text of the body placeholder of a notes part and
// returns the rewritten part. The new text becomes exactly one paragraph
// with one run; newlines stay inside the run. Text is normalized first:
// CRLF and CR become LF and XML-illegal control characters are dropped.
// An empty string yields an empty run.
//
// The part must be well-formed XML with at least one shape holding a text
// body; otherwise ErrNoTextBody or a parse error is returned.
func SetText(data []byte, text string) ([]byte, error) {
	p, err := parsePart(data)
	if err != nil {
		return nil, err
	}
	sh := p.target()
	if sh == nil {
		return nil, ErrNoTextBody
	}

	frag := p.paragraphXML(Sanitize(text))
	out := make([]byte, 0, len(data)-int(sh.paraEnd-sh.paraStart)+len(frag))
	out = append(out, data[:sh.paraStart]...)
	out = append(out, frag...)
	out = append(out, data[sh.paraEnd:]...)
	return out, nil
}

// ExtractText returns the text of the body placeholder of a notes part:
// paragraphs joined with "\n", line breaks read as "\n". A part without a
// text body reads as "".
func ExtractText(data []byte) (string, error) {
	p, err := parsePart(data)
	if err != nil {
		return "", err
	}
	sh := p.target()
	if sh == nil {
		return "", nil
	}
	return sh.Text(), nil
}

// Shapes parses a slide or notes part and returns its shapes in document
// order. Used by read paths that need titles or full slide text.
func Shapes(data []byte) ([]Shape, error) {
	p, err := parsePart(data)
	if err != nil {
		return nil, err
	}
	out := make([]Shape, len(p.shapes))
	for i, s := range p.shapes {
		out[i] = *s
	}
	return out, nil
}

// Sanitize normalizes text for storage in a text run: CRLF and lone CR
// become LF, and control characters that are illegal in XML 1.0 are
// removed (tab and newline stay).
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !strings.ContainsFunc(text, isIllegalControl) {
		return text
	}
	return strings.Map(func(r rune) rune {
		if isIllegalControl(r) {
			return -1
		}
		return r
	}, text)
}

func isIllegalControl(r rune) bool {
	return r < 0x20 && r != '\t' && r != '\n'
}

// target picks the shape to read from or write to: the body placeholder
// when it has a text body, otherwise the first shape that has one.
func (p *part) target() *Shape {
	for _, s := range p.shapes {
		if s.PhType == "body" && s.HasText {
			return s
		}
	}
	for _, s := range p.shapes {
		if s.HasText {
			return s
		}
	}
	return nil
}

// paragraphXML builds the replacement paragraph fragment using the part's
// drawingml prefix. When the part never binds the namespace, the fragment
// declares its own.
func (p *part) paragraphXML(text string) string {
	pre, decl := p.aPrefix, ""
	if !p.aBound {
		pre = "a"
		decl = ` xmlns:a="` + nsDrawingML + `"`
	}
	var b strings.Builder
	b.WriteString("<" + name(pre, "p") + decl + ">")
	b.WriteString("<" + name(pre, "r") + ">")
	b.WriteString("<" + name(pre, "t") + ` xml:space="preserve">`)
	textEscaper.WriteString(&b, text)
	b.WriteString("</" + name(pre, "t") + ">")
	b.WriteString("</" + name(pre, "r") + ">")
	b.WriteString("</" + name(pre, "p") + ">")
	return b.String()
}

func name(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// parsePart walks the part once, collecting shapes, their placeholder
// types, paragraph texts, and the byte span of each text body's paragraph
// region. Offsets come from Decoder.InputOffset, so everything outside a
// replaced span can be carried over verbatim.
func parsePart(data []byte) (*part, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	p := &part{}

	var (
		sawRoot      bool
		depth        int
		cur          *Shape
		shDepth      int
		inBody       bool
		bodyDepth    int
		contentStart int64
		preambleEnd  int64
		inPara       bool
		inText       bool
		paraBuf      strings.Builder
		prev         int64
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("notespatch: parse: %w", err)
		}
		off := dec.InputOffset()

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if !sawRoot {
				sawRoot = true
				for _, a := range t.Attr {
					if a.Value == nsDrawingML {
						if a.Name.Space == "xmlns" {
							p.aPrefix, p.aBound = a.Name.Local, true
						} else if a.Name.Space == "" && a.Name.Local == "xmlns" {
							p.aPrefix, p.aBound = "", true
						}
					}
				}
			}
			switch {
			case t.Name.Local == "sp" && t.Name.Space == nsPresentationML && cur == nil:
				cur = &Shape{}
				shDepth = depth
			case t.Name.Local == "ph" && cur != nil && !inBody && cur.PhType == "":
				for _, a := range t.Attr {
					if a.Name.Local == "type" {
						cur.PhType = a.Value
					}
				}
			case t.Name.Local == "txBody" && t.Name.Space == nsPresentationML && cur != nil && !inBody:
				inBody = true
				bodyDepth = depth
				contentStart = off
				preambleEnd = -1
				cur.HasText = true
			case inBody && t.Name.Space == nsDrawingML && t.Name.Local == "p" && depth == bodyDepth+1:
				inPara = true
				paraBuf.Reset()
			case inPara && t.Name.Space == nsDrawingML && t.Name.Local == "t":
				inText = true
			case inPara && t.Name.Space == nsDrawingML && t.Name.Local == "br":
				paraBuf.WriteByte('\n')
			}

		case xml.EndElement:
			switch {
			case inText && t.Name.Local == "t" && t.Name.Space == nsDrawingML:
				inText = false
			case inPara && t.Name.Local == "p" && t.Name.Space == nsDrawingML && depth == bodyDepth+1:
				inPara = false
				cur.Paragraphs = append(cur.Paragraphs, paraBuf.String())
			case inBody && depth == bodyDepth+1 &&
				(t.Name.Local == "bodyPr" || t.Name.Local == "lstStyle"):
				preambleEnd = off
			case inBody && t.Name.Local == "txBody" && depth == bodyDepth:
				if off == prev {
					// Self-closing txBody: nothing can be spliced inside it.
					cur.HasText = false
				} else {
					start := contentStart
					if preambleEnd >= 0 {
						start = preambleEnd
					}
					cur.paraStart, cur.paraEnd = start, prev
				}
				inBody = false
			case cur != nil && t.Name.Local == "sp" && depth == shDepth:
				p.shapes = append(p.shapes, cur)
				cur = nil
			}
			depth--

		case xml.CharData:
			if inText {
				paraBuf.Write(t)
			}
		}
		prev = off
	}

	if !sawRoot {
		return nil, fmt.Errorf("notespatch: parse: empty document")
	}
	return p, nil
}

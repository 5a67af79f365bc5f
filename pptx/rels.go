package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Relationship types and content types used when wiring notes parts.
const (
	RelTypeSlide       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	RelTypeNotesSlide  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	RelTypeNotesMaster = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesMaster"

	ContentTypeNotesSlide = "application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"

	nsRelationships = "http://schemas.openxmlformats.org/package/2006/relationships"
)

// Relationships is a parsed .rels part.
type Relationships struct {
	XMLName xml.Name       `xml:"Relationships"`
	Rels    []Relationship `xml:"Relationship"`
}

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

// ParseRelationships decodes a .rels part.
func ParseRelationships(data []byte) (*Relationships, error) {
	var r Relationships
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AddRelationship splices a new relationship into an existing .rels part,
// assigning the next free rId. Everything already in the part is kept byte
// for byte.
func AddRelationship(data []byte, relType, target string) (out []byte, id string, err error) {
	rels, err := ParseRelationships(data)
	if err != nil {
		return nil, "", fmt.Errorf("pptx: parse relationships: %w", err)
	}
	max := 0
	for _, r := range rels.Rels {
		if n, ok := relIDNum(r.ID); ok && n > max {
			max = n
		}
	}
	id = "rId" + strconv.Itoa(max+1)

	end := bytes.LastIndex(data, []byte("</Relationships>"))
	if end < 0 {
		return nil, "", fmt.Errorf("%w: relationships part has no closing tag", ErrDeckStructure)
	}
	entry := relationshipXML(Relationship{ID: id, Type: relType, Target: target})
	out = make([]byte, 0, len(data)+len(entry))
	out = append(out, data[:end]...)
	out = append(out, entry...)
	out = append(out, data[end:]...)
	return out, id, nil
}

// NewRelationships builds a complete .rels part from scratch.
func NewRelationships(rels ...Relationship) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n")
	b.WriteString(`<Relationships xmlns="` + nsRelationships + `">`)
	for _, r := range rels {
		b.WriteString(relationshipXML(r))
	}
	b.WriteString(`</Relationships>`)
	return []byte(b.String())
}

func relationshipXML(r Relationship) string {
	return `<Relationship Id="` + escapeAttr(r.ID) +
		`" Type="` + escapeAttr(r.Type) +
		`" Target="` + escapeAttr(r.Target) + `"/>`
}

// relIDNum extracts N from "rIdN".
func relIDNum(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "rId")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", `"`, "&quot;")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

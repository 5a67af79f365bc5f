package pptx

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

type contentTypesXML struct {
	XMLName   xml.Name `xml:"Types"`
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// EnsureOverride returns a [Content_Types].xml with an Override mapping the
// part to the content type. When the override is already present the input
// comes back unchanged; otherwise the new entry is spliced in before the
// closing tag, leaving all existing bytes intact. Part names here carry the
// leading slash the content-types index uses ("/ppt/notesSlides/...").
func EnsureOverride(data []byte, partName, contentType string) ([]byte, error) {
	var ct contentTypesXML
	if err := xml.Unmarshal(data, &ct); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrDeckStructure, ContentTypesPart, err)
	}
	for _, o := range ct.Overrides {
		if o.PartName == partName {
			return data, nil
		}
	}

	end := bytes.LastIndex(data, []byte("</Types>"))
	if end < 0 {
		return nil, fmt.Errorf("%w: %s has no closing tag", ErrDeckStructure, ContentTypesPart)
	}
	entry := `<Override PartName="` + escapeAttr(partName) +
		`" ContentType="` + escapeAttr(contentType) + `"/>`
	out := make([]byte, 0, len(data)+len(entry))
	out = append(out, data[:end]...)
	out = append(out, entry...)
	out = append(out, data[end:]...)
	return out, nil
}

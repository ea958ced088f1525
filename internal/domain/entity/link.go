package entity

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
)

// Link points at an entity by URI.
type Link struct {
	XMLName xml.Name
	URI     string `xml:"uri,attr"`
	LimsID  string `xml:"limsid,attr,omitempty"`
	Name    string `xml:"name,attr,omitempty"`
}

// NewLink creates a link to an entity of kind k.
func NewLink(k kind.Kind, uri, limsID string) Link {
	return Link{XMLName: xml.Name{Local: k.LinkElement()}, URI: uri, LimsID: limsID}
}

// ID returns the LIMS id if set, otherwise the last URI path segment.
func (l Link) ID() (string, error) {
	if l.LimsID != "" {
		return l.LimsID, nil
	}
	return IDFromURI(l.URI)
}

// PageLink is the next-page/previous-page pointer of a paged list.
type PageLink struct {
	URI string `xml:"uri,attr"`
}

// Batch is a list document: the links returned by a list or search call.
type Batch struct {
	XMLName      xml.Name
	NextPage     *PageLink `xml:"next-page,omitempty"`
	PreviousPage *PageLink `xml:"previous-page,omitempty"`
	Links        []Link    `xml:",any"`
}

// NewBatch builds the list document for kind k holding links.
func NewBatch(k kind.Kind, links []Link) Batch {
	out := make([]Link, len(links))
	for i, l := range links {
		l.XMLName = xml.Name{Local: k.LinkElement()}
		out[i] = l
	}
	return Batch{XMLName: xml.Name{Local: k.Path()}, Links: out}
}

// EncodeBatch renders a list document.
func EncodeBatch(k kind.Kind, links []Link) ([]byte, error) {
	b := NewBatch(k, links)
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "    ")
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("encode %s: %w", k.Batch(), err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// DecodeBatch parses a list document.
func DecodeBatch(data []byte) (Batch, error) {
	var b Batch
	if err := xml.Unmarshal(data, &b); err != nil {
		return Batch{}, fmt.Errorf("decode list: %w", err)
	}
	return b, nil
}

package search

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
)

// FilePattern names search files; the placeholder is the hexadecimal hash
// of the search terms.
const FilePattern = "search_%x.xml"

// Search holds the parameters of a find call and the links it returned.
type Search struct {
	Terms   Terms
	Results []entity.Link
}

// New creates a search record.
func New(terms Terms, results []entity.Link) *Search {
	return &Search{Terms: terms, Results: results}
}

// FileName returns the name of the file holding this search.
func (s *Search) FileName() string { return FileName(s.Terms) }

// FileName returns the name of the file holding a search with terms t.
// Record and playback must both name files through here.
func FileName(t Terms) string { return fmt.Sprintf(FilePattern, t.Hash()) }

// Merge adds to s every result of previous that s does not already hold
// (by URI). It reports whether s now holds links previous did not, i.e.
// whether the stored search needs rewriting. Merging with nil changes
// nothing. Both searches must have equal terms.
func (s *Search) Merge(previous *Search) bool {
	if previous == nil {
		return false
	}
	have := make(map[string]struct{}, len(s.Results))
	for _, l := range s.Results {
		have[l.URI] = struct{}{}
	}
	for _, l := range previous.Results {
		if _, ok := have[l.URI]; !ok {
			s.Results = append(s.Results, l)
			have[l.URI] = struct{}{}
		}
	}
	if len(s.Results) != len(previous.Results) {
		return true
	}
	before := make(map[string]struct{}, len(previous.Results))
	for _, l := range previous.Results {
		before[l.URI] = struct{}{}
	}
	for _, l := range s.Results {
		if _, ok := before[l.URI]; !ok {
			return true
		}
	}
	return false
}

func (s *Search) String() string {
	if s.Results == nil {
		return "Search[" + s.Terms.String() + "]"
	}
	return fmt.Sprintf("Search[%s,#results=%d]", s.Terms, len(s.Results))
}

type searchXML struct {
	XMLName xml.Name    `xml:"search"`
	Terms   termsXML    `xml:"terms"`
	Results []resultXML `xml:"results>link"`
}

type termsXML struct {
	Entity string    `xml:"entity,attr"`
	Terms  []termXML `xml:"term"`
}

type termXML struct {
	Param  string   `xml:"param"`
	Values []string `xml:"value"`
}

type resultXML struct {
	URI    string `xml:"uri,attr"`
	LimsID string `xml:"limsid,attr,omitempty"`
	Name   string `xml:"name,attr,omitempty"`
}

// Encode serialises a search. Non-ASCII characters are written as
// character references and the document ends with a newline.
func Encode(s *Search) ([]byte, error) {
	doc := searchXML{Terms: termsXML{Entity: s.Terms.Kind().Class()}}
	for _, t := range s.Terms.Terms() {
		doc.Terms.Terms = append(doc.Terms.Terms, termXML{Param: t.Param, Values: t.Values})
	}
	for _, l := range s.Results {
		doc.Results = append(doc.Results, resultXML{URI: l.URI, LimsID: l.LimsID, Name: l.Name})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(out) + 1)
	buf.WriteString(xml.Header)
	buf.Write(asciiSafe(out))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Decode parses a serialised search.
func Decode(data []byte) (*Search, error) {
	var doc searchXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode search: %w", err)
	}
	k, ok := kind.Lookup(doc.Terms.Entity)
	if !ok {
		return nil, fmt.Errorf("decode search: unknown entity %q", doc.Terms.Entity)
	}
	params := make(Params, len(doc.Terms.Terms))
	for _, t := range doc.Terms.Terms {
		params[t.Param] = append(params[t.Param], t.Values...)
	}
	results := make([]entity.Link, 0, len(doc.Results))
	for _, r := range doc.Results {
		l := entity.NewLink(k, r.URI, r.LimsID)
		l.Name = r.Name
		results = append(results, l)
	}
	return New(NewTerms(k, params), results), nil
}

func asciiSafe(b []byte) []byte {
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return b
	}
	out := make([]byte, 0, len(b)+16)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r < utf8.RuneSelf {
			out = append(out, b[0])
		} else {
			out = append(out, "&#x"...)
			out = strconv.AppendInt(out, int64(r), 16)
			out = append(out, ';')
		}
		b = b[size:]
	}
	return out
}

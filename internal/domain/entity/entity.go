package entity

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
)

// ErrUnidentified marks a well-formed document that carries neither uri nor
// limsid, such as the body of a create request.
var ErrUnidentified = errors.New("document has neither uri nor limsid")

// Entity is a single Clarity resource as returned by the server.
// The raw XML document is kept verbatim so that a recording replays
// exactly what the server sent.
type Entity struct {
	kind   kind.Kind
	uri    string
	limsID string
	name   string
	raw    []byte
}

// Parse reads the identifying attributes of a Clarity XML document.
// The root element carries uri and (for most kinds) limsid; the display
// name is either a name attribute or a <name> child.
func Parse(k kind.Kind, raw []byte) (Entity, error) {
	if k.IsZero() {
		return Entity{}, domain.ErrUnknownKind
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Entity{}, errors.New("empty entity document")
	}

	e := Entity{kind: k, raw: raw}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	var first, last string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Entity{}, fmt.Errorf("parse %s document: %w", k.Class(), err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "uri":
						e.uri = a.Value
					case "limsid":
						e.limsID = a.Value
					case "name":
						e.name = a.Value
					}
				}
				continue
			}
			if depth != 2 {
				continue
			}
			switch t.Name.Local {
			case "name", "first-name", "last-name":
				var text string
				if err := dec.DecodeElement(&text, &t); err != nil {
					return Entity{}, fmt.Errorf("parse %s name: %w", k.Class(), err)
				}
				depth--
				switch t.Name.Local {
				case "name":
					if e.name == "" {
						e.name = strings.TrimSpace(text)
					}
				case "first-name":
					first = strings.TrimSpace(text)
				case "last-name":
					last = strings.TrimSpace(text)
				}
			}
		case xml.EndElement:
			depth--
		}
	}

	if e.name == "" && (first != "" || last != "") {
		e.name = strings.TrimSpace(first + " " + last)
	}
	if e.uri == "" && e.limsID == "" {
		return Entity{}, fmt.Errorf("%s: %w", k.Class(), ErrUnidentified)
	}
	return e, nil
}

// Reconstruct creates an Entity without parsing (storage hydration).
func Reconstruct(k kind.Kind, uri, limsID, name string, raw []byte) Entity {
	return Entity{kind: k, uri: uri, limsID: limsID, name: name, raw: raw}
}

// Kind returns the entity kind.
func (e Entity) Kind() kind.Kind { return e.kind }

// URI returns the entity's URI.
func (e Entity) URI() string { return e.uri }

// LimsID returns the limsid attribute, which may be empty.
func (e Entity) LimsID() string { return e.limsID }

// Name returns the display name, if the document has one.
func (e Entity) Name() string { return e.name }

// Raw returns the XML document.
func (e Entity) Raw() []byte { return e.raw }

// ID returns the identifier used to name recordings: the LIMS id for kinds
// that have one, otherwise the last segment of the URI path.
func (e Entity) ID() (string, error) {
	if e.kind.HasLimsID() && e.limsID != "" {
		return e.limsID, nil
	}
	if e.uri == "" {
		if e.limsID != "" {
			return e.limsID, nil
		}
		return "", fmt.Errorf("%s has no uri: %w", e.kind.Class(), domain.ErrInvalidURI)
	}
	return IDFromURI(e.uri)
}

// Link returns a link pointing at this entity.
func (e Entity) Link() Link {
	return Link{
		XMLName: xml.Name{Local: e.kind.LinkElement()},
		URI:     e.uri,
		LimsID:  e.limsID,
	}
}

// IDFromURI returns the last non-empty path segment of uri. Query strings
// (e.g. artifact ?state=) and fragments are ignored.
func IDFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidURI, err)
	}
	path := strings.TrimRight(u.Path, "/")
	if path == "" {
		return "", fmt.Errorf("%w: %q has no path", domain.ErrInvalidURI, uri)
	}
	id := path[strings.LastIndex(path, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("%w: %q has no path", domain.ErrInvalidURI, uri)
	}
	return id, nil
}

package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
)

const researcherXML = `<?xml version="1.0" encoding="UTF-8"?>
<res:researcher xmlns:res="http://genologics.com/ri/researcher" uri="http://lims/api/v2/researchers/103">
    <first-name>Rich</first-name>
    <last-name>Bowers</last-name>
    <lab uri="http://lims/api/v2/labs/1"><name>nested</name></lab>
</res:researcher>`

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		kind     kind.Kind
		raw      string
		wantURI  string
		wantLims string
		wantName string
		wantID   string
	}{
		{
			name:     "sample",
			kind:     kind.Sample,
			raw:      `<smp:sample xmlns:smp="x" uri="http://lims/api/v2/samples/GAO1" limsid="GAO1"><name>S one</name></smp:sample>`,
			wantURI:  "http://lims/api/v2/samples/GAO1",
			wantLims: "GAO1",
			wantName: "S one",
			wantID:   "GAO1",
		},
		{
			name:     "researcher",
			kind:     kind.Researcher,
			raw:      researcherXML,
			wantURI:  "http://lims/api/v2/researchers/103",
			wantName: "Rich Bowers",
			wantID:   "103",
		},
		{
			name:     "artifact with state",
			kind:     kind.Artifact,
			raw:      `<art:artifact xmlns:art="x" uri="http://lims/api/v2/artifacts/2-1?state=55" limsid="2-1" name="A1"/>`,
			wantURI:  "http://lims/api/v2/artifacts/2-1?state=55",
			wantLims: "2-1",
			wantName: "A1",
			wantID:   "2-1",
		},
		{
			name:     "limsid ignored for uri-identified kind",
			kind:     kind.Lab,
			raw:      `<lab:lab xmlns:lab="x" uri="http://lims/api/v2/labs/7/" limsid="L7"><name>L</name></lab:lab>`,
			wantURI:  "http://lims/api/v2/labs/7/",
			wantLims: "L7",
			wantName: "L",
			wantID:   "7",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse(tt.kind, []byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if e.URI() != tt.wantURI || e.LimsID() != tt.wantLims || e.Name() != tt.wantName {
				t.Errorf("got uri=%q limsid=%q name=%q", e.URI(), e.LimsID(), e.Name())
			}
			id, err := e.ID()
			if err != nil || id != tt.wantID {
				t.Errorf("ID() = %q, %v; want %q", id, err, tt.wantID)
			}
			if string(e.Raw()) != tt.raw {
				t.Error("raw document must be kept verbatim")
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse(kind.Kind{}, []byte("<a uri='x'/>")); !errors.Is(err, domain.ErrUnknownKind) {
		t.Errorf("zero kind: %v", err)
	}
	if _, err := Parse(kind.Sample, []byte("  ")); err == nil {
		t.Error("expected error for empty document")
	}
	if _, err := Parse(kind.Sample, []byte("<sample><name>x</name></sample>")); err == nil {
		t.Error("expected error without uri or limsid")
	}
	if _, err := Parse(kind.Sample, []byte("<sample uri='x'>")); err == nil {
		t.Error("expected error for truncated document")
	}
}

func TestIDFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"http://lims/api/v2/samples/GAO1", "GAO1", false},
		{"http://lims/api/v2/containers/27-9/", "27-9", false},
		{"http://lims/api/v2/artifacts/2-1?state=1#x", "2-1", false},
		{"/processes/24-100", "24-100", false},
		{"http://lims", "", true},
		{"http://lims/", "", true},
		{"%zz", "", true},
	}
	for _, tt := range tests {
		got, err := IDFromURI(tt.uri)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrInvalidURI) {
				t.Errorf("IDFromURI(%q) err = %v, want ErrInvalidURI", tt.uri, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("IDFromURI(%q) = %q, %v; want %q", tt.uri, got, err, tt.want)
		}
	}
}

func TestEntityID_NoURI(t *testing.T) {
	e := Reconstruct(kind.Lab, "", "", "", nil)
	if _, err := e.ID(); !errors.Is(err, domain.ErrInvalidURI) {
		t.Errorf("expected ErrInvalidURI, got %v", err)
	}
	e = Reconstruct(kind.Lab, "", "L1", "", nil)
	if id, err := e.ID(); err != nil || id != "L1" {
		t.Errorf("ID() = %q, %v", id, err)
	}
}

func TestEncodeDecodeBatch(t *testing.T) {
	links := []Link{
		NewLink(kind.ContainerType, "http://lims/api/v2/containertypes/1", ""),
		NewLink(kind.ContainerType, "http://lims/api/v2/containertypes/2", ""),
	}
	data, err := EncodeBatch(kind.ContainerType, links)
	if err != nil {
		t.Fatalf("EncodeBatch: %v", err)
	}
	s := string(data)
	if !strings.HasPrefix(s, "<?xml") || !strings.HasSuffix(s, "\n") {
		t.Errorf("unexpected framing: %q", s)
	}
	if !strings.Contains(s, "<containertypes>") || !strings.Contains(s, `<container-type uri="http://lims/api/v2/containertypes/1"></container-type>`) {
		t.Errorf("unexpected document: %s", s)
	}

	b, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if diff := cmp.Diff(links, b.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeBatch_ServerPage(t *testing.T) {
	doc := `<smp:samples xmlns:smp="http://genologics.com/ri/sample">
  <sample uri="http://lims/api/v2/samples/A" limsid="A"/>
  <sample uri="http://lims/api/v2/samples/B" limsid="B"/>
  <next-page uri="http://lims/api/v2/samples?start-index=500"/>
</smp:samples>`
	b, err := DecodeBatch([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeBatch: %v", err)
	}
	if len(b.Links) != 2 || b.Links[1].LimsID != "B" {
		t.Errorf("links = %+v", b.Links)
	}
	if b.NextPage == nil || b.NextPage.URI != "http://lims/api/v2/samples?start-index=500" {
		t.Errorf("next page = %+v", b.NextPage)
	}
	if id, _ := b.Links[0].ID(); id != "A" {
		t.Errorf("link id = %q", id)
	}
}

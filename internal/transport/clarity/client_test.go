package clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterReplayMetrics()
	os.Exit(m.Run())
}

func sampleDoc(base, id string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<smp:sample xmlns:smp="http://genologics.com/ri/sample" uri="%ssamples/%s" limsid="%s"><name>%s</name></smp:sample>`,
		base, id, id, id)
}

// baseOf is the REST root as seen by the handler.
func baseOf(r *http.Request) string {
	return "http://" + r.Host + APIPath
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(&Config{
		Server:   srv.URL,
		Username: "apiuser",
		Password: "secret",
		Timeout:  5 * time.Second,
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestNew(t *testing.T) {
	tests := []struct {
		server  string
		want    string
		wantErr bool
	}{
		{"https://lims.example.org", "https://lims.example.org/api/v2/", false},
		{"https://lims.example.org/", "https://lims.example.org/api/v2/", false},
		{"https://lims.example.org/api/v2", "https://lims.example.org/api/v2/", false},
		{"https://lims.example.org/api/v2/", "https://lims.example.org/api/v2/", false},
		{"", "", true},
		{"lims.example.org", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			c, err := New(&Config{Server: tt.server})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if c.BaseURL() != tt.want {
				t.Errorf("BaseURL = %q, want %q", c.BaseURL(), tt.want)
			}
		})
	}
}

func TestClient_Load(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/samples/GAO1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "apiuser" || pass != "secret" {
			t.Errorf("unexpected basic auth: %q %q %v", user, pass, ok)
		}
		if r.Header.Get("Accept") != "application/xml" {
			t.Errorf("unexpected accept header: %s", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, sampleDoc(baseOf(r), "GAO1"))
	})
	base := srv.URL + "/api/v2/"

	e, err := c.Load(context.Background(), kind.Sample, "GAO1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.LimsID() != "GAO1" || e.Name() != "GAO1" {
		t.Errorf("got %q/%q", e.LimsID(), e.Name())
	}
	if e.URI() != base+"samples/GAO1" {
		t.Errorf("uri = %q", e.URI())
	}

	if got := testutil.ToFloat64(metrics.ClarityRequestsTotal.WithLabelValues("sample", "GET", "200")); got < 1 {
		t.Errorf("request counter = %v", got)
	}
}

func TestClient_Retrieve_RelativeURI(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/labs/4" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `<lab:lab xmlns:lab="http://genologics.com/ri/lab" uri="x/labs/4"><name>Lab four</name></lab:lab>`)
	})

	e, err := c.Retrieve(context.Background(), "labs/4", kind.Lab)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if e.Name() != "Lab four" {
		t.Errorf("name = %q", e.Name())
	}
}

func TestClient_ErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantSugg   string
		wantNotFnd bool
	}{
		{
			name:   "exception document",
			status: http.StatusNotFound,
			body: `<?xml version="1.0" encoding="UTF-8"?>
<exc:exception xmlns:exc="http://genologics.com/ri/exception" category="NotFound" code="404">
<message>Sample not found: GAO2</message>
<suggested-actions>Check the id.</suggested-actions>
</exc:exception>`,
			wantMsg:    "Sample not found: GAO2",
			wantSugg:   "Check the id.",
			wantNotFnd: true,
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream gone",
			wantMsg: "upstream gone",
		},
		{
			name:    "empty body",
			status:  http.StatusUnauthorized,
			wantMsg: "Unauthorized",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.Load(context.Background(), kind.Sample, "GAO2")
			var ce *domain.ClarityError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ClarityError, got %v", err)
			}
			if ce.Status != tt.status || ce.Message != tt.wantMsg || ce.Suggestion != tt.wantSugg {
				t.Errorf("got %+v", ce)
			}
			if errors.Is(err, domain.ErrNotFound) != tt.wantNotFnd {
				t.Errorf("errors.Is(ErrNotFound) = %v", !tt.wantNotFnd)
			}
		})
	}
}

func TestClient_ListAll_FollowsNextPage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		base := baseOf(r)
		switch r.URL.Query().Get("start-index") {
		case "":
			fmt.Fprintf(w, `<smp:samples xmlns:smp="http://genologics.com/ri/sample">
<sample uri="%[1]ssamples/A" limsid="A"/>
<sample uri="%[1]ssamples/B" limsid="B"/>
<next-page uri="%[1]ssamples?start-index=2"/>
</smp:samples>`, base)
		case "2":
			fmt.Fprintf(w, `<smp:samples xmlns:smp="http://genologics.com/ri/sample">
<sample uri="%[1]ssamples/C" limsid="C"/>
<previous-page uri="%[1]ssamples?start-index=0"/>
</smp:samples>`, base)
		default:
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
	})

	links, err := c.ListAll(context.Background(), kind.Sample)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	var ids []string
	for _, l := range links {
		ids = append(ids, l.LimsID)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_ListSome(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("start-index"); got != "5" {
			t.Errorf("start-index = %q", got)
		}
		fmt.Fprintf(w, `<smp:samples xmlns:smp="http://genologics.com/ri/sample">
<sample uri="%[1]ssamples/F" limsid="F"/>
<sample uri="%[1]ssamples/G" limsid="G"/>
<sample uri="%[1]ssamples/H" limsid="H"/>
<next-page uri="%[1]ssamples?start-index=8"/>
</smp:samples>`, baseOf(r))
	})

	links, err := c.ListSome(context.Background(), kind.Sample, 5, 2)
	if err != nil {
		t.Fatalf("ListSome: %v", err)
	}
	if len(links) != 2 || links[1].LimsID != "G" {
		t.Errorf("links = %v", links)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want a single page", calls.Load())
	}

	empty, err := c.ListSome(context.Background(), kind.Sample, 0, 0)
	if err != nil || len(empty) != 0 {
		t.Errorf("ListSome(count=0) = %v, %v", empty, err)
	}
}

func TestClient_Find(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/samples" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		want := "name=S+1&projectlimsid=COH605&projectlimsid=SER1015"
		if r.URL.RawQuery != want {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, want)
		}
		_, _ = io.WriteString(w, `<smp:samples xmlns:smp="http://genologics.com/ri/sample"><sample uri="http://lims/api/v2/samples/A" limsid="A"/></smp:samples>`)
	})

	links, err := c.Find(context.Background(), kind.Sample, search.Params{
		"projectlimsid": {"COH605", "SER1015"},
		"name":          {"S 1"},
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := []entity.Link{entity.NewLink(kind.Sample, "http://lims/api/v2/samples/A", "A")}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Find_NoResults(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `<smp:samples xmlns:smp="http://genologics.com/ri/sample"/>`)
	})
	links, err := c.Find(context.Background(), kind.Sample, search.Params{"name": {"none"}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if links == nil || len(links) != 0 {
		t.Errorf("links = %#v, want empty non-nil", links)
	}
}

func TestClient_LoadAll_BoundedAndOrdered(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		_, _ = io.WriteString(w, sampleDoc(baseOf(r), id))
	}))
	t.Cleanup(srv.Close)
	base := srv.URL + "/api/v2/"

	c, err := New(&Config{Server: srv.URL, MaxConcurrency: 2})
	if err != nil {
		t.Fatal(err)
	}

	var links []entity.Link
	var want []string
	for i := range 8 {
		id := fmt.Sprintf("S%d", i)
		want = append(want, id)
		if i%2 == 0 {
			links = append(links, entity.NewLink(kind.Sample, base+"samples/"+id, id))
		} else {
			links = append(links, entity.Link{LimsID: id})
		}
	}

	es, err := c.LoadAll(context.Background(), kind.Sample, links)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	var got []string
	for _, e := range es {
		got = append(got, e.LimsID())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestClient_LoadAll_Error(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/bad") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, sampleDoc("http://lims/api/v2/", "ok"))
	})
	_, err := c.LoadAll(context.Background(), kind.Sample, []entity.Link{{LimsID: "ok"}, {LimsID: "bad"}})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Writes(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method != http.MethodDelete {
			if r.Header.Get("Content-Type") != "application/xml" {
				t.Errorf("%s content type = %q", r.Method, r.Header.Get("Content-Type"))
			}
			if !strings.Contains(string(body), "<name>") {
				t.Errorf("%s body = %q", r.Method, body)
			}
		}
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, sampleDoc(baseOf(r), "NEW1"))
		case http.MethodPut:
			_, _ = w.Write(body)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	draft := entity.Reconstruct(kind.Sample, "", "", "draft", []byte(`<smp:sample xmlns:smp="http://genologics.com/ri/sample"><name>draft</name></smp:sample>`))
	created, err := c.Create(ctx, draft)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.LimsID() != "NEW1" {
		t.Errorf("created limsid = %q", created.LimsID())
	}

	if _, err := c.Update(ctx, created); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := c.UpdateAll(ctx, []entity.Entity{created, created})
	if err != nil || len(updated) != 2 {
		t.Fatalf("UpdateAll = %d, %v", len(updated), err)
	}
	if err := c.Delete(ctx, created); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []string{
		"POST /api/v2/samples",
		"PUT /api/v2/samples/NEW1",
		"PUT /api/v2/samples/NEW1",
		"PUT /api/v2/samples/NEW1",
		"DELETE /api/v2/samples/NEW1",
	}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Update_NoURI(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Update(context.Background(), entity.Reconstruct(kind.Lab, "", "", "x", []byte("<lab/>")))
	if !errors.Is(err, domain.ErrInvalidURI) {
		t.Fatalf("expected ErrInvalidURI, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `<ver:versions xmlns:ver="http://genologics.com/ri/version"/>`)
	})

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	healthy.Store(false)
	if err := c.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error from unhealthy server")
	}
}

func TestEncodeException_RoundTrip(t *testing.T) {
	in := &domain.ClarityError{Status: http.StatusNotFound, Message: "There is no file Sample-Z.xml recorded.", Suggestion: "Record it first."}
	body := EncodeException(in)
	if !strings.Contains(string(body), `category="NotFound"`) {
		t.Errorf("missing category: %s", body)
	}
	out := ParseException(http.StatusNotFound, body)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

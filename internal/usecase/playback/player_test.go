package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/clarityreplay/internal/db/files"
	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
)

func sample(id string) entity.Entity {
	raw := []byte(`<smp:sample xmlns:smp="http://genologics.com/ri/sample" uri="http://lims/api/v2/samples/` +
		id + `" limsid="` + id + `"><name>` + id + `</name></smp:sample>`)
	return entity.Reconstruct(kind.Sample, "http://lims/api/v2/samples/"+id, id, id, raw)
}

func sampleLink(id string) entity.Link {
	return entity.NewLink(kind.Sample, "http://lims/api/v2/samples/"+id, id)
}

// recorded returns an exchange repository over a fresh directory holding
// samples A and B, the Samples list and one search.
func recorded(t *testing.T) (*exchange.Repo, *files.Store) {
	t.Helper()
	store, err := files.NewStore(files.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("files.NewStore: %v", err)
	}
	repo := exchange.New(store)
	ctx := context.Background()
	for _, id := range []string{"A", "B"} {
		if _, err := repo.SaveEntity(ctx, sample(id)); err != nil {
			t.Fatal(err)
		}
	}
	links := []entity.Link{sampleLink("A"), sampleLink("B"), sampleLink("C")}
	if _, err := repo.SaveBatch(ctx, kind.Sample, links); err != nil {
		t.Fatal(err)
	}
	terms := search.NewTerms(kind.Sample, search.Params{"projectlimsid": {"COH605", "SER1015"}})
	if _, err := repo.SaveSearch(ctx, search.New(terms, links[:2])); err != nil {
		t.Fatal(err)
	}
	return repo, store
}

func TestRetrieveAndLoad(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())
	ctx := context.Background()

	e, err := p.Retrieve(ctx, "http://lims/api/v2/samples/A", kind.Sample)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if e.LimsID() != "A" {
		t.Errorf("limsid = %q", e.LimsID())
	}
	if _, err := p.Load(ctx, kind.Sample, "B"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_NoRecording(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())

	_, err := p.Load(context.Background(), kind.Sample, "Z")
	if !errors.Is(err, domain.ErrNoRecording) {
		t.Fatalf("expected ErrNoRecording, got %v", err)
	}
	if err.Error() != "There is no file Sample-Z.xml recorded." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestRetrieve_InvalidURI(t *testing.T) {
	repo, _ := recorded(t)
	_, err := New(repo, nil).Retrieve(context.Background(), "http://lims", kind.Sample)
	if !errors.Is(err, domain.ErrInvalidURI) {
		t.Fatalf("expected ErrInvalidURI, got %v", err)
	}
}

func TestLoadAll(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())
	ctx := context.Background()

	es, err := p.LoadAll(ctx, kind.Sample, []entity.Link{sampleLink("B"), {LimsID: "A"}})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(es) != 2 || es[0].LimsID() != "B" || es[1].LimsID() != "A" {
		t.Errorf("order not preserved: %v", es)
	}

	_, err = p.LoadAll(ctx, kind.Sample, []entity.Link{sampleLink("A"), sampleLink("C")})
	var nr *domain.NoRecordingError
	if !errors.As(err, &nr) || nr.Name != "Sample-C.xml" {
		t.Fatalf("expected missing C, got %v", err)
	}
}

func TestFind(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())

	got, err := p.Find(context.Background(), kind.Sample, search.Params{"projectlimsid": {"SER1015", "COH605"}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if diff := cmp.Diff([]entity.Link{sampleLink("A"), sampleLink("B")}, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestFind_NoRecording(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())

	_, err := p.Find(context.Background(), kind.Sample, search.Params{"projectlimsid": {"COH605"}})
	var nr *domain.NoRecordingError
	if !errors.As(err, &nr) || nr.What != "search" {
		t.Fatalf("expected search NoRecordingError, got %v", err)
	}
}

// collidingRepo serves a search with other terms for any lookup.
type collidingRepo struct {
	Repository
	recorded *search.Search
}

func (c collidingRepo) LoadSearch(context.Context, search.Terms) (*search.Search, error) {
	return c.recorded, nil
}

func TestFind_HashCollisionIsNoRecording(t *testing.T) {
	repo, _ := recorded(t)
	other := search.New(search.NewTerms(kind.Process, search.Params{"x": {"1"}}), nil)
	p := New(collidingRepo{Repository: repo, recorded: other}, zap.NewNop())

	_, err := p.Find(context.Background(), kind.Sample, search.Params{"name": {"y"}})
	if !errors.Is(err, domain.ErrNoRecording) {
		t.Fatalf("expected ErrNoRecording, got %v", err)
	}
}

func TestListAllAndSome(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop())
	ctx := context.Background()

	all, err := p.ListAll(ctx, kind.Sample)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAll = %d, %v", len(all), err)
	}

	// The recording is the page the server returned; paging is not reapplied.
	for _, page := range [][2]int{{0, 2}, {1, 10}, {3, 1}, {0, 0}} {
		got, err := p.ListSome(ctx, kind.Sample, page[0], page[1])
		if err != nil {
			t.Fatalf("ListSome(%d,%d): %v", page[0], page[1], err)
		}
		if diff := cmp.Diff(all, got); diff != "" {
			t.Errorf("ListSome(%d,%d) mismatch (-want +got):\n%s", page[0], page[1], diff)
		}
	}
}

func TestListAll_NoRecording(t *testing.T) {
	repo, _ := recorded(t)
	_, err := New(repo, zap.NewNop()).ListAll(context.Background(), kind.Lab)
	if err == nil || err.Error() != "There is no list file Labs.xml recorded." {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestWrites_Blocked(t *testing.T) {
	repo, store := recorded(t)
	core, logs := observer.New(zapcore.WarnLevel)
	p := New(repo, zap.New(core))
	ctx := context.Background()
	e := sample("A")

	got, err := p.Create(ctx, e)
	if err != nil || got.LimsID() != "A" {
		t.Fatalf("Create = %v, %v", got, err)
	}
	if _, err := p.Update(ctx, e); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := p.UpdateAll(ctx, []entity.Entity{e}); err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if err := p.Delete(ctx, e); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var msgs []string
	for _, entry := range logs.All() {
		msgs = append(msgs, entry.Message)
	}
	want := []string{"Call to Create blocked.", "Call to Update blocked.", "Call to UpdateAll blocked.", "Call to Delete blocked."}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	names, _ := store.Scan(ctx, "Sample-A.*.xml")
	if len(names) != 0 {
		t.Errorf("blocked writes must not be recorded: %v", names)
	}
}

func TestWrites_Strict(t *testing.T) {
	repo, _ := recorded(t)
	p := New(repo, zap.NewNop(), WithStrict())
	ctx := context.Background()

	if _, err := p.Update(ctx, sample("A")); !errors.Is(err, domain.ErrWriteBlocked) {
		t.Errorf("Update: expected ErrWriteBlocked, got %v", err)
	}
	if err := p.Delete(ctx, sample("A")); !errors.Is(err, domain.ErrWriteBlocked) {
		t.Errorf("Delete: expected ErrWriteBlocked, got %v", err)
	}
}

func TestUpdates_Recorded(t *testing.T) {
	repo, _ := recorded(t)
	updStore, err := files.NewStore(files.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	p := New(repo, zap.NewNop(), WithUpdates(exchange.New(updStore)), WithStrict())
	ctx := context.Background()

	if _, err := p.Update(ctx, sample("A")); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := p.UpdateAll(ctx, []entity.Entity{sample("A"), sample("B")}); err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	names, _ := updStore.Scan(ctx, "*.xml")
	want := []string{"Sample-A.000.xml", "Sample-A.001.xml", "Sample-B.000.xml"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("update files mismatch (-want +got):\n%s", diff)
	}

	// Create and Delete stay blocked even with an updates store.
	if _, err := p.Create(ctx, sample("C")); !errors.Is(err, domain.ErrWriteBlocked) {
		t.Errorf("Create: expected ErrWriteBlocked, got %v", err)
	}
}

// countingRepo counts entity loads.
type countingRepo struct {
	Repository
	loads int
}

func (c *countingRepo) LoadEntity(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	c.loads++
	return c.Repository.LoadEntity(ctx, k, id)
}

func TestCache(t *testing.T) {
	repo, _ := recorded(t)
	counting := &countingRepo{Repository: repo}
	p := New(counting, zap.NewNop(), WithCache())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := p.Load(ctx, kind.Sample, "A"); err != nil {
			t.Fatal(err)
		}
	}
	if counting.loads != 1 {
		t.Errorf("loads = %d, want 1", counting.loads)
	}

	p.Invalidate("Sample-A.xml")
	_, _ = p.Load(ctx, kind.Sample, "A")
	if counting.loads != 2 {
		t.Errorf("loads after invalidate = %d, want 2", counting.loads)
	}

	_, _ = p.Load(ctx, kind.Sample, "B")
	p.InvalidateAll()
	if p.cache.len() != 0 {
		t.Errorf("cache len = %d after InvalidateAll", p.cache.len())
	}

	// Misses are not cached.
	_, _ = p.Load(ctx, kind.Sample, "Z")
	if p.cache.len() != 0 {
		t.Error("missing recordings must not be cached")
	}
}

// invalidatingRepo invalidates the recording while it is being read, as
// the Watcher does when the file changes mid-load.
type invalidatingRepo struct {
	Repository
	player *Player
}

func (r *invalidatingRepo) LoadEntity(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	e, err := r.Repository.LoadEntity(ctx, k, id)
	r.player.Invalidate(exchange.EntityName(k, id))
	return e, err
}

func TestCache_InvalidatedDuringLoad(t *testing.T) {
	repo, _ := recorded(t)
	racing := &invalidatingRepo{Repository: repo}
	p := New(racing, zap.NewNop(), WithCache())
	racing.player = p

	e, err := p.Load(context.Background(), kind.Sample, "A")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e.LimsID() != "A" {
		t.Errorf("limsid = %q", e.LimsID())
	}
	if p.cache.len() != 0 {
		t.Errorf("cache len = %d, stale entity cached after invalidation", p.cache.len())
	}

	// Without a concurrent change the next load is cached again.
	racing.player = New(repo, nil)
	if _, err := p.Load(context.Background(), kind.Sample, "A"); err != nil {
		t.Fatal(err)
	}
	if p.cache.len() != 1 {
		t.Errorf("cache len = %d, want 1", p.cache.len())
	}
}

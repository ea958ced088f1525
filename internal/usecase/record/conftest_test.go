package record

import (
	"context"
	"errors"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

var errServer = errors.New("server down")

// mockAPI implements lims.API for tests.
type mockAPI struct {
	retrieveFn func(uri string, k kind.Kind) (entity.Entity, error)
	loadFn     func(k kind.Kind, id string) (entity.Entity, error)
	loadAllFn  func(k kind.Kind, links []entity.Link) ([]entity.Entity, error)
	findFn     func(k kind.Kind, params search.Params) ([]entity.Link, error)
	listFn     func(k kind.Kind) ([]entity.Link, error)
	listSomeFn func(k kind.Kind, start, count int) ([]entity.Link, error)

	creates, updates, deletes int
}

func (m *mockAPI) Retrieve(_ context.Context, uri string, k kind.Kind) (entity.Entity, error) {
	return m.retrieveFn(uri, k)
}

func (m *mockAPI) Load(_ context.Context, k kind.Kind, id string) (entity.Entity, error) {
	return m.loadFn(k, id)
}

func (m *mockAPI) LoadAll(_ context.Context, k kind.Kind, links []entity.Link) ([]entity.Entity, error) {
	return m.loadAllFn(k, links)
}

func (m *mockAPI) Find(_ context.Context, k kind.Kind, params search.Params) ([]entity.Link, error) {
	return m.findFn(k, params)
}

func (m *mockAPI) ListAll(_ context.Context, k kind.Kind) ([]entity.Link, error) {
	return m.listFn(k)
}

func (m *mockAPI) ListSome(_ context.Context, k kind.Kind, start, count int) ([]entity.Link, error) {
	return m.listSomeFn(k, start, count)
}

func (m *mockAPI) Create(_ context.Context, e entity.Entity) (entity.Entity, error) {
	m.creates++
	return e, nil
}

func (m *mockAPI) Update(_ context.Context, e entity.Entity) (entity.Entity, error) {
	m.updates++
	return e, nil
}

func (m *mockAPI) UpdateAll(_ context.Context, es []entity.Entity) ([]entity.Entity, error) {
	m.updates += len(es)
	return es, nil
}

func (m *mockAPI) Delete(_ context.Context, _ entity.Entity) error {
	m.deletes++
	return nil
}

// mockRepo implements Repository for failure paths.
type mockRepo struct {
	saveEntityErr error
	saveBatchErr  error
	saveSearchErr error
	loadSearchFn  func(terms search.Terms) (*search.Search, error)
	savedSearches []*search.Search
}

func (m *mockRepo) SaveEntity(_ context.Context, _ entity.Entity) (string, error) {
	return "", m.saveEntityErr
}

func (m *mockRepo) SaveBatch(_ context.Context, k kind.Kind, _ []entity.Link) (string, error) {
	return k.Batch() + ".xml", m.saveBatchErr
}

func (m *mockRepo) SaveSearch(_ context.Context, s *search.Search) (string, error) {
	if m.saveSearchErr != nil {
		return "", m.saveSearchErr
	}
	m.savedSearches = append(m.savedSearches, s)
	return s.FileName(), nil
}

func (m *mockRepo) LoadSearch(_ context.Context, terms search.Terms) (*search.Search, error) {
	return m.loadSearchFn(terms)
}

func sampleEntity(id string) entity.Entity {
	uri := "http://lims.example.org/api/v2/samples/" + id
	raw := `<smp:sample xmlns:smp="http://genologics.com/ri/sample" uri="` + uri + `" limsid="` + id + `"><name>` + id + `</name></smp:sample>`
	return entity.Reconstruct(kind.Sample, uri, id, id, []byte(raw))
}

func sampleLink(id string) entity.Link {
	return entity.NewLink(kind.Sample, "http://lims.example.org/api/v2/samples/"+id, id)
}

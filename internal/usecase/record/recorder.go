// Package record wraps a live Clarity API and writes every read exchange
// to a recording repository, so the same calls can later be played back
// without a server.
package record

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
)

var _ lims.API = (*Recorder)(nil)

// Recording types used as metric labels.
const (
	typeEntity = "entity"
	typeList   = "list"
	typeSearch = "search"
)

// Recorder decorates a lims.API. Results from the inner API are returned
// unchanged; failing to record never fails the call.
type Recorder struct {
	inner  lims.API
	repo   Repository
	logger *zap.Logger
}

// New creates a Recorder around inner.
func New(inner lims.API, repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{inner: inner, repo: repo, logger: logger}
}

// Retrieve fetches from the server and records the entity.
func (r *Recorder) Retrieve(ctx context.Context, uri string, k kind.Kind) (entity.Entity, error) {
	e, err := r.inner.Retrieve(ctx, uri, k)
	if err != nil {
		return e, err
	}
	r.writeEntity(ctx, e)
	return e, nil
}

// Load fetches from the server and records the entity.
func (r *Recorder) Load(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	e, err := r.inner.Load(ctx, k, id)
	if err != nil {
		return e, err
	}
	r.writeEntity(ctx, e)
	return e, nil
}

// LoadAll fetches from the server and records every entity returned.
func (r *Recorder) LoadAll(ctx context.Context, k kind.Kind, links []entity.Link) ([]entity.Entity, error) {
	es, err := r.inner.LoadAll(ctx, k, links)
	if err != nil {
		return es, err
	}
	for _, e := range es {
		r.writeEntity(ctx, e)
	}
	return es, nil
}

// Find runs the search on the server and records its terms and results,
// merged with any earlier recording of the same search.
func (r *Recorder) Find(ctx context.Context, k kind.Kind, params search.Params) ([]entity.Link, error) {
	links, err := r.inner.Find(ctx, k, params)
	if err != nil {
		return links, err
	}
	results := make([]entity.Link, len(links))
	copy(results, links)
	r.writeSearch(ctx, search.New(search.NewTerms(k, params), results))
	return links, nil
}

// ListAll fetches every link from the server and records the list.
func (r *Recorder) ListAll(ctx context.Context, k kind.Kind) ([]entity.Link, error) {
	links, err := r.inner.ListAll(ctx, k)
	if err != nil {
		return links, err
	}
	r.writeBatch(ctx, k, links)
	return links, nil
}

// ListSome fetches a page of links and records it as the kind's list.
// The latest list recorded wins.
func (r *Recorder) ListSome(ctx context.Context, k kind.Kind, start, count int) ([]entity.Link, error) {
	links, err := r.inner.ListSome(ctx, k, start, count)
	if err != nil {
		return links, err
	}
	r.writeBatch(ctx, k, links)
	return links, nil
}

// Create passes through unrecorded.
func (r *Recorder) Create(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	return r.inner.Create(ctx, e)
}

// Update passes through unrecorded.
func (r *Recorder) Update(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	return r.inner.Update(ctx, e)
}

// UpdateAll passes through unrecorded.
func (r *Recorder) UpdateAll(ctx context.Context, es []entity.Entity) ([]entity.Entity, error) {
	return r.inner.UpdateAll(ctx, es)
}

// Delete passes through unrecorded.
func (r *Recorder) Delete(ctx context.Context, e entity.Entity) error {
	return r.inner.Delete(ctx, e)
}

func (r *Recorder) writeEntity(ctx context.Context, e entity.Entity) {
	name, err := r.repo.SaveEntity(ctx, e)
	if err != nil {
		metrics.RecordingErrorsTotal.WithLabelValues(typeEntity).Inc()
		r.logger.Debug("Could not record entity",
			zap.String("kind", e.Kind().Name()),
			zap.String("uri", e.URI()),
			zap.Error(err),
		)
		return
	}
	metrics.RecordingsWrittenTotal.WithLabelValues(typeEntity).Inc()
	r.logger.Debug("Recorded entity", zap.String("name", name))
}

func (r *Recorder) writeBatch(ctx context.Context, k kind.Kind, links []entity.Link) {
	name, err := r.repo.SaveBatch(ctx, k, links)
	if err != nil {
		metrics.RecordingErrorsTotal.WithLabelValues(typeList).Inc()
		r.logger.Warn("Could not record list",
			zap.String("kind", k.Name()),
			zap.Error(err),
		)
		return
	}
	metrics.RecordingsWrittenTotal.WithLabelValues(typeList).Inc()
	r.logger.Debug("Recorded list", zap.String("name", name), zap.Int("links", len(links)))
}

func (r *Recorder) writeSearch(ctx context.Context, s *search.Search) {
	if !r.mergeWithExisting(ctx, s) {
		r.logger.Debug("Search already recorded", zap.String("name", s.FileName()))
		return
	}
	name, err := r.repo.SaveSearch(ctx, s)
	if err != nil {
		metrics.RecordingErrorsTotal.WithLabelValues(typeSearch).Inc()
		r.logger.Warn("Could not record search",
			zap.String("name", s.FileName()),
			zap.Stringer("terms", s.Terms),
			zap.Error(err),
		)
		return
	}
	metrics.RecordingsWrittenTotal.WithLabelValues(typeSearch).Inc()
	r.logger.Debug("Recorded search", zap.String("name", name), zap.Int("results", len(s.Results)))
}

// mergeWithExisting folds an earlier recording of the same search into s
// and reports whether s must be written.
func (r *Recorder) mergeWithExisting(ctx context.Context, s *search.Search) bool {
	prev, err := r.repo.LoadSearch(ctx, s.Terms)
	switch {
	case errors.Is(err, domain.ErrNoRecording):
		return true
	case err != nil:
		r.logger.Warn("Could not read recorded search, overwriting",
			zap.String("name", s.FileName()),
			zap.Error(err),
		)
		return true
	case !prev.Terms.Equal(s.Terms):
		metrics.SearchConflictsTotal.Inc()
		r.logger.Error("Have two incompatible searches that reduce to the same hash",
			zap.String("name", s.FileName()),
			zap.Stringer("terms", s.Terms),
			zap.Stringer("recorded_terms", prev.Terms),
		)
		return true
	default:
		return s.Merge(prev)
	}
}

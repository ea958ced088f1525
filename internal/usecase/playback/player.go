// Package playback answers Clarity API calls from recorded exchanges, with
// no server involved. Reads that were never recorded fail with a
// NoRecordingError; writes are blocked unless an updates store is set.
package playback

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
)

var _ lims.API = (*Player)(nil)

// Option configures a Player.
type Option func(*Player)

// WithUpdates writes Update and UpdateAll calls to repo as versioned
// update recordings instead of blocking them.
func WithUpdates(repo UpdateRepository) Option {
	return func(p *Player) { p.updates = repo }
}

// WithStrict makes blocked writes return ErrWriteBlocked instead of
// succeeding silently.
func WithStrict() Option {
	return func(p *Player) { p.strict = true }
}

// WithCache keeps decoded entities in memory. Pair it with a Watcher when
// recordings can change underneath the player.
func WithCache() Option {
	return func(p *Player) { p.cache = newEntityCache() }
}

// Player implements lims.API from recordings.
type Player struct {
	repo    Repository
	updates UpdateRepository
	strict  bool
	cache   *entityCache
	logger  *zap.Logger
}

// New creates a Player reading from repo.
func New(repo Repository, logger *zap.Logger, opts ...Option) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Player{repo: repo, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Retrieve returns the recording for the entity at uri.
func (p *Player) Retrieve(ctx context.Context, uri string, k kind.Kind) (entity.Entity, error) {
	id, err := entity.IDFromURI(uri)
	if err != nil {
		return entity.Entity{}, err
	}
	return p.Load(ctx, k, id)
}

// Load returns the recording for kind k and id.
func (p *Player) Load(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	name := exchange.EntityName(k, id)
	var gen uint64
	if p.cache != nil {
		if e, ok := p.cache.get(name); ok {
			metrics.PlaybackRequestsTotal.WithLabelValues("load", "hit").Inc()
			return e, nil
		}
		gen = p.cache.generation()
	}

	e, err := p.repo.LoadEntity(ctx, k, id)
	if err != nil {
		p.countRead("load", err)
		return entity.Entity{}, err
	}
	metrics.PlaybackRequestsTotal.WithLabelValues("load", "hit").Inc()
	if p.cache != nil && !p.cache.putIfCurrent(name, e, gen) {
		p.logger.Debug("Recording changed while loading, not cached", zap.String("name", name))
	}
	return e, nil
}

// LoadAll loads every link in turn. The first missing recording aborts.
func (p *Player) LoadAll(ctx context.Context, k kind.Kind, links []entity.Link) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(links))
	for _, l := range links {
		var (
			e   entity.Entity
			err error
		)
		if l.URI != "" {
			e, err = p.Retrieve(ctx, l.URI, k)
		} else {
			e, err = p.Load(ctx, k, l.LimsID)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Find returns the results recorded for an equal search.
func (p *Player) Find(ctx context.Context, k kind.Kind, params search.Params) ([]entity.Link, error) {
	terms := search.NewTerms(k, params)
	s, err := p.repo.LoadSearch(ctx, terms)
	if err != nil {
		p.countRead("find", err)
		return nil, err
	}
	if !s.Terms.Equal(terms) {
		// A different search shares the hash; this one was never recorded.
		p.logger.Debug("Recorded search has different terms",
			zap.Stringer("terms", terms),
			zap.Stringer("recorded_terms", s.Terms),
		)
		metrics.PlaybackRequestsTotal.WithLabelValues("find", "miss").Inc()
		return nil, domain.NewNoRecording("search", terms.String())
	}
	metrics.PlaybackRequestsTotal.WithLabelValues("find", "hit").Inc()
	return s.Results, nil
}

// ListAll returns the recorded list of kind k.
func (p *Player) ListAll(ctx context.Context, k kind.Kind) ([]entity.Link, error) {
	links, err := p.repo.LoadBatch(ctx, k)
	if err != nil {
		p.countRead("list", err)
		return nil, err
	}
	metrics.PlaybackRequestsTotal.WithLabelValues("list", "hit").Inc()
	return links, nil
}

// ListSome returns the recorded list of kind k as is. The recording already
// holds only the page fetched live, so start and count are not applied again.
func (p *Player) ListSome(ctx context.Context, k kind.Kind, _, _ int) ([]entity.Link, error) {
	return p.ListAll(ctx, k)
}

// Create is blocked; the entity is returned unchanged.
func (p *Player) Create(_ context.Context, e entity.Entity) (entity.Entity, error) {
	return e, p.blockWrite("Create")
}

// Update writes an update recording if an updates store is configured and
// is blocked otherwise.
func (p *Player) Update(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	if p.updates == nil {
		return e, p.blockWrite("Update")
	}
	if err := p.writeUpdate(ctx, e); err != nil {
		return e, err
	}
	return e, nil
}

// UpdateAll is Update for each entity.
func (p *Player) UpdateAll(ctx context.Context, es []entity.Entity) ([]entity.Entity, error) {
	if p.updates == nil {
		return es, p.blockWrite("UpdateAll")
	}
	for _, e := range es {
		if err := p.writeUpdate(ctx, e); err != nil {
			return es, err
		}
	}
	return es, nil
}

// Delete is blocked.
func (p *Player) Delete(_ context.Context, _ entity.Entity) error {
	return p.blockWrite("Delete")
}

// Invalidate drops a recording from the entity cache.
func (p *Player) Invalidate(name string) {
	if p.cache != nil {
		p.cache.invalidate(name)
	}
}

// InvalidateAll empties the entity cache.
func (p *Player) InvalidateAll() {
	if p.cache != nil {
		p.cache.clear()
	}
}

func (p *Player) writeUpdate(ctx context.Context, e entity.Entity) error {
	name, err := p.updates.SaveUpdate(ctx, e)
	if err != nil {
		metrics.RecordingErrorsTotal.WithLabelValues("update").Inc()
		return fmt.Errorf("record update: %w", err)
	}
	metrics.RecordingsWrittenTotal.WithLabelValues("update").Inc()
	p.logger.Debug("Recorded update", zap.String("name", name))
	return nil
}

func (p *Player) blockWrite(op string) error {
	metrics.BlockedWritesTotal.WithLabelValues(op).Inc()
	p.logger.Warn("Call to "+op+" blocked.", zap.String("op", op))
	if p.strict {
		return fmt.Errorf("%s: %w", op, domain.ErrWriteBlocked)
	}
	return nil
}

func (p *Player) countRead(op string, err error) {
	result := "error"
	if errors.Is(err, domain.ErrNoRecording) {
		result = "miss"
	}
	metrics.PlaybackRequestsTotal.WithLabelValues(op, result).Inc()
}

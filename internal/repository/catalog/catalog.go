// Package catalog indexes recorded entities for full-text lookup, so that a
// fixture directory can be searched by name or id without knowing the file
// naming scheme.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
)

const (
	defaultLimit = 20
	maxLimit     = 500
	batchSize    = 100
)

// Source lists recorded entities.
type Source interface {
	Entities(ctx context.Context) ([]exchange.Recorded, error)
}

// document is what gets indexed for one recording.
type document struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	Name string `json:"name"`
	File string `json:"file"`
	URI  string `json:"uri"`
}

// Hit is a search result.
type Hit struct {
	File  string
	Kind  string
	ID    string
	Name  string
	URI   string
	Score float64
}

// Catalog is an in-memory index of recordings.
type Catalog struct {
	index  bleve.Index
	logger *zap.Logger
}

// Build indexes every entity src returns. Recordings that cannot be read are
// logged and skipped.
func Build(ctx context.Context, src Source, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	recorded, err := src.Entities(ctx)
	if err != nil {
		if len(recorded) == 0 {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		logger.Warn("Some recordings could not be read", zap.Error(err))
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	c := &Catalog{index: index, logger: logger}

	batch := index.NewBatch()
	for i, r := range recorded {
		doc := document{
			Kind: r.Entity.Kind().Name(),
			ID:   r.ID,
			Name: r.Entity.Name(),
			File: r.Name,
			URI:  r.Entity.URI(),
		}
		if err := batch.Index(r.Name, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index %s: %w", r.Name, err)
		}
		if (i+1)%batchSize == 0 {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index batch: %w", err)
		}
	}

	logger.Debug("Catalog built", zap.Int("recordings", len(recorded)))
	return c, nil
}

// Search runs a query string query (e.g. "GAO9862", "kind:sample name:pool")
// and returns up to limit hits by descending score. An empty query matches
// everything.
func (c *Catalog) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	req := bleve.NewSearchRequestOptions(buildQuery(query), limit, 0, false)
	req.Fields = []string{"*"}

	res, err := c.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{File: h.ID, Score: h.Score}
		if v, ok := h.Fields["kind"].(string); ok {
			hit.Kind = v
		}
		if v, ok := h.Fields["id"].(string); ok {
			hit.ID = v
		}
		if v, ok := h.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := h.Fields["uri"].(string); ok {
			hit.URI = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count returns the number of indexed recordings.
func (c *Catalog) Count() (uint64, error) {
	n, err := c.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Close releases the index.
func (c *Catalog) Close() error {
	if err := c.index.Close(); err != nil && !errors.Is(err, bleve.ErrorIndexClosed) {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

func buildQuery(q string) query.Query {
	q = strings.TrimSpace(q)
	if q == "" {
		return bleve.NewMatchAllQuery()
	}
	return bleve.NewQueryStringQuery(q)
}

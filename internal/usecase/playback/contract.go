package playback

import (
	"context"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

// Repository serves recorded exchanges.
type Repository interface {
	LoadEntity(ctx context.Context, k kind.Kind, id string) (entity.Entity, error)
	LoadBatch(ctx context.Context, k kind.Kind) ([]entity.Link, error)
	LoadSearch(ctx context.Context, terms search.Terms) (*search.Search, error)
}

// UpdateRepository receives the entities written during playback.
type UpdateRepository interface {
	SaveUpdate(ctx context.Context, e entity.Entity) (string, error)
}

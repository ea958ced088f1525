package record

import (
	"context"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

// Repository stores what the recorder sees.
type Repository interface {
	SaveEntity(ctx context.Context, e entity.Entity) (string, error)
	SaveBatch(ctx context.Context, k kind.Kind, links []entity.Link) (string, error)
	SaveSearch(ctx context.Context, s *search.Search) (string, error)
	LoadSearch(ctx context.Context, terms search.Terms) (*search.Search, error)
}

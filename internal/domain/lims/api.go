// Package lims defines the Clarity API surface that the live client, the
// recorder and the player all implement, so that each can stand in for the
// others.
package lims

import (
	"context"

	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

// API is the set of Clarity operations that can be recorded and replayed.
type API interface {
	Reader
	Writer
}

// Reader covers the read operations.
type Reader interface {
	// Retrieve fetches the entity at uri.
	Retrieve(ctx context.Context, uri string, k kind.Kind) (entity.Entity, error)
	// Load fetches the entity of kind k with the given id.
	Load(ctx context.Context, k kind.Kind, id string) (entity.Entity, error)
	// LoadAll fetches every linked entity, preserving order.
	LoadAll(ctx context.Context, k kind.Kind, links []entity.Link) ([]entity.Entity, error)
	// Find runs a search and returns links to the matches.
	Find(ctx context.Context, k kind.Kind, params search.Params) ([]entity.Link, error)
	// ListAll returns links to every entity of kind k.
	ListAll(ctx context.Context, k kind.Kind) ([]entity.Link, error)
	// ListSome returns up to count links starting at index start.
	ListSome(ctx context.Context, k kind.Kind, start, count int) ([]entity.Link, error)
}

// Writer covers the operations that change server state.
type Writer interface {
	Create(ctx context.Context, e entity.Entity) (entity.Entity, error)
	Update(ctx context.Context, e entity.Entity) (entity.Entity, error)
	UpdateAll(ctx context.Context, es []entity.Entity) ([]entity.Entity, error)
	Delete(ctx context.Context, e entity.Entity) error
}

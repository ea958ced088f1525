package clarityreplay

import (
	"fmt"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

// Kind is a Clarity entity kind such as Sample or Artifact.
type Kind = kind.Kind

// Entity is one Clarity document with the identity fields read from it.
// Raw returns the document exactly as the server sent it.
type Entity = entity.Entity

// Link points at an entity, as returned by list and search calls.
type Link = entity.Link

// SearchParams are query parameters of a search, each name with one or
// more values.
type SearchParams = search.Params

// Entity kinds.
var (
	Sample        = kind.Sample
	Artifact      = kind.Artifact
	Container     = kind.Container
	ContainerType = kind.ContainerType
	Project       = kind.Project
	Researcher    = kind.Researcher
	Lab           = kind.Lab
	Process       = kind.Process
	ReagentType   = kind.ReagentType
	Role          = kind.Role
	Permission    = kind.Permission
	File          = kind.File
	Instrument    = kind.Instrument
	ProcessType   = kind.ProcessType
)

// Kinds returns every entity kind, sorted by name.
func Kinds() []Kind { return kind.All() }

// LookupKind finds a kind by name ("sample"), class ("Sample"), URI path
// segment ("samples") or list name ("Samples").
func LookupKind(name string) (Kind, error) {
	k, ok := kind.Lookup(name)
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, name)
	}
	return k, nil
}

// ParseEntity reads a Clarity XML document of kind k.
func ParseEntity(k Kind, doc []byte) (Entity, error) {
	e, err := entity.Parse(k, doc)
	if err != nil {
		return Entity{}, fmt.Errorf("parse %s: %w", k.Name(), err)
	}
	return e, nil
}

// NewLink builds a link to an entity by URI, LIMS id or both.
func NewLink(k Kind, uri, limsID string) Link {
	return entity.NewLink(k, uri, limsID)
}

// HealthStatus represents the aggregated client health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

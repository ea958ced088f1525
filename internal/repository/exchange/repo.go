// Package exchange stores recorded server exchanges under stable names:
// one file per entity, one per list and one per search, plus versioned
// update files written during playback.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kailas-cloud/clarityreplay/internal/db"
	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
)

// EntityPattern names entity recordings: class name and identifier.
const EntityPattern = "%s-%s.xml"

// UpdatePattern names update recordings: class, identifier and a version
// of at least three digits.
const UpdatePattern = "%s-%s.%03d.xml"

// maxVersions bounds the search for a free update slot.
const maxVersions = 100000

// allocMu serialises update slot allocation across every Repo in the
// process, so two repositories over the same directory never race.
var allocMu sync.Mutex

// store is the consumer interface for recordings (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo reads and writes recordings.
type Repo struct {
	store store
}

// New creates an exchange repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EntityName returns the recording name for an entity of kind k.
func EntityName(k kind.Kind, id string) string {
	return fmt.Sprintf(EntityPattern, k.Class(), id)
}

// BatchName returns the recording name for the list of kind k.
func BatchName(k kind.Kind) string {
	return k.Batch() + ".xml"
}

// UpdateName returns the recording name for version v of an update.
func UpdateName(k kind.Kind, id string, v int) string {
	return fmt.Sprintf(UpdatePattern, k.Class(), id, v)
}

// SaveEntity writes the entity document and returns its name.
func (r *Repo) SaveEntity(ctx context.Context, e entity.Entity) (string, error) {
	id, err := e.ID()
	if err != nil {
		return "", fmt.Errorf("name %s: %w", e.Kind().Class(), err)
	}
	name := EntityName(e.Kind(), id)
	if err := r.store.Set(ctx, name, e.Raw()); err != nil {
		return "", fmt.Errorf("set %s: %w", name, err)
	}
	return name, nil
}

// LoadEntity reads the entity document recorded for kind k and id.
func (r *Repo) LoadEntity(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	name := EntityName(k, id)
	raw, err := r.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return entity.Entity{}, domain.NewNoRecording("file", name)
		}
		return entity.Entity{}, fmt.Errorf("get %s: %w", name, err)
	}
	e, err := entity.Parse(k, raw)
	if err != nil {
		return entity.Entity{}, fmt.Errorf("read %s: %w", name, err)
	}
	return e, nil
}

// SaveBatch writes the list of kind k, replacing any earlier list.
func (r *Repo) SaveBatch(ctx context.Context, k kind.Kind, links []entity.Link) (string, error) {
	data, err := entity.EncodeBatch(k, links)
	if err != nil {
		return "", err
	}
	name := BatchName(k)
	if err := r.store.Set(ctx, name, data); err != nil {
		return "", fmt.Errorf("set %s: %w", name, err)
	}
	return name, nil
}

// LoadBatch reads the recorded list of kind k.
func (r *Repo) LoadBatch(ctx context.Context, k kind.Kind) ([]entity.Link, error) {
	name := BatchName(k)
	data, err := r.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.NewNoRecording("list file", name)
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	b, err := entity.DecodeBatch(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	links := make([]entity.Link, len(b.Links))
	for i, l := range b.Links {
		l.XMLName.Space = ""
		links[i] = l
	}
	return links, nil
}

// SaveSearch writes a search under the name derived from its terms.
func (r *Repo) SaveSearch(ctx context.Context, s *search.Search) (string, error) {
	data, err := search.Encode(s)
	if err != nil {
		return "", err
	}
	name := s.FileName()
	if err := r.store.Set(ctx, name, data); err != nil {
		return "", fmt.Errorf("set %s: %w", name, err)
	}
	return name, nil
}

// LoadSearch reads the search stored under the name of terms. The stored
// terms may differ from the ones asked for when two searches share a
// hash; callers compare them.
func (r *Repo) LoadSearch(ctx context.Context, terms search.Terms) (*search.Search, error) {
	return r.LoadSearchFile(ctx, search.FileName(terms), terms.String())
}

// LoadSearchFile reads a search by recording name. label names the search
// in the NoRecordingError.
func (r *Repo) LoadSearchFile(ctx context.Context, name, label string) (*search.Search, error) {
	if label == "" {
		label = name
	}
	data, err := r.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.NewNoRecording("search", label)
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	s, err := search.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return s, nil
}

// SaveUpdate writes the entity to the first free version slot and returns
// the name used. Earlier versions are never overwritten.
func (r *Repo) SaveUpdate(ctx context.Context, e entity.Entity) (string, error) {
	id, err := e.ID()
	if err != nil {
		return "", fmt.Errorf("name %s: %w", e.Kind().Class(), err)
	}

	allocMu.Lock()
	defer allocMu.Unlock()

	for v := 0; v < maxVersions; v++ {
		name := UpdateName(e.Kind(), id, v)
		ok, err := r.store.SetNX(ctx, name, e.Raw())
		if err != nil {
			return "", fmt.Errorf("setnx %s: %w", name, err)
		}
		if ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("no free update slot for %s", EntityName(e.Kind(), id))
}

// ListNames returns recording names matching a glob pattern.
func (r *Repo) ListNames(ctx context.Context, pattern string) ([]string, error) {
	names, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return names, nil
}

// Searches returns every recorded search, by recording name. Unreadable
// files are reported in the joined error; the rest are still returned.
func (r *Repo) Searches(ctx context.Context) (map[string]*search.Search, error) {
	names, err := r.ListNames(ctx, "search_*.xml")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*search.Search, len(names))
	var errs []error
	for _, name := range names {
		s, err := r.LoadSearchFile(ctx, name, "")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[name] = s
	}
	return out, errors.Join(errs...)
}

// Entities returns every recorded entity (update files excluded).
// Unreadable files are reported in the joined error.
func (r *Repo) Entities(ctx context.Context) ([]Recorded, error) {
	var (
		out  []Recorded
		errs []error
	)
	for _, k := range kind.All() {
		names, err := r.ListNames(ctx, k.Class()+"-*.xml")
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			id, ok := ParseEntityName(k, name)
			if !ok {
				continue
			}
			e, err := r.LoadEntity(ctx, k, id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, Recorded{Name: name, ID: id, Entity: e})
		}
	}
	return out, errors.Join(errs...)
}

// Recorded is an entity together with the name it is recorded under.
type Recorded struct {
	Name   string
	ID     string
	Entity entity.Entity
}

// ParseEntityName extracts the identifier from an entity recording name.
// Update names (with a version suffix) are rejected.
func ParseEntityName(k kind.Kind, name string) (string, bool) {
	prefix := k.Class() + "-"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".xml") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".xml")
	if id == "" {
		return "", false
	}
	if dot := strings.LastIndexByte(id, '.'); dot >= 0 && isDigits(id[dot+1:]) && len(id)-dot-1 >= 3 {
		return "", false
	}
	return id, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

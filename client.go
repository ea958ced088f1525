package clarityreplay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/db"
	"github.com/kailas-cloud/clarityreplay/internal/db/files"
	dbRedis "github.com/kailas-cloud/clarityreplay/internal/db/redis"
	"github.com/kailas-cloud/clarityreplay/internal/db/sqlite"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/repository/exchange"
	chiTransport "github.com/kailas-cloud/clarityreplay/internal/transport/chi"
	"github.com/kailas-cloud/clarityreplay/internal/transport/clarity"
	healthuc "github.com/kailas-cloud/clarityreplay/internal/usecase/health"
	"github.com/kailas-cloud/clarityreplay/internal/usecase/playback"
	"github.com/kailas-cloud/clarityreplay/internal/usecase/record"
)

const defaultReadinessTimeout = 10 * time.Second

var _ lims.API = (*Client)(nil)

// Client is the clarityreplay SDK entry point. Its methods mirror the
// Clarity REST API and behave according to the client's Mode.
type Client struct {
	mode      Mode
	api       lims.API
	store     db.Store
	healthSvc *healthuc.Service
	obs       *observer
}

// New creates a Client. The mode is taken from WithMode, or inferred from
// which of WithServer and a recording store option were given.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	mode := cfg.resolveMode()

	if err := validate(cfg, mode); err != nil {
		return nil, err
	}

	obs, err := newObserver(mode, cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if mode != ModeLive {
		store, err = createStore(cfg, mode == ModeRecord)
		if err != nil {
			return nil, err
		}
		if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("clarityreplay: recording store not ready: %w", err)
		}
	}

	c, err := wireClient(cfg, mode, store)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	c.obs = obs
	return c, nil
}

func validate(cfg *clientConfig, mode Mode) error {
	switch mode {
	case ModeLive, ModeRecord:
		if cfg.server == "" {
			return fmt.Errorf("clarityreplay: %s mode requires a server (use WithServer)", mode)
		}
		if mode == ModeRecord && cfg.driver == "" {
			return errors.New("clarityreplay: record mode requires a recording store (use WithRecordings, WithRedis, WithValkey or WithSQLite)")
		}
	case ModePlayback:
		if cfg.driver == "" {
			return errors.New("clarityreplay: playback mode requires a recording store (use WithRecordings, WithRedis, WithValkey or WithSQLite)")
		}
	default:
		return fmt.Errorf("clarityreplay: unknown mode %q", mode)
	}
	return nil
}

func createStore(cfg *clientConfig, create bool) (db.Store, error) {
	switch cfg.driver {
	case "files":
		s, err := files.NewStore(files.Config{Dir: cfg.dir, Create: create})
		if err != nil {
			return nil, fmt.Errorf("clarityreplay: open recordings: %w", err)
		}
		return s, nil
	case "redis", "valkey":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.addrs,
			Password:   cfg.dbPassword,
			KeyPrefix:  cfg.keyPrefix,
			Standalone: cfg.standalone,
		})
		if err != nil {
			return nil, fmt.Errorf("clarityreplay: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.NewStore(sqlite.Config{Path: cfg.sqlitePath})
		if err != nil {
			return nil, fmt.Errorf("clarityreplay: open sqlite archive: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("clarityreplay: unknown driver %q", cfg.driver)
	}
}

func wireClient(cfg *clientConfig, mode Mode, store db.Store) (*Client, error) {
	c := &Client{mode: mode, store: store}

	var (
		live     *clarity.Client
		upstream healthuc.UpstreamChecker
		pinger   healthuc.StorePinger
	)
	if mode != ModePlayback {
		var err error
		live, err = clarity.New(&clarity.Config{
			Server:         cfg.server,
			Username:       cfg.username,
			Password:       cfg.password,
			Timeout:        cfg.timeout,
			MaxConcurrency: cfg.maxConcurrency,
			HTTPClient:     cfg.httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("clarityreplay: %w", err)
		}
		upstream = live
	}
	if store != nil {
		pinger = store
	}

	// Internal layers log through zap; the SDK reports per operation via slog.
	logger := zap.NewNop()

	switch mode {
	case ModeLive:
		c.api = live
	case ModeRecord:
		c.api = record.New(live, exchange.New(store), logger)
	case ModePlayback:
		var popts []playback.Option
		if cfg.updatesDir != "" {
			updates, err := files.NewStore(files.Config{Dir: cfg.updatesDir, Create: true})
			if err != nil {
				return nil, fmt.Errorf("clarityreplay: open updates dir: %w", err)
			}
			popts = append(popts, playback.WithUpdates(exchange.New(updates)))
		}
		if cfg.strict {
			popts = append(popts, playback.WithStrict())
		}
		if cfg.cache {
			popts = append(popts, playback.WithCache())
		}
		c.api = playback.New(exchange.New(store), logger, popts...)
	}

	c.healthSvc = healthuc.New(pinger, upstream)
	return c, nil
}

// Mode reports how the client answers calls.
func (c *Client) Mode() Mode { return c.mode }

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Health checks the recording store and, outside playback, the server.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// Handler serves the client as a Clarity REST API under /api/v2/, plus
// /health and /metrics.
func (c *Client) Handler() http.Handler {
	return chiTransport.NewServer(c, c.healthSvc, nil).Handler()
}

// Retrieve fetches the entity at uri.
func (c *Client) Retrieve(ctx context.Context, uri string, k Kind) (Entity, error) {
	start := time.Now()
	e, err := c.api.Retrieve(ctx, uri, k)
	c.obs.observe("retrieve", start, err)
	return e, err
}

// Load fetches the entity of kind k with the given id.
func (c *Client) Load(ctx context.Context, k Kind, id string) (Entity, error) {
	start := time.Now()
	e, err := c.api.Load(ctx, k, id)
	c.obs.observe("load", start, err)
	return e, err
}

// LoadAll fetches every linked entity, in link order.
func (c *Client) LoadAll(ctx context.Context, k Kind, links []Link) ([]Entity, error) {
	start := time.Now()
	es, err := c.api.LoadAll(ctx, k, links)
	c.obs.observe("load_all", start, err)
	return es, err
}

// Find runs a search and returns links to the matches.
func (c *Client) Find(ctx context.Context, k Kind, params SearchParams) ([]Link, error) {
	start := time.Now()
	links, err := c.api.Find(ctx, k, params)
	c.obs.observe("find", start, err)
	return links, err
}

// ListAll returns links to every entity of kind k.
func (c *Client) ListAll(ctx context.Context, k Kind) ([]Link, error) {
	start := time.Now()
	links, err := c.api.ListAll(ctx, k)
	c.obs.observe("list_all", start, err)
	return links, err
}

// ListSome returns up to count links starting at index start.
func (c *Client) ListSome(ctx context.Context, k Kind, start, count int) ([]Link, error) {
	begin := time.Now()
	links, err := c.api.ListSome(ctx, k, start, count)
	c.obs.observe("list_some", begin, err)
	return links, err
}

// Create creates an entity on the server. Playback never creates.
func (c *Client) Create(ctx context.Context, e Entity) (Entity, error) {
	start := time.Now()
	out, err := c.api.Create(ctx, e)
	c.obs.observe("create", start, err)
	return out, err
}

// Update replaces an entity on the server.
func (c *Client) Update(ctx context.Context, e Entity) (Entity, error) {
	start := time.Now()
	out, err := c.api.Update(ctx, e)
	c.obs.observe("update", start, err)
	return out, err
}

// UpdateAll replaces several entities.
func (c *Client) UpdateAll(ctx context.Context, es []Entity) ([]Entity, error) {
	start := time.Now()
	out, err := c.api.UpdateAll(ctx, es)
	c.obs.observe("update_all", start, err)
	return out, err
}

// Delete removes an entity from the server. Playback never deletes.
func (c *Client) Delete(ctx context.Context, e Entity) error {
	start := time.Now()
	err := c.api.Delete(ctx, e)
	c.obs.observe("delete", start, err)
	return err
}

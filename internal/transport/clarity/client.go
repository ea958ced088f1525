// Package clarity is the HTTP client for a live Clarity LIMS REST API.
package clarity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
	"github.com/kailas-cloud/clarityreplay/internal/domain/entity"
	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
	"github.com/kailas-cloud/clarityreplay/internal/domain/lims"
	"github.com/kailas-cloud/clarityreplay/internal/domain/search"
	"github.com/kailas-cloud/clarityreplay/internal/metrics"
)

var _ lims.API = (*Client)(nil)

// APIPath is the REST root below the server address.
const APIPath = "/api/v2/"

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxConcurrency = 4
	maxResponseBytes      = 64 << 20
	// maxPages stops a next-page loop on a misbehaving server.
	maxPages = 10000
)

// Config holds the server settings.
type Config struct {
	// Server is the base address, e.g. https://lims.example.org. A trailing
	// /api/v2 is accepted.
	Server   string
	Username string
	Password string
	Timeout  time.Duration
	// MaxConcurrency bounds the parallel GETs of LoadAll.
	MaxConcurrency int
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// Client implements lims.API over HTTP.
type Client struct {
	base     *url.URL
	http     *http.Client
	username string
	password string
	maxConc  int
	logger   *zap.Logger
}

// New creates a Clarity client.
func New(cfg *Config) (*Client, error) {
	if cfg.Server == "" {
		return nil, errors.New("clarity server is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.Server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server %q: %w", cfg.Server, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server %q must be an absolute URL", cfg.Server)
	}
	u.Path = strings.TrimSuffix(u.Path, strings.TrimSuffix(APIPath, "/")) + APIPath

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	conc := cfg.MaxConcurrency
	if conc <= 0 {
		conc = defaultMaxConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		base:     u,
		http:     hc,
		username: cfg.Username,
		password: cfg.Password,
		maxConc:  conc,
		logger:   logger,
	}, nil
}

// BaseURL returns the REST root, ending in /api/v2/.
func (c *Client) BaseURL() string { return c.base.String() }

// Retrieve fetches the entity at uri. Relative URIs resolve against the
// REST root.
func (c *Client) Retrieve(ctx context.Context, uri string, k kind.Kind) (entity.Entity, error) {
	u, err := c.resolve(uri)
	if err != nil {
		return entity.Entity{}, err
	}
	body, err := c.do(ctx, http.MethodGet, u, k, nil)
	if err != nil {
		return entity.Entity{}, err
	}
	return entity.Parse(k, body)
}

// Load fetches {path}/{id}.
func (c *Client) Load(ctx context.Context, k kind.Kind, id string) (entity.Entity, error) {
	return c.Retrieve(ctx, k.Path()+"/"+url.PathEscape(id), k)
}

// LoadAll fetches every link with at most MaxConcurrency requests in
// flight. Results keep the order of links.
func (c *Client) LoadAll(ctx context.Context, k kind.Kind, links []entity.Link) ([]entity.Entity, error) {
	out := make([]entity.Entity, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConc)
	for i, l := range links {
		g.Go(func() error {
			var (
				e   entity.Entity
				err error
			)
			if l.URI != "" {
				e, err = c.Retrieve(gctx, l.URI, k)
			} else {
				e, err = c.Load(gctx, k, l.LimsID)
			}
			if err != nil {
				return err
			}
			out[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Find runs a search: GET {path}?param=value&param=value2, following
// next-page links.
func (c *Client) Find(ctx context.Context, k kind.Kind, params search.Params) ([]entity.Link, error) {
	u := c.base.JoinPath(k.Path())
	u.RawQuery = encodeParams(params)
	return c.collect(ctx, k, u, -1)
}

// ListAll returns every link of kind k, following next-page links.
func (c *Client) ListAll(ctx context.Context, k kind.Kind) ([]entity.Link, error) {
	return c.collect(ctx, k, c.base.JoinPath(k.Path()), -1)
}

// ListSome returns up to count links starting at start-index start.
func (c *Client) ListSome(ctx context.Context, k kind.Kind, start, count int) ([]entity.Link, error) {
	if count <= 0 {
		return []entity.Link{}, nil
	}
	u := c.base.JoinPath(k.Path())
	u.RawQuery = url.Values{"start-index": {strconv.Itoa(max(start, 0))}}.Encode()
	return c.collect(ctx, k, u, count)
}

// Create POSTs the entity document to {path} and returns the server copy.
func (c *Client) Create(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	body, err := c.do(ctx, http.MethodPost, c.base.JoinPath(e.Kind().Path()), e.Kind(), e.Raw())
	if err != nil {
		return entity.Entity{}, err
	}
	return entity.Parse(e.Kind(), body)
}

// Update PUTs the entity document to its URI and returns the server copy.
func (c *Client) Update(ctx context.Context, e entity.Entity) (entity.Entity, error) {
	u, err := c.entityURL(e)
	if err != nil {
		return entity.Entity{}, err
	}
	body, err := c.do(ctx, http.MethodPut, u, e.Kind(), e.Raw())
	if err != nil {
		return entity.Entity{}, err
	}
	return entity.Parse(e.Kind(), body)
}

// UpdateAll updates each entity in turn and stops at the first failure.
func (c *Client) UpdateAll(ctx context.Context, es []entity.Entity) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(es))
	for _, e := range es {
		updated, err := c.Update(ctx, e)
		if err != nil {
			return out, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// Delete sends DELETE to the entity URI.
func (c *Client) Delete(ctx context.Context, e entity.Entity) error {
	u, err := c.entityURL(e)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, u, e.Kind(), nil)
	return err
}

// HealthCheck verifies that the REST root answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, c.base, kind.Kind{}, nil); err != nil {
		return fmt.Errorf("clarity root: %w", err)
	}
	return nil
}

func (c *Client) collect(ctx context.Context, k kind.Kind, u *url.URL, limit int) ([]entity.Link, error) {
	var links []entity.Link
	for page := 0; u != nil; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("list %s: more than %d pages", k.Batch(), maxPages)
		}
		body, err := c.do(ctx, http.MethodGet, u, k, nil)
		if err != nil {
			return nil, err
		}
		b, err := entity.DecodeBatch(body)
		if err != nil {
			return nil, err
		}
		for _, l := range b.Links {
			l.XMLName.Space = ""
			links = append(links, l)
			if limit > 0 && len(links) == limit {
				return links, nil
			}
		}
		u = nil
		if b.NextPage != nil && b.NextPage.URI != "" {
			if u, err = c.resolve(b.NextPage.URI); err != nil {
				return nil, err
			}
		}
	}
	if links == nil {
		links = []entity.Link{}
	}
	return links, nil
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, k kind.Kind, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")
	if payload != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	kindLabel := k.Name()
	if kindLabel == "" {
		kindLabel = "root"
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	metrics.ClarityRequestDuration.WithLabelValues(kindLabel, method).Observe(duration.Seconds())
	if err != nil {
		metrics.ClarityRequestsTotal.WithLabelValues(kindLabel, method, "error").Inc()
		c.logger.Error("Clarity request failed",
			zap.String("method", method),
			zap.String("url", u.Redacted()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	metrics.ClarityRequestsTotal.WithLabelValues(kindLabel, method, strconv.Itoa(resp.StatusCode)).Inc()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}

	c.logger.Debug("Clarity request completed",
		zap.String("method", method),
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration),
		zap.Int("bytes", len(data)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, ParseException(resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) resolve(uri string) (*url.URL, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidURI, err)
	}
	return c.base.ResolveReference(ref), nil
}

func (c *Client) entityURL(e entity.Entity) (*url.URL, error) {
	if e.URI() != "" {
		return c.resolve(e.URI())
	}
	id, err := e.ID()
	if err != nil {
		return nil, err
	}
	return c.base.JoinPath(e.Kind().Path(), id), nil
}

// encodeParams renders search parameters with sorted names and values
// in the order given, repeating a name for each value.
func encodeParams(params search.Params) string {
	names := make([]string, 0, len(params))
	for p := range params {
		names = append(names, p)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, p := range names {
		for _, v := range params[p] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(p))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

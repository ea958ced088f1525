package clarityreplay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Mode selects how a Client answers calls.
type Mode string

// Mode constants.
const (
	ModeLive     Mode = "live"
	ModeRecord   Mode = "record"
	ModePlayback Mode = "playback"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	mode Mode

	server         string
	username       string
	password       string
	timeout        time.Duration
	maxConcurrency int
	httpClient     *http.Client

	driver     string // "files", "redis", "valkey" or "sqlite"
	dir        string
	addrs      []string
	dbPassword string
	sqlitePath string
	keyPrefix  string
	standalone bool

	updatesDir string
	strict     bool
	cache      bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// resolveMode picks the mode when none was given: a store without a
// server plays back, a store with a server records, a server alone is live.
func (c *clientConfig) resolveMode() Mode {
	if c.mode != "" {
		return c.mode
	}
	switch {
	case c.driver != "" && c.server == "":
		return ModePlayback
	case c.driver != "":
		return ModeRecord
	default:
		return ModeLive
	}
}

// WithMode sets the mode explicitly.
func WithMode(m Mode) Option {
	return optionFunc(func(c *clientConfig) {
		c.mode = m
	})
}

// WithServer sets the Clarity server and credentials.
// Required for live and record modes.
func WithServer(server, username, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.server = server
		c.username = username
		c.password = password
	})
}

// WithTimeout bounds each HTTP request to the server. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.timeout = d
	})
}

// WithMaxConcurrency bounds the parallel requests of LoadAll. Default: 4.
func WithMaxConcurrency(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxConcurrency = n
	})
}

// WithHTTPClient replaces the HTTP client used to reach the server.
func WithHTTPClient(hc *http.Client) Option {
	return optionFunc(func(c *clientConfig) {
		c.httpClient = hc
	})
}

// WithRecordings keeps recordings as files in dir, one document per file.
func WithRecordings(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "files"
		c.dir = dir
	})
}

// WithRedis keeps recordings in a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.dbPassword = password
	})
}

// WithValkey keeps recordings in a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.dbPassword = password
	})
}

// WithStandalone disables cluster topology discovery for Redis/Valkey.
func WithStandalone() Option {
	return optionFunc(func(c *clientConfig) {
		c.standalone = true
	})
}

// WithKeyPrefix namespaces recordings in Redis/Valkey.
// Default: "clarityreplay:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithSQLite keeps recordings in a single SQLite file.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "sqlite"
		c.sqlitePath = path
	})
}

// WithUpdates writes entities passed to Update and UpdateAll during
// playback to dir as numbered update recordings.
func WithUpdates(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.updatesDir = dir
	})
}

// WithStrict makes writes during playback fail with ErrWriteBlocked
// instead of being dropped.
func WithStrict() Option {
	return optionFunc(func(c *clientConfig) {
		c.strict = true
	})
}

// WithCache keeps decoded recordings in memory during playback.
func WithCache() Option {
	return optionFunc(func(c *clientConfig) {
		c.cache = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}

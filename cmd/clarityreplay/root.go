package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/clarityreplay/internal/config"
	"github.com/kailas-cloud/clarityreplay/internal/db"
	"github.com/kailas-cloud/clarityreplay/internal/db/files"
	dbRedis "github.com/kailas-cloud/clarityreplay/internal/db/redis"
	"github.com/kailas-cloud/clarityreplay/internal/db/sqlite"
	logpkg "github.com/kailas-cloud/clarityreplay/internal/logger"
	"github.com/kailas-cloud/clarityreplay/internal/transport/clarity"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	env        string
	configPath string
	storeDir   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "clarityreplay",
		Short: "Record and replay Clarity LIMS API traffic",
		Long: `clarityreplay captures the XML a Clarity LIMS server returns and serves it
back later, so code written against Clarity can be tested without a server.

Configuration is read from config/<env>.yaml (or --config) with ${VAR}
substitution; a .env file in the working directory is loaded first.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "environment (selects config/<env>.yaml and the log format)")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (overrides --env lookup)")
	root.PersistentFlags().StringVar(&opts.storeDir, "dir", "", "recording directory (files driver)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(opts),
		newFetchCmd(opts),
		newSearchesCmd(opts),
		newCatalogCmd(opts),
		newVersionCmd(),
	)
	return root
}

// load resolves configuration and the logger for a command run.
func (o *globalOptions) load() (config.Config, *zap.Logger, error) {
	var (
		cfg config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load(o.env)
	}
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	if o.storeDir != "" {
		cfg.Store.Driver = config.DriverFiles
		cfg.Store.Dir = o.storeDir
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := logpkg.NewLogger(logEnv(o.env), level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

// logEnv maps environments without a logger profile of their own to the
// console format.
func logEnv(env string) string {
	switch env {
	case "prod", "local", "dev", "docker", "ci":
		return env
	default:
		return "local"
	}
}

// openStore connects the recording store selected by cfg and waits for it.
// create makes a missing files directory instead of failing.
func openStore(ctx context.Context, cfg config.StoreConfig, create bool) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverFiles:
		store, err = files.NewStore(files.Config{Dir: cfg.Dir, Create: create})
	case config.DriverRedis, config.DriverValkey:
		// Only plain string commands are used, so one client serves both.
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Addrs,
			Username:  cfg.Username,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
	case config.DriverSQLite:
		store, err = sqlite.NewStore(sqlite.Config{Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s store not ready: %w", cfg.Driver, err)
	}
	return store, nil
}

func newClarityClient(cfg config.ClarityConfig, logger *zap.Logger) (*clarity.Client, error) {
	client, err := clarity.New(&clarity.Config{
		Server:         cfg.Server,
		Username:       cfg.Username,
		Password:       cfg.Password,
		Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create clarity client: %w", err)
	}
	return client, nil
}

package cli

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/config"
	"github.com/clean-dependency-project/dlserver/internal/logger"
	"github.com/clean-dependency-project/dlserver/internal/query"
	"github.com/clean-dependency-project/dlserver/internal/storage"
)

// environment is the state shared by every command: the effective
// configuration, the active catalog source and the logger.
type environment struct {
	cfg    *config.Config
	source catalog.Source
	logger *slog.Logger
}

// loadEnvironment reads the configuration file and applies the global flag
// overrides on top of it.
func loadEnvironment(c *cli.Context) (*environment, error) {
	cfg, err := config.LoadOrDefault(c.String("config"))
	if err != nil {
		return nil, err
	}
	applyOverrides(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := cfg.Source()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format, c.App.ErrWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	return &environment{
		cfg:    cfg,
		source: source,
		logger: log,
	}, nil
}

func applyOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.IsSet("api") {
		cfg.Server.API = c.String("api")
	}
	if c.IsSet("db") {
		cfg.Storage.DatabasePath = c.String("db")
	}
	if c.IsSet("db-fallback") {
		cfg.Storage.Fallback = config.ToBool(c.String("db-fallback"))
	}
	if c.IsSet("hostname") {
		cfg.Server.DownloadHostname = c.String("hostname")
	}
}

// openStore opens the records database of the active source. Readers open it
// read-only so a missing database is reported instead of created.
func (e *environment) openStore(readOnly bool) (*storage.DB, error) {
	path := e.cfg.DatabasePath(e.source)
	db, err := storage.InitDB(storage.Config{
		DatabasePath: path,
		LogLevel:     e.cfg.Storage.LogLevel,
		ReadOnly:     readOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open records database: %w", err)
	}
	e.logger.Debug("opened records database", "path", path, "read_only", readOnly)
	return db, nil
}

// closeStore closes db, logging instead of failing since it runs during cleanup.
func (e *environment) closeStore(db *storage.DB) {
	if err := db.Close(); err != nil {
		e.logger.Warn("failed to close database", "error", err)
	}
}

// newService builds the catalog cache and resolution service over db.
func (e *environment) newService(db *storage.DB) (*catalog.Cache, *query.Service) {
	cache := catalog.NewCache(db, e.source, e.logger)
	projector := query.NewProjector(e.source, e.cfg.Server.BitstreamPath)
	return cache, query.NewService(cache, e.source, projector, e.logger)
}

// criteriaParams collects the query flags that were given into request
// parameters. Flags left unset are omitted so defaults apply as they do
// over HTTP.
func criteriaParams(c *cli.Context, names ...string) url.Values {
	for _, m := range query.Modes {
		names = append(names, m.String())
	}
	names = append(names, "offset")

	params := url.Values{}
	for _, name := range names {
		if c.IsSet(name) {
			params.Set(name, c.String(name))
		}
	}
	return params
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/config"
	"github.com/clean-dependency-project/dlserver/internal/platform"
	"github.com/clean-dependency-project/dlserver/internal/server"
	"github.com/clean-dependency-project/dlserver/internal/sitegen"
	"github.com/clean-dependency-project/dlserver/internal/upstream"
)

// serveCommand implements the serve command.
func serveCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	db, err := env.openStore(true)
	if err != nil {
		env.logger.Error("failed to open records database", "error", err)
		return err
	}
	defer env.closeStore(db)

	cache, service := env.newService(db)
	if _, err := cache.Get(c.Context); err != nil {
		// /readyz reports the failure until a later load succeeds
		env.logger.Warn("initial catalog load failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPath := env.cfg.DatabasePath(env.source)
	if !c.Bool("no-watch") && dbPath != ":memory:" {
		watcher, err := catalog.NewWatcher(dbPath, cache, env.logger)
		if err != nil {
			env.logger.Warn("database changes will be picked up on request only", "error", err)
		} else {
			defer func() { _ = watcher.Close() }()
			go func() {
				if err := watcher.Run(ctx); err != nil {
					env.logger.Warn("database watcher stopped", "error", err)
				}
			}()
		}
	}

	listen := env.cfg.Server.Listen
	if c.IsSet("listen") {
		listen = c.String("listen")
	}

	srv := server.New(service, server.Options{
		SourceURL: func(artifactID string) string {
			return env.cfg.DownloadURL(env.source, artifactID)
		},
		BitstreamPath:    env.cfg.Server.BitstreamPath,
		DownloadHostname: env.cfg.Server.DownloadHostname,
		Ready: func(ctx context.Context) error {
			_, err := cache.Get(ctx)
			return err
		},
		Version: c.App.Version,
	}, env.logger)

	env.logger.Info("starting download server",
		"listen", listen,
		"api", env.source.String(),
		"database", dbPath)

	return srv.ListenAndServe(ctx, listen)
}

// findCommand implements the find command.
func findCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	params := criteriaParams(c, "os", "stability")
	if !params.Has("os") {
		params.Set("os", platform.CurrentPlatform().ID)
	}

	db, err := env.openStore(true)
	if err != nil {
		return err
	}
	defer env.closeStore(db)

	_, service := env.newService(db)
	rec, err := service.ResolveOne(c.Context, params)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}

	if c.String("output") == "json" {
		return writeJSON(c.App.Writer, rec)
	}
	return printRecord(c.App.Writer, rec)
}

// findAllCommand implements the findall command.
func findAllCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	db, err := env.openStore(true)
	if err != nil {
		return err
	}
	defer env.closeStore(db)

	_, service := env.newService(db)
	results, err := service.ResolveAll(c.Context, criteriaParams(c))
	if err != nil {
		return fmt.Errorf("findall: %w", err)
	}

	if c.String("output") == "json" {
		return writeJSON(c.App.Writer, results)
	}
	return printAll(c.App.Writer, results)
}

// releasesCommand implements the releases command.
func releasesCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	db, err := env.openStore(true)
	if err != nil {
		return err
	}
	defer env.closeStore(db)

	_, service := env.newService(db)
	labels, err := service.Releases(c.Context)
	if err != nil {
		return fmt.Errorf("releases: %w", err)
	}

	if c.String("output") == "json" {
		if labels == nil {
			labels = []string{}
		}
		return writeJSON(c.App.Writer, labels)
	}
	for _, label := range labels {
		if _, err := fmt.Fprintln(c.App.Writer, label); err != nil {
			return err
		}
	}
	return nil
}

// fetchCommand implements the fetch command.
func fetchCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	baseURL := env.cfg.UpstreamURL(env.source)
	if c.IsSet("url") {
		baseURL = c.String("url")
	}
	client, err := upstream.NewClient(upstream.Config{
		Source:    env.source,
		BaseURL:   baseURL,
		AppID:     env.cfg.Upstream.GirderAppID,
		UserAgent: env.cfg.Upstream.UserAgent,
		Timeout:   env.cfg.Upstream.GetUpstreamTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	db, err := env.openStore(false)
	if err != nil {
		return err
	}
	defer env.closeStore(db)

	env.logger.Info("fetching build records", "api", env.source.String(), "url", baseURL)
	result, err := upstream.Ingest(c.Context, client, db, env.logger)
	if err != nil {
		env.logger.Error("fetch failed", "error", err)
		return fmt.Errorf("fetch: %w", err)
	}

	if c.String("output") == "json" {
		return writeJSON(c.App.Writer, result)
	}
	_, err = fmt.Fprintf(c.App.Writer, "fetched %d records: %d inserted, %d skipped\n",
		result.Fetched, result.Inserted, result.Skipped)
	return err
}

// sitegenCommand implements the sitegen command.
func sitegenCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	db, err := env.openStore(true)
	if err != nil {
		return err
	}
	defer env.closeStore(db)

	_, service := env.newService(db)
	generator := sitegen.NewGenerator(service, env.logger)

	opts := sitegen.GenerateOptions{
		OutputDir: c.String("out"),
		DryRun:    c.Bool("dry-run"),
		HostURL:   env.cfg.Server.DownloadHostname,
		Params:    criteriaParams(c),
	}
	if err := generator.Generate(c.Context, opts); err != nil {
		env.logger.Error("site generation failed", "error", err)
		return err
	}
	return nil
}

// configCommand prints or saves the effective configuration.
func configCommand(c *cli.Context) error {
	env, err := loadEnvironment(c)
	if err != nil {
		return err
	}

	if path := c.String("write"); path != "" {
		if err := config.SaveConfig(env.cfg, path); err != nil {
			return err
		}
		env.logger.Info("configuration saved", "path", path)
		return nil
	}
	return env.cfg.Encode(c.App.Writer)
}

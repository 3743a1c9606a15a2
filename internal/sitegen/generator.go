package sitegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// ErrOutputDirRequired is returned when Generate has nowhere to write.
var ErrOutputDirRequired = errors.New("output directory is required")

// Generator orchestrates the static download page generation.
// Following Dave Cheney's principle: "Accept interfaces, return structs"
type Generator struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewGenerator creates a new Generator with the provided Resolver.
func NewGenerator(resolver Resolver, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		resolver: resolver,
		logger:   logger,
	}
}

// GenerateOptions contains options for site generation.
type GenerateOptions struct {
	OutputDir string
	DryRun    bool

	// HostURL prefixes download links, e.g. "https://download.example.org".
	HostURL string

	// Params selects the builds shown (mode and offset); empty means the latest.
	Params url.Values
}

// Generate resolves every platform and writes the static site.
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) error {
	if opts.OutputDir == "" {
		return ErrOutputDirRequired
	}

	g.logger.Info("starting site generation", "output_dir", opts.OutputDir, "dry_run", opts.DryRun)

	results, err := g.resolver.ResolveAll(ctx, opts.Params)
	if err != nil {
		return fmt.Errorf("failed to resolve builds: %w", err)
	}

	model := BuildPageModel(results, opts.HostURL)
	offered := 0
	for _, p := range model.Platforms {
		if p.HasBuilds() {
			offered++
		}
	}
	g.logger.Info("built page model", "platforms", len(model.Platforms), "platforms_with_builds", offered)

	if offered == 0 {
		g.logger.Warn("no builds resolved for any platform")
	}

	if opts.DryRun {
		g.logger.Info("dry-run mode: skipping file writes")
		return nil
	}

	changed, err := renderSite(model, results, opts.OutputDir, g.logger)
	if err != nil {
		return fmt.Errorf("failed to render site: %w", err)
	}

	g.logger.Info("site generation completed successfully", "files_changed", changed)
	return nil
}

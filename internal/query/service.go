package query

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/clean-dependency-project/dlserver/internal/catalog"
	"github.com/clean-dependency-project/dlserver/internal/platform"
	"github.com/clean-dependency-project/dlserver/internal/version"
)

// Snapshotter provides the current catalog snapshot.
type Snapshotter interface {
	Get(ctx context.Context) (*catalog.Catalog, error)
}

// AllResults maps platform, then stability (release or nightly), to the
// matching record. Unmatched entries are nil.
type AllResults map[string]map[Stability]*ResolvedRecord

// Service resolves requests against a cached catalog.
type Service struct {
	cache     Snapshotter
	caps      Capabilities
	projector Projector
	logger    *slog.Logger
}

// NewService creates a resolution service over cache.
func NewService(cache Snapshotter, source catalog.Source, projector Projector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:     cache,
		caps:      CapabilitiesOf(source),
		projector: projector,
		logger:    logger,
	}
}

// ResolveOne parses params and returns the single best matching record.
func (s *Service) ResolveOne(ctx context.Context, params url.Values) (*ResolvedRecord, error) {
	c, err := Parse(params, s.caps)
	if err != nil {
		return nil, err
	}

	cat, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	rec, err := Resolve(cat, c)
	if err != nil {
		s.logger.Debug("no record resolved",
			"os", c.Platform,
			"stability", string(c.Stability),
			"mode", c.Mode.String(),
			"value", c.Value,
			"offset", c.Offset,
			"error", err)
		return nil, err
	}
	return s.projector.Project(&rec), nil
}

// ResolveAll resolves the release and nightly record of every supported
// platform for the mode and offset in params.
func (s *Service) ResolveAll(ctx context.Context, params url.Values) (AllResults, error) {
	c, err := ParseAll(params, s.caps)
	if err != nil {
		return nil, err
	}

	cat, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	results := make(AllResults, len(platform.Supported()))
	for _, id := range platform.IDs() {
		byStability := make(map[Stability]*ResolvedRecord, 2)
		for _, st := range []Stability{StabilityRelease, StabilityNightly} {
			c.Platform = id
			c.Stability = st
			rec, err := Resolve(cat, c)
			switch {
			case err == nil:
				byStability[st] = s.projector.Project(&rec)
			case errors.Is(err, ErrNotFound):
				byStability[st] = nil
			default:
				return nil, err
			}
		}
		results[id] = byStability
	}
	return results, nil
}

// Releases returns the distinct release labels in the catalog, newest first.
func (s *Service) Releases(ctx context.Context) ([]string, error) {
	cat, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var labels []string
	for _, r := range cat.Records {
		if r.IsRelease() && !seen[r.Stability] {
			seen[r.Stability] = true
			labels = append(labels, r.Stability)
		}
	}
	return version.SortDescending(labels), nil
}

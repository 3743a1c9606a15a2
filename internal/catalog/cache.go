package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clean-dependency-project/dlserver/internal/storage"
)

// ErrStoreUnavailable is returned when the persisted catalog cannot be read or parsed.
var ErrStoreUnavailable = errors.New("catalog store unavailable")

// Store is the persistence collaborator the cache reads from.
type Store interface {
	// CountBuilds returns the number of stored build records.
	CountBuilds(ctx context.Context) (int64, error)

	// ListBuilds returns all rows ordered by revision DESC, build_date DESC.
	ListBuilds(ctx context.Context) ([]storage.BuildRow, error)
}

// Cache holds the current catalog snapshot and reloads it when the persisted
// record count changes. Snapshots are replaced whole, never modified, so a
// caller holding one always sees a consistent catalog.
type Cache struct {
	store  Store
	source Source
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[Catalog]
	reload  sync.Mutex
}

// NewCache creates a cache over store whose rows are decoded with source.
func NewCache(store Store, source Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the current snapshot, reloading it first when the store's
// record count no longer matches.
func (c *Cache) Get(ctx context.Context) (*Catalog, error) {
	count, err := c.store.CountBuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if snap := c.current.Load(); snap != nil && snap.Count == count {
		return snap, nil
	}

	c.reload.Lock()
	defer c.reload.Unlock()

	// another caller may have reloaded while we waited
	if snap := c.current.Load(); snap != nil && snap.Count == count {
		return snap, nil
	}

	snap, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.current.Store(snap)

	c.logger.Info("catalog reloaded",
		"source", c.source.String(),
		"records", snap.Count)
	return snap, nil
}

// Snapshot returns the last loaded snapshot without checking the store.
// It returns nil before the first successful Get.
func (c *Cache) Snapshot() *Catalog {
	return c.current.Load()
}

func (c *Cache) load(ctx context.Context) (*Catalog, error) {
	rows, err := c.store.ListBuilds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := c.source.ParseRecord([]byte(row.Record))
		if err != nil {
			c.logger.Error("failed to parse stored record", "item_id", row.ItemID, "error", err)
			return nil, fmt.Errorf("%w: item %s: %v", ErrStoreUnavailable, row.ItemID, err)
		}
		records = append(records, rec)
	}

	return &Catalog{
		Records:  records,
		Count:    int64(len(rows)),
		LoadedAt: c.now(),
	}, nil
}

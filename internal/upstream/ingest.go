package upstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/clean-dependency-project/dlserver/internal/storage"
)

// Inserter stores build rows, ignoring rows whose item id already exists.
type Inserter interface {
	InsertBuilds(ctx context.Context, rows []storage.BuildRow) (int64, error)
}

// IngestResult summarizes one fetch.
type IngestResult struct {
	Fetched  int   `json:"fetched"`
	Skipped  int   `json:"skipped"`
	Inserted int64 `json:"inserted"`
}

// Ingest fetches every record from client and inserts the new ones into store.
// Records the source cannot turn into a row are skipped.
func Ingest(ctx context.Context, client Client, store Inserter, logger *slog.Logger) (IngestResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	source := client.Source()

	raws, err := client.FetchRecords(ctx)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to fetch %s records: %w", source, err)
	}

	result := IngestResult{Fetched: len(raws)}
	rows := make([]storage.BuildRow, 0, len(raws))
	for _, raw := range raws {
		row, err := source.RowFromRaw(raw)
		if err != nil {
			result.Skipped++
			logger.Debug("skipping upstream record", "source", source.String(), "error", err)
			continue
		}
		rows = append(rows, row)
	}

	inserted, err := store.InsertBuilds(ctx, rows)
	if err != nil {
		return result, fmt.Errorf("failed to store %s records: %w", source, err)
	}
	result.Inserted = inserted

	logger.Info("upstream records ingested",
		"source", source.String(),
		"fetched", result.Fetched,
		"skipped", result.Skipped,
		"inserted", result.Inserted)
	return result, nil
}

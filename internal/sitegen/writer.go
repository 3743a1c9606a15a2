package sitegen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"log/slog"
)

// writeFileIfChanged writes content to a file only if it differs from existing content.
// Returns true if the file was written, false if it was unchanged.
// This ensures idempotent generation - regenerating with the same data produces no changes.
func writeFileIfChanged(path string, content []byte, logger *slog.Logger) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		logger.Debug("file unchanged, skipping", "path", path)
		return false, nil
	}

	// written beside the target, then renamed into place
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return false, fmt.Errorf("failed to replace file: %w", err)
	}

	logger.Debug("file written", "path", path)
	return true, nil
}

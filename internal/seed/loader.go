// Package seed loads flight datasets from JSON files into the store.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/iliyamo/flights-api/internal/logger"
)

// Store is the part of the flight repository the loader needs.
type Store interface {
	Import(ctx context.Context, records []map[string]any) (int, error)
	Count(ctx context.Context) (int64, error)
}

// LoadFile reads a JSON array of flight objects from path and
// insert-or-replaces each one. It returns the number of records written.
func LoadFile(ctx context.Context, store Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("seed: read %s: %w", path, err)
	}
	records, err := decode(data)
	if err != nil {
		return 0, fmt.Errorf("seed: %s: %w", path, err)
	}
	n, err := store.Import(ctx, records)
	if err != nil {
		return n, fmt.Errorf("seed: %s: %w", path, err)
	}
	return n, nil
}

func decode(data []byte) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("expected a JSON array of objects")
	}
	var records []map[string]any
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, err
	}
	for i, r := range records {
		if r == nil {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
	}
	return records, nil
}

// LoadIfEmpty loads path only when the store holds no flights and the file
// exists. It reports whether anything was loaded.
func LoadIfEmpty(ctx context.Context, store Store, path string, log logger.Logger) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		log.Info("seed file not found, skipping", "path", path)
		return false, nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		log.Debug("store already populated, skipping seed", "flights", n)
		return false, nil
	}
	loaded, err := LoadFile(ctx, store, path)
	if err != nil {
		return false, err
	}
	log.Info("seeded flights", "path", path, "count", loaded)
	return true, nil
}

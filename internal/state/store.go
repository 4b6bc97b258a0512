// Package state persists learned action statistics between runs.
package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-remedy/internal/engine"
	"github.com/miradorstack/mirador-remedy/internal/models"
)

// Store loads and saves the flat registry records.
type Store interface {
	Load(ctx context.Context) ([]models.ActionRecord, error)
	Save(ctx context.Context, records []models.ActionRecord) error
}

// NopStore keeps nothing. Load always returns no records.
type NopStore struct{}

// Load returns no records.
func (NopStore) Load(context.Context) ([]models.ActionRecord, error) { return nil, nil }

// Save discards records.
func (NopStore) Save(context.Context, []models.ActionRecord) error { return nil }

// Restore loads persisted records into reg. Records for actions that are no
// longer registered are logged and dropped.
func Restore(ctx context.Context, store Store, reg *engine.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load action state: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	skipped := reg.Restore(records)
	for _, name := range skipped {
		logger.Warn("dropping persisted stats for unknown action", slog.String("action", name))
	}
	logger.Info("restored action statistics", slog.Int("actions", len(records)-len(skipped)))
	return nil
}

// Persist saves the registry's current records.
func Persist(ctx context.Context, store Store, reg *engine.Registry) error {
	if err := store.Save(ctx, reg.Records()); err != nil {
		return fmt.Errorf("save action state: %w", err)
	}
	return nil
}

package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fencetrack/pkg/db"
	"fencetrack/pkg/store"
)

const catalogStateKey = "catalog_mtime"

// DefaultRetention is how long tracking history is kept.
const DefaultRetention = 30 * 24 * time.Hour

// Report summarizes a maintenance run.
type Report struct {
	CatalogChanged bool
	EventsPruned   int64
}

// Run executes all maintenance tasks: catalog change detection and history pruning.
// Failures are logged; startup is never blocked by them.
func Run(ctx context.Context, s store.StateStore, d *db.DB, catalogPath string, retention time.Duration) Report {
	slog.Info("Starting database maintenance...")
	var rep Report

	changed, err := checkCatalog(ctx, s, catalogPath)
	if err != nil {
		slog.Error("Catalog check failed", "error", err)
	} else {
		rep.CatalogChanged = changed
		slog.Info("Catalog check completed", "path", catalogPath, "changed", changed)
	}

	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := d.PruneEvents(retention)
	if err != nil {
		slog.Error("History pruning failed", "error", err)
	} else {
		rep.EventsPruned = n
		slog.Info("History pruning completed", "removed", n)
	}

	return rep
}

// checkCatalog compares the catalog file mtime with the one seen last run.
func checkCatalog(ctx context.Context, s store.StateStore, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat catalog: %w", err)
	}

	mtime := info.ModTime().UTC().Format(time.RFC3339)
	stored, found := s.GetState(ctx, catalogStateKey)
	if found && stored == mtime {
		return false, nil
	}

	if err := s.SetState(ctx, catalogStateKey, mtime); err != nil {
		return false, fmt.Errorf("failed to update state: %w", err)
	}
	return true, nil
}

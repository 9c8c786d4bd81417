package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/Serge-Moskalenko/SaaS-project/internal/server/metrics"
)

// CleanupService periodically removes staged files that outlived their
// request, e.g. after a crash mid-upload.
type CleanupService struct {
	store    Store
	interval time.Duration
	maxAge   time.Duration
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(store Store, interval, maxAge time.Duration) *CleanupService {
	return &CleanupService{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (cs *CleanupService) Run(ctx context.Context) error {
	slog.Info("staging cleanup started", "interval", cs.interval, "max_age", cs.maxAge)

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	cs.Sweep()

	for {
		select {
		case <-ticker.C:
			cs.Sweep()
		case <-ctx.Done():
			slog.Info("staging cleanup stopping")
			return nil
		}
	}
}

// Sweep releases every stale staged file and returns how many were removed.
func (cs *CleanupService) Sweep() int {
	stale, err := cs.store.Stale(cs.maxAge)
	if err != nil {
		slog.Error("failed to list stale staged files", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	var cleaned, failed int
	for _, id := range stale {
		if err := cs.store.Release(id); err != nil {
			slog.Error("failed to release staged file", "staged_id", id, "error", err)
			failed++
			continue
		}
		cleaned++
	}
	metrics.StagedFilesSwept.Add(float64(cleaned))

	slog.Info("staging cleanup cycle complete",
		"cleaned", cleaned,
		"failed", failed,
		"total_stale", len(stale),
	)
	return cleaned
}

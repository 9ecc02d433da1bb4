package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher reloads the color directory and rebuilds the event cache, on
// demand and on a cron schedule.
type Refresher struct {
	colors *ColorAssignments
	cache  *EventCache
	logger *slog.Logger
	cron   *cron.Cron
}

// NewRefresher reloads the color directory and the event projection into cache.
// Call Start to schedule refreshes, or RefreshNow for a single one.
func NewRefresher(colors *ColorAssignments, cache *EventCache, loc *time.Location, logger *slog.Logger) *Refresher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		colors: colors,
		cache:  cache,
		logger: logger,
		cron:   cron.New(cron.WithLocation(loc)),
	}
}

// RefreshNow loads the current directory and rebuilds the cache from it.
func (r *Refresher) RefreshNow(ctx context.Context) ([]Event, Directory, error) {
	dir, err := r.colors.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	events, err := r.cache.Refresh(ctx, dir)
	if err != nil {
		return nil, nil, err
	}
	return events, dir, nil
}

// Reconcile is RefreshNow without results, for use as a controller reconciler.
func (r *Refresher) Reconcile(ctx context.Context) {
	if _, _, err := r.RefreshNow(ctx); err != nil {
		r.logger.Warn("reconciliation refresh failed", "error", err)
	}
}

// Start schedules periodic refreshes with a standard five-field cron spec.
func (r *Refresher) Start(spec string) error {
	if _, err := r.cron.AddFunc(spec, func() {
		r.Reconcile(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	r.cron.Start()
	r.logger.Info("periodic refresh scheduled", "spec", spec)
	return nil
}

// Stop halts the schedule; the returned context is done once a running refresh finishes.
func (r *Refresher) Stop() context.Context {
	return r.cron.Stop()
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"customcolors/internal/infra"
)

const defaultSweepTimeout = 2 * time.Minute

// Reaper runs ArtifactStore.Sweep on a cron schedule. Overlapping runs are
// skipped and each run is bounded by a timeout so a slow backend listing can
// never pile up work.
type Reaper struct {
	store   *ArtifactStore
	cron    *cron.Cron
	timeout time.Duration
	logger  *infra.Logger
}

// NewReaper registers the sweep under a standard five-field cron spec.
func NewReaper(store *ArtifactStore, schedule string, logger *infra.Logger) (*Reaper, error) {
	r := &Reaper{
		store:   store,
		timeout: defaultSweepTimeout,
		logger:  infra.LoggerOrDiscard(logger),
	}
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("storage: reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start begins scheduling in the background.
func (r *Reaper) Start() {
	r.cron.Start()
	r.logger.Info().Dur("retention", r.store.Retention()).Msg("storage: reaper started")
}

// Stop halts scheduling and returns a context that is done once a running
// sweep has finished.
func (r *Reaper) Stop() context.Context {
	return r.cron.Stop()
}

// RunOnce performs a single bounded sweep.
func (r *Reaper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	start := time.Now()
	res, err := r.store.Sweep(ctx)
	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Error().Err(err)
	}
	ev.Int("scanned", res.Scanned).
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Dur("took", time.Since(start)).
		Msg("storage: sweep finished")
}

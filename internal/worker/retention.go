package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"fleetopt/internal/opt"
	"fleetopt/internal/store"
)

// Retention prunes finished solves and in-memory search metrics on a cron schedule.
type Retention struct {
	cron   *cron.Cron
	store  store.Store
	maxAge time.Duration
	now    func() time.Time
}

// NewRetention validates the cron expression (standard five fields or descriptors like @hourly).
func NewRetention(st store.Store, schedule string, maxAge time.Duration) (*Retention, error) {
	r := &Retention{cron: cron.New(), store: st, maxAge: maxAge, now: time.Now}
	_, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("retention run failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
	log.Info().Dur("max_age", r.maxAge).Msg("retention scheduler started")
}

func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
	log.Info().Msg("retention scheduler stopped")
}

// RunOnce deletes everything older than the max age and returns the number of solves removed.
func (r *Retention) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.DeleteSolvesBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete solves: %w", err)
	}
	pruned := opt.PruneMetrics(cutoff)
	log.Info().Int("solves", n).Int("metrics", pruned).Time("cutoff", cutoff).Msg("retention pruned")
	return n, nil
}

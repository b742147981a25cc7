// Package worker runs queued solves in the background and prunes old ones.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fleetopt/internal/events"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/solver"
	"fleetopt/internal/store"
	"fleetopt/internal/webhooks"
)

// Worker polls the store for queued solves and runs up to Concurrency of them at a time.
type Worker struct {
	Store       store.Store
	Solver      *solver.Service
	Broker      events.EventBroker
	Notifier    *webhooks.Notifier // nil disables callbacks
	Interval    time.Duration
	Concurrency int
	// CallbackTimeout bounds one callback delivery including retries. Stop also aborts it.
	CallbackTimeout time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func New(st store.Store, sv *solver.Service, br events.EventBroker, n *webhooks.Notifier, concurrency int) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Worker{
		Store:           st,
		Solver:          sv,
		Broker:          br,
		Notifier:        n,
		Interval:        time.Second,
		Concurrency:     concurrency,
		CallbackTimeout: 10 * time.Second,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-w.stop
			cancel()
		}()
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				// drain the queue before waiting for the next tick
				for w.processOnce(ctx) == w.Concurrency {
					if ctx.Err() != nil {
						break
					}
				}
			}
		}
	}()
	log.Info().Int("concurrency", w.Concurrency).Dur("interval", w.Interval).Msg("solve worker started")
}

// Stop cancels running solves, which then finish with their best solution so far.
func (w *Worker) Stop() {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
		log.Info().Msg("solve worker stopped")
	})
}

// processOnce claims one batch and returns how many solves it ran.
func (w *Worker) processOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	recs, err := w.Store.ClaimQueued(ctx, w.Concurrency)
	if err != nil {
		log.Error().Err(err).Msg("claim queued solves")
		return 0
	}
	var g errgroup.Group
	for _, rec := range recs {
		g.Go(func() error {
			w.run(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return len(recs)
}

func (w *Worker) run(ctx context.Context, rec model.SolveRecord) {
	logger := log.With().Str("solve_id", rec.ID).Logger()
	w.Broker.Publish(rec.ID, events.Event{Type: events.SolveStarted, Data: map[string]any{"id": rec.ID}})

	var req model.SolveRequest
	if err := json.Unmarshal(rec.Request, &req); err != nil {
		w.fail(ctx, rec, fmt.Errorf("decode request: %w", err))
		return
	}
	res, err := w.Solver.Run(ctx, "async", req, func(p opt.Progress) {
		w.Broker.Publish(rec.ID, events.Event{Type: events.SolveImproved, Data: map[string]any{
			"iteration": p.Iteration, "bestCost": p.BestCost, "unassigned": p.Unassigned,
		}})
	})
	if err != nil {
		w.fail(ctx, rec, err)
		return
	}
	// results are stored even when ctx is cancelled mid-run
	sctx := context.WithoutCancel(ctx)
	if err := w.Store.CompleteSolve(sctx, rec.ID, res.Response); err != nil {
		logger.Error().Err(err).Msg("store solve result")
		return
	}
	if !res.Cached {
		opt.RecordMetrics(rec.ID, res.Metrics)
		if err := w.Store.SaveSolveMetrics(sctx, rec.ID, res.Metrics); err != nil {
			logger.Warn().Err(err).Msg("store solve metrics")
		}
	}
	data := map[string]any{"id": rec.ID, "totalCost": res.Response.TotalCost, "unassigned": len(res.Response.UnassignedJobs)}
	w.Broker.Publish(rec.ID, events.Event{Type: events.SolveCompleted, Data: data})
	logger.Info().Int("total_cost", res.Response.TotalCost).Int("unassigned", len(res.Response.UnassignedJobs)).Bool("cached", res.Cached).Msg("solve completed")
	w.notify(sctx, rec, events.SolveCompleted, res.Response)
}

func (w *Worker) fail(ctx context.Context, rec model.SolveRecord, err error) {
	sctx := context.WithoutCancel(ctx)
	if serr := w.Store.FailSolve(sctx, rec.ID, err.Error()); serr != nil {
		log.Error().Err(serr).Str("solve_id", rec.ID).Msg("store solve failure")
	}
	w.Broker.Publish(rec.ID, events.Event{Type: events.SolveFailed, Data: map[string]any{"id": rec.ID, "error": err.Error()}})
	log.Warn().Err(err).Str("solve_id", rec.ID).Msg("solve failed")
	w.notify(sctx, rec, events.SolveFailed, map[string]any{"error": err.Error()})
}

func (w *Worker) notify(ctx context.Context, rec model.SolveRecord, eventType string, data any) {
	if w.Notifier == nil || rec.CallbackURL == "" {
		return
	}
	timeout := w.CallbackTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	// ctx is detached from the worker's, so watch stop directly
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	evt := webhooks.Envelope{ID: rec.ID, Type: eventType, TS: time.Now().UTC(), Data: data}
	if err := w.Notifier.Notify(ctx, rec.CallbackURL, rec.CallbackSecret, evt); err != nil {
		log.Error().Err(err).Str("solve_id", rec.ID).Msg("solve callback")
	}
}

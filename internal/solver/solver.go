// Package solver runs the whole pipeline: validate, build, search, format.
package solver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fleetopt/internal/cache"
	"fleetopt/internal/metrics"
	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/schema"
)

// Config holds service-wide solver defaults. Request options override MaxIterations, Seed
// and TimeBudget per solve.
type Config struct {
	MaxIterations int
	// TimeBudget caps a single solve; zero means iterations only.
	TimeBudget       time.Duration
	InitialTemp      float64
	Cooling          float64
	CostModel        string
	SpeedKph         float64
	BatchConcurrency int
	MaxBatch         int
}

func DefaultConfig() Config {
	return Config{
		MaxIterations:    opt.DefaultMaxIterations,
		InitialTemp:      opt.DefaultInitialTemp,
		Cooling:          opt.DefaultCooling,
		CostModel:        "euclidean",
		BatchConcurrency: 4,
		MaxBatch:         50,
	}
}

type Service struct {
	cfg       Config
	cost      opt.CostModel
	validator *schema.Validator
	cache     cache.Cache
}

type Option func(*Service)

// WithCache enables result caching.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithValidator(v *schema.Validator) Option { return func(s *Service) { s.validator = v } }

func New(cfg Config, opts ...Option) (*Service, error) {
	cost, err := opt.CostModelFor(cfg.CostModel, cfg.SpeedKph)
	if err != nil {
		return nil, err
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = opt.DefaultMaxIterations
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 1
	}
	s := &Service{cfg: cfg, cost: cost, validator: schema.New()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Service) Config() Config { return s.cfg }

// Result is a solve outcome with the search metrics. Metrics are zero for cache hits.
type Result struct {
	Response model.SolutionResponse `json:"response"`
	Metrics  opt.Metrics            `json:"metrics"`
	Cached   bool                   `json:"cached"`
}

// Effective resolves request options against the service defaults.
func (s *Service) Effective(o *model.SolveOptions) (opt.Options, time.Duration) {
	out := opt.Options{
		MaxIterations: s.cfg.MaxIterations,
		InitialTemp:   s.cfg.InitialTemp,
		Cooling:       s.cfg.Cooling,
	}
	budget := s.cfg.TimeBudget
	if o != nil {
		if o.MaxIterations > 0 {
			out.MaxIterations = o.MaxIterations
		}
		out.Seed = o.Seed
		if o.TimeBudgetMs > 0 {
			budget = time.Duration(o.TimeBudgetMs) * time.Millisecond
		}
	}
	if out.Seed == 0 {
		out.Seed = 1
	}
	return out, budget
}

// Solve validates and solves one request.
func (s *Service) Solve(ctx context.Context, req model.SolveRequest) (model.SolutionResponse, error) {
	res, err := s.Run(ctx, "sync", req, nil)
	return res.Response, err
}

// SolveJSON solves a raw problem definition.
func (s *Service) SolveJSON(ctx context.Context, problem []byte, o *model.SolveOptions) (model.SolutionResponse, error) {
	return s.Solve(ctx, model.SolveRequest{Problem: problem, Options: o})
}

func (s *Service) parse(problem []byte) (model.Problem, error) {
	if len(problem) == 0 {
		return model.Problem{}, &schema.ValidationError{Fields: []schema.FieldError{{Path: "problem", Reason: schema.ReasonRequired, Message: "is required"}}}
	}
	return s.validator.Parse(problem)
}

// Validate runs every check a solve would, including duplicate keys, without searching.
func (s *Service) Validate(problem []byte) error {
	p, err := s.parse(problem)
	if err != nil {
		return err
	}
	_, err = opt.Build(p, s.cost)
	return err
}

// Run is Solve with progress reporting and metrics. mode labels Prometheus series.
// A solve cut short by the time budget or by ctx still succeeds with the best solution found.
func (s *Service) Run(ctx context.Context, mode string, req model.SolveRequest, onImprove func(opt.Progress)) (Result, error) {
	problem, err := s.parse(req.Problem)
	if err != nil {
		metrics.Solves.WithLabelValues(mode, "invalid").Inc()
		return Result{}, err
	}
	o, budget := s.Effective(req.Options)
	o.OnImprove = onImprove

	key := cacheKey(problem, o, budget, fmt.Sprintf("%s/%g", s.cfg.CostModel, s.cfg.SpeedKph))
	if s.cache != nil && budget == 0 {
		resp, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warn().Err(err).Msg("solve cache lookup")
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			metrics.Solves.WithLabelValues(mode, "succeeded").Inc()
			return Result{Response: resp, Cached: true}, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	p, err := opt.Build(problem, s.cost)
	if err != nil {
		s.observeFailure(mode, err)
		return Result{}, err
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	sol, m, err := opt.Solve(ctx, p, o)
	if err != nil {
		s.observeFailure(mode, err)
		return Result{}, fmt.Errorf("solve: %w", err)
	}
	resp, err := opt.Format(p, sol)
	if err != nil {
		s.observeFailure(mode, err)
		return Result{}, fmt.Errorf("format: %w", err)
	}

	metrics.Solves.WithLabelValues(mode, "succeeded").Inc()
	metrics.SolveDuration.WithLabelValues(mode).Observe(m.Elapsed.Seconds())
	metrics.SolveIterations.Observe(float64(m.Iterations))
	metrics.UnassignedJobs.Observe(float64(len(resp.UnassignedJobs)))
	log.Debug().
		Str("mode", mode).
		Int("jobs", len(p.Jobs)).
		Int("vehicles", len(p.Vehicles)).
		Int("iterations", m.Iterations).
		Int("total_cost", resp.TotalCost).
		Int("unassigned", len(resp.UnassignedJobs)).
		Bool("cancelled", m.Cancelled).
		Dur("elapsed", m.Elapsed).
		Msg("solve finished")

	// budget-limited runs depend on timing, so only iteration-bounded ones are exact
	if s.cache != nil && budget == 0 && !m.Cancelled {
		if err := s.cache.Set(ctx, key, resp); err != nil {
			log.Warn().Err(err).Msg("solve cache store")
		}
	}
	return Result{Response: resp, Metrics: m}, nil
}

func (s *Service) observeFailure(mode string, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		metrics.Solves.WithLabelValues(mode, "invalid").Inc()
		return
	}
	metrics.Solves.WithLabelValues(mode, "failed").Inc()
	if errors.Is(err, opt.ErrInvariantViolation) {
		log.Error().Err(err).Str("mode", mode).Msg("solver invariant violated")
	}
}

// BatchResult is one entry of SolveBatch, in request order.
type BatchResult struct {
	Response *model.SolutionResponse `json:"response,omitempty"`
	Err      error                   `json:"-"`
}

// ErrBatchTooLarge is returned when a batch exceeds Config.MaxBatch.
var ErrBatchTooLarge = errors.New("batch too large")

// SolveBatch solves independent requests concurrently. Per-item failures are reported in
// the results; the returned error is only for ctx cancellation or an oversized batch.
func (s *Service) SolveBatch(ctx context.Context, reqs []model.SolveRequest) ([]BatchResult, error) {
	if s.cfg.MaxBatch > 0 && len(reqs) > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrBatchTooLarge, len(reqs), s.cfg.MaxBatch)
	}
	out := make([]BatchResult, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.Run(gctx, "batch", req, nil)
			if err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Response = &res.Response
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// cacheKey hashes the normalized problem with every option that changes the result.
func cacheKey(p model.Problem, o opt.Options, budget time.Duration, costModel string) string {
	h := sha256.New()
	_ = json.NewEncoder(h).Encode(struct {
		Problem     model.Problem `json:"p"`
		Iterations  int           `json:"i"`
		Seed        int64         `json:"s"`
		InitialTemp float64       `json:"t"`
		Cooling     float64       `json:"c"`
		Budget      time.Duration `json:"b"`
		CostModel   string        `json:"m"`
	}{p, o.MaxIterations, o.Seed, o.InitialTemp, o.Cooling, budget, costModel})
	return hex.EncodeToString(h.Sum(nil))
}

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fleetopt/internal/api"
	"fleetopt/internal/cache"
	"fleetopt/internal/config"
	"fleetopt/internal/events"
	"fleetopt/internal/logging"
	"fleetopt/internal/solver"
	"fleetopt/internal/store"
	"fleetopt/internal/webhooks"
	"fleetopt/internal/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal().Err(err).Msg("cannot set up logging")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("cannot parse REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("cannot reach redis")
		}
		log.Info().Msg("redis connection verified")
	}

	var broker events.EventBroker = events.NewBroker()
	var opts []solver.Option
	switch {
	case rdb != nil:
		broker = events.NewRedisBroker(rdb)
		opts = append(opts, solver.WithCache(cache.NewRedis(rdb, cfg.Cache.TTL)))
	case cfg.Cache.Size > 0:
		opts = append(opts, solver.WithCache(cache.NewMemory(cfg.Cache.Size)))
	}

	sv, err := solver.New(solver.Config{
		MaxIterations:    cfg.Solver.MaxIterations,
		TimeBudget:       cfg.TimeBudget(),
		InitialTemp:      cfg.Solver.InitialTemp,
		Cooling:          cfg.Solver.Cooling,
		CostModel:        cfg.Solver.CostModel,
		SpeedKph:         cfg.Solver.SpeedKph,
		BatchConcurrency: cfg.Solver.BatchConcurrency,
		MaxBatch:         cfg.Solver.MaxBatch,
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create solver")
	}

	w := worker.New(st, sv, broker, webhooks.NewNotifier(cfg.Webhook.MaxAttempts), cfg.Worker.Concurrency)
	w.Interval = cfg.Worker.Interval
	w.CallbackTimeout = cfg.Webhook.Timeout
	retention, err := worker.NewRetention(st, cfg.Retention.Schedule, cfg.Retention.MaxAge)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot create retention scheduler")
	}

	s := api.NewServer(cfg, st, sv, broker)
	defer s.Close()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		w.Start()
		retention.Start()
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		retention.Stop()
		w.Stop()
		return err
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func()) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Info().Msg("using in-memory solve store")
		return store.NewMemory(), func() {}
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("cannot open database")
	}
	if err := pg.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("cannot migrate database")
	}
	log.Info().Msg("using postgres solve store")
	return pg, func() { _ = pg.Close() }
}

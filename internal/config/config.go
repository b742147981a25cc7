// Package config loads service settings from defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fleetopt/internal/opt"
)

type Config struct {
	Port        string `yaml:"port" json:"port"`
	DatabaseURL string `yaml:"databaseUrl" json:"-"`
	RedisURL    string `yaml:"redisUrl" json:"-"`

	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"` // json or console
	} `yaml:"log" json:"log"`

	Solver struct {
		MaxIterations    int     `yaml:"maxIterations" json:"maxIterations"`
		TimeBudgetMs     int     `yaml:"timeBudgetMs" json:"timeBudgetMs"`
		InitialTemp      float64 `yaml:"initialTemp" json:"initialTemp"`
		Cooling          float64 `yaml:"cooling" json:"cooling"`
		CostModel        string  `yaml:"costModel" json:"costModel"`
		SpeedKph         float64 `yaml:"speedKph" json:"speedKph"`
		BatchConcurrency int     `yaml:"batchConcurrency" json:"batchConcurrency"`
		MaxBatch         int     `yaml:"maxBatch" json:"maxBatch"`
	} `yaml:"solver" json:"solver"`

	Rate struct {
		RPS   float64 `yaml:"rps" json:"rps"` // 0 disables limiting
		Burst int     `yaml:"burst" json:"burst"`
	} `yaml:"rate" json:"rate"`

	Worker struct {
		Concurrency int           `yaml:"concurrency" json:"concurrency"`
		Interval    time.Duration `yaml:"interval" json:"interval"`
	} `yaml:"worker" json:"worker"`

	Webhook struct {
		MaxAttempts int           `yaml:"maxAttempts" json:"maxAttempts"`
		Timeout     time.Duration `yaml:"timeout" json:"timeout"` // whole delivery, retries included
	} `yaml:"webhook" json:"webhook"`

	Retention struct {
		Schedule string        `yaml:"schedule" json:"schedule"`
		MaxAge   time.Duration `yaml:"maxAge" json:"maxAge"`
	} `yaml:"retention" json:"retention"`

	Cache struct {
		Size int           `yaml:"size" json:"size"` // in-memory entries; 0 disables the cache without Redis
		TTL  time.Duration `yaml:"ttl" json:"ttl"`
	} `yaml:"cache" json:"cache"`
}

func Default() Config {
	var c Config
	c.Port = "8080"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Solver.MaxIterations = opt.DefaultMaxIterations
	c.Solver.InitialTemp = opt.DefaultInitialTemp
	c.Solver.Cooling = opt.DefaultCooling
	c.Solver.CostModel = "euclidean"
	c.Solver.SpeedKph = 50
	c.Solver.BatchConcurrency = 4
	c.Solver.MaxBatch = 50
	c.Rate.RPS = 20
	c.Rate.Burst = 40
	c.Worker.Concurrency = 2
	c.Worker.Interval = time.Second
	c.Webhook.MaxAttempts = 5
	c.Webhook.Timeout = 10 * time.Second
	c.Retention.Schedule = "@hourly"
	c.Retention.MaxAge = 7 * 24 * time.Hour
	c.Cache.Size = 256
	c.Cache.TTL = time.Hour
	return c
}

// Load reads .env (if present), then the YAML file at path (if non-empty), then environment
// overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	num("SOLVER_MAX_ITERATIONS", &c.Solver.MaxIterations)
	num("SOLVER_TIME_BUDGET_MS", &c.Solver.TimeBudgetMs)
	float("SOLVER_INITIAL_TEMP", &c.Solver.InitialTemp)
	float("SOLVER_COOLING", &c.Solver.Cooling)
	str("SOLVER_COST_MODEL", &c.Solver.CostModel)
	float("SOLVER_SPEED_KPH", &c.Solver.SpeedKph)
	num("BATCH_CONCURRENCY", &c.Solver.BatchConcurrency)
	num("MAX_BATCH", &c.Solver.MaxBatch)
	float("RATE_RPS", &c.Rate.RPS)
	num("RATE_BURST", &c.Rate.Burst)
	num("WORKER_CONCURRENCY", &c.Worker.Concurrency)
	dur("WORKER_INTERVAL", &c.Worker.Interval)
	num("WEBHOOK_MAX_ATTEMPTS", &c.Webhook.MaxAttempts)
	dur("WEBHOOK_TIMEOUT", &c.Webhook.Timeout)
	str("RETENTION_SCHEDULE", &c.Retention.Schedule)
	dur("RETENTION_MAX_AGE", &c.Retention.MaxAge)
	num("CACHE_SIZE", &c.Cache.Size)
	dur("CACHE_TTL", &c.Cache.TTL)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port %q is not a number", c.Port))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log format %q (allowed: json, console)", c.Log.Format))
	}
	if _, err := opt.CostModelFor(c.Solver.CostModel, c.Solver.SpeedKph); err != nil {
		errs = append(errs, err)
	}
	if c.Solver.MaxIterations <= 0 {
		errs = append(errs, errors.New("solver maxIterations must be positive"))
	}
	if c.Solver.TimeBudgetMs < 0 {
		errs = append(errs, errors.New("solver timeBudgetMs must not be negative"))
	}
	if c.Solver.Cooling <= 0 || c.Solver.Cooling >= 1 {
		errs = append(errs, fmt.Errorf("solver cooling %g must be in (0, 1)", c.Solver.Cooling))
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.Worker.Concurrency <= 0 || c.Worker.Interval <= 0 {
		errs = append(errs, errors.New("worker concurrency and interval must be positive"))
	}
	if c.Retention.MaxAge <= 0 {
		errs = append(errs, errors.New("retention maxAge must be positive"))
	}
	return errors.Join(errs...)
}

// TimeBudget is zero when solves are bounded by iterations only.
func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.Solver.TimeBudgetMs) * time.Millisecond
}

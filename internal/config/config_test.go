package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envMap(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func TestDefaultsValidate(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, 256, c.Solver.MaxIterations)
	require.Equal(t, "@hourly", c.Retention.Schedule)
	require.Equal(t, 168*time.Hour, c.Retention.MaxAge)
	require.Zero(t, c.TimeBudget())
}

func TestEnvOverrides(t *testing.T) {
	c := Default()
	err := c.applyEnv(envMap(map[string]string{
		"PORT":                  "9090",
		"SOLVER_MAX_ITERATIONS": "1000",
		"SOLVER_TIME_BUDGET_MS": "1500",
		"SOLVER_COST_MODEL":     "haversine",
		"RATE_RPS":              "2.5",
		"WORKER_INTERVAL":       "250ms",
		"RETENTION_MAX_AGE":     "24h",
		"LOG_LEVEL":             "",
	}))
	require.NoError(t, err)
	require.Equal(t, "9090", c.Port)
	require.Equal(t, 1000, c.Solver.MaxIterations)
	require.Equal(t, 1500*time.Millisecond, c.TimeBudget())
	require.Equal(t, "haversine", c.Solver.CostModel)
	require.Equal(t, 2.5, c.Rate.RPS)
	require.Equal(t, 250*time.Millisecond, c.Worker.Interval)
	require.Equal(t, 24*time.Hour, c.Retention.MaxAge)
	require.Equal(t, "info", c.Log.Level)
}

func TestEnvOverrideErrors(t *testing.T) {
	c := Default()
	err := c.applyEnv(envMap(map[string]string{"SOLVER_MAX_ITERATIONS": "many", "CACHE_TTL": "soon"}))
	require.ErrorContains(t, err, "SOLVER_MAX_ITERATIONS")
	require.ErrorContains(t, err, "CACHE_TTL")
}

func TestValidateRejects(t *testing.T) {
	c := Default()
	c.Solver.CostModel = "manhattan"
	c.Solver.Cooling = 1.5
	c.Log.Format = "xml"
	err := c.Validate()
	require.ErrorContains(t, err, "manhattan")
	require.ErrorContains(t, err, "cooling")
	require.ErrorContains(t, err, "xml")
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetopt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7070"
solver:
  maxIterations: 64
  costModel: haversine
  speedKph: 30
retention:
  schedule: "0 3 * * *"
  maxAge: 48h
`), 0o600))
	t.Setenv("SOLVER_MAX_ITERATIONS", "128")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "7070", c.Port)
	require.Equal(t, 128, c.Solver.MaxIterations)
	require.Equal(t, 30.0, c.Solver.SpeedKph)
	require.Equal(t, "0 3 * * *", c.Retention.Schedule)
	require.Equal(t, 48*time.Hour, c.Retention.MaxAge)
	require.Equal(t, 5, c.Webhook.MaxAttempts)
	require.Equal(t, 10*time.Second, c.Webhook.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

package api

import (
	"net/http"
	"time"

	"fleetopt/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration without secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":           c.Port,
			"log":            c.Log,
			"solver":         c.Solver,
			"rate":           c.Rate,
			"worker":         map[string]any{"concurrency": c.Worker.Concurrency, "interval": c.Worker.Interval.String()},
			"webhook":        c.Webhook,
			"retention":      map[string]any{"schedule": c.Retention.Schedule, "maxAge": c.Retention.MaxAge.String()},
			"hasDatabaseUrl": c.DatabaseURL != "",
			"hasRedisUrl":    c.RedisURL != "",
			"cacheSize":      c.Cache.Size,
			"cacheTtl":       c.Cache.TTL.String(),
		},
	}
	writeJSON(w, http.StatusOK, info)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleetopt/internal/model"
	"fleetopt/internal/opt"
	"fleetopt/internal/store"
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "Body too large", err.Error(), r.URL.Path)
			return false
		}
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	return true
}

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solve" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.Solver.Run(r.Context(), "sync", req, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Response)
}

type batchItem struct {
	Response *model.SolutionResponse `json:"response,omitempty"`
	Error    *Problem                `json:"error,omitempty"`
}

// BatchHandler handles POST /v1/solve/batch
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Items []model.SolveRequest `json:"items"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Items) == 0 {
		writeProblem(w, http.StatusBadRequest, "Missing items", "items must contain at least one solve request", r.URL.Path)
		return
	}
	results, err := s.Solver.SolveBatch(r.Context(), body.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]batchItem, len(results))
	for i, res := range results {
		if res.Err != nil {
			p := problemFor(res.Err, fmt.Sprintf("%s#/items/%d", r.URL.Path, i))
			out[i].Error = &p
			continue
		}
		out[i].Response = res.Response
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// SolvesHandler handles POST/GET /v1/solves
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SolveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.Solver.Validate(req.Problem); err != nil {
			writeError(w, r, err)
			return
		}
		if req.CallbackURL != "" {
			u, err := url.Parse(req.CallbackURL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				writeProblem(w, http.StatusBadRequest, "Invalid callbackUrl", "callbackUrl must be an absolute http(s) URL", r.URL.Path)
				return
			}
		}
		raw, err := json.Marshal(req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		rec, err := s.Store.CreateSolve(r.Context(), model.SolveRecord{Request: raw, CallbackURL: req.CallbackURL, CallbackSecret: req.CallbackSecret})
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue solve: %w", err))
			return
		}
		w.Header().Set("Location", "/v1/solves/"+rec.ID)
		writeJSON(w, http.StatusAccepted, map[string]any{"id": rec.ID, "status": rec.Status})
	case http.MethodGet:
		q := r.URL.Query()
		limit := 100
		if v := q.Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		status := model.SolveStatus(q.Get("status"))
		switch status {
		case "", model.SolveQueued, model.SolveRunning, model.SolveSucceeded, model.SolveFailed:
		default:
			writeProblem(w, http.StatusBadRequest, "Invalid status", "status must be one of queued, running, succeeded, failed", r.URL.Path)
			return
		}
		items, next, err := s.Store.ListSolves(r.Context(), status, q.Get("cursor"), limit)
		if err != nil {
			writeError(w, r, fmt.Errorf("list solves: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SolveByIDHandler handles GET /v1/solves/{id} and its /metrics, /events and /ws children.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	rec, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		writeError(w, r, fmt.Errorf("solve %s: %w", id, err))
		return
	}
	if len(parts) == 1 {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	switch parts[1] {
	case "metrics":
		m, err := s.Store.GetSolveMetrics(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			var ok bool
			if m, ok = opt.GetMetrics(id); ok {
				err = nil
			}
		}
		if err != nil {
			writeError(w, r, fmt.Errorf("metrics for solve %s: %w", id, err))
			return
		}
		writeJSON(w, http.StatusOK, m)
	case "events":
		s.streamSSE(w, r, rec)
	case "ws":
		s.streamWS(w, r, rec)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// SolverConfigHandler returns the effective solver defaults.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	o, budget := s.Solver.Effective(nil)
	cfg := s.Solver.Config()
	costModel := cfg.CostModel
	if costModel == "" {
		costModel = "euclidean"
	}
	if o.InitialTemp <= 0 {
		o.InitialTemp = opt.DefaultInitialTemp
	}
	if o.Cooling <= 0 || o.Cooling >= 1 {
		o.Cooling = opt.DefaultCooling
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": map[string]any{
		"algorithm":        "ruin-and-recreate",
		"maxIterations":    o.MaxIterations,
		"seed":             o.Seed,
		"timeBudgetMs":     budget.Milliseconds(),
		"initialTemp":      o.InitialTemp,
		"cooling":          o.Cooling,
		"removalOps":       []string{"random", "shaw"},
		"insertionOps":     []string{"greedy", "regret2"},
		"costModel":        costModel,
		"speedKph":         cfg.SpeedKph,
		"batchConcurrency": cfg.BatchConcurrency,
		"maxBatch":         cfg.MaxBatch,
	}})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"fleetopt/internal/opt"
	"fleetopt/internal/schema"
	"fleetopt/internal/solver"
	"fleetopt/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type       string              `json:"type"`
	Title      string              `json:"title"`
	Status     int                 `json:"status"`
	Detail     string              `json:"detail,omitempty"`
	Instance   string              `json:"instance,omitempty"`
	Errors     []schema.FieldError `json:"errors,omitempty"`
	Duplicates *Duplicates         `json:"duplicates,omitempty"`
}

type Duplicates struct {
	Fleet    map[string]int `json:"fleet,omitempty"`
	Requests map[string]int `json:"requests,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// problemFor maps solve errors onto problem details.
func problemFor(err error, instance string) Problem {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		p := Problem{Type: "about:blank", Title: "Invalid problem", Status: http.StatusBadRequest, Detail: verr.Error(), Instance: instance, Errors: verr.Fields}
		if len(verr.DuplicateFleetKeys) > 0 || len(verr.DuplicateRequestKeys) > 0 {
			p.Duplicates = &Duplicates{Fleet: verr.DuplicateFleetKeys, Requests: verr.DuplicateRequestKeys}
		}
		return p
	case errors.Is(err, opt.ErrInvariantViolation):
		log.Error().Err(err).Str("path", instance).Msg("solver invariant violated")
		return Problem{Type: "about:blank", Title: "Solver invariant violated", Status: http.StatusInternalServerError, Detail: err.Error(), Instance: instance}
	case errors.Is(err, solver.ErrBatchTooLarge):
		return Problem{Type: "about:blank", Title: "Batch too large", Status: http.StatusRequestEntityTooLarge, Detail: err.Error(), Instance: instance}
	case errors.Is(err, store.ErrNotFound):
		return Problem{Type: "about:blank", Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error(), Instance: instance}
	default:
		log.Error().Err(err).Str("path", instance).Msg("request failed")
		return Problem{Type: "about:blank", Title: "Internal error", Status: http.StatusInternalServerError, Detail: err.Error(), Instance: instance}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err, r.URL.Path)
	writeJSON(w, p.Status, p)
}

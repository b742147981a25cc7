package schema

import (
	"encoding/json"
	"strings"
)

// Reason classifies why a field was rejected.
type Reason string

const (
	ReasonRequired  Reason = "required"
	ReasonType      Reason = "type"
	ReasonRange     Reason = "range"
	ReasonUnknown   Reason = "unknown"
	ReasonEnum      Reason = "enum"
	ReasonDuplicate Reason = "duplicate"
)

// FieldError identifies one invalid field by its JSON path, e.g. "fleet[2].location.latitude".
type FieldError struct {
	Path    string `json:"path"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a problem definition. Duplicate identifiers
// are reported as key -> occurrence count, separately for the fleet and the requests.
type ValidationError struct {
	Fields               []FieldError   `json:"errors,omitempty"`
	DuplicateFleetKeys   map[string]int `json:"duplicateFleetKeys,omitempty"`
	DuplicateRequestKeys map[string]int `json:"duplicateRequestKeys,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.DuplicateFleetKeys) > 0 {
		b, _ := json.Marshal(e.DuplicateFleetKeys)
		parts = append(parts, "duplicate keys in fleet: "+string(b))
	}
	if len(e.DuplicateRequestKeys) > 0 {
		b, _ := json.Marshal(e.DuplicateRequestKeys)
		parts = append(parts, "duplicate keys in requests: "+string(b))
	}
	for _, f := range e.Fields {
		path := f.Path
		if path == "" {
			path = "(root)"
		}
		parts = append(parts, path+" "+f.Message)
	}
	return "invalid problem: " + strings.Join(parts, "; ")
}

// Empty reports whether nothing was recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0 && len(e.DuplicateFleetKeys) == 0 && len(e.DuplicateRequestKeys) == 0
}

func (e *ValidationError) add(path string, reason Reason, msg string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Reason: reason, Message: msg})
}

// covers reports whether path is at or below a path that already has an error.
func (e *ValidationError) covers(path string) bool {
	for _, f := range e.Fields {
		if f.Reason == ReasonUnknown {
			continue
		}
		if f.Path == "" || path == f.Path || strings.HasPrefix(path, f.Path+".") || strings.HasPrefix(path, f.Path+"[") {
			return true
		}
	}
	return false
}

// Duplicates returns a ValidationError for the given duplicate maps, or nil if both are empty.
func Duplicates(fleet, requests map[string]int) *ValidationError {
	if len(fleet) == 0 && len(requests) == 0 {
		return nil
	}
	e := &ValidationError{}
	if len(fleet) > 0 {
		e.DuplicateFleetKeys = fleet
	}
	if len(requests) > 0 {
		e.DuplicateRequestKeys = requests
	}
	return e
}

// Package schema validates raw problem definitions and normalizes them into model types.
//
// Structure (object shapes, unknown fields, required keys, number coercion, single-object
// collections) is checked by walking the decoded JSON. Numeric ranges and the service type
// enumeration are struct tags on the model types, evaluated with go-playground/validator.
// Validation never checks feasibility.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"fleetopt/internal/model"
)

// DefaultDepot is 1500 Canal Ave, Long Beach, CA.
var DefaultDepot = model.Location{Latitude: 33.785765, Longitude: -118.213798}

const defaultCostPerDistance = 1.0

// Validator normalizes problem definitions. It is safe for concurrent use.
type Validator struct {
	depot    model.Location
	validate *validator.Validate
}

type Option func(*Validator)

// WithDepot sets the start location given to vehicles that declare none.
func WithDepot(loc model.Location) Option {
	return func(v *Validator) { v.depot = loc }
}

func New(opts ...Option) *Validator {
	v := &Validator{depot: DefaultDepot, validate: validator.New()}
	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.validate.RegisterStructValidation(vehicleWindow, model.Vehicle{})
	for _, o := range opts {
		o(v)
	}
	return v
}

// Depot returns the default vehicle location.
func (v *Validator) Depot() model.Location { return v.depot }

func vehicleWindow(sl validator.StructLevel) {
	veh := sl.Current().Interface().(model.Vehicle)
	if veh.StartAt != nil && veh.EndBy != nil && *veh.StartAt > *veh.EndBy {
		sl.ReportError(veh.StartAt, "startAt", "StartAt", "ltefield", "endBy")
	}
}

// Parse decodes JSON and normalizes it. Any failure is a *ValidationError.
func (v *Validator) Parse(data []byte) (model.Problem, error) {
	raw, err := decode(data)
	if err != nil {
		return model.Problem{}, err
	}
	return v.Normalize(raw)
}

// Normalize validates a decoded problem definition (maps, slices, json.Number, float64 or
// numeric strings) and returns it with defaults applied.
func (v *Validator) Normalize(raw any) (model.Problem, error) {
	w := &walker{errs: &ValidationError{}, depot: v.depot}
	p := w.problem(raw, "")
	return p, v.finish(w.errs, p)
}

// Check validates an already typed problem, applying the same defaults. A zero
// CostPerDistance is read as "not set".
func (v *Validator) Check(p model.Problem) (model.Problem, error) {
	out := model.Problem{
		Fleet:    make([]model.Vehicle, len(p.Fleet)),
		Requests: append([]model.ServiceRequest(nil), p.Requests...),
	}
	for i, veh := range p.Fleet {
		if veh.Location == nil {
			loc := v.depot
			veh.Location = &loc
		}
		if veh.CostPerDistance == 0 {
			veh.CostPerDistance = defaultCostPerDistance
		}
		out.Fleet[i] = veh
	}
	return out, v.finish(&ValidationError{}, out)
}

// Location validates a single location.
func (v *Validator) Location(raw any) (model.Location, error) {
	w := &walker{errs: &ValidationError{}, depot: v.depot}
	loc := w.location(raw, "")
	return loc, v.finish(w.errs, loc)
}

// TimeWindow validates a single time window.
func (v *Validator) TimeWindow(raw any) (model.TimeWindow, error) {
	w := &walker{errs: &ValidationError{}, depot: v.depot}
	tw := w.timeWindow(raw, "")
	return tw, v.finish(w.errs, tw)
}

// Vehicle validates a single vehicle and applies its defaults.
func (v *Validator) Vehicle(raw any) (model.Vehicle, error) {
	w := &walker{errs: &ValidationError{}, depot: v.depot}
	veh := w.vehicle(raw, "")
	return veh, v.finish(w.errs, veh)
}

// ServiceRequest validates a single request and applies its defaults.
func (v *Validator) ServiceRequest(raw any) (model.ServiceRequest, error) {
	w := &walker{errs: &ValidationError{}, depot: v.depot}
	r := w.request(raw, "")
	return r, v.finish(w.errs, r)
}

// Decode parses JSON keeping numbers as json.Number.
func Decode(data []byte) (any, error) { return decode(data) }

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		e := &ValidationError{}
		e.add("", ReasonType, "is not valid JSON: "+err.Error())
		return nil, e
	}
	return raw, nil
}

// finish runs the struct-tag rules and merges them with structural errors, dropping rule
// errors for paths that already failed structurally.
func (v *Validator) finish(errs *ValidationError, value any) error {
	if err := v.validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("schema: %w", err)
		}
		for _, fe := range verrs {
			path := fe.Namespace()
			if i := strings.IndexByte(path, '.'); i >= 0 {
				path = path[i+1:]
			} else {
				path = ""
			}
			if errs.covers(path) {
				continue
			}
			reason, msg := describe(fe)
			errs.add(path, reason, msg)
		}
	}
	if errs.Empty() {
		return nil
	}
	return errs
}

func describe(fe validator.FieldError) (Reason, string) {
	switch fe.Tag() {
	case "required":
		return ReasonRequired, "is required"
	case "oneof":
		return ReasonEnum, "must be one of [" + strings.ReplaceAll(fe.Param(), " ", ", ") + "]"
	case "gt":
		return ReasonRange, "must be greater than " + fe.Param()
	case "gte":
		return ReasonRange, "must be greater than or equal to " + fe.Param()
	case "min":
		return ReasonRange, "must contain at least " + fe.Param() + " item(s)"
	case "ltefield":
		p := fe.Param()
		if p != "" {
			p = strings.ToLower(p[:1]) + p[1:]
		}
		return ReasonRange, "must not be greater than " + p
	default:
		return ReasonRange, "failed rule " + fe.Tag()
	}
}

type walker struct {
	errs  *ValidationError
	depot model.Location
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func (w *walker) object(raw any, path string, allowed ...string) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		w.errs.add(path, ReasonType, "must be an object")
		return nil, false
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			w.errs.add(join(path, k), ReasonUnknown, "is not allowed")
		}
	}
	return m, true
}

func (w *walker) number(m map[string]any, path, key string, required bool) (float64, bool) {
	val, present := m[key]
	if !present {
		if required {
			w.errs.add(join(path, key), ReasonRequired, "is required")
		}
		return 0, false
	}
	f, ok := toFloat(val)
	if !ok {
		w.errs.add(join(path, key), ReasonType, "must be a number")
		return 0, false
	}
	return f, true
}

func (w *walker) integer(m map[string]any, path, key string, required bool) (int, bool) {
	f, ok := w.number(m, path, key, required)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		w.errs.add(join(path, key), ReasonType, "must be an integer")
		return 0, false
	}
	return int(f), true
}

func (w *walker) str(m map[string]any, path, key string, required bool) (string, bool) {
	val, present := m[key]
	if !present {
		if required {
			w.errs.add(join(path, key), ReasonRequired, "is required")
		}
		return "", false
	}
	s, ok := val.(string)
	if !ok {
		w.errs.add(join(path, key), ReasonType, "must be a string")
		return "", false
	}
	return s, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (w *walker) location(raw any, path string) model.Location {
	m, ok := w.object(raw, path, "latitude", "longitude")
	if !ok {
		return model.Location{}
	}
	lat, _ := w.number(m, path, "latitude", true)
	lng, _ := w.number(m, path, "longitude", true)
	return model.Location{Latitude: lat, Longitude: lng}
}

func (w *walker) timeWindow(raw any, path string) model.TimeWindow {
	m, ok := w.object(raw, path, "start", "end")
	if !ok {
		return model.TimeWindow{}
	}
	start, _ := w.integer(m, path, "start", true)
	end, ok := w.integer(m, path, "end", true)
	if !ok {
		// keep ltefield quiet when end is missing or malformed
		end = start
	}
	return model.TimeWindow{Start: start, End: end}
}

var capacityFields = []struct {
	name string
	ref  func(*model.Vehicle) **int
}{
	{"fryerOil", func(v *model.Vehicle) **int { return &v.FryerOil }},
	{"greaseTrap", func(v *model.Vehicle) **int { return &v.GreaseTrap }},
	{"hoodCleaning", func(v *model.Vehicle) **int { return &v.HoodCleaning }},
	{"hydroJetting", func(v *model.Vehicle) **int { return &v.HydroJetting }},
}

func (w *walker) vehicle(raw any, path string) model.Vehicle {
	depot := w.depot
	veh := model.Vehicle{Location: &depot, CostPerDistance: defaultCostPerDistance}
	allowed := []string{"key", "location", "startAt", "endBy", "costPerDistance"}
	for _, c := range capacityFields {
		allowed = append(allowed, c.name)
	}
	m, ok := w.object(raw, path, allowed...)
	if !ok {
		return veh
	}
	veh.Key, _ = w.str(m, path, "key", true)
	if raw, present := m["location"]; present {
		loc := w.location(raw, join(path, "location"))
		veh.Location = &loc
	}
	if n, ok := w.integer(m, path, "startAt", false); ok {
		veh.StartAt = &n
	}
	if n, ok := w.integer(m, path, "endBy", false); ok {
		veh.EndBy = &n
	}
	if f, ok := w.number(m, path, "costPerDistance", false); ok {
		veh.CostPerDistance = f
	}
	for _, c := range capacityFields {
		if n, ok := w.integer(m, path, c.name, false); ok {
			*c.ref(&veh) = &n
		}
	}
	return veh
}

func (w *walker) request(raw any, path string) model.ServiceRequest {
	var r model.ServiceRequest
	m, ok := w.object(raw, path, "key", "location", "timeWindow", "serviceType", "materialCost", "timeCost")
	if !ok {
		return r
	}
	r.Key, _ = w.str(m, path, "key", true)
	if raw, present := m["location"]; present {
		loc := w.location(raw, join(path, "location"))
		r.Location = &loc
	} else {
		w.errs.add(join(path, "location"), ReasonRequired, "is required")
	}
	if raw, present := m["timeWindow"]; present {
		tw := w.timeWindow(raw, join(path, "timeWindow"))
		r.TimeWindow = &tw
	}
	r.ServiceType, _ = w.str(m, path, "serviceType", true)
	r.MaterialCost, _ = w.integer(m, path, "materialCost", false)
	r.TimeCost, _ = w.integer(m, path, "timeCost", false)
	return r
}

// collection accepts a single object or a non-empty array.
func (w *walker) collection(m map[string]any, path, key string, each func(raw any, path string)) {
	p := join(path, key)
	val, present := m[key]
	if !present {
		w.errs.add(p, ReasonRequired, "is required")
		return
	}
	switch x := val.(type) {
	case []any:
		if len(x) == 0 {
			w.errs.add(p, ReasonRange, "must contain at least 1 item(s)")
			return
		}
		for i, item := range x {
			each(item, fmt.Sprintf("%s[%d]", p, i))
		}
	case map[string]any:
		each(x, p+"[0]")
	default:
		w.errs.add(p, ReasonType, "must be an object or an array of objects")
	}
}

func (w *walker) problem(raw any, path string) model.Problem {
	var p model.Problem
	m, ok := w.object(raw, path, "fleet", "requests")
	if !ok {
		return p
	}
	w.collection(m, path, "fleet", func(raw any, path string) {
		p.Fleet = append(p.Fleet, w.vehicle(raw, path))
	})
	w.collection(m, path, "requests", func(raw any, path string) {
		p.Requests = append(p.Requests, w.request(raw, path))
	})
	return p
}

// Package model holds the JSON wire types shared by the solver, the store and the HTTP API.
package model

import (
	"encoding/json"
	"time"
)

// Location is a point in latitude/longitude space.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TimeWindow is a closed interval of integer time units.
type TimeWindow struct {
	Start int `json:"start" validate:"gte=0,ltefield=End"`
	End   int `json:"end" validate:"gte=0"`
}

// Vehicle is a fleet member. A nil capacity means the vehicle cannot serve that service type.
type Vehicle struct {
	Key             string    `json:"key" validate:"required"`
	Location        *Location `json:"location" validate:"required"`
	StartAt         *int      `json:"startAt,omitempty" validate:"omitempty,gte=0"`
	EndBy           *int      `json:"endBy,omitempty" validate:"omitempty,gte=0"`
	CostPerDistance float64   `json:"costPerDistance" validate:"gt=0"`

	FryerOil     *int `json:"fryerOil,omitempty" validate:"omitempty,gt=0"`
	GreaseTrap   *int `json:"greaseTrap,omitempty" validate:"omitempty,gt=0"`
	HoodCleaning *int `json:"hoodCleaning,omitempty" validate:"omitempty,gt=0"`
	HydroJetting *int `json:"hydroJetting,omitempty" validate:"omitempty,gt=0"`
}

// ServiceRequest is a job to be served by exactly one vehicle, or left unassigned.
type ServiceRequest struct {
	Key          string      `json:"key" validate:"required"`
	Location     *Location   `json:"location" validate:"required"`
	TimeWindow   *TimeWindow `json:"timeWindow,omitempty"`
	ServiceType  string      `json:"serviceType" validate:"required,oneof=fryerOil greaseTrap hoodCleaning hydroJetting"`
	MaterialCost int         `json:"materialCost" validate:"gte=0"`
	TimeCost     int         `json:"timeCost" validate:"gte=0"`
}

// Problem is a normalized problem definition: both collections non-empty.
type Problem struct {
	Fleet    []Vehicle        `json:"fleet" validate:"min=1,dive"`
	Requests []ServiceRequest `json:"requests" validate:"min=1,dive"`
}

// SolveOptions tune a single solve. Zero values select the configured defaults.
type SolveOptions struct {
	MaxIterations int   `json:"maxIterations,omitempty"`
	Seed          int64 `json:"seed,omitempty"`
	TimeBudgetMs  int   `json:"timeBudgetMs,omitempty"`
}

// SolveRequest is the body accepted by the solve endpoints. Problem stays raw so the
// validator can report unknown fields and coerce numeric strings.
type SolveRequest struct {
	Problem        json.RawMessage `json:"problem"`
	Options        *SolveOptions   `json:"options,omitempty"`
	CallbackURL    string          `json:"callbackUrl,omitempty"`
	CallbackSecret string          `json:"callbackSecret,omitempty"`
}

// SolutionResponse is the externally visible solution shape.
type SolutionResponse struct {
	TotalCost      int        `json:"totalCost"`
	UnassignedJobs []string   `json:"unassignedJobs"`
	Routes         []RouteOut `json:"routes"`
}

type RouteOut struct {
	Vehicle string        `json:"vehicle"`
	Jobs    []ActivityOut `json:"jobs"`
}

type ActivityOut struct {
	Request       string `json:"request"`
	ArrivalTime   int    `json:"arrivalTime"`
	DepartureTime int    `json:"departureTime"`
}

// SolveStatus is the lifecycle state of an asynchronous solve.
type SolveStatus string

const (
	SolveQueued    SolveStatus = "queued"
	SolveRunning   SolveStatus = "running"
	SolveSucceeded SolveStatus = "succeeded"
	SolveFailed    SolveStatus = "failed"
)

// SolveRecord tracks one asynchronous solve from enqueue to result.
type SolveRecord struct {
	ID             string            `json:"id"`
	Status         SolveStatus       `json:"status"`
	Request        json.RawMessage   `json:"-"`
	CallbackURL    string            `json:"callbackUrl,omitempty"`
	CallbackSecret string            `json:"-"`
	Response       *SolutionResponse `json:"response,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	FinishedAt     *time.Time        `json:"finishedAt,omitempty"`
}

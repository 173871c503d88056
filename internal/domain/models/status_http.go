package models

import "time"

// Requests for the status HTTP endpoints.

type EventsRequest struct {
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	Type  string `query:"type" json:"type" validate:"omitempty,max=64"`
	Asset string `query:"asset" json:"asset" validate:"omitempty,max=32"`
}

// ListenerStatus is the read-only view served by /api/status.
type ListenerStatus struct {
	Version    string                 `json:"version"`
	Source     string                 `json:"source"`
	StartedAt  time.Time              `json:"started_at"`
	LastCycle  *time.Time             `json:"last_cycle"`
	Cycles     int64                  `json:"cycles"`
	LastTickID int64                  `json:"last_tick_id"`
	Assets     map[string]AssetStatus `json:"assets"`
}

type AssetStatus struct {
	LastPrice   float64    `json:"last_price"`
	LastTick    *time.Time `json:"last_tick"`
	Accepted    int64      `json:"accepted"`
	Rejected    int64      `json:"rejected"`
	FetchErrors int64      `json:"fetch_errors"`
	Metrics     *Metrics   `json:"metrics,omitempty"`
}

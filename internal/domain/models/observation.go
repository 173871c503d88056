package models

import "time"

// Observation is a single polled price. It is written once to the day's
// observation log and never changed.
type Observation struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"ts_utc"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
}

// TrackerSnapshot is the persisted state of one asset tracker.
type TrackerSnapshot struct {
	Asset       string    `json:"asset"`
	Prices      []float64 `json:"prices"`
	ShortWindow int       `json:"short_window"`
	LongWindow  int       `json:"long_window"`
}

// SequenceMeta is the on-disk record of the global tick counter.
type SequenceMeta struct {
	LastTickID int64     `json:"last_tick_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RunMeta describes a listener run; written once at start.
type RunMeta struct {
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"started_at"`
	Assets         []string  `json:"assets"`
	CadenceSeconds int       `json:"cadence_seconds"`
	LogLevel       string    `json:"log_level"`
	Source         string    `json:"source"`
}

// RelayCheckpoint is the byte offset in the spine up to which every valid
// envelope has been forwarded.
type RelayCheckpoint struct {
	Offset    int64     `json:"offset"`
	Sink      string    `json:"sink"`
	UpdatedAt time.Time `json:"updated_at"`
}

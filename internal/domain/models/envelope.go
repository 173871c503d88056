package models

import (
	"time"

	"github.com/google/uuid"
)

// Spine event types.
const (
	EventListenerStart      = "listener.start"
	EventListenerStop       = "listener.stop"
	EventListenerCrash      = "listener.crash"
	EventListenerDowntime   = "listener.downtime"
	EventInvariantViolation = "invariant.violation"
)

// EventTypes lists every event_type the listener and watchdog write.
func EventTypes() []string {
	return []string{
		EventListenerStart,
		EventListenerStop,
		EventListenerCrash,
		EventListenerDowntime,
		EventInvariantViolation,
		KindBreakout.EventType(),
		KindVolSpike.EventType(),
		KindMRTouch.EventType(),
	}
}

func IsKnownEventType(t string) bool {
	for _, known := range EventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

const (
	SourceListener = "regimedesk_listener"
	SourceWatchdog = "regimedesk_watchdog"
)

// Envelope is the unit of record in the event spine. All seven keys are
// required and no others are allowed on the wire. payload may hold any JSON
// value, null included.
type Envelope struct {
	EventID   string      `json:"event_id" validate:"required,uuid"`
	EventType string      `json:"event_type" validate:"required"`
	Timestamp string      `json:"timestamp" validate:"required,utc_timestamp"`
	Source    string      `json:"source" validate:"required"`
	Version   string      `json:"version" validate:"required"`
	Host      string      `json:"host" validate:"required"`
	Payload   interface{} `json:"payload"`
}

// Time parses the envelope timestamp. It returns false for values that would
// fail validation.
func (e Envelope) Time() (time.Time, bool) {
	t, err := ParseUTCTimestamp(e.Timestamp)
	return t, err == nil
}

// EnvelopeFactory stamps envelopes for one producer.
type EnvelopeFactory struct {
	Source  string
	Version string
	Host    string
	Now     func() time.Time
}

// New builds an envelope with a fresh UUID and the current UTC time.
func (f EnvelopeFactory) New(eventType string, payload interface{}) Envelope {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: FormatTimestamp(now()),
		Source:    f.Source,
		Version:   f.Version,
		Host:      f.Host,
		Payload:   payload,
	}
}

// FormatTimestamp renders t as RFC 3339 in UTC with a trailing Z.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// --- payloads ---

type StartPayload struct {
	Assets         []string `json:"assets"`
	CadenceSeconds int      `json:"cadence_seconds"`
	Source         string   `json:"source"`
	LastTickID     int64    `json:"last_tick_id"`
}

type StopPayload struct {
	Reason string `json:"reason"`
}

type CrashPayload struct {
	ExceptionType string `json:"exception_type"`
	Message       string `json:"message"`
	ReportPath    string `json:"report_path,omitempty"`
}

type InvariantViolation struct {
	EventType   string      `json:"event_type"`
	InvariantID string      `json:"invariant_id"`
	Severity    string      `json:"severity"`
	Timestamp   string      `json:"timestamp"`
	Details     interface{} `json:"details"`
}

type ViolationDetails struct {
	Observed interface{} `json:"observed"`
	Expected string      `json:"expected"`
	Action   string      `json:"action"`
}

// NewInvariantViolation fills the fixed event_type field.
func NewInvariantViolation(id, severity string, at time.Time, details interface{}) InvariantViolation {
	return InvariantViolation{
		EventType:   EventInvariantViolation,
		InvariantID: id,
		Severity:    severity,
		Timestamp:   FormatTimestamp(at),
		Details:     details,
	}
}

// DowntimePayload is emitted by the watchdog. Unknown values are null.
type DowntimePayload struct {
	Reason                     string  `json:"reason"`
	GapSeconds                 *int64  `json:"gap_seconds"`
	ThresholdSeconds           int64   `json:"threshold_seconds"`
	PollIntervalSeconds        float64 `json:"poll_interval_seconds"`
	LastSeenTimestamp          *string `json:"last_seen_timestamp"`
	LastHeartbeatTimestamp     *string `json:"last_heartbeat_timestamp"`
	LastHeartbeatPath          *string `json:"last_heartbeat_path"`
	LastListenerEventType      *string `json:"last_listener_event_type"`
	LastListenerEventTimestamp *string `json:"last_listener_event_timestamp"`
	LastListenerEventID        *string `json:"last_listener_event_id"`
}

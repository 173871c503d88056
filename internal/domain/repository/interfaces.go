package repository

import (
	"context"

	"RegimeDesk/internal/domain/models"
)

// PriceSource returns the current price of one asset.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, asset string) (models.Observation, error)
}

// EventLog is the append side of the event spine.
type EventLog interface {
	Append(env models.Envelope) error
}

// Sink receives spine envelopes from the relay. Forward must be idempotent
// per event_id; the relay redelivers a batch after a failure.
type Sink interface {
	Name() string
	Forward(ctx context.Context, batch []models.Envelope) error
	Close() error
}

type Metrics interface {
	RecordTick(asset string, accepted bool)
	RecordFetchError(asset string)
	RecordEvent(kind string)
	RecordSpineAppend(eventType string)
	RecordLastPrice(asset string, price float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
	RecordRelayForwarded(sink string, n int)
	RecordDowntime(reason string)
}

package models

import (
	"fmt"
	"time"
)

type EventKind string

const (
	KindBreakout EventKind = "breakout"
	KindVolSpike EventKind = "vol_spike"
	KindMRTouch  EventKind = "mr_touch"
)

// EventType is the spine event_type for a regime event of this kind.
func (k EventKind) EventType() string {
	return "regime." + string(k)
}

// EventHeader carries the fields every regime event has.
type EventHeader struct {
	Asset     string
	Timestamp time.Time
	TickID    int64
}

// RegimeEvent is implemented only by BreakoutEvent, VolSpikeEvent and
// MRTouchEvent.
type RegimeEvent interface {
	Kind() EventKind
	Header() EventHeader
	regimeEvent()
}

type BreakoutEvent struct {
	EventHeader
	Price        float64
	RollingMean  float64
	Deviation    float64
	DeviationPct float64
	Threshold    float64
}

type VolSpikeEvent struct {
	EventHeader
	ShortVol float64
	LongVol  float64
	Ratio    float64
}

type MRTouchEvent struct {
	EventHeader
	Price       float64
	RollingMean float64
	BandWidth   float64
	LowerBand   float64
	UpperBand   float64
	Position    string // "upper" or "lower"
}

func (BreakoutEvent) Kind() EventKind { return KindBreakout }
func (VolSpikeEvent) Kind() EventKind { return KindVolSpike }
func (MRTouchEvent) Kind() EventKind  { return KindMRTouch }

func (e BreakoutEvent) Header() EventHeader { return e.EventHeader }
func (e VolSpikeEvent) Header() EventHeader { return e.EventHeader }
func (e MRTouchEvent) Header() EventHeader  { return e.EventHeader }

func (BreakoutEvent) regimeEvent() {}
func (VolSpikeEvent) regimeEvent() {}
func (MRTouchEvent) regimeEvent()  {}

// WithTickID returns a copy of ev stamped with tickID.
func WithTickID(ev RegimeEvent, tickID int64) RegimeEvent {
	switch e := ev.(type) {
	case BreakoutEvent:
		e.TickID = tickID
		return e
	case VolSpikeEvent:
		e.TickID = tickID
		return e
	case MRTouchEvent:
		e.TickID = tickID
		return e
	default:
		panic(fmt.Sprintf("models: unknown regime event %T", ev))
	}
}

// RegimePayload is the spine payload of a regime event.
type RegimePayload struct {
	Event     EventKind              `json:"event"`
	Asset     string                 `json:"asset"`
	Price     *float64               `json:"price"`
	Timestamp string                 `json:"timestamp"`
	TickID    int64                  `json:"tick_id"`
	Metrics   map[string]interface{} `json:"metrics"`
}

// NewRegimePayload renders ev into its spine payload.
func NewRegimePayload(ev RegimeEvent) RegimePayload {
	h := ev.Header()
	p := RegimePayload{
		Event:     ev.Kind(),
		Asset:     h.Asset,
		Timestamp: FormatTimestamp(h.Timestamp),
		TickID:    h.TickID,
	}
	switch e := ev.(type) {
	case BreakoutEvent:
		price := e.Price
		p.Price = &price
		p.Metrics = map[string]interface{}{
			"rolling_mean":       e.RollingMean,
			"deviation":          e.Deviation,
			"deviation_pct":      e.DeviationPct,
			"breakout_threshold": e.Threshold,
		}
	case VolSpikeEvent:
		p.Metrics = map[string]interface{}{
			"short_vol": e.ShortVol,
			"long_vol":  e.LongVol,
			"ratio":     e.Ratio,
		}
	case MRTouchEvent:
		price := e.Price
		p.Price = &price
		p.Metrics = map[string]interface{}{
			"rolling_mean": e.RollingMean,
			"band_width":   e.BandWidth,
			"lower_band":   e.LowerBand,
			"upper_band":   e.UpperBand,
			"position":     e.Position,
		}
	default:
		panic(fmt.Sprintf("models: unknown regime event %T", ev))
	}
	return p
}

package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"RegimeDesk/internal/domain/models"
)

// ObservationLog appends raw price observations to the day's JSONL file.
type ObservationLog struct {
	layout Layout
}

func NewObservationLog(layout Layout) *ObservationLog { return &ObservationLog{layout: layout} }

func (o *ObservationLog) Append(obs models.Observation) error {
	rec := struct {
		Asset  string  `json:"asset"`
		TsUTC  string  `json:"ts_utc"`
		Price  float64 `json:"price"`
		Source string  `json:"source"`
	}{obs.Asset, models.FormatTimestamp(obs.Timestamp), obs.Price, obs.Source}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}
	return AppendLine(o.layout.ObservationLog(obs.Timestamp), b)
}

// MetricsLog appends the derived metrics of every accepted tick to the
// day's JSONL file.
type MetricsLog struct {
	layout Layout
}

func NewMetricsLog(layout Layout) *MetricsLog { return &MetricsLog{layout: layout} }

func (l *MetricsLog) Append(tickID int64, asset string, ts time.Time, m models.Metrics) error {
	rec := struct {
		TickID int64  `json:"tick_id"`
		Asset  string `json:"asset"`
		TsUTC  string `json:"ts_utc"`
		models.Metrics
	}{tickID, asset, models.FormatTimestamp(ts), m}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal tick metrics: %w", err)
	}
	return AppendLine(l.layout.TickMetricsLog(ts), b)
}

// SnapshotStore persists tracker snapshots, one file per asset per day.
type SnapshotStore struct {
	layout Layout
}

func NewSnapshotStore(layout Layout) *SnapshotStore { return &SnapshotStore{layout: layout} }

func (s *SnapshotStore) Save(at time.Time, snap models.TrackerSnapshot) error {
	return WriteJSONAtomic(s.layout.StateFile(at, snap.Asset), snap)
}

// Load returns the snapshot saved on at's UTC day. found is false when no
// snapshot exists for that day.
func (s *SnapshotStore) Load(at time.Time, asset string) (snap models.TrackerSnapshot, found bool, err error) {
	if err := ReadJSON(s.layout.StateFile(at, asset), &snap); err != nil {
		if IsNotExist(err) {
			return models.TrackerSnapshot{}, false, nil
		}
		return models.TrackerSnapshot{}, false, err
	}
	return snap, true, nil
}

// Heartbeat writes "<ts> alive" lines into the day's heartbeat log.
type Heartbeat struct {
	layout Layout
}

func NewHeartbeat(layout Layout) *Heartbeat { return &Heartbeat{layout: layout} }

func (h *Heartbeat) Beat(at time.Time) error {
	return AppendText(h.layout.HeartbeatLog(at), models.FormatTimestamp(at)+" alive")
}

// IntegrityLog records sequence violations as plain text.
type IntegrityLog struct {
	layout Layout
}

func NewIntegrityLog(layout Layout) *IntegrityLog { return &IntegrityLog{layout: layout} }

// NonMonotonic logs a tick whose timestamp did not advance past prev.
func (l *IntegrityLog) NonMonotonic(ts time.Time, asset string, tickID int64, prev time.Time) error {
	line := fmt.Sprintf("%s, pair=%s, tick_id=%d, non_monotonic_ts, prev=%s",
		models.FormatTimestamp(ts), asset, tickID, models.FormatTimestamp(prev))
	return AppendText(l.layout.IntegrityLog(ts), line)
}

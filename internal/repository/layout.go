package repository

import (
	"fmt"
	"path/filepath"
	"time"
)

// Layout resolves every path under the versioned state directory. Per-day
// files live in a YYYY-MM-DD directory named after the UTC date.
type Layout struct {
	Base string
}

func NewLayout(base string) Layout { return Layout{Base: base} }

func (l Layout) DayDir(t time.Time) string {
	return filepath.Join(l.Base, t.UTC().Format("2006-01-02"))
}

func (l Layout) ObservationLog(t time.Time) string {
	return filepath.Join(l.DayDir(t), "tick_observation.jsonl")
}

func (l Layout) TickMetricsLog(t time.Time) string {
	return filepath.Join(l.DayDir(t), "tick_metrics.jsonl")
}

func (l Layout) StateFile(t time.Time, asset string) string {
	return filepath.Join(l.DayDir(t), fmt.Sprintf("state_%s.json", asset))
}

func (l Layout) IntegrityLog(t time.Time) string {
	return filepath.Join(l.DayDir(t), "sequence_integrity.log")
}

func (l Layout) HeartbeatLog(t time.Time) string {
	return filepath.Join(l.DayDir(t), "heartbeat.log")
}

// HeartbeatGlob matches the heartbeat log of every run-day.
func (l Layout) HeartbeatGlob() string {
	return filepath.Join(l.Base, "*", "heartbeat.log")
}

func (l Layout) Spine() string           { return filepath.Join(l.Base, "event_spine.jsonl") }
func (l Layout) SequenceMeta() string    { return filepath.Join(l.Base, "sequence_meta.json") }
func (l Layout) RunMeta() string         { return filepath.Join(l.Base, "run_meta.json") }
func (l Layout) RelayCheckpoint() string { return filepath.Join(l.Base, "relay_checkpoint.json") }

func (l Layout) CrashReport(t time.Time) string {
	return filepath.Join(l.Base, fmt.Sprintf("crash_%s.txt", t.UTC().Format("20060102T150405.000000000Z")))
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"RegimeDesk/internal/domain/models"
	drepo "RegimeDesk/internal/domain/repository"
	"RegimeDesk/internal/repository"
	"RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/metrics"
)

// MinPollInterval bounds how often the watchdog loop rescans the disk.
const MinPollInterval = 200 * time.Millisecond

var ErrInvalidGap = errors.New("watchdog: gap must be positive")

// Downtime reasons, in decreasing priority.
const (
	ReasonNeverSeenAlive       = "never_seen_alive"
	ReasonHeartbeatMissing     = "heartbeat_missing"
	ReasonHeartbeatFileMissing = "heartbeat_file_missing"
	ReasonHeartbeatGapExceeded = "heartbeat_gap_exceeded"
)

// Watchdog detects listener downtime from the heartbeat logs and the spine
// and records it as listener.downtime. It keeps no state between runs.
type Watchdog struct {
	gap     time.Duration
	poll    time.Duration
	layout  repository.Layout
	spine   *repository.Spine
	events  drepo.EventLog
	factory models.EnvelopeFactory
	now     func() time.Time
	sleeper Sleeper
	log     *logger.Logger
	metrics drepo.Metrics
}

type WatchdogOption func(*Watchdog)

func WithWatchdogClock(now func() time.Time) WatchdogOption {
	return func(w *Watchdog) { w.now = now }
}

func WithWatchdogSleeper(s Sleeper) WatchdogOption {
	return func(w *Watchdog) { w.sleeper = s }
}

func WithWatchdogLogger(l *logger.Logger) WatchdogOption {
	return func(w *Watchdog) { w.log = l }
}

func WithWatchdogMetrics(m drepo.Metrics) WatchdogOption {
	return func(w *Watchdog) { w.metrics = m }
}

// NewWatchdog reads from and appends to store's spine. Poll intervals under
// MinPollInterval are raised to it.
func NewWatchdog(gap, poll time.Duration, store *repository.StateStore, factory models.EnvelopeFactory, opts ...WatchdogOption) (*Watchdog, error) {
	if gap <= 0 {
		return nil, ErrInvalidGap
	}
	if poll < MinPollInterval {
		poll = MinPollInterval
	}
	w := &Watchdog{
		gap:     gap,
		poll:    poll,
		layout:  store.Layout,
		spine:   store.Spine,
		events:  store.Spine,
		factory: factory,
		now:     time.Now,
		sleeper: timerSleeper{},
		log:     logger.Nop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.factory.Now == nil {
		w.factory.Now = w.now
	}
	return w, nil
}

type listenerEvent struct {
	eventType string
	at        time.Time
	id        string
}

// WatchdogScan is what one scan of the disk found.
type WatchdogScan struct {
	LastHeartbeat     *time.Time
	HeartbeatPath     string
	HeartbeatFiles    bool
	LastDowntime      *time.Time
	lastListenerEvent *listenerEvent
}

// LastSeen is the later of the newest heartbeat and the newest lifecycle
// event.
func (o WatchdogScan) LastSeen() *time.Time {
	seen := o.LastHeartbeat
	if o.lastListenerEvent != nil && (seen == nil || o.lastListenerEvent.at.After(*seen)) {
		t := o.lastListenerEvent.at
		seen = &t
	}
	return seen
}

// ShouldEmit decides whether a downtime event is due. An unknown lastSeen
// emits only if no downtime was ever recorded; otherwise the gap must exceed
// threshold and no downtime may be recorded at or after lastSeen.
func ShouldEmit(now time.Time, lastSeen, lastDowntime *time.Time, threshold time.Duration) bool {
	if lastSeen == nil {
		return lastDowntime == nil
	}
	if now.Sub(*lastSeen) <= threshold {
		return false
	}
	if lastDowntime != nil && !lastSeen.After(*lastDowntime) {
		return false
	}
	return true
}

// Observe scans the heartbeat logs and the spine.
func (w *Watchdog) Observe() (WatchdogScan, error) {
	var obs WatchdogScan

	paths, err := filepath.Glob(w.layout.HeartbeatGlob())
	if err != nil {
		return obs, fmt.Errorf("glob heartbeats: %w", err)
	}
	for _, p := range paths {
		obs.HeartbeatFiles = true
		ts, ok := lastHeartbeat(p)
		if !ok {
			continue
		}
		if obs.LastHeartbeat == nil || ts.After(*obs.LastHeartbeat) {
			t := ts
			obs.LastHeartbeat = &t
			obs.HeartbeatPath = p
		}
	}

	_, err = w.spine.Scan(func(rec repository.Record) error {
		at, ok := rec.Envelope.Time()
		if !ok {
			return nil
		}
		switch rec.Envelope.EventType {
		case models.EventListenerDowntime:
			if obs.LastDowntime == nil || at.After(*obs.LastDowntime) {
				obs.LastDowntime = &at
			}
		case models.EventListenerStart, models.EventListenerStop, models.EventListenerCrash:
			if obs.lastListenerEvent == nil || at.After(obs.lastListenerEvent.at) {
				obs.lastListenerEvent = &listenerEvent{eventType: rec.Envelope.EventType, at: at, id: rec.Envelope.EventID}
			}
		}
		return nil
	})
	if err != nil {
		return obs, fmt.Errorf("scan spine: %w", err)
	}
	return obs, nil
}

// RunOnce performs one check and reports the payload it emitted, or nil.
func (w *Watchdog) RunOnce(ctx context.Context) (*models.DowntimePayload, error) {
	obs, err := w.Observe()
	if err != nil {
		return nil, err
	}
	now := w.now().UTC()
	lastSeen := obs.LastSeen()
	if !ShouldEmit(now, lastSeen, obs.LastDowntime, w.gap) {
		return nil, nil
	}

	p := w.payload(now, obs, lastSeen)
	if err := w.events.Append(w.factory.New(models.EventListenerDowntime, p)); err != nil {
		return nil, fmt.Errorf("emit downtime: %w", err)
	}
	w.metrics.RecordDowntime(p.Reason)
	w.log.Warn("listener downtime",
		logger.String("reason", p.Reason),
		logger.Any("gap_seconds", p.GapSeconds),
		logger.Int64("threshold_seconds", p.ThresholdSeconds),
	)
	return &p, nil
}

func (w *Watchdog) payload(now time.Time, obs WatchdogScan, lastSeen *time.Time) models.DowntimePayload {
	p := models.DowntimePayload{
		Reason:              downtimeReason(obs, lastSeen),
		ThresholdSeconds:    int64(w.gap / time.Second),
		PollIntervalSeconds: w.poll.Seconds(),
	}
	if lastSeen != nil {
		gap := int64(now.Sub(*lastSeen) / time.Second)
		p.GapSeconds = &gap
		p.LastSeenTimestamp = tsPtr(*lastSeen)
	}
	if obs.LastHeartbeat != nil {
		p.LastHeartbeatTimestamp = tsPtr(*obs.LastHeartbeat)
		path := obs.HeartbeatPath
		p.LastHeartbeatPath = &path
	}
	if ev := obs.lastListenerEvent; ev != nil {
		typ, id := ev.eventType, ev.id
		p.LastListenerEventType = &typ
		p.LastListenerEventTimestamp = tsPtr(ev.at)
		p.LastListenerEventID = &id
	}
	return p
}

func downtimeReason(obs WatchdogScan, lastSeen *time.Time) string {
	switch {
	case lastSeen == nil:
		return ReasonNeverSeenAlive
	case obs.lastListenerEvent != nil &&
		(obs.lastListenerEvent.eventType == models.EventListenerStop || obs.lastListenerEvent.eventType == models.EventListenerCrash):
		return obs.lastListenerEvent.eventType + "_observed"
	case obs.LastHeartbeat == nil && obs.HeartbeatFiles:
		return ReasonHeartbeatMissing
	case obs.LastHeartbeat == nil:
		return ReasonHeartbeatFileMissing
	default:
		return ReasonHeartbeatGapExceeded
	}
}

// Run sleeps one poll interval, checks, and repeats until ctx is done.
// Check failures are logged and the loop continues.
func (w *Watchdog) Run(ctx context.Context) error {
	w.log.Info("watchdog started",
		logger.Duration("gap", w.gap),
		logger.Duration("poll_interval", w.poll),
		logger.String("spine", w.spine.Path()),
	)
	for w.sleeper.Sleep(ctx, w.poll) {
		if _, err := w.RunOnce(ctx); err != nil {
			w.metrics.RecordError("watchdog")
			w.log.Error("watchdog check failed", logger.Error(err))
		}
	}
	return nil
}

// lastHeartbeat parses the first token of the last non-empty line.
func lastHeartbeat(path string) (time.Time, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	lines := strings.Split(string(b), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return models.ParseLenientTimestamp(strings.SplitN(line, " ", 2)[0])
	}
	return time.Time{}, false
}

func tsPtr(t time.Time) *string {
	s := models.FormatTimestamp(t)
	return &s
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"RegimeDesk/internal/domain/models"
	drepo "RegimeDesk/internal/domain/repository"
	"RegimeDesk/internal/repository"
	"RegimeDesk/internal/service/diagnostics"
	"RegimeDesk/internal/services/detectors"
	"RegimeDesk/internal/services/sequence"
	"RegimeDesk/internal/services/tracker"
	"RegimeDesk/pkg/config"
	"RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/metrics"
)

// Invariant ids carried by invariant.violation envelopes.
const (
	InvariantMissingObservation = "listener.missing_observation"
	InvariantNonMonotonic       = "listener.non_monotonic_timestamp"
	InvariantStaleAsset         = "listener.stale_asset"
)

// IngestorConfig is the listener section of the configuration, resolved.
type IngestorConfig struct {
	Assets     []string
	Anchor     string
	LongWindow int
	Thresholds detectors.Thresholds
	StaleAfter time.Duration
	Cadence    time.Duration
	Version    string
	LogLevel   string
	Source     string
}

func IngestorConfigFrom(cfg *config.Config) IngestorConfig {
	return IngestorConfig{
		Assets:     cfg.Listener.Assets,
		Anchor:     cfg.Anchor(),
		LongWindow: cfg.Listener.LongWindow,
		Thresholds: detectors.Thresholds{
			Breakout:  cfg.Detectors.BreakoutThreshold,
			BandWidth: cfg.Detectors.BandWidth,
		},
		StaleAfter: cfg.Listener.StaleAfter,
		Cadence:    cfg.Listener.Cadence,
		Version:    cfg.Version,
		LogLevel:   cfg.Log.Level,
		Source:     cfg.Listener.Source,
	}
}

// PanicError carries a recovered panic out of a cycle.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Ingestor runs one polling cycle per Tick: heartbeat, fetch, sequence
// check, tracking, detection and persistence, strictly in that order and on
// the caller's goroutine. Any error returned by Tick is fatal.
type Ingestor struct {
	cfg      IngestorConfig
	source   drepo.PriceSource
	events   drepo.EventLog
	store    *repository.StateStore
	counter  *sequence.Counter
	guard    *sequence.Guard
	factory  models.EnvelopeFactory
	trackers map[string]*tracker.Tracker

	metrics  drepo.Metrics
	log      *logger.Logger
	reporter CrashReporter
	now      func() time.Time

	startedAt     time.Time
	lastAccepted  map[string]time.Time
	staleReported bool

	mu     sync.RWMutex
	status models.ListenerStatus
}

type IngestorOption func(*Ingestor)

func WithIngestorClock(now func() time.Time) IngestorOption {
	return func(i *Ingestor) { i.now = now }
}

func WithIngestorMetrics(m drepo.Metrics) IngestorOption {
	return func(i *Ingestor) { i.metrics = m }
}

func WithIngestorLogger(l *logger.Logger) IngestorOption {
	return func(i *Ingestor) { i.log = l }
}

// CrashReporter is satisfied by *diagnostics.Reporter.
type CrashReporter interface {
	Reserve(at time.Time) (string, error)
	WriteAt(ctx context.Context, path string, c diagnostics.Crash) error
}

func WithCrashReporter(r CrashReporter) IngestorOption {
	return func(i *Ingestor) { i.reporter = r }
}

// NewIngestor builds one tracker per configured asset.
func NewIngestor(
	cfg IngestorConfig,
	source drepo.PriceSource,
	events drepo.EventLog,
	store *repository.StateStore,
	counter *sequence.Counter,
	factory models.EnvelopeFactory,
	opts ...IngestorOption,
) (*Ingestor, error) {
	i := &Ingestor{
		cfg:          cfg,
		source:       source,
		events:       events,
		store:        store,
		counter:      counter,
		guard:        sequence.NewGuard(),
		factory:      factory,
		trackers:     make(map[string]*tracker.Tracker, len(cfg.Assets)),
		metrics:      metrics.Nop{},
		log:          logger.Nop(),
		now:          time.Now,
		lastAccepted: make(map[string]time.Time, len(cfg.Assets)),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.factory.Now == nil {
		i.factory.Now = i.now
	}
	for _, asset := range cfg.Assets {
		t, err := tracker.New(asset, cfg.LongWindow)
		if err != nil {
			return nil, fmt.Errorf("tracker %s: %w", asset, err)
		}
		i.trackers[asset] = t
	}
	i.status = models.ListenerStatus{
		Version: cfg.Version,
		Source:  source.Name(),
		Assets:  make(map[string]models.AssetStatus, len(cfg.Assets)),
	}
	for _, asset := range cfg.Assets {
		i.status.Assets[asset] = models.AssetStatus{}
	}
	return i, nil
}

// Start restores today's tracker snapshots, records run metadata and emits
// listener.start.
func (i *Ingestor) Start(ctx context.Context) error {
	at := i.now().UTC()
	i.startedAt = at

	restored := 0
	for _, asset := range i.cfg.Assets {
		snap, found, err := i.store.Snapshots.Load(at, asset)
		if err != nil {
			i.log.Warn("snapshot load failed", logger.String("asset", asset), logger.Error(err))
			continue
		}
		if !found {
			continue
		}
		if err := i.trackers[asset].Restore(snap); err != nil {
			i.log.Warn("snapshot restore failed", logger.String("asset", asset), logger.Error(err))
			continue
		}
		restored++
	}

	meta := models.RunMeta{
		Version:        i.cfg.Version,
		StartedAt:      at,
		Assets:         i.cfg.Assets,
		CadenceSeconds: int(i.cfg.Cadence / time.Second),
		LogLevel:       i.cfg.LogLevel,
		Source:         i.source.Name(),
	}
	if err := repository.WriteJSONAtomic(i.store.Layout.RunMeta(), meta); err != nil {
		i.log.Warn("run meta write failed", logger.Error(err))
	}

	i.mu.Lock()
	i.status.StartedAt = at
	i.status.LastTickID = i.counter.Last()
	i.mu.Unlock()

	i.log.Info("listener starting",
		logger.Strings("assets", i.cfg.Assets),
		logger.Duration("cadence", i.cfg.Cadence),
		logger.Int("restored_snapshots", restored),
		logger.Int64("last_tick_id", i.counter.Last()),
	)
	return i.emit(models.EventListenerStart, models.StartPayload{
		Assets:         i.cfg.Assets,
		CadenceSeconds: meta.CadenceSeconds,
		Source:         meta.Source,
		LastTickID:     i.counter.Last(),
	})
}

// Stop emits listener.stop.
func (i *Ingestor) Stop(reason string) error {
	i.log.Info("listener stopping", logger.String("reason", reason))
	return i.emit(models.EventListenerStop, models.StopPayload{Reason: reason})
}

// Crash emits listener.crash naming the report path, then writes the
// report. Both steps are best effort; the returned path is empty unless the
// report was written.
func (i *Ingestor) Crash(ctx context.Context, cause error) string {
	excType := exceptionType(cause)
	var stack []byte
	var pe *PanicError
	if errors.As(cause, &pe) {
		stack = pe.Stack
	}
	at := i.now()

	var path string
	if i.reporter != nil {
		p, err := i.reporter.Reserve(at)
		if err != nil {
			i.log.Error("crash report path unavailable", logger.Error(err))
		} else {
			path = p
		}
	}

	i.log.Error("listener crashed",
		logger.String("exception_type", excType),
		logger.Error(cause),
		logger.String("report_path", path),
	)
	if err := i.emit(models.EventListenerCrash, models.CrashPayload{
		ExceptionType: excType,
		Message:       cause.Error(),
		ReportPath:    path,
	}); err != nil {
		i.log.Error("crash event append failed", logger.Error(err))
	}

	if path == "" {
		return ""
	}
	err := i.reporter.WriteAt(ctx, path, diagnostics.Crash{
		At:         at,
		Type:       excType,
		Message:    cause.Error(),
		Stack:      stack,
		LastTickID: i.counter.Last(),
		Assets:     i.cfg.Assets,
	})
	if err != nil {
		i.log.Error("crash report failed", logger.String("report_path", path), logger.Error(err))
		return ""
	}
	return path
}

// Tick runs one cycle. A panic inside the cycle is returned as *PanicError.
func (i *Ingestor) Tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	began := time.Now()
	at := i.now().UTC()
	if err := i.store.Heartbeat.Beat(at); err != nil {
		i.log.Warn("heartbeat write failed", logger.Error(err))
		i.metrics.RecordError("heartbeat")
	}

	var missing []string
	for _, asset := range i.cfg.Assets {
		obs, err := i.source.Fetch(ctx, asset)
		if err != nil {
			i.log.Warn("fetch failed", logger.String("asset", asset), logger.Error(err))
			i.metrics.RecordFetchError(asset)
			i.updateAsset(asset, func(s *models.AssetStatus) { s.FetchErrors++ })
			missing = append(missing, asset)
			continue
		}
		if err := i.process(obs); err != nil {
			return err
		}
	}

	if len(missing) > 0 {
		v := models.NewInvariantViolation(InvariantMissingObservation, "warning", at, models.ViolationDetails{
			Observed: map[string]interface{}{
				"timestamp":     models.FormatTimestamp(at),
				"missing_pairs": missing,
			},
			Expected: "observation for each configured asset in poll cycle",
			Action:   "degraded",
		})
		if err := i.emit(models.EventInvariantViolation, v); err != nil {
			return err
		}
	}

	if err := i.checkStale(at); err != nil {
		return err
	}

	i.mu.Lock()
	i.status.LastCycle = &at
	i.status.Cycles++
	i.status.LastTickID = i.counter.Last()
	i.mu.Unlock()

	i.metrics.RecordLatency("cycle", time.Since(began).Seconds())
	return nil
}

func (i *Ingestor) process(obs models.Observation) error {
	if err := i.store.Observations.Append(obs); err != nil {
		return fmt.Errorf("observation log: %w", err)
	}

	tickID, err := i.counter.Advance(i.now())
	if err != nil {
		i.log.Warn("sequence meta persist failed", logger.Int64("tick_id", tickID), logger.Error(err))
		i.metrics.RecordError("sequence_meta")
	}

	prev, accepted := i.guard.Check(obs.Asset, obs.Timestamp)
	i.metrics.RecordTick(obs.Asset, accepted)
	if !accepted {
		return i.reject(obs, tickID, prev)
	}

	t, ok := i.trackers[obs.Asset]
	if !ok {
		i.log.Warn("observation for unknown asset", logger.String("asset", obs.Asset))
		return nil
	}
	m, ready, err := t.Update(obs.Price)
	if err != nil {
		i.log.Warn("tracker rejected price", logger.String("asset", obs.Asset), logger.Float64("price", obs.Price), logger.Error(err))
		i.metrics.RecordError("tracker")
		return nil
	}
	i.lastAccepted[obs.Asset] = i.now().UTC()
	i.metrics.RecordLastPrice(obs.Asset, obs.Price)

	if err := i.store.Snapshots.Save(obs.Timestamp, t.Snapshot()); err != nil {
		i.log.Warn("snapshot save failed", logger.String("asset", obs.Asset), logger.Error(err))
		i.metrics.RecordError("snapshot")
	}

	ts := obs.Timestamp
	var mp *models.Metrics
	if ready {
		if anchor, ok := i.trackers[i.cfg.Anchor]; ok && obs.Asset != i.cfg.Anchor {
			m.Correlation = tracker.Correlation(anchor, t)
		}
		mcopy := m
		mp = &mcopy
	}
	i.updateAsset(obs.Asset, func(s *models.AssetStatus) {
		s.Accepted++
		s.LastPrice = obs.Price
		s.LastTick = &ts
		if mp != nil {
			s.Metrics = mp
		}
	})
	if !ready {
		return nil
	}
	i.recordMetrics(tickID, obs, m)

	for _, ev := range detectors.Evaluate(obs.Asset, m, i.cfg.Thresholds, obs.Timestamp, tickID) {
		if err := i.emit(ev.Kind().EventType(), models.NewRegimePayload(ev)); err != nil {
			return err
		}
		i.metrics.RecordEvent(string(ev.Kind()))
		i.log.Info("regime event",
			logger.String("event", string(ev.Kind())),
			logger.String("asset", obs.Asset),
			logger.Int64("tick_id", tickID),
			logger.Float64("price", obs.Price),
		)
	}
	return nil
}

func (i *Ingestor) recordMetrics(tickID int64, obs models.Observation, m models.Metrics) {
	i.log.Debug("tick metrics",
		logger.Int64("tick_id", tickID),
		logger.String("asset", obs.Asset),
		logger.Time("timestamp", obs.Timestamp),
		logger.Float64("price", m.Price),
		logger.Float64("log_return", m.LogReturn),
		logger.Float64("rolling_mean", m.RollingMean),
		logger.Float64("rolling_std", m.RollingStd),
		logger.Float64("zscore", m.ZScore),
		logger.Float64("slope", m.Slope),
		logger.Float64("range", m.Range),
		logger.Float64("short_vol", m.ShortVol),
		logger.Float64("long_vol", m.LongVol),
		logger.Float64("rolling_correlation", m.Correlation),
		logger.Bool("warming_up", m.WarmingUp),
	)
	if err := i.store.Metrics.Append(tickID, obs.Asset, obs.Timestamp, m); err != nil {
		i.log.Warn("tick metrics write failed", logger.String("asset", obs.Asset), logger.Error(err))
		i.metrics.RecordError("tick_metrics")
	}
}

func (i *Ingestor) reject(obs models.Observation, tickID int64, prev time.Time) error {
	i.log.Warn("non-monotonic timestamp",
		logger.String("asset", obs.Asset),
		logger.Int64("tick_id", tickID),
		logger.Time("timestamp", obs.Timestamp),
		logger.Time("previous", prev),
	)
	if err := i.store.Integrity.NonMonotonic(obs.Timestamp, obs.Asset, tickID, prev); err != nil {
		i.log.Warn("integrity log write failed", logger.Error(err))
		i.metrics.RecordError("integrity_log")
	}
	i.updateAsset(obs.Asset, func(s *models.AssetStatus) { s.Rejected++ })

	v := models.NewInvariantViolation(InvariantNonMonotonic, "warning", i.now(), models.ViolationDetails{
		Observed: map[string]interface{}{
			"pair":      obs.Asset,
			"timestamp": models.FormatTimestamp(obs.Timestamp),
			"previous":  models.FormatTimestamp(prev),
		},
		Expected: "timestamp must be greater than previous per-asset timestamp",
		Action:   "ignored",
	})
	return i.emit(models.EventInvariantViolation, v)
}

// checkStale reports, once per process, the first asset whose last accepted
// tick (or the listener start) is older than StaleAfter.
func (i *Ingestor) checkStale(at time.Time) error {
	if i.staleReported || i.cfg.StaleAfter <= 0 {
		return nil
	}
	for _, asset := range i.cfg.Assets {
		last, seen := i.lastAccepted[asset]
		if !seen {
			last = i.startedAt
		}
		gap := at.Sub(last)
		if gap <= i.cfg.StaleAfter {
			continue
		}
		var lastTS interface{}
		if seen {
			lastTS = models.FormatTimestamp(last)
		}
		v := models.NewInvariantViolation(InvariantStaleAsset, "critical", at, models.ViolationDetails{
			Observed: map[string]interface{}{
				"pair":          asset,
				"last_accepted": lastTS,
				"gap_seconds":   int64(gap / time.Second),
			},
			Expected: fmt.Sprintf("accepted observation within %s", i.cfg.StaleAfter),
			Action:   "alert",
		})
		i.staleReported = true
		i.log.Warn("stale asset", logger.String("asset", asset), logger.Duration("gap", gap))
		return i.emit(models.EventInvariantViolation, v)
	}
	return nil
}

func (i *Ingestor) emit(eventType string, payload interface{}) error {
	env := i.factory.New(eventType, payload)
	if err := i.events.Append(env); err != nil {
		i.metrics.RecordError("spine")
		return fmt.Errorf("emit %s: %w", eventType, err)
	}
	i.metrics.RecordSpineAppend(eventType)
	return nil
}

func (i *Ingestor) updateAsset(asset string, fn func(*models.AssetStatus)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.status.Assets[asset]
	fn(&s)
	i.status.Assets[asset] = s
}

// Status returns a copy of the current listener status. Safe for concurrent
// use with Tick.
func (i *Ingestor) Status() models.ListenerStatus {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := i.status
	out.Assets = make(map[string]models.AssetStatus, len(i.status.Assets))
	for k, v := range i.status.Assets {
		out.Assets[k] = v
	}
	return out
}

func exceptionType(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return "panic"
	}
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return fmt.Sprintf("%T", root)
}

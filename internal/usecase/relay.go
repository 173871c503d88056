package usecase

import (
	"context"
	"fmt"
	"os"
	"time"

	"RegimeDesk/internal/domain/models"
	drepo "RegimeDesk/internal/domain/repository"
	"RegimeDesk/internal/repository"
	"RegimeDesk/pkg/logger"
	"RegimeDesk/pkg/metrics"
)

// Relay tails the spine and forwards envelopes to a sink in batches. The
// checkpoint moves only after a batch is accepted, so delivery is
// at-least-once.
type Relay struct {
	spine          *repository.Spine
	sink           drepo.Sink
	checkpointPath string
	batchSize      int
	poll           time.Duration
	now            func() time.Time
	sleeper        Sleeper
	log            *logger.Logger
	metrics        drepo.Metrics
}

type RelayOption func(*Relay)

func WithRelayClock(now func() time.Time) RelayOption {
	return func(r *Relay) { r.now = now }
}

func WithRelaySleeper(s Sleeper) RelayOption {
	return func(r *Relay) { r.sleeper = s }
}

func WithRelayLogger(l *logger.Logger) RelayOption {
	return func(r *Relay) { r.log = l }
}

func WithRelayMetrics(m drepo.Metrics) RelayOption {
	return func(r *Relay) { r.metrics = m }
}

func NewRelay(store *repository.StateStore, sink drepo.Sink, batchSize int, poll time.Duration, opts ...RelayOption) *Relay {
	if batchSize < 1 {
		batchSize = 1
	}
	r := &Relay{
		spine:          store.Spine,
		sink:           sink,
		checkpointPath: store.Layout.RelayCheckpoint(),
		batchSize:      batchSize,
		poll:           poll,
		now:            time.Now,
		sleeper:        timerSleeper{},
		log:            logger.Nop(),
		metrics:        metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Checkpoint returns the persisted offset, zero when none exists.
func (r *Relay) Checkpoint() (models.RelayCheckpoint, error) {
	var cp models.RelayCheckpoint
	if err := repository.ReadJSON(r.checkpointPath, &cp); err != nil {
		if repository.IsNotExist(err) {
			return models.RelayCheckpoint{}, nil
		}
		return cp, err
	}
	return cp, nil
}

func (r *Relay) saveCheckpoint(offset int64) error {
	return repository.WriteJSONAtomic(r.checkpointPath, models.RelayCheckpoint{
		Offset:    offset,
		Sink:      r.sink.Name(),
		UpdatedAt: r.now().UTC(),
	})
}

// RunOnce forwards everything appended since the checkpoint and returns the
// number of envelopes delivered.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	cp, err := r.Checkpoint()
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	offset := cp.Offset
	if fi, err := os.Stat(r.spine.Path()); err == nil && fi.Size() < offset {
		r.log.Warn("spine shorter than checkpoint, restarting from zero",
			logger.Int64("checkpoint", offset),
			logger.Int64("size", fi.Size()),
		)
		offset = 0
	}

	forwarded := 0
	saved := cp.Offset
	batch := make([]models.Envelope, 0, r.batchSize)
	flush := func(end int64) error {
		if len(batch) == 0 {
			return nil
		}
		start := time.Now()
		if err := r.sink.Forward(ctx, batch); err != nil {
			r.metrics.RecordError("relay_forward")
			return fmt.Errorf("forward to %s: %w", r.sink.Name(), err)
		}
		r.metrics.RecordLatency("relay_forward", time.Since(start).Seconds())
		r.metrics.RecordRelayForwarded(r.sink.Name(), len(batch))
		forwarded += len(batch)
		batch = batch[:0]
		if err := r.saveCheckpoint(end); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		saved = end
		return nil
	}

	stats, err := r.spine.ScanFrom(offset, func(rec repository.Record) error {
		batch = append(batch, rec.Envelope)
		if len(batch) >= r.batchSize {
			return flush(rec.End)
		}
		return nil
	})
	if err != nil {
		return forwarded, err
	}
	if stats.Malformed > 0 {
		r.log.Warn("skipped malformed spine lines", logger.Int("count", stats.Malformed))
	}
	if err := flush(stats.Offset); err != nil {
		return forwarded, err
	}
	if stats.Offset != saved {
		// trailing blank or malformed lines
		if err := r.saveCheckpoint(stats.Offset); err != nil {
			return forwarded, fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return forwarded, nil
}

// Run repeats RunOnce every poll interval until ctx is done. Failed rounds
// are retried from the last checkpoint.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info("relay started",
		logger.String("sink", r.sink.Name()),
		logger.String("spine", r.spine.Path()),
		logger.Int("batch_size", r.batchSize),
	)
	for {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.log.Error("relay round failed", logger.Error(err))
		} else if n > 0 {
			r.log.Debug("relay forwarded", logger.Int("count", n))
		}
		if !r.sleeper.Sleep(ctx, r.poll) {
			return nil
		}
	}
}

// Close releases the sink.
func (r *Relay) Close() error { return r.sink.Close() }

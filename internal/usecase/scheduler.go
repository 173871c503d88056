package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeDesk/pkg/logger"
)

// Sleeper blocks for d or until ctx is done. It reports whether the full
// duration elapsed.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) bool
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Scheduler fires ticks aligned to whole UTC minutes. A tick that overruns
// its slot never causes catch-up ticks; the schedule skips forward.
type Scheduler struct {
	cadence time.Duration
	now     func() time.Time
	sleeper Sleeper
	log     *logger.Logger
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func WithSleeper(sl Sleeper) SchedulerOption {
	return func(s *Scheduler) { s.sleeper = sl }
}

func WithSchedulerLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler requires cadence to be a positive whole number of minutes.
func NewScheduler(cadence time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if cadence <= 0 || cadence%time.Minute != 0 {
		return nil, fmt.Errorf("cadence %s must be a positive multiple of 1m", cadence)
	}
	s := &Scheduler{
		cadence: cadence,
		now:     time.Now,
		sleeper: timerSleeper{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NextFullMinute is the first whole UTC minute strictly after t.
func NextFullMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute).Add(time.Minute)
}

// NextTarget returns the slot after prev. When now has already reached that
// slot, whole cadences are skipped so the result lies in the future.
func NextTarget(prev, now time.Time, cadence time.Duration) time.Time {
	next := prev.Add(cadence)
	if !now.Before(next) {
		missed := now.Sub(next)/cadence + 1
		next = next.Add(missed * cadence)
	}
	return next
}

// Run waits for the next full minute and then calls tick once per slot until
// ctx is cancelled. Cancellation is observed only between ticks; a running
// tick gets a context that is never cancelled. The first tick error stops
// the loop and is returned.
func (s *Scheduler) Run(ctx context.Context, tick func(context.Context) error) error {
	target := NextFullMinute(s.now())
	s.log.Info("scheduler waiting for first slot", logger.Time("first_tick", target), logger.Duration("cadence", s.cadence))
	if !s.sleepUntil(ctx, target) {
		return nil
	}
	tickCtx := context.WithoutCancel(ctx)
	for {
		if err := tick(tickCtx); err != nil {
			return err
		}
		next := NextTarget(target, s.now(), s.cadence)
		if skipped := int64(next.Sub(target)/s.cadence) - 1; skipped > 0 {
			s.log.Warn("tick overran its slot", logger.Int64("skipped_slots", skipped), logger.Time("next_tick", next))
		}
		target = next
		if !s.sleepUntil(ctx, target) {
			return nil
		}
	}
}

func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	remaining := target.Sub(s.now())
	if remaining <= 0 {
		return true
	}
	return s.sleeper.Sleep(ctx, remaining)
}

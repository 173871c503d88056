package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/repository"
	"RegimeDesk/internal/services/sequence"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSleeper advances the clock instead of sleeping and stops after limit
// sleeps.
type fakeSleeper struct {
	clock *fakeClock
	limit int
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil || len(s.slept) >= s.limit {
		return false
	}
	s.slept = append(s.slept, d)
	s.clock.Advance(d)
	return true
}

type fetchResult struct {
	price float64
	at    time.Time
	err   error
}

// scriptedSource replays per-asset results in order; an exhausted script
// fails the fetch.
type scriptedSource struct {
	script map[string][]fetchResult
	panics bool
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(_ context.Context, asset string) (models.Observation, error) {
	if s.panics {
		panic("source exploded")
	}
	q := s.script[asset]
	if len(q) == 0 {
		return models.Observation{}, errors.New("no data")
	}
	r := q[0]
	s.script[asset] = q[1:]
	if r.err != nil {
		return models.Observation{}, r.err
	}
	return models.Observation{Asset: asset, Timestamp: r.at, Price: r.price, Source: "scripted"}, nil
}

type failingLog struct{}

func (failingLog) Append(models.Envelope) error { return errors.New("disk full") }

func testEnvelopeFactory(clock *fakeClock, source string) models.EnvelopeFactory {
	return models.EnvelopeFactory{Source: source, Version: "v0.1", Host: "test-host", Now: clock.Now}
}

func readSpine(t *testing.T, store *repository.StateStore) []models.Envelope {
	t.Helper()
	envs, err := store.Spine.Tail(10000, nil)
	require.NoError(t, err)
	return envs
}

func ofType(envs []models.Envelope, eventType string) []models.Envelope {
	var out []models.Envelope
	for _, e := range envs {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func payloadMap(t *testing.T, e models.Envelope) map[string]interface{} {
	t.Helper()
	m, ok := e.Payload.(map[string]interface{})
	require.True(t, ok, "payload %T", e.Payload)
	return m
}

func newCounter(t *testing.T, store *repository.StateStore) *sequence.Counter {
	t.Helper()
	c, err := sequence.NewCounter(store.Layout.SequenceMeta())
	require.NoError(t, err)
	return c
}

package usecase

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	batches [][]models.Envelope
	failOn  int
	calls   int
}

func (s *recordingSink) Name() string { return "memory" }
func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) Forward(_ context.Context, batch []models.Envelope) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("broker unavailable")
	}
	cp := make([]models.Envelope, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *recordingSink) ids() []string {
	var out []string
	for _, b := range s.batches {
		for _, e := range b {
			out = append(out, e.EventID)
		}
	}
	return out
}

func seedSpine(t *testing.T, store *repository.StateStore, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		env := appendAt(t, store, wdStart.Add(time.Duration(i)*time.Second), models.EventListenerStart, models.StartPayload{LastTickID: int64(i)})
		ids = append(ids, env.EventID)
	}
	return ids
}

func TestRelayForwardsInBatchesAndCheckpoints(t *testing.T) {
	store := repository.NewStateStore(repository.NewLayout(t.TempDir()))
	ids := seedSpine(t, store, 5)
	sink := &recordingSink{}
	r := NewRelay(store, sink, 2, time.Second)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, sink.batches, 3)
	assert.Len(t, sink.batches[0], 2)
	assert.Len(t, sink.batches[2], 1)
	assert.Equal(t, ids, sink.ids())

	fi, err := os.Stat(store.Spine.Path())
	require.NoError(t, err)
	cp, err := r.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), cp.Offset)
	assert.Equal(t, "memory", cp.Sink)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing new")

	more := seedSpine(t, store, 1)
	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, append(ids, more...), sink.ids())
}

func TestRelayRedeliversAfterFailure(t *testing.T) {
	store := repository.NewStateStore(repository.NewLayout(t.TempDir()))
	ids := seedSpine(t, store, 4)
	sink := &recordingSink{failOn: 2}
	r := NewRelay(store, sink, 2, time.Second)

	n, err := r.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)

	n, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, ids, sink.ids(), "second batch delivered after retry")
}

func TestRelaySkipsMalformedLines(t *testing.T) {
	store := repository.NewStateStore(repository.NewLayout(t.TempDir()))
	ids := seedSpine(t, store, 1)
	require.NoError(t, repository.AppendText(store.Spine.Path(), "{broken"))
	sink := &recordingSink{}
	r := NewRelay(store, sink, 10, time.Second)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, ids, sink.ids())

	fi, err := os.Stat(store.Spine.Path())
	require.NoError(t, err)
	cp, err := r.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), cp.Offset, "malformed tail is consumed")
}

func TestRelayRestartsWhenSpineShrinks(t *testing.T) {
	store := repository.NewStateStore(repository.NewLayout(t.TempDir()))
	seedSpine(t, store, 1)
	require.NoError(t, repository.WriteJSONAtomic(store.Layout.RelayCheckpoint(), models.RelayCheckpoint{Offset: 1 << 20}))
	sink := &recordingSink{}
	r := NewRelay(store, sink, 10, time.Second)

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelayRunStopsWithContext(t *testing.T) {
	store := repository.NewStateStore(repository.NewLayout(t.TempDir()))
	seedSpine(t, store, 3)
	clock := newFakeClock(wdStart)
	sink := &recordingSink{}
	r := NewRelay(store, sink, 10, time.Second, WithRelaySleeper(&fakeSleeper{clock: clock, limit: 2}))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 3, len(sink.ids()))
	assert.Equal(t, 1, sink.calls)
}

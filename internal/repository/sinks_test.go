package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"RegimeDesk/internal/domain/models"
	pkgcache "RegimeDesk/pkg/cache"
	pkgkafka "RegimeDesk/pkg/kafka"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topic string
	msgs  []pkgkafka.Message
	err   error
}

func (p *capturePublisher) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, msgs...)
	return p.err
}

func (p *capturePublisher) Close() error { return nil }

func sampleBatch() []models.Envelope {
	f := testFactory(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return []models.Envelope{
		f.New(models.EventListenerStart, models.StartPayload{Assets: []string{"BTCUSDT"}}),
		f.New("regime.breakout", map[string]interface{}{"asset": "BTCUSDT"}),
		f.New("regime.breakout", map[string]interface{}{"asset": "ETHUSDT"}),
	}
}

func TestKafkaSinkKeysByEventType(t *testing.T) {
	pub := &capturePublisher{}
	sink := &KafkaSink{producer: pub, topic: "regime-events"}
	batch := sampleBatch()

	require.NoError(t, sink.Forward(context.Background(), batch))
	assert.Equal(t, "regime-events", pub.topic)
	require.Len(t, pub.msgs, 3)
	assert.Equal(t, []byte("regime.breakout"), pub.msgs[1].Key)
	assert.Equal(t, batch[0].EventID, pub.msgs[0].Headers["event_id"])

	env, err := models.ValidateEnvelopeJSON(pub.msgs[2].Value.([]byte))
	require.NoError(t, err)
	assert.Equal(t, batch[2].EventID, env.EventID)

	pub.err = errors.New("leader not available")
	assert.Error(t, sink.Forward(context.Background(), batch))
}

func TestRedisStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	client, err := pkgcache.NewRedisClient(pkgcache.WithRedisHost(mr.Host()), pkgcache.WithRedisPort(port), pkgcache.WithRedisPrefix("rd"))
	require.NoError(t, err)
	sink := NewRedisStreamSink(client, "spine", 1000)
	defer sink.Close()

	batch := sampleBatch()
	require.NoError(t, sink.Forward(context.Background(), batch))

	entries, err := mr.Stream("rd:spine")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	raw, err := mr.Get("rd:last:regime.breakout")
	require.NoError(t, err)
	var last models.Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &last))
	assert.Equal(t, batch[2].EventID, last.EventID)
}

func TestSpineRow(t *testing.T) {
	env := sampleBatch()[1]
	row, err := spineRow(env)
	require.NoError(t, err)
	require.Len(t, row, 7)
	assert.Equal(t, env.EventID, row[0])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), row[2])
	assert.JSONEq(t, `{"asset":"BTCUSDT"}`, row[6].(string))

	env.Timestamp = "2024-01-01T00:00:00"
	_, err = spineRow(env)
	assert.ErrorIs(t, err, models.ErrInvalidTimestamp)
}

func TestSpineEventsSchema(t *testing.T) {
	stmts := SpineEventsSchema("regimedesk", "spine_events")
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "regimedesk.spine_events")
	assert.Contains(t, stmts[1], "ReplacingMergeTree")
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"RegimeDesk/internal/domain/models"
	pkgcache "RegimeDesk/pkg/cache"
	pkgch "RegimeDesk/pkg/clickhouse"
	pkgkafka "RegimeDesk/pkg/kafka"
)

// batchPublisher is the part of pkg/kafka.Producer the Kafka sink uses.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaSink publishes each envelope as its JSON line, keyed by event_type
// so one type stays ordered on one partition.
type KafkaSink struct {
	producer batchPublisher
	topic    string
}

func NewKafkaSink(producer *pkgkafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Forward(ctx context.Context, batch []models.Envelope) error {
	msgs := make([]pkgkafka.Message, 0, len(batch))
	for _, env := range batch {
		b, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", env.EventID, err)
		}
		msgs = append(msgs, pkgkafka.Message{
			Key:   []byte(env.EventType),
			Value: b,
			Headers: map[string]string{
				"event_id": env.EventID,
				"source":   env.Source,
			},
		})
	}
	return s.producer.PublishBatch(ctx, s.topic, msgs)
}

func (s *KafkaSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// RedisStreamSink XADDs envelopes to a capped stream and keeps the latest
// envelope per event type under <prefix>:last:<event_type>.
type RedisStreamSink struct {
	client *pkgcache.RedisClient
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *pkgcache.RedisClient, stream string, maxLen int64) *RedisStreamSink {
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Name() string { return "redis" }

func (s *RedisStreamSink) Forward(ctx context.Context, batch []models.Envelope) error {
	entries := make([]pkgcache.StreamEntry, 0, len(batch))
	latest := make(map[string]models.Envelope)
	for _, env := range batch {
		b, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", env.EventID, err)
		}
		entries = append(entries, pkgcache.StreamEntry{Values: map[string]interface{}{
			"event_id":   env.EventID,
			"event_type": env.EventType,
			"timestamp":  env.Timestamp,
			"envelope":   string(b),
		}})
		latest[env.EventType] = env
	}
	if _, err := s.client.XAddBatch(ctx, s.stream, s.maxLen, entries); err != nil {
		return err
	}
	for eventType, env := range latest {
		if err := s.client.SetJSON(ctx, pkgcache.GenerateKey("last", eventType), env, 0); err != nil {
			return fmt.Errorf("set last %s: %w", eventType, err)
		}
	}
	return nil
}

func (s *RedisStreamSink) Close() error { return s.client.Close() }

// ClickHouseSink inserts envelopes into a ReplacingMergeTree keyed by
// event_id, so redelivered batches collapse on merge.
type ClickHouseSink struct {
	client *pkgch.Client
	table  string
}

func NewClickHouseSink(client *pkgch.Client, table string) *ClickHouseSink {
	return &ClickHouseSink{client: client, table: table}
}

// SpineEventsSchema returns the DDL for the spine table.
func SpineEventsSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    event_id    String,
    event_type  LowCardinality(String),
    ts          DateTime64(9, 'UTC'),
    source      LowCardinality(String),
    version     LowCardinality(String),
    host        String,
    payload     String,
    ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY toYYYYMM(ts)
ORDER BY (event_type, ts, event_id)`, database, table),
	}
}

// Init creates the table if needed.
func (s *ClickHouseSink) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SpineEventsSchema(s.client.Database(), s.table))
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Forward(ctx context.Context, batch []models.Envelope) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, env := range batch {
		row, err := spineRow(env)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	q := fmt.Sprintf("INSERT INTO %s.%s (event_id, event_type, ts, source, version, host, payload)",
		s.client.Database(), s.table)
	return s.client.InsertBatch(ctx, q, rows)
}

func (s *ClickHouseSink) Close() error { return s.client.Close() }

func spineRow(env models.Envelope) ([]interface{}, error) {
	ts, ok := env.Time()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidTimestamp, env.EventID)
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload %s: %w", env.EventID, err)
	}
	return []interface{}{
		env.EventID,
		env.EventType,
		ts.UTC(),
		env.Source,
		env.Version,
		env.Host,
		string(payload),
	}, nil
}

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelope() Envelope {
	return Envelope{
		EventID:   "6f1c8f0e-3f47-4a8e-9d55-1f5e2b9f6a10",
		EventType: EventListenerStart,
		Timestamp: "2024-01-01T00:00:00Z",
		Source:    SourceListener,
		Version:   "v0.1",
		Host:      "box-1",
		Payload:   map[string]interface{}{"ok": true},
	}
}

func TestValidateEnvelope(t *testing.T) {
	e := validEnvelope()
	require.NoError(t, ValidateEnvelope(&e))

	e.Host = ""
	assert.ErrorIs(t, ValidateEnvelope(&e), ErrMissingField)

	e = validEnvelope()
	e.Timestamp = "2024-01-01T00:00:00"
	assert.ErrorIs(t, ValidateEnvelope(&e), ErrInvalidTimestamp)

	e.Timestamp = "2024-01-01T02:00:00+02:00"
	assert.ErrorIs(t, ValidateEnvelope(&e), ErrInvalidTimestamp)

	e.Timestamp = "2024-01-01T00:00:00+00:00"
	assert.NoError(t, ValidateEnvelope(&e))

	e.EventID = "not-a-uuid"
	assert.ErrorIs(t, ValidateEnvelope(&e), ErrInvalidEnvelope)

	e = validEnvelope()
	e.Payload = nil
	assert.NoError(t, ValidateEnvelope(&e), "payload may be any JSON value")
}

func TestValidateEnvelopeJSON(t *testing.T) {
	raw, err := json.Marshal(validEnvelope())
	require.NoError(t, err)
	got, err := ValidateEnvelopeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "box-1", got.Host)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))

	delete(m, "host")
	noHost, _ := json.Marshal(m)
	_, err = ValidateEnvelopeJSON(noHost)
	assert.ErrorIs(t, err, ErrMissingField)

	m["host"] = "box-1"
	m["severity"] = "high"
	extra, _ := json.Marshal(m)
	_, err = ValidateEnvelopeJSON(extra)
	assert.ErrorIs(t, err, ErrUnexpectedField)

	delete(m, "severity")
	m["timestamp"] = "2024-01-01T00:00:00"
	naive, _ := json.Marshal(m)
	_, err = ValidateEnvelopeJSON(naive)
	assert.ErrorIs(t, err, ErrInvalidTimestamp)

	m["timestamp"] = "2024-01-01T00:00:00Z"
	for _, payload := range []interface{}{nil, 0, false, "", []interface{}{}} {
		m["payload"] = payload
		raw, _ := json.Marshal(m)
		_, err = ValidateEnvelopeJSON(raw)
		assert.NoError(t, err, "payload %#v", payload)
	}
	delete(m, "payload")
	noPayload, _ := json.Marshal(m)
	_, err = ValidateEnvelopeJSON(noPayload)
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = ValidateEnvelopeJSON([]byte("{not json"))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestEnvelopeFactory(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("CET", 3600))
	f := EnvelopeFactory{Source: SourceWatchdog, Version: "v0.1", Host: "h", Now: func() time.Time { return at }}

	e := f.New(EventListenerDowntime, StopPayload{Reason: "x"})
	require.NoError(t, ValidateEnvelope(&e))
	assert.Equal(t, "2024-05-06T06:08:09Z", e.Timestamp)

	ts, ok := e.Time()
	require.True(t, ok)
	assert.True(t, ts.Equal(at))

	other := f.New(EventListenerDowntime, StopPayload{Reason: "x"})
	assert.NotEqual(t, e.EventID, other.EventID)
}

func TestParseLenientTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-01T12:00:00Z", "2024-01-01T12:00:00+00:00", "2024-01-01T12:00:00", "2024-01-01T14:00:00+02:00"} {
		got, ok := ParseLenientTimestamp(s)
		require.True(t, ok, s)
		assert.True(t, got.Equal(want), s)
	}
	_, ok := ParseLenientTimestamp("yesterday")
	assert.False(t, ok)
}

func TestRegimePayload(t *testing.T) {
	h := EventHeader{Asset: "BTCUSDT", Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	spike := WithTickID(VolSpikeEvent{EventHeader: h, ShortVol: 2, LongVol: 1, Ratio: 2}, 42)
	p := NewRegimePayload(spike)
	assert.Equal(t, KindVolSpike, p.Event)
	assert.Nil(t, p.Price)
	assert.EqualValues(t, 42, p.TickID)
	assert.Equal(t, "regime.vol_spike", spike.Kind().EventType())

	touch := NewRegimePayload(MRTouchEvent{EventHeader: h, Price: 90, Position: "lower"})
	require.NotNil(t, touch.Price)
	assert.Equal(t, 90.0, *touch.Price)
	assert.Equal(t, "lower", touch.Metrics["position"])
}

func TestIsKnownEventType(t *testing.T) {
	assert.True(t, IsKnownEventType("listener.downtime"))
	assert.True(t, IsKnownEventType("regime.mr_touch"))
	assert.False(t, IsKnownEventType("regime.unknown"))
	assert.Len(t, EventTypes(), 8)
}

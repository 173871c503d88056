package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"RegimeDesk/internal/domain/models"
	xlogger "RegimeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStatus struct{ s models.ListenerStatus }

func (f fixedStatus) Status() models.ListenerStatus { return f.s }

type memEvents struct {
	envs  []models.Envelope
	calls int
}

func (m *memEvents) Tail(limit int, keep func(models.Envelope) bool) ([]models.Envelope, error) {
	m.calls++
	var out []models.Envelope
	for _, env := range m.envs {
		if keep(env) {
			out = append(out, env)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type listBody struct {
	Status int `json:"status"`
	Data   struct {
		Rows  []models.Envelope `json:"rows"`
		Total int64             `json:"total"`
	} `json:"data"`
}

func newTestServer(events *memEvents) *echo.Echo {
	e := echo.New()
	status := fixedStatus{s: models.ListenerStatus{Version: "v0.1", Source: "binance", Cycles: 3}}
	NewStatusHandler(xlogger.Nop(), status, events, time.Minute).RegisterRoutes(e)
	return e
}

func get(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func sampleEvents() []models.Envelope {
	return []models.Envelope{
		{EventID: "1", EventType: "listener.start", Payload: map[string]interface{}{"assets": []interface{}{"BTCUSDT"}}},
		{EventID: "2", EventType: "regime.breakout", Payload: map[string]interface{}{"asset": "BTCUSDT"}},
		{EventID: "3", EventType: "regime.breakout", Payload: map[string]interface{}{"asset": "ETHUSDT"}},
		{EventID: "4", EventType: "invariant.violation", Payload: map[string]interface{}{
			"details": map[string]interface{}{"observed": map[string]interface{}{"pair": "ETHUSDT"}},
		}},
	}
}

func TestHealthAndStatus(t *testing.T) {
	e := newTestServer(&memEvents{})

	rec := get(t, e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, e, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data models.ListenerStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "binance", body.Data.Source)
	assert.EqualValues(t, 3, body.Data.Cycles)
}

func TestEventsFilters(t *testing.T) {
	events := &memEvents{envs: sampleEvents()}
	e := newTestServer(events)

	var body listBody
	rec := get(t, e, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body.Data.Total)

	rec = get(t, e, "/api/events?asset=ETHUSDT")
	body = listBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Rows, 2)
	assert.Equal(t, "3", body.Data.Rows[0].EventID)
	assert.Equal(t, "4", body.Data.Rows[1].EventID)

	rec = get(t, e, "/api/events?type=regime.breakout&limit=1")
	body = listBody{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Rows, 1)
	assert.Equal(t, "3", body.Data.Rows[0].EventID)
}

func TestEventsCachesByQuery(t *testing.T) {
	events := &memEvents{envs: sampleEvents()}
	e := newTestServer(events)

	get(t, e, "/api/events?limit=2")
	get(t, e, "/api/events?limit=2")
	assert.Equal(t, 1, events.calls)

	get(t, e, "/api/events?limit=3")
	assert.Equal(t, 2, events.calls)
}

func TestEventsRejectsBadLimit(t *testing.T) {
	e := newTestServer(&memEvents{})

	var body struct {
		Status int `json:"status"`
		Data   []struct {
			Code    string `json:"code"`
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"data"`
	}
	rec := get(t, e, "/api/events?limit=5000")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_LTE", body.Data[0].Code)
	assert.Equal(t, "limit", body.Data[0].Field)
	assert.Equal(t, "limit must be at most 1000", body.Data[0].Message)
}

func TestEventsRejectsUnknownType(t *testing.T) {
	events := &memEvents{envs: sampleEvents()}
	e := newTestServer(events)

	var body struct {
		Status int `json:"status"`
		Data   []struct {
			Code   string                 `json:"code"`
			Field  string                 `json:"field"`
			Params map[string]interface{} `json:"params"`
		} `json:"data"`
	}
	rec := get(t, e, "/api/events?type=regime.moon")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_INVALID_PARAM", body.Data[0].Code)
	assert.Equal(t, "type", body.Data[0].Field)
	assert.Contains(t, body.Data[0].Params["options"], "listener.crash")
	assert.Zero(t, events.calls, "spine not read")
}

type brokenEvents struct{}

func (brokenEvents) Tail(int, func(models.Envelope) bool) ([]models.Envelope, error) {
	return nil, errors.New("spine: permission denied")
}

func TestEventsReportsUnavailableSpine(t *testing.T) {
	e := echo.New()
	NewStatusHandler(xlogger.Nop(), fixedStatus{}, brokenEvents{}, time.Minute).RegisterRoutes(e)

	var body struct {
		Status int `json:"status"`
		Data   []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	rec := get(t, e, "/api/events")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_UNAVAILABLE", body.Data[0].Code)
}

package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
}

func TestServerRoutesAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer(pingHandler{}, WithRegistry(reg))

	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":"pong"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `regimedesk_http_requests_total{method="GET",route="/ping",status="200"} 1`)

	// a second server on the same registry reuses the collectors
	assert.NotPanics(t, func() { NewServer(pingHandler{}, WithRegistry(reg)) })
}

func TestServerStartStop(t *testing.T) {
	srv := NewServer(pingHandler{}, WithHost("127.0.0.1"), WithPort(0), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, srv.Start())
	require.NoError(t, srv.Stop(context.Background()))
}

func TestClientSendAndParse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"msg":"bad symbol"}`))
			return
		}
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"42000.10"}`))
	}))
	defer ts.Close()

	c := NewClient()
	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method:      MethodGet,
		URL:         ts.URL,
		QueryParams: map[string][]string{"symbol": {"BTCUSDT"}},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "42000.10", out.Price)

	err = c.SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: ts.URL}, &out)
	assert.ErrorContains(t, err, "unexpected status 400")
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.JSONEq(t, `{"msg":"bad symbol"}`, se.Body)
}

package api

import (
	"net/http"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/pkg/cache"
	xhttp "RegimeDesk/pkg/http"
	xlogger "RegimeDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusProvider is satisfied by the ingestor.
type StatusProvider interface {
	Status() models.ListenerStatus
}

// EventReader is satisfied by the spine.
type EventReader interface {
	Tail(limit int, keep func(models.Envelope) bool) ([]models.Envelope, error)
}

// StatusHandler serves the read-only listener views.
type StatusHandler struct {
	logger *xlogger.Logger
	status StatusProvider
	events EventReader
	cache  *cache.Memory[[]models.Envelope]
}

func NewStatusHandler(logger *xlogger.Logger, status StatusProvider, events EventReader, cacheTTL time.Duration) *StatusHandler {
	return &StatusHandler{
		logger: logger,
		status: status,
		events: events,
		cache:  cache.NewMemory[[]models.Envelope](cache.WithMemoryTTL(cacheTTL), cache.WithMemoryMaxSize(64)),
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/events", h.Events)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.status.Status())
}

// Events returns the most recent spine envelopes, oldest first.
func (h *StatusHandler) Events(c echo.Context) error {
	req := &models.EventsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if req.Type != "" && !models.IsKnownEventType(req.Type) {
		return xhttp.AppErrorResponse(c, xhttp.InvalidParamError("type", "unknown event type %q", req.Type).
			WithParam("options", models.EventTypes()))
	}

	key := cache.GenerateKey("events", req.Limit, req.Type, req.Asset)
	if rows, ok := h.cache.Get(key); ok {
		return xhttp.ListResponse(c, rows, int64(len(rows)))
	}

	rows, err := h.events.Tail(req.Limit, func(env models.Envelope) bool {
		if req.Type != "" && env.EventType != req.Type {
			return false
		}
		return req.Asset == "" || payloadAsset(env.Payload) == req.Asset
	})
	if err != nil {
		h.logger.Error("spine tail failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("spine unavailable").WithError(err))
	}
	if rows == nil {
		rows = []models.Envelope{}
	}
	h.cache.Set(key, rows)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// payloadAsset finds the asset a decoded payload refers to: "asset" on
// regime events, "pair" inside violation details.
func payloadAsset(payload interface{}) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	for _, k := range []string{"asset", "pair"} {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	if details, ok := m["details"].(map[string]interface{}); ok {
		if observed, ok := details["observed"].(map[string]interface{}); ok {
			if s, ok := observed["pair"].(string); ok {
				return s
			}
		}
	}
	return ""
}

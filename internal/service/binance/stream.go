package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/pkg/logger"

	"github.com/gorilla/websocket"
)

// StreamSource keeps the latest miniTicker close price per asset from the
// combined stream endpoint. Fetch only reads the cache; Run owns the
// connection.
type StreamSource struct {
	url            string
	maxAge         time.Duration
	reconnectDelay time.Duration
	now            func() time.Time
	log            *logger.Logger

	mu     sync.RWMutex
	prices map[string]cachedPrice
}

type cachedPrice struct {
	price    float64
	eventAt  time.Time
	received time.Time
	// delivered is set once Fetch has returned this update.
	delivered bool
}

type StreamOption func(*StreamSource)

func WithMaxAge(d time.Duration) StreamOption {
	return func(s *StreamSource) { s.maxAge = d }
}

func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *StreamSource) { s.reconnectDelay = d }
}

func WithStreamClock(now func() time.Time) StreamOption {
	return func(s *StreamSource) { s.now = now }
}

func WithLogger(l *logger.Logger) StreamOption {
	return func(s *StreamSource) { s.log = l }
}

// NewStreamSource builds the combined-stream URL for assets under baseURL,
// e.g. wss://stream.binance.com:9443.
func NewStreamSource(baseURL string, assets []string, opts ...StreamOption) *StreamSource {
	streams := make([]string, 0, len(assets))
	for _, a := range assets {
		streams = append(streams, strings.ToLower(a)+"@miniTicker")
	}
	s := &StreamSource{
		url:            strings.TrimRight(baseURL, "/") + "/stream?streams=" + strings.Join(streams, "/"),
		maxAge:         2 * time.Minute,
		reconnectDelay: 5 * time.Second,
		now:            time.Now,
		log:            logger.Nop(),
		prices:         make(map[string]cachedPrice),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StreamSource) Name() string { return SourceName }

func (s *StreamSource) URL() string { return s.url }

// Fetch returns the cached price for asset. Each miniTicker update is
// returned once: ErrStalePrice when none was received within maxAge,
// ErrNoNewPrice when the last update was already fetched.
func (s *StreamSource) Fetch(_ context.Context, asset string) (models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[asset]
	if !ok {
		return models.Observation{}, fmt.Errorf("%w: %s not received yet", ErrStalePrice, asset)
	}
	if age := s.now().Sub(p.received); age > s.maxAge {
		return models.Observation{}, fmt.Errorf("%w: %s last update %s ago", ErrStalePrice, asset, age.Round(time.Second))
	}
	if p.delivered {
		return models.Observation{}, fmt.Errorf("%w: %s since %s", ErrNoNewPrice, asset, models.FormatTimestamp(p.eventAt))
	}
	p.delivered = true
	s.prices[asset] = p
	return models.Observation{
		Asset:     asset,
		Timestamp: p.eventAt,
		Price:     p.price,
		Source:    SourceName,
	}, nil
}

// Run connects and reads until ctx is cancelled, reconnecting after
// reconnectDelay on any error.
func (s *StreamSource) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.Warn("binance stream disconnected",
			logger.Error(err),
			logger.Duration("retry_in", s.reconnectDelay),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type miniTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (s *StreamSource) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	defer conn.Close()
	s.log.Info("binance stream connected", logger.String("url", s.url))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("binance stream read: %w", err)
		}
		s.handle(b)
	}
}

func (s *StreamSource) handle(b []byte) {
	var frame combinedFrame
	if err := json.Unmarshal(b, &frame); err != nil || len(frame.Data) == 0 {
		return
	}
	var mt miniTicker
	if err := json.Unmarshal(frame.Data, &mt); err != nil || mt.EventType != "24hrMiniTicker" {
		return
	}
	price, err := parsePrice(mt.Close)
	if err != nil {
		s.log.Debug("binance stream bad price", logger.String("symbol", mt.Symbol), logger.Error(err))
		return
	}
	s.mu.Lock()
	s.prices[mt.Symbol] = cachedPrice{
		price:    price,
		eventAt:  time.UnixMilli(mt.EventTime).UTC(),
		received: s.now(),
	}
	s.mu.Unlock()
}

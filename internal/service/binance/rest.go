// Package binance implements price sources backed by the Binance spot API.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"RegimeDesk/internal/domain/models"
	xhttp "RegimeDesk/pkg/http"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const SourceName = "binance"

var (
	ErrInvalidPrice = errors.New("binance: non-positive price")
	ErrStalePrice   = errors.New("binance: no fresh price")
	ErrNoNewPrice   = errors.New("binance: no new price since last fetch")
	ErrThrottled    = errors.New("binance: request weight exceeded")
)

// RestSource polls /api/v3/ticker/price once per Fetch.
type RestSource struct {
	baseURL string
	client  *xhttp.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type RestOption func(*RestSource)

func WithRateLimit(perSecond float64, burst int) RestOption {
	return func(s *RestSource) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithRestClock(now func() time.Time) RestOption {
	return func(s *RestSource) { s.now = now }
}

func WithHTTPClient(c *xhttp.Client) RestOption {
	return func(s *RestSource) { s.client = c }
}

func NewRestSource(baseURL string, opts ...RestOption) *RestSource {
	s := &RestSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		limiter: rate.NewLimiter(rate.Limit(10), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RestSource) Name() string { return SourceName }

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Fetch returns the latest traded price for asset stamped with the local
// UTC time of the response.
func (s *RestSource) Fetch(ctx context.Context, asset string) (models.Observation, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Observation{}, fmt.Errorf("binance %s: rate limit: %w", asset, err)
	}

	var tp tickerPrice
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.baseURL + "/api/v3/ticker/price",
		QueryParams: map[string][]string{"symbol": {asset}},
	}, &tp)
	if xhttp.IsStatus(err, http.StatusTooManyRequests) || xhttp.IsStatus(err, http.StatusTeapot) {
		return models.Observation{}, fmt.Errorf("binance %s: %w: %w", asset, ErrThrottled, err)
	}
	if err != nil {
		return models.Observation{}, fmt.Errorf("binance %s: %w", asset, err)
	}

	price, err := parsePrice(tp.Price)
	if err != nil {
		return models.Observation{}, fmt.Errorf("binance %s: %w", asset, err)
	}
	return models.Observation{
		Asset:     asset,
		Timestamp: s.now().UTC(),
		Price:     price,
		Source:    SourceName,
	}, nil
}

func parsePrice(raw string) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPrice, raw)
	}
	return d.InexactFloat64(), nil
}

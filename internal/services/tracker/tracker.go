package tracker

import (
	"errors"
	"fmt"
	"math"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/services/features"
)

var (
	ErrInvalidPrice  = errors.New("tracker: price must be positive and finite")
	ErrAssetMismatch = errors.New("tracker: snapshot belongs to another asset")
)

// MinLongWindow is the smallest window that can produce a return.
const MinLongWindow = 2

// ShortWindowFor derives the short volatility window: long/3 clamped to [5, long].
func ShortWindowFor(long int) int {
	s := long / 3
	if s < 5 {
		s = 5
	}
	if s > long {
		s = long
	}
	return s
}

// Tracker keeps the bounded price history of one asset and derives metrics
// on every accepted price. It is not safe for concurrent use.
type Tracker struct {
	asset       string
	longWindow  int
	shortWindow int
	window      *ring
}

func New(asset string, longWindow int) (*Tracker, error) {
	if longWindow < MinLongWindow {
		return nil, fmt.Errorf("tracker %s: long window %d below %d", asset, longWindow, MinLongWindow)
	}
	return &Tracker{
		asset:       asset,
		longWindow:  longWindow,
		shortWindow: ShortWindowFor(longWindow),
		window:      newRing(longWindow),
	}, nil
}

func (t *Tracker) Asset() string    { return t.asset }
func (t *Tracker) LongWindow() int  { return t.longWindow }
func (t *Tracker) ShortWindow() int { return t.shortWindow }
func (t *Tracker) Len() int         { return t.window.Len() }

// Prices returns the window oldest first.
func (t *Tracker) Prices() []float64 { return t.window.Values() }

// Update appends price, evicting the oldest point when full, and returns the
// metrics for the new window. ok is false for the first point.
func (t *Tracker) Update(price float64) (m models.Metrics, ok bool, err error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return models.Metrics{}, false, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	t.window.Push(price)

	prices := t.window.Values()
	n := len(prices)
	if n < 2 {
		return models.Metrics{}, false, nil
	}

	m.Price = price
	if m.RollingMean, err = features.RollingMean(prices, n); err != nil {
		return models.Metrics{}, false, err
	}
	if m.RollingStd, err = features.RollingStd(prices, n); err != nil {
		return models.Metrics{}, false, err
	}
	if lr, lrErr := features.LogReturn(prices[n-2], prices[n-1]); lrErr == nil {
		m.LogReturn = lr
	}
	m.ZScore = features.ZScore(price, m.RollingMean, m.RollingStd)
	if m.Slope, err = features.Slope(prices, min(t.longWindow-1, n-1)); err != nil {
		return models.Metrics{}, false, err
	}
	if m.Range, err = features.PriceRange(prices, n); err != nil {
		return models.Metrics{}, false, err
	}

	// volatility needs two changes, i.e. three prices
	if n < 3 {
		m.WarmingUp = true
		return m, true, nil
	}
	if m.ShortVol, err = features.RollingVolatility(prices, min(t.shortWindow, n)); err != nil {
		return models.Metrics{}, false, err
	}
	if m.LongVol, err = features.RollingVolatility(prices, min(t.longWindow, n)); err != nil {
		return models.Metrics{}, false, err
	}
	return m, true, nil
}

// Snapshot is a full value copy of the tracker state.
func (t *Tracker) Snapshot() models.TrackerSnapshot {
	return models.TrackerSnapshot{
		Asset:       t.asset,
		Prices:      t.window.Values(),
		ShortWindow: t.shortWindow,
		LongWindow:  t.longWindow,
	}
}

// Restore replaces the window with the snapshot's prices. The tracker keeps
// its own long window; history beyond it is dropped and the short window is
// re-derived.
func (t *Tracker) Restore(s models.TrackerSnapshot) error {
	if s.Asset != "" && s.Asset != t.asset {
		return fmt.Errorf("%w: %s != %s", ErrAssetMismatch, s.Asset, t.asset)
	}
	w := newRing(t.longWindow)
	for _, p := range s.Prices {
		w.Push(p)
	}
	t.window = w
	t.shortWindow = ShortWindowFor(t.longWindow)
	return nil
}

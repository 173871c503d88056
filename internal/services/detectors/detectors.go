// Package detectors maps tracker metrics to regime events. Every detector is
// a pure function and fires at most once per call.
package detectors

import (
	"math"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/services/features"
)

// Thresholds configures the detectors.
type Thresholds struct {
	Breakout  float64 // fractional distance from the rolling mean
	BandWidth float64 // fractional half-width of the mean-reversion bands
}

// Breakout fires when |price-mean|/mean exceeds threshold. It never fires for
// a zero mean.
func Breakout(asset string, price, mean, threshold float64, ts time.Time) (models.BreakoutEvent, bool) {
	if mean == 0 {
		return models.BreakoutEvent{}, false
	}
	dev := price - mean
	pct := dev / mean
	if math.Abs(pct) <= threshold {
		return models.BreakoutEvent{}, false
	}
	return models.BreakoutEvent{
		EventHeader:  models.EventHeader{Asset: asset, Timestamp: ts},
		Price:        price,
		RollingMean:  mean,
		Deviation:    dev,
		DeviationPct: pct,
		Threshold:    threshold,
	}, true
}

// VolSpike fires when short-term volatility exceeds a positive long-term baseline.
func VolSpike(asset string, shortVol, longVol float64, ts time.Time) (models.VolSpikeEvent, bool) {
	if longVol <= 0 || shortVol <= longVol {
		return models.VolSpikeEvent{}, false
	}
	return models.VolSpikeEvent{
		EventHeader: models.EventHeader{Asset: asset, Timestamp: ts},
		ShortVol:    shortVol,
		LongVol:     longVol,
		Ratio:       shortVol / longVol,
	}, true
}

// MRTouch fires when price is strictly outside mean*(1±width).
func MRTouch(asset string, price, mean, width float64, ts time.Time) (models.MRTouchEvent, bool) {
	lower, upper, err := features.MeanReversionBands(mean, width)
	if err != nil {
		return models.MRTouchEvent{}, false
	}
	if price >= lower && price <= upper {
		return models.MRTouchEvent{}, false
	}
	position := "lower"
	if price > upper {
		position = "upper"
	}
	return models.MRTouchEvent{
		EventHeader: models.EventHeader{Asset: asset, Timestamp: ts},
		Price:       price,
		RollingMean: mean,
		BandWidth:   width,
		LowerBand:   lower,
		UpperBand:   upper,
		Position:    position,
	}, true
}

// Evaluate runs every detector against m and returns the events that fired,
// each stamped with tickID.
func Evaluate(asset string, m models.Metrics, th Thresholds, ts time.Time, tickID int64) []models.RegimeEvent {
	var out []models.RegimeEvent
	if ev, ok := Breakout(asset, m.Price, m.RollingMean, th.Breakout, ts); ok {
		out = append(out, models.WithTickID(ev, tickID))
	}
	if ev, ok := VolSpike(asset, m.ShortVol, m.LongVol, ts); ok {
		out = append(out, models.WithTickID(ev, tickID))
	}
	if ev, ok := MRTouch(asset, m.Price, m.RollingMean, th.BandWidth, ts); ok {
		out = append(out, models.WithTickID(ev, tickID))
	}
	return out
}

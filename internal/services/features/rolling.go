// Package features holds the pure rolling statistics used by the asset
// trackers. None of the functions keep state; "not enough data" degrades to
// zero and only structurally invalid arguments return an error.
package features

import (
	"errors"
	"math"
)

var (
	ErrInvalidWindow     = errors.New("features: window must be positive")
	ErrNonPositivePrice  = errors.New("features: prices must be positive for log returns")
	ErrZeroPrevious      = errors.New("features: previous price cannot be zero")
	ErrLengthMismatch    = errors.New("features: series must have equal length")
	ErrNegativeBandWidth = errors.New("features: band width must be non-negative")
	ErrVolatilityWindow  = errors.New("features: volatility window must be greater than 1")
)

func tail(values []float64, window int) []float64 {
	if window >= len(values) {
		return values
	}
	return values[len(values)-window:]
}

// RollingMean is the arithmetic mean of the last min(window, len(values)) values.
func RollingMean(values []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	if len(values) == 0 {
		return 0, nil
	}
	s := tail(values, window)
	sum := 0.0
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s)), nil
}

// RollingStd is the sample standard deviation (n-1) over the last window values.
func RollingStd(values []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	s := tail(values, window)
	n := len(s)
	if n < 2 {
		return 0, nil
	}
	mean := 0.0
	for _, v := range s {
		mean += v
	}
	mean /= float64(n)
	variance := 0.0
	for _, v := range s {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(n-1)), nil
}

// PercentChange returns the fractional change (not multiplied by 100).
func PercentChange(prev, cur float64) (float64, error) {
	if prev == 0 {
		return 0, ErrZeroPrevious
	}
	return (cur - prev) / prev, nil
}

// LogReturn returns ln(cur/prev).
func LogReturn(prev, cur float64) (float64, error) {
	if prev <= 0 || cur <= 0 {
		return 0, ErrNonPositivePrice
	}
	return math.Log(cur / prev), nil
}

// LogReturns returns up to the last window log returns of prices. Pairs with
// a non-positive price are skipped, so the result may be shorter.
func LogReturns(prices []float64, window int) ([]float64, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if len(prices) < 2 {
		return nil, nil
	}
	n := window
	if n > len(prices)-1 {
		n = len(prices) - 1
	}
	s := prices[len(prices)-n-1:]
	out := make([]float64, 0, n)
	for i := 1; i < len(s); i++ {
		r, err := LogReturn(s[i-1], s[i])
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// ZScore returns (x-mean)/std, or 0 when std is 0.
func ZScore(x, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (x - mean) / std
}

// Slope is (p_t - p_{t-n}) / n over the last n steps.
func Slope(prices []float64, n int) (float64, error) {
	if n <= 0 {
		return 0, ErrInvalidWindow
	}
	if len(prices) <= n {
		return 0, nil
	}
	cur := prices[len(prices)-1]
	past := prices[len(prices)-n-1]
	return (cur - past) / float64(n), nil
}

// PriceRange is max-min over the last window prices.
func PriceRange(prices []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	if len(prices) == 0 {
		return 0, nil
	}
	s := tail(prices, window)
	lo, hi := s[0], s[0]
	for _, p := range s[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	return hi - lo, nil
}

// PearsonCorr computes the correlation of two equal-length series.
func PearsonCorr(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	n := len(a)
	if n < 2 {
		return 0, nil
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, nil
	}
	return cov / math.Sqrt(varA*varB), nil
}

// RollingCorr is the Pearson correlation over the last
// min(window, len(a), len(b)) aligned points.
func RollingCorr(a, b []float64, window int) (float64, error) {
	if window <= 0 {
		return 0, ErrInvalidWindow
	}
	n := window
	if len(a) < n {
		n = len(a)
	}
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0, nil
	}
	return PearsonCorr(a[len(a)-n:], b[len(b)-n:])
}

// RollingVolatility is the sample std-dev of fractional price changes over the
// last window prices. Changes from a zero price are dropped.
func RollingVolatility(prices []float64, window int) (float64, error) {
	if window <= 1 {
		return 0, ErrVolatilityWindow
	}
	if len(prices) < 2 {
		return 0, nil
	}
	s := tail(prices, window)
	changes := make([]float64, 0, len(s))
	for i := 1; i < len(s); i++ {
		if s[i-1] == 0 {
			continue
		}
		changes = append(changes, (s[i]-s[i-1])/s[i-1])
	}
	if len(changes) < 2 {
		return 0, nil
	}
	return RollingStd(changes, len(changes))
}

// MeanReversionBands returns mean*(1-width) and mean*(1+width).
func MeanReversionBands(mean, width float64) (lower, upper float64, err error) {
	if width < 0 {
		return 0, 0, ErrNegativeBandWidth
	}
	return mean * (1 - width), mean * (1 + width), nil
}

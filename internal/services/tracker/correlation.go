package tracker

import "RegimeDesk/internal/services/features"

// Correlation is the rolling correlation of log returns between the anchor
// and other trackers over their most recent shared history. It degrades to 0
// when fewer than two aligned returns exist.
func Correlation(anchor, other *Tracker) float64 {
	a := anchor.Prices()
	b := other.Prices()
	window := min(other.longWindow, len(a), len(b))
	if window < 2 {
		return 0
	}
	ra, err := features.LogReturns(a[len(a)-window:], window-1)
	if err != nil {
		return 0
	}
	rb, err := features.LogReturns(b[len(b)-window:], window-1)
	if err != nil {
		return 0
	}
	n := min(len(ra), len(rb))
	if n < 2 {
		return 0
	}
	c, err := features.RollingCorr(ra[len(ra)-n:], rb[len(rb)-n:], n)
	if err != nil {
		return 0
	}
	return c
}

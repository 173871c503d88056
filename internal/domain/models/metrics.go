package models

// Metrics are the derived statistics for one asset after an accepted tick.
type Metrics struct {
	Price       float64 `json:"price"`
	LogReturn   float64 `json:"log_return"`
	RollingMean float64 `json:"rolling_mean"`
	RollingStd  float64 `json:"rolling_std"`
	ZScore      float64 `json:"zscore"`
	Slope       float64 `json:"slope"`
	Range       float64 `json:"range"`
	ShortVol    float64 `json:"short_vol"`
	LongVol     float64 `json:"long_vol"`
	Correlation float64 `json:"rolling_correlation"`
	// WarmingUp is set while there are too few points for volatility; the
	// vol fields are zero in that state.
	WarmingUp bool `json:"warming_up"`
}

// ToMap flattens the metrics for event payloads and logs.
func (m Metrics) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"price":               m.Price,
		"log_return":          m.LogReturn,
		"rolling_mean":        m.RollingMean,
		"rolling_std":         m.RollingStd,
		"zscore":              m.ZScore,
		"slope":               m.Slope,
		"range":               m.Range,
		"short_vol":           m.ShortVol,
		"long_vol":            m.LongVol,
		"rolling_correlation": m.Correlation,
		"warming_up":          m.WarmingUp,
	}
}

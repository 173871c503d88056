package metrics

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordTick(string, bool)          {}
func (Nop) RecordFetchError(string)          {}
func (Nop) RecordEvent(string)               {}
func (Nop) RecordSpineAppend(string)         {}
func (Nop) RecordLastPrice(string, float64)  {}
func (Nop) RecordLatency(string, float64)    {}
func (Nop) RecordError(string)               {}
func (Nop) RecordRelayForwarded(string, int) {}
func (Nop) RecordDowntime(string)            {}

package repository

// StateStore groups the file-backed stores of one versioned state directory.
type StateStore struct {
	Layout       Layout
	Spine        *Spine
	Observations *ObservationLog
	Metrics      *MetricsLog
	Snapshots    *SnapshotStore
	Heartbeat    *Heartbeat
	Integrity    *IntegrityLog
}

func NewStateStore(layout Layout) *StateStore {
	return &StateStore{
		Layout:       layout,
		Spine:        NewSpine(layout.Spine()),
		Observations: NewObservationLog(layout),
		Metrics:      NewMetricsLog(layout),
		Snapshots:    NewSnapshotStore(layout),
		Heartbeat:    NewHeartbeat(layout),
		Integrity:    NewIntegrityLog(layout),
	}
}

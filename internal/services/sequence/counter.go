// Package sequence tracks tick identity and timestamp ordering for the
// listener.
package sequence

import (
	"fmt"
	"sync"
	"time"

	"RegimeDesk/internal/domain/models"
	"RegimeDesk/internal/repository"
)

// Counter is the process-wide tick counter. Every fetched observation gets
// the next id whether or not it is accepted downstream. The value is
// persisted to sequence_meta.json after each advance; the in-memory value
// stays authoritative when persisting fails.
type Counter struct {
	mu   sync.Mutex
	path string
	last int64
}

// NewCounter resumes from the meta file at path. A missing file starts the
// counter at zero; a file that cannot be read or decoded is an error, since
// restarting at zero would reissue tick ids.
func NewCounter(path string) (*Counter, error) {
	c := &Counter{path: path}
	var meta models.SequenceMeta
	if err := repository.ReadJSON(path, &meta); err != nil {
		if repository.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("sequence meta %s: %w", path, err)
	}
	if meta.LastTickID < 0 {
		return nil, fmt.Errorf("sequence meta %s: negative last_tick_id %d", path, meta.LastTickID)
	}
	c.last = meta.LastTickID
	return c, nil
}

// Last returns the most recently issued id, or zero.
func (c *Counter) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Advance issues the next id and persists it. The id is valid even when err
// is non-nil.
func (c *Counter) Advance(at time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	err := repository.WriteJSONAtomic(c.path, models.SequenceMeta{
		LastTickID: c.last,
		UpdatedAt:  at.UTC(),
	})
	return c.last, err
}

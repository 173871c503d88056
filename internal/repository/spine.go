package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"RegimeDesk/internal/domain/models"
)

// Spine is the append-only JSONL log of event envelopes. Only one process
// writes a given spine file at a time; appends rely on O_APPEND atomicity.
type Spine struct {
	path string
}

func NewSpine(path string) *Spine { return &Spine{path: path} }

func (s *Spine) Path() string { return s.path }

// Append validates env, writes it as one compact JSON line and fsyncs.
func (s *Spine) Append(env models.Envelope) error {
	if err := models.ValidateEnvelope(&env); err != nil {
		return fmt.Errorf("spine append %s: %w", env.EventType, err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("spine marshal %s: %w", env.EventType, err)
	}
	if err := AppendLine(s.path, b); err != nil {
		return fmt.Errorf("spine append: %w", err)
	}
	return nil
}

// Record is one valid spine line and where it ends in the file.
type Record struct {
	Envelope models.Envelope
	Raw      []byte
	// End is the byte offset just past the line's newline.
	End int64
}

// ScanStats reports what a scan saw.
type ScanStats struct {
	Records   int
	Malformed int
	// Offset is the end of the last complete line consumed.
	Offset int64
}

// ErrStopScan ends a scan early without error.
var ErrStopScan = errors.New("stop scan")

// Scan reads the spine from the beginning. See ScanFrom.
func (s *Spine) Scan(fn func(Record) error) (ScanStats, error) {
	return s.ScanFrom(0, fn)
}

// ScanFrom streams complete lines starting at byte offset, calling fn for each
// valid envelope. Malformed lines are counted and skipped; a trailing line
// without a newline is left for the next scan. A missing file is empty.
func (s *Spine) ScanFrom(offset int64, fn func(Record) error) (ScanStats, error) {
	stats := ScanStats{Offset: offset}
	f, err := os.Open(s.path)
	if err != nil {
		if IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("open spine: %w", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return stats, fmt.Errorf("seek spine: %w", err)
		}
	}

	r := bufio.NewReaderSize(f, 64*1024)
	pos := offset
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			pos += int64(len(line))
			stats.Offset = pos
			body := bytes.TrimSpace(line)
			if len(body) > 0 {
				env, verr := models.ValidateEnvelopeJSON(body)
				if verr != nil {
					stats.Malformed++
				} else {
					stats.Records++
					if ferr := fn(Record{Envelope: *env, Raw: body, End: pos}); ferr != nil {
						if errors.Is(ferr, ErrStopScan) {
							return stats, nil
						}
						return stats, ferr
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("read spine: %w", err)
		}
	}
}

// Tail returns up to limit most recent envelopes accepted by keep, oldest first.
func (s *Spine) Tail(limit int, keep func(models.Envelope) bool) ([]models.Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	buf := make([]models.Envelope, 0, limit)
	_, err := s.Scan(func(rec Record) error {
		if keep != nil && !keep(rec.Envelope) {
			return nil
		}
		if len(buf) == limit {
			copy(buf, buf[1:])
			buf = buf[:limit-1]
		}
		buf = append(buf, rec.Envelope)
		return nil
	})
	return buf, err
}

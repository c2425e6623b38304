// Package history keeps the bounded, most-recent-first window of scans for a
// session.
package history

import "github.com/FranksOps/vigil/internal/scan"

// DefaultCapacity is the number of scans a session remembers.
const DefaultCapacity = 10

// Store is a fixed-capacity list of records, newest first. It is not safe for
// concurrent use; the session that owns it serializes access.
type Store struct {
	capacity int
	records  []*scan.Record
}

// New creates a store holding at most capacity records. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		records:  make([]*scan.Record, 0, capacity+1),
	}
}

// Record prepends r and drops the oldest entries beyond capacity. Identical
// URLs are kept as separate entries.
func (s *Store) Record(r *scan.Record) {
	if r == nil {
		return
	}
	s.records = append(s.records, nil)
	copy(s.records[1:], s.records)
	s.records[0] = r

	if len(s.records) > s.capacity {
		for i := s.capacity; i < len(s.records); i++ {
			s.records[i] = nil
		}
		s.records = s.records[:s.capacity]
	}
}

// Snapshot returns a copy of the current history, newest first. Later calls
// to Record do not affect a returned snapshot.
func (s *Store) Snapshot() []*scan.Record {
	out := make([]*scan.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int { return len(s.records) }

// Cap returns the store capacity.
func (s *Store) Cap() int { return s.capacity }

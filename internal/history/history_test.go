package history

import (
	"fmt"
	"testing"

	"github.com/FranksOps/vigil/internal/scan"
)

func rec(i int) *scan.Record {
	return &scan.Record{ID: fmt.Sprintf("r%d", i), URL: fmt.Sprintf("https://site%d.com", i)}
}

func TestStore_CapacityInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10, 11, 25} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := New(0)
			for i := 0; i < n; i++ {
				s.Record(rec(i))
			}

			want := n
			if want > DefaultCapacity {
				want = DefaultCapacity
			}
			snap := s.Snapshot()
			if len(snap) != want {
				t.Fatalf("expected %d records, got %d", want, len(snap))
			}

			// newest first: the i-th entry is record n-1-i
			for i, r := range snap {
				if expected := fmt.Sprintf("r%d", n-1-i); r.ID != expected {
					t.Errorf("position %d: expected %s, got %s", i, expected, r.ID)
				}
			}
		})
	}
}

func TestStore_NoDeduplication(t *testing.T) {
	s := New(3)
	a := &scan.Record{ID: "a", URL: "https://example.com"}
	b := &scan.Record{ID: "b", URL: "https://example.com"}
	s.Record(a)
	s.Record(b)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected duplicate URLs to be kept, got %d records", len(snap))
	}
	if snap[0] != b || snap[1] != a {
		t.Errorf("unexpected order: %s, %s", snap[0].ID, snap[1].ID)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New(2)
	s.Record(rec(1))
	snap := s.Snapshot()

	s.Record(rec(2))
	s.Record(rec(3))

	if len(snap) != 1 || snap[0].ID != "r1" {
		t.Errorf("snapshot changed after later records: %+v", snap)
	}
	if s.Len() != 2 || s.Cap() != 2 {
		t.Errorf("expected len 2 cap 2, got len %d cap %d", s.Len(), s.Cap())
	}
}

func TestStore_IgnoresNil(t *testing.T) {
	s := New(0)
	s.Record(nil)
	if s.Len() != 0 {
		t.Errorf("expected nil record to be ignored")
	}
}

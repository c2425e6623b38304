package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "vigil.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}

	ctx := context.Background()
	now := time.Now().UTC()

	entries := []*storage.Entry{
		{
			ID:          "csv1",
			URL:         "https://example.com",
			Outcome:     storage.OutcomeSuccess,
			Verdict:     scan.VerdictMalicious,
			Probability: 0.92,
			SimpleRisk:  10,
			Duration:    150 * time.Millisecond,
			CreatedAt:   now.Add(-time.Hour),
		},
		{
			ID:        "csv2",
			URL:       "https://example.org",
			Outcome:   storage.OutcomeFailure,
			ErrorKind: "server",
			Error:     "url, with \"quotes\"",
			CreatedAt: now,
		},
	}
	for _, e := range entries {
		if err := b.Save(ctx, e); err != nil {
			t.Fatalf("Failed to save %s: %v", e.ID, err)
		}
	}

	got, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "csv2" || got[0].Error != "url, with \"quotes\"" {
		t.Errorf("Expected escaped failure entry first, got %+v", got[0])
	}
	if got[1].Verdict != scan.VerdictMalicious || got[1].Probability != 0.92 {
		t.Errorf("Unexpected success entry: %+v", got[1])
	}
	if got[1].Duration != 150*time.Millisecond {
		t.Errorf("Expected 150ms duration, got %v", got[1].Duration)
	}

	boolFalse := false
	notMalicious, err := b.Query(ctx, storage.Filter{Malicious: &boolFalse})
	if err != nil || len(notMalicious) != 1 || notMalicious[0].ID != "csv2" {
		t.Fatalf("Expected csv2 for non-malicious filter, got %v (%v)", notMalicious, err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Reopening must not write a second header row
	b2, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer b2.Close()

	raw, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if n := strings.Count(string(raw), "id,url,outcome"); n != 1 {
		t.Errorf("Expected exactly one header row, got %d", n)
	}

	got, err = b2.Query(ctx, storage.Filter{})
	if err != nil || len(got) != 2 {
		t.Errorf("Expected 2 entries after reopen, got %d (%v)", len(got), err)
	}
}

func TestCSVBackend_Empty(t *testing.T) {
	b, err := New(filepath.Join(t.TempDir(), "empty.csv"))
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	got, err := b.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no entries, got %d", len(got))
	}
}

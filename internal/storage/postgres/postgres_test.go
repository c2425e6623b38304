package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if VIGIL_TEST_PG_DSN is set
	dsn := os.Getenv("VIGIL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: VIGIL_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	now := time.Now().UTC()
	url := "https://pg-" + uuid.New().String() + ".example.com"

	entry := &storage.Entry{
		ID:          uuid.New().String(),
		URL:         url,
		Outcome:     storage.OutcomeSuccess,
		Verdict:     scan.VerdictSafe,
		Probability: 0.05,
		Duration:    50 * time.Millisecond,
		CreatedAt:   now,
	}
	if err := b.Save(ctx, entry); err != nil {
		t.Fatalf("Failed to save entry: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{URL: url})
	if err != nil {
		t.Fatalf("Failed to query results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	got := results[0]
	if got.ID != entry.ID || got.Verdict != scan.VerdictSafe {
		t.Errorf("Unexpected entry: %+v", got)
	}
	if got.CreatedAt.Unix() != entry.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", entry.CreatedAt, got.CreatedAt)
	}

	boolTrue := true
	malicious, err := b.Query(ctx, storage.Filter{URL: url, Malicious: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query malicious: %v", err)
	}
	if len(malicious) != 0 {
		t.Errorf("Expected 0 malicious results, got %d", len(malicious))
	}
}

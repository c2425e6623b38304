package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"url",
	"outcome",
	"error_kind",
	"error",
	"verdict",
	"probability",
	"simple_risk",
	"advanced_risk",
	"duration_ms",
	"created_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (b *csvBackend) Save(ctx context.Context, entry *storage.Entry) error {
	record := []string{
		entry.ID,
		entry.URL,
		string(entry.Outcome),
		entry.ErrorKind,
		entry.Error,
		string(entry.Verdict),
		formatFloat(entry.Probability),
		formatFloat(entry.SimpleRisk),
		formatFloat(entry.AdvancedRisk),
		strconv.FormatInt(entry.Duration.Milliseconds(), 10),
		entry.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek archive: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek archive: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.Entry{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var matched []*storage.Entry

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entry: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		probability, _ := strconv.ParseFloat(record[6], 64)
		simpleRisk, _ := strconv.ParseFloat(record[7], 64)
		advancedRisk, _ := strconv.ParseFloat(record[8], 64)
		durationMs, _ := strconv.ParseInt(record[9], 10, 64)
		createdAt, _ := time.Parse(time.RFC3339Nano, record[10])

		e := &storage.Entry{
			ID:           record[0],
			URL:          record[1],
			Outcome:      storage.Outcome(record[2]),
			ErrorKind:    record[3],
			Error:        record[4],
			Verdict:      scan.Verdict(record[5]),
			Probability:  probability,
			SimpleRisk:   simpleRisk,
			AdvancedRisk: advancedRisk,
			Duration:     time.Duration(durationMs) * time.Millisecond,
			CreatedAt:    createdAt,
		}

		if filter.Match(e) {
			matched = append(matched, e)
		}
	}

	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	return filter.Page(matched), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

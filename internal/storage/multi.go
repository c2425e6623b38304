package storage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Multi writes every entry to all of its backends concurrently and reads
// from the first one.
type Multi []Backend

var _ Backend = Multi(nil)

func (m Multi) Save(ctx context.Context, entry *Entry) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range m {
		b := b
		g.Go(func() error {
			if err := b.Save(ctx, entry); err != nil {
				return fmt.Errorf("archive save: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m Multi) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	if len(m) == 0 {
		return []*Entry{}, nil
	}
	return m[0].Query(ctx, filter)
}

func (m Multi) Close() error {
	var errs []error
	for _, b := range m {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package wallcas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aweris/wallcas/internal/store"
)

// Sweep removes every entry stored at or before now-maxAge from both tiers
// and returns how many were removed. Entries still pending durability are
// included. A failure to remove one entry is logged and the sweep moves
// on, so the count is best effort. A maxAge of zero removes everything
// stored up to now.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidRetention, maxAge)
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}

	cutoff := s.clock.Now().Add(-maxAge)
	log := s.log.WithField("cutoff", cutoff.Format(time.RFC3339))

	var stale []store.Key
	err := s.backend.Scan(ctx, func(e store.Entry) error {
		if !e.StoredAt.After(cutoff) {
			stale = append(stale, e.Key)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if !errors.Is(err, store.ErrCorrupt) {
			return 0, fmt.Errorf("sweep scan: %w", err)
		}
		log.WithError(err).Warn("skipping undecodable entries")
	}

	removed := 0
	for _, key := range stale {
		if ctx.Err() != nil {
			break
		}
		if s.removeIfStale(ctx, key, cutoff) {
			removed++
		}
	}

	for _, a := range s.Pending() {
		if ctx.Err() != nil {
			break
		}
		if s.dropPendingIfStale(a, cutoff) {
			removed++
		}
	}

	if removed > 0 {
		if c, ok := s.backend.(store.Compactor); ok {
			if err := c.Compact(); err != nil {
				log.WithError(err).Warn("compaction after sweep failed")
			}
		}
	}

	log.WithField("removed", removed).Info("sweep finished")
	return removed, ctx.Err()
}

// RunSweeper sweeps with maxAge every interval until ctx ends.
func (s *Store) RunSweeper(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidRetention, interval)
	}
	if maxAge < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRetention, maxAge)
	}

	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx, maxAge); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("periodic sweep failed")
			}
		}
	}
}

func (s *Store) removeIfStale(ctx context.Context, key store.Key, cutoff time.Time) bool {
	a := Address(key)
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	e, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.cache.Remove(key)
			return false
		}
		if !errors.Is(err, store.ErrCorrupt) {
			s.log.WithError(err).WithField("address", a.String()).Warn("sweep: read failed")
			return false
		}
	} else if e.StoredAt.After(cutoff) {
		return false
	}

	if err := s.backend.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("address", a.String()).Warn("sweep: delete failed")
		return false
	}
	s.cache.Remove(key)
	s.clearPending(a)
	return true
}

func (s *Store) dropPendingIfStale(a Address, cutoff time.Time) bool {
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	if !s.isPending(a) {
		return false
	}
	e, ok := s.cache.Get(store.Key(a))
	if ok && e.StoredAt.After(cutoff) {
		return false
	}
	s.cache.Remove(store.Key(a))
	s.clearPending(a)
	return ok
}

package wallcas

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// ResolveMany resolves a set of addresses concurrently. Zero addresses are
// placeholders and are dropped; duplicates are looked up once. Every unique
// address gets exactly one result, Missing if it is absent, failed, or took
// longer than the lookup timeout. The call itself never fails.
func (s *Store) ResolveMany(ctx context.Context, addrs []Address) map[Address]Resolution {
	unique := make([]Address, 0, len(addrs))
	seen := make(map[Address]struct{}, len(addrs))
	for _, a := range addrs {
		if a.IsZero() {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}

	results := make(map[Address]Resolution, len(unique))
	if len(unique) == 0 {
		return results
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(s.opts.Concurrency)
	for _, a := range unique {
		a := a
		p.Go(func() {
			r := s.lookup(ctx, a)
			mu.Lock()
			results[a] = r
			mu.Unlock()
		})
	}
	p.Wait()

	return results
}

// ResolveStrings is ResolveMany for hex addresses as they come back from a
// ledger query. Empty strings are dropped. Malformed addresses are left out
// of the result and reported in the error, which wraps ErrMalformedAddress;
// the valid ones are still resolved.
func (s *Store) ResolveStrings(ctx context.Context, addrs []string) (map[Address]Resolution, error) {
	parsed, err := ParseAddresses(addrs)
	return s.ResolveMany(ctx, parsed), err
}

// lookup is Get bounded by the per-key timeout. A backend that ignores the
// context still cannot hold the batch: the result is abandoned and the key
// reported Missing.
func (s *Store) lookup(ctx context.Context, a Address) Resolution {
	if s.opts.LookupTimeout <= 0 {
		return s.Get(ctx, a)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.LookupTimeout)
	defer cancel()

	done := make(chan Resolution, 1)
	go func() {
		done <- s.Get(ctx, a)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		s.log.WithField("address", a.String()).Debug("lookup timed out")
		return Missing
	}
}

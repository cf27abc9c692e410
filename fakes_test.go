package wallcas

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/aweris/wallcas/internal/store"
)

var errDiskFull = errors.New("disk full")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return c
}

// newTestStore opens a store on in-memory badger.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	base := []Option{
		WithBackend(BackendMemory),
		WithDataDir(""),
		WithLogger(quietLogger()),
	}
	s, err := Open(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newMemBackend returns an in-memory badger backend for wrapping in fakes.
func newMemBackend(t *testing.T) store.Backend {
	t.Helper()
	b, err := store.NewBadgerBackend(store.BadgerConfig{InMemory: true, Logger: quietLogger()}, store.NewCodec(nil))
	require.NoError(t, err)
	return b
}

// flakyBackend fails writes while down is set, or for the next failPuts
// writes.
type flakyBackend struct {
	store.Backend
	down     atomic.Bool
	failPuts atomic.Int32
	puts     atomic.Int32
}

func (b *flakyBackend) PutIfAbsent(ctx context.Context, e store.Entry) (bool, error) {
	b.puts.Add(1)
	if b.down.Load() {
		return false, errDiskFull
	}
	if b.failPuts.Add(-1) >= 0 {
		return false, errDiskFull
	}
	return b.Backend.PutIfAbsent(ctx, e)
}

// countingBackend counts durable reads per key.
type countingBackend struct {
	store.Backend
	mu   sync.Mutex
	gets map[store.Key]int
}

func newCountingBackend(b store.Backend) *countingBackend {
	return &countingBackend{Backend: b, gets: make(map[store.Key]int)}
}

func (b *countingBackend) Get(ctx context.Context, key store.Key) (store.Entry, error) {
	b.mu.Lock()
	b.gets[key]++
	b.mu.Unlock()
	return b.Backend.Get(ctx, key)
}

func (b *countingBackend) count(a Address) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gets[store.Key(a)]
}

// stallingBackend blocks reads of one key until release is closed,
// ignoring the context.
type stallingBackend struct {
	store.Backend
	stall   store.Key
	release chan struct{}
}

func (b *stallingBackend) Get(ctx context.Context, key store.Key) (store.Entry, error) {
	if key == b.stall {
		<-b.release
	}
	return b.Backend.Get(ctx, key)
}

// ledger is an in-memory ledger: a Submitter that answers with a fixed
// outcome and a Query over what it accepted.
type ledger struct {
	mu      sync.Mutex
	outcome LedgerOutcome
	records []Record
	calls   int
	onCall  func(Address)
}

func (l *ledger) Submit(ctx context.Context, a Address) LedgerOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.onCall != nil {
		l.onCall(a)
	}
	if l.outcome.Status == LedgerAccepted || l.outcome.Status == LedgerSettling {
		l.records = append(l.records, Record{
			ID:      string(rune('a' + len(l.records))),
			Author:  "0xauthor",
			Address: a,
		})
	}
	return l.outcome
}

func (l *ledger) Records(ctx context.Context, f Filter) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if f.Author != "" && r.Author != f.Author {
			continue
		}
		if f.ParentID != "" && r.ParentID != f.ParentID {
			continue
		}
		if f.Category != nil && r.Category != *f.Category {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (l *ledger) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

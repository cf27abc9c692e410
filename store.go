package wallcas

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/aweris/wallcas/internal/compression"
	"github.com/aweris/wallcas/internal/remote"
	"github.com/aweris/wallcas/internal/store"
)

// Resolution is the outcome of a lookup: the body, or Missing.
type Resolution struct {
	Body  string
	Found bool
}

// Missing is the Resolution of an address with no content.
var Missing = Resolution{}

// Found returns a Resolution carrying body.
func Found(body string) Resolution {
	return Resolution{Body: body, Found: true}
}

// Entry is a stored content body.
type Entry struct {
	Address  Address
	Body     string
	StoredAt time.Time
}

// Stats summarizes the content held by a Store.
type Stats struct {
	Entries   int
	Bytes     int64
	Cached    int
	Pending   int
	Oldest    time.Time
	Newest    time.Time
	Backend   string
	DataDir   string
	RemoteRef string
}

// Store is the content store: a durable backend with a write-through
// cache in front of it.
//
// Every address maps to a lock stripe. Writers (Put, Delete, sweeper
// removal) hold the stripe exclusively; the durable read that fills the
// cache holds it shared, so a removed entry can never be put back into the
// cache by a reader that raced the removal.
type Store struct {
	opts       *Options
	backend    store.Backend
	cache      store.Cache
	compressor *compression.Compressor
	remote     *remote.OCIRemote
	clock      clock.Clock
	log        *logrus.Entry

	locks [256]sync.RWMutex

	pendingMu sync.Mutex
	pending   map[Address]struct{}

	remoteMu  sync.Mutex
	syncState map[string]map[string]remote.PrefixInfo // by ref, when nothing is on disk

	closed atomic.Bool
}

// Open creates or opens a content store.
func Open(opts ...Option) (*Store, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = logrus.New()
		options.Logger.SetLevel(logrus.WarnLevel)
	}
	if options.Clock == nil {
		options.Clock = clock.New()
	}
	options.DataDir = expandPath(options.DataDir)

	s := &Store{
		opts:    options,
		cache:   store.NewMemoryCache(),
		clock:   options.Clock,
		log:     options.Logger.WithField("component", "wallcas"),
		pending: make(map[Address]struct{}),
	}

	compressor, err := compression.NewCompressor(compression.Level(options.CompressionLevel), options.Compression)
	if err != nil {
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	s.compressor = compressor

	backend := options.backend
	if backend != nil {
		options.Backend = backendCustom
	} else {
		backend, err = openBackend(options, store.NewCodec(compressor))
		if err != nil {
			compressor.Close()
			return nil, err
		}
	}
	s.backend = backend

	if options.Remote != "" {
		auth := options.Auth
		if auth == nil {
			auth = remote.NewDefaultAuthenticator()
		}
		r, err := remote.NewOCIRemote(options.Remote, auth)
		if err != nil {
			backend.Close()
			compressor.Close()
			return nil, err
		}
		r.SetConcurrency(options.Concurrency)
		r.SetLogger(s.log.WithField("remote", r.String()))
		s.remote = r
	}

	return s, nil
}

func openBackend(o *Options, codec *store.Codec) (store.Backend, error) {
	switch o.Backend {
	case BackendBadger, "":
		dir := filepath.Join(o.DataDir, "badger")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return store.NewBadgerBackend(store.BadgerConfig{
			Path:       dir,
			SyncWrites: o.SyncWrites,
			Logger:     o.Logger,
		}, codec)
	case BackendMemory:
		return store.NewBadgerBackend(store.BadgerConfig{
			InMemory: true,
			Logger:   o.Logger,
		}, codec)
	case BackendLocal:
		return store.NewLocalBackend(o.DataDir, codec)
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}

// Put stores body and returns its address. Storing a body that is already
// present is a silent success and keeps the original timestamp.
//
// If the durable write fails the body is still served from the cache and
// the returned error wraps ErrDurabilityDegraded; the entry stays pending
// until Persist succeeds.
func (s *Store) Put(ctx context.Context, body string) (Address, error) {
	a := Digest(body)
	if s.closed.Load() {
		return a, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return a, err
	}

	key := store.Key(a)
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	// the cache can outlive a durable copy removed by another process
	e := store.Entry{Key: key, Body: []byte(body), StoredAt: s.clock.Now()}
	cached, hasCached := s.cache.Get(key)
	if hasCached && s.isPending(a) {
		e.StoredAt = cached.StoredAt
	}

	created, err := s.backend.PutIfAbsent(ctx, e)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return a, ctxErr
		}
		s.cache.Add(e)
		s.markPending(a)
		s.log.WithError(err).WithField("address", a.String()).Warn("durable write failed, serving from cache")
		return a, fmt.Errorf("%w: %s: %v", ErrDurabilityDegraded, a, err)
	}

	if !created {
		if existing, err := s.backend.Get(ctx, key); err == nil {
			e = existing
		} else if hasCached {
			e = cached
		}
	}
	s.cache.Add(e)
	s.clearPending(a)
	return a, nil
}

// Persist retries the durable write of an entry left pending by a degraded
// Put. For an entry that is not pending it only confirms the durable copy
// exists, returning an error wrapping ErrNotFound when it does not (for
// example after a sweep dropped the cache-only copy).
func (s *Store) Persist(ctx context.Context, a Address) error {
	if s.closed.Load() {
		return ErrClosed
	}
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	if !s.isPending(a) {
		if _, err := s.backend.Get(ctx, store.Key(a)); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("persist %s: %w", a, ErrNotFound)
			}
			return fmt.Errorf("%w: %s: %v", ErrDurabilityDegraded, a, err)
		}
		return nil
	}
	e, ok := s.cache.Get(store.Key(a))
	if !ok {
		s.clearPending(a)
		return fmt.Errorf("persist %s: %w", a, ErrNotFound)
	}
	if _, err := s.backend.PutIfAbsent(ctx, e); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %v", ErrDurabilityDegraded, a, err)
	}
	s.clearPending(a)
	return nil
}

// Get resolves an address: cache first, then the durable tier, filling the
// cache on a hit. Read failures are logged and reported as Missing.
func (s *Store) Get(ctx context.Context, a Address) Resolution {
	key := store.Key(a)
	if e, ok := s.cache.Get(key); ok {
		return Found(string(e.Body))
	}
	if s.closed.Load() {
		return Missing
	}

	mu := &s.locks[a.shard()]
	mu.RLock()
	defer mu.RUnlock()

	if e, ok := s.cache.Get(key); ok {
		return Found(string(e.Body))
	}

	e, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).WithField("address", a.String()).Warn("durable read failed")
		}
		return Missing
	}

	body := string(e.Body)
	if !Verify(body, a) {
		s.log.WithField("address", a.String()).Error("stored body does not match its address")
		return Missing
	}

	s.cache.Add(e)
	return Found(body)
}

// Lookup resolves an address given in hex form.
func (s *Store) Lookup(ctx context.Context, hexAddr string) (Resolution, error) {
	a, err := ParseAddress(hexAddr)
	if err != nil {
		return Missing, err
	}
	return s.Get(ctx, a), nil
}

// Has reports whether content for a is retrievable.
func (s *Store) Has(ctx context.Context, a Address) bool {
	return s.Get(ctx, a).Found
}

// Delete removes an entry from both tiers.
func (s *Store) Delete(ctx context.Context, a Address) error {
	if s.closed.Load() {
		return ErrClosed
	}
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	if err := s.backend.Delete(ctx, store.Key(a)); err != nil {
		return fmt.Errorf("delete %s: %w", a, err)
	}
	s.cache.Remove(store.Key(a))
	s.clearPending(a)
	return nil
}

// List calls fn for every durable entry, in no particular order.
func (s *Store) List(ctx context.Context, fn func(Entry) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.backend.Scan(ctx, func(e store.Entry) error {
		return fn(toEntry(e))
	})
}

// Entries returns every durable entry, oldest first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.List(ctx, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StoredAt.Equal(entries[j].StoredAt) {
			return entries[i].Address.String() < entries[j].Address.String()
		}
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})
	return entries, err
}

// Stats scans the durable tier and reports its size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Cached:  s.cache.Len(),
		Pending: len(s.Pending()),
		Backend: s.opts.Backend,
		DataDir: s.opts.DataDir,
	}
	if s.remote != nil {
		st.RemoteRef = s.remote.String()
	}
	err := s.List(ctx, func(e Entry) error {
		st.Entries++
		st.Bytes += int64(len(e.Body))
		if st.Oldest.IsZero() || e.StoredAt.Before(st.Oldest) {
			st.Oldest = e.StoredAt
		}
		if e.StoredAt.After(st.Newest) {
			st.Newest = e.StoredAt
		}
		return nil
	})
	return st, err
}

// Pending returns the addresses whose content is only held in the cache
// because the durable write failed.
func (s *Store) Pending() []Address {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	out := make([]Address, 0, len(s.pending))
	for a := range s.pending {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// DropCache discards the cache. Entries still pending durability are kept,
// since the cache is their only copy.
func (s *Store) DropCache() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	keep := make([]store.Entry, 0, len(s.pending))
	for a := range s.pending {
		if e, ok := s.cache.Get(store.Key(a)); ok {
			keep = append(keep, e)
		}
	}
	s.cache.Clear()
	for _, e := range keep {
		s.cache.Add(e)
	}
}

// Close releases the backend. Pending entries that were never persisted
// are lost and logged.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if pending := s.Pending(); len(pending) > 0 {
		s.log.WithField("count", len(pending)).Warn("closing with entries that were never persisted")
	}
	err := s.backend.Close()
	s.compressor.Close()
	return err
}

func (s *Store) isPending(a Address) bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	_, ok := s.pending[a]
	return ok
}

func (s *Store) markPending(a Address) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[a] = struct{}{}
}

func (s *Store) clearPending(a Address) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	delete(s.pending, a)
}

func toEntry(e store.Entry) Entry {
	return Entry{Address: Address(e.Key), Body: string(e.Body), StoredAt: e.StoredAt}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

package wallcas

import (
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/aweris/wallcas/internal/remote"
	"github.com/aweris/wallcas/internal/store"
)

// Durable backends.
const (
	BackendBadger = "badger"
	BackendLocal  = "local"
	BackendMemory = "memory"

	backendCustom = "custom"
)

const (
	// DefaultRetention is how long content is kept before a sweep may
	// reclaim it.
	DefaultRetention = 30 * 24 * time.Hour

	DefaultLookupTimeout   = 2 * time.Second
	DefaultConcurrency     = 16
	DefaultPersistAttempts = 3
	DefaultPersistBackoff  = 200 * time.Millisecond
)

// Authenticator provides credentials for remote registries.
type Authenticator = remote.Authenticator

// Options configures a Store.
type Options struct {
	DataDir          string
	Backend          string
	Compression      bool
	CompressionLevel int
	SyncWrites       bool

	LookupTimeout   time.Duration
	Concurrency     int
	PersistAttempts int
	PersistBackoff  time.Duration

	Remote string
	Auth   Authenticator

	Logger *logrus.Logger
	Clock  clock.Clock

	backend store.Backend
}

// Option is a functional option for configuring Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		DataDir:          defaultDataDir(),
		Backend:          BackendBadger,
		Compression:      true,
		CompressionLevel: 2,
		LookupTimeout:    DefaultLookupTimeout,
		Concurrency:      DefaultConcurrency,
		PersistAttempts:  DefaultPersistAttempts,
		PersistBackoff:   DefaultPersistBackoff,
	}
}

// WithDataDir sets the directory holding the durable tier.
func WithDataDir(dir string) Option {
	return func(o *Options) { o.DataDir = dir }
}

// WithBackend selects the durable backend: BackendBadger, BackendLocal or
// BackendMemory.
func WithBackend(name string) Option {
	return func(o *Options) { o.Backend = name }
}

// WithCompression toggles zstd compression of stored bodies. Level is 1
// (fastest) to 3 (best).
func WithCompression(enabled bool, level int) Option {
	return func(o *Options) {
		o.Compression = enabled
		o.CompressionLevel = level
	}
}

// WithSyncWrites makes every durable write fsync before returning.
func WithSyncWrites(sync bool) Option {
	return func(o *Options) { o.SyncWrites = sync }
}

// WithLookupTimeout bounds each lookup in a batch resolution. Zero disables
// the bound.
func WithLookupTimeout(d time.Duration) Option {
	return func(o *Options) { o.LookupTimeout = d }
}

// WithConcurrency sets the number of parallel lookups per batch and the
// number of parallel layer transfers for push/pull.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithPersistRetry sets how often Publish retries a degraded durable write
// before giving up, and the initial delay between tries.
func WithPersistRetry(attempts int, backoff time.Duration) Option {
	return func(o *Options) {
		o.PersistAttempts = attempts
		o.PersistBackoff = backoff
	}
}

// WithRemote sets the OCI reference used by Push and Pull
// (e.g. "ghcr.io/org/wall-content:main").
func WithRemote(ref string) Option {
	return func(o *Options) { o.Remote = ref }
}

// WithAuth sets custom registry authentication.
func WithAuth(auth Authenticator) Option {
	return func(o *Options) { o.Auth = auth }
}

// WithBasicAuth authenticates to the remote registry with a username and
// password instead of the docker keychain.
func WithBasicAuth(username, password string) Option {
	return func(o *Options) {
		o.Auth = remote.StaticAuthenticator{Username: username, Password: password}
	}
}

// WithLogger sets the logger. Defaults to a logrus logger at warn level.
func WithLogger(l *logrus.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithClock sets the time source used for entry timestamps and the
// periodic sweeper.
func WithClock(c clock.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// withBackend injects a ready backend, bypassing Backend/DataDir.
func withBackend(b store.Backend) Option {
	return func(o *Options) { o.backend = b }
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "wallcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "wallcas")
	}
	return ".wallcas"
}

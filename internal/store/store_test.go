package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/wallcas/internal/compression"
)

func testKey(s string) Key {
	return Key(sha256.Sum256([]byte(s)))
}

func testEntry(body string, at time.Time) Entry {
	return Entry{Key: testKey(body), Body: []byte(body), StoredAt: at}
}

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := compression.NewCompressor(compression.LevelDefault, true)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return NewCodec(c)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type backendFactory func(t *testing.T) Backend

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"badger-memory": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{InMemory: true, Logger: quietLogger()}, testCodec(t))
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
		"badger-disk": func(t *testing.T) Backend {
			b, err := NewBadgerBackend(BadgerConfig{Path: t.TempDir(), Logger: quietLogger()}, testCodec(t))
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
		"local": func(t *testing.T) Backend {
			b, err := NewLocalBackend(t.TempDir(), testCodec(t))
			require.NoError(t, err)
			return b
		},
	}
}

func TestBackends(t *testing.T) {
	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("put and get", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()
				at := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

				created, err := b.PutIfAbsent(ctx, testEntry("hello", at))
				require.NoError(t, err)
				assert.True(t, created)

				e, err := b.Get(ctx, testKey("hello"))
				require.NoError(t, err)
				assert.Equal(t, []byte("hello"), e.Body)
				assert.True(t, e.StoredAt.Equal(at))
			})

			t.Run("put if absent keeps first", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()
				first := time.Unix(100, 0)

				_, err := b.PutIfAbsent(ctx, testEntry("x", first))
				require.NoError(t, err)
				created, err := b.PutIfAbsent(ctx, testEntry("x", first.Add(time.Hour)))
				require.NoError(t, err)
				assert.False(t, created)

				e, err := b.Get(ctx, testKey("x"))
				require.NoError(t, err)
				assert.True(t, e.StoredAt.Equal(first))
			})

			t.Run("missing", func(t *testing.T) {
				b := newBackend(t)
				_, err := b.Get(context.Background(), testKey("nope"))
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("delete", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				_, err := b.PutIfAbsent(ctx, testEntry("bye", time.Now()))
				require.NoError(t, err)
				require.NoError(t, b.Delete(ctx, testKey("bye")))
				_, err = b.Get(ctx, testKey("bye"))
				assert.ErrorIs(t, err, ErrNotFound)

				require.NoError(t, b.Delete(ctx, testKey("never there")))
			})

			t.Run("scan", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()

				want := map[Key]string{}
				for _, body := range []string{"a", "b", "c", string(make([]byte, 1024))} {
					_, err := b.PutIfAbsent(ctx, testEntry(body, time.Now()))
					require.NoError(t, err)
					want[testKey(body)] = body
				}

				got := map[Key]string{}
				require.NoError(t, b.Scan(ctx, func(e Entry) error {
					got[e.Key] = string(e.Body)
					return nil
				}))
				assert.Equal(t, want, got)
			})

			t.Run("scan stops on callback error", func(t *testing.T) {
				b := newBackend(t)
				ctx := context.Background()
				for _, body := range []string{"a", "b"} {
					_, err := b.PutIfAbsent(ctx, testEntry(body, time.Now()))
					require.NoError(t, err)
				}

				stop := errors.New("stop")
				calls := 0
				err := b.Scan(ctx, func(Entry) error {
					calls++
					return stop
				})
				assert.ErrorIs(t, err, stop)
				assert.Equal(t, 1, calls)
			})

			t.Run("cancelled context", func(t *testing.T) {
				b := newBackend(t)
				ctx, cancel := context.WithCancel(context.Background())
				cancel()

				_, err := b.PutIfAbsent(ctx, testEntry("late", time.Now()))
				assert.ErrorIs(t, err, context.Canceled)
				_, err = b.Get(ctx, testKey("late"))
				assert.ErrorIs(t, err, context.Canceled)
			})
		})
	}
}

func TestLocalBackendLayout(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(dir, NewCodec(nil))
	require.NoError(t, err)

	key := testKey("sharded")
	_, err = b.PutIfAbsent(context.Background(), Entry{Key: key, Body: []byte("sharded"), StoredAt: time.Now()})
	require.NoError(t, err)

	hex := key.Hex()
	_, err = os.Stat(filepath.Join(dir, "objects", hex[:2], hex[2:]))
	assert.NoError(t, err)

	leftovers, err := filepath.Glob(filepath.Join(dir, "objects", hex[:2], ".tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLocalBackendScanSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocalBackend(dir, NewCodec(nil))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.PutIfAbsent(ctx, testEntry("fine", time.Now()))
	require.NoError(t, err)

	bad := testKey("broken").Hex()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects", bad[:2]), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", bad[:2], bad[2:]), []byte{0xff, 0x00}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", bad[:2], "README"), []byte("ignored"), 0644))

	var seen []string
	err = b.Scan(ctx, func(e Entry) error {
		seen = append(seen, string(e.Body))
		return nil
	})
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, []string{"fine"}, seen)

	_, err = b.Get(ctx, testKey("broken"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBadgerCompact(t *testing.T) {
	b, err := NewBadgerBackend(BadgerConfig{Path: t.TempDir(), Logger: quietLogger()}, NewCodec(nil))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.PutIfAbsent(context.Background(), testEntry("tmp", time.Now()))
	require.NoError(t, err)
	require.NoError(t, b.Delete(context.Background(), testKey("tmp")))

	var c Compactor = b
	assert.NoError(t, c.Compact())
}

func TestBadgerRequiresPath(t *testing.T) {
	_, err := NewBadgerBackend(BadgerConfig{}, NewCodec(nil))
	assert.Error(t, err)
}

func TestParseHexKey(t *testing.T) {
	k := testKey("k")
	parsed, err := ParseHexKey(k.Hex())
	require.NoError(t, err)
	assert.Equal(t, k, parsed)

	_, err = ParseHexKey("abc")
	assert.Error(t, err)
	_, err = ParseHexKey(string(make([]byte, 64)))
	assert.Error(t, err)
}

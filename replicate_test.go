package wallcas

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-containerregistry/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/wallcas/internal/remote"
	"github.com/aweris/wallcas/internal/store"
)

func newTestRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New(registry.Logger(log.New(io.Discard, "", 0))))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestPushPull(t *testing.T) {
	ref := newTestRegistry(t) + "/wall/content:main"
	ctx := context.Background()

	clk := testClock()
	src := newTestStore(t, WithClock(clk), WithRemote(ref))
	for _, body := range []string{"alpha", "beta", "gamma"} {
		_, err := src.Put(ctx, body)
		require.NoError(t, err)
		clk.Add(time.Hour)
	}
	require.NoError(t, src.Push(ctx))

	dst := newTestStore(t, WithRemote(ref))
	res, err := dst.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Received)
	assert.Equal(t, 3, res.Imported)
	assert.Zero(t, res.Rejected)
	assert.True(t, strings.HasPrefix(res.Root, "sha256:"))

	want, err := src.Entries(ctx)
	require.NoError(t, err)
	got, err := dst.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Address, got[i].Address)
		assert.Equal(t, want[i].Body, got[i].Body)
		assert.True(t, want[i].StoredAt.Equal(got[i].StoredAt))
	}

	// nothing changed on the remote
	res, err = dst.Pull(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Received)

	_, err = src.Put(ctx, "delta")
	require.NoError(t, err)
	require.NoError(t, src.Push(ctx))

	res, err = dst.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, Found("delta"), dst.Get(ctx, Digest("delta")))
}

func TestPushToTags(t *testing.T) {
	host := newTestRegistry(t)
	ctx := context.Background()

	src := newTestStore(t, WithRemote(host+"/wall/content:main"))
	_, err := src.Put(ctx, "tagged")
	require.NoError(t, err)
	require.NoError(t, src.Push(ctx, "main", "v1"))

	dst := newTestStore(t, WithRemote(host+"/wall/content:v1"))
	res, err := dst.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestPullStatePersists(t *testing.T) {
	ref := newTestRegistry(t) + "/wall/content:main"
	ctx := context.Background()

	src := newTestStore(t, WithRemote(ref))
	_, err := src.Put(ctx, "remember me")
	require.NoError(t, err)
	require.NoError(t, src.Push(ctx))

	dir := t.TempDir()
	open := func() *Store {
		s, err := Open(WithDataDir(dir), WithBackend(BackendLocal), WithRemote(ref), WithLogger(quietLogger()))
		require.NoError(t, err)
		return s
	}

	dst := open()
	res, err := dst.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	require.NoError(t, dst.Close())

	dst = open()
	defer dst.Close()
	res, err = dst.Pull(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Received)
	assert.True(t, dst.Has(ctx, Digest("remember me")))
}

func TestPullRejectsTamperedEntries(t *testing.T) {
	ref := newTestRegistry(t) + "/wall/content:main"
	ctx := context.Background()

	r, err := remote.NewOCIRemote(ref, remote.NewDefaultAuthenticator())
	require.NoError(t, err)
	r.SetLogger(quietLogger())

	good := Digest("honest")
	_, err = r.Push(ctx, []store.Entry{
		{Key: store.Key(good), Body: []byte("honest"), StoredAt: time.Now()},
		{Key: store.Key(Digest("claimed")), Body: []byte("swapped"), StoredAt: time.Now()},
	})
	require.NoError(t, err)

	dst := newTestStore(t, WithRemote(ref))
	res, err := dst.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Received)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, Missing, dst.Get(ctx, Digest("claimed")))
}

func TestReplicationWithoutRemote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Push(ctx), ErrNoRemote)
	_, err := s.Pull(ctx)
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestPullPersistsPendingEntries(t *testing.T) {
	ref := newTestRegistry(t) + "/wall/content:main"
	ctx := context.Background()

	src := newTestStore(t, WithRemote(ref))
	_, err := src.Put(ctx, "replicated")
	require.NoError(t, err)
	require.NoError(t, src.Push(ctx))

	backend := &flakyBackend{Backend: newMemBackend(t)}
	backend.failPuts.Store(1)
	dst := newTestStore(t, withBackend(backend), WithRemote(ref))

	a, err := dst.Put(ctx, "replicated")
	require.ErrorIs(t, err, ErrDurabilityDegraded)
	require.Equal(t, []Address{a}, dst.Pending())

	_, err = dst.Pull(ctx)
	require.NoError(t, err)
	assert.Empty(t, dst.Pending())
	assert.Equal(t, Found("replicated"), dst.Get(ctx, a))
}

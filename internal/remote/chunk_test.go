package remote

import (
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aweris/wallcas/internal/store"
)

func entry(body string, at time.Time) store.Entry {
	return store.Entry{Key: store.Key(sha256.Sum256([]byte(body))), Body: []byte(body), StoredAt: at}
}

func TestGroupByPrefix(t *testing.T) {
	var entries []store.Entry
	for i := 0; i < 100; i++ {
		entries = append(entries, entry(fmt.Sprint(i), time.Unix(int64(i), 0)))
	}

	groups := GroupByPrefix(entries)
	total := 0
	for prefix, group := range groups {
		assert.Len(t, prefix, 2)
		for _, e := range group {
			assert.Equal(t, prefix, e.Key.Hex()[:2])
		}
		total += len(group)
	}
	assert.Equal(t, 100, total)
}

func TestPrefixHash(t *testing.T) {
	at := time.Unix(1000, 0)
	a := entry("a", at)
	b := entry("b", at)

	assert.Empty(t, PrefixHash(nil))
	assert.Equal(t, PrefixHash([]store.Entry{a, b}), PrefixHash([]store.Entry{b, a}))
	assert.NotEqual(t, PrefixHash([]store.Entry{a}), PrefixHash([]store.Entry{a, b}))

	moved := a
	moved.StoredAt = at.Add(time.Second)
	assert.NotEqual(t, PrefixHash([]store.Entry{a}), PrefixHash([]store.Entry{moved}))
}

func TestRootHash(t *testing.T) {
	p1 := map[string]PrefixInfo{"00": {Hash: "h1"}, "ff": {Hash: "h2"}}
	p2 := map[string]PrefixInfo{"ff": {Hash: "h2", Layer: "other"}, "00": {Hash: "h1"}}
	p3 := map[string]PrefixInfo{"00": {Hash: "h1"}, "ff": {Hash: "h3"}}

	assert.Equal(t, RootHash(p1), RootHash(p2))
	assert.NotEqual(t, RootHash(p1), RootHash(p3))
}

func TestPackLayerDeterministic(t *testing.T) {
	at := time.Unix(5, 0)
	a, b, c := entry("a", at), entry("b", at), entry("c", at)

	l1, err := PackLayer([]store.Entry{a, b, c})
	require.NoError(t, err)
	l2, err := PackLayer([]store.Entry{c, a, b})
	require.NoError(t, err)
	assert.Equal(t, l1, l2)

	got, err := UnpackLayer(l1)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBuildLayerPlan(t *testing.T) {
	t.Run("small prefixes share a layer", func(t *testing.T) {
		plan := BuildLayerPlan(map[string]int64{"00": 10, "01": 20, "02": 30})
		assert.Equal(t, [][]string{{"00", "01", "02"}}, plan)
	})

	t.Run("splits past soft max", func(t *testing.T) {
		plan := BuildLayerPlan(map[string]int64{
			"00": 6 * 1024 * 1024,
			"01": 6 * 1024 * 1024,
			"02": 1024,
		})
		assert.Equal(t, [][]string{{"00"}, {"01", "02"}}, plan)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, BuildLayerPlan(nil))
	})
}

func TestCollectPrefixEntries(t *testing.T) {
	at := time.Unix(1, 0)
	byPrefix := map[string][]store.Entry{
		"aa": {entry("x", at)},
		"bb": {entry("y", at), entry("z", at)},
		"cc": {entry("w", at)},
	}
	got := CollectPrefixEntries([]string{"aa", "bb"}, byPrefix)
	assert.Len(t, got, 3)

	sizes := CalculatePrefixSizes(byPrefix)
	assert.Equal(t, int64(1+store.KeySize+8), sizes["aa"])
	assert.Equal(t, int64(2*(1+store.KeySize+8)), sizes["bb"])
}

func TestNewOCIRemote(t *testing.T) {
	r, err := NewOCIRemote("registry.example.com/wall/content", nil)
	require.NoError(t, err)
	assert.Equal(t, "latest", r.Tag())
	assert.Equal(t, "registry.example.com", r.Registry())

	tagged, err := r.WithTag("v2")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/wall/content:v2", tagged.String())

	_, err = NewOCIRemote("UPPER/case::bad", nil)
	assert.Error(t, err)
}

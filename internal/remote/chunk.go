package remote

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/aweris/wallcas/internal/store"
)

const (
	LayerTargetSize = 5 * 1024 * 1024  // 5MB target
	LayerMinSize    = 2 * 1024 * 1024  // 2MB minimum before combining
	LayerSoftMax    = 10 * 1024 * 1024 // 10MB soft maximum
)

type PrefixInfo struct {
	Hash  string `json:"hash"`
	Layer string `json:"layer"`
}

func GroupByPrefix(entries []store.Entry) map[string][]store.Entry {
	result := make(map[string][]store.Entry)
	for _, e := range entries {
		prefix := extractPrefix(e.Key)
		result[prefix] = append(result[prefix], e)
	}
	return result
}

func extractPrefix(key store.Key) string {
	return key.Hex()[:2]
}

// PrefixHash identifies the contents of a prefix group. Entries are
// immutable, so key and timestamp are enough to detect a change.
func PrefixHash(entries []store.Entry) string {
	if len(entries) == 0 {
		return ""
	}

	sorted := sortedEntries(entries)

	h := sha256.New()
	for _, e := range sorted {
		h.Write(e.Key[:])
		binary.Write(h, binary.BigEndian, e.StoredAt.UnixNano())
		binary.Write(h, binary.BigEndian, int64(len(e.Body)))
	}

	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// RootHash identifies a whole snapshot by its prefix hashes.
func RootHash(prefixes map[string]PrefixInfo) string {
	names := make([]string, 0, len(prefixes))
	for p := range prefixes {
		names = append(names, p)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, p := range names {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(prefixes[p].Hash))
		h.Write([]byte{'\n'})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

func PrefixSize(entries []store.Entry) int64 {
	var total int64
	for _, e := range entries {
		total += int64(len(e.Body)) + store.KeySize + 8
	}
	return total
}

// PackLayer packs entries into the layer payload, sorted by key so equal
// groups produce identical layers.
func PackLayer(entries []store.Entry) ([]byte, error) {
	return store.PackEntries(sortedEntries(entries))
}

func UnpackLayer(data []byte) ([]store.Entry, error) {
	return store.UnpackEntries(data)
}

func BuildLayerPlan(prefixSizes map[string]int64) [][]string {
	prefixes := make([]string, 0, len(prefixSizes))
	for p := range prefixSizes {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	var layers [][]string
	var current []string
	var size int64

	for _, prefix := range prefixes {
		prefixSize := prefixSizes[prefix]

		if len(current) == 0 {
			current = append(current, prefix)
			size = prefixSize
			continue
		}

		newSize := size + prefixSize
		if newSize <= LayerSoftMax {
			current = append(current, prefix)
			size = newSize
		} else if size < LayerMinSize && newSize <= 2*LayerSoftMax {
			current = append(current, prefix)
			size = newSize
		} else {
			layers = append(layers, current)
			current = []string{prefix}
			size = prefixSize
		}
	}

	if len(current) > 0 {
		layers = append(layers, current)
	}

	return layers
}

func CollectPrefixEntries(prefixes []string, byPrefix map[string][]store.Entry) []store.Entry {
	var result []store.Entry
	for _, prefix := range prefixes {
		result = append(result, byPrefix[prefix]...)
	}
	return result
}

func CalculatePrefixSizes(byPrefix map[string][]store.Entry) map[string]int64 {
	result := make(map[string]int64)
	for prefix, entries := range byPrefix {
		result[prefix] = PrefixSize(entries)
	}
	return result
}

func sortedEntries(entries []store.Entry) []store.Entry {
	sorted := make([]store.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return string(sorted[i].Key[:]) < string(sorted[j].Key[:])
	})
	return sorted
}

// Package remote replicates content entries through an OCI registry.
//
// Based on go-containerregistry patterns:
// - Authentication via keychain
// - Upload ordering: layers → config → manifest
// - Standard OCI distribution API
//
// Entries are grouped by the first byte of their key. Each group has a
// hash recorded in the image config, so a pull only downloads the layers
// whose groups changed since the last sync.
package remote

import (
	"context"

	"github.com/aweris/wallcas/internal/store"
)

// Remote handles OCI registry operations.
type Remote interface {
	// Push uploads all entries, returning the prefix state now on the remote.
	Push(ctx context.Context, entries []store.Entry) (map[string]PrefixInfo, error)

	// Pull downloads entries from groups that differ from local.
	Pull(ctx context.Context, local map[string]PrefixInfo) (rootHash string, entries []store.Entry, remote map[string]PrefixInfo, err error)
}

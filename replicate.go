package wallcas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aweris/wallcas/internal/remote"
	"github.com/aweris/wallcas/internal/store"
)

// PullResult summarizes a Pull.
type PullResult struct {
	Root     string // snapshot hash recorded on the remote
	Received int    // entries downloaded
	Imported int    // entries that were new locally
	Rejected int    // entries whose body did not match their address
}

// Push uploads every durable entry to the configured remote, once per tag.
// Without tags the tag of the remote reference is used.
func (s *Store) Push(ctx context.Context, tags ...string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	if s.closed.Load() {
		return ErrClosed
	}
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	var entries []store.Entry
	err := s.backend.Scan(ctx, func(e store.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if !errors.Is(err, store.ErrCorrupt) || ctx.Err() != nil {
			return fmt.Errorf("collect entries: %w", err)
		}
		s.log.WithError(err).Warn("push: skipping undecodable entries")
	}

	if len(tags) == 0 {
		tags = []string{s.remote.Tag()}
	}
	for _, tag := range tags {
		r, err := s.remote.WithTag(tag)
		if err != nil {
			return fmt.Errorf("invalid tag %q: %w", tag, err)
		}
		prefixes, err := r.Push(ctx, entries)
		if err != nil {
			return fmt.Errorf("push to %s: %w", tag, err)
		}
		if err := s.savePrefixState(r.String(), prefixes); err != nil {
			s.log.WithError(err).Warn("push: could not record sync state")
		}
	}
	return nil
}

// Pull downloads the groups of entries that changed on the remote since the
// last sync and adds them to the durable tier. Entries keep the timestamp
// they were first stored with, so retention is the same on every replica.
func (s *Store) Pull(ctx context.Context) (PullResult, error) {
	if s.remote == nil {
		return PullResult{}, ErrNoRemote
	}
	if s.closed.Load() {
		return PullResult{}, ErrClosed
	}
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()

	ref := s.remote.String()
	root, entries, prefixes, err := s.remote.Pull(ctx, s.loadPrefixState(ref))
	if err != nil {
		return PullResult{}, fmt.Errorf("pull: %w", err)
	}

	res := PullResult{Root: root, Received: len(entries)}
	for _, e := range entries {
		a := Address(e.Key)
		if !Verify(string(e.Body), a) {
			res.Rejected++
			s.log.WithField("address", a.String()).Warn("pull: body does not match address, skipped")
			continue
		}
		created, err := s.importEntry(ctx, e)
		if err != nil {
			return res, fmt.Errorf("import %s: %w", a, err)
		}
		if created {
			res.Imported++
		}
	}

	if err := s.savePrefixState(ref, prefixes); err != nil {
		s.log.WithError(err).Warn("pull: could not record sync state")
	}
	return res, nil
}

func (s *Store) importEntry(ctx context.Context, e store.Entry) (bool, error) {
	a := Address(e.Key)
	mu := &s.locks[a.shard()]
	mu.Lock()
	defer mu.Unlock()

	created, err := s.backend.PutIfAbsent(ctx, e)
	if err != nil {
		return false, err
	}
	if s.isPending(a) {
		// the cache held the only copy; it is durable now
		s.cache.Remove(e.Key)
		s.clearPending(a)
	}
	return created, nil
}

func (s *Store) prefixStatePath(ref string) string {
	if s.opts.Backend == BackendMemory || s.opts.Backend == backendCustom || s.opts.DataDir == "" {
		return ""
	}
	name := strings.ReplaceAll(ref, "/", "_")
	name = strings.ReplaceAll(name, ":", "_")
	return filepath.Join(s.opts.DataDir, "remote", name+".json")
}

func (s *Store) loadPrefixState(ref string) map[string]remote.PrefixInfo {
	result := make(map[string]remote.PrefixInfo)

	path := s.prefixStatePath(ref)
	if path == "" {
		for k, v := range s.syncState[ref] {
			result[k] = v
		}
		return result
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.WithError(err).WithField("path", path).Warn("ignoring unreadable sync state")
		return make(map[string]remote.PrefixInfo)
	}
	return result
}

func (s *Store) savePrefixState(ref string, prefixes map[string]remote.PrefixInfo) error {
	path := s.prefixStatePath(ref)
	if path == "" {
		if s.syncState == nil {
			s.syncState = make(map[string]map[string]remote.PrefixInfo)
		}
		s.syncState[ref] = prefixes
		return nil
	}

	data, err := json.Marshal(prefixes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend implements Backend using the local filesystem.
//
// Storage layout:
//
//	basePath/
//	  objects/
//	    ab/cd123...  (one CBOR envelope per entry)
//
// Writes go to a temporary file in the shard directory and are renamed into
// place, so a reader sees either the whole entry or nothing.
type LocalBackend struct {
	basePath string
	codec    *Codec
}

func NewLocalBackend(basePath string, codec *Codec) (*LocalBackend, error) {
	objectsDir := filepath.Join(basePath, "objects")
	if err := os.MkdirAll(objectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", objectsDir, err)
	}

	return &LocalBackend{
		basePath: basePath,
		codec:    codec,
	}, nil
}

// Get retrieves an entry by key.
func (b *LocalBackend) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	data, err := os.ReadFile(b.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("failed to read object: %w", err)
	}

	return b.codec.Decode(key, data)
}

// PutIfAbsent stores an entry unless it already exists.
func (b *LocalBackend) PutIfAbsent(ctx context.Context, e Entry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path := b.objectPath(e.Key)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	data, err := b.codec.Encode(e)
	if err != nil {
		return false, fmt.Errorf("failed to encode object: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return false, fmt.Errorf("failed to sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close object: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("failed to commit object: %w", err)
	}

	return true, nil
}

// Delete removes an entry.
func (b *LocalBackend) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(b.objectPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Scan walks every object under the objects directory. Objects that fail
// to decode are skipped and reported together once the walk finishes.
func (b *LocalBackend) Scan(ctx context.Context, fn func(Entry) error) error {
	root := filepath.Join(b.basePath, "objects")
	var corrupt []error
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		shard := filepath.Base(filepath.Dir(path))
		key, err := ParseHexKey(shard + d.Name())
		if err != nil {
			// not ours
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("failed to read object: %w", err)
		}
		e, err := b.codec.Decode(key, data)
		if err != nil {
			corrupt = append(corrupt, err)
			return nil
		}
		return fn(e)
	})
	if err != nil {
		return err
	}
	return errors.Join(corrupt...)
}

// Close is a no-op for the filesystem backend.
func (b *LocalBackend) Close() error {
	return nil
}

// objectPath returns the filesystem path for a key.
// Git-style sharding: objects/ab/cd123...
func (b *LocalBackend) objectPath(key Key) string {
	hash := key.Hex()
	return filepath.Join(b.basePath, "objects", hash[:2], hash[2:])
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// contentPrefix namespaces entry keys inside the badger keyspace.
var contentPrefix = []byte("c/")

// BadgerConfig configures a BadgerBackend.
type BadgerConfig struct {
	Path       string // ignored when InMemory is set
	InMemory   bool
	SyncWrites bool
	Logger     *logrus.Logger
}

// BadgerBackend implements Backend on top of badger.
type BadgerBackend struct {
	db       *badger.DB
	codec    *Codec
	log      *logrus.Entry
	inMemory bool
}

func NewBadgerBackend(config BadgerConfig, codec *Codec) (*BadgerBackend, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	log := config.Logger.WithField("component", "badger")

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.Path == "" {
			return nil, errors.New("no path provided for badger backend")
		}
		opts = badger.DefaultOptions(config.Path)
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	}
	opts.SyncWrites = config.SyncWrites
	opts.Logger = badgerLogger{log}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &BadgerBackend{
		db:       db,
		codec:    codec,
		log:      log,
		inMemory: config.InMemory,
	}, nil
}

func entryKey(key Key) []byte {
	k := make([]byte, 0, len(contentPrefix)+KeySize)
	k = append(k, contentPrefix...)
	return append(k, key[:]...)
}

func (b *BadgerBackend) Get(ctx context.Context, key Key) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read key %s: %w", key.Hex(), err)
	}
	return b.codec.Decode(key, value)
}

func (b *BadgerBackend) PutIfAbsent(ctx context.Context, e Entry) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	value, err := b.codec.Encode(e)
	if err != nil {
		return false, err
	}

	created := false
	err = b.db.Update(func(txn *badger.Txn) error {
		k := entryKey(e.Key)
		_, err := txn.Get(k)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		created = true
		return txn.Set(k, value)
	})
	if err != nil {
		return false, fmt.Errorf("write key %s: %w", e.Key.Hex(), err)
	}
	return created, nil
}

func (b *BadgerBackend) Delete(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(key))
	})
	if err != nil {
		return fmt.Errorf("delete key %s: %w", key.Hex(), err)
	}
	return nil
}

func (b *BadgerBackend) Scan(ctx context.Context, fn func(Entry) error) error {
	var corrupt []error
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = contentPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			raw := item.Key()[len(contentPrefix):]
			if len(raw) != KeySize {
				continue
			}
			var key Key
			copy(key[:], raw)

			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := b.codec.Decode(key, value)
			if err != nil {
				corrupt = append(corrupt, err)
				continue
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(corrupt...)
}

// Compact reclaims value log space left behind by deletions.
func (b *BadgerBackend) Compact() error {
	if b.inMemory {
		return nil
	}
	for {
		err := b.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		return fmt.Errorf("value log gc: %w", err)
	}
}

func (b *BadgerBackend) Close() error {
	if !b.inMemory {
		if err := b.db.Sync(); err != nil {
			b.log.WithError(err).Warn("sync before close failed")
		}
	}
	return b.db.Close()
}

// badgerLogger routes badger's internal logging through logrus, one level
// down so routine compaction chatter stays out of info output.
type badgerLogger struct {
	entry *logrus.Entry
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.entry.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.entry.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.entry.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.entry.Tracef(f, v...) }

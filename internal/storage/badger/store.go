// Package badger persists tag records in an embedded Badger key-value store,
// msgpack-encoded under the "tag/" key prefix.
package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

var _ storage.Store = (*Store)(nil)

// DefaultDir is used when no directory is configured.
const DefaultDir = "tagscan.badger"

var keyPrefix = []byte("tag/")

// Store is a Badger-backed tag store.
type Store struct {
	db *badger.DB
}

// Options controls how the database is opened.
type Options struct {
	Dir      string
	InMemory bool
	Logger   *logrus.Logger
}

// NewStore opens the database described by opts.
func NewStore(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = DefaultDir
		}
		bopts = badger.DefaultOptions(dir)
	}
	if opts.Logger != nil {
		bopts = bopts.WithLogger(opts.Logger.WithField("component", "badger"))
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func buildKey(epc string) []byte {
	return []byte(fmt.Sprintf("%s%s", keyPrefix, epc))
}

func (s *Store) Save(ctx context.Context, rec tag.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tag.ValidateEPC(rec.EPC); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	buf, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tag %s: %w", rec.EPC, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(buildKey(rec.EPC), buf)
	})
}

func (s *Store) LoadAll(ctx context.Context) ([]tag.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []tag.Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			var rec tag.Record
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			rec.FirstSeen = rec.FirstSeen.UTC()
			rec.LastSeen = rec.LastSeen.UTC()
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	storage.SortByLastSeen(out)
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropPrefix(keyPrefix); err != nil {
		return fmt.Errorf("failed to drop tags: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

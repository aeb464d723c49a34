// Package memory is a process-local Store, used for demos and tests.
package memory

import (
	"context"
	"fmt"

	"github.com/cornelk/hashmap"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

var _ storage.Store = (*Store)(nil)

// Store keeps records in a lock-free hash map.
type Store struct {
	records *hashmap.Map[string, tag.Record]
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{records: hashmap.New[string, tag.Record]()}
}

func (s *Store) Save(ctx context.Context, rec tag.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tag.ValidateEPC(rec.EPC); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.records.Set(rec.EPC, rec.Clone())
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]tag.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]tag.Record, 0, s.records.Len())
	s.records.Range(func(_ string, rec tag.Record) bool {
		out = append(out, rec.Clone())
		return true
	})
	storage.SortByLastSeen(out)
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var keys []string
	s.records.Range(func(epc string, _ tag.Record) bool {
		keys = append(keys, epc)
		return true
	})
	for _, k := range keys {
		s.records.Del(k)
	}
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return s.records.Len()
}

func (s *Store) Close() error {
	return nil
}

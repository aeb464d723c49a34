// Package storage defines the persistence contract for tag records.
//
// Adapters live in subpackages (memory, sqlite, postgres, badger) and are
// selected by internal/storefactory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/srg/tagscan/internal/tag"
)

// Store makes tag records durable across restarts.
type Store interface {
	// Save inserts or replaces the record keyed by its EPC.
	Save(ctx context.Context, rec tag.Record) error
	// LoadAll returns every stored record, most recently seen first.
	LoadAll(ctx context.Context) ([]tag.Record, error)
	// DeleteAll removes every stored record.
	DeleteAll(ctx context.Context) error
	Close() error
}

// Driver names a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverBadger   Driver = "badger"
)

// Drivers lists every supported backend.
var Drivers = []Driver{DriverMemory, DriverSQLite, DriverPostgres, DriverBadger}

var ErrUnknownDriver = errors.New("unknown storage driver")

// ParseDriver validates a driver name.
func ParseDriver(name string) (Driver, error) {
	d := Driver(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Drivers {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q (must be one of %v)", ErrUnknownDriver, name, Drivers)
}

// SortByLastSeen orders records most recently seen first, breaking ties by EPC
// so adapters without an ordered index return a deterministic sequence.
func SortByLastSeen(records []tag.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].LastSeen.Equal(records[j].LastSeen) {
			return records[i].EPC < records[j].EPC
		}
		return records[i].LastSeen.After(records[j].LastSeen)
	})
}

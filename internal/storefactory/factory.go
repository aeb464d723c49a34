// Package storefactory opens the storage.Store selected by configuration.
package storefactory

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/storage/badger"
	"github.com/srg/tagscan/internal/storage/memory"
	"github.com/srg/tagscan/internal/storage/postgres"
	"github.com/srg/tagscan/internal/storage/sqlite"
	"github.com/srg/tagscan/pkg/config"
)

// StoreFactory opens a store for the given settings.
// This is a variable so that it can be overridden in tests.
var StoreFactory = func(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (storage.Store, error) {
	driver, err := storage.ParseDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case storage.DriverMemory:
		return memory.NewStore(), nil
	case storage.DriverSQLite:
		return sqlite.NewStore(ctx, cfg.Path)
	case storage.DriverPostgres:
		return postgres.NewStore(ctx, cfg.DSN)
	case storage.DriverBadger:
		dir := cfg.Path
		if dir == "" || dir == sqlite.DefaultPath {
			dir = badger.DefaultDir
		}
		return badger.NewStore(badger.Options{Dir: dir, Logger: logger})
	}
	return nil, fmt.Errorf("%w: %s", storage.ErrUnknownDriver, driver)
}

// Open is the primary entry point for obtaining a configured store.
func Open(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (storage.Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	store, err := StoreFactory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	logger.WithFields(logrus.Fields{
		"driver": cfg.Driver,
		"path":   cfg.Path,
	}).Debug("Storage opened")
	return store, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/storage/storagetest"
)

const dsnEnv = "TAGSCAN_TEST_POSTGRES_DSN"

func TestPostgresStoreSuite(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	s := new(storagetest.StoreSuite)
	s.NewStore = func() storage.Store {
		store, err := NewStore(context.Background(), dsn)
		require.NoError(t, err)
		require.NoError(t, store.DeleteAll(context.Background()))
		return store
	}
	suite.Run(t, s)
}

func TestNewStore_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return nil, errors.New("boom")
	}

	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres")
	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, DefaultDSN, gotDSN, "empty dsn MUST fall back to the default")
}

package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/storage/storagetest"
	"github.com/srg/tagscan/internal/tag"
	"github.com/srg/tagscan/internal/testutils"
)

func TestBadgerStoreSuite(t *testing.T) {
	s := new(storagetest.StoreSuite)
	s.NewStore = func() storage.Store {
		store, err := NewStore(Options{InMemory: true, Logger: testutils.NewQuietLogger()})
		require.NoError(t, err)
		return store
	}
	suite.Run(t, s)
}

// GOAL: Verify records written to an on-disk directory are readable after reopening
//
// TEST SCENARIO: Save a tag → close → reopen the directory → record with rssi and counts is intact
func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewStore(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tag.Record{EPC: "E200BOO0000000AA", RSSI: tag.RSSI(-47), SeenCount: 5, FirstSeen: storagetest.At(1), LastSeen: storagetest.At(9)}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(Options{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	recs, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "E200BOO0000000AA", recs[0].EPC)
	require.NotNil(t, recs[0].RSSI)
	assert.Equal(t, -47, *recs[0].RSSI)
	assert.Equal(t, 5, recs[0].SeenCount)
	assert.Equal(t, storagetest.At(9), recs[0].LastSeen)
}

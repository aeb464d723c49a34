// Package storagetest holds the behaviour every storage.Store adapter must share.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/tagscan/internal/storage"
	"github.com/srg/tagscan/internal/tag"
)

// StoreSuite runs the common Store contract against a fresh store per test.
// Adapters embed it and set NewStore.
type StoreSuite struct {
	suite.Suite
	NewStore func() storage.Store

	store storage.Store
	ctx   context.Context
}

// At returns the n-th second after a fixed epoch, in UTC.
func At(n int) time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Second)
}

func (s *StoreSuite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore MUST be set by the adapter suite")
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *StoreSuite) TearDownTest() {
	if s.store != nil {
		s.NoError(s.store.Close())
	}
}

// Store exposes the store under test to adapter-specific tests.
func (s *StoreSuite) Store() storage.Store {
	return s.store
}

func (s *StoreSuite) TestLoadAll_EmptyStore() {
	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(recs)
}

func (s *StoreSuite) TestSave_RoundTrip() {
	rec := tag.Record{EPC: "E200CLO00000001", RSSI: tag.RSSI(-55), SeenCount: 3, FirstSeen: At(1), LastSeen: At(7)}
	s.Require().NoError(s.store.Save(s.ctx, rec))

	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.assertRecord(rec, recs[0])
}

func (s *StoreSuite) TestSave_SubSecondRoundTrip() {
	first := At(1).Add(123456789 * time.Nanosecond)
	last := At(2).Add(987654321 * time.Nanosecond)
	rec := tag.Record{EPC: "E200NAN00000001", SeenCount: 2, FirstSeen: first, LastSeen: last}
	s.Require().NoError(s.store.Save(s.ctx, rec))

	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.assertRecord(rec, recs[0])
	s.Equal(time.UTC, recs[0].LastSeen.Location())
}

func (s *StoreSuite) TestSave_WithoutRSSI() {
	rec := tag.Record{EPC: "E200ELE00000002", SeenCount: 1, FirstSeen: At(2), LastSeen: At(2)}
	s.Require().NoError(s.store.Save(s.ctx, rec))

	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 1)
	s.Nil(recs[0].RSSI, "unset rssi MUST stay unset after a round trip")
}

func (s *StoreSuite) TestSave_ReplacesByEPC() {
	s.Require().NoError(s.store.Save(s.ctx, tag.Record{EPC: "A", RSSI: tag.RSSI(-60), SeenCount: 1, FirstSeen: At(1), LastSeen: At(1)}))
	updated := tag.Record{EPC: "A", RSSI: tag.RSSI(-40), SeenCount: 2, FirstSeen: At(1), LastSeen: At(5)}
	s.Require().NoError(s.store.Save(s.ctx, updated))

	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 1, "saving the same epc MUST NOT duplicate it")
	s.assertRecord(updated, recs[0])
}

func (s *StoreSuite) TestLoadAll_OrdersByLastSeenDescending() {
	for _, r := range []tag.Record{
		{EPC: "A", SeenCount: 1, FirstSeen: At(1), LastSeen: At(1)},
		{EPC: "B", SeenCount: 1, FirstSeen: At(3), LastSeen: At(3)},
		{EPC: "C", SeenCount: 1, FirstSeen: At(2), LastSeen: At(2)},
	} {
		s.Require().NoError(s.store.Save(s.ctx, r))
	}

	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(recs, 3)
	s.Equal([]string{"B", "C", "A"}, []string{recs[0].EPC, recs[1].EPC, recs[2].EPC})
}

func (s *StoreSuite) TestDeleteAll() {
	s.Require().NoError(s.store.Save(s.ctx, tag.Record{EPC: "A", SeenCount: 1, FirstSeen: At(1), LastSeen: At(1)}))
	s.Require().NoError(s.store.Save(s.ctx, tag.Record{EPC: "B", SeenCount: 1, FirstSeen: At(1), LastSeen: At(1)}))

	s.Require().NoError(s.store.DeleteAll(s.ctx))
	recs, err := s.store.LoadAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(recs)

	s.Require().NoError(s.store.DeleteAll(s.ctx), "deleting an empty store MUST succeed")
}

func (s *StoreSuite) TestSave_RejectsEmptyEPC() {
	err := s.store.Save(s.ctx, tag.Record{SeenCount: 1, FirstSeen: At(1), LastSeen: At(1)})
	s.ErrorIs(err, tag.ErrInvalidArgument)
}

func (s *StoreSuite) assertRecord(want, got tag.Record) {
	s.Equal(want.EPC, got.EPC)
	s.Equal(want.RSSI, got.RSSI)
	s.Equal(want.SeenCount, got.SeenCount)
	s.True(want.FirstSeen.Equal(got.FirstSeen), "first seen: want %s, got %s", want.FirstSeen, got.FirstSeen)
	s.True(want.LastSeen.Equal(got.LastSeen), "last seen: want %s, got %s", want.LastSeen, got.LastSeen)
}

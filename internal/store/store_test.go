package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewStore(t.TempDir(), "https://itunes.apple.com")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *BoltStore) {
	t.Helper()
	require.NoError(t, s.UpsertPodcast(domain.Podcast{ID: "p1", Title: "Pod One"}))
	require.NoError(t, s.UpsertEpisodes("p1", []domain.Episode{
		{ID: "e1", Title: "First", AudioURL: "http://a/e1.mp3", PublishedAt: time.Unix(100, 0)},
		{ID: "e2", Title: "Second", AudioURL: "http://a/e2.mp3", PublishedAt: time.Unix(200, 0)},
	}))
}

func TestPodcastUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	p := domain.Podcast{ID: "p1", Title: "Old"}
	require.NoError(t, s.UpsertPodcast(p))
	p.Title = "New"
	require.NoError(t, s.UpsertPodcast(p))

	all, err := s.ListPodcasts()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "New", all[0].Title)

	_, err = s.GetPodcast("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEpisodesRequirePodcast(t *testing.T) {
	s := newTestStore(t)
	err := s.UpsertEpisodes("p1", []domain.Episode{{ID: "e1"}})
	assert.ErrorIs(t, err, domain.ErrStoreConstraint)

	seed(t, s)
	eps, err := s.ListEpisodes("p1")
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, "e2", eps[0].ID, "newest first")
	assert.Equal(t, "p1", eps[0].PodcastID)

	ep, err := s.GetEpisode("e1")
	require.NoError(t, err)
	assert.Equal(t, "First", ep.Title)

	ep, err = s.FindEpisodeByAudioURL("http://a/e2.mp3")
	require.NoError(t, err)
	assert.Equal(t, "e2", ep.ID)

	require.NoError(t, s.UpsertPodcast(domain.Podcast{ID: "p2"}))
	err = s.UpsertEpisodes("p2", []domain.Episode{{ID: "e1"}})
	assert.ErrorIs(t, err, domain.ErrStoreConstraint, "episode cannot move between podcasts")
}

func TestSubscriptions(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AddSubscription(domain.Subscription{PodcastID: "p1"})
	assert.ErrorIs(t, err, domain.ErrStoreConstraint)

	require.NoError(t, s.UpsertPodcast(domain.Podcast{ID: "p1"}))
	require.NoError(t, s.UpsertPodcast(domain.Podcast{ID: "p2"}))

	added, err := s.AddSubscription(domain.Subscription{PodcastID: "p2", SubscribedAt: time.Unix(10, 0)})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddSubscription(domain.Subscription{PodcastID: "p1", SubscribedAt: time.Unix(20, 0)})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddSubscription(domain.Subscription{PodcastID: "p2", SubscribedAt: time.Unix(30, 0)})
	require.NoError(t, err)
	assert.False(t, added)

	subs, err := s.ListSubscriptions()
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "p2", subs[0].PodcastID)
	assert.Equal(t, time.Unix(10, 0).Unix(), subs[0].SubscribedAt.Unix(), "re-subscribe keeps original time")

	removed, err := s.RemoveSubscription("p2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveSubscription("p2")
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err := s.IsSubscribed("p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHistoryIsOrderedAndIdempotent(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	inserted, err := s.InsertHistory(domain.HistoryEntry{ID: "h2", EpisodeID: "e2", TimestampMillis: 2000})
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.InsertHistory(domain.HistoryEntry{ID: "h1", EpisodeID: "e1", TimestampMillis: 1000})
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.InsertHistory(domain.HistoryEntry{ID: "h2", EpisodeID: "e2", TimestampMillis: 2500})
	require.NoError(t, err)
	assert.False(t, inserted)

	entries, err := s.ListHistory()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "h1", entries[0].ID)
	assert.Equal(t, "p1", entries[0].PodcastID, "podcast filled from episode")

	latest, ok, err := s.LatestHistory()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "h2", latest.ID)

	_, err = s.InsertHistory(domain.HistoryEntry{ID: "h3", EpisodeID: "nope", TimestampMillis: 3000})
	assert.ErrorIs(t, err, domain.ErrStoreConstraint)
}

func TestBookmarks(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	err := s.UpsertBookmark(domain.Bookmark{ID: "b0", EpisodeID: "missing"})
	assert.ErrorIs(t, err, domain.ErrStoreConstraint)

	require.NoError(t, s.UpsertBookmark(domain.Bookmark{ID: "b1", EpisodeID: "e1", PositionSeconds: 42}))
	require.NoError(t, s.UpsertBookmark(domain.Bookmark{ID: "b2", EpisodeID: "e1", PositionSeconds: 10}))

	bms, err := s.ListBookmarks("p1")
	require.NoError(t, err)
	require.Len(t, bms, 2)
	assert.Equal(t, "b2", bms[0].ID)
	assert.Equal(t, "p1", bms[1].PodcastID)

	none, err := s.ListBookmarks("p9")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.DeleteBookmark("b1"))
	assert.ErrorIs(t, s.DeleteBookmark("b1"), domain.ErrNotFound)
	_, err = s.GetBookmark("b2")
	require.NoError(t, err)
}

func TestDeleteEpisodeRejectsReferenced(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	require.NoError(t, s.UpsertBookmark(domain.Bookmark{ID: "b1", EpisodeID: "e1", PositionSeconds: 1}))
	require.NoError(t, s.SaveProgress(domain.Progress{EpisodeID: "e2", PositionSeconds: 5}))

	assert.ErrorIs(t, s.DeleteEpisode("e1"), domain.ErrStoreConstraint)
	require.NoError(t, s.DeleteEpisode("e2"))

	_, err := s.GetEpisode("e2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, ok := s.GetProgress("e2")
	assert.False(t, ok)
}

func TestProgressSpeedAndMeta(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	_, ok := s.Speed()
	assert.False(t, ok)
	require.NoError(t, s.SaveSpeed(1.5))
	speed, ok := s.Speed()
	require.True(t, ok)
	assert.Equal(t, 1.5, speed)

	require.NoError(t, s.SaveProgress(domain.Progress{EpisodeID: "e1", PositionSeconds: 33}))
	p, ok := s.GetProgress("e1")
	require.True(t, ok)
	assert.Equal(t, 33.0, p.PositionSeconds)
	assert.ErrorIs(t, s.SaveProgress(domain.Progress{EpisodeID: "zz"}), domain.ErrStoreConstraint)

	now := time.Now()
	require.NoError(t, s.SetEpisodesFetchedAt("p1", now))
	at, ok := s.EpisodesFetchedAt("p1")
	require.True(t, ok)
	assert.True(t, at.Equal(time.Unix(0, now.UnixNano())))
}

func TestWatchNotifiesAfterCommit(t *testing.T) {
	s := newTestStore(t)
	w := s.Watch(domain.TablePodcasts)
	defer w.Close()

	assert.Equal(t, uint64(0), <-w.C())
	require.NoError(t, s.UpsertPodcast(domain.Podcast{ID: "p1"}))

	select {
	case rev := <-w.C():
		assert.Equal(t, uint64(1), rev)
		_, err := s.GetPodcast("p1")
		assert.NoError(t, err, "read after notification sees the commit")
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}

	// Failed writes do not notify
	_ = s.UpsertEpisodes("missing", nil)
	e := s.Watch(domain.TableEpisodes)
	defer e.Close()
	assert.Equal(t, uint64(0), <-e.C())
}

func TestEphemeralStoreRemovesFiles(t *testing.T) {
	s, err := NewStore("", "")
	require.NoError(t, err)
	dir := s.tempDir
	require.NotEmpty(t, dir)
	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStorePartitionedByCatalog(t *testing.T) {
	base := t.TempDir()
	a, err := NewStore(base, "https://itunes.apple.com/")
	require.NoError(t, err)
	require.NoError(t, a.UpsertPodcast(domain.Podcast{ID: "p1"}))
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(base, hashCatalogURL("HTTPS://itunes.apple.com"), "podcastapp.db"))
	assert.NoError(t, err)

	b, err := NewStore(base, "https://other.example")
	require.NoError(t, err)
	defer b.Close()
	_, err = b.GetPodcast("p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package domain

import (
	"time"

	"github.com/herbie30/PODCASTAPP/internal/observe"
)

// Table names a store table for change notifications
type Table string

const (
	TablePodcasts      Table = "podcasts"
	TableEpisodes      Table = "episodes"
	TableSubscriptions Table = "subscriptions"
	TableHistory       Table = "history"
	TableBookmarks     Table = "bookmarks"
	TableProgress      Table = "progress"
)

// Store is the durable local repository (BoltDB + memory).
// Every single-entity write is one transaction. Multi-entity writes are not
// atomic across tables; all upserts are safe to retry.
type Store interface {
	// === Podcasts ===
	UpsertPodcast(p Podcast) error
	GetPodcast(id string) (Podcast, error)
	ListPodcasts() ([]Podcast, error)

	// === Episodes (require the podcast row) ===
	UpsertEpisodes(podcastID string, episodes []Episode) error
	GetEpisode(id string) (Episode, error)
	ListEpisodes(podcastID string) ([]Episode, error)
	FindEpisodeByAudioURL(audioURL string) (Episode, error)
	DeleteEpisode(id string) error
	EpisodesFetchedAt(podcastID string) (time.Time, bool)
	SetEpisodesFetchedAt(podcastID string, at time.Time) error

	// === Subscriptions ===
	AddSubscription(sub Subscription) (bool, error)
	RemoveSubscription(podcastID string) (bool, error)
	IsSubscribed(podcastID string) (bool, error)
	ListSubscriptions() ([]Subscription, error)
	SetUnsubscribedAt(podcastID string, at time.Time) error
	UnsubscribedAt(podcastID string) (time.Time, bool)

	// === History (append-only) ===
	InsertHistory(entry HistoryEntry) (bool, error)
	ListHistory() ([]HistoryEntry, error)
	LatestHistory() (HistoryEntry, bool, error)

	// === Bookmarks ===
	UpsertBookmark(b Bookmark) error
	GetBookmark(id string) (Bookmark, error)
	DeleteBookmark(id string) error
	ListBookmarks(podcastID string) ([]Bookmark, error)

	// === Playback progress & settings ===
	SaveProgress(p Progress) error
	GetProgress(episodeID string) (Progress, bool)
	SaveSpeed(multiplier float64) error
	Speed() (float64, bool)

	// Watch yields the table revision after every committed write
	Watch(table Table) *observe.Subscription[uint64]

	Close() error
}

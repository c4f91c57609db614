package domain

import (
	"fmt"
	"time"
)

// Podcast is a show known locally, either browsed or subscribed
type Podcast struct {
	ID       string `json:"id"`       // Catalog identifier, stable across searches
	Title    string `json:"title"`    // Display title
	Author   string `json:"author"`   // Publisher / artist name
	FeedURL  string `json:"feedUrl"`  // RSS feed URL
	ImageURL string `json:"imageUrl"` // Artwork URL
}

// PodcastSummary is a transient catalog search hit. It is never stored;
// subscribing converts it into a Podcast.
type PodcastSummary struct {
	ID           string
	Title        string
	Author       string
	FeedURL      string
	ImageURL     string
	EpisodeCount int
}

// Podcast returns the storable form of the summary
func (s PodcastSummary) Podcast() Podcast {
	return Podcast{
		ID:       s.ID,
		Title:    s.Title,
		Author:   s.Author,
		FeedURL:  s.FeedURL,
		ImageURL: s.ImageURL,
	}
}

// Episode belongs to exactly one Podcast
type Episode struct {
	ID              string    `json:"id"`
	PodcastID       string    `json:"podcastId"`
	Title           string    `json:"title"`
	AudioURL        string    `json:"audioUrl"`
	DurationSeconds float64   `json:"durationSeconds"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// FormattedDuration returns the duration in a human-readable format
func (e Episode) FormattedDuration() string {
	d := time.Duration(e.DurationSeconds * float64(time.Second))
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// Subscription marks a Podcast as subscribed. Cache presence alone is not
// a subscription.
type Subscription struct {
	PodcastID    string    `json:"podcastId"`
	SubscribedAt time.Time `json:"subscribedAt"`
}

// HistoryEntry records that an episode started playing. Entries are only
// ever inserted.
type HistoryEntry struct {
	ID              string `json:"id"`
	PodcastID       string `json:"podcastId"`
	EpisodeID       string `json:"episodeId"`
	Title           string `json:"title"`
	TimestampMillis int64  `json:"timestampMillis"`
}

// Time returns the entry timestamp
func (h HistoryEntry) Time() time.Time {
	return time.UnixMilli(h.TimestampMillis)
}

// Bookmark is a user-created marker inside an episode
type Bookmark struct {
	ID              string    `json:"id"`
	PodcastID       string    `json:"podcastId"`
	EpisodeID       string    `json:"episodeId"`
	PositionSeconds float64   `json:"positionSeconds"`
	Label           string    `json:"label,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Progress is the last known playback position of an episode
type Progress struct {
	EpisodeID       string    `json:"episodeId"`
	PositionSeconds float64   `json:"positionSeconds"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EpisodeList is the result of a cache-first episode listing
type EpisodeList struct {
	PodcastID string
	Episodes  []Episode
	Stale     bool      // true if served from an expired cache after a failed refresh
	FetchedAt time.Time // when the cached rows were last refreshed from the catalog
}

package itunes

import (
	"fmt"
	"strconv"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

// MapPodcasts converts search results to summaries. Rows that are not
// usable podcasts are returned as dropped with the reason.
func MapPodcasts(results []Result) ([]domain.PodcastSummary, []error) {
	summaries := make([]domain.PodcastSummary, 0, len(results))
	var dropped []error
	for i, r := range results {
		if r.isEpisode() {
			continue
		}
		if r.CollectionID == 0 {
			dropped = append(dropped, fmt.Errorf("result %d: missing collectionId", i))
			continue
		}
		if r.CollectionName == "" {
			dropped = append(dropped, fmt.Errorf("result %d: missing collectionName", i))
			continue
		}
		summaries = append(summaries, domain.PodcastSummary{
			ID:           strconv.FormatInt(r.CollectionID, 10),
			Title:        r.CollectionName,
			Author:       r.ArtistName,
			FeedURL:      r.FeedURL,
			ImageURL:     artwork(r),
			EpisodeCount: r.TrackCount,
		})
	}
	return summaries, dropped
}

// MapEpisodes converts lookup results to episodes of podcastID. The lookup
// echoes the podcast itself as the first row; it is skipped.
func MapEpisodes(podcastID string, results []Result) ([]domain.Episode, []error) {
	episodes := make([]domain.Episode, 0, len(results))
	var dropped []error
	for i, r := range results {
		if !r.isEpisode() {
			continue
		}
		ep, err := mapEpisode(podcastID, r)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("result %d: %w", i, err))
			continue
		}
		episodes = append(episodes, ep)
	}
	return episodes, dropped
}

func mapEpisode(podcastID string, r Result) (domain.Episode, error) {
	if r.TrackID == 0 {
		return domain.Episode{}, fmt.Errorf("missing trackId")
	}
	if r.EpisodeURL == "" {
		return domain.Episode{}, fmt.Errorf("episode %d: missing episodeUrl", r.TrackID)
	}
	if r.CollectionID != 0 && strconv.FormatInt(r.CollectionID, 10) != podcastID {
		return domain.Episode{}, fmt.Errorf("episode %d: belongs to collection %d", r.TrackID, r.CollectionID)
	}
	if r.TrackTimeMillis < 0 {
		return domain.Episode{}, fmt.Errorf("episode %d: negative duration", r.TrackID)
	}

	ep := domain.Episode{
		ID:              strconv.FormatInt(r.TrackID, 10),
		PodcastID:       podcastID,
		Title:           r.TrackName,
		AudioURL:        r.EpisodeURL,
		DurationSeconds: float64(r.TrackTimeMillis) / 1000,
	}
	if r.ReleaseDate != "" {
		published, err := time.Parse(time.RFC3339, r.ReleaseDate)
		if err != nil {
			return domain.Episode{}, fmt.Errorf("episode %d: bad releaseDate: %w", r.TrackID, err)
		}
		ep.PublishedAt = published
	}
	return ep, nil
}

// artwork picks the largest artwork available
func artwork(r Result) string {
	if r.ArtworkURL600 != "" {
		return r.ArtworkURL600
	}
	return r.ArtworkURL100
}

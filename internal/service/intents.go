package service

import (
	"context"
	"fmt"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

// Search queries the catalog and publishes the ranked results. Only the
// latest search is published.
func (r *Repository) Search(ctx context.Context, query string) error {
	r.mu.Lock()
	r.searchSeq++
	seq := r.searchSeq
	r.mu.Unlock()

	results, err := r.library.Search(ctx, query)
	if err != nil {
		r.logger.Error("search failed", "error", err, "query", query)
	}

	r.mu.Lock()
	if seq == r.searchSeq {
		r.search.Set(SearchState{Query: query, Results: results, Err: err})
	}
	r.mu.Unlock()
	return err
}

// Subscribe stores the podcast and marks it subscribed
func (r *Repository) Subscribe(ctx context.Context, p domain.Podcast) error {
	return r.library.Subscribe(ctx, p)
}

// Unsubscribe removes the subscription; cached episodes stay
func (r *Repository) Unsubscribe(ctx context.Context, podcastID string) error {
	return r.library.Unsubscribe(ctx, podcastID)
}

// SelectPodcast makes p the current podcast and publishes its episodes,
// cache first
func (r *Repository) SelectPodcast(ctx context.Context, p domain.Podcast) error {
	r.mu.Lock()
	r.selectSeq++
	seq := r.selectSeq
	r.episodes.Set(EpisodesState{PodcastID: p.ID, Loading: true})
	r.mu.Unlock()

	list, err := r.library.SelectPodcast(ctx, p)
	if err != nil {
		r.logger.Error("failed to list episodes", "error", err, "podcastID", p.ID)
	}

	r.mu.Lock()
	if seq == r.selectSeq {
		r.episodes.Set(EpisodesState{
			PodcastID: p.ID,
			Episodes:  list.Episodes,
			Stale:     list.Stale,
			Err:       err,
		})
	}
	r.mu.Unlock()
	return err
}

// === Playback ===

func (r *Repository) LoadEpisode(ctx context.Context, ep domain.Episode) error {
	return r.player.LoadEpisode(ctx, ep)
}

func (r *Repository) Pause(ctx context.Context) error {
	return r.player.Pause(ctx)
}

func (r *Repository) Resume(ctx context.Context) error {
	return r.player.Resume(ctx)
}

// TogglePause pauses a playing episode and resumes a paused one. A stopped
// episode, finished or failed, is loaded again.
func (r *Repository) TogglePause(ctx context.Context) error {
	s := r.player.Session()
	switch s.PlayState {
	case domain.StatePlaying:
		return r.player.Pause(ctx)
	case domain.StatePaused:
		return r.player.Resume(ctx)
	case domain.StateStopped:
		if !s.Loaded() {
			return nil
		}
		ep, err := r.store.GetEpisode(s.EpisodeID)
		if err != nil {
			return err
		}
		return r.player.LoadEpisode(ctx, ep)
	}
	return nil
}

func (r *Repository) Seek(ctx context.Context, positionSeconds float64) error {
	return r.player.Seek(ctx, positionSeconds)
}

// SeekBy moves relative to the current position
func (r *Repository) SeekBy(ctx context.Context, deltaSeconds float64) error {
	return r.player.Seek(ctx, r.player.Session().PositionSeconds+deltaSeconds)
}

func (r *Repository) SetSpeed(ctx context.Context, multiplier float64) error {
	return r.player.SetSpeed(ctx, multiplier)
}

func (r *Repository) AddBookmark(ctx context.Context, label string) (domain.Bookmark, error) {
	return r.player.AddBookmark(ctx, label)
}

func (r *Repository) RemoveBookmark(ctx context.Context, id string) error {
	return r.player.RemoveBookmark(ctx, id)
}

// PlayFromHistory loads the episode of a history entry from its saved
// position
func (r *Repository) PlayFromHistory(ctx context.Context, entryID string) error {
	entries, err := r.store.ListHistory()
	if err != nil {
		return err
	}
	for _, h := range entries {
		if h.ID != entryID {
			continue
		}
		ep, err := r.store.GetEpisode(h.EpisodeID)
		if err != nil {
			return fmt.Errorf("history entry %s: %w", entryID, err)
		}
		return r.player.LoadEpisode(ctx, ep)
	}
	return fmt.Errorf("history entry %s: %w", entryID, domain.ErrNotFound)
}

// PlayFromBookmark loads the bookmarked episode at the bookmark position
func (r *Repository) PlayFromBookmark(ctx context.Context, bookmarkID string) error {
	b, err := r.store.GetBookmark(bookmarkID)
	if err != nil {
		return err
	}
	ep, err := r.store.GetEpisode(b.EpisodeID)
	if err != nil {
		return fmt.Errorf("bookmark %s: %w", bookmarkID, err)
	}
	return r.player.LoadEpisodeAt(ctx, ep, b.PositionSeconds)
}

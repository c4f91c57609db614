package library

import (
	"context"
	"errors"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

// PurgeExpired deletes cached episodes of podcasts that have been
// unsubscribed for longer than the retention window. Episodes still
// referenced by history or bookmarks are kept. Returns the number deleted.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-time.Duration(s.retentionDays) * 24 * time.Hour)

	podcasts, err := s.store.ListPodcasts()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, p := range podcasts {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		at, ok := s.store.UnsubscribedAt(p.ID)
		if !ok || at.After(cutoff) {
			continue
		}
		subscribed, err := s.store.IsSubscribed(p.ID)
		if err != nil {
			return deleted, err
		}
		if subscribed {
			continue
		}
		n, err := s.purgePodcast(p.ID)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	if deleted > 0 {
		s.logger.Info("purged expired episodes", "count", deleted, "retentionDays", s.retentionDays)
	}
	return deleted, nil
}

func (s *Service) purgePodcast(podcastID string) (int, error) {
	episodes, err := s.store.ListEpisodes(podcastID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, ep := range episodes {
		err := s.store.DeleteEpisode(ep.ID)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, domain.ErrStoreConstraint):
			s.logger.Debug("keeping referenced episode", "episodeID", ep.ID)
		default:
			return deleted, err
		}
	}
	if deleted > 0 {
		// The cached list is now partial; force the next listing to refetch
		if err := s.store.SetEpisodesFetchedAt(podcastID, time.Unix(0, 0)); err != nil {
			s.logger.Warn("failed to reset fetch time", "error", err, "podcastID", podcastID)
		}
	}
	return deleted, nil
}

package library

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"golang.org/x/sync/singleflight"
)

const DefaultStaleness = time.Hour

// Options tunes the cache policy
type Options struct {
	Staleness     time.Duration // how long fetched episodes count as fresh
	RetentionDays int           // 0 keeps episodes of unsubscribed podcasts forever
	Now           func() time.Time
}

// Service orchestrates catalog + store operations.
// Commands may hit the network; see Queries for cache-only reads.
type Service struct {
	catalog domain.Catalog
	store   domain.Store
	logger  *slog.Logger

	staleness     time.Duration
	retentionDays int
	now           func() time.Time

	fetches singleflight.Group
}

// NewService creates a new library service.
func NewService(catalog domain.Catalog, store domain.Store, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Staleness <= 0 {
		opts.Staleness = DefaultStaleness
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		catalog:       catalog,
		store:         store,
		logger:        logger,
		staleness:     opts.Staleness,
		retentionDays: opts.RetentionDays,
		now:           opts.Now,
	}
}

// Search queries the catalog. Results are never cached.
func (s *Service) Search(ctx context.Context, query string) ([]domain.PodcastSummary, error) {
	if query == "" {
		return nil, nil
	}

	s.logger.Debug("searching", "query", query)

	results, err := s.catalog.Search(ctx, query)
	if err != nil {
		s.logger.Error("catalog search failed", "error", err, "query", query)
		return nil, err
	}

	ranked := rankResults(results, query)
	s.logger.Debug("search complete", "query", query, "results", len(ranked))
	return ranked, nil
}

// Subscribe caches the podcast and marks it subscribed. Subscribing twice is
// a no-op.
func (s *Service) Subscribe(ctx context.Context, p domain.Podcast) error {
	if err := s.store.UpsertPodcast(p); err != nil {
		s.logger.Error("failed to save podcast", "error", err, "podcastID", p.ID)
		return err
	}
	added, err := s.store.AddSubscription(domain.Subscription{PodcastID: p.ID, SubscribedAt: s.now()})
	if err != nil {
		s.logger.Error("failed to subscribe", "error", err, "podcastID", p.ID)
		return err
	}
	if added {
		s.logger.Info("subscribed", "podcastID", p.ID, "title", p.Title)
	}
	return nil
}

// Unsubscribe removes the membership. Cached episodes stay until the
// retention policy purges them.
func (s *Service) Unsubscribe(ctx context.Context, podcastID string) error {
	removed, err := s.store.RemoveSubscription(podcastID)
	if err != nil {
		s.logger.Error("failed to unsubscribe", "error", err, "podcastID", podcastID)
		return err
	}
	if !removed {
		return nil
	}
	if err := s.store.SetUnsubscribedAt(podcastID, s.now()); err != nil {
		s.logger.Warn("failed to record unsubscribe time", "error", err, "podcastID", podcastID)
	}
	s.logger.Info("unsubscribed", "podcastID", podcastID)
	return nil
}

// SelectPodcast caches a browsed podcast without subscribing and lists its
// episodes.
func (s *Service) SelectPodcast(ctx context.Context, p domain.Podcast) (domain.EpisodeList, error) {
	if err := s.store.UpsertPodcast(p); err != nil {
		s.logger.Error("failed to save podcast", "error", err, "podcastID", p.ID)
		return domain.EpisodeList{PodcastID: p.ID}, err
	}
	return s.ListEpisodes(ctx, p.ID)
}

// ListEpisodes is cache-first. Fresh cached rows are returned without a
// catalog call. An expired or empty cache is refreshed; when the refresh
// fails and cached rows exist they are returned flagged Stale.
func (s *Service) ListEpisodes(ctx context.Context, podcastID string) (domain.EpisodeList, error) {
	list := domain.EpisodeList{PodcastID: podcastID}

	if _, err := s.store.GetPodcast(podcastID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return list, &domain.StoreError{Kind: domain.StoreConstraintViolation, Op: "list episodes", Err: err}
		}
		return list, err
	}

	cached, err := s.store.ListEpisodes(podcastID)
	if err != nil {
		s.logger.Error("failed to read cached episodes", "error", err, "podcastID", podcastID)
		return list, err
	}
	fetchedAt, hasFetched := s.store.EpisodesFetchedAt(podcastID)

	// 1. Freshness check
	if hasFetched && s.now().Sub(fetchedAt) < s.staleness {
		s.logger.Debug("cache fresh", "podcastID", podcastID, "count", len(cached))
		list.Episodes = cached
		list.FetchedAt = fetchedAt
		return list, nil
	}

	// 2. Refresh, collapsing concurrent callers for the same podcast
	s.logger.Debug("cache stale, fetching", "podcastID", podcastID)
	v, err, shared := s.fetches.Do(podcastID, func() (interface{}, error) {
		return s.refresh(ctx, podcastID)
	})
	if err != nil {
		if len(cached) > 0 || hasFetched {
			s.logger.Warn("refresh failed, serving stale cache", "error", err, "podcastID", podcastID, "count", len(cached))
			list.Episodes = cached
			list.Stale = true
			list.FetchedAt = fetchedAt
			return list, nil
		}
		return list, err
	}
	if shared {
		s.logger.Debug("joined in-flight fetch", "podcastID", podcastID)
	}
	return v.(domain.EpisodeList), nil
}

// refresh fetches from the catalog, upserts, and returns the merged rows
func (s *Service) refresh(ctx context.Context, podcastID string) (domain.EpisodeList, error) {
	list := domain.EpisodeList{PodcastID: podcastID}

	fetched, err := s.catalog.ListEpisodes(ctx, podcastID)
	if err != nil {
		s.logger.Error("failed to fetch episodes", "error", err, "podcastID", podcastID)
		return list, err
	}
	if err := s.store.UpsertEpisodes(podcastID, fetched); err != nil {
		s.logger.Error("failed to save episodes", "error", err, "podcastID", podcastID)
		return list, err
	}
	now := s.now()
	if err := s.store.SetEpisodesFetchedAt(podcastID, now); err != nil {
		s.logger.Warn("failed to record fetch time", "error", err, "podcastID", podcastID)
	}

	merged, err := s.store.ListEpisodes(podcastID)
	if err != nil {
		return list, err
	}
	s.logger.Debug("fetched episodes", "count", len(fetched), "cached", len(merged), "podcastID", podcastID)
	list.Episodes = merged
	list.FetchedAt = now
	return list, nil
}

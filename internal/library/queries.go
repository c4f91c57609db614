package library

import (
	"errors"
	"strings"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Queries provides synchronous, cache-only reads.
type Queries struct {
	store domain.Store
}

// NewQueries creates a new Queries instance.
func NewQueries(store domain.Store) *Queries {
	return &Queries{store: store}
}

func (q *Queries) Podcast(id string) (domain.Podcast, bool) {
	p, err := q.store.GetPodcast(id)
	return p, err == nil
}

func (q *Queries) CachedEpisodes(podcastID string) ([]domain.Episode, error) {
	return q.store.ListEpisodes(podcastID)
}

// Subscriptions returns subscribed podcasts in subscription order
func (q *Queries) Subscriptions() ([]domain.Podcast, error) {
	subs, err := q.store.ListSubscriptions()
	if err != nil {
		return nil, err
	}
	podcasts := make([]domain.Podcast, 0, len(subs))
	for _, sub := range subs {
		p, err := q.store.GetPodcast(sub.PodcastID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, nil
}

// podcastIndex implements sahilm/fuzzy.Source over lowercase titles
type podcastIndex struct {
	podcasts    []domain.Podcast
	lowerTitles []string
}

func (idx *podcastIndex) String(i int) string { return idx.lowerTitles[i] }

func (idx *podcastIndex) Len() int { return len(idx.podcasts) }

// FilterSubscriptions fuzzy-filters subscribed podcasts by title, best
// match first. An empty query returns every subscription.
func (q *Queries) FilterSubscriptions(query string) ([]domain.Podcast, error) {
	podcasts, err := q.Subscriptions()
	if err != nil || query == "" {
		return podcasts, err
	}

	idx := &podcastIndex{podcasts: podcasts, lowerTitles: make([]string, len(podcasts))}
	for i, p := range podcasts {
		idx.lowerTitles[i] = strings.ToLower(p.Title)
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), idx)
	filtered := make([]domain.Podcast, len(matches))
	for i, m := range matches {
		filtered[i] = podcasts[m.Index]
	}
	return filtered, nil
}

package service

import (
	"sync"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/observe"
)

// projection recomputes one observable from the store. Runs are serialized
// so the last run always reads the newest commit.
type projection struct {
	mu        sync.Mutex
	recompute func()
}

func (p *projection) run() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recompute()
}

// watch reruns p after every committed write to table. The first revision
// arrives immediately, so p also computes its initial value here.
func (r *Repository) watch(table domain.Table, p *projection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	sub := r.store.Watch(table)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer sub.Close()
		for {
			select {
			case <-r.ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				p.run()
			}
		}
	}()
}

func (r *Repository) refreshSubscriptions() {
	podcasts, err := r.queries.Subscriptions()
	if err != nil {
		r.logger.Warn("failed to read subscriptions", "error", err)
		return
	}
	r.subscriptions.Set(podcasts)
}

func (r *Repository) refreshHistory() {
	entries, err := r.store.ListHistory()
	if err != nil {
		r.logger.Warn("failed to read history", "error", err)
		return
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	r.history.Set(entries)
}

// refreshEpisodes follows cache writes for the selected podcast, such as a
// background refresh or a retention purge
func (r *Repository) refreshEpisodes() {
	cur, _ := r.episodes.Get()
	if cur.PodcastID == "" || cur.Loading {
		return
	}
	episodes, err := r.queries.CachedEpisodes(cur.PodcastID)
	if err != nil {
		r.logger.Warn("failed to read cached episodes", "error", err, "podcastID", cur.PodcastID)
		return
	}
	r.episodes.Update(func(s EpisodesState) EpisodesState {
		if s.PodcastID != cur.PodcastID || s.Loading {
			return s
		}
		s.Episodes = episodes
		return s
	})
}

func (r *Repository) refreshBookmarks(podcastID string, v *observe.Value[[]domain.Bookmark]) {
	bookmarks, err := r.store.ListBookmarks(podcastID)
	if err != nil {
		r.logger.Warn("failed to read bookmarks", "error", err, "podcastID", podcastID)
		return
	}
	v.Set(bookmarks)
}

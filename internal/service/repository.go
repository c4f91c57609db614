// Package service is the surface the UI talks to: live observables over the
// store and the playback session, plus intent entry points.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/library"
	"github.com/herbie30/PODCASTAPP/internal/observe"
)

// SearchState is the outcome of the latest search. A failed search carries
// Err; an empty result set does not.
type SearchState struct {
	Query   string
	Results []domain.PodcastSummary
	Err     error
}

// EpisodesState is the episode list of the selected podcast
type EpisodesState struct {
	PodcastID string
	Episodes  []domain.Episode
	Stale     bool
	Loading   bool
	Err       error
}

// player drives the playback session (consumer-defined interface)
type player interface {
	Start(ctx context.Context)
	Close() error
	Session() domain.Session
	Sessions() *observe.Subscription[domain.Session]
	LoadEpisode(ctx context.Context, ep domain.Episode) error
	LoadEpisodeAt(ctx context.Context, ep domain.Episode, positionSeconds float64) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionSeconds float64) error
	SetSpeed(ctx context.Context, multiplier float64) error
	AddBookmark(ctx context.Context, label string) (domain.Bookmark, error)
	RemoveBookmark(ctx context.Context, id string) error
}

// Repository composes the metadata cache, the playback coordinator and the
// store into one observable surface.
type Repository struct {
	library *library.Service
	queries *library.Queries
	player  player
	store   domain.Store
	logger  *slog.Logger

	subscriptions *observe.Value[[]domain.Podcast]
	history       *observe.Value[[]domain.HistoryEntry]
	search        *observe.Value[SearchState]
	episodes      *observe.Value[EpisodesState]

	mu        sync.Mutex
	searchSeq uint64
	selectSeq uint64
	bookmarks map[string]*observe.Value[[]domain.Bookmark]

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRepository creates a repository. Projections start with Start.
func NewRepository(lib *library.Service, p player, store domain.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Repository{
		library:       lib,
		queries:       library.NewQueries(store),
		player:        p,
		store:         store,
		logger:        logger,
		subscriptions: observe.NewValue[[]domain.Podcast](),
		history:       observe.NewValue[[]domain.HistoryEntry](),
		search:        observe.NewValueWith(SearchState{}),
		episodes:      observe.NewValueWith(EpisodesState{}),
		bookmarks:     make(map[string]*observe.Value[[]domain.Bookmark]),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start begins the store projections and the playback session
func (r *Repository) Start(ctx context.Context) {
	subs := &projection{recompute: r.refreshSubscriptions}
	r.watch(domain.TableSubscriptions, subs)
	r.watch(domain.TablePodcasts, subs)

	r.watch(domain.TableHistory, &projection{recompute: r.refreshHistory})
	r.watch(domain.TableEpisodes, &projection{recompute: r.refreshEpisodes})

	r.player.Start(ctx)
}

// Close stops the projections and the playback session. The store is
// owned by the caller.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.player.Close()
		r.mu.Lock()
		r.cancel()
		r.mu.Unlock()
		r.wg.Wait()

		r.subscriptions.Close()
		r.history.Close()
		r.search.Close()
		r.episodes.Close()
		r.mu.Lock()
		for _, v := range r.bookmarks {
			v.Close()
		}
		r.mu.Unlock()
	})
	return err
}

// === Observables ===

// Subscriptions yields subscribed podcasts in subscription order
func (r *Repository) Subscriptions() *observe.Subscription[[]domain.Podcast] {
	return r.subscriptions.Subscribe()
}

// SearchResults yields the outcome of the latest search
func (r *Repository) SearchResults() *observe.Subscription[SearchState] {
	return r.search.Subscribe()
}

// CurrentEpisodes yields the episodes of the selected podcast
func (r *Repository) CurrentEpisodes() *observe.Subscription[EpisodesState] {
	return r.episodes.Subscribe()
}

// CurrentSession yields playback session snapshots
func (r *Repository) CurrentSession() *observe.Subscription[domain.Session] {
	return r.player.Sessions()
}

// Session returns the latest session snapshot
func (r *Repository) Session() domain.Session {
	return r.player.Session()
}

// History yields the listening history, newest first
func (r *Repository) History() *observe.Subscription[[]domain.HistoryEntry] {
	return r.history.Subscribe()
}

// BookmarksFor yields the bookmarks of one podcast
func (r *Repository) BookmarksFor(podcastID string) *observe.Subscription[[]domain.Bookmark] {
	r.mu.Lock()
	v, ok := r.bookmarks[podcastID]
	if !ok {
		v = observe.NewValue[[]domain.Bookmark]()
		if r.ctx.Err() != nil {
			v.Close()
		} else {
			r.bookmarks[podcastID] = v
		}
	}
	r.mu.Unlock()

	if !ok {
		r.watch(domain.TableBookmarks, &projection{recompute: func() {
			r.refreshBookmarks(podcastID, v)
		}})
	}
	return v.Subscribe()
}

// FilterSubscriptions fuzzy-matches subscribed podcast titles
func (r *Repository) FilterSubscriptions(query string) ([]domain.Podcast, error) {
	return r.queries.FilterSubscriptions(query)
}

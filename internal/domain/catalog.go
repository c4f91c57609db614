package domain

import "context"

// Catalog is the remote podcast directory. Calls are unreliable network
// operations and fail with *CatalogError.
type Catalog interface {
	Search(ctx context.Context, query string) ([]PodcastSummary, error)
	ListEpisodes(ctx context.Context, podcastID string) ([]Episode, error)
}

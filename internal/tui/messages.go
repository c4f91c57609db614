package tui

import (
	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/service"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// StatusMsg shows a transient status line
type StatusMsg struct {
	Text string
}

// Observable updates. Each carries the newest value of one projection.

type SubscriptionsMsg struct {
	Podcasts []domain.Podcast
}

type SearchMsg struct {
	State service.SearchState
}

type EpisodesMsg struct {
	State service.EpisodesState
}

type SessionMsg struct {
	Session domain.Session
}

type HistoryMsg struct {
	Entries []domain.HistoryEntry
}

type BookmarksMsg struct {
	PodcastID string
	Bookmarks []domain.Bookmark
}

// FilterResultsMsg carries the fuzzy-filtered subscriptions for a query
type FilterResultsMsg struct {
	Query    string
	Podcasts []domain.Podcast
}

package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/herbie30/PODCASTAPP/internal/domain"
)

// Command factories for async operations. Results arrive through the
// observables; these only report failures and confirmations.

const (
	catalogTimeout  = 30 * time.Second
	playbackTimeout = 10 * time.Second
)

func SearchCmd(repo repository, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
		defer cancel()

		// The failure is also published on the search observable
		repo.Search(ctx, query)
		return nil
	}
}

func SelectPodcastCmd(repo repository, p domain.Podcast) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
		defer cancel()

		repo.SelectPodcast(ctx, p)
		return nil
	}
}

func SubscribeCmd(repo repository, p domain.Podcast) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
		defer cancel()

		if err := repo.Subscribe(ctx, p); err != nil {
			return ErrMsg{Err: err, Context: "subscribing"}
		}
		return StatusMsg{Text: fmt.Sprintf("Subscribed to %s", p.Title)}
	}
}

func UnsubscribeCmd(repo repository, p domain.Podcast) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
		defer cancel()

		if err := repo.Unsubscribe(ctx, p.ID); err != nil {
			return ErrMsg{Err: err, Context: "unsubscribing"}
		}
		return StatusMsg{Text: fmt.Sprintf("Unsubscribed from %s", p.Title)}
	}
}

// FilterCmd fuzzy-matches subscriptions against query
func FilterCmd(repo repository, query string) tea.Cmd {
	return func() tea.Msg {
		podcasts, err := repo.FilterSubscriptions(query)
		if err != nil {
			return ErrMsg{Err: err, Context: "filtering"}
		}
		return FilterResultsMsg{Query: query, Podcasts: podcasts}
	}
}

// playbackCmd runs one playback intent and reports a failure
func playbackCmd(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			return ErrMsg{Err: err, Context: action}
		}
		return nil
	}
}

func PlayEpisodeCmd(repo repository, ep domain.Episode) tea.Cmd {
	return playbackCmd("starting playback", func(ctx context.Context) error {
		return repo.LoadEpisode(ctx, ep)
	})
}

func TogglePauseCmd(repo repository) tea.Cmd {
	return playbackCmd("toggling pause", repo.TogglePause)
}

func SeekByCmd(repo repository, delta float64) tea.Cmd {
	return playbackCmd("seeking", func(ctx context.Context) error {
		return repo.SeekBy(ctx, delta)
	})
}

func SetSpeedCmd(repo repository, speed float64) tea.Cmd {
	return playbackCmd("changing speed", func(ctx context.Context) error {
		return repo.SetSpeed(ctx, speed)
	})
}

func PlayFromHistoryCmd(repo repository, entryID string) tea.Cmd {
	return playbackCmd("playing from history", func(ctx context.Context) error {
		return repo.PlayFromHistory(ctx, entryID)
	})
}

func PlayFromBookmarkCmd(repo repository, bookmarkID string) tea.Cmd {
	return playbackCmd("playing bookmark", func(ctx context.Context) error {
		return repo.PlayFromBookmark(ctx, bookmarkID)
	})
}

func AddBookmarkCmd(repo repository) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), playbackTimeout)
		defer cancel()

		b, err := repo.AddBookmark(ctx, "")
		if err != nil {
			return ErrMsg{Err: err, Context: "adding bookmark"}
		}
		return StatusMsg{Text: "Bookmarked at " + formatClock(b.PositionSeconds)}
	}
}

func RemoveBookmarkCmd(repo repository, id string) tea.Cmd {
	return playbackCmd("removing bookmark", func(ctx context.Context) error {
		return repo.RemoveBookmark(ctx, id)
	})
}

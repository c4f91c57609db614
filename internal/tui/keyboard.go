package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/herbie30/PODCASTAPP/internal/domain"
)

const (
	seekBackSeconds    = -15
	seekForwardSeconds = 30
)

// speedSteps are the rates [ and ] move between
var speedSteps = []float64{0.5, 0.75, 1, 1.25, 1.5, 1.75, 2, 2.5, 3}

// handleKeyMsg processes keyboard input
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.Mode != InputNone {
		return m.handleInputKeys(msg)
	}

	// Global keys
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.ShowHelp = !m.ShowHelp
		m.Help.ShowAll = m.ShowHelp
		return m, nil
	case key.Matches(msg, keys.Search):
		return m.startInput(InputSearch, "search: ", m.Search.Query)
	case key.Matches(msg, keys.Filter):
		m.Screen = ScreenLibrary
		m.Focus = PanePodcasts
		return m.startInput(InputFilter, "/", m.FilterQuery)
	case key.Matches(msg, keys.History):
		m.Screen = ScreenHistory
		return m, nil
	case key.Matches(msg, keys.Bookmarks):
		podcastID := m.Session.PodcastID
		if podcastID == "" {
			podcastID = m.Current.ID
		}
		if podcastID == "" {
			return m, nil
		}
		m.Screen = ScreenBookmarks
		return m.followBookmarks(podcastID)
	case key.Matches(msg, keys.Escape):
		if m.Screen == ScreenLibrary && m.FilterQuery != "" {
			m.FilterQuery = ""
			m.Filtered = nil
			return m, nil
		}
		m.Screen = ScreenLibrary
		return m, nil

	// Playback works from every screen
	case key.Matches(msg, keys.TogglePause):
		return m, TogglePauseCmd(m.repo)
	case key.Matches(msg, keys.SeekBack):
		return m, SeekByCmd(m.repo, seekBackSeconds)
	case key.Matches(msg, keys.SeekForward):
		return m, SeekByCmd(m.repo, seekForwardSeconds)
	case key.Matches(msg, keys.SpeedDown):
		return m, SetSpeedCmd(m.repo, nextSpeed(m.Session.Speed, -1))
	case key.Matches(msg, keys.SpeedUp):
		return m, SetSpeedCmd(m.repo, nextSpeed(m.Session.Speed, 1))
	case key.Matches(msg, keys.AddBookmark):
		return m, AddBookmarkCmd(m.repo)
	}

	switch m.Screen {
	case ScreenSearch:
		return m.handleSearchKeys(msg)
	case ScreenHistory:
		return m.handleHistoryKeys(msg)
	case ScreenBookmarks:
		return m.handleBookmarkKeys(msg)
	default:
		return m.handleLibraryKeys(msg)
	}
}

func (m Model) startInput(mode InputMode, prompt, value string) (tea.Model, tea.Cmd) {
	m.Mode = mode
	m.Input.Prompt = prompt
	m.Input.SetValue(value)
	m.Input.CursorEnd()
	return m, m.Input.Focus()
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.Mode == InputFilter {
			m.FilterQuery = ""
			m.Filtered = nil
		}
		m.Mode = InputNone
		m.Input.Blur()
		return m, nil
	case tea.KeyEnter:
		mode := m.Mode
		m.Mode = InputNone
		m.Input.Blur()
		if mode == InputSearch {
			m.Screen = ScreenSearch
			m.SearchCursor = 0
			return m, SearchCmd(m.repo, m.Input.Value())
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	if m.Mode == InputFilter && m.Input.Value() != m.FilterQuery {
		m.FilterQuery = m.Input.Value()
		m.PodcastCursor = 0
		if m.FilterQuery == "" {
			m.Filtered = nil
			return m, cmd
		}
		return m, tea.Batch(cmd, FilterCmd(m.repo, m.FilterQuery))
	}
	return m, cmd
}

func (m Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	podcasts := m.visiblePodcasts()

	switch {
	case key.Matches(msg, keys.Tab):
		if m.Focus == PanePodcasts {
			m.Focus = PaneEpisodes
		} else {
			m.Focus = PanePodcasts
		}
	case key.Matches(msg, keys.Left):
		m.Focus = PanePodcasts
	case key.Matches(msg, keys.Right):
		m.Focus = PaneEpisodes
	case key.Matches(msg, keys.Up):
		if m.Focus == PanePodcasts {
			m.PodcastCursor = clamp(m.PodcastCursor-1, len(podcasts))
		} else {
			m.EpisodeCursor = clamp(m.EpisodeCursor-1, len(m.Episodes.Episodes))
		}
	case key.Matches(msg, keys.Down):
		if m.Focus == PanePodcasts {
			m.PodcastCursor = clamp(m.PodcastCursor+1, len(podcasts))
		} else {
			m.EpisodeCursor = clamp(m.EpisodeCursor+1, len(m.Episodes.Episodes))
		}
	case key.Matches(msg, keys.Enter):
		if m.Focus == PanePodcasts {
			if len(podcasts) == 0 {
				return m, nil
			}
			return m.openPodcast(podcasts[m.PodcastCursor])
		}
		if len(m.Episodes.Episodes) == 0 {
			return m, nil
		}
		return m, PlayEpisodeCmd(m.repo, m.Episodes.Episodes[m.EpisodeCursor])
	case key.Matches(msg, keys.Unsubscribe):
		if m.Focus == PanePodcasts && len(podcasts) > 0 {
			return m, UnsubscribeCmd(m.repo, podcasts[m.PodcastCursor])
		}
	}
	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	results := m.Search.Results

	switch {
	case key.Matches(msg, keys.Up):
		m.SearchCursor = clamp(m.SearchCursor-1, len(results))
	case key.Matches(msg, keys.Down):
		m.SearchCursor = clamp(m.SearchCursor+1, len(results))
	case key.Matches(msg, keys.Enter):
		if len(results) > 0 {
			return m.openPodcast(results[m.SearchCursor].Podcast())
		}
	case key.Matches(msg, keys.Subscribe):
		if len(results) > 0 {
			return m, SubscribeCmd(m.repo, results[m.SearchCursor].Podcast())
		}
	}
	return m, nil
}

func (m Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		m.HistoryCursor = clamp(m.HistoryCursor-1, len(m.History))
	case key.Matches(msg, keys.Down):
		m.HistoryCursor = clamp(m.HistoryCursor+1, len(m.History))
	case key.Matches(msg, keys.Enter):
		if len(m.History) > 0 {
			return m, PlayFromHistoryCmd(m.repo, m.History[m.HistoryCursor].ID)
		}
	}
	return m, nil
}

func (m Model) handleBookmarkKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Up):
		m.BookmarkCursor = clamp(m.BookmarkCursor-1, len(m.Bookmarks))
	case key.Matches(msg, keys.Down):
		m.BookmarkCursor = clamp(m.BookmarkCursor+1, len(m.Bookmarks))
	case key.Matches(msg, keys.Enter):
		if len(m.Bookmarks) > 0 {
			return m, PlayFromBookmarkCmd(m.repo, m.Bookmarks[m.BookmarkCursor].ID)
		}
	case key.Matches(msg, keys.Delete):
		if len(m.Bookmarks) > 0 {
			return m, RemoveBookmarkCmd(m.repo, m.Bookmarks[m.BookmarkCursor].ID)
		}
	}
	return m, nil
}

// openPodcast lists the episodes of p in the library screen
func (m Model) openPodcast(p domain.Podcast) (tea.Model, tea.Cmd) {
	m.Current = p
	m.Screen = ScreenLibrary
	m.Focus = PaneEpisodes
	m.EpisodeCursor = 0
	return m, SelectPodcastCmd(m.repo, p)
}

// nextSpeed steps from current to the neighboring rate in dir
func nextSpeed(current float64, dir int) float64 {
	if current <= 0 {
		current = 1
	}
	if dir > 0 {
		for _, s := range speedSteps {
			if s > current+1e-9 {
				return s
			}
		}
		return speedSteps[len(speedSteps)-1]
	}
	for i := len(speedSteps) - 1; i >= 0; i-- {
		if speedSteps[i] < current-1e-9 {
			return speedSteps[i]
		}
	}
	return speedSteps[0]
}

package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/observe"
	"github.com/herbie30/PODCASTAPP/internal/service"
)

// repository is the service surface the UI drives (consumer-defined interface)
type repository interface {
	Subscriptions() *observe.Subscription[[]domain.Podcast]
	SearchResults() *observe.Subscription[service.SearchState]
	CurrentEpisodes() *observe.Subscription[service.EpisodesState]
	CurrentSession() *observe.Subscription[domain.Session]
	History() *observe.Subscription[[]domain.HistoryEntry]
	BookmarksFor(podcastID string) *observe.Subscription[[]domain.Bookmark]
	FilterSubscriptions(query string) ([]domain.Podcast, error)

	Search(ctx context.Context, query string) error
	Subscribe(ctx context.Context, p domain.Podcast) error
	Unsubscribe(ctx context.Context, podcastID string) error
	SelectPodcast(ctx context.Context, p domain.Podcast) error
	LoadEpisode(ctx context.Context, ep domain.Episode) error
	TogglePause(ctx context.Context) error
	SeekBy(ctx context.Context, deltaSeconds float64) error
	SetSpeed(ctx context.Context, multiplier float64) error
	AddBookmark(ctx context.Context, label string) (domain.Bookmark, error)
	RemoveBookmark(ctx context.Context, id string) error
	PlayFromHistory(ctx context.Context, entryID string) error
	PlayFromBookmark(ctx context.Context, bookmarkID string) error
}

// Screen is what the main area shows
type Screen int

const (
	ScreenLibrary Screen = iota
	ScreenSearch
	ScreenHistory
	ScreenBookmarks
)

// Pane is the focused column of the library view
type Pane int

const (
	PanePodcasts Pane = iota
	PaneEpisodes
)

// InputMode is what the text input is collecting
type InputMode int

const (
	InputNone InputMode = iota
	InputSearch
	InputFilter
)

// Model is the main Bubble Tea model for the application
type Model struct {
	repo repository

	// Application state
	Screen Screen
	Focus  Pane
	Mode   InputMode
	Ready  bool

	// UI Components
	Input    textinput.Model
	Help     help.Model
	ShowHelp bool

	// Data
	Podcasts    []domain.Podcast
	Filtered    []domain.Podcast // nil when no filter is active
	FilterQuery string
	Current     domain.Podcast // podcast whose episodes are listed
	Episodes    service.EpisodesState
	Search      service.SearchState
	Session     domain.Session
	History     []domain.HistoryEntry
	Bookmarks   []domain.Bookmark

	// Cursors
	PodcastCursor  int
	EpisodeCursor  int
	SearchCursor   int
	HistoryCursor  int
	BookmarkCursor int

	// Dimensions
	Width  int
	Height int

	// UI state
	StatusMsg   string
	StatusIsErr bool

	// Live subscriptions
	subscriptionsSub *observe.Subscription[[]domain.Podcast]
	searchSub        *observe.Subscription[service.SearchState]
	episodesSub      *observe.Subscription[service.EpisodesState]
	sessionSub       *observe.Subscription[domain.Session]
	historySub       *observe.Subscription[[]domain.HistoryEntry]
	bookmarksSub     *observe.Subscription[[]domain.Bookmark]
	bookmarksFor     string
}

// NewModel creates a new application model
func NewModel(repo repository) Model {
	input := textinput.New()
	input.CharLimit = 200

	return Model{
		repo:             repo,
		Screen:           ScreenLibrary,
		Input:            input,
		Help:             help.New(),
		subscriptionsSub: repo.Subscriptions(),
		searchSub:        repo.SearchResults(),
		episodesSub:      repo.CurrentEpisodes(),
		sessionSub:       repo.CurrentSession(),
		historySub:       repo.History(),
	}
}

// Init starts following every observable
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.listenSubscriptions(),
		m.listenSearch(),
		m.listenEpisodes(),
		m.listenSession(),
		m.listenHistory(),
	)
}

func (m Model) listenSubscriptions() tea.Cmd {
	return listen(m.subscriptionsSub, func(v []domain.Podcast) tea.Msg { return SubscriptionsMsg{Podcasts: v} })
}

func (m Model) listenSearch() tea.Cmd {
	return listen(m.searchSub, func(v service.SearchState) tea.Msg { return SearchMsg{State: v} })
}

func (m Model) listenEpisodes() tea.Cmd {
	return listen(m.episodesSub, func(v service.EpisodesState) tea.Msg { return EpisodesMsg{State: v} })
}

func (m Model) listenSession() tea.Cmd {
	return listen(m.sessionSub, func(v domain.Session) tea.Msg { return SessionMsg{Session: v} })
}

func (m Model) listenHistory() tea.Cmd {
	return listen(m.historySub, func(v []domain.HistoryEntry) tea.Msg { return HistoryMsg{Entries: v} })
}

func (m Model) listenBookmarks() tea.Cmd {
	podcastID := m.bookmarksFor
	return listen(m.bookmarksSub, func(v []domain.Bookmark) tea.Msg {
		return BookmarksMsg{PodcastID: podcastID, Bookmarks: v}
	})
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		m.Input.Width = max(msg.Width-12, 10)
		m.Ready = true
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case SubscriptionsMsg:
		m.Podcasts = msg.Podcasts
		m.PodcastCursor = clamp(m.PodcastCursor, len(m.visiblePodcasts()))
		if m.FilterQuery == "" {
			return m, m.listenSubscriptions()
		}
		return m, tea.Batch(m.listenSubscriptions(), FilterCmd(m.repo, m.FilterQuery))

	case FilterResultsMsg:
		if msg.Query == m.FilterQuery {
			m.Filtered = msg.Podcasts
			m.PodcastCursor = clamp(m.PodcastCursor, len(m.Filtered))
		}
		return m, nil

	case SearchMsg:
		m.Search = msg.State
		m.SearchCursor = clamp(m.SearchCursor, len(m.Search.Results))
		return m, m.listenSearch()

	case EpisodesMsg:
		if msg.State.PodcastID != m.Episodes.PodcastID {
			m.EpisodeCursor = 0
		}
		m.Episodes = msg.State
		m.EpisodeCursor = clamp(m.EpisodeCursor, len(m.Episodes.Episodes))
		return m, m.listenEpisodes()

	case SessionMsg:
		m.Session = msg.Session
		return m, m.listenSession()

	case HistoryMsg:
		m.History = msg.Entries
		m.HistoryCursor = clamp(m.HistoryCursor, len(m.History))
		return m, m.listenHistory()

	case BookmarksMsg:
		if msg.PodcastID != m.bookmarksFor {
			// From a subscription we already replaced
			return m, nil
		}
		m.Bookmarks = msg.Bookmarks
		m.BookmarkCursor = clamp(m.BookmarkCursor, len(m.Bookmarks))
		return m, m.listenBookmarks()

	case StatusMsg:
		m.StatusMsg = msg.Text
		m.StatusIsErr = false
		return m, nil

	case ErrMsg:
		m.StatusMsg = msg.Error()
		m.StatusIsErr = true
		return m, nil
	}

	if m.Mode != InputNone {
		var cmd tea.Cmd
		m.Input, cmd = m.Input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Close releases every live subscription
func (m Model) Close() {
	for _, closeFn := range []func(){
		m.subscriptionsSub.Close,
		m.searchSub.Close,
		m.episodesSub.Close,
		m.sessionSub.Close,
		m.historySub.Close,
	} {
		closeFn()
	}
	if m.bookmarksSub != nil {
		m.bookmarksSub.Close()
	}
}

// visiblePodcasts is the subscription list after the filter
func (m Model) visiblePodcasts() []domain.Podcast {
	if m.FilterQuery != "" {
		return m.Filtered
	}
	return m.Podcasts
}

// followBookmarks switches the bookmark subscription to podcastID
func (m Model) followBookmarks(podcastID string) (Model, tea.Cmd) {
	if podcastID == m.bookmarksFor && m.bookmarksSub != nil {
		return m, nil
	}
	if m.bookmarksSub != nil {
		m.bookmarksSub.Close()
	}
	m.bookmarksFor = podcastID
	m.bookmarksSub = m.repo.BookmarksFor(podcastID)
	m.Bookmarks = nil
	m.BookmarkCursor = 0
	return m, m.listenBookmarks()
}

func clamp(cursor, n int) int {
	if cursor >= n {
		cursor = n - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	return cursor
}

package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/tui/styles"
)

// Vertical chrome: title, player bar, input/status and help lines
const chromeHeight = 6

// View renders the UI
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	bodyHeight := max(m.Height-chromeHeight, 3)
	var body string
	switch m.Screen {
	case ScreenSearch:
		body = m.renderSearch(m.Width, bodyHeight)
	case ScreenHistory:
		body = m.renderHistory(m.Width, bodyHeight)
	case ScreenBookmarks:
		body = m.renderBookmarks(m.Width, bodyHeight)
	default:
		body = m.renderLibrary(m.Width, bodyHeight)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitle(),
		body,
		m.renderPlayerBar(m.Width),
		m.renderFooter(),
	)
}

func (m Model) renderTitle() string {
	tabs := []struct {
		screen Screen
		label  string
	}{
		{ScreenLibrary, "Library"},
		{ScreenSearch, "Search"},
		{ScreenHistory, "History"},
		{ScreenBookmarks, "Bookmarks"},
	}
	parts := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t.screen == m.Screen {
			parts = append(parts, styles.BadgeStyle.Render(t.label))
		} else {
			parts = append(parts, styles.DimBadgeStyle.Render(t.label))
		}
	}
	return strings.Join(parts, " ")
}

func (m Model) renderLibrary(width, height int) string {
	leftWidth := max(width*35/100, 20)
	rightWidth := max(width-leftWidth-4, 20)
	inner := height - 2

	podcasts := m.visiblePodcasts()
	rows := make([]string, len(podcasts))
	for i, p := range podcasts {
		rows[i] = p.Title
	}
	header := "Subscriptions"
	if m.FilterQuery != "" {
		header = fmt.Sprintf("Subscriptions (%s)", m.FilterQuery)
	}
	left := renderList(header, rows, m.PodcastCursor, m.Focus == PanePodcasts, leftWidth, inner, "No subscriptions. Press f to search.")

	right := renderPane(m.Focus == PaneEpisodes, rightWidth, inner, m.renderEpisodes(rightWidth-2, inner))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m Model) renderEpisodes(width, height int) string {
	st := m.Episodes
	title := m.Current.Title
	if title == "" {
		title = "Episodes"
	}
	lines := []string{styles.TitleStyle.Render(styles.Truncate(title, width))}

	switch {
	case st.PodcastID == "":
		lines = append(lines, styles.DimStyle.Render("Select a podcast"))
	case st.Loading:
		lines = append(lines, styles.DimStyle.Render("Loading episodes..."))
	case st.Err != nil && len(st.Episodes) == 0:
		lines = append(lines, styles.ErrorStyle.Render(styles.Truncate(st.Err.Error(), width)))
	default:
		if st.Stale {
			lines = append(lines, styles.WarningStyle.Render("Offline: showing cached episodes"))
		}
		rows := make([]string, len(st.Episodes))
		for i, ep := range st.Episodes {
			marker := "  "
			if ep.ID == m.Session.EpisodeID {
				marker = "▶ "
			}
			rows[i] = fmt.Sprintf("%s%s  (%s)", marker, ep.Title, ep.FormattedDuration())
		}
		lines = append(lines, renderRows(rows, m.EpisodeCursor, m.Focus == PaneEpisodes, width, height-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderSearch(width, height int) string {
	st := m.Search
	header := "Search"
	if st.Query != "" {
		header = fmt.Sprintf("Search: %s", st.Query)
	}

	var content string
	switch {
	case st.Err != nil:
		content = styles.ErrorStyle.Render("Search failed: " + st.Err.Error())
	case st.Query != "" && len(st.Results) == 0:
		content = styles.DimStyle.Render("No podcasts found")
	default:
		rows := make([]string, len(st.Results))
		for i, r := range st.Results {
			rows[i] = r.Title
			if r.Author != "" {
				rows[i] += " - " + r.Author
			}
		}
		content = strings.Join(renderRows(rows, m.SearchCursor, true, width-4, height-3), "\n")
	}
	return renderPane(true, width-2, height-2, styles.TitleStyle.Render(header)+"\n"+content)
}

func (m Model) renderHistory(width, height int) string {
	rows := make([]string, len(m.History))
	for i, h := range m.History {
		rows[i] = fmt.Sprintf("%s  %s", h.Time().Format("Jan 02 15:04"), h.Title)
	}
	return renderList("History", rows, m.HistoryCursor, true, width-2, height-2, "Nothing played yet")
}

func (m Model) renderBookmarks(width, height int) string {
	rows := make([]string, len(m.Bookmarks))
	for i, b := range m.Bookmarks {
		label := b.Label
		if label == "" {
			label = b.EpisodeID
		}
		rows[i] = fmt.Sprintf("%8s  %s", formatClock(b.PositionSeconds), label)
	}
	return renderList("Bookmarks", rows, m.BookmarkCursor, true, width-2, height-2, "No bookmarks. Press m while playing.")
}

func (m Model) renderPlayerBar(width int) string {
	s := m.Session
	if !s.Loaded() {
		return styles.PlayerBarStyle.Width(width).Render(styles.DimStyle.Render("Nothing playing") + connLabel(s.Connection))
	}

	icon := map[domain.PlayState]string{
		domain.StatePlaying:   "▶",
		domain.StatePaused:    "⏸",
		domain.StateBuffering: "…",
		domain.StateStopped:   "■",
	}[s.PlayState]

	clock := fmt.Sprintf("%s / %s", formatClock(s.PositionSeconds), formatClock(s.DurationSeconds))
	speed := strconv.FormatFloat(s.Speed, 'f', -1, 64) + "x"
	head := fmt.Sprintf("%s %s", icon, s.Title)

	barWidth := width - lipgloss.Width(clock) - lipgloss.Width(speed) - 8
	line := head
	if barWidth > 10 {
		var percent float64
		if s.DurationSeconds > 0 {
			percent = s.PositionSeconds / s.DurationSeconds * 100
		}
		line = fmt.Sprintf("%s\n%s %s %s", styles.Truncate(head, width-2), styles.RenderProgressBar(percent, barWidth), clock, speed)
	}
	if s.Err != nil {
		line += "\n" + styles.ErrorStyle.Render(s.Err.Error())
	}
	return styles.PlayerBarStyle.Width(width).Render(line + connLabel(s.Connection))
}

func connLabel(c domain.ConnState) string {
	switch c {
	case domain.ConnConnected:
		return ""
	case domain.ConnConnecting:
		return styles.WarningStyle.Render("  (connecting to player)")
	default:
		return styles.ErrorStyle.Render("  (player offline)")
	}
}

func (m Model) renderFooter() string {
	if m.Mode != InputNone {
		return styles.FilterPromptStyle.Render(m.Input.View())
	}
	status := ""
	if m.StatusMsg != "" {
		if m.StatusIsErr {
			status = styles.ErrorStyle.Render(m.StatusMsg)
		} else {
			status = styles.SuccessStyle.Render(m.StatusMsg)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, status, m.Help.View(keys))
}

// renderList renders a bordered, titled list
func renderList(title string, rows []string, cursor int, focused bool, width, height int, empty string) string {
	lines := []string{styles.TitleStyle.Render(styles.Truncate(title, width-2))}
	if len(rows) == 0 {
		lines = append(lines, styles.DimStyle.Render(empty))
	} else {
		lines = append(lines, renderRows(rows, cursor, focused, width-2, height-1)...)
	}
	return renderPane(focused, width, height, strings.Join(lines, "\n"))
}

func renderPane(focused bool, width, height int, content string) string {
	style := styles.InactiveBorder
	if focused {
		style = styles.ActiveBorder
	}
	return style.Width(width).Height(height).Render(content)
}

// renderRows renders the window of rows that keeps cursor visible
func renderRows(rows []string, cursor int, focused bool, width, height int) []string {
	if height < 1 {
		height = 1
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	end := min(start+height, len(rows))

	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		text := styles.Truncate(rows[i], width)
		if i == cursor && focused {
			out = append(out, styles.SelectedItemStyle.Render(text))
		} else {
			out = append(out, styles.NormalItemStyle.Render(text))
		}
	}
	return out
}

// formatClock formats seconds as H:MM:SS or MM:SS
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

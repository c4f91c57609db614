package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/herbie30/PODCASTAPP/internal/observe"
)

// listen waits for the next value of sub and wraps it in a message. The
// handler for that message calls listen again to keep following sub. A
// closed subscription yields no message.
func listen[T any](sub *observe.Subscription[T], wrap func(T) tea.Msg) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-sub.C()
		if !ok {
			return nil
		}
		return wrap(v)
	}
}

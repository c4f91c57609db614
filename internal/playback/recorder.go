package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/herbie30/PODCASTAPP/internal/domain"
)

// historyNamespace scopes name-based history IDs
var historyNamespace = uuid.MustParse("6f1c5a9e-3d1b-4c57-9a43-0b8f2e6d7c21")

type write struct {
	op string
	fn func() error
}

type historyState struct {
	logged     map[string]time.Time // episode -> last logged, for the debounce
	lastMillis int64
}

func (h *historyState) seed(store domain.Store) {
	if e, ok, err := store.LatestHistory(); err == nil && ok {
		h.lastMillis = e.TimestampMillis
	}
}

// historyID is stable within one debounce bucket so a duplicate insert
// collapses at the store
func historyID(episodeID string, millis int64, bucket time.Duration) string {
	n := bucket.Milliseconds()
	if n <= 0 {
		n = 1
	}
	return uuid.NewSHA1(historyNamespace, []byte(fmt.Sprintf("%s:%d", episodeID, millis/n))).String()
}

func newBookmark(ep domain.Episode, position float64, label string, now time.Time) domain.Bookmark {
	return domain.Bookmark{
		ID:              uuid.New().String(),
		PodcastID:       ep.PodcastID,
		EpisodeID:       ep.ID,
		PositionSeconds: position,
		Label:           label,
		CreatedAt:       now,
	}
}

// logHistory appends a history entry unless the episode was logged within
// the debounce window. Timestamps never go backwards.
func (c *Coordinator) logHistory(ep domain.Episode) {
	now := c.opts.Now()
	if last, ok := c.history.logged[ep.ID]; ok && now.Sub(last) < c.opts.HistoryDebounce {
		c.logger.Debug("history debounced", "episodeID", ep.ID)
		return
	}
	for id, at := range c.history.logged {
		if now.Sub(at) >= c.opts.HistoryDebounce {
			delete(c.history.logged, id)
		}
	}
	c.history.logged[ep.ID] = now

	millis := now.UnixMilli()
	if millis <= c.history.lastMillis {
		millis = c.history.lastMillis + 1
	}
	c.history.lastMillis = millis

	entry := domain.HistoryEntry{
		ID:              historyID(ep.ID, millis, c.opts.HistoryDebounce),
		PodcastID:       ep.PodcastID,
		EpisodeID:       ep.ID,
		Title:           ep.Title,
		TimestampMillis: millis,
	}
	c.enqueue("insert history", func() error {
		_, err := c.store.InsertHistory(entry)
		return err
	})
}

func (c *Coordinator) saveProgress(position float64) {
	p := domain.Progress{EpisodeID: c.episode.ID, PositionSeconds: position, UpdatedAt: c.opts.Now()}
	if p.EpisodeID == "" {
		return
	}
	c.enqueue("save progress", func() error { return c.store.SaveProgress(p) })
}

// enqueue hands a write to the background writer. It never blocks the
// owner; a full backlog drops the write.
func (c *Coordinator) enqueue(op string, fn func() error) {
	select {
	case c.writes <- write{op: op, fn: fn}:
	default:
		c.logger.Warn("write backlog full, dropping", "op", op)
	}
}

// writer applies background writes in order
func (c *Coordinator) writer() {
	defer close(c.writerDone)
	for w := range c.writes {
		if err := c.retryOnce(w.op, w.fn); err != nil {
			c.logger.Error("background write failed", "op", w.op, "error", err)
		}
	}
}

// retryOnce retries a failed store write once. Constraint violations and
// missing rows are final.
func (c *Coordinator) retryOnce(op string, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, domain.ErrStoreConstraint) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	c.logger.Warn("store write failed, retrying", "op", op, "error", err)
	return fn()
}

package playback

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

func validSpeed(x float64) bool {
	return !math.IsNaN(x) && x > 0 && x <= maxSpeed
}

// LoadEpisode makes ep the current episode and starts it. Playback resumes
// from the saved progress, else the latest bookmark, else the start. A load
// issued while disconnected is sent once the engine is reachable.
func (c *Coordinator) LoadEpisode(ctx context.Context, ep domain.Episode) error {
	return c.do(ctx, func() error {
		return c.load(ep, c.resumePosition(ep), false)
	})
}

// LoadEpisodeAt starts ep at positionSeconds regardless of saved progress
func (c *Coordinator) LoadEpisodeAt(ctx context.Context, ep domain.Episode, positionSeconds float64) error {
	if math.IsNaN(positionSeconds) || math.IsInf(positionSeconds, 0) {
		return &domain.ValidationError{Kind: domain.InvalidSeekTarget, Value: positionSeconds}
	}
	return c.do(ctx, func() error {
		return c.load(ep, math.Max(positionSeconds, 0), false)
	})
}

// Pause pauses a playing episode. From any other state it does nothing.
func (c *Coordinator) Pause(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.sess.PlayState != domain.StatePlaying || c.needsLoad {
			return nil
		}
		if err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
			return conn.Pause(ctx)
		}); err != nil {
			return err
		}
		c.sess.PlayState = domain.StatePaused
		c.saveProgress(c.sess.PositionSeconds)
		c.publish()
		return nil
	})
}

// Resume continues a paused episode. From any other state it does nothing.
// A paused episode the engine no longer holds is loaded again at its
// position.
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.sess.PlayState != domain.StatePaused {
			return nil
		}
		if c.needsLoad {
			return c.load(c.episode, c.sess.PositionSeconds, false)
		}
		if err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
			return conn.Play(ctx)
		}); err != nil {
			return err
		}
		c.sess.PlayState = domain.StatePlaying
		c.publish()
		return nil
	})
}

// Seek moves to positionSeconds, clamped to the episode bounds
func (c *Coordinator) Seek(ctx context.Context, positionSeconds float64) error {
	if math.IsNaN(positionSeconds) || math.IsInf(positionSeconds, 0) {
		return &domain.ValidationError{Kind: domain.InvalidSeekTarget, Value: positionSeconds}
	}
	return c.do(ctx, func() error {
		if !c.sess.Loaded() || c.sess.PlayState == domain.StateStopped {
			return &domain.ValidationError{Kind: domain.InvalidSeekTarget, Value: positionSeconds}
		}
		pos := math.Max(positionSeconds, 0)
		if d := c.sess.DurationSeconds; d > 0 {
			pos = math.Min(pos, d)
		}
		if !c.needsLoad {
			if err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
				return conn.Seek(ctx, pos)
			}); err != nil {
				return err
			}
		}
		c.sess.PositionSeconds = pos
		c.saveProgress(pos)
		c.publish()
		return nil
	})
}

// SetSpeed changes the playback rate. The rate is sticky across episodes
// and restarts.
func (c *Coordinator) SetSpeed(ctx context.Context, multiplier float64) error {
	if !validSpeed(multiplier) {
		return &domain.ValidationError{Kind: domain.InvalidSpeed, Value: multiplier}
	}
	return c.do(ctx, func() error {
		if c.conn != nil && c.sess.Loaded() && !c.needsLoad && c.sess.PlayState != domain.StateStopped {
			if err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
				return conn.SetSpeed(ctx, multiplier)
			}); err != nil {
				return err
			}
		}
		c.speed = multiplier
		c.sess.Speed = multiplier
		if c.pending != nil {
			c.pending.Speed = multiplier
		}
		c.enqueue("save speed", func() error { return c.store.SaveSpeed(multiplier) })
		c.publish()
		return nil
	})
}

// AddBookmark marks the current position. It returns once the bookmark is
// durable.
func (c *Coordinator) AddBookmark(ctx context.Context, label string) (domain.Bookmark, error) {
	var b domain.Bookmark
	err := c.do(ctx, func() error {
		if !c.sess.Loaded() {
			return ErrNothingLoaded
		}
		b = newBookmark(c.episode, c.sess.PositionSeconds, label, c.opts.Now())
		return nil
	})
	if err != nil {
		return domain.Bookmark{}, err
	}
	if err := c.retryOnce("add bookmark", func() error { return c.store.UpsertBookmark(b) }); err != nil {
		return domain.Bookmark{}, err
	}
	c.logger.Info("bookmark added", "episodeID", b.EpisodeID, "position", b.PositionSeconds)
	return b, nil
}

// RemoveBookmark deletes a bookmark and returns once the delete is durable
func (c *Coordinator) RemoveBookmark(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.retryOnce("remove bookmark", func() error { return c.store.DeleteBookmark(id) })
}

// load supersedes whatever is current. Owner goroutine only.
func (c *Coordinator) load(ep domain.Episode, startAt float64, adopt bool) error {
	if c.sess.Loaded() && !c.needsLoad && c.sess.PlayState != domain.StateStopped {
		c.saveProgress(c.sess.PositionSeconds)
	}

	c.loadGen++
	c.adopted = adopt
	c.needsLoad = false
	c.episode = ep
	c.sess = domain.Session{
		EpisodeID:       ep.ID,
		PodcastID:       ep.PodcastID,
		Title:           ep.Title,
		AudioURL:        ep.AudioURL,
		DurationSeconds: ep.DurationSeconds,
		PositionSeconds: startAt,
		Speed:           c.speed,
		PlayState:       domain.StateBuffering,
		Connection:      c.sess.Connection,
	}
	req := domain.LoadRequest{Episode: ep, StartAt: startAt, Speed: c.speed, Generation: c.loadGen}
	c.logger.Info("loading episode", "episodeID", ep.ID, "generation", c.loadGen, "startAt", startAt)

	if c.conn == nil {
		c.pending = &req
		c.publish()
		c.ensureConnected(false)
		return nil
	}
	c.pending = nil
	c.publish()
	return c.issueLoad(req)
}

func (c *Coordinator) issueLoad(req domain.LoadRequest) error {
	err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
		return conn.Load(ctx, req)
	})
	if err == nil || req.Generation != c.loadGen {
		return err
	}
	if errors.Is(err, domain.ErrConnectionLost) {
		// Retried after the reconnect
		c.pending = &req
		c.publish()
		return nil
	}
	c.sess.PlayState = domain.StateStopped
	c.sess.Err = err
	c.publish()
	return err
}

// call runs one engine command. A lost connection starts the reconnect cycle.
func (c *Coordinator) call(fn func(ctx context.Context, conn domain.EngineConn) error) error {
	if c.conn == nil {
		c.ensureConnected(false)
		return &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "command", Err: errors.New("engine not connected")}
	}
	ctx, cancel := c.engineContext()
	defer cancel()
	err := fn(ctx, c.conn)
	if errors.Is(err, domain.ErrConnectionLost) {
		c.dropConn("command failed")
	}
	return err
}

// resumePosition picks where a reselected episode starts
func (c *Coordinator) resumePosition(ep domain.Episode) float64 {
	if p, ok := c.store.GetProgress(ep.ID); ok {
		return p.PositionSeconds
	}
	bookmarks, err := c.store.ListBookmarks(ep.PodcastID)
	if err != nil {
		c.logger.Warn("failed to read bookmarks", "error", err, "episodeID", ep.ID)
		return 0
	}
	var mine []domain.Bookmark
	for _, b := range bookmarks {
		if b.EpisodeID == ep.ID {
			mine = append(mine, b)
		}
	}
	if len(mine) == 0 {
		return 0
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })
	return mine[0].PositionSeconds
}

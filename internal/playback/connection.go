package playback

import (
	"context"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/jpillora/backoff"
)

// ensureConnected starts a connect cycle unless one is running. A cycle
// that follows a dropped connection waits before its first attempt.
func (c *Coordinator) ensureConnected(afterDrop bool) {
	if c.conn != nil || c.connecting || c.ctx.Err() != nil {
		return
	}
	c.connecting = true
	c.connGen++
	c.sess.Connection = domain.ConnConnecting
	c.publish()
	go c.connectLoop(c.connGen, afterDrop)
}

// connectLoop makes up to ReconnectAttempts attempts with exponential
// backoff, then reports back to the owner.
func (c *Coordinator) connectLoop(gen uint64, delayFirst bool) {
	boff := backoff.Backoff{
		Min:    c.opts.ReconnectMin,
		Max:    c.opts.ReconnectMax,
		Factor: 2,
	}

	var lastErr error
	for attempt := 1; attempt <= c.opts.ReconnectAttempts; attempt++ {
		if delayFirst || attempt > 1 {
			dur := boff.Duration()
			c.logger.Info("connecting to engine", "attempt", attempt, "retryingAfter", dur)
			timer := time.NewTimer(dur)
			select {
			case <-c.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.opts.CommandTimeout)
		conn, err := c.engine.Connect(ctx)
		cancel()
		if err == nil {
			if !c.send(func() { c.onConnected(gen, conn) }) {
				conn.Close()
			}
			return
		}
		lastErr = err
		c.logger.Warn("engine connect failed", "error", err, "attempt", attempt)
	}
	c.send(func() { c.onConnectFailed(gen, lastErr) })
}

func (c *Coordinator) onConnected(gen uint64, conn domain.EngineConn) {
	if gen != c.connGen || c.conn != nil || c.ctx.Err() != nil {
		conn.Close()
		return
	}
	c.connecting = false
	c.conn = conn
	c.sess.Connection = domain.ConnConnected
	c.logger.Info("engine connected", "connection", gen)

	go c.forward(gen, conn)
	c.resync()
	c.publish()
}

func (c *Coordinator) onConnectFailed(gen uint64, err error) {
	if gen != c.connGen {
		return
	}
	c.connecting = false
	c.pending = nil
	c.needsLoad = false
	c.sess.Connection = domain.ConnDisconnected
	c.sess.PlayState = domain.StateStopped
	c.sess.Err = &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "connect", Err: err}
	c.logger.Error("engine unavailable", "error", err, "attempts", c.opts.ReconnectAttempts)
	c.publish()
}

// dropConn releases a broken connection and starts reconnecting
func (c *Coordinator) dropConn(reason string) {
	if c.conn == nil {
		return
	}
	conn := c.conn
	c.conn = nil
	if err := conn.Close(); err != nil {
		c.logger.Debug("close after drop", "error", err)
	}
	c.logger.Warn("engine connection lost", "reason", reason)

	if c.sess.Loaded() && !c.needsLoad {
		switch c.sess.PlayState {
		case domain.StatePlaying, domain.StatePaused:
			c.saveProgress(c.sess.PositionSeconds)
		case domain.StateBuffering:
			if c.pending == nil {
				c.pending = &domain.LoadRequest{
					Episode:    c.episode,
					StartAt:    c.sess.PositionSeconds,
					Speed:      c.speed,
					Generation: c.loadGen,
				}
			}
		}
	}
	c.sess.Connection = domain.ConnDisconnected
	c.publish()
	c.ensureConnected(true)
}

// forward relays one connection's events into the owner loop
func (c *Coordinator) forward(gen uint64, conn domain.EngineConn) {
	for ev := range conn.Events() {
		ev := ev
		if !c.send(func() { c.handleEvent(gen, ev) }) {
			return
		}
	}
	c.send(func() { c.handleEvent(gen, domain.EngineEvent{Kind: domain.EventDisconnected}) })
}

// resync reconciles the session with the engine after (re)connecting
func (c *Coordinator) resync() {
	if c.pending != nil {
		req := *c.pending
		c.pending = nil
		if err := c.issueLoad(req); err != nil {
			c.logger.Error("pending load failed", "error", err, "episodeID", req.Episode.ID)
		}
		return
	}

	ctx, cancel := c.engineContext()
	st, err := c.conn.Status(ctx)
	cancel()
	if err != nil {
		c.logger.Error("engine status failed", "error", err)
		if c.conn != nil && isConnectionLost(err) {
			c.dropConn("status failed")
		}
		return
	}

	if st.Loaded && st.MediaURL != "" {
		if c.sess.Loaded() && st.MediaURL == c.sess.AudioURL {
			c.adoptStatus(st)
			return
		}
		ep, err := c.store.FindEpisodeByAudioURL(st.MediaURL)
		if err == nil {
			c.logger.Info("engine already playing a known episode", "episodeID", ep.ID)
			c.loadGen++
			c.episode = ep
			c.sess = domain.Session{
				EpisodeID:       ep.ID,
				PodcastID:       ep.PodcastID,
				Title:           ep.Title,
				AudioURL:        ep.AudioURL,
				DurationSeconds: ep.DurationSeconds,
				Speed:           c.speed,
				Connection:      c.sess.Connection,
			}
			c.adoptStatus(st)
			return
		}
		c.logger.Warn("engine is playing unknown media", "url", st.MediaURL)
	}

	// Engine has nothing for us. Keep the episode on display without auto-play.
	if c.sess.Loaded() && c.sess.PlayState != domain.StateStopped {
		c.needsLoad = true
		c.sess.PlayState = domain.StatePaused
	}
}

// adoptStatus takes the engine's view of media it already has loaded
func (c *Coordinator) adoptStatus(st domain.EngineStatus) {
	c.adopted = true
	c.needsLoad = false
	c.sess.Err = nil
	c.sess.PositionSeconds = st.Position
	if st.Duration > 0 {
		c.sess.DurationSeconds = st.Duration
	}
	if st.Paused {
		c.sess.PlayState = domain.StatePaused
	} else {
		c.sess.PlayState = domain.StatePlaying
	}
	if st.Speed > 0 && st.Speed != c.speed {
		if err := c.call(func(ctx context.Context, conn domain.EngineConn) error {
			return conn.SetSpeed(ctx, c.speed)
		}); err != nil {
			c.logger.Warn("failed to reapply speed", "error", err)
		}
	}
	c.logger.Info("resynced with engine", "episodeID", c.sess.EpisodeID, "position", st.Position, "paused", st.Paused)
}

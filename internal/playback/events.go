package playback

import (
	"errors"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

func isConnectionLost(err error) bool {
	return errors.Is(err, domain.ErrConnectionLost)
}

// handleEvent applies one engine callback. Events from a replaced
// connection or a superseded load are discarded.
func (c *Coordinator) handleEvent(connGen uint64, ev domain.EngineEvent) {
	if connGen != c.connGen {
		return
	}
	if ev.Kind == domain.EventDisconnected {
		c.dropConn("engine disconnected")
		return
	}
	if !c.currentLoad(ev) {
		c.logger.Debug("discarding stale event", "kind", ev.Kind, "generation", ev.Generation, "current", c.loadGen)
		return
	}

	switch ev.Kind {
	case domain.EventReady:
		c.onReady(ev)
	case domain.EventPositionChanged:
		if c.needsLoad || c.sess.PlayState == domain.StateStopped || c.sess.PlayState == domain.StateBuffering {
			return
		}
		c.sess.PositionSeconds = ev.Position
		if ev.Duration > 0 {
			c.sess.DurationSeconds = ev.Duration
		}
		c.publishPosition()
	case domain.EventEnded:
		c.sess.PlayState = domain.StateStopped
		if c.sess.DurationSeconds > 0 {
			c.sess.PositionSeconds = c.sess.DurationSeconds
		}
		c.saveProgress(0)
		c.logger.Info("episode ended", "episodeID", c.sess.EpisodeID)
		c.publish()
	case domain.EventError:
		err := ev.Err
		if err == nil {
			err = &domain.EngineError{Kind: domain.EngineInternal, Op: "playback"}
		}
		c.sess.PlayState = domain.StateStopped
		c.sess.Err = err
		c.logger.Error("engine reported error", "error", err, "episodeID", c.sess.EpisodeID)
		c.publish()
	}
}

func (c *Coordinator) currentLoad(ev domain.EngineEvent) bool {
	if !c.sess.Loaded() {
		return false
	}
	return ev.Generation == c.loadGen || (c.adopted && ev.Generation == 0)
}

func (c *Coordinator) onReady(ev domain.EngineEvent) {
	if ev.Duration > 0 {
		c.sess.DurationSeconds = ev.Duration
	}
	if c.sess.PlayState != domain.StateBuffering {
		c.publish()
		return
	}
	c.sess.Err = nil
	c.sess.PlayState = domain.StatePlaying
	c.logger.Info("episode ready", "episodeID", c.sess.EpisodeID, "generation", c.loadGen)
	c.logHistory(c.episode)
	c.publish()
}

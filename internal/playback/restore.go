package playback

import "github.com/herbie30/PODCASTAPP/internal/domain"

// restore shows the most recently played episode at its saved position.
// Nothing is sent to the engine until the user resumes.
func (c *Coordinator) restore() {
	entry, ok, err := c.store.LatestHistory()
	if err != nil {
		c.logger.Warn("failed to read history", "error", err)
		return
	}
	if !ok {
		return
	}
	ep, err := c.store.GetEpisode(entry.EpisodeID)
	if err != nil {
		c.logger.Warn("last played episode is gone", "error", err, "episodeID", entry.EpisodeID)
		return
	}

	var position float64
	if p, ok := c.store.GetProgress(ep.ID); ok {
		position = p.PositionSeconds
	}

	c.episode = ep
	c.needsLoad = true
	c.sess = domain.Session{
		EpisodeID:       ep.ID,
		PodcastID:       ep.PodcastID,
		Title:           ep.Title,
		AudioURL:        ep.AudioURL,
		DurationSeconds: ep.DurationSeconds,
		PositionSeconds: position,
		Speed:           c.speed,
		PlayState:       domain.StatePaused,
		Connection:      c.sess.Connection,
	}
	c.logger.Info("restored last session", "episodeID", ep.ID, "position", position)
}

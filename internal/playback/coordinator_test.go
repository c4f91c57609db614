package playback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === Fakes ===

type fakeEngine struct {
	mu           sync.Mutex
	conns        []*fakeConn
	failNext     int
	failAll      bool
	status       domain.EngineStatus
	connectCalls int
}

func (e *fakeEngine) Connect(ctx context.Context) (domain.EngineConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectCalls++
	if e.failAll || e.failNext > 0 {
		if e.failNext > 0 {
			e.failNext--
		}
		return nil, errors.New("connection refused")
	}
	conn := &fakeConn{status: e.status, events: make(chan domain.EngineEvent, 64)}
	e.conns = append(e.conns, conn)
	return conn, nil
}

func (e *fakeEngine) last() *fakeConn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.conns) == 0 {
		return nil
	}
	return e.conns[len(e.conns)-1]
}

func (e *fakeEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connectCalls
}

func (e *fakeEngine) set(fn func(e *fakeEngine)) {
	e.mu.Lock()
	fn(e)
	e.mu.Unlock()
}

type fakeConn struct {
	mu        sync.Mutex
	loads     []domain.LoadRequest
	commands  []string
	status    domain.EngineStatus
	events    chan domain.EngineEvent
	closeOnce sync.Once
}

func (f *fakeConn) record(cmd string) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
}

func (f *fakeConn) Load(ctx context.Context, req domain.LoadRequest) error {
	f.mu.Lock()
	f.loads = append(f.loads, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Play(ctx context.Context) error  { f.record("play"); return nil }
func (f *fakeConn) Pause(ctx context.Context) error { f.record("pause"); return nil }

func (f *fakeConn) Seek(ctx context.Context, pos float64) error {
	f.record(fmt.Sprintf("seek:%g", pos))
	return nil
}

func (f *fakeConn) SetSpeed(ctx context.Context, x float64) error {
	f.record(fmt.Sprintf("speed:%g", x))
	return nil
}

func (f *fakeConn) Status(ctx context.Context) (domain.EngineStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *fakeConn) Events() <-chan domain.EngineEvent { return f.events }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeConn) emit(ev domain.EngineEvent) { f.events <- ev }

// disconnect simulates the engine going away
func (f *fakeConn) disconnect() { f.Close() }

func (f *fakeConn) lastLoad() domain.LoadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.loads) == 0 {
		return domain.LoadRequest{}
	}
	return f.loads[len(f.loads)-1]
}

func (f *fakeConn) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loads)
}

func (f *fakeConn) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// === Helpers ===

var (
	ep1 = domain.Episode{ID: "e1", PodcastID: "p1", Title: "One", AudioURL: "http://a/e1.mp3", DurationSeconds: 300, PublishedAt: time.Unix(100, 0)}
	ep2 = domain.Episode{ID: "e2", PodcastID: "p1", Title: "Two", AudioURL: "http://a/e2.mp3", DurationSeconds: 600, PublishedAt: time.Unix(200, 0)}
)

func newTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	st, err := store.NewStore(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.UpsertPodcast(domain.Podcast{ID: "p1", Title: "Pod"}))
	require.NoError(t, st.UpsertEpisodes("p1", []domain.Episode{ep1, ep2}))
	return st
}

func testOptions() Options {
	return Options{
		ThrottleInterval: 10 * time.Millisecond,
		ProgressInterval: time.Hour,
		ReconnectMin:     5 * time.Millisecond,
		ReconnectMax:     20 * time.Millisecond,
		CommandTimeout:   time.Second,
	}
}

func startCoordinator(t *testing.T, eng *fakeEngine, st *store.BoltStore, opts Options) *Coordinator {
	t.Helper()
	c := NewCoordinator(eng, st, opts, nil)
	c.Start(context.Background())
	t.Cleanup(func() { c.Close() })
	return c
}

func waitSession(t *testing.T, c *Coordinator, cond func(domain.Session) bool, msg string) domain.Session {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Session()) }, 2*time.Second, 2*time.Millisecond, msg)
	return c.Session()
}

func waitConnected(t *testing.T, c *Coordinator) {
	t.Helper()
	waitSession(t, c, func(s domain.Session) bool { return s.Connection == domain.ConnConnected }, "connected")
}

func history(t *testing.T, st *store.BoltStore) []domain.HistoryEntry {
	t.Helper()
	entries, err := st.ListHistory()
	require.NoError(t, err)
	return entries
}

// loadReady loads ep and acknowledges it from the engine
func loadReady(t *testing.T, c *Coordinator, eng *fakeEngine, ep domain.Episode) *fakeConn {
	t.Helper()
	require.NoError(t, c.LoadEpisode(context.Background(), ep))
	conn := eng.last()
	require.NotNil(t, conn)
	require.Eventually(t, func() bool { return conn.lastLoad().Episode.ID == ep.ID }, time.Second, time.Millisecond)
	conn.emit(domain.EngineEvent{Kind: domain.EventReady, Generation: conn.lastLoad().Generation, Duration: ep.DurationSeconds})
	waitSession(t, c, func(s domain.Session) bool {
		return s.EpisodeID == ep.ID && s.PlayState == domain.StatePlaying
	}, "playing "+ep.ID)
	return conn
}

// === Tests ===

func TestLoadThenReadyPlaysAndLogsHistory(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)

	require.NoError(t, c.LoadEpisode(context.Background(), ep1))
	s := c.Session()
	assert.Equal(t, domain.StateBuffering, s.PlayState)
	assert.Equal(t, "e1", s.EpisodeID)

	conn := eng.last()
	conn.emit(domain.EngineEvent{Kind: domain.EventReady, Generation: conn.lastLoad().Generation, Duration: 299})
	s = waitSession(t, c, func(s domain.Session) bool { return s.PlayState == domain.StatePlaying }, "playing")
	assert.Equal(t, 299.0, s.DurationSeconds)

	require.Eventually(t, func() bool { return len(history(t, st)) == 1 }, time.Second, 5*time.Millisecond)
	h := history(t, st)[0]
	assert.Equal(t, "e1", h.EpisodeID)
	assert.Equal(t, "p1", h.PodcastID)
	assert.Equal(t, "One", h.Title)
}

func TestSupersededLoadDiscardsStaleReady(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)
	ctx := context.Background()

	require.NoError(t, c.LoadEpisode(ctx, ep1))
	conn := eng.last()
	gen1 := conn.lastLoad().Generation
	require.NoError(t, c.LoadEpisode(ctx, ep2))
	gen2 := conn.lastLoad().Generation
	require.Greater(t, gen2, gen1)

	conn.emit(domain.EngineEvent{Kind: domain.EventReady, Generation: gen1, Duration: 300})
	conn.emit(domain.EngineEvent{Kind: domain.EventPositionChanged, Generation: gen1, Position: 12})
	conn.emit(domain.EngineEvent{Kind: domain.EventReady, Generation: gen2, Duration: 600})

	s := waitSession(t, c, func(s domain.Session) bool { return s.PlayState == domain.StatePlaying }, "playing")
	assert.Equal(t, "e2", s.EpisodeID)
	assert.Equal(t, 600.0, s.DurationSeconds)
	assert.Zero(t, s.PositionSeconds)

	require.Eventually(t, func() bool { return len(history(t, st)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	entries := history(t, st)
	require.Len(t, entries, 1, "exactly one ready-triggered insert")
	assert.Equal(t, "e2", entries[0].EpisodeID)
}

func TestHistoryDebounceAndMonotonicTimestamps(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts := testOptions()
	opts.Now = clk.Now
	c := startCoordinator(t, eng, st, opts)
	waitConnected(t, c)

	loadReady(t, c, eng, ep1)
	clk.Advance(2 * time.Second)
	loadReady(t, c, eng, ep1)

	require.Eventually(t, func() bool { return len(history(t, st)) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, history(t, st), 1, "reload inside the debounce window is not logged")

	clk.Advance(10 * time.Second)
	loadReady(t, c, eng, ep1)
	// Clock goes backwards; timestamps must not
	clk.Advance(-time.Hour)
	loadReady(t, c, eng, ep2)

	require.Eventually(t, func() bool { return len(history(t, st)) == 3 }, time.Second, 5*time.Millisecond)
	entries := history(t, st)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].TimestampMillis, entries[i-1].TimestampMillis)
	}
	assert.Equal(t, "e2", entries[2].EpisodeID)
}

func TestHistoryDebounceForgetsExpiredEpisodes(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts := testOptions()
	opts.Now = clk.Now
	c := startCoordinator(t, eng, st, opts)
	ctx := context.Background()
	waitConnected(t, c)

	tracked := func() int {
		var n int
		require.NoError(t, c.do(ctx, func() error {
			n = len(c.history.logged)
			return nil
		}))
		return n
	}

	for i := 0; i < 5; i++ {
		ep := ep1
		ep.ID = fmt.Sprintf("e%d", i+10)
		loadReady(t, c, eng, ep)
		assert.Equal(t, 1, tracked(), "only episodes inside the debounce window are remembered")
		clk.Advance(c.opts.HistoryDebounce)
	}

	// Two plays inside one window are both remembered
	loadReady(t, c, eng, ep1)
	clk.Advance(time.Second)
	loadReady(t, c, eng, ep2)
	assert.Equal(t, 2, tracked())

	require.Eventually(t, func() bool { return len(history(t, st)) == 7 }, time.Second, 5*time.Millisecond)
}

func TestSetSpeedValidation(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()

	for _, bad := range []float64{0, 5, -1, math.NaN()} {
		err := c.SetSpeed(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSpeed, "speed %v", bad)
	}
	assert.Equal(t, 1.0, c.Session().Speed)

	waitConnected(t, c)
	conn := loadReady(t, c, eng, ep1)
	require.NoError(t, c.SetSpeed(ctx, 1.5))
	assert.Equal(t, 1.5, c.Session().Speed)
	assert.Contains(t, conn.sent(), "speed:1.5")
	assert.NotContains(t, conn.sent(), "speed:5")

	require.Eventually(t, func() bool {
		speed, ok := st.Speed()
		return ok && speed == 1.5
	}, time.Second, 5*time.Millisecond)

	// Sticky across loads
	require.NoError(t, c.LoadEpisode(ctx, ep2))
	assert.Equal(t, 1.5, conn.lastLoad().Speed)
}

func TestStickySpeedSurvivesRestart(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveSpeed(2))

	c := startCoordinator(t, &fakeEngine{}, st, testOptions())
	waitSession(t, c, func(s domain.Session) bool { return s.Speed == 2 }, "restored speed")
}

func TestSeek(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	assert.ErrorIs(t, c.Seek(ctx, 10), domain.ErrInvalidSeekTarget, "nothing loaded")

	conn := loadReady(t, c, eng, ep1)
	assert.ErrorIs(t, c.Seek(ctx, math.NaN()), domain.ErrInvalidSeekTarget)
	assert.ErrorIs(t, c.Seek(ctx, math.Inf(1)), domain.ErrInvalidSeekTarget)

	require.NoError(t, c.Seek(ctx, -5))
	assert.Equal(t, 0.0, c.Session().PositionSeconds)
	require.NoError(t, c.Seek(ctx, 1000))
	assert.Equal(t, 300.0, c.Session().PositionSeconds)
	require.NoError(t, c.Seek(ctx, 42))
	assert.Equal(t, []string{"seek:0", "seek:300", "seek:42"}, conn.sent())

	require.Eventually(t, func() bool {
		p, ok := st.GetProgress("e1")
		return ok && p.PositionSeconds == 42
	}, time.Second, 5*time.Millisecond)
}

func TestPauseResume(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	// Nothing loaded: both are no-ops
	require.NoError(t, c.Pause(ctx))
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, domain.StateStopped, c.Session().PlayState)

	conn := loadReady(t, c, eng, ep1)
	conn.emit(domain.EngineEvent{Kind: domain.EventPositionChanged, Generation: conn.lastLoad().Generation, Position: 17})
	waitSession(t, c, func(s domain.Session) bool { return s.PositionSeconds == 17 }, "position")

	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, domain.StatePaused, c.Session().PlayState)
	require.NoError(t, c.Pause(ctx))
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, domain.StatePlaying, c.Session().PlayState)
	assert.Equal(t, []string{"pause", "play"}, conn.sent())

	require.Eventually(t, func() bool {
		p, ok := st.GetProgress("e1")
		return ok && p.PositionSeconds == 17
	}, time.Second, 5*time.Millisecond, "pause persists progress")
}

func TestPauseResumeIgnoredWhileBuffering(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	require.NoError(t, c.LoadEpisode(ctx, ep1))
	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, domain.StateBuffering, c.Session().PlayState)
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, domain.StateBuffering, c.Session().PlayState)

	conn := eng.last()
	conn.emit(domain.EngineEvent{Kind: domain.EventReady, Generation: conn.lastLoad().Generation})

	waitSession(t, c, func(s domain.Session) bool { return s.PlayState == domain.StatePlaying }, "playing after ready")
	assert.Empty(t, conn.sent())
	assert.Equal(t, 1, conn.loadCount())
}

func TestEndedStopsAndResetsProgress(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	require.NoError(t, c.Seek(ctx, 100))
	conn.emit(domain.EngineEvent{Kind: domain.EventEnded, Generation: conn.lastLoad().Generation})

	s := waitSession(t, c, func(s domain.Session) bool { return s.PlayState == domain.StateStopped }, "stopped")
	assert.Equal(t, 300.0, s.PositionSeconds)
	assert.NoError(t, s.Err)
	require.Eventually(t, func() bool {
		p, ok := st.GetProgress("e1")
		return ok && p.PositionSeconds == 0
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, c.Seek(ctx, 10), domain.ErrInvalidSeekTarget, "seek while stopped")

	// Stopped: pause and resume do nothing
	require.NoError(t, c.Resume(ctx))
	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, domain.StateStopped, c.Session().PlayState)
	assert.Equal(t, 1, conn.loadCount())
	assert.Empty(t, conn.sent())
}

func TestEngineErrorStopsWithError(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)

	require.NoError(t, c.LoadEpisode(context.Background(), ep1))
	conn := eng.last()
	conn.emit(domain.EngineEvent{
		Kind:       domain.EventError,
		Generation: conn.lastLoad().Generation,
		Err:        &domain.EngineError{Kind: domain.EngineUnsupportedMedia, Op: "load"},
	})

	s := waitSession(t, c, func(s domain.Session) bool { return s.PlayState == domain.StateStopped }, "stopped")
	assert.ErrorIs(t, s.Err, domain.ErrUnsupportedMedia)
	assert.Empty(t, history(t, st))
}

func TestReconnectResyncsFromEngine(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	require.NoError(t, c.Seek(ctx, 100))

	eng.set(func(e *fakeEngine) {
		e.status = domain.EngineStatus{Loaded: true, MediaURL: ep1.AudioURL, Position: 105, Duration: 300, Speed: 1}
	})
	conn.disconnect()

	s := waitSession(t, c, func(s domain.Session) bool {
		return s.Connection == domain.ConnConnected && s.PositionSeconds == 105
	}, "resynced")
	assert.Equal(t, "e1", s.EpisodeID)
	assert.Equal(t, domain.StatePlaying, s.PlayState)
	assert.Equal(t, 2, eng.calls())

	// Events from the replacement connection carry no load generation
	next := eng.last()
	next.emit(domain.EngineEvent{Kind: domain.EventPositionChanged, Position: 110})
	waitSession(t, c, func(s domain.Session) bool { return s.PositionSeconds == 110 }, "adopted events")
}

func TestReconnectWithoutMediaKeepsEpisodeWithoutAutoplay(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	require.NoError(t, c.Seek(ctx, 80))
	conn.disconnect()

	s := waitSession(t, c, func(s domain.Session) bool {
		return s.Connection == domain.ConnConnected && s.PlayState == domain.StatePaused
	}, "restored paused")
	assert.Equal(t, 80.0, s.PositionSeconds)

	next := eng.last()
	assert.Zero(t, next.loadCount())
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, 80.0, next.lastLoad().StartAt)
}

func TestReconnectExhaustionStopsWithConnectionLost(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	eng.set(func(e *fakeEngine) { e.failAll = true })
	conn.disconnect()

	s := waitSession(t, c, func(s domain.Session) bool {
		return s.PlayState == domain.StateStopped && s.Err != nil
	}, "terminal stop")
	assert.ErrorIs(t, s.Err, domain.ErrConnectionLost)
	assert.Equal(t, domain.ConnDisconnected, s.Connection)
	assert.Equal(t, 1+DefaultReconnectAttempts, eng.calls())

	// The coordinator keeps serving; a new intent starts a fresh cycle
	eng.set(func(e *fakeEngine) { e.failAll = false })
	require.NoError(t, c.LoadEpisode(context.Background(), ep1))
	waitConnected(t, c)
	require.Eventually(t, func() bool { return eng.last().loadCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "e1", eng.last().lastLoad().Episode.ID)
}

func TestLoadWhileDisconnectedIsSentAfterConnect(t *testing.T) {
	eng := &fakeEngine{failNext: 2}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())

	require.NoError(t, c.LoadEpisode(context.Background(), ep2))
	waitConnected(t, c)
	require.Eventually(t, func() bool { return eng.last().loadCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "e2", eng.last().lastLoad().Episode.ID)
	assert.Equal(t, domain.StateBuffering, c.Session().PlayState)
}

func TestColdStartRestoresWithoutAutoplay(t *testing.T) {
	st := newTestStore(t)
	_, err := st.InsertHistory(domain.HistoryEntry{ID: "h1", EpisodeID: "e2", TimestampMillis: 1000})
	require.NoError(t, err)
	require.NoError(t, st.SaveProgress(domain.Progress{EpisodeID: "e2", PositionSeconds: 42}))

	eng := &fakeEngine{}
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)

	s := c.Session()
	assert.Equal(t, "e2", s.EpisodeID)
	assert.Equal(t, domain.StatePaused, s.PlayState)
	assert.Equal(t, 42.0, s.PositionSeconds)
	assert.Zero(t, eng.last().loadCount())

	require.NoError(t, c.Resume(context.Background()))
	assert.Equal(t, 42.0, eng.last().lastLoad().StartAt)
}

func TestReselectResumesFromProgressThenBookmark(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	require.NoError(t, st.UpsertBookmark(domain.Bookmark{ID: "b1", EpisodeID: "e2", PositionSeconds: 77, CreatedAt: time.Now()}))
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	loadReady(t, c, eng, ep1)
	require.NoError(t, c.Seek(ctx, 50))
	require.Eventually(t, func() bool {
		p, ok := st.GetProgress("e1")
		return ok && p.PositionSeconds == 50
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.LoadEpisode(ctx, ep2))
	assert.Equal(t, 77.0, eng.last().lastLoad().StartAt, "no progress, latest bookmark")

	require.NoError(t, c.LoadEpisode(ctx, ep1))
	assert.Equal(t, 50.0, eng.last().lastLoad().StartAt)
	assert.Equal(t, 50.0, c.Session().PositionSeconds)
}

func TestBookmarks(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	ctx := context.Background()
	waitConnected(t, c)

	_, err := c.AddBookmark(ctx, "nothing")
	assert.ErrorIs(t, err, ErrNothingLoaded)

	loadReady(t, c, eng, ep1)
	require.NoError(t, c.Seek(ctx, 42))
	b, err := c.AddBookmark(ctx, "intro")
	require.NoError(t, err)
	assert.Equal(t, 42.0, b.PositionSeconds)
	assert.Equal(t, "intro", b.Label)
	assert.NotEmpty(t, b.ID)

	stored, err := st.GetBookmark(b.ID)
	require.NoError(t, err, "durable on return")
	assert.Equal(t, "e1", stored.EpisodeID)

	require.NoError(t, c.RemoveBookmark(ctx, b.ID))
	assert.ErrorIs(t, c.RemoveBookmark(ctx, b.ID), domain.ErrNotFound)
}

func TestPositionUpdatesAreThrottled(t *testing.T) {
	const interval = 100 * time.Millisecond
	eng := &fakeEngine{}
	st := newTestStore(t)
	opts := testOptions()
	opts.ThrottleInterval = interval
	c := startCoordinator(t, eng, st, opts)
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	sub := c.Sessions()
	defer sub.Close()
	<-sub.C()

	// Positions arrive every 5ms for about half a second
	const last = 100
	gen := conn.lastLoad().Generation
	go func() {
		for i := 1; i <= last; i++ {
			conn.emit(domain.EngineEvent{Kind: domain.EventPositionChanged, Generation: gen, Position: float64(i)})
			time.Sleep(5 * time.Millisecond)
		}
	}()

	var received []time.Time
	deadline := time.After(3 * time.Second)
	for done := false; !done; {
		select {
		case s := <-sub.C():
			received = append(received, time.Now())
			done = s.PositionSeconds == last
		case <-deadline:
			t.Fatal("trailing position never published")
		}
	}

	require.GreaterOrEqual(t, len(received), 3)
	assert.LessOrEqual(t, len(received), 10)
	for i := 1; i < len(received); i++ {
		gap := received[i].Sub(received[i-1])
		assert.GreaterOrEqual(t, gap, interval*8/10, "update %d followed the previous one after %v", i, gap)
	}
}

func TestCloseSavesProgressAndReleasesConnection(t *testing.T) {
	eng := &fakeEngine{}
	st := newTestStore(t)
	c := startCoordinator(t, eng, st, testOptions())
	waitConnected(t, c)

	conn := loadReady(t, c, eng, ep1)
	conn.emit(domain.EngineEvent{Kind: domain.EventPositionChanged, Generation: conn.lastLoad().Generation, Position: 33})
	waitSession(t, c, func(s domain.Session) bool { return s.PositionSeconds == 33 }, "position")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	p, ok := st.GetProgress("e1")
	require.True(t, ok)
	assert.Equal(t, 33.0, p.PositionSeconds)

	_, open := <-conn.events
	assert.False(t, open, "connection closed")
	assert.ErrorIs(t, c.Pause(context.Background()), domain.ErrClosed)
}

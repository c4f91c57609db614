// Package playback owns the single playback session. Every mutation runs on
// one owner goroutine; callers talk to it through the inbox.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/observe"
)

// ErrNothingLoaded is returned by intents that need a current episode
var ErrNothingLoaded = errors.New("no episode loaded")

const (
	DefaultHistoryDebounce   = 5 * time.Second
	DefaultThrottleInterval  = 500 * time.Millisecond
	DefaultProgressInterval  = 15 * time.Second
	DefaultReconnectAttempts = 5
	DefaultReconnectMin      = time.Second
	DefaultReconnectMax      = 16 * time.Second
	DefaultCommandTimeout    = 5 * time.Second

	maxSpeed     = 4.0
	inboxSize    = 64
	writeBacklog = 256
)

// Options tunes the coordinator. Zero values take the defaults above.
type Options struct {
	HistoryDebounce   time.Duration
	ThrottleInterval  time.Duration
	ProgressInterval  time.Duration
	ReconnectAttempts int
	ReconnectMin      time.Duration
	ReconnectMax      time.Duration
	CommandTimeout    time.Duration // per engine call and per connect attempt
	Now               func() time.Time
}

func (o Options) withDefaults() Options {
	if o.HistoryDebounce <= 0 {
		o.HistoryDebounce = DefaultHistoryDebounce
	}
	if o.ThrottleInterval <= 0 {
		o.ThrottleInterval = DefaultThrottleInterval
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = DefaultProgressInterval
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = DefaultReconnectAttempts
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = DefaultReconnectMin
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = DefaultReconnectMax
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Coordinator is the single owner of the playback session
type Coordinator struct {
	engine domain.Engine
	store  domain.Store
	logger *slog.Logger
	opts   Options

	session *observe.Value[domain.Session]
	inbox   chan func()
	writes  chan write

	ctx        context.Context
	cancel     context.CancelFunc
	startOnce  sync.Once
	closeOnce  sync.Once
	started    chan struct{}
	done       chan struct{} // closed when the owner loop has exited
	writerDone chan struct{}

	// Owned by the loop goroutine
	sess       domain.Session
	episode    domain.Episode
	speed      float64
	loadGen    uint64
	adopted    bool // current media was found already playing after a reconnect
	needsLoad  bool // session restored for display; engine has nothing loaded
	pending    *domain.LoadRequest
	conn       domain.EngineConn
	connGen    uint64
	connecting bool

	history historyState

	lastPublish time.Time
	positionDue bool
	flushArmed  bool
}

// NewCoordinator creates a coordinator. Nothing runs until Start.
func NewCoordinator(engine domain.Engine, store domain.Store, opts Options, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		engine:     engine,
		store:      store,
		logger:     logger,
		opts:       opts.withDefaults(),
		session:    observe.NewValueWith(domain.Session{Speed: 1}),
		inbox:      make(chan func(), inboxSize),
		writes:     make(chan write, writeBacklog),
		started:    make(chan struct{}),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		speed:      1,
		history:    historyState{logged: make(map[string]time.Time)},
	}
}

// Start restores the last session for display, begins connecting to the
// engine and runs the owner loop until Close or ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.ctx, c.cancel = context.WithCancel(ctx)
		close(c.started)
		go c.writer()
		go c.run()
	})
}

// Close stops the owner loop, persists the final position and releases
// the engine connection. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		select {
		case <-c.started:
			c.cancel()
			<-c.done
		default:
			c.session.Close()
		}
	})
	return nil
}

// Session returns the latest session snapshot
func (c *Coordinator) Session() domain.Session {
	s, _ := c.session.Get()
	return s
}

// Sessions subscribes to session snapshots
func (c *Coordinator) Sessions() *observe.Subscription[domain.Session] {
	return c.session.Subscribe()
}

func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.opts.ProgressInterval)
	defer ticker.Stop()

	if speed, ok := c.store.Speed(); ok && validSpeed(speed) {
		c.speed = speed
	}
	c.sess.Speed = c.speed
	c.history.seed(c.store)
	c.restore()
	c.ensureConnected(false)
	c.publish()

	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case fn := <-c.inbox:
			fn()
		case <-ticker.C:
			if c.sess.PlayState == domain.StatePlaying {
				c.saveProgress(c.sess.PositionSeconds)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	// Settle queued messages; a connection handed over now is closed below
	for drained := false; !drained; {
		select {
		case fn := <-c.inbox:
			fn()
		default:
			drained = true
		}
	}

	if c.sess.Loaded() && !c.needsLoad && c.sess.PlayState != domain.StateStopped {
		c.saveProgress(c.sess.PositionSeconds)
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close engine connection", "error", err)
		}
		c.conn = nil
	}
	close(c.writes)
	<-c.writerDone
	c.session.Close()
	c.logger.Info("playback coordinator stopped")
}

// do runs fn on the owner goroutine and waits for its result
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- fn() }:
	case <-c.done:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return domain.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// send queues fn for the owner goroutine. Returns false after shutdown.
func (c *Coordinator) send(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// publish emits the session immediately
func (c *Coordinator) publish() {
	c.lastPublish = time.Now()
	c.positionDue = false
	c.session.Set(c.sess)
}

// publishPosition emits position-only changes at most once per throttle
// interval. The last change inside a window is emitted when it closes.
func (c *Coordinator) publishPosition() {
	since := time.Since(c.lastPublish)
	if since >= c.opts.ThrottleInterval {
		c.publish()
		return
	}
	c.positionDue = true
	if c.flushArmed {
		return
	}
	c.flushArmed = true
	time.AfterFunc(c.opts.ThrottleInterval-since, func() {
		c.send(func() {
			c.flushArmed = false
			if c.positionDue {
				c.publish()
			}
		})
	})
}

func (c *Coordinator) engineContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, c.opts.CommandTimeout)
}

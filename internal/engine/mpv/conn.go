package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

const (
	eventBuffer    = 64
	maxMessageSize = 1 << 20

	observeTimePos  = 1
	observeDuration = 2
)

// request is one IPC command line
type request struct {
	Command   []interface{} `json:"command"`
	RequestID int64         `json:"request_id"`
}

// message is either a command reply or an event
type message struct {
	RequestID       int64           `json:"request_id"`
	Error           string          `json:"error"`
	Data            json.RawMessage `json:"data"`
	Event           string          `json:"event"`
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Reason          string          `json:"reason"`
	FileError       string          `json:"file_error"`
	PlaylistEntryID int64           `json:"playlist_entry_id"`
}

type reply struct {
	data json.RawMessage
	err  error
}

type pendingRequest struct {
	ch  chan reply
	gen uint64 // load generation, loadfile only
}

// Conn is one IPC connection. It implements domain.EngineConn.
type Conn struct {
	nc     net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	nextID     int64
	pending    map[int64]*pendingRequest
	latestGen  uint64            // generation of the most recent Load
	entryGens  map[int64]uint64  // playlist entry -> generation
	currentGen uint64            // generation of the file being played
	duration   float64

	events    chan domain.EngineEvent
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(nc net.Conn, logger *slog.Logger) *Conn {
	c := &Conn{
		nc:        nc,
		logger:    logger,
		pending:   make(map[int64]*pendingRequest),
		entryGens: make(map[int64]uint64),
		events:    make(chan domain.EngineEvent, eventBuffer),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// observe subscribes to the properties we turn into events
func (c *Conn) observe(ctx context.Context) error {
	if _, err := c.command(ctx, 0, "observe_property", observeTimePos, "time-pos"); err != nil {
		return err
	}
	_, err := c.command(ctx, 0, "observe_property", observeDuration, "duration")
	return err
}

func (c *Conn) Events() <-chan domain.EngineEvent { return c.events }

// Close drops the connection. The player keeps running.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.nc.Close()
	})
	return err
}

// Load replaces the current file. Speed and start position apply to this
// file only.
func (c *Conn) Load(ctx context.Context, req domain.LoadRequest) error {
	if req.Speed > 0 {
		if err := c.setProperty(ctx, "speed", req.Speed); err != nil {
			return err
		}
	}
	start := "none"
	if req.StartAt > 0 {
		start = strconv.FormatFloat(req.StartAt, 'f', 3, 64)
	}
	if err := c.setProperty(ctx, "start", start); err != nil {
		return err
	}
	if err := c.setProperty(ctx, "pause", false); err != nil {
		return err
	}

	c.mu.Lock()
	c.latestGen = req.Generation
	c.mu.Unlock()

	_, err := c.command(ctx, req.Generation, "loadfile", req.Episode.AudioURL, "replace")
	if err != nil {
		var ee *domain.EngineError
		if errors.As(err, &ee) && ee.Kind == domain.EngineInternal {
			return &domain.EngineError{Kind: domain.EngineUnsupportedMedia, Op: "load", Err: ee.Err}
		}
	}
	return err
}

func (c *Conn) Play(ctx context.Context) error {
	return c.setProperty(ctx, "pause", false)
}

func (c *Conn) Pause(ctx context.Context) error {
	return c.setProperty(ctx, "pause", true)
}

func (c *Conn) Seek(ctx context.Context, positionSeconds float64) error {
	_, err := c.command(ctx, 0, "seek", positionSeconds, "absolute")
	return err
}

func (c *Conn) SetSpeed(ctx context.Context, multiplier float64) error {
	return c.setProperty(ctx, "speed", multiplier)
}

// Status reads the player's current state. An idle player reports
// Loaded=false.
func (c *Conn) Status(ctx context.Context) (domain.EngineStatus, error) {
	var st domain.EngineStatus

	data, err := c.command(ctx, 0, "get_property", "path")
	if err != nil {
		var ee *domain.EngineError
		if errors.As(err, &ee) && ee.Kind == domain.EngineInternal {
			return st, nil // property unavailable: nothing loaded
		}
		return st, err
	}
	if err := json.Unmarshal(data, &st.MediaURL); err != nil || st.MediaURL == "" {
		return st, nil
	}
	st.Loaded = true

	// Best effort: these are unavailable while a file is still opening
	c.getFloat(ctx, "time-pos", &st.Position)
	c.getFloat(ctx, "duration", &st.Duration)
	c.getFloat(ctx, "speed", &st.Speed)
	if data, err := c.command(ctx, 0, "get_property", "pause"); err == nil {
		json.Unmarshal(data, &st.Paused)
	}
	return st, nil
}

func (c *Conn) getFloat(ctx context.Context, name string, dest *float64) {
	data, err := c.command(ctx, 0, "get_property", name)
	if err != nil {
		return
	}
	json.Unmarshal(data, dest)
}

func (c *Conn) setProperty(ctx context.Context, name string, value interface{}) error {
	_, err := c.command(ctx, 0, "set_property", name, value)
	return err
}

// command sends one request and waits for its reply
func (c *Conn) command(ctx context.Context, gen uint64, args ...interface{}) (json.RawMessage, error) {
	op := fmt.Sprint(args[0])

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	p := &pendingRequest{ch: make(chan reply, 1), gen: gen}
	c.pending[id] = p
	c.mu.Unlock()

	unregister := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	line, err := json.Marshal(request{Command: args, RequestID: id})
	if err != nil {
		unregister()
		return nil, &domain.EngineError{Kind: domain.EngineInternal, Op: op, Err: err}
	}
	line = append(line, '\n')

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		c.nc.SetWriteDeadline(deadline)
	} else {
		c.nc.SetWriteDeadline(time.Time{})
	}
	_, err = c.nc.Write(line)
	c.writeMu.Unlock()
	if err != nil {
		unregister()
		return nil, &domain.EngineError{Kind: domain.EngineConnectionLost, Op: op, Err: err}
	}

	select {
	case r := <-p.ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.data, nil
	case <-ctx.Done():
		unregister()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domain.EngineError{Kind: domain.EngineConnectionLost, Op: op, Err: ctx.Err()}
		}
		return nil, ctx.Err()
	case <-c.done:
		return nil, &domain.EngineError{Kind: domain.EngineConnectionLost, Op: op, Err: net.ErrClosed}
	}
}

// readLoop owns the events channel and closes it when the socket ends
func (c *Conn) readLoop() {
	defer close(c.events)

	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Warn("unparseable engine message", "error", err)
			continue
		}
		if msg.Event != "" {
			c.handleEvent(msg)
			continue
		}
		c.handleReply(msg)
	}

	err := scanner.Err()
	c.logger.Debug("engine socket closed", "error", err)
	c.failPending(err)

	select {
	case <-c.done:
		// Closed by us; nobody is waiting for the disconnect
	default:
		c.Close()
		c.events <- domain.EngineEvent{
			Kind: domain.EventDisconnected,
			Err:  &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "read", Err: err},
		}
	}
}

func (c *Conn) failPending(cause error) {
	if cause == nil {
		cause = net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, p := range c.pending {
		p.ch <- reply{err: &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "read", Err: cause}}
		delete(c.pending, id)
	}
}

func (c *Conn) handleReply(msg message) {
	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	delete(c.pending, msg.RequestID)
	if ok && p.gen != 0 && msg.Error == "success" {
		var entry struct {
			PlaylistEntryID int64 `json:"playlist_entry_id"`
		}
		if json.Unmarshal(msg.Data, &entry) == nil && entry.PlaylistEntryID != 0 {
			c.entryGens[entry.PlaylistEntryID] = p.gen
		}
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if msg.Error != "success" {
		p.ch <- reply{err: &domain.EngineError{Kind: domain.EngineInternal, Op: "command", Err: errors.New(msg.Error)}}
		return
	}
	p.ch <- reply{data: msg.Data}
}

func (c *Conn) handleEvent(msg message) {
	c.mu.Lock()
	var ev *domain.EngineEvent
	switch msg.Event {
	case "start-file":
		c.duration = 0
		c.currentGen = c.latestGen
		if gen, ok := c.entryGens[msg.PlaylistEntryID]; ok {
			c.currentGen = gen
		}
	case "file-loaded":
		ev = &domain.EngineEvent{Kind: domain.EventReady, Generation: c.currentGen, Duration: c.duration}
	case "property-change":
		var v *float64
		if json.Unmarshal(msg.Data, &v) != nil || v == nil {
			break // null while idle
		}
		switch msg.ID {
		case observeDuration:
			c.duration = *v
		case observeTimePos:
			ev = &domain.EngineEvent{Kind: domain.EventPositionChanged, Generation: c.currentGen, Position: *v, Duration: c.duration}
		}
	case "end-file":
		gen := c.currentGen
		if g, ok := c.entryGens[msg.PlaylistEntryID]; ok {
			gen = g
			delete(c.entryGens, msg.PlaylistEntryID)
		}
		switch msg.Reason {
		case "eof":
			ev = &domain.EngineEvent{Kind: domain.EventEnded, Generation: gen}
		case "error":
			ev = &domain.EngineEvent{
				Kind:       domain.EventError,
				Generation: gen,
				Err:        &domain.EngineError{Kind: domain.EngineUnsupportedMedia, Op: "play", Err: errors.New(msg.FileError)},
			}
		}
	}
	c.mu.Unlock()

	if ev == nil {
		return
	}
	if ev.Kind == domain.EventPositionChanged {
		// Positions are superseded by the next one; never stall the reader
		select {
		case c.events <- *ev:
		default:
		}
		return
	}
	select {
	case c.events <- *ev:
	case <-c.done:
	}
}

// Package mpv drives a long-lived mpv process over its JSON IPC socket.
package mpv

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
)

const dialRetryInterval = 50 * time.Millisecond

// Engine implements domain.Engine. When a launcher is set and nothing
// answers on the socket, a new mpv is started.
type Engine struct {
	socket   string
	launcher *Launcher
	logger   *slog.Logger
}

// NewEngine creates an engine for socket. launcher may be nil to only
// attach to an already running player.
func NewEngine(socket string, launcher *Launcher, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if socket == "" {
		socket = DefaultSocket()
	}
	return &Engine{socket: socket, launcher: launcher, logger: logger}
}

// Connect attaches to the player, starting it first if needed
func (e *Engine) Connect(ctx context.Context) (domain.EngineConn, error) {
	nc, err := e.dial(ctx)
	if err != nil && e.launcher != nil {
		e.logger.Debug("engine not answering, launching", "socket", e.socket, "error", err)
		if err := e.launcher.Start(ctx); err != nil {
			return nil, &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "launch", Err: err}
		}
		nc, err = e.waitDial(ctx)
	}
	if err != nil {
		return nil, &domain.EngineError{Kind: domain.EngineConnectionLost, Op: "connect", Err: err}
	}

	conn := newConn(nc, e.logger)
	if err := conn.observe(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	e.logger.Info("attached to engine", "socket", e.socket)
	return conn, nil
}

func (e *Engine) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", e.socket)
}

// waitDial polls the socket until the freshly started player binds it
func (e *Engine) waitDial(ctx context.Context) (net.Conn, error) {
	ticker := time.NewTicker(dialRetryInterval)
	defer ticker.Stop()
	for {
		nc, err := e.dial(ctx)
		if err == nil {
			return nc, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), err)
		case <-ticker.C:
		}
	}
}

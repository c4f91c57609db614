package mpv

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

const DefaultCommand = "mpv"

// DefaultSocket is where the background mpv listens unless configured
func DefaultSocket() string {
	return filepath.Join(os.TempDir(), "podcastapp-mpv.sock")
}

// Launcher starts a detached mpv that keeps playing after we exit
type Launcher struct {
	command string   // player command, "mpv" when empty
	args    []string // additional arguments for the player
	socket  string
	logger  *slog.Logger
}

// NewLauncher creates a Launcher for an idle mpv serving socket
func NewLauncher(command string, args []string, socket string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if command == "" {
		command = DefaultCommand
	}
	return &Launcher{command: command, args: args, socket: socket, logger: logger}
}

// commandArgs returns the full argument list. User args come last so they
// can override the defaults.
func (l *Launcher) commandArgs() []string {
	args := []string{
		"--idle=yes",
		"--no-video",
		"--no-terminal",
		"--force-window=no",
		"--input-ipc-server=" + l.socket,
	}
	return append(args, l.args...)
}

// Start spawns the player. It does not wait for the socket.
func (l *Launcher) Start(ctx context.Context) error {
	// Check if command exists in PATH
	path, err := exec.LookPath(l.command)
	if err != nil {
		return fmt.Errorf("player %q not found: %w", l.command, err)
	}

	// A stale socket file from a dead player would make mpv fail to bind
	if err := os.Remove(l.socket); err != nil && !os.IsNotExist(err) {
		l.logger.Debug("could not remove stale socket", "socket", l.socket, "error", err)
	}

	args := l.commandArgs()
	l.logger.Info("launching player", "command", path, "args", args)

	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil { // Start async, don't wait
		return fmt.Errorf("failed to start player: %w", err)
	}
	// The engine outlives this process
	return cmd.Process.Release()
}

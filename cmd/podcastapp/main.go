package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/herbie30/PODCASTAPP/internal/catalog/itunes"
	"github.com/herbie30/PODCASTAPP/internal/config"
	"github.com/herbie30/PODCASTAPP/internal/engine/mpv"
	"github.com/herbie30/PODCASTAPP/internal/library"
	"github.com/herbie30/PODCASTAPP/internal/log"
	"github.com/herbie30/PODCASTAPP/internal/playback"
	"github.com/herbie30/PODCASTAPP/internal/service"
	"github.com/herbie30/PODCASTAPP/internal/store"
	"github.com/herbie30/PODCASTAPP/internal/tui"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
		headless    bool
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.BoolVar(&headless, "headless", false, "run without the terminal UI")
	flag.Parse()

	if showVersion {
		fmt.Printf("podcastapp %s\n", Version)
		return
	}

	// No terminal to draw on: keep the session alive without the UI
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		headless = true
	}

	if err := run(configPath, headless); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, headless bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := log.Setup(cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
		logCloser = io.NopCloser(nil)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting podcastapp", "version", Version, "headless", headless)

	cacheDir, err := config.ExpandHome(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	db, err := store.NewStore(cacheDir, cfg.Catalog.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer db.Close()

	catalog := itunes.NewClient(itunes.Options{
		BaseURL:           cfg.Catalog.BaseURL,
		Country:           cfg.Catalog.Country,
		Timeout:           cfg.Catalog.Timeout,
		RequestsPerMinute: cfg.Catalog.RequestsPerMinute,
	}, logger)

	lib := library.NewService(catalog, db, library.Options{
		Staleness:     cfg.Cache.Staleness,
		RetentionDays: cfg.Cache.EpisodeRetentionDays,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := lib.PurgeExpired(ctx); err != nil {
		logger.Warn("episode retention sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("purged expired episodes", "count", n)
	}

	socket := cfg.Engine.Socket
	if socket == "" {
		socket = mpv.DefaultSocket()
	}
	launcher := mpv.NewLauncher(cfg.Engine.Command, cfg.Engine.Args, socket, logger)
	engine := mpv.NewEngine(socket, launcher, logger)

	coordinator := playback.NewCoordinator(engine, db, playback.Options{
		HistoryDebounce:   cfg.Playback.HistoryDebounce,
		ThrottleInterval:  cfg.Playback.UIRefreshInterval,
		ProgressInterval:  cfg.Playback.ProgressInterval,
		ReconnectAttempts: cfg.Playback.ReconnectAttempts,
		ReconnectMin:      cfg.Playback.ReconnectMin,
		ReconnectMax:      cfg.Playback.ReconnectMax,
		CommandTimeout:    cfg.Engine.ConnectTimeout,
	}, logger)

	repo := service.NewRepository(lib, coordinator, db, logger)
	repo.Start(ctx)
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("closing playback session", "error", err)
		}
	}()

	if headless {
		logger.Info("running headless")
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	p := tea.NewProgram(tui.NewModel(repo), tea.WithAltScreen(), tea.WithContext(ctx))

	logger.Info("starting TUI")

	final, err := p.Run()
	if m, ok := final.(tui.Model); ok {
		m.Close()
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coder/quartz"
	"github.com/lox/cardroom/internal/archive"
	"github.com/lox/cardroom/internal/config"
	"github.com/lox/cardroom/internal/game"
	"github.com/lox/cardroom/internal/randutil"
	"github.com/lox/cardroom/internal/room"
	"github.com/lox/cardroom/internal/rules/lowscore"
	"github.com/lox/cardroom/internal/server"
	"golang.org/x/sync/errgroup"
)

// ServeCmd runs the server. Flags override the config file and environment.
type ServeCmd struct {
	Config     string `kong:"short='c',default='cardroom.hcl',type='path',help='Path to the HCL config file'"`
	Addr       string `kong:"help='Listen address (host:port)'"`
	LogLevel   string `kong:"enum=',debug,info,warn,error',default='',help='Log level'"`
	LogFormat  string `kong:"enum=',text,json',default='',help='Log format'"`
	Debug      bool   `kong:"help='Enable debug logging'"`
	MaxRooms   *int   `kong:"help='Maximum concurrent rooms (0 for unlimited)'"`
	Archive    string `kong:"enum=',sqlite,file,none',default='',help='Archive driver'"`
	ArchiveDir string `kong:"name='archive-path',help='Archive database file or directory'"`
	Seed       *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

// apply layers the flags over cfg.
func (c *ServeCmd) apply(cfg *config.Config) error {
	if c.Addr != "" {
		host, port, err := net.SplitHostPort(c.Addr)
		if err != nil {
			return fmt.Errorf("invalid --addr %q: %w", c.Addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --addr port %q: %w", port, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = p
	}
	if c.LogLevel != "" {
		cfg.Server.LogLevel = c.LogLevel
	}
	if c.Debug {
		cfg.Server.LogLevel = "debug"
	}
	if c.LogFormat != "" {
		cfg.Server.LogFormat = c.LogFormat
	}
	if c.MaxRooms != nil {
		cfg.Rooms.MaxRooms = *c.MaxRooms
	}
	if c.Archive != "" {
		cfg.Archive.Driver = c.Archive
	}
	if c.ArchiveDir != "" {
		cfg.Archive.Path = c.ArchiveDir
	}
	return nil
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := c.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat, g.NoColor)
	if err != nil {
		return err
	}

	registry := game.NewRegistry()
	registry.Register(lowscore.GameType, lowscore.New)
	if !registry.Has(cfg.Defaults.GameType) {
		return fmt.Errorf("default game type %q is not registered (have %v)", cfg.Defaults.GameType, registry.Types())
	}

	rng, seed := randutil.NewTimeSeeded()
	if c.Seed != nil {
		seed = *c.Seed
		rng = randutil.New(seed)
	}
	logger.Info("Using RNG seed", "seed", seed)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(sigCtx)

	// The queue outlives ctx so games cancelled by the shutdown below are
	// still recorded.
	queueCtx, stopQueue := context.WithCancel(context.WithoutCancel(ctx))
	defer stopQueue()

	var archiver room.Archiver
	if cfg.Archive.Driver != config.ArchiveNone {
		store, err := archive.Open(cfg.Archive.Driver, cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer func() { _ = store.Close() }()

		queue := archive.NewQueue(store, cfg.Archive.QueueSize, logger)
		archiver = queue
		group.Go(func() error { return queue.Run(queueCtx) })
		logger.Info("Archiving finished games", "driver", cfg.Archive.Driver, "path", cfg.Archive.Path)
	}

	hub := server.NewHub(logger)
	rooms := room.NewManager(room.Config{
		Registry:      registry,
		Defaults:      cfg.GameSettings(),
		Clock:         quartz.NewReal(),
		Rand:          randutil.NewLocked(rng),
		Logger:        logger,
		Outbox:        hub,
		Archiver:      archiver,
		MaxRooms:      cfg.Rooms.MaxRooms,
		IdleTimeout:   cfg.IdleTimeout(),
		SweepInterval: cfg.SweepInterval(),
		AFKWarning:    cfg.AFKWarning(),
		MaxAFK:        cfg.Rooms.MaxAFK,
	})
	service := server.NewService(rooms, server.Limits{
		MaxNameLength: cfg.Limits.MaxNameLength,
		MaxChatLength: cfg.Limits.MaxChatLength,
	}, logger)
	srv := server.NewServer(hub, rooms, service, server.Config{
		MaxMessageBytes:   cfg.Limits.MaxMessageBytes,
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		AdminToken:        cfg.Server.AdminToken,
	}, logger)

	logger.Info("Starting cardroom server",
		"address", cfg.ListenAddress(),
		"game_type", cfg.Defaults.GameType,
		"max_rooms", cfg.Rooms.MaxRooms,
		"idle_timeout", cfg.IdleTimeout(),
		"admin", cfg.Server.AdminToken != "",
	)

	group.Go(func() error { return srv.Run(ctx, cfg.ListenAddress()) })
	group.Go(func() error { return rooms.Run(ctx) })
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down", "rooms", rooms.RoomCount())
		rooms.Shutdown()
		stopQueue()
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

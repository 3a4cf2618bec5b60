package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hunt-server/internal/config"
	"hunt-server/internal/dispatch"
	"hunt-server/internal/engine"
	"hunt-server/internal/infrastructure/storage"
	"hunt-server/internal/infrastructure/webhook"
	"hunt-server/internal/live/sim"
	"hunt-server/internal/network"
	"hunt-server/internal/server"
	"hunt-server/internal/version"
	"hunt-server/internal/world"
	"hunt-server/pkg/logger"
	"hunt-server/pkg/utils"

	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Парсинг конфигурации
	var (
		envFile string
		dataDir string
		port    int
		seedArg string
	)
	flag.StringVar(&envFile, "env", ".env", "Path to .env file (optional)")
	flag.StringVar(&dataDir, "data", "", "Data directory (overrides HUNT_DATA_DIR)")
	flag.IntVar(&port, "port", 0, "HTTP port (overrides HUNT_API_PORT)")
	flag.StringVar(&seedArg, "seed", "", "Seed for spawn points and loadouts: a number or any phrase (empty for random)")
	flag.Parse()

	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid configuration")
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if port != 0 {
		cfg.API.Port = port
	}

	logger.Init(cfg.Log.Level, cfg.Log.Format)
	logger.Log.Info("Starting hunt server...")
	logger.Log.Info(version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var seed int64
	if seedArg != "" {
		seed = utils.StringToSeed(seedArg)
	}
	if err := run(ctx, cfg, seed); err != nil {
		logger.Log.WithError(err).Fatal("Server stopped with error")
	}
	logger.Log.Info("Done.")
}

func run(ctx context.Context, cfg config.Config, seed int64) error {
	// 2. Контекст мира и фоновые задачи
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	queue := dispatch.NewWorldQueue(256)
	go queue.Run(queueCtx)

	bg := dispatch.NewBackground(context.Background())
	defer func() {
		bg.Shutdown()
		bg.Wait()
	}()

	live := sim.New(
		filepath.Join(cfg.DataDir, cfg.World.ContainerDir),
		sim.WithDefaultWorld(cfg.World.LobbyName),
		sim.WithAllowList(true),
	)
	if err := live.SetAllowed(ctx, cfg.StreamerName, true); err != nil {
		return err
	}

	// 3. Миры
	worlds := world.NewManager(world.Config{
		LobbyName:      cfg.World.LobbyName,
		InstancePrefix: cfg.World.InstancePrefix,
		PreloadRadius:  cfg.World.PreloadRadius,
		BorderSize:     cfg.World.BorderSize,
		UnloadSettle:   cfg.World.UnloadSettle,
	}, live, queue, bg)
	if err := worlds.Initialize(ctx); err != nil {
		return err
	}

	// 4. Оркестратор
	hub := network.NewBroadcaster()
	hud := network.NewHUDPublisher(hub, bg, cfg.Timing.HUDInterval)
	hook := webhook.New(cfg.API.WebhookURL, cfg.API.WebhookConnectTimeout, cfg.API.WebhookRequestTimeout)
	defer hook.Close()

	engineCfg := engine.NewConfig(cfg)
	if seed != 0 {
		engineCfg.Seed = seed
		logger.Log.Infof("Using explicit seed: %d", seed)
	}

	game := engine.NewService(engineCfg, engine.Deps{
		Engine:   live,
		Queue:    queue,
		Bg:       bg,
		Worlds:   worlds,
		History:  storage.NewHistoryStore(cfg.HistoryFile()),
		Notifier: engine.Notifiers{hook, hub},
		HUD:      hud,
	})
	game.Init(ctx)
	live.Subscribe(game)

	// 5. HTTP
	srv := server.New(game, hub, cfg.API.Port)
	if cfg.API.EnableDebug {
		srv.Debug = server.NewDebugHandler(game, worlds, live, hub, hud)
		logger.Log.Warn("Debug routes are enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		game.Shutdown(shutdownCtx)
		return nil
	})
	return g.Wait()
}

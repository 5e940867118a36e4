package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/suncast/suncast-agent/internal/api"
	"github.com/suncast/suncast-agent/internal/config"
	"github.com/suncast/suncast-agent/internal/db"
	"github.com/suncast/suncast-agent/internal/encoder"
	"github.com/suncast/suncast-agent/internal/imagestore"
	"github.com/suncast/suncast-agent/internal/logging"
	"github.com/suncast/suncast-agent/internal/movie"
	"github.com/suncast/suncast-agent/internal/render"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MoviesDir(), 0755); err != nil {
		return fmt.Errorf("failed to create movies dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting suncast agent",
		"version", config.Version,
		"data_dir", cfg.DataDir(),
		"port", cfg.Port(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := imagestore.NewRepository(database.Conn())

	renderer := render.NewCompositeRenderer(logging.WithComponent(logger, "render"))

	enc, err := encoder.NewSubprocessEncoder(encoder.Config{
		FFmpegPath: cfg.FFmpegPath(),
		Timeout:    cfg.EncodeTimeout(),
		Logger:     logging.WithComponent(logger, "encoder"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize encoder: %w", err)
	}

	builder := movie.NewBuilder(repo, renderer, enc, movie.Settings{
		DefaultWindow:   cfg.DefaultWindow(),
		MaxFrames:       cfg.MaxMovieFrames(),
		PlaybackSeconds: cfg.PlaybackSeconds(),
	}, cfg.MoviesDir(), logging.WithComponent(logger, "builder"))

	runner := movie.NewRunner(repo, builder, cfg.DataDir(), cfg.MinDiskFreeBytes(),
		logging.WithComponent(logger, "runner"))

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		DataDir:    cfg.DataDir(),
		Repository: repo,
		Logger:     logger,
		StartTime:  startTime,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runner.Start(gctx)
		return nil
	})

	g.Go(func() error {
		return apiServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

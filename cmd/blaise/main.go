package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/vincbro/blaise/internal/app"
	"github.com/vincbro/blaise/internal/config"
	"github.com/vincbro/blaise/internal/dataset"
	"github.com/vincbro/blaise/internal/report"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "API server port")
	flag.StringVar(&cfg.Env, "env", cfg.Env, "Environment (development|staging|production)")
	flag.StringVar(&cfg.GtfsDataPath, "gtfs-data-path", cfg.GtfsDataPath, "On-disk cache of the live GTFS archive")
	flag.IntVar(&cfg.AllocatorCount, "allocator-count", cfg.AllocatorCount, "Size of the RAPTOR scratch pool")
	gtfsURL := flag.String("gtfs-url", "", "URL of a GTFS archive to install on startup")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}

	report.SetupSentry()
	defer report.FlushSentry()
	report.ConfigureScope(cfg.Env, version)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := dataset.NewStore(dataset.Options{
		GtfsDataPath:    cfg.GtfsDataPath,
		AllocatorCount:  cfg.AllocatorCount,
		WalkSpeedMps:    cfg.WalkSpeedMps,
		FootpathRadiusM: cfg.FootpathRadiusM,
	}, logger, nil)

	// Boot from the cached archive when one exists; a remote archive wins
	// when configured.
	if *gtfsURL != "" {
		if err := store.InstallFromURL(ctx, *gtfsURL); err != nil {
			logger.Error("failed to install GTFS archive from URL", "url", *gtfsURL, "error", err)
		}
	} else if _, err := os.Stat(cfg.GtfsDataPath); err == nil {
		if err := store.InstallFromFile(ctx, cfg.GtfsDataPath); err != nil {
			logger.Error("failed to install cached GTFS archive", "path", cfg.GtfsDataPath, "error", err)
		}
	} else {
		logger.Warn("starting without a dataset; install one via POST /v1/dataset")
	}

	application := app.New(cfg, store, logger, version)
	application.StartMetricsCollection(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env)
	err = srv.ListenAndServe()
	sentry.CaptureException(err)
	report.FlushSentry()
	logger.Error(err.Error())
	os.Exit(1)
}

// Package app wires the engine together and exposes the HTTP query API.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/vincbro/blaise/internal/config"
	"github.com/vincbro/blaise/internal/dataset"
	"github.com/vincbro/blaise/internal/metrics"
)

// Application holds the dependencies for the HTTP handlers.
type Application struct {
	Config  config.Config
	Store   *dataset.Store
	Logger  *slog.Logger
	Version string
}

// New wires all dependencies for the Application.
func New(cfg config.Config, store *dataset.Store, logger *slog.Logger, version string) *Application {
	return &Application{
		Config:  cfg,
		Store:   store,
		Logger:  logger,
		Version: version,
	}
}

// StartMetricsCollection keeps the dataset age gauge current until the
// context is cancelled.
func (app *Application) StartMetricsCollection(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if age, err := app.Store.AgeSeconds(); err == nil {
					metrics.DatasetAgeSeconds.Set(float64(age))
				}
			}
		}
	}()
}

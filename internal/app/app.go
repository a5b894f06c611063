package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sehyun-p/clubsync/internal/config"
	"github.com/sehyun-p/clubsync/internal/health"
	"github.com/sehyun-p/clubsync/internal/observability"
)

// App bundles everything the serve command wires together so startup and
// shutdown live in one place.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	stopBackground func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	return &App{
		Config:         cfg,
		Logger:         logger,
		Server:         server,
		Observability:  runtime,
		Readiness:      readiness,
		stopBackground: stopBackground,
	}
}

// StopBackgroundTasks halts timers and workers that run outside the HTTP
// request path. Safe to call more than once.
func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Shutdown drains in-flight HTTP requests, stops background work and flushes
// telemetry. The context bounds the whole sequence.
func (a *App) Shutdown(ctx context.Context) error {
	a.StopBackgroundTasks()
	if err := a.Server.Shutdown(ctx); err != nil {
		return err
	}
	return a.Observability.Shutdown(ctx)
}

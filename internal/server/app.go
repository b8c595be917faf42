// Package server wires the development backend: configuration, the
// in-memory store, the HTTP API and the background maintenance loops.
package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/tacticallink/internal/clock"
	"github.com/dmitrijs2005/tacticallink/internal/logging"
	"github.com/dmitrijs2005/tacticallink/internal/server/config"
	"github.com/dmitrijs2005/tacticallink/internal/server/httpapi"
	"github.com/dmitrijs2005/tacticallink/internal/server/store"
)

const (
	purgeInterval   = time.Minute
	monitorInterval = 30 * time.Second
)

type App struct {
	config *config.Config
	logger logging.Logger
	clk    clock.Clock
	store  *store.Store
	server *httpapi.Server
}

func NewApp(c *config.Config) *App {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)
	clk := clock.Real()
	st := store.New(store.WithClock(clk))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := httpapi.NewServer(c.ListenAddr, st, logger, c.SecretKey, c.TokenTTL,
		httpapi.WithClock(clk),
		httpapi.WithAdmins(c.IsAdmin),
		httpapi.WithRegistry(reg),
	)
	return &App{config: c, logger: logger, clk: clk, store: st, server: srv}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "address", app.config.ListenAddr)
	app.initSignalHandler(cancelFunc)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(ctx)
	})
	g.Go(func() error {
		app.every(ctx, purgeInterval, app.purge)
		return nil
	})
	g.Go(func() error {
		app.every(ctx, monitorInterval, app.monitor)
		return nil
	})
	return g.Wait()
}

func (app *App) every(ctx context.Context, d time.Duration, fn func(context.Context)) {
	t := app.clk.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			fn(ctx)
		}
	}
}

func (app *App) purge(ctx context.Context) {
	if n := app.store.Purge(); n > 0 {
		app.logger.Info(ctx, "purged messages", "count", n)
	}
}

func (app *App) monitor(ctx context.Context) {
	for _, l := range app.store.MonitorActive() {
		app.logger.Warn(ctx, "high threat score", "user_id", l.UserID, "score", l.Score, "reason", l.Reason)
	}
}

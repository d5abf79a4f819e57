package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"

	"judgebench/internal/app"
	"judgebench/internal/config"
	httpSrv "judgebench/internal/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "failed to load config: %v", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "failed to start: %v", err)
	}
	defer a.Close()

	srv := httpSrv.NewServer(fmt.Sprintf(":%d", cfg.Port), a.Store, a.Runner, a.Results)
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "shutdown: %v", err)
		}
	}()

	clog.InfoContextf(ctx, "listening on %s (store=%s, concurrency=%d)", srv.Addr, cfg.Store, cfg.RunConcurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "server: %v", err)
	}
}

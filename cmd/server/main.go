package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/rpsls-backend/internal/config"
	"github.com/DoyleJ11/rpsls-backend/internal/history"
	"github.com/DoyleJ11/rpsls-backend/internal/httpapi"
	"github.com/DoyleJ11/rpsls-backend/internal/hub"
	"github.com/DoyleJ11/rpsls-backend/internal/logging"
	"github.com/DoyleJ11/rpsls-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, store.Close(), syncLogger(logger))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := history.NewRecorder(store, cfg.History.QueueSize, logger)

	// Rooms outlive ctx so shutdown can stop them in order.
	h := hub.NewHub(context.Background(), hub.Options{
		Logger:       logger,
		Sink:         recorder,
		ClaimTimeout: cfg.Rooms.ClaimTimeout,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:     h,
		History: store,
		Logger:  logger,
		WS: ws.Config{
			OutboxSize:     cfg.WS.OutboxSize,
			WriteTimeout:   cfg.WS.WriteTimeout,
			PingInterval:   cfg.WS.PingInterval,
			OriginPatterns: cfg.Server.AllowedOrigins,
			MessageRate:    cfg.WS.MessageRate,
			MessageBurst:   cfg.WS.MessageBurst,
		},
	})
	connCtx, closeConns := context.WithCancel(context.Background())
	defer closeConns()
	srv := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return connCtx },
	}
	// Hijacked websockets are not tracked by Shutdown; cancelling their base context ends them.
	srv.RegisterOnShutdown(closeConns)

	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return recorder.Run(recCtx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		shutdownErr := srv.Shutdown(sctx)
		h.Shutdown()
		stopRecorder()
		return shutdownErr
	})

	return g.Wait()
}

func openStore(cfg *config.Config, logger *zap.Logger) (history.Store, error) {
	if cfg.History.DatabaseURL == "" {
		logger.Info("match history kept in memory")
		return history.NewMemoryStore(), nil
	}
	store, err := history.OpenGorm(cfg.History.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("match history stored in postgres")
	return store, nil
}

// syncLogger ignores the EINVAL/ENOTTY zap reports when stderr is a terminal.
func syncLogger(l *zap.Logger) error {
	if err := l.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return err
	}
	return nil
}

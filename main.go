package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wanderfield/simcore/internal/config"
	"wanderfield/simcore/internal/httpapi"
	"wanderfield/simcore/internal/logging"
	"wanderfield/simcore/internal/world"
)

// shutdownGrace bounds how long in-flight HTTP requests may linger once a
// termination signal arrives.
const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("invalid configuration", logging.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Fatal("logging setup failed", logging.Error(err))
	}
	logging.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	def := world.Default()
	if cfg.WorldPath != "" {
		loaded, err := world.Load(cfg.WorldPath)
		if err != nil {
			logger.Fatal("world definition unreadable", logging.Error(err),
				logging.String("path", cfg.WorldPath))
		}
		def = loaded
	}

	server, err := NewServer(cfg, def, logger)
	if err != nil {
		logger.Fatal("server construction failed", logging.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	server.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleViewerSocket)
	registerControlDocEndpoints(mux)
	httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Readiness:   server,
		Status:      server.Status,
		Capture:     httpapi.CaptureFlusherFunc(server.FlushCaptures),
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.CaptureWindow, cfg.CaptureBurst, nil),
	}).Register(mux)

	tlsEnabled := cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsEnabled {
			errCh <- httpServer.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("simulation server listening",
		logging.String("url", listenerURL(cfg.Address, tlsEnabled)),
		logging.String("world", def.Name))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listener failed", logging.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	server.Close()
}

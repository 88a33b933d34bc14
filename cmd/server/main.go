package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/youruser/imageviewer/internal/api"
	"github.com/youruser/imageviewer/internal/bridge"
	"github.com/youruser/imageviewer/internal/config"
	imagepkg "github.com/youruser/imageviewer/internal/image"
	"github.com/youruser/imageviewer/internal/logging"
	"github.com/youruser/imageviewer/internal/metrics"
	"github.com/youruser/imageviewer/internal/ui"
	"github.com/youruser/imageviewer/internal/viewer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("invalid logging config, using defaults", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := ui.NewLoop(logger)
	go loop.Run(ctx)

	m := metrics.New(true)
	pipeline := imagepkg.New(cfg.Loader.Policy(),
		imagepkg.WithLogger(logger),
		imagepkg.WithRecorder(m),
	)

	surface := viewer.NewSurface()
	v := viewer.New(ctx, loop, pipeline, surface, viewer.Options{
		StaleGuard:   cfg.Viewer.StaleGuard,
		SingleFlight: cfg.Viewer.SingleFlight,
		Target:       cfg.Viewer.Target(),
	}, logger)

	action, err := bridge.LoadPageAction(cfg.Bridge.ScriptPath)
	if err != nil {
		return err
	}
	transport := bridge.NewTransport(loop,
		bridge.WithLogger(logger),
		bridge.WithDeliveryObserver(m.ObserveBridgeEvent),
	)
	history := bridge.NewHistory(cfg.Bridge.HistorySize)
	for _, name := range cfg.Bridge.Events {
		transport.Handle(name, history.Record)
	}
	injector := bridge.NewInjector(action, cfg.Bridge.ScriptTimeout, logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.RegisterRoutes(r, api.NewHandler(api.Deps{
		Pipeline:  pipeline,
		Viewer:    v,
		Surface:   surface,
		Transport: transport,
		Injector:  injector,
		History:   history,
		Metrics:   m,
		Logger:    logger,
	}))

	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.Int64("max_bytes", cfg.Loader.MaxBytes),
			zap.Duration("timeout", cfg.Loader.Timeout),
			zap.String("page_action", action.Name),
			zap.Strings("bridge_events", transport.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		loop.Close()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	<-loop.Done()
	return err
}

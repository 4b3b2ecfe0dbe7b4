package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ottotuhkunen/cpt-banner-generator/internal/app"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/config"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/metrics"
	"github.com/ottotuhkunen/cpt-banner-generator/internal/server"
)

func main() {
	configPath := flag.String("config", os.Getenv("BANNER_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("bannerd stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	compositor, release, err := app.NewCompositor(ctx, cfg, logger, metrics.New(reg))
	if err != nil {
		return err
	}
	defer release()

	results := server.NewResults(cfg.Server.ResultsTTL, cfg.Server.ResultsMax)
	results.StartJanitor(ctx, janitorInterval(cfg.Server.ResultsTTL), logger)

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(compositor, results, server.Options{
		PublicURL: cfg.Server.PublicURL,
		Logger:    logger,
		Gatherer:  reg,
	})
	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", cfg.Server.ListenAddress))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// janitorInterval sweeps a few times per TTL, at most once a minute.
func janitorInterval(ttl time.Duration) time.Duration {
	return min(max(ttl/4, time.Second), time.Minute)
}

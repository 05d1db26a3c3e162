// Command ensembled runs the multi-model orchestration service.
package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/omarpiose00/NeuronVault-sub003/internal/adapter"
	"github.com/omarpiose00/NeuronVault-sub003/internal/analyzer"
	"github.com/omarpiose00/NeuronVault-sub003/internal/cache"
	"github.com/omarpiose00/NeuronVault-sub003/internal/config"
	"github.com/omarpiose00/NeuronVault-sub003/internal/coordinator"
	"github.com/omarpiose00/NeuronVault-sub003/internal/engine"
	"github.com/omarpiose00/NeuronVault-sub003/internal/events"
	"github.com/omarpiose00/NeuronVault-sub003/internal/ledger"
	"github.com/omarpiose00/NeuronVault-sub003/internal/meta"
	"github.com/omarpiose00/NeuronVault-sub003/internal/metrics"
	"github.com/omarpiose00/NeuronVault-sub003/internal/models"
	"github.com/omarpiose00/NeuronVault-sub003/internal/selector"
	"github.com/omarpiose00/NeuronVault-sub003/internal/server"
	"github.com/omarpiose00/NeuronVault-sub003/internal/storage"
	"github.com/omarpiose00/NeuronVault-sub003/internal/synthesis"
)

func main() {
	configPath := flag.String("config", "ensemble.yaml", "path to the yaml configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("configuration load failed")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.WithError(err).Fatal("persistence backend unavailable")
	}
	defer store.Close()

	registry := adapter.NewRegistry()
	led := ledger.New(cfg.Ledger)
	for _, mc := range cfg.Models {
		a := adapter.NewBreaker(adapter.NewHTTPAdapter(adapter.HTTPConfig{
			ModelID: mc.ID,
			BaseURL: mc.Endpoint,
			APIKey:  mc.APIKey,
		}, logger), adapter.DefaultBreakerConfig())
		if err := registry.Register(a); err != nil {
			logger.WithError(err).WithField("model", mc.ID).Fatal("adapter registration failed")
		}
		caps := mc.Capabilities
		if len(caps) == 0 {
			caps = map[models.TaskCategory]float64{models.CategoryGeneral: 0.5}
		}
		led.SeedProfile(mc.ID, caps)
	}
	if registry.Len() == 0 {
		logger.Warn("no model endpoints configured")
	}

	var arbiter adapter.ModelAdapter
	if cfg.ArbiterModel != "" {
		if a, ok := registry.Get(cfg.ArbiterModel); ok {
			arbiter = a
		} else {
			logger.WithField("model", cfg.ArbiterModel).Warn("arbiter model not registered, synthesis uses deterministic fallback")
		}
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	gateway := events.NewGateway(cfg.Events)
	an := analyzer.New(cfg.Analyzer, logger)
	sel := selector.New(cfg.Selector, led, logger)
	coord := coordinator.New(cfg.Coordinator, registry, gateway, logger)
	synth := synthesis.New(cfg.Synthesis, arbiter, gateway, logger)
	respCache := cache.New(cfg.Cache)

	metaOrch := meta.New(cfg.Meta, meta.AnalyzerFunc(func(prompt string, history []string) (models.ContextAnalysis, error) {
		return an.Analyze(prompt, history), nil
	}), sel, registry, led, store, logger)

	eng := engine.New(cfg.Engine, engine.Deps{
		Analyzer:    an,
		Selector:    sel,
		Coordinator: coord,
		Synthesis:   synth,
		Ledger:      led,
		Meta:        metaOrch,
		Gateway:     gateway,
		Cache:       respCache,
		Registry:    registry,
		Metrics:     m,
		Logger:      logger,
	})

	srv := server.New(cfg.Server.Addr, eng, promReg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown incomplete")
	}
	gateway.Close()
	logger.Info("ensembled stopped")
}

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, error) {
	switch cfg.Backend {
	case "redis":
		return storage.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
	case "sqlite":
		return storage.NewSQLiteStore(cfg.SQLitePath)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// Command gateway runs the AI gateway's HTTP binding: it loads
// GatewayConfig from the environment, wires storage, the model registry,
// history, the session bus, provider adapters, the request engine, the
// restore/history janitor, and the thin chi HTTP surface, then serves until
// an interrupt signal triggers a graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	gwconfig "github.com/upb/ai-gateway/internal/config"
	"github.com/upb/ai-gateway/internal/engine"
	"github.com/upb/ai-gateway/internal/history"
	"github.com/upb/ai-gateway/internal/httpapi"
	"github.com/upb/ai-gateway/internal/provider"
	"github.com/upb/ai-gateway/internal/provider/deepseek"
	"github.com/upb/ai-gateway/internal/provider/gemini"
	"github.com/upb/ai-gateway/internal/provider/openai"
	"github.com/upb/ai-gateway/internal/registry"
	"github.com/upb/ai-gateway/internal/scheduler"
	"github.com/upb/ai-gateway/internal/session"
	"github.com/upb/ai-gateway/internal/storage"
	"github.com/upb/ai-gateway/internal/telemetry"
)

func main() {
	cfg, err := gwconfig.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.Observability.LogLevel)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway exited with error", zap.Error(err))
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if l, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = l
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func run(cfg *gwconfig.GatewayConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("close storage", zap.Error(err))
		}
	}()

	resolved, err := gwconfig.Resolve(cfg.Engine)
	if err != nil {
		return err
	}

	reg := registry.New(store, resolved.Limits, resolved.Restore, logger)
	hist := history.New(store, time.Duration(resolved.HistoryExpirationMs)*time.Millisecond)
	bus := session.New(store, time.Duration(resolved.HistoryExpirationMs)*time.Millisecond)
	clients := wireProviders(cfg, logger)

	promReg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(promReg)

	if cfg.Observability.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Observability.TracingEndpoint, "ai-gateway")
		if err != nil {
			logger.Error("start tracer provider", zap.Error(err))
		} else {
			defer func() { _ = tp.Shutdown(context.Background()) }()
		}
	}

	eng := engine.New(reg, hist, bus, clients, cfg.Engine, metrics, logger)

	sched := scheduler.New(reg, defaultCandidates(cfg), logger)
	if err := sched.Start("@every 30s"); err != nil {
		logger.Error("start restore sweep scheduler", zap.Error(err))
	} else {
		defer sched.Stop()
	}

	if cfg.Observability.MetricsEnabled {
		go serveMetrics(cfg.Observability.MetricsPort, promReg, logger)
	}

	api := httpapi.NewAPI(eng, cfg.Server.SessionHeader, logger)
	handler := httpapi.Routes(api, cfg.Auth.Required, cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newStorage(ctx context.Context, cfg *gwconfig.GatewayConfig, logger *zap.Logger) (storage.Storage, error) {
	var store storage.Storage
	if cfg.Storage.Type == "valkey" {
		store = storage.NewValkey(storage.ValkeyConfig{
			Addr:     cfg.Storage.ValkeyAddr,
			Password: cfg.Storage.ValkeyPassword,
			DB:       cfg.Storage.ValkeyDB,
		}, logger)
	} else {
		store = storage.NewMemory(logger)
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func wireProviders(cfg *gwconfig.GatewayConfig, logger *zap.Logger) map[registry.ProviderId]provider.Client {
	clients := make(map[registry.ProviderId]provider.Client, 3)
	if cfg.Providers.OpenAI.APIKey != "" {
		clients[registry.ProviderOpenAI] = openai.New(openai.Config{
			APIKey: cfg.Providers.OpenAI.APIKey, BaseURL: cfg.Providers.OpenAI.BaseURL, Timeout: cfg.Providers.OpenAI.Timeout,
		})
	}
	if cfg.Providers.DeepSeek.APIKey != "" {
		clients[registry.ProviderDeepSeek] = deepseek.New(deepseek.Config{
			APIKey: cfg.Providers.DeepSeek.APIKey, BaseURL: cfg.Providers.DeepSeek.BaseURL, Timeout: cfg.Providers.DeepSeek.Timeout,
		})
	}
	if cfg.Providers.Gemini.APIKey != "" {
		clients[registry.ProviderGemini] = gemini.New(gemini.Config{
			APIKey: cfg.Providers.Gemini.APIKey, BaseURL: cfg.Providers.Gemini.BaseURL, Timeout: cfg.Providers.Gemini.Timeout,
		})
	}
	if len(clients) == 0 {
		logger.Warn("no provider adapters configured; every request will fail model selection")
	}
	return clients
}

// defaultCandidates is the full model catalog the janitor sweeps. In this
// minimal binding it mirrors whichever providers have credentials
// configured; a deployment with a richer model catalog would load this
// from its own configuration source instead.
func defaultCandidates(cfg *gwconfig.GatewayConfig) []registry.ModelRef {
	var out []registry.ModelRef
	if cfg.Providers.OpenAI.APIKey != "" {
		out = append(out, registry.ModelRef{Provider: registry.ProviderOpenAI, Name: "gpt-4o-mini"})
	}
	if cfg.Providers.DeepSeek.APIKey != "" {
		out = append(out, registry.ModelRef{Provider: registry.ProviderDeepSeek, Name: "deepseek-chat"})
	}
	if cfg.Providers.Gemini.APIKey != "" {
		out = append(out, registry.ModelRef{Provider: registry.ProviderGemini, Name: "gemini-1.5-flash"})
	}
	return out
}

func serveMetrics(port int, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	addr := ":" + strconv.Itoa(port)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server exited", zap.Error(err))
	}
}

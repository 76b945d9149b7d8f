// councild is the deliberation service entry point.
//
// Usage:
//
//	councild --config config.yaml
//
// Configuration precedence: defaults, YAML file, COUNCIL_* environment
// variables. The OpenRouter API key comes from COUNCIL_GATEWAY_API_KEY
// or the config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/council/api/handlers"
	"github.com/BaSui01/council/config"
	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/intent"
	"github.com/BaSui01/council/internal/metrics"
	"github.com/BaSui01/council/llm"
	"github.com/BaSui01/council/llm/retry"
	"github.com/BaSui01/council/panel"
	"github.com/BaSui01/council/store"
	"github.com/BaSui01/council/structured"
	"github.com/BaSui01/council/verify"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	collector := metrics.NewCollector("council", prometheus.DefaultRegisterer, logger)

	provider := llm.NewOpenRouterProvider(llm.OpenRouterConfig{
		APIKey:   cfg.Gateway.APIKey,
		BaseURL:  cfg.Gateway.BaseURL,
		SiteURL:  cfg.Gateway.SiteURL,
		AppTitle: cfg.Gateway.AppTitle,
		Timeout:  cfg.Gateway.Timeout,
	}, logger)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.Gateway.MaxRetries
	policy.InitialDelay = cfg.Gateway.InitialBackoff
	gateway := llm.NewGateway(provider, logger,
		llm.WithRetryPolicy(policy),
		llm.WithRateLimit(cfg.Gateway.RatePerSecond, cfg.Gateway.RateBurst),
		llm.WithObserver(collector),
	)

	engine := structured.NewEngine(gateway, cfg.Intent.Models, logger)

	normalizer := intent.NewNormalizer(intent.Config{
		Models:  cfg.Intent.Models,
		Timeout: cfg.Intent.Timeout,
	}, gateway, engine, logger)

	former := panel.NewFormer(panel.Config{
		Size:             cfg.Council.PanelSize,
		SuggestionModels: cfg.Council.CouncilModels,
		ChairmanModel:    cfg.Council.ChairmanModel,
		Timeout:          cfg.Council.StageTimeout,
	}, gateway, engine, logger)

	verifier := verify.NewPipeline(verify.Config{
		BaseTargets:     cfg.Verification.BaseTargets,
		MaxTargets:      cfg.Verification.MaxTargets,
		ClaimsPerTarget: cfg.Verification.ClaimsPerTarget,
		ScopeModel:      cfg.Verification.ScopeModel,
		ReportModel:     cfg.Verification.ReportModel,
		Search:          cfg.Search,
		Timeout:         cfg.Council.StageTimeout,
	}, gateway, engine, logger)

	orch := council.NewOrchestrator(council.Config{
		PanelSize:      cfg.Council.PanelSize,
		CouncilModels:  cfg.Council.CouncilModels,
		ChairmanModel:  cfg.Council.ChairmanModel,
		UtilityModel:   cfg.Council.UtilityModel,
		FallbackModels: cfg.Council.FallbackModels,
		Reasoning:      cfg.Reasoning,
		IntentTimeout:  cfg.Intent.Timeout,
		StageTimeout:   cfg.Council.StageTimeout,
		TitleTimeout:   cfg.Council.TitleTimeout,
	}, gateway, normalizer, former, verifier, collector, logger)

	st, err := newStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	router := &handlers.Router{
		Health:        handlers.NewHealthHandler(logger),
		Conversations: handlers.NewConversationHandler(st, logger),
		Deliberation:  handlers.NewDeliberationHandler(orch, st, handlers.NewGateRegistry(), collector, logger),
		Metrics:       promhttp.Handler(),
		HTTPMetrics:   collector,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Build(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newStore(cfg config.StorageConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewFileStore(cfg.DataDir, logger)
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

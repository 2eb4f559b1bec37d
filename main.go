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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/classifier"
	"github.com/example/emotion-sense/internal/config"
	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
	"github.com/example/emotion-sense/internal/handlers"
	"github.com/example/emotion-sense/internal/logging"
	"github.com/example/emotion-sense/internal/usecase"
)

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	metrics := initMetrics(ctx, cfg.Redis, logger)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build method registry", zap.Error(err))
	}

	fallback, err := cfg.FallbackResult()
	if err != nil {
		logger.Fatal("invalid fallback result", zap.Error(err))
	}
	uc := usecase.NewAnalysisUseCase(registry, usecase.NewFallbackPolicy(fallback, logger), metrics, pipelineOptions(cfg), logger)
	if cfg.Pipeline.WarmOnStart {
		uc.Warm(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestID(), handlers.AccessLog(logger))
	handlers.RegisterRoutes(r, uc, cfg.Server.MaxBodyBytes)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("emotion service listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("default_method", cfg.Pipeline.DefaultMethod),
		zap.Int("workers", cfg.Pipeline.Workers),
	)
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildRegistry binds every method to its backend and configured locator.
// Backends that are not configured stay registered and degrade to the
// fallback result at request time.
func buildRegistry(cfg *config.Root, logger *zap.Logger) (*usecase.Registry, error) {
	locators := map[face.Strategy]face.Locator{
		face.StrategyCascade:     face.NewCascade(cfg.Detector.Cascade),
		face.StrategyModel:       face.NewModelDetector(cfg.Detector.ModelURL, cfg.Detector.Timeout),
		face.StrategyPassthrough: face.Passthrough{},
	}

	b := cfg.Backends
	backends := []classifier.Backend{
		classifier.NewDeepFace(b.DeepFace.URL, b.DeepFace.Timeout, b.MaxSide),
		classifier.NewFER(b.FER.Addr, b.FER.DialTimeout, b.MaxSide, logger),
		classifier.NewHuggingFace(b.HuggingFace.URL, b.HuggingFace.Token, b.HuggingFace.Timeout, b.MaxSide),
		classifier.NewMock(b.Mock.Seed, cfg.MockScores()),
	}

	registry := usecase.NewRegistry()
	for _, backend := range backends {
		m := backend.Method()
		strategy := cfg.Locator(m)
		if err := registry.Register(m, usecase.Pipeline{Locator: locators[strategy], Backend: backend}); err != nil {
			return nil, err
		}
		logger.Debug("method registered", zap.String("method", string(m)), zap.String("locator", string(strategy)))
	}
	return registry, nil
}

func pipelineOptions(cfg *config.Root) usecase.Options {
	method, _ := emotion.ParseMethod(cfg.Pipeline.DefaultMethod, emotion.MethodDeepFace)
	noFace, _ := face.ParseNoFacePolicy(cfg.Pipeline.NoFacePolicy)
	neutral, _ := emotion.ParseNeutralPolicy(cfg.Pipeline.NeutralPolicy)
	return usecase.Options{
		DefaultMethod:  method,
		NoFacePolicy:   noFace,
		NeutralPolicy:  neutral,
		Workers:        cfg.Pipeline.Workers,
		RequestTimeout: cfg.Pipeline.RequestTimeout,
		MaxPixels:      cfg.Pipeline.MaxPixels,
	}
}

// initMetrics connects to Redis when an address is configured. An
// unreachable server is logged and retried on every write.
func initMetrics(ctx context.Context, cfg config.Redis, logger *zap.Logger) usecase.MetricsStore {
	if cfg.Addr == "" {
		logger.Info("redis address not configured, metrics disabled")
		return usecase.NopMetrics{}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, metrics writes will be retried", zap.String("addr", cfg.Addr), zap.Error(err))
	}
	return usecase.NewRedisMetrics(usecase.NewRedisHash(client), cfg.KeyPrefix, logger)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

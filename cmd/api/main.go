package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/api"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/cache/redis"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/metrics"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/storage/sqlite"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/config"
	appLogger "github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting readmission risk API server")
	metrics.Init()

	ctx := context.Background()

	source, closeSource, err := artifactSource(cfg)
	if err != nil {
		appLogger.Fatal("Failed to open artifact source", zap.Error(err))
	}
	defer closeSource()

	runtime, err := artifacts.Open(ctx, source, schema.DefaultSchema())
	if err != nil {
		appLogger.Fatal("Refusing to serve: model artifacts are inconsistent", zap.Error(err))
	}
	metrics.ModelInfo.WithLabelValues(runtime.Manifest.Version, runtime.Origin).Set(1)

	deps := api.Dependencies{}
	var recorder inference.DegradationRecorder = redis.NopRecorder{}
	if cfg.Redis.Enabled {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		redisClient, err := redis.NewClient(connectCtx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			appLogger.Warn("Drift tracking disabled, redis is unreachable", zap.Error(err))
		} else {
			defer redisClient.Close()
			recorder = redisClient
			deps.Drift = redisClient
			deps.Redis = redisClient
		}
	}

	var engineOpts []inference.Option
	if cfg.Security.FingerprintKey != "" {
		engineOpts = append(engineOpts, inference.WithFingerprintKey([]byte(cfg.Security.FingerprintKey)))
	} else {
		appLogger.Warn("security.fingerprintKey not set, fingerprints will not correlate across restarts")
	}

	engine := inference.NewEngine(runtime, recorder, engineOpts...)
	deps.Engine = engine

	app, limiter := api.NewApp(cfg, deps)
	defer limiter.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	engine.Wait()
	appLogger.Info("Server stopped")
}

func artifactSource(cfg *config.Config) (artifacts.Source, func(), error) {
	switch cfg.Artifacts.Source {
	case config.ArtifactSourceSQLite:
		store, err := sqlite.NewClient(cfg.Artifacts.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := store.InitSchema(); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return artifacts.DirSource{Dir: cfg.Artifacts.Dir}, func() {}, nil
	}
}

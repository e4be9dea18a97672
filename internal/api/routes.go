// Package api wires the HTTP and WebSocket surface of the prediction service.
package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/api/handlers"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/metrics"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/middleware/ratelimit"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/middleware/security"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/middleware/validation"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/config"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

// Predict routes whose body must be a single JSON object.
var predictPaths = []string{"/api/v1/predict", "/predict"}

type Dependencies struct {
	Engine *inference.Engine
	Drift  handlers.DriftSource
	Redis  handlers.Pinger
}

// NewApp builds the fiber application with middleware and routes. The
// returned limiter must be stopped on shutdown.
func NewApp(cfg *config.Config, deps Dependencies) (*fiber.App, *ratelimit.RateLimiter) {
	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          handlers.ErrorHandler,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Logger:               logger.GetLogger(),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Security.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.Development,
	}))
	app.Use(validation.Middleware(validation.Config{
		Paths:  predictPaths,
		Logger: logger.GetLogger(),
	}))

	Register(app, limiter.Middleware(), limiter, deps)
	return app, limiter
}

// Register mounts every route on app. limit guards the prediction routes and
// sessions meters assessments sent over an open websocket.
func Register(app *fiber.App, limit fiber.Handler, sessions handlers.Limiter, deps Dependencies) {
	rt := deps.Engine.Runtime()

	predictionHandler := handlers.NewPredictionHandler(deps.Engine)
	modelHandler := handlers.NewModelHandler(rt, deps.Drift, deps.Redis)
	schemaHandler := handlers.NewSchemaHandler(rt)
	wsHandler := handlers.NewWebSocketHandler(deps.Engine, sessions)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Post("/predict", limit, predictionHandler.HandleLegacyPredict)

	api := app.Group("/api/v1")

	api.Post("/predict", limit, predictionHandler.HandlePredict)

	api.Get("/model", modelHandler.GetModel)
	api.Get("/model/importance", modelHandler.GetImportance)
	api.Get("/model/drift", modelHandler.GetDrift)
	api.Get("/schema", schemaHandler.GetSchema)

	api.Get("/health", modelHandler.Health)
	api.Get("/ready", modelHandler.Ready)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/assess", limit, websocket.New(wsHandler.HandleConnection))
}

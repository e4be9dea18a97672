package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

// DriftSource reports unknown-category counts per field.
type DriftSource interface {
	DriftReport(ctx context.Context) (map[string]map[string]int64, error)
}

// Pinger checks an optional backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ModelHandler struct {
	runtime *artifacts.Runtime
	drift   DriftSource
	redis   Pinger
}

// NewModelHandler exposes the loaded bundle. drift and redis may be nil when
// drift tracking is disabled.
func NewModelHandler(rt *artifacts.Runtime, drift DriftSource, redis Pinger) *ModelHandler {
	return &ModelHandler{
		runtime: rt,
		drift:   drift,
		redis:   redis,
	}
}

func (h *ModelHandler) GetModel(c *fiber.Ctx) error {
	m := h.runtime.Manifest

	info := fiber.Map{
		"origin":      h.runtime.Origin,
		"name":        m.Name,
		"version":     m.Version,
		"algorithm":   m.Algorithm,
		"trained_at":  m.TrainedAt,
		"description": m.Description,
		"classes":     h.runtime.Classifier.Classes(),
		"columns":     h.runtime.Columns,
		"parameters":  m.Parameters,
		"training":    m.Training,
		"metrics":     m.Metrics,
	}
	if f, ok := h.runtime.Classifier.(interface{ NumTrees() int }); ok {
		info["trees"] = f.NumTrees()
	}

	return c.JSON(info)
}

func (h *ModelHandler) GetImportance(c *fiber.Ctx) error {
	top := 0
	if raw := c.Query("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return malformed(c, "top must be a non-negative integer")
		}
		top = n
	}

	return c.JSON(fiber.Map{
		"features": h.runtime.Reporter.Top(top),
		"total":    h.runtime.Reporter.Len(),
	})
}

func (h *ModelHandler) GetDrift(c *fiber.Ctx) error {
	if h.drift == nil {
		return c.JSON(fiber.Map{
			"enabled": false,
			"fields":  fiber.Map{},
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	report, err := h.drift.DriftReport(ctx)
	if err != nil {
		logger.Error("Failed to read drift report", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: ErrorBody{
			Kind:    KindInternal,
			Message: "Drift counters are unavailable",
		}})
	}

	return c.JSON(fiber.Map{
		"enabled": true,
		"fields":  report,
	})
}

func (h *ModelHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready reports whether predictions can be served. A missing drift store
// degrades the service but does not make it unready.
func (h *ModelHandler) Ready(c *fiber.Ctx) error {
	if h.runtime == nil || h.runtime.Adapter == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}

	checks := fiber.Map{"model": "ok"}
	status := "ready"
	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			status = "degraded"
		} else {
			checks["redis"] = "ok"
		}
	}

	return c.JSON(fiber.Map{
		"status":        status,
		"model_version": h.runtime.Manifest.Version,
		"checks":        checks,
	})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/middleware/validation"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/risk"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

type PredictionHandler struct {
	engine *inference.Engine
}

func NewPredictionHandler(engine *inference.Engine) *PredictionHandler {
	return &PredictionHandler{
		engine: engine,
	}
}

type PredictionBody struct {
	Label                    int     `json:"label"`
	ReadmissionProbability   float64 `json:"readmission_probability"`
	NotReadmittedProbability float64 `json:"not_readmitted_probability"`
	Confidence               float64 `json:"confidence"`
}

type PredictionResponse struct {
	ID         string                            `json:"id"`
	Prediction PredictionBody                    `json:"prediction"`
	Risk       risk.Assessment                   `json:"risk"`
	Degraded   bool                              `json:"degraded"`
	Warnings   []encoding.UnknownCategoryWarning `json:"warnings,omitempty"`
	LatencyMS  int                               `json:"latency_ms"`
}

// LegacyPredictionResponse keeps the key set of the original /predict route.
type LegacyPredictionResponse struct {
	Prediction               int     `json:"prediction"`
	ReadmissionProbability   float64 `json:"readmission_probability"`
	NotReadmittedProbability float64 `json:"not_readmitted_probability"`
	Confidence               float64 `json:"confidence"`
}

func newPredictionResponse(res *inference.Result) PredictionResponse {
	return PredictionResponse{
		ID: res.ID,
		Prediction: PredictionBody{
			Label:                    res.Prediction.Label,
			ReadmissionProbability:   res.Prediction.ReadmissionPercent(),
			NotReadmittedProbability: res.Prediction.NotReadmittedPercent(),
			Confidence:               res.Prediction.ConfidencePercent(),
		},
		Risk:      res.Risk,
		Degraded:  res.Degraded,
		Warnings:  res.Warnings,
		LatencyMS: res.LatencyMS,
	}
}

func (h *PredictionHandler) HandlePredict(c *fiber.Ctx) error {
	raw, err := requestObject(c)
	if err != nil {
		logger.Debug("Failed to parse request body", zap.Error(err))
		return malformed(c, "Request body must be a JSON object")
	}

	result, err := h.engine.Predict(inference.WithChannel(c.UserContext(), "http"), raw)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(newPredictionResponse(result))
}

func (h *PredictionHandler) HandleLegacyPredict(c *fiber.Ctx) error {
	raw, err := requestObject(c)
	if err != nil {
		return malformed(c, "Request body must be a JSON object")
	}

	result, err := h.engine.Predict(inference.WithChannel(c.UserContext(), "legacy"), raw)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(LegacyPredictionResponse{
		Prediction:               result.Prediction.Label,
		ReadmissionProbability:   result.Prediction.ReadmissionPercent(),
		NotReadmittedProbability: result.Prediction.NotReadmittedPercent(),
		Confidence:               result.Prediction.ConfidencePercent(),
	})
}

// requestObject prefers the body already decoded by the validation
// middleware and decodes it itself otherwise.
func requestObject(c *fiber.Ctx) (map[string]any, error) {
	if body, ok := validation.Body(c); ok {
		return body, nil
	}

	return validation.DecodeObject(c.Body())
}

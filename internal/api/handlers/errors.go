package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/model"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

const (
	KindValidation    = "validation_error"
	KindMalformed     = "malformed_request"
	KindShapeMismatch = "shape_mismatch"
	KindConfiguration = "configuration_error"
	KindInternal      = "internal_error"
	KindRateLimited   = "rate_limited"
)

type ErrorBody struct {
	Kind    string                `json:"kind"`
	Message string                `json:"message"`
	Fields  []schema.FieldProblem `json:"fields,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Classify maps a pipeline error to its HTTP status and wire payload. Only
// validation problems expose details; server-side failures get a generic
// message and are logged instead.
func Classify(err error) (int, ErrorResponse) {
	var validationErr *schema.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Kind:    KindValidation,
			Message: "Patient record failed validation",
			Fields:  validationErr.FieldProblems(),
		}}
	}

	var shapeErr *model.ShapeMismatchError
	if errors.As(err, &shapeErr) {
		return fiber.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Kind:    KindShapeMismatch,
			Message: "Model input shape does not match the loaded artifacts",
		}}
	}

	var configErr *artifacts.ConfigurationError
	var featureErr *encoding.UnknownFeatureError
	var fieldErr *encoding.UnknownFieldError
	if errors.As(err, &configErr) || errors.As(err, &featureErr) || errors.As(err, &fieldErr) {
		return fiber.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Kind:    KindConfiguration,
			Message: "Model artifacts are misconfigured",
		}}
	}

	return fiber.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Kind:    KindInternal,
		Message: "Failed to process prediction",
	}}
}

func writeError(c *fiber.Ctx, err error) error {
	status, body := Classify(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error("Prediction request failed",
			zap.String("path", c.Path()),
			zap.String("kind", body.Error.Kind),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(body)
}

func malformed(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: ErrorBody{
		Kind:    KindMalformed,
		Message: message,
	}})
}

// ErrorHandler is the fiber error handler. Errors raised by fiber itself
// (oversized body, unknown route, missing upgrade, recovered panic) keep the
// same payload shape as handler errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	}

	kind := KindInternal
	switch {
	case status == fiber.StatusTooManyRequests:
		kind = KindRateLimited
	case status >= 400 && status < 500:
		kind = KindMalformed
	default:
		logger.Error("Unhandled request error",
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	return c.Status(status).JSON(ErrorResponse{Error: ErrorBody{
		Kind:    kind,
		Message: message,
	}})
}

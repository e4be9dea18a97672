package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// BodyKey is the fiber.Locals key holding the decoded request object.
const BodyKey = "patient_body"

var (
	errNotObject    = errors.New("body is not a JSON object")
	errTrailingData = errors.New("body has data after the JSON object")
)

type Config struct {
	// Paths are the route prefixes whose body must be a JSON object.
	Paths               []string
	MaxFields           int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects bodies that are not a single JSON object before they
// reach a handler. Field-level checks belong to the schema validator.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxFields == 0 {
		cfg.MaxFields = 64
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return reject(c, fiber.StatusUnsupportedMediaType, "Unsupported content type")
		}

		if !matchesPath(c.Path(), cfg.Paths) {
			return c.Next()
		}

		body, err := DecodeObject(c.Body())
		if err != nil {
			cfg.Logger.Warn("Rejected malformed request body",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return reject(c, fiber.StatusBadRequest, "Request body must be a JSON object")
		}

		if len(body) > cfg.MaxFields {
			return reject(c, fiber.StatusBadRequest, "Request body has too many fields")
		}

		c.Locals(BodyKey, body)
		return c.Next()
	}
}

// Body returns the object stored by Middleware, if any.
func Body(c *fiber.Ctx) (map[string]any, bool) {
	body, ok := c.Locals(BodyKey).(map[string]any)
	return body, ok
}

// DecodeObject decodes data as exactly one JSON object. Numbers stay
// json.Number so integer fields are not silently rounded through float64.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return body, nil
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func matchesPath(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"kind":    "malformed_request",
			"message": message,
		},
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/metrics"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

// Message types on the live assessment channel.
const (
	MsgAssess     = "assess"
	MsgValidate   = "validate"
	MsgPing       = "ping"
	MsgAssessment = "assessment"
	MsgValidation = "validation"
	MsgPong       = "pong"
	MsgError      = "error"
)

type wsRequest struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Patient   map[string]any `json:"patient"`
}

type wsResponse struct {
	Type      string                `json:"type"`
	RequestID string                `json:"request_id,omitempty"`
	Result    *PredictionResponse   `json:"result,omitempty"`
	Valid     *bool                 `json:"valid,omitempty"`
	Fields    []schema.FieldProblem `json:"fields,omitempty"`
	Error     *ErrorBody            `json:"error,omitempty"`
}

// Limiter grants or refuses one unit of work for key.
type Limiter interface {
	Allow(key string) bool
}

// WebSocketHandler serves the dashboard's live form: partial records are
// validated as the user types and full records are assessed on submit.
type WebSocketHandler struct {
	engine   *inference.Engine
	sessions Limiter
}

// NewWebSocketHandler limits assessments per session with sessions; a nil
// limiter leaves sessions unlimited.
func NewWebSocketHandler(engine *inference.Engine, sessions Limiter) *WebSocketHandler {
	return &WebSocketHandler{
		engine:   engine,
		sessions: sessions,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	sessionID := uuid.New().String()
	metrics.WebSocketSessions.Inc()
	logger.Info("WebSocket session opened", zap.String("session_id", sessionID))

	defer func() {
		metrics.WebSocketSessions.Dec()
		c.Close()
		logger.Info("WebSocket session closed", zap.String("session_id", sessionID))
	}()

	ctx := inference.WithChannel(context.Background(), "websocket")

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}

		resp := h.dispatch(ctx, sessionID, data)
		if err := c.WriteJSON(resp); err != nil {
			logger.Warn("Failed to write WebSocket message", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, sessionID string, data []byte) wsResponse {
	var req wsRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return wsError("", KindMalformed, "Message must be a JSON object")
	}

	switch req.Type {
	case MsgPing:
		return wsResponse{Type: MsgPong, RequestID: req.RequestID}

	case MsgValidate:
		return h.validate(req)

	case MsgAssess:
		if req.Patient == nil {
			return wsError(req.RequestID, KindMalformed, "patient is required")
		}
		if h.sessions != nil && !h.sessions.Allow("ws:"+sessionID) {
			metrics.RateLimitedTotal.Inc()
			return wsError(req.RequestID, KindRateLimited, "Rate limit exceeded. Please try again later.")
		}
		result, err := h.engine.Predict(ctx, req.Patient)
		if err != nil {
			_, body := Classify(err)
			if body.Error.Kind != KindValidation {
				logger.Error("WebSocket assessment failed", zap.String("kind", body.Error.Kind), zap.Error(err))
			}
			return wsResponse{Type: MsgError, RequestID: req.RequestID, Error: &body.Error}
		}
		resp := newPredictionResponse(result)
		return wsResponse{Type: MsgAssessment, RequestID: req.RequestID, Result: &resp}

	default:
		return wsError(req.RequestID, KindMalformed, "unknown message type")
	}
}

func (h *WebSocketHandler) validate(req wsRequest) wsResponse {
	valid := true
	resp := wsResponse{Type: MsgValidation, RequestID: req.RequestID, Valid: &valid}

	_, err := h.engine.Validate(req.Patient)
	if err == nil {
		return resp
	}

	var validationErr *schema.ValidationError
	if !errors.As(err, &validationErr) {
		return wsError(req.RequestID, KindInternal, "Failed to validate record")
	}
	valid = false
	resp.Fields = validationErr.FieldProblems()
	return resp
}

func wsError(requestID, kind, message string) wsResponse {
	return wsResponse{
		Type:      MsgError,
		RequestID: requestID,
		Error:     &ErrorBody{Kind: kind, Message: message},
	}
}

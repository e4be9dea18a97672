// Package inference runs one patient record through validation, encoding,
// scoring and risk stratification.
package inference

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/encoding"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/metrics"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/model"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/risk"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/utils"
)

const (
	recordTimeout = 2 * time.Second

	// DefaultMaxPendingRecords bounds concurrent degradation records.
	DefaultMaxPendingRecords = 64
)

// DegradationRecorder receives the unknown categories seen by a prediction.
// It runs off the request path; its errors are logged and counted only.
type DegradationRecorder interface {
	RecordUnknown(ctx context.Context, warnings []encoding.UnknownCategoryWarning) error
}

type Result struct {
	ID          string
	Prediction  *model.PredictionResult
	Risk        risk.Assessment
	Warnings    []encoding.UnknownCategoryWarning
	Degraded    bool
	Fingerprint string
	LatencyMS   int
}

type Engine struct {
	runtime        *artifacts.Runtime
	recorder       DegradationRecorder
	fingerprintKey []byte

	slots   chan struct{}
	pending sync.WaitGroup
}

type Option func(*engineOptions)

type engineOptions struct {
	fingerprintKey    []byte
	maxPendingRecords int
}

// WithFingerprintKey sets the HMAC key for record fingerprints. Fingerprints
// only correlate across processes sharing the key; without one a random key
// is generated per engine.
func WithFingerprintKey(key []byte) Option {
	return func(o *engineOptions) {
		o.fingerprintKey = key
	}
}

// WithMaxPendingRecords caps in-flight degradation records. Records beyond
// the cap are dropped and counted.
func WithMaxPendingRecords(n int) Option {
	return func(o *engineOptions) {
		o.maxPendingRecords = n
	}
}

// NewEngine serves predictions from rt. recorder may be nil.
func NewEngine(rt *artifacts.Runtime, recorder DegradationRecorder, opts ...Option) *Engine {
	o := engineOptions{maxPendingRecords: DefaultMaxPendingRecords}
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.fingerprintKey) == 0 {
		o.fingerprintKey = make([]byte, 32)
		if _, err := rand.Read(o.fingerprintKey); err != nil {
			panic(fmt.Sprintf("inference: failed to generate fingerprint key: %v", err))
		}
	}
	if o.maxPendingRecords <= 0 {
		o.maxPendingRecords = DefaultMaxPendingRecords
	}

	return &Engine{
		runtime:        rt,
		recorder:       recorder,
		fingerprintKey: o.fingerprintKey,
		slots:          make(chan struct{}, o.maxPendingRecords),
	}
}

func (e *Engine) Runtime() *artifacts.Runtime {
	return e.runtime
}

func (e *Engine) Predict(ctx context.Context, raw map[string]any) (*Result, error) {
	startTime := time.Now()
	channel := channelFrom(ctx)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := e.runtime.Validator.Validate(raw)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	predictionID := uuid.New().String()
	fingerprint := utils.Fingerprint(e.fingerprintKey, record.Fields())

	enc, err := e.runtime.Encoder.Encode(record)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		logger.Error("Failed to encode record",
			zap.String("prediction_id", predictionID),
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	prediction, err := e.runtime.Adapter.Score(enc.Vector)
	if err != nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		var shapeErr *model.ShapeMismatchError
		if errors.As(err, &shapeErr) {
			logger.Error("CRITICAL: feature vector does not match model input",
				zap.String("prediction_id", predictionID),
				zap.Int("expected", shapeErr.Expected),
				zap.Int("got", shapeErr.Got),
				zap.Error(err),
			)
			return nil, err
		}
		logger.Error("Failed to score record", zap.String("prediction_id", predictionID), zap.Error(err))
		return nil, fmt.Errorf("failed to score record: %w", err)
	}

	assessment := risk.Stratify(prediction.ReadmissionPercent())

	result := &Result{
		ID:          predictionID,
		Prediction:  prediction,
		Risk:        assessment,
		Warnings:    enc.Warnings,
		Degraded:    enc.Degraded(),
		Fingerprint: fingerprint,
		LatencyMS:   int(time.Since(startTime).Milliseconds()),
	}

	e.observe(channel, result, time.Since(startTime))
	if result.Degraded {
		e.recordAsync(result.ID, result.Warnings)
	}

	logger.Info("Prediction completed",
		zap.String("prediction_id", result.ID),
		zap.String("fingerprint", fingerprint),
		zap.String("channel", channel),
		zap.Int("label", prediction.Label),
		zap.Stringer("tier", assessment.Tier),
		zap.Bool("degraded", result.Degraded),
		zap.Int("latency_ms", result.LatencyMS),
	)

	return result, nil
}

func (e *Engine) observe(channel string, result *Result, elapsed time.Duration) {
	status := "ok"
	if result.Degraded {
		status = "degraded"
		metrics.DegradedPredictionsTotal.Inc()
		for _, w := range result.Warnings {
			metrics.UnknownCategoryTotal.WithLabelValues(w.Field).Inc()
		}
	}
	metrics.PredictionsTotal.WithLabelValues(status).Inc()
	metrics.PredictionDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
	metrics.RiskTierTotal.WithLabelValues(result.Risk.Tier.String()).Inc()
	metrics.ReadmissionProbability.Observe(result.Risk.ReadmissionProbability)
}

func (e *Engine) recordAsync(predictionID string, warnings []encoding.UnknownCategoryWarning) {
	if e.recorder == nil {
		return
	}

	select {
	case e.slots <- struct{}{}:
	default:
		metrics.DriftRecordsDropped.Inc()
		logger.Warn("Drift recorder saturated, dropping record",
			zap.String("prediction_id", predictionID),
			zap.Int("in_flight", cap(e.slots)),
		)
		return
	}

	batch := append([]encoding.UnknownCategoryWarning(nil), warnings...)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		defer func() { <-e.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := e.recorder.RecordUnknown(ctx, batch); err != nil {
			metrics.DriftRecorderErrors.Inc()
			logger.Warn("Failed to record unknown categories",
				zap.String("prediction_id", predictionID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight degradation records have finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Validate checks raw against the schema without scoring it.
func (e *Engine) Validate(raw map[string]any) (*schema.PatientRecord, error) {
	return e.runtime.Validator.Validate(raw)
}

type channelKey struct{}

// WithChannel tags ctx with the surface a prediction arrived on, for metrics.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, channelKey{}, channel)
}

func channelFrom(ctx context.Context) string {
	if ch, ok := ctx.Value(channelKey{}).(string); ok && ch != "" {
		return ch
	}
	return "http"
}

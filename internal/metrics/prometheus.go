package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readmission_prediction_duration_seconds",
			Help:    "Prediction pipeline duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"channel"},
	)

	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readmission_predictions_total",
			Help: "Total number of prediction requests by outcome",
		},
		[]string{"status"},
	)

	RiskTierTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readmission_risk_tier_total",
			Help: "Predictions per risk tier",
		},
		[]string{"tier"},
	)

	ReadmissionProbability = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "readmission_probability_percent",
			Help:    "Predicted readmission probability in percent",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	UnknownCategoryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readmission_unknown_category_total",
			Help: "Categorical values encoded with the fallback code",
		},
		[]string{"field"},
	)

	DegradedPredictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readmission_degraded_predictions_total",
			Help: "Predictions returned with at least one unknown category",
		},
	)

	DriftRecorderErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readmission_drift_recorder_errors_total",
			Help: "Failures while recording unknown categories",
		},
	)

	DriftRecordsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readmission_drift_records_dropped_total",
			Help: "Unknown-category records dropped because the recorder was saturated",
		},
	)

	ModelInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readmission_model_info",
			Help: "Loaded model bundle, value is always 1",
		},
		[]string{"version", "origin"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "readmission_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	WebSocketSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "readmission_websocket_sessions",
			Help: "Open live assessment sessions",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(PredictionDuration)
		prometheus.MustRegister(PredictionsTotal)
		prometheus.MustRegister(RiskTierTotal)
		prometheus.MustRegister(ReadmissionProbability)
		prometheus.MustRegister(UnknownCategoryTotal)
		prometheus.MustRegister(DegradedPredictionsTotal)
		prometheus.MustRegister(DriftRecorderErrors)
		prometheus.MustRegister(DriftRecordsDropped)
		prometheus.MustRegister(ModelInfo)
		prometheus.MustRegister(RateLimitedTotal)
		prometheus.MustRegister(WebSocketSessions)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Package metrics defines the Prometheus collectors exported by handsign.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prediction outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeNoData = "no_data"
)

// Frame drop reasons.
const (
	DropInvalid    = "invalid_input"
	DropDegenerate = "degenerate_input"
	DropNoHand     = "no_hand"
)

var (
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handsign_predictions_total",
			Help: "Total number of classification attempts by outcome",
		},
		[]string{"outcome"},
	)

	PredictionConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "handsign_prediction_confidence",
			Help:    "Confidence of successful predictions (percent)",
			Buckets: []float64{20, 40, 50, 60, 80, 100},
		},
	)

	TrainTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handsign_train_total",
			Help: "Total number of samples recorded",
		},
	)

	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handsign_frames_dropped_total",
			Help: "Frames discarded before classification, by reason",
		},
		[]string{"reason"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handsign_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route", "status_code"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "handsign_stream_clients",
			Help: "Currently connected landmark stream clients",
		},
	)
)

package app

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/knn"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/metrics"
)

// ClassifyFrame runs one frame through the pipeline:
//
//  1. detect hands in the frame
//  2. keep the highest-scoring hand
//  3. normalize its keypoints and classify against owner's dataset
//
// A frame without a hand returns detector.ErrNoHand.
func (a *App) ClassifyFrame(owner string, d detector.Detector, frame *gocv.Mat, k int) (knn.Prediction, landmark.HandLandmarks, error) {
	hand, err := detector.DetectFirst(d, frame)
	if err != nil {
		if errors.Is(err, detector.ErrNoHand) {
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropNoHand).Inc()
		}
		return knn.Prediction{}, landmark.HandLandmarks{}, err
	}

	pred, err := a.Predict(owner, hand.Points, k)
	if err != nil {
		return knn.Prediction{}, hand, err
	}

	logging.Debug().
		Str("owner", owner).
		Str("label", pred.Label).
		Float64("confidence", pred.Confidence).
		Str("handedness", hand.Handedness).
		Msg("Frame classified")
	return pred, hand, nil
}

// TrainFrame detects the hand in frame and records it under label.
func (a *App) TrainFrame(owner, label string, d detector.Detector, frame *gocv.Mat) (TrainResult, error) {
	hand, err := detector.DetectFirst(d, frame)
	if err != nil {
		if errors.Is(err, detector.ErrNoHand) {
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropNoHand).Inc()
		}
		return TrainResult{}, err
	}
	return a.Train(owner, label, hand.Points)
}

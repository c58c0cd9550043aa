// Package detector turns images into hand keypoints.
package detector

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/landmark"
)

// ErrNoHand is returned when an image contains no detectable hand.
var ErrNoHand = errors.New("no hand detected")

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]landmark.HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// Python is the interpreter used to run Script. Empty means a virtualenv
	// interpreter if one is found, else python3.
	Python string

	// Script is the MediaPipe service script. Empty means search the usual
	// locations.
	Script string

	// MaxHands is the maximum number of hands to detect (default: 1).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// IdleTimeout stops the service after this long without a frame.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		MinConfidence: 0.5,
		IdleTimeout:   30 * time.Second,
	}
}

// LoadImage reads an image file into a Mat. The caller must Close it.
func LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("read image %s: unreadable or empty", path)
	}
	return img, nil
}

// DetectFirst returns the highest-scoring hand in frame, or ErrNoHand.
func DetectFirst(d Detector, frame *gocv.Mat) (landmark.HandLandmarks, error) {
	hands, err := d.Detect(frame)
	if err != nil {
		return landmark.HandLandmarks{}, err
	}
	if len(hands) == 0 {
		return landmark.HandLandmarks{}, ErrNoHand
	}

	best := 0
	for i := 1; i < len(hands); i++ {
		if hands[i].Score > hands[best].Score {
			best = i
		}
	}
	return hands[best], nil
}

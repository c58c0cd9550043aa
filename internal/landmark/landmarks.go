// Package landmark converts MediaPipe hand keypoints into the feature vectors
// used for gesture classification.
package landmark

import (
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// FeatureLen is the length of a FeatureVector: 21 keypoints times 3 axes.
const FeatureLen = NumLandmarks * 3

var (
	// ErrInvalidInput is returned for keypoint sequences that are not exactly
	// 21 finite points. The frame should be dropped.
	ErrInvalidInput = errors.New("invalid landmark input")

	// ErrDegenerateInput is returned when every keypoint coincides with the
	// wrist, leaving nothing to scale by. The frame should be dropped.
	ErrDegenerateInput = errors.New("degenerate landmark input")
)

// Point3D is a single hand keypoint.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnmarshalJSON requires numeric x, y and z. Missing, null or non-numeric
// coordinates are ErrInvalidInput.
func (p *Point3D) UnmarshalJSON(data []byte) error {
	var raw struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: keypoint: %v", ErrInvalidInput, err)
	}
	if raw.X == nil || raw.Y == nil || raw.Z == nil {
		return fmt.Errorf("%w: keypoint needs numeric x, y and z", ErrInvalidInput)
	}
	*p = Point3D{X: *raw.X, Y: *raw.Y, Z: *raw.Z}
	return nil
}

// FeatureVector is a normalized hand pose: the 21 keypoints relative to the
// wrist, divided by the largest wrist distance, flattened as x,y,z per point.
type FeatureVector [FeatureLen]float64

// FromSlice copies a flat 63-value slice into a FeatureVector.
func FromSlice(values []float64) (FeatureVector, error) {
	var f FeatureVector
	if len(values) != FeatureLen {
		return f, fmt.Errorf("%w: got %d values, want %d", ErrInvalidInput, len(values), FeatureLen)
	}
	copy(f[:], values)
	return f, nil
}

func (p Point3D) sub(o Point3D) Point3D {
	return Point3D{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

func (p Point3D) norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

func (p Point3D) finite() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Normalize turns 21 raw keypoints into a FeatureVector that is invariant to
// translation and uniform positive scaling of the hand. It is deliberately
// not rotation invariant: pointing left and pointing right are different
// gestures.
func Normalize(points []Point3D) (FeatureVector, error) {
	var f FeatureVector

	if len(points) != NumLandmarks {
		return f, fmt.Errorf("%w: got %d keypoints, want %d", ErrInvalidInput, len(points), NumLandmarks)
	}
	for i, p := range points {
		if !p.finite() {
			return f, fmt.Errorf("%w: keypoint %d is not finite", ErrInvalidInput, i)
		}
	}

	wrist := points[Wrist]

	var centered [NumLandmarks]Point3D
	var scale float64
	for i, p := range points {
		centered[i] = p.sub(wrist)
		if n := centered[i].norm(); n > scale {
			scale = n
		}
	}

	if scale == 0 {
		return f, ErrDegenerateInput
	}

	for i, c := range centered {
		f[i*3] = c.X / scale
		f[i*3+1] = c.Y / scale
		f[i*3+2] = c.Z / scale
	}

	return f, nil
}

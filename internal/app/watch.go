package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/handsign/internal/capture"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/knn"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logging"
)

// DefaultStableFrames is how many consecutive frames must agree before a
// label is reported.
const DefaultStableFrames = 3

// DefaultMaxReadErrors is how many consecutive camera read failures end the
// loop.
const DefaultMaxReadErrors = 10

// WatchConfig configures the live recognition loop.
type WatchConfig struct {
	Owner string
	K     int

	// StableFrames consecutive frames must agree on a label before it is
	// emitted. Values <= 0 select DefaultStableFrames.
	StableFrames int

	// MinConfidence drops predictions below this percentage.
	MinConfidence float64

	// MaxReadErrors consecutive failed reads end the loop with the last
	// error. Values <= 0 select DefaultMaxReadErrors.
	MaxReadErrors int
}

// Recognition is a label that held steady across StableFrames frames.
type Recognition struct {
	knn.Prediction
	Handedness string
	At         time.Time
}

// Watch reads frames from cam until ctx is done or the camera runs out of
// frames. Frames are classified only while the motion gate is active, and a
// label is emitted once when it becomes stable. The same label is not
// emitted again until the hand leaves the frame or another label wins.
//
// Watch returns knn.ErrNoData if the owner has no samples, and the read error
// once the camera fails MaxReadErrors times in a row.
func (a *App) Watch(ctx context.Context, cam capture.Camera, motion *capture.MotionDetector, gate *capture.MotionGate, d detector.Detector, config WatchConfig, emit func(Recognition)) error {
	if config.StableFrames <= 0 {
		config.StableFrames = DefaultStableFrames
	}
	if config.MaxReadErrors <= 0 {
		config.MaxReadErrors = DefaultMaxReadErrors
	}

	if err := cam.Open(); err != nil {
		return err
	}
	defer cam.Close()
	cam.SetFPS(gate.FPS())

	var (
		candidate  string
		streak     int
		emitted    string
		readErrors int
	)
	reset := func() {
		candidate, streak, emitted = "", 0, ""
	}

	ticker := time.NewTicker(gate.Interval())
	defer ticker.Stop()

	logging.Info().Str("owner", config.Owner).Int("fps", gate.FPS()).Msg("Watching camera")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := cam.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrEndOfStream) {
				return nil
			}
			readErrors++
			if readErrors >= config.MaxReadErrors {
				return fmt.Errorf("camera failed %d reads in a row: %w", readErrors, err)
			}
			logging.Warn().Err(err).Int("consecutive", readErrors).Msg("Error reading frame")
			continue
		}
		readErrors = 0

		moved, changed := motion.Detect(frame)
		if gate.Observe(moved, time.Now()) {
			cam.SetFPS(gate.FPS())
			ticker.Reset(gate.Interval())
			logging.Debug().Bool("active", gate.Active()).Float64("changed", changed).Msg("Capture mode switched")
		}

		if !gate.Active() {
			frame.Close()
			reset()
			continue
		}

		pred, hand, err := a.ClassifyFrame(config.Owner, d, frame, config.K)
		frame.Close()

		switch {
		case err == nil:
		case errors.Is(err, knn.ErrNoData):
			return err
		case errors.Is(err, detector.ErrNoHand),
			errors.Is(err, landmark.ErrInvalidInput),
			errors.Is(err, landmark.ErrDegenerateInput):
			reset()
			continue
		default:
			logging.Warn().Err(err).Msg("Error classifying frame")
			continue
		}

		if pred.Confidence < config.MinConfidence {
			candidate, streak = "", 0
			continue
		}

		if pred.Label == candidate {
			streak++
		} else {
			candidate, streak = pred.Label, 1
		}

		if streak >= config.StableFrames && candidate != emitted {
			emitted = candidate
			logging.Info().
				Str("owner", config.Owner).
				Str("label", pred.Label).
				Float64("confidence", pred.Confidence).
				Msg("Sign recognized")
			if emit != nil {
				emit(Recognition{Prediction: pred, Handedness: hand.Handedness, At: time.Now()})
			}
		}
	}
}

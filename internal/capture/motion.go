package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	blurKernel    = 21
	diffThreshold = 25

	// DefaultMotionThreshold is the percentage of changed pixels that counts
	// as motion.
	DefaultMotionThreshold = 1.0
)

// MotionDetector compares each frame against the previous one.
type MotionDetector struct {
	threshold float64
	prev      gocv.Mat
	primed    bool
	mu        sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is a percentage of
// pixels; values <= 0 select DefaultMotionThreshold.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{threshold: threshold, prev: gocv.NewMat()}
}

// Detect reports whether frame differs from the previous frame by more than
// the threshold, along with the changed-pixel percentage. The first frame
// only primes the baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurKernel, Y: blurKernel}, 0, 0, gocv.BorderDefault)

	if !m.primed || m.prev.Rows() != blurred.Rows() || m.prev.Cols() != blurred.Cols() {
		m.swap(blurred)
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)
	gocv.Threshold(diff, &diff, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	m.swap(blurred)

	return changed > m.threshold, changed
}

// swap replaces the baseline with next, taking ownership of it.
func (m *MotionDetector) swap(next gocv.Mat) {
	m.prev.Close()
	m.prev = next
	m.primed = true
}

// Reset drops the baseline so the next frame primes again.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.primed = false
}

// Close releases the baseline frame.
func (m *MotionDetector) Close() {
	m.Reset()
}

// Frame rates used by MotionGate.
const (
	IdleFPS   = 5
	ActiveFPS = 15

	DefaultIdleTimeout = 2 * time.Second
)

// GateConfig configures a MotionGate.
type GateConfig struct {
	IdleFPS     int
	ActiveFPS   int
	IdleTimeout time.Duration
}

// DefaultGateConfig returns 5 fps idle, 15 fps active and a 2s timeout.
func DefaultGateConfig() GateConfig {
	return GateConfig{IdleFPS: IdleFPS, ActiveFPS: ActiveFPS, IdleTimeout: DefaultIdleTimeout}
}

// MotionGate switches between idle and active capture. Motion makes it
// active; IdleTimeout without motion returns it to idle.
type MotionGate struct {
	config     GateConfig
	active     bool
	lastMotion time.Time
}

// NewMotionGate creates an idle gate. Zero fields take their defaults.
func NewMotionGate(config GateConfig) *MotionGate {
	def := DefaultGateConfig()
	if config.IdleFPS <= 0 {
		config.IdleFPS = def.IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = def.ActiveFPS
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	return &MotionGate{config: config}
}

// Observe records whether the frame taken at now had motion. It returns
// true when the gate changed mode.
func (g *MotionGate) Observe(motion bool, now time.Time) bool {
	if motion {
		g.lastMotion = now
		if !g.active {
			g.active = true
			return true
		}
		return false
	}
	if g.active && now.Sub(g.lastMotion) > g.config.IdleTimeout {
		g.active = false
		return true
	}
	return false
}

// Active reports whether frames should be classified.
func (g *MotionGate) Active() bool {
	return g.active
}

// FPS returns the capture rate for the current mode.
func (g *MotionGate) FPS() int {
	if g.active {
		return g.config.ActiveFPS
	}
	return g.config.IdleFPS
}

// Interval returns the time between frames for the current mode.
func (g *MotionGate) Interval() time.Duration {
	return time.Second / time.Duration(g.FPS())
}

// Package app provides the main application logic for the handsign
// recognition service: one training session per owner, backed by the store.
package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ayusman/handsign/internal/knn"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/store"
)

// Neighbor count bounds accepted by SetK.
const (
	MinK = 1
	MaxK = 100
)

// ErrInvalidK is returned by SetK for a neighbor count outside MinK..MaxK.
var ErrInvalidK = fmt.Errorf("k must be between %d and %d", MinK, MaxK)

// TrainResult describes a recorded sample.
type TrainResult struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Total int    `json:"total"` // owner's dataset size after training
}

// DefaultMaxSessions bounds how many owners' datasets are kept in memory.
const DefaultMaxSessions = 1024

// App owns the per-owner sessions and keeps them coherent with the store.
type App struct {
	store    *store.Store
	defaultK int
	started  time.Time

	mu          sync.Mutex
	sessions    map[string]*session
	maxSessions int
}

// session is one owner's in-memory classifier. All access goes through mu,
// so train, predict and delete for one owner are serialized.
type session struct {
	mu         sync.Mutex
	loaded     bool
	classifier *knn.Classifier
	customK    bool // k came from the owner's settings

	// guarded by App.mu
	refs     int
	lastUsed time.Time
}

// idle reports whether the session holds nothing the store would not
// rebuild identically on the next load.
func (s *session) idle() bool {
	return !s.loaded || (s.classifier.Dataset().Len() == 0 && !s.customK)
}

// New creates an App over s. A defaultK of zero or less means knn.DefaultK.
func New(s *store.Store, defaultK int) *App {
	if defaultK <= 0 {
		defaultK = knn.DefaultK
	}
	return &App{
		store:       s,
		defaultK:    defaultK,
		started:     time.Now(),
		sessions:    make(map[string]*session),
		maxSessions: DefaultMaxSessions,
	}
}

// Store returns the backing store.
func (a *App) Store() *store.Store {
	return a.store
}

// Uptime returns how long the App has existed.
func (a *App) Uptime() time.Duration {
	return time.Since(a.started)
}

// acquire returns the owner's session with a reference held, creating it if
// needed. The caller must hold sess.mu and call load before touching the
// classifier, and must call release when done.
func (a *App) acquire(owner string) *session {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, ok := a.sessions[owner]
	if !ok {
		if len(a.sessions) >= a.maxSessions {
			a.evictLocked()
		}
		sess = &session{}
		a.sessions[owner] = sess
	}
	sess.refs++
	return sess
}

// release drops a reference. An unreferenced idle session is forgotten so
// lookups for unknown owners do not accumulate.
func (a *App) release(owner string, sess *session, idle bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess.refs--
	sess.lastUsed = time.Now()
	if sess.refs == 0 && idle && a.sessions[owner] == sess {
		delete(a.sessions, owner)
	}
}

// evictLocked removes the least recently used unreferenced session. Sessions
// in use are never evicted, so the map may briefly exceed maxSessions.
func (a *App) evictLocked() {
	var (
		oldest string
		found  bool
		at     time.Time
	)
	for owner, sess := range a.sessions {
		if sess.refs > 0 {
			continue
		}
		if !found || sess.lastUsed.Before(at) {
			oldest, at, found = owner, sess.lastUsed, true
		}
	}
	if found {
		delete(a.sessions, oldest)
		logging.Debug().Str("owner", oldest).Msg("Evicted session")
	}
}

// sessionCount reports how many sessions are cached.
func (a *App) sessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// load reads the owner's samples and settings from the store once.
func (a *App) load(owner string, sess *session) error {
	if sess.loaded {
		return nil
	}

	stored, err := a.store.Samples().ListByOwner(owner)
	if err != nil {
		return fmt.Errorf("loading samples for %s: %w", owner, err)
	}

	samples := make([]knn.Sample, 0, len(stored))
	for _, s := range stored {
		err := s.DecodeErr
		var features landmark.FeatureVector
		if err == nil {
			features, err = landmark.FromSlice(s.Features)
		}
		if err != nil {
			logging.Warn().Str("owner", owner).Str("sample_id", s.ID).Err(err).Msg("Skipping corrupt sample")
			continue
		}
		samples = append(samples, knn.Sample{Label: s.Label, Features: features})
	}

	k, err := a.store.Settings().GetK(owner)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading settings for %s: %w", owner, err)
	}

	sess.customK = k > 0
	if !sess.customK {
		k = a.defaultK
	}
	sess.classifier = knn.NewClassifier(knn.NewDataset(samples...), k)
	sess.loaded = true

	logging.Debug().Str("owner", owner).Int("samples", len(samples)).Int("k", k).Msg("Loaded dataset")
	return nil
}

// withSession runs fn with the owner's session locked and loaded.
func (a *App) withSession(owner string, fn func(*session) error) error {
	sess := a.acquire(owner)
	sess.mu.Lock()
	idle := true
	defer func() {
		sess.mu.Unlock()
		a.release(owner, sess, idle)
	}()

	if err := a.load(owner, sess); err != nil {
		return err
	}
	err := fn(sess)
	idle = sess.idle()
	return err
}

// Train normalizes points and records them under label for owner.
func (a *App) Train(owner, label string, points []landmark.Point3D) (TrainResult, error) {
	features, err := landmark.Normalize(points)
	if err != nil {
		return TrainResult{}, err
	}

	var result TrainResult
	err = a.withSession(owner, func(sess *session) error {
		s := &store.Sample{Owner: owner, Label: label, Features: features[:]}
		if err := a.store.Samples().Create(s); err != nil {
			return fmt.Errorf("saving sample: %w", err)
		}
		sess.classifier.Train(label, features)

		result = TrainResult{ID: s.ID, Label: label, Total: sess.classifier.Dataset().Len()}
		return nil
	})
	if err != nil {
		return TrainResult{}, err
	}

	metrics.TrainTotal.Inc()
	logging.Info().Str("owner", owner).Str("label", label).Int("total", result.Total).Msg("Sample recorded")
	return result, nil
}

// Predict normalizes points and classifies them against owner's dataset.
// A k of zero or less uses the owner's setting, then the app default.
func (a *App) Predict(owner string, points []landmark.Point3D, k int) (knn.Prediction, error) {
	features, err := landmark.Normalize(points)
	if err != nil {
		switch {
		case errors.Is(err, landmark.ErrDegenerateInput):
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropDegenerate).Inc()
		default:
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropInvalid).Inc()
		}
		return knn.Prediction{}, err
	}

	var pred knn.Prediction
	err = a.withSession(owner, func(sess *session) error {
		var perr error
		pred, perr = sess.classifier.Predict(features, k)
		return perr
	})
	if err != nil {
		if errors.Is(err, knn.ErrNoData) {
			metrics.PredictionsTotal.WithLabelValues(metrics.OutcomeNoData).Inc()
		}
		return knn.Prediction{}, err
	}

	metrics.PredictionsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
	metrics.PredictionConfidence.Observe(pred.Confidence)
	return pred, nil
}

// Samples returns owner's stored samples in training order. Corrupt rows are
// left out, as they are when the dataset loads.
func (a *App) Samples(owner string) ([]store.Sample, error) {
	stored, err := a.store.Samples().ListByOwner(owner)
	if err != nil {
		return nil, err
	}
	samples := stored[:0]
	for _, s := range stored {
		if s.DecodeErr == nil {
			samples = append(samples, s)
		}
	}
	return samples, nil
}

// Labels returns owner's per-label sample counts in first-seen order.
func (a *App) Labels(owner string) ([]knn.LabelCount, error) {
	var labels []knn.LabelCount
	err := a.withSession(owner, func(sess *session) error {
		labels = sess.classifier.Dataset().Labels()
		return nil
	})
	return labels, err
}

// Clear removes all of owner's samples and returns how many were removed.
func (a *App) Clear(owner string) (int, error) {
	var removed int
	err := a.withSession(owner, func(sess *session) error {
		n, err := a.store.Samples().DeleteByOwner(owner)
		if err != nil {
			return fmt.Errorf("clearing samples: %w", err)
		}
		sess.classifier.Dataset().Clear()
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Info().Str("owner", owner).Int("removed", removed).Msg("Dataset cleared")
	return removed, nil
}

// DeleteLabel removes owner's samples with label and returns how many were
// removed.
func (a *App) DeleteLabel(owner, label string) (int, error) {
	var removed int
	err := a.withSession(owner, func(sess *session) error {
		n, err := a.store.Samples().DeleteByLabel(owner, label)
		if err != nil {
			return fmt.Errorf("deleting label: %w", err)
		}
		sess.classifier.Dataset().DeleteLabel(label)
		removed = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Info().Str("owner", owner).Str("label", label).Int("removed", removed).Msg("Label deleted")
	return removed, nil
}

// K returns the neighbor count used for owner's predictions.
func (a *App) K(owner string) (int, error) {
	var k int
	err := a.withSession(owner, func(sess *session) error {
		k = sess.classifier.K()
		return nil
	})
	return k, err
}

// SetK stores owner's neighbor count.
func (a *App) SetK(owner string, k int) error {
	if k < MinK || k > MaxK {
		return ErrInvalidK
	}
	return a.withSession(owner, func(sess *session) error {
		if err := a.store.Settings().SetK(owner, k); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
		sess.classifier.SetK(k)
		sess.customK = true
		return nil
	})
}

// Stats summarizes the store.
func (a *App) Stats() (store.Stats, error) {
	return a.store.Samples().Stats()
}

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/speech"
	"github.com/ayusman/handsign/internal/store"
)

// newTestApp creates an App over a temporary database.
func newTestApp(t *testing.T) *app.App {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return app.New(s, 0)
}

// newTestRouter mounts the dataset handlers the way the server does.
func newTestRouter(t *testing.T, speaker *speech.Speaker) http.Handler {
	t.Helper()

	a := newTestApp(t)
	samples := NewSamplesHandler(a)
	predict := NewPredictHandler(a)

	r := chi.NewRouter()
	r.Route("/api/datasets/{owner}", func(r chi.Router) {
		r.Get("/samples", samples.List)
		r.Post("/samples", samples.Create)
		r.Delete("/samples", samples.Delete)
		r.Get("/labels", samples.Labels)
		r.Post("/predict", predict.Predict)
		r.Get("/settings", predict.GetSettings)
		r.Put("/settings", predict.PutSettings)
	})
	r.Post("/api/speak", NewSpeakHandler(speaker).Speak)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("failed to encode body: %v", err)
			}
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func train(t *testing.T, h http.Handler, owner, label string, hand landmark.HandLandmarks) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/datasets/"+owner+"/samples", map[string]interface{}{
		"label":     label,
		"keypoints": hand.Points,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("train %s: expected status 201, got %d: %s", label, rec.Code, rec.Body.String())
	}
}

func TestSamplesHandler_Create(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodPost, "/api/datasets/alice/samples", map[string]interface{}{
		"label":     "fist",
		"keypoints": landmark.FistLandmarks().Points,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var result app.TrainResult
	decode(t, rec, &result)
	if result.ID == "" || result.Label != "fist" || result.Total != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestSamplesHandler_Create_Errors(t *testing.T) {
	h := newTestRouter(t, nil)

	same := make([]landmark.Point3D, landmark.NumLandmarks)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"invalid json", "{not json", http.StatusBadRequest, CodeBadRequest},
		{"empty body", nil, http.StatusBadRequest, CodeBadRequest},
		{"missing label", map[string]interface{}{"keypoints": landmark.FistLandmarks().Points}, http.StatusBadRequest, CodeBadRequest},
		{"label too long", map[string]interface{}{"label": string(bytes.Repeat([]byte("x"), 65)), "keypoints": landmark.FistLandmarks().Points}, http.StatusBadRequest, CodeBadRequest},
		{"missing keypoints", map[string]interface{}{"label": "x"}, http.StatusBadRequest, CodeBadRequest},
		{"wrong cardinality", map[string]interface{}{"label": "x", "keypoints": landmark.FistLandmarks().Points[:20]}, http.StatusUnprocessableEntity, CodeInvalidInput},
		{"degenerate", map[string]interface{}{"label": "x", "keypoints": same}, http.StatusUnprocessableEntity, CodeDegenerateInput},
		{"null coordinate", `{"label":"x","keypoints":[{"x":null,"y":1,"z":0}]}`, http.StatusUnprocessableEntity, CodeInvalidInput},
		{"missing coordinate", `{"label":"x","keypoints":[{"x":0,"y":1}]}`, http.StatusUnprocessableEntity, CodeInvalidInput},
		{"string coordinate", `{"label":"x","keypoints":[{"x":"abc","y":1,"z":0}]}`, http.StatusUnprocessableEntity, CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/datasets/alice/samples", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}

			var resp ErrorResponse
			decode(t, rec, &resp)
			if resp.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, resp.Code)
			}
			if resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestSamplesHandler_ListAndLabels(t *testing.T) {
	h := newTestRouter(t, nil)

	train(t, h, "alice", "peace", landmark.PeaceLandmarks())
	train(t, h, "alice", "fist", landmark.FistLandmarks())
	train(t, h, "alice", "peace", landmark.PeaceLandmarks())

	rec := do(t, h, http.MethodGet, "/api/datasets/alice/samples", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var list listSamplesResponse
	decode(t, rec, &list)
	if list.Owner != "alice" || list.Count != 3 || len(list.Samples) != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.Samples[1].Label != "fist" {
		t.Errorf("samples should be in training order, got %q second", list.Samples[1].Label)
	}
	if len(list.Samples[0].Features) != landmark.FeatureLen {
		t.Errorf("expected %d features, got %d", landmark.FeatureLen, len(list.Samples[0].Features))
	}
	if _, err := time.Parse(time.RFC3339, list.Samples[0].CreatedAt); err != nil {
		t.Errorf("created_at not RFC3339: %v", err)
	}

	rec = do(t, h, http.MethodGet, "/api/datasets/alice/labels", nil)
	var labels labelsResponse
	decode(t, rec, &labels)
	want := []labelResponse{{"peace", 2}, {"fist", 1}}
	if len(labels.Labels) != len(want) {
		t.Fatalf("got %+v, want %+v", labels.Labels, want)
	}
	for i := range want {
		if labels.Labels[i] != want[i] {
			t.Errorf("labels[%d] = %+v, want %+v", i, labels.Labels[i], want[i])
		}
	}

	rec = do(t, h, http.MethodGet, "/api/datasets/bob/samples", nil)
	var empty listSamplesResponse
	decode(t, rec, &empty)
	if empty.Count != 0 || empty.Samples == nil {
		t.Errorf("expected empty non-null list for unknown owner, got %s", rec.Body.String())
	}
}

func TestSamplesHandler_Delete(t *testing.T) {
	h := newTestRouter(t, nil)

	train(t, h, "alice", "peace", landmark.PeaceLandmarks())
	train(t, h, "alice", "fist", landmark.FistLandmarks())
	train(t, h, "alice", "fist", landmark.FistLandmarks())

	rec := do(t, h, http.MethodDelete, "/api/datasets/alice/samples?label=fist", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var del deleteResponse
	decode(t, rec, &del)
	if del.Removed != 2 || del.Label != "fist" {
		t.Errorf("unexpected delete response: %+v", del)
	}

	rec = do(t, h, http.MethodDelete, "/api/datasets/alice/samples", nil)
	decode(t, rec, &del)
	if del.Removed != 1 || del.Label != "" {
		t.Errorf("unexpected clear response: %+v", del)
	}

	rec = do(t, h, http.MethodPost, "/api/datasets/alice/predict", map[string]interface{}{
		"keypoints": landmark.PeaceLandmarks().Points,
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 after clear, got %d", rec.Code)
	}
}

func TestPredictHandler_Predict(t *testing.T) {
	h := newTestRouter(t, nil)

	t.Run("no data", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/datasets/alice/predict", map[string]interface{}{
			"keypoints": landmark.FistLandmarks().Points,
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		var resp ErrorResponse
		decode(t, rec, &resp)
		if resp.Code != CodeNoData || resp.Error != "no training data available" {
			t.Errorf("unexpected error response: %+v", resp)
		}
	})

	train(t, h, "alice", "fist", landmark.FistLandmarks())
	train(t, h, "alice", "peace", landmark.PeaceLandmarks())
	train(t, h, "alice", "peace", landmark.PeaceLandmarks())

	t.Run("majority", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/datasets/alice/predict", map[string]interface{}{
			"keypoints": landmark.PeaceLandmarks().Points,
			"k":         3,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var pred struct {
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
			Votes      int     `json:"votes"`
			Neighbors  int     `json:"neighbors"`
		}
		decode(t, rec, &pred)
		if pred.Label != "peace" || pred.Votes != 2 || pred.Neighbors != 3 {
			t.Errorf("unexpected prediction: %+v", pred)
		}
		if pred.Confidence < 66.6 || pred.Confidence > 66.7 {
			t.Errorf("expected confidence ~66.67, got %f", pred.Confidence)
		}
	})

	t.Run("k out of range", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/datasets/alice/predict", map[string]interface{}{
			"keypoints": landmark.PeaceLandmarks().Points,
			"k":         101,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("invalid keypoints", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/datasets/alice/predict", map[string]interface{}{
			"keypoints": landmark.PeaceLandmarks().Points[:3],
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rec.Code)
		}
	})

	t.Run("null coordinate", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/datasets/alice/predict", `{"keypoints":[{"x":null,"y":1,"z":0}],"k":1}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp ErrorResponse
		decode(t, rec, &resp)
		if resp.Code != CodeInvalidInput {
			t.Errorf("expected %q, got %+v", CodeInvalidInput, resp)
		}
	})
}

func TestPredictHandler_Settings(t *testing.T) {
	h := newTestRouter(t, nil)

	rec := do(t, h, http.MethodGet, "/api/datasets/alice/settings", nil)
	var settings settingsResponse
	decode(t, rec, &settings)
	if settings.K != 5 {
		t.Errorf("expected default k 5, got %d", settings.K)
	}

	rec = do(t, h, http.MethodPut, "/api/datasets/alice/settings", map[string]int{"k": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/datasets/alice/settings", nil)
	decode(t, rec, &settings)
	if settings.K != 1 || settings.Owner != "alice" {
		t.Errorf("unexpected settings: %+v", settings)
	}

	for _, k := range []int{0, -3, 101} {
		rec = do(t, h, http.MethodPut, "/api/datasets/alice/settings", map[string]int{"k": k})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("k=%d: expected status 400, got %d", k, rec.Code)
		}
	}
}

func TestSpeakHandler(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newTestRouter(t, nil)
		rec := do(t, h, http.MethodPost, "/api/speak", map[string]interface{}{"labels": []string{"hi"}})
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rec.Code)
		}
	})

	t.Run("speaks", func(t *testing.T) {
		h := newTestRouter(t, speech.NewSpeaker("true", nil, time.Second))
		rec := do(t, h, http.MethodPost, "/api/speak", map[string]interface{}{"labels": []string{"good", "none", "morning"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp speakResponse
		decode(t, rec, &resp)
		if resp.Text != "good morning" {
			t.Errorf("text = %q, want %q", resp.Text, "good morning")
		}
	})

	t.Run("nothing to say", func(t *testing.T) {
		h := newTestRouter(t, speech.NewSpeaker("true", nil, time.Second))
		rec := do(t, h, http.MethodPost, "/api/speak", map[string]interface{}{"labels": []string{"none"}})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{landmark.ErrInvalidInput, http.StatusUnprocessableEntity, CodeInvalidInput},
		{landmark.ErrDegenerateInput, http.StatusUnprocessableEntity, CodeDegenerateInput},
		{app.ErrInvalidK, http.StatusBadRequest, CodeBadRequest},
		{store.ErrNotFound, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		status, code := Classify(tt.err)
		if status != tt.wantStatus || code != tt.wantCode {
			t.Errorf("Classify(%v) = %d %q, want %d %q", tt.err, status, code, tt.wantStatus, tt.wantCode)
		}
	}
}

package api

import (
	"net/http"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/landmark"
)

// PredictHandler classifies keypoints and manages the owner's neighbor count.
type PredictHandler struct {
	app *app.App
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler(a *app.App) *PredictHandler {
	return &PredictHandler{app: a}
}

type predictRequest struct {
	Keypoints []landmark.Point3D `json:"keypoints" validate:"required"`
	K         int                `json:"k" validate:"min=0,max=100"`
}

type settingsRequest struct {
	K int `json:"k" validate:"required,min=1,max=100"`
}

type settingsResponse struct {
	Owner string `json:"owner"`
	K     int    `json:"k"`
}

// Predict handles POST /api/datasets/{owner}/predict.
func (h *PredictHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pred, err := h.app.Predict(ownerParam(r), req.Keypoints, req.K)
	if err != nil {
		writeAppError(w, r, err, "Failed to classify")
		return
	}

	writeJSON(w, http.StatusOK, pred)
}

// GetSettings handles GET /api/datasets/{owner}/settings.
func (h *PredictHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)

	k, err := h.app.K(owner)
	if err != nil {
		writeAppError(w, r, err, "Failed to load settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{Owner: owner, K: k})
}

// PutSettings handles PUT /api/datasets/{owner}/settings.
func (h *PredictHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner := ownerParam(r)
	if err := h.app.SetK(owner, req.K); err != nil {
		writeAppError(w, r, err, "Failed to save settings")
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{Owner: owner, K: req.K})
}

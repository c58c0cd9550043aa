package api

import (
	"net/http"
	"time"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/landmark"
)

// SamplesHandler handles an owner's training samples.
type SamplesHandler struct {
	app *app.App
}

// NewSamplesHandler creates a new SamplesHandler.
func NewSamplesHandler(a *app.App) *SamplesHandler {
	return &SamplesHandler{app: a}
}

// Request types

type trainRequest struct {
	Label     string             `json:"label" validate:"required,max=64"`
	Keypoints []landmark.Point3D `json:"keypoints" validate:"required"`
}

// Response types

type sampleResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Features  []float64 `json:"features"`
	CreatedAt string    `json:"created_at"`
}

type listSamplesResponse struct {
	Owner   string           `json:"owner"`
	Count   int              `json:"count"`
	Samples []sampleResponse `json:"samples"`
}

type deleteResponse struct {
	Owner   string `json:"owner"`
	Label   string `json:"label,omitempty"`
	Removed int    `json:"removed"`
}

type labelsResponse struct {
	Owner  string          `json:"owner"`
	Labels []labelResponse `json:"labels"`
}

type labelResponse struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// List handles GET /api/datasets/{owner}/samples.
func (h *SamplesHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)

	samples, err := h.app.Samples(owner)
	if err != nil {
		writeAppError(w, r, err, "Failed to list samples")
		return
	}

	response := listSamplesResponse{
		Owner:   owner,
		Count:   len(samples),
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, sampleResponse{
			ID:        s.ID,
			Label:     s.Label,
			Features:  s.Features,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/datasets/{owner}/samples.
func (h *SamplesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.app.Train(ownerParam(r), req.Label, req.Keypoints)
	if err != nil {
		writeAppError(w, r, err, "Failed to save sample")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Delete handles DELETE /api/datasets/{owner}/samples. With ?label= only
// that label's samples are removed.
func (h *SamplesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	label := r.URL.Query().Get("label")

	var (
		removed int
		err     error
	)
	if label != "" {
		removed, err = h.app.DeleteLabel(owner, label)
	} else {
		removed, err = h.app.Clear(owner)
	}
	if err != nil {
		writeAppError(w, r, err, "Failed to delete samples")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Owner: owner, Label: label, Removed: removed})
}

// Labels handles GET /api/datasets/{owner}/labels.
func (h *SamplesHandler) Labels(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)

	counts, err := h.app.Labels(owner)
	if err != nil {
		writeAppError(w, r, err, "Failed to list labels")
		return
	}

	response := labelsResponse{Owner: owner, Labels: make([]labelResponse, 0, len(counts))}
	for _, c := range counts {
		response.Labels = append(response.Labels, labelResponse{Label: c.Label, Count: c.Count})
	}

	writeJSON(w, http.StatusOK, response)
}

package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/handsign/internal/speech"
)

// SpeakHandler reads recognized labels aloud.
type SpeakHandler struct {
	speaker *speech.Speaker
}

// NewSpeakHandler creates a new SpeakHandler. A nil or disabled speaker
// answers 503.
func NewSpeakHandler(s *speech.Speaker) *SpeakHandler {
	return &SpeakHandler{speaker: s}
}

type speakRequest struct {
	Labels []string `json:"labels" validate:"required,max=256,dive,max=64"`
}

type speakResponse struct {
	Text string `json:"text"`
}

// Speak handles POST /api/speak.
func (h *SpeakHandler) Speak(w http.ResponseWriter, r *http.Request) {
	if !h.speaker.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "speech_disabled", speech.ErrDisabled.Error())
		return
	}

	var req speakRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	text, err := h.speaker.Speak(r.Context(), req.Labels)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, speakResponse{Text: text})
	case errors.Is(err, speech.ErrNothingToSay):
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, speech.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "speech_timeout", err.Error())
	default:
		writeAppError(w, r, err, "Failed to speak")
	}
}

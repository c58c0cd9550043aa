// Package api provides the HTTP handlers for the handsign dataset API.
package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/knn"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/metrics"
)

// maxBodyBytes bounds request bodies. One frame of keypoints is about 2 KB.
const maxBodyBytes = 1 << 20

// Error codes returned alongside error messages.
const (
	CodeInvalidInput    = "invalid_input"
	CodeDegenerateInput = "degenerate_input"
	CodeNoData          = "no_data"
	CodeNoHand          = "no_hand"
	CodeBadRequest      = "bad_request"
	CodeInternal        = "internal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// Classify maps an error from the recognition pipeline to an HTTP status
// and error code. Unknown errors are internal.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, landmark.ErrInvalidInput):
		return http.StatusUnprocessableEntity, CodeInvalidInput
	case errors.Is(err, landmark.ErrDegenerateInput):
		return http.StatusUnprocessableEntity, CodeDegenerateInput
	case errors.Is(err, knn.ErrNoData):
		return http.StatusConflict, CodeNoData
	case errors.Is(err, detector.ErrNoHand):
		return http.StatusUnprocessableEntity, CodeNoHand
	case errors.Is(err, app.ErrInvalidK):
		return http.StatusBadRequest, CodeBadRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeAppError writes err using Classify. Internal errors are logged and
// replaced with message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
		writeError(w, status, code, message)
		return
	}
	writeError(w, status, code, err.Error())
}

// decodeJSON reads and validates a request body into v. On failure it writes
// the error response and returns false: malformed keypoints are 422
// invalid_input, anything else is 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Request body is required")
			return false
		case errors.Is(err, landmark.ErrInvalidInput):
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropInvalid).Inc()
			writeAppError(w, r, err, "Invalid keypoints")
			return false
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders the first validation failure.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "max", "lte":
			return fe.Field() + " must be at most " + fe.Param()
		case "min", "gte":
			return fe.Field() + " must be at least " + fe.Param()
		}
		return fe.Field() + " is invalid"
	}
	return "Invalid request"
}

// ownerParam returns the {owner} path segment.
func ownerParam(r *http.Request) string {
	return chi.URLParam(r, "owner")
}

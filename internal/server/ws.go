package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ayusman/handsign/internal/app"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logging"
	"github.com/ayusman/handsign/internal/metrics"
	"github.com/ayusman/handsign/internal/server/api"
)

// maxFrameBytes bounds one incoming websocket message.
const maxFrameBytes = 64 << 10

// streamFrame is one client message: either raw keypoints or detector
// output. Neither means no hand was seen.
type streamFrame struct {
	Keypoints []landmark.Point3D      `json:"keypoints"`
	Hands     []landmark.HandLandmarks `json:"hands"`
	K         int                      `json:"k"`
}

func (f *streamFrame) points() []landmark.Point3D {
	if len(f.Keypoints) > 0 {
		return f.Keypoints
	}
	if len(f.Hands) > 0 {
		return f.Hands[0].Points
	}
	return nil
}

// StreamHandler classifies landmark frames sent over a WebSocket and answers
// each with a prediction or an error. Per-frame errors keep the connection
// open.
type StreamHandler struct {
	app      *app.App
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
}

// NewStreamHandler creates a StreamHandler that accepts browser connections
// from the same CORS origins as the REST API. With no origins only
// same-origin browser connections are accepted.
func NewStreamHandler(a *app.App, origins []string) *StreamHandler {
	h := &StreamHandler{
		app:     a,
		clients: make(map[*websocket.Conn]bool),
	}
	if len(origins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origins, origin)
		}
	}
	return h
}

// ServeHTTP handles WebSocket upgrade requests for /api/datasets/{owner}/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	metrics.StreamClients.Inc()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		metrics.StreamClients.Dec()
	}()

	log := logging.Ctx(r.Context())
	log.Debug().Str("owner", owner).Msg("Stream client connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("owner", owner).Msg("Stream closed")
			}
			return
		}

		reply := h.handleFrame(owner, data)
		msg, err := json.Marshal(reply)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode stream reply")
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// handleFrame classifies one message and returns the reply to send.
func (h *StreamHandler) handleFrame(owner string, data []byte) interface{} {
	var frame streamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		if errors.Is(err, landmark.ErrInvalidInput) {
			metrics.FramesDroppedTotal.WithLabelValues(metrics.DropInvalid).Inc()
			_, code := api.Classify(err)
			return api.ErrorResponse{Error: err.Error(), Code: code}
		}
		return api.ErrorResponse{Error: "Invalid JSON", Code: api.CodeBadRequest}
	}

	points := frame.points()
	if points == nil {
		metrics.FramesDroppedTotal.WithLabelValues(metrics.DropNoHand).Inc()
		return api.ErrorResponse{Error: detector.ErrNoHand.Error(), Code: api.CodeNoHand}
	}

	pred, err := h.app.Predict(owner, points, frame.K)
	if err != nil {
		status, code := api.Classify(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			logging.Error().Err(err).Str("owner", owner).Msg("Stream prediction failed")
			msg = "prediction failed"
		}
		return api.ErrorResponse{Error: msg, Code: code}
	}
	return pred
}

// Clients returns the number of connected stream clients.
func (h *StreamHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *StreamHandler) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
		deadline := time.Now().Add(time.Second)
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			logging.Debug().Err(err).Msg("Failed to send close frame")
		}
		conn.Close()
	}
}

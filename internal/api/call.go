package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/avdwoude/callbox/internal/call"
	"github.com/avdwoude/callbox/internal/media"
	"github.com/avdwoude/callbox/internal/signal"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API binds to localhost; browser pages served from file:// or a
	// local webview carry unhelpful origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterCall registers the call API endpoints.
func RegisterCall(mux *http.ServeMux, eng *call.Engine, devices *media.Manager, selfID string) {
	// GET /api/call/state — current phase plus receive stats, for header
	// widgets and for testing without a UI.
	handleGet(mux, "/api/call/state", func(w http.ResponseWriter, r *http.Request) {
		stats, err := eng.Stats(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"self_id":     selfID,
			"state":       eng.Snapshot(),
			"live_tracks": devices.LiveCount(),
			"remote_rtp":  stats,
		})
	})

	// POST /api/call/start
	handlePost(mux, "/api/call/start", func(w http.ResponseWriter, r *http.Request, req struct {
		CalleeID  string `json:"callee_id"`
		MediaKind string `json:"media_kind"`
	}) {
		if req.CalleeID == "" {
			http.Error(w, "missing callee_id", http.StatusBadRequest)
			return
		}
		kind := signal.MediaKind(req.MediaKind)
		if req.MediaKind == "" {
			kind = signal.MediaVideo
		}
		if err := eng.StartCall(r.Context(), req.CalleeID, kind); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "calling", "callee_id": req.CalleeID})
	})

	// POST /api/call/answer
	handlePost(mux, "/api/call/answer", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		if err := eng.AnswerCall(r.Context()); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "answered"})
	})

	// POST /api/call/reject
	handlePost(mux, "/api/call/reject", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		if err := eng.RejectCall(r.Context()); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "rejected"})
	})

	// POST /api/call/end
	handlePost(mux, "/api/call/end", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		if err := eng.EndCall(r.Context()); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ended"})
	})

	// POST /api/call/toggle-audio
	handlePost(mux, "/api/call/toggle-audio", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		sending, err := eng.ToggleAudio(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"sending": sending})
	})

	// POST /api/call/toggle-video
	handlePost(mux, "/api/call/toggle-video", func(w http.ResponseWriter, r *http.Request, _ struct{}) {
		sending, err := eng.ToggleVideo(r.Context())
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"sending": sending})
	})

	// GET /api/call/events — SSE stream of state snapshots. Each
	// connection gets its own subscription; unsubscribed on disconnect so
	// the engine never accumulates stale listeners.
	handleGet(mux, "/api/call/events", func(w http.ResponseWriter, r *http.Request) {
		sseHeaders(w)
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		ch, cancel := eng.Subscribe()
		defer cancel()

		fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"ok\"}\n\n")
		flusher.Flush()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-ch:
				if !ok {
					return
				}
				data, err := json.Marshal(snap)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	})

	// GET /api/call/ws — WebSocket stream of the same snapshots, for
	// clients without an EventSource.
	handleGet(mux, "/api/call/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("API: websocket upgrade: %v", err)
			return
		}
		defer conn.Close()

		ch, cancel := eng.Subscribe()
		defer cancel()

		// Drain client frames so pings and close frames are processed.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					cancel()
					return
				}
			}
		}()

		for snap := range ch {
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
	})
}

// httpError maps engine errors onto status codes. Phase conflicts are the
// client's fault; everything else is a server-side failure.
func httpError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, call.ErrNoCall):
		status = http.StatusConflict
	case errors.Is(err, call.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	var devErr *media.DeviceError
	if errors.As(err, &devErr) {
		status = http.StatusFailedDependency
	}
	http.Error(w, err.Error(), status)
}

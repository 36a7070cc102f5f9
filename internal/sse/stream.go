package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-registration/internal/logger"
)

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

// Serve writes updates to the client until the request ends or updates is
// closed. hello is sent first as the "connected" event.
func Serve(w http.ResponseWriter, r *http.Request, updates <-chan RegistrationUpdate, hello map[string]string, log *logger.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	greeting, _ := json.Marshal(hello)
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", greeting)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				log.Error("SSE", fmt.Sprintf("Failed to serialize registration update: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Kind, data)
			flusher.Flush()
		case <-ctx.Done():
			log.Debug("SSE", fmt.Sprintf("Client disconnected from %s", r.URL.Path))
			return
		}
	}
}

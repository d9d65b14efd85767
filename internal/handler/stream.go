package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// keepAliveInterval is how often an idle stream sends a comment line, so
// proxies with read timeouts do not cut it.
var keepAliveInterval = 25 * time.Second

// eventStream writes server-sent events. Each event is one JSON document.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// openStream sends the event-stream headers. After this the status code is
// fixed at 200, so all validation must happen before it is called.
func openStream(w http.ResponseWriter) (*eventStream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &eventStream{w: w, rc: http.NewResponseController(w)}
	// Streams outlive the server's write timeout.
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, err
	}
	return s, s.rc.Flush()
}

func (s *eventStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *eventStream) keepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

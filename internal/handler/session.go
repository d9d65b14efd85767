package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/auth"
	"github.com/sakif/chore-tracker/internal/session"
	"github.com/sakif/chore-tracker/internal/watch"
)

// SessionHandler tells clients where they belong in the onboarding flow.
// The read routes sit behind OptionalAuth: being signed out is a valid input.
type SessionHandler struct {
	hub      *watch.Hub
	profiles session.ProfileLoader
	logger   *slog.Logger

	mu      sync.Mutex
	streams map[string]openSession
}

// openSession is a live event stream that navigate requests can reach.
type openSession struct {
	userID string
	sess   *session.Session
}

func NewSessionHandler(hub *watch.Hub, profiles session.ProfileLoader, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		hub:      hub,
		profiles: profiles,
		logger:   logger,
		streams:  make(map[string]openSession),
	}
}

// HandleRoute returns one decision for the segment the client is on.
//
// HTTP: GET /api/session/route?segment=(tabs)
// RESPONSE: {"redirect": true, "target": "family-choice", "from": "(tabs)"}
func (h *SessionHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	segment := r.URL.Query().Get("segment")

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, session.Decide(session.Input{Identity: session.Absent, Segment: segment}))
		return
	}
	writeJSON(w, http.StatusOK, session.Resolve(r.Context(), h.profiles, claims.UserID, segment, h.logger))
}

// HandleEvents streams "redirect" events for as long as the client stays
// connected. Each event is a replace-navigation the client should apply.
// A signed-out caller gets its single decision and the stream ends.
//
// A signed-in stream opens with a "stream" event carrying its id; the
// client passes that id to HandleNavigate whenever the user moves.
//
// HTTP: GET /api/session/events?segment=login
func (h *SessionHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	segment := r.URL.Query().Get("segment")
	claims, signedIn := auth.ClaimsFromContext(ctx)

	stream, err := openStream(w)
	if err != nil {
		h.logger.WarnContext(ctx, "session stream: cannot stream", slog.String("error", err.Error()))
		return
	}

	if !signedIn {
		if d := session.Decide(session.Input{Identity: session.Absent, Segment: segment}); d.Redirect {
			_ = stream.send("redirect", d)
		}
		return
	}

	sess := session.New(h.hub, h.profiles, claims.UserID, claims.TokenID, segment, h.logger)
	id := xid.New().String()
	h.register(id, openSession{userID: claims.UserID, sess: sess})
	defer h.unregister(id)
	if err := stream.send("stream", map[string]string{"id": id}); err != nil {
		return
	}

	// Run calls emit on its own goroutine; every write to the stream
	// happens in the loop below.
	events := make(chan session.Decision)
	done := make(chan error, 1)
	go func() {
		done <- sess.Run(ctx, func(d session.Decision) error {
			select {
			case events <- d:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				h.logger.WarnContext(ctx, "session stream ended", slog.String("error", err.Error()))
			}
			return
		case d := <-events:
			if err := stream.send("redirect", d); err != nil {
				return
			}
		case <-ticker.C:
			if err := stream.keepAlive(); err != nil {
				return
			}
		}
	}
}

type navigateRequest struct {
	Stream  string `json:"stream"`
	Segment string `json:"segment"`
}

// HandleNavigate feeds a client-side navigation into the caller's open
// session stream. Any redirect it causes arrives on that stream.
//
// HTTP: POST /api/session/navigate
// BODY: {"stream": "cq0f...", "segment": "login"}
func (h *SessionHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Stream == "" {
		writeError(w, apperror.ValidationFailed("stream", "stream id is required"))
		return
	}

	open, ok := h.lookup(req.Stream)
	if !ok || open.userID != uid {
		writeError(w, apperror.NotFound("session stream", req.Stream))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := open.sess.Navigate(ctx, req.Segment); err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeError(w, apperror.NotFound("session stream", req.Stream))
			return
		}
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) register(id string, s openSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[id] = s
}

func (h *SessionHandler) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.streams, id)
}

func (h *SessionHandler) lookup(id string) (openSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[id]
	return s, ok
}

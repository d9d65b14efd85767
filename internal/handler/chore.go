package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/service"
	"github.com/sakif/chore-tracker/internal/watch"
)

// ChoreHandler serves the caller's family chore list.
type ChoreHandler struct {
	chores *service.ChoreService
	hub    *watch.Hub
	logger *slog.Logger
}

func NewChoreHandler(chores *service.ChoreService, hub *watch.Hub, logger *slog.Logger) *ChoreHandler {
	return &ChoreHandler{chores: chores, hub: hub, logger: logger}
}

type createChoreRequest struct {
	Title      string  `json:"title"`
	AssignedTo *string `json:"assignedTo"`
	DueDate    string  `json:"dueDate"`
}

// HandleList returns the chores in display order.
//
// HTTP: GET /api/chores
func (h *ChoreHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	chores, err := h.chores.List(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(chores))
}

// HandleCreate adds a chore.
//
// HTTP: POST /api/chores
// BODY: {"title": "Vacuum", "assignedTo": "<uid>" | null, "dueDate": "2024-03-05" | ""}
func (h *ChoreHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createChoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	chore, err := h.chores.Create(r.Context(), uid, service.ChoreInput{
		Title:      req.Title,
		AssignedTo: req.AssignedTo,
		DueDate:    req.DueDate,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chore)
}

// HandleToggle flips a chore between open and done.
//
// HTTP: POST /api/chores/{id}/toggle
func (h *ChoreHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	chore, err := h.chores.Toggle(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chore)
}

// HandleDelete removes a chore.
//
// HTTP: DELETE /api/chores/{id}
func (h *ChoreHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.chores.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvents streams the sorted chore list: once on connect, then after
// every change. The stream ends with a "closed" event when the family is
// deleted or the caller leaves it.
//
// HTTP: GET /api/chores/events
func (h *ChoreHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	code, err := h.chores.Family(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}

	// Subscribe before the first read so nothing committed in between is lost.
	choresSub := h.hub.Subscribe(watch.ChoresTopic(code))
	defer choresSub.Close()
	profileSub := h.hub.Subscribe(watch.ProfileTopic(uid))
	defer profileSub.Close()

	initial, err := h.chores.List(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}

	stream, err := openStream(w)
	if err != nil {
		h.logger.WarnContext(ctx, "chore stream: cannot stream", slog.String("error", err.Error()))
		return
	}
	if err := stream.send("chores", nonNil(initial)); err != nil {
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := stream.keepAlive(); err != nil {
				return
			}

		case ev, ok := <-choresSub.C():
			if !ok {
				return
			}
			if ev.Err != nil {
				h.logger.WarnContext(ctx, "chore stream: skipping failed revision", slog.String("error", ev.Err.Error()))
				continue
			}
			if !ev.Exists() {
				_ = stream.send("closed", map[string]string{"reason": "family deleted"})
				return
			}
			chores, _ := ev.Value.([]model.Chore)
			if err := stream.send("chores", nonNil(chores)); err != nil {
				return
			}

		case ev, ok := <-profileSub.C():
			if !ok {
				return
			}
			if p, isProfile := ev.Value.(*model.Profile); isProfile && p.HasFamily && *p.FamilyID == code {
				continue
			}
			if ev.Err != nil {
				continue
			}
			_ = stream.send("closed", map[string]string{"reason": "left family"})
			return
		}
	}
}

// nonNil makes an empty list encode as [] rather than null.
func nonNil(chores []model.Chore) []model.Chore {
	if chores == nil {
		return []model.Chore{}
	}
	return chores
}

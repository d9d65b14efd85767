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

// FamilyHandler exposes the family allocator.
type FamilyHandler struct {
	families *service.FamilyService
	hub      *watch.Hub
	logger   *slog.Logger
}

func NewFamilyHandler(families *service.FamilyService, hub *watch.Hub, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{families: families, hub: hub, logger: logger}
}

type createFamilyRequest struct {
	Name string `json:"name"`
}

type joinFamilyRequest struct {
	Code string `json:"code"`
}

type leaveFamilyRequest struct {
	Confirm bool `json:"confirm"`
}

type inviteRequest struct {
	Email string `json:"email"`
}

// HandleCurrent returns the caller's family, including the code to share.
//
// HTTP: GET /api/family
func (h *FamilyHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	family, err := h.families.Current(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

// HandleGet returns a family by code. Only its members may read it.
//
// HTTP: GET /api/family/{code}
func (h *FamilyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	family, err := h.families.Get(r.Context(), uid, chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

// HandleProfile returns the caller's onboarding profile. A user who never
// joined a family gets {"hasFamily": false}.
//
// HTTP: GET /api/profile
func (h *FamilyHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	profile, err := h.families.Profile(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleCreate allocates a new family with the caller as admin.
//
// HTTP: POST /api/family
// BODY: {"name": "The Lovelaces"}
func (h *FamilyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	family, err := h.families.Create(r.Context(), uid, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, family)
}

// HandleJoin adds the caller to the family with the given code.
//
// HTTP: POST /api/family/join
// BODY: {"code": "xyz1ab"}
func (h *FamilyHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req joinFamilyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	family, err := h.families.Join(r.Context(), uid, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, family)
}

// HandleLeave removes the caller from their family. A sole admin gets 428
// until the request repeats with "confirm": true.
//
// HTTP: POST /api/family/leave
// BODY: {"confirm": false}
func (h *FamilyHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req leaveFamilyRequest
	// An empty body means confirm=false.
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := h.families.Leave(r.Context(), uid, req.Confirm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleInvite e-mails the family code.
//
// HTTP: POST /api/family/invite
// BODY: {"email": "bob@example.com"}
func (h *FamilyHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.families.Invite(r.Context(), uid, req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "invite sent"})
}

// HandleEvents streams the caller's family document (name, code, members)
// on connect and after every change, so the member list stays live. It
// ends with a "closed" event when the family is deleted or the caller
// leaves it.
//
// HTTP: GET /api/family/events
func (h *FamilyHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	current, err := h.families.Current(ctx, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	code := current.Code

	// Subscribe before the first read so nothing committed in between is lost.
	familySub := h.hub.Subscribe(watch.FamilyTopic(code))
	defer familySub.Close()
	profileSub := h.hub.Subscribe(watch.ProfileTopic(uid))
	defer profileSub.Close()

	initial, err := h.families.Get(ctx, uid, code)
	if err != nil {
		writeError(w, err)
		return
	}

	stream, err := openStream(w)
	if err != nil {
		h.logger.WarnContext(ctx, "family stream: cannot stream", slog.String("error", err.Error()))
		return
	}
	if err := stream.send("family", initial); err != nil {
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

		case ev, ok := <-familySub.C():
			if !ok {
				return
			}
			if ev.Err != nil {
				h.logger.WarnContext(ctx, "family stream: skipping failed revision", slog.String("error", ev.Err.Error()))
				continue
			}
			family, isFamily := ev.Value.(*model.Family)
			if !ev.Exists() || !isFamily {
				_ = stream.send("closed", map[string]string{"reason": "family deleted"})
				return
			}
			if !family.HasMember(uid) {
				_ = stream.send("closed", map[string]string{"reason": "left family"})
				return
			}
			if err := stream.send("family", family); err != nil {
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

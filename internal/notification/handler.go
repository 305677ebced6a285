package notification

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type ServiceAPI interface {
	Schedule(ctx context.Context, actor *permission.Principal, dto ScheduleDTO) (*ScheduleResult, error)
	ListMine(ctx context.Context, userID int64, unreadOnly bool, p pagination.Params) (pagination.Page[Notification], error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: service}
}

// ListMine handles GET /notifications?unread=&page=&limit=
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var unread bool
	if raw := r.URL.Query().Get("unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid unread flag")
			return
		}
		unread = v
	}

	page, err := h.Service.ListMine(r.Context(), actor.UserID, unread, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	n, err := h.Service.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int64{"unread": n})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.MarkRead(r.Context(), actor.UserID, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	n, err := h.Service.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

// Schedule handles POST /notifications. Callers need notifications:send.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var dto ScheduleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	result, err := h.Service.Schedule(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if !result.Delivered {
		status = http.StatusAccepted
	}
	h.WriteJSON(w, status, result)
}

package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type ServiceAPI interface {
	List(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Entry], error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: service}
}

// ListAuditLogs serves GET /audit-logs?entity_type=&entity_id=&user_id=&page=&limit=
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if raw := q.Get("user_id"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		filter.UserID = &uid
	}

	page, err := h.Service.List(r.Context(), filter, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

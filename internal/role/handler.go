package role

import (
	"context"
	"net/http"

	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type ServiceAPI interface {
	GetRole(ctx context.Context, id int64) (*Role, error)
	ListRoles(ctx context.Context, p pagination.Params) (pagination.Page[*Role], error)
	GetAllPermissions(ctx context.Context) ([]PermissionGroup, error)
	CreateRole(ctx context.Context, actor *permission.Principal, dto RoleDTO) (*Role, error)
	UpdateRole(ctx context.Context, actor *permission.Principal, id int64, dto RoleDTO) (*Role, error)
	DeleteRole(ctx context.Context, actor *permission.Principal, id int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: service}
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.ListRoles(r.Context(), pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	role, err := h.Service.GetRole(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) GetAllPermissions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Service.GetAllPermissions(r.Context())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"modules": groups})
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var dto RoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	role, err := h.Service.CreateRole(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto RoleDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	role, err := h.Service.UpdateRole(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteRole(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

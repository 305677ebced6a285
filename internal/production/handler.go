package production

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/pagination"
)

type ServiceAPI interface {
	GetGuide(ctx context.Context, id int64) (*Guide, error)
	ListGuides(ctx context.Context, filter GuideFilter, p pagination.Params) (pagination.Page[*Guide], error)
	CreateGuide(ctx context.Context, actor *permission.Principal, dto CreateGuideDTO) (*Guide, error)
	UpdateGuide(ctx context.Context, actor *permission.Principal, id int64, dto UpdateGuideDTO) (*Guide, error)
	DeleteGuide(ctx context.Context, actor *permission.Principal, id int64) error
	AssignUsers(ctx context.Context, actor *permission.Principal, id int64, dto AssignUsersDTO) (*Guide, error)
	Archive(ctx context.Context, actor *permission.Principal, id int64) (*Guide, error)
	Restore(ctx context.Context, actor *permission.Principal, id int64) (*Guide, error)

	AddStep(ctx context.Context, actor *permission.Principal, guideID int64, dto StepDTO) (*Step, error)
	UpdateStep(ctx context.Context, actor *permission.Principal, guideID, stepID int64, dto UpdateStepDTO) (*Step, error)
	DeleteStep(ctx context.Context, actor *permission.Principal, guideID, stepID int64) error
	ReorderSteps(ctx context.Context, actor *permission.Principal, guideID int64, dto ReorderStepsDTO) (*Guide, error)
	SetStepStatus(ctx context.Context, actor *permission.Principal, guideID, stepID int64, dto StepStatusDTO) (*Step, error)
	StartWork(ctx context.Context, actor *permission.Principal, guideID, stepID int64) (*Step, error)
	StopWork(ctx context.Context, actor *permission.Principal, guideID, stepID int64) (*Step, error)

	ListReservations(ctx context.Context, guideID int64) ([]Reservation, error)
	AttachItem(ctx context.Context, actor *permission.Principal, guideID int64, dto AttachItemDTO) (*Reservation, error)
	ReleaseReservation(ctx context.Context, actor *permission.Principal, guideID, reservationID int64) error
	WithdrawItems(ctx context.Context, actor *permission.Principal, guideID int64, dto WithdrawDTO) ([]Reservation, error)

	CreateTemplate(ctx context.Context, actor *permission.Principal, dto CreateTemplateDTO) (*Template, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	ListTemplates(ctx context.Context, search string, p pagination.Params) (pagination.Page[*Template], error)
	DeleteTemplate(ctx context.Context, actor *permission.Principal, id int64) error
	Instantiate(ctx context.Context, actor *permission.Principal, templateID int64, dto InstantiateTemplateDTO) (*Guide, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: svc}
}

// ListGuides handles GET /production/guides?status=&priority=&search=&assigned_to_me=&archived=
func (h *Handler) ListGuides(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := GuideFilter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
	}
	if raw := q.Get("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid archived flag")
			return
		}
		filter.IncludeArchived = archived
	}
	if raw := q.Get("assigned_to_me"); raw != "" {
		mine, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid assigned_to_me flag")
			return
		}
		if mine {
			filter.AssignedTo = &actor.UserID
		}
	}
	if filter.AssignedTo == nil {
		if filter.AssignedTo, ok = h.OptionalInt64Query(w, r, "assigned_to"); !ok {
			return
		}
	}

	page, err := h.Service.ListGuides(r.Context(), filter, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetGuide(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	guide, err := h.Service.GetGuide(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

func (h *Handler) CreateGuide(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var dto CreateGuideDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	guide, err := h.Service.CreateGuide(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, guide)
}

func (h *Handler) UpdateGuide(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto UpdateGuideDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	guide, err := h.Service.UpdateGuide(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

func (h *Handler) DeleteGuide(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteGuide(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignUsers(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto AssignUsersDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	guide, err := h.Service.AssignUsers(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

// Archive handles POST /production/guides/{id}/archive
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	guide, err := h.Service.Archive(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

// Restore handles POST /production/guides/{id}/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	guide, err := h.Service.Restore(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

func (h *Handler) AddStep(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto StepDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	step, err := h.Service.AddStep(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, step)
}

func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	actor, guideID, stepID, ok := h.stepParams(w, r)
	if !ok {
		return
	}
	var dto UpdateStepDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	step, err := h.Service.UpdateStep(r.Context(), actor, guideID, stepID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, step)
}

func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	actor, guideID, stepID, ok := h.stepParams(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteStep(r.Context(), actor, guideID, stepID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReorderSteps(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto ReorderStepsDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	guide, err := h.Service.ReorderSteps(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, guide)
}

// SetStepStatus handles PUT /production/guides/{id}/steps/{stepId}/status
func (h *Handler) SetStepStatus(w http.ResponseWriter, r *http.Request) {
	actor, guideID, stepID, ok := h.stepParams(w, r)
	if !ok {
		return
	}
	var dto StepStatusDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	step, err := h.Service.SetStepStatus(r.Context(), actor, guideID, stepID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, step)
}

func (h *Handler) StartWork(w http.ResponseWriter, r *http.Request) {
	actor, guideID, stepID, ok := h.stepParams(w, r)
	if !ok {
		return
	}
	step, err := h.Service.StartWork(r.Context(), actor, guideID, stepID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, step)
}

func (h *Handler) StopWork(w http.ResponseWriter, r *http.Request) {
	actor, guideID, stepID, ok := h.stepParams(w, r)
	if !ok {
		return
	}
	step, err := h.Service.StopWork(r.Context(), actor, guideID, stepID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, step)
}

func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	lines, err := h.Service.ListReservations(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, lines)
}

// AttachItem handles POST /production/guides/{id}/inventory
func (h *Handler) AttachItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto AttachItemDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	line, err := h.Service.AttachItem(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, line)
}

// ReleaseReservation handles DELETE /production/guides/{id}/inventory/{reservationId}
func (h *Handler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	reservationID, ok := h.IDParam(w, r, "reservationId")
	if !ok {
		return
	}
	if err := h.Service.ReleaseReservation(r.Context(), actor, id, reservationID); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WithdrawItems handles POST /production/guides/{id}/withdraw-items
func (h *Handler) WithdrawItems(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto WithdrawDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	lines, err := h.Service.WithdrawItems(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"withdrawn": lines})
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, err := h.Service.ListTemplates(r.Context(), r.URL.Query().Get("search"), pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	tpl, err := h.Service.GetTemplate(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tpl)
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var dto CreateTemplateDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	tpl, err := h.Service.CreateTemplate(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, tpl)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteTemplate(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Instantiate handles POST /production/templates/{id}/instantiate
func (h *Handler) Instantiate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var dto InstantiateTemplateDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	guide, err := h.Service.Instantiate(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, guide)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (*permission.Principal, int64, bool) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return nil, 0, false
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return nil, 0, false
	}
	return actor, id, true
}

func (h *Handler) stepParams(w http.ResponseWriter, r *http.Request) (*permission.Principal, int64, int64, bool) {
	actor, guideID, ok := h.actorAndID(w, r)
	if !ok {
		return nil, 0, 0, false
	}
	stepID, ok := h.IDParam(w, r, "stepId")
	if !ok {
		return nil, 0, 0, false
	}
	return actor, guideID, stepID, true
}

package inventory

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/internal/transport"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetItem(ctx context.Context, id int64) (*Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (*Item, error)
	ListItems(ctx context.Context, filter ItemFilter, p pagination.Params) (pagination.Page[*Item], error)
	CreateItem(ctx context.Context, actor *permission.Principal, dto CreateItemDTO) (*Item, error)
	UpdateItem(ctx context.Context, actor *permission.Principal, id int64, dto UpdateItemDTO) (*Item, error)
	DeleteItem(ctx context.Context, actor *permission.Principal, id int64) error
	Move(ctx context.Context, actor *permission.Principal, itemID int64, t TxType, dto StockMovementDTO) (*Result, error)
	PostTransaction(ctx context.Context, actor *permission.Principal, itemID int64, dto StockMovementDTO) (*Result, error)
	ItemTransactions(ctx context.Context, itemID int64, p pagination.Params) (pagination.Page[Transaction], error)
	ListTransactions(ctx context.Context, filter TransactionFilter, p pagination.Params) (pagination.Page[Transaction], error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: svc}
}

// ListItems handles GET /inventory/items?search=&category=&low_stock=
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ItemFilter{Search: q.Get("search"), Category: q.Get("category")}
	if raw := q.Get("low_stock"); raw != "" {
		low, err := strconv.ParseBool(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid low_stock flag")
			return
		}
		filter.LowStock = low
	}

	page, err := h.Service.ListItems(r.Context(), filter, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	item, err := h.Service.GetItem(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) GetItemByBarcode(w http.ResponseWriter, r *http.Request) {
	item, err := h.Service.GetItemByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	var dto CreateItemDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	if dto.Quantity > 0 && !permission.HasPermission(actor, permission.ModuleInventory, permission.ActionStock, TxAdd.RequiredLevel()) {
		h.HandleServiceError(w, internal.ErrForbidden)
		return
	}
	item, err := h.Service.CreateItem(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto UpdateItemDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}
	item, err := h.Service.UpdateItem(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteItem(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddStock handles POST /inventory/items/{id}/add
func (h *Handler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, TxAdd)
}

// RemoveStock handles POST /inventory/items/{id}/remove
func (h *Handler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, TxRemove)
}

// PostTransaction handles POST /inventory/items/{id}/transactions with any
// transaction type in the body.
func (h *Handler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "")
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, t TxType) {
	actor, ok := h.Principal(w, r)
	if !ok {
		return
	}
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	var dto StockMovementDTO
	if !h.DecodeJSON(w, r, &dto) {
		return
	}

	var (
		result *Result
		err    error
	)
	if t == "" {
		result, err = h.Service.PostTransaction(r.Context(), actor, id, dto)
	} else {
		result, err = h.Service.Move(r.Context(), actor, id, t, dto)
	}
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ItemTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.IDParam(w, r, "id")
	if !ok {
		return
	}
	page, err := h.Service.ItemTransactions(r.Context(), id, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

// ListTransactions handles GET /inventory/transactions/all?type=&item_id=&user_id=&guide_id=
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter TransactionFilter
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, valid := ParseTxType(raw)
		if !valid {
			h.WriteError(w, http.StatusBadRequest, "invalid type")
			return
		}
		filter.Type = t
	}
	var ok bool
	if filter.ItemID, ok = h.OptionalInt64Query(w, r, "item_id"); !ok {
		return
	}
	if filter.UserID, ok = h.OptionalInt64Query(w, r, "user_id"); !ok {
		return
	}
	if filter.GuideID, ok = h.OptionalInt64Query(w, r, "guide_id"); !ok {
		return
	}

	page, err := h.Service.ListTransactions(r.Context(), filter, pagination.Parse(r))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, page)
}

package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	"github.com/frahmantamala/production-management/internal/core/database"
	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"github.com/google/uuid"
)

type RepositoryAPI interface {
	GetItem(ctx context.Context, id int64) (*inventoryDatamodel.Item, error)
	GetItemByBarcode(ctx context.Context, barcode string) (*inventoryDatamodel.Item, error)
	ListItems(ctx context.Context, filter ItemFilter, p pagination.Params) ([]*inventoryDatamodel.Item, int64, error)
	CreateItem(ctx context.Context, item *inventoryDatamodel.Item) error
	UpdateItem(ctx context.Context, item *inventoryDatamodel.Item) error
	DeleteItem(ctx context.Context, id int64) error
	// SwapCounters writes c only if the row still has version, bumping it.
	SwapCounters(ctx context.Context, id, version int64, c Counters) (bool, error)
	CreateTransaction(ctx context.Context, t *inventoryDatamodel.Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter, p pagination.Params) ([]*inventoryDatamodel.Transaction, int64, error)
}

// Ledger is the stock-posting surface other services depend on.
type Ledger interface {
	Post(ctx context.Context, m Movement) (*Result, error)
}

type Service struct {
	repo    RepositoryAPI
	tx      database.TxManager
	audit   audit.Recorder
	events  events.Publisher
	metrics *Metrics
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, tx database.TxManager, recorder audit.Recorder, publisher events.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		tx:      tx,
		audit:   recorder,
		events:  publisher,
		metrics: metrics,
		logger:  logger,
	}
}

// Post applies one ledger movement: the counter update and its transaction row
// commit together or not at all. The counter write is a compare-and-swap on the
// item version, so a concurrent posting makes this one fail with
// ErrConcurrentModification instead of overdrawing.
func (s *Service) Post(ctx context.Context, m Movement) (*Result, error) {
	var (
		result *Result
		before Counters
	)
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetItem(txCtx, m.ItemID)
		if err != nil {
			return internal.NewInternalError("failed to load item", err)
		}
		if row == nil {
			return internal.ErrItemNotFound
		}

		before = Counters{Quantity: row.Quantity, Reserved: row.Reserved}
		next, err := Apply(m.Type, m.Quantity, before)
		if err != nil {
			return err
		}

		swapped, err := s.repo.SwapCounters(txCtx, row.ID, row.Version, next)
		if err != nil {
			return internal.NewInternalError("failed to update stock", err)
		}
		if !swapped {
			return internal.ErrConcurrentModification
		}
		row.Quantity, row.Reserved, row.Version = next.Quantity, next.Reserved, row.Version+1

		entry := &inventoryDatamodel.Transaction{
			ItemID:        row.ID,
			UserID:        m.UserID,
			Type:          string(m.Type),
			Quantity:      m.Quantity,
			QuantityAfter: next.Quantity,
			ReservedAfter: next.Reserved,
			Reason:        m.Reason,
			GuideID:       m.GuideID,
		}
		if err := s.repo.CreateTransaction(txCtx, entry); err != nil {
			return internal.NewInternalError("failed to write transaction", err)
		}
		entry.Item = row

		if err := s.record(txCtx, m.UserID, audit.ActionLedger, row.ID, map[string]interface{}{
			"type":           m.Type,
			"quantity":       m.Quantity,
			"quantity_after": next.Quantity,
			"reserved_after": next.Reserved,
			"reason":         m.Reason,
			"guide_id":       m.GuideID,
		}); err != nil {
			return err
		}

		result = &Result{Item: FromDataModel(row), Transaction: TransactionFromDataModel(entry)}
		return nil
	})
	s.metrics.observe(m.Type, m.Quantity, err)
	if err != nil {
		s.logger.Info("ledger posting rejected", "item_id", m.ItemID, "type", m.Type, "quantity", m.Quantity, "error", err)
		return nil, err
	}

	s.logger.Info("ledger posting applied",
		"item_id", m.ItemID,
		"type", m.Type,
		"quantity", m.Quantity,
		"quantity_after", result.Item.Quantity,
		"reserved_after", result.Item.Reserved)

	if result.Item.LowStock && result.Item.Available < before.Available() {
		s.publish(ctx, events.NewStockLowEvent(result.Item.ID, result.Item.Name, result.Item.Available, *result.Item.MinQuantity))
	}
	return result, nil
}

// Move posts a movement on behalf of actor, enforcing the inventory.stock
// level the transaction type requires.
func (s *Service) Move(ctx context.Context, actor *permission.Principal, itemID int64, t TxType, dto StockMovementDTO) (*Result, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if t.GuideOnly() {
		return nil, internal.NewValidationFieldError("type",
			"ISSUE is posted by withdrawing a production guide reservation", internal.ErrCodeInvalidOperation)
	}
	if !permission.HasPermission(actor, permission.ModuleInventory, permission.ActionStock, t.RequiredLevel()) {
		return nil, internal.ErrForbidden.WithDetails(map[string]interface{}{
			"permission":     permission.Key(permission.ModuleInventory, permission.ActionStock),
			"required_level": int(t.RequiredLevel()),
		})
	}

	var reason *string
	if dto.Reason != nil {
		if r := strings.TrimSpace(*dto.Reason); r != "" {
			reason = &r
		}
	}
	return s.Post(ctx, Movement{
		ItemID:   itemID,
		UserID:   actor.UserID,
		Type:     t,
		Quantity: dto.Quantity,
		Reason:   reason,
	})
}

// PostTransaction is Move with the type taken from the request body.
func (s *Service) PostTransaction(ctx context.Context, actor *permission.Principal, itemID int64, dto StockMovementDTO) (*Result, error) {
	t, ok := ParseTxType(dto.Type)
	if !ok {
		return nil, internal.NewValidationFieldError("type", fmt.Sprintf("unknown transaction type %q", dto.Type), internal.ErrCodeInvalidOperation)
	}
	return s.Move(ctx, actor, itemID, t, dto)
}

func (s *Service) GetItem(ctx context.Context, id int64) (*Item, error) {
	row, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load item", err)
	}
	if row == nil {
		return nil, internal.ErrItemNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) GetItemByBarcode(ctx context.Context, barcode string) (*Item, error) {
	row, err := s.repo.GetItemByBarcode(ctx, strings.TrimSpace(barcode))
	if err != nil {
		return nil, internal.NewInternalError("failed to load item", err)
	}
	if row == nil {
		return nil, internal.ErrItemNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) ListItems(ctx context.Context, filter ItemFilter, p pagination.Params) (pagination.Page[*Item], error) {
	rows, total, err := s.repo.ListItems(ctx, filter, p)
	if err != nil {
		s.logger.Error("failed to list items", "error", err)
		return pagination.Page[*Item]{}, internal.NewInternalError("failed to list items", err)
	}
	items := make([]*Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromDataModel(row))
	}
	return pagination.NewPage(items, total, p), nil
}

// CreateItem stores a new item. A non-zero initial quantity is posted as an
// ADD transaction so the ledger explains every unit on hand.
func (s *Service) CreateItem(ctx context.Context, actor *permission.Principal, dto CreateItemDTO) (*Item, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	barcode := strings.TrimSpace(dto.Barcode)
	if barcode == "" {
		barcode = NewBarcode()
	}
	unit := strings.TrimSpace(dto.Unit)
	if unit == "" {
		unit = "pcs"
	}
	userID := actorID(actor)

	var id int64
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.GetItemByBarcode(txCtx, barcode)
		if err != nil {
			return internal.NewInternalError("failed to check barcode", err)
		}
		if existing != nil {
			return internal.ErrBarcodeTaken
		}

		row := &inventoryDatamodel.Item{
			Name:        strings.TrimSpace(dto.Name),
			Barcode:     barcode,
			Unit:        unit,
			MinQuantity: dto.MinQuantity,
			Location:    dto.Location,
			Category:    dto.Category,
			Price:       dto.Price,
			Description: dto.Description,
			Version:     1,
		}
		if err := s.repo.CreateItem(txCtx, row); err != nil {
			return internal.NewInternalError("failed to create item", err)
		}
		id = row.ID

		if err := s.record(txCtx, userID, audit.ActionCreate, id, map[string]interface{}{
			"name": row.Name, "barcode": row.Barcode, "initial_quantity": dto.Quantity,
		}); err != nil {
			return err
		}

		if dto.Quantity > 0 {
			reason := "initial stock"
			if _, err := s.Post(txCtx, Movement{ItemID: id, UserID: userID, Type: TxAdd, Quantity: dto.Quantity, Reason: &reason}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory item created", "item_id", id, "barcode", barcode)
	return s.GetItem(ctx, id)
}

func (s *Service) UpdateItem(ctx context.Context, actor *permission.Principal, id int64, dto UpdateItemDTO) (*Item, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetItem(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load item", err)
		}
		if row == nil {
			return internal.ErrItemNotFound
		}

		if dto.Barcode != nil {
			barcode := strings.TrimSpace(*dto.Barcode)
			if barcode != row.Barcode {
				other, err := s.repo.GetItemByBarcode(txCtx, barcode)
				if err != nil {
					return internal.NewInternalError("failed to check barcode", err)
				}
				if other != nil && other.ID != id {
					return internal.ErrBarcodeTaken
				}
				row.Barcode = barcode
			}
		}
		if dto.Name != nil {
			row.Name = strings.TrimSpace(*dto.Name)
		}
		if dto.Unit != nil && strings.TrimSpace(*dto.Unit) != "" {
			row.Unit = strings.TrimSpace(*dto.Unit)
		}
		if dto.MinQuantity != nil {
			row.MinQuantity = dto.MinQuantity
		}
		if dto.Location != nil {
			row.Location = *dto.Location
		}
		if dto.Category != nil {
			row.Category = *dto.Category
		}
		if dto.Price != nil {
			row.Price = *dto.Price
		}
		if dto.Description != nil {
			row.Description = *dto.Description
		}

		if err := s.repo.UpdateItem(txCtx, row); err != nil {
			return internal.NewInternalError("failed to update item", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionUpdate, id, dto)
	})
	if err != nil {
		return nil, err
	}
	return s.GetItem(ctx, id)
}

// DeleteItem removes an item that holds no reservations. Its ledger rows stay.
func (s *Service) DeleteItem(ctx context.Context, actor *permission.Principal, id int64) error {
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		row, err := s.repo.GetItem(txCtx, id)
		if err != nil {
			return internal.NewInternalError("failed to load item", err)
		}
		if row == nil {
			return internal.ErrItemNotFound
		}
		if row.Reserved > 0 {
			return internal.ErrItemReserved.WithDetails(map[string]int64{"reserved": row.Reserved})
		}
		if err := s.repo.DeleteItem(txCtx, id); err != nil {
			return internal.NewInternalError("failed to delete item", err)
		}
		return s.record(txCtx, actorID(actor), audit.ActionDelete, id, map[string]interface{}{
			"name": row.Name, "barcode": row.Barcode, "quantity": row.Quantity,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("inventory item deleted", "item_id", id)
	return nil
}

// ItemTransactions lists one item's ledger, newest first.
func (s *Service) ItemTransactions(ctx context.Context, itemID int64, p pagination.Params) (pagination.Page[Transaction], error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return pagination.Page[Transaction]{}, err
	}
	return s.ListTransactions(ctx, TransactionFilter{ItemID: &itemID}, p)
}

func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter, p pagination.Params) (pagination.Page[Transaction], error) {
	rows, total, err := s.repo.ListTransactions(ctx, filter, p)
	if err != nil {
		s.logger.Error("failed to list transactions", "error", err)
		return pagination.Page[Transaction]{}, internal.NewInternalError("failed to list transactions", err)
	}
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, TransactionFromDataModel(row))
	}
	return pagination.NewPage(out, total, p), nil
}

// NewBarcode returns a fresh internal barcode.
func NewBarcode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "INV-" + strings.ToUpper(raw[:12])
}

func (s *Service) record(ctx context.Context, userID int64, action string, itemID int64, details any) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, userID, action, audit.EntityItem, itemID, details); err != nil {
		return internal.NewInternalError("failed to write audit log", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func actorID(p *permission.Principal) int64 {
	if p == nil {
		return 0
	}
	return p.UserID
}

package inventory

import (
	"math"
	"strings"
	"time"

	"github.com/frahmantamala/production-management/internal"
	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxAdd            TxType = "ADD"
	TxRemove         TxType = "REMOVE"
	TxReserve        TxType = "RESERVE"
	TxRelease        TxType = "RELEASE"
	TxRemoveReserved TxType = "REMOVE_RESERVED"
	TxIssue          TxType = "ISSUE"
	TxReturn         TxType = "RETURN"
	TxAdjust         TxType = "ADJUST"
	TxForce          TxType = "FORCE"
	TxForceRemove    TxType = "FORCE_REMOVE"
)

var txTypes = []TxType{
	TxAdd, TxRemove, TxReserve, TxRelease, TxRemoveReserved,
	TxIssue, TxReturn, TxAdjust, TxForce, TxForceRemove,
}

func ParseTxType(s string) (TxType, bool) {
	t := TxType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range txTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// RequiredLevel is the inventory.stock level needed to post t directly.
func (t TxType) RequiredLevel() permission.Level {
	switch t {
	case TxAdjust:
		return permission.LevelEdit
	case TxForce, TxForceRemove:
		return permission.LevelFull
	default:
		return permission.LevelView
	}
}

// GuideOnly reports whether t may only be posted through a guide reservation.
func (t TxType) GuideOnly() bool {
	return t == TxIssue
}

// Counters is the mutable stock state of an item.
type Counters struct {
	Quantity int64
	Reserved int64
}

func (c Counters) Available() int64 {
	return c.Quantity - c.Reserved
}

// Apply computes the counters produced by posting t with operand n. It never
// returns counters that break 0 <= reserved <= quantity.
func Apply(t TxType, n int64, c Counters) (Counters, error) {
	if n < 0 || (n == 0 && t != TxAdd && t != TxAdjust && t != TxForce) {
		return c, internal.NewValidationFieldError("quantity", "quantity must be greater than zero", internal.ErrCodeInvalidQuantity)
	}

	switch t {
	case TxAdd, TxReturn:
		if n > math.MaxInt64-c.Quantity {
			return c, internal.NewValidationFieldError("quantity", "quantity exceeds the maximum stock level", internal.ErrCodeInvalidQuantity)
		}
		c.Quantity += n
	case TxRemove:
		if c.Available() < n {
			return c, internal.ErrInsufficientStock
		}
		c.Quantity -= n
	case TxReserve:
		if c.Available() < n {
			return c, internal.ErrInsufficientStock
		}
		c.Reserved += n
	case TxRelease:
		if c.Reserved < n {
			return c, internal.ErrInsufficientReservation
		}
		c.Reserved -= n
	case TxRemoveReserved, TxIssue:
		if c.Reserved < n {
			return c, internal.ErrInsufficientReservation
		}
		c.Quantity -= n
		c.Reserved -= n
	case TxAdjust:
		if n < c.Reserved {
			return c, internal.NewValidationFieldError("quantity",
				"adjusted quantity cannot be lower than the reserved amount", internal.ErrCodeInsufficientReservation)
		}
		c.Quantity = n
	case TxForce:
		c.Quantity = n
		if c.Reserved > n {
			c.Reserved = n
		}
	case TxForceRemove:
		if n > c.Quantity {
			n = c.Quantity
		}
		c.Quantity -= n
		if c.Reserved > c.Quantity {
			c.Reserved = c.Quantity
		}
	default:
		return c, internal.NewValidationFieldError("type", "unknown transaction type", internal.ErrCodeInvalidOperation)
	}
	return c, nil
}

type Item struct {
	ID          int64               `json:"id"`
	Name        string              `json:"name"`
	Barcode     string              `json:"barcode"`
	Quantity    int64               `json:"quantity"`
	Reserved    int64               `json:"reserved"`
	Available   int64               `json:"available"`
	Unit        string              `json:"unit"`
	MinQuantity *int64              `json:"min_quantity,omitempty"`
	LowStock    bool                `json:"low_stock"`
	Location    string              `json:"location,omitempty"`
	Category    string              `json:"category,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Description string              `json:"description,omitempty"`
	Version     int64               `json:"version"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func FromDataModel(i *inventoryDatamodel.Item) *Item {
	out := &Item{
		ID:          i.ID,
		Name:        i.Name,
		Barcode:     i.Barcode,
		Quantity:    i.Quantity,
		Reserved:    i.Reserved,
		Available:   i.Quantity - i.Reserved,
		Unit:        i.Unit,
		MinQuantity: i.MinQuantity,
		Location:    i.Location,
		Category:    i.Category,
		Price:       i.Price,
		Description: i.Description,
		Version:     i.Version,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
	out.LowStock = i.MinQuantity != nil && out.Available <= *i.MinQuantity
	return out
}

type Transaction struct {
	ID            int64     `json:"id"`
	ItemID        int64     `json:"item_id"`
	ItemName      string    `json:"item_name,omitempty"`
	UserID        int64     `json:"user_id"`
	Type          TxType    `json:"type"`
	Quantity      int64     `json:"quantity"`
	QuantityAfter int64     `json:"quantity_after"`
	ReservedAfter int64     `json:"reserved_after"`
	Reason        *string   `json:"reason,omitempty"`
	GuideID       *int64    `json:"guide_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func TransactionFromDataModel(t *inventoryDatamodel.Transaction) Transaction {
	out := Transaction{
		ID:            t.ID,
		ItemID:        t.ItemID,
		UserID:        t.UserID,
		Type:          TxType(t.Type),
		Quantity:      t.Quantity,
		QuantityAfter: t.QuantityAfter,
		ReservedAfter: t.ReservedAfter,
		Reason:        t.Reason,
		GuideID:       t.GuideID,
		CreatedAt:     t.CreatedAt,
	}
	if t.Item != nil {
		out.ItemName = t.Item.Name
	}
	return out
}

// Movement is one ledger posting.
type Movement struct {
	ItemID   int64
	UserID   int64
	Type     TxType
	Quantity int64
	Reason   *string
	GuideID  *int64
}

// Result is the item state after a movement together with its ledger row.
type Result struct {
	Item        *Item       `json:"item"`
	Transaction Transaction `json:"transaction"`
}

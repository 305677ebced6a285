package inventory

import (
	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/core/common/validation"
	"github.com/shopspring/decimal"
)

type CreateItemDTO struct {
	Name        string              `json:"name"`
	Barcode     string              `json:"barcode"`
	Quantity    int64               `json:"quantity"`
	Unit        string              `json:"unit"`
	MinQuantity *int64              `json:"min_quantity"`
	Location    string              `json:"location"`
	Category    string              `json:"category"`
	Price       decimal.NullDecimal `json:"price"`
	Description string              `json:"description"`
}

func (d *CreateItemDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("name", d.Name).Required().MaxLength(255)
	v.Field("barcode", d.Barcode).MaxLength(64)
	v.Field("quantity", d.Quantity).MinInt(0, internal.ErrCodeInvalidQuantity)
	v.Field("unit", d.Unit).MaxLength(32)
	v.Field("min_quantity", d.MinQuantity).MinInt(0, internal.ErrCodeInvalidQuantity)
	v.Field("price", d.Price).Custom(nonNegativePrice("price"))
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// UpdateItemDTO edits item metadata. Stock counters are changed only through
// ledger transactions, so there is no quantity field.
type UpdateItemDTO struct {
	Name        *string              `json:"name"`
	Barcode     *string              `json:"barcode"`
	Unit        *string              `json:"unit"`
	MinQuantity *int64               `json:"min_quantity"`
	Location    *string              `json:"location"`
	Category    *string              `json:"category"`
	Price       *decimal.NullDecimal `json:"price"`
	Description *string              `json:"description"`
	// Quantity is accepted only to reject it with a clear message.
	Quantity *int64 `json:"quantity,omitempty"`
}

func (d *UpdateItemDTO) Validate() error {
	v := validation.NewValidator()
	if d.Quantity != nil {
		v.Field("quantity", d.Quantity).Custom(func(interface{}) *internal.AppError {
			return internal.NewValidationFieldError("quantity",
				"quantity cannot be edited directly, post an ADJUST transaction instead", internal.ErrCodeInvalidOperation)
		})
	}
	if d.Name != nil {
		v.Field("name", *d.Name).Required().MaxLength(255)
	}
	if d.Barcode != nil {
		v.Field("barcode", *d.Barcode).Required().MaxLength(64)
	}
	if d.Unit != nil {
		v.Field("unit", *d.Unit).MaxLength(32)
	}
	v.Field("min_quantity", d.MinQuantity).MinInt(0, internal.ErrCodeInvalidQuantity)
	if d.Price != nil {
		v.Field("price", *d.Price).Custom(nonNegativePrice("price"))
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// StockMovementDTO is the body of every stock endpoint. Type is ignored by the
// add/remove shortcuts.
type StockMovementDTO struct {
	Type     string  `json:"type"`
	Quantity int64   `json:"quantity"`
	Reason   *string `json:"reason"`
}

func (d *StockMovementDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("quantity", d.Quantity).MinInt(0, internal.ErrCodeInvalidQuantity)
	if d.Reason != nil {
		v.Field("reason", *d.Reason).MaxLength(500)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ItemFilter struct {
	Search   string
	Category string
	LowStock bool
}

type TransactionFilter struct {
	ItemID  *int64
	Type    TxType
	UserID  *int64
	GuideID *int64
}

func nonNegativePrice(field string) func(interface{}) *internal.AppError {
	return func(value interface{}) *internal.AppError {
		p, ok := value.(decimal.NullDecimal)
		if !ok || !p.Valid || !p.Decimal.IsNegative() {
			return nil
		}
		return internal.NewValidationFieldError(field, field+" must not be negative", internal.ErrCodeValidationFailed)
	}
}

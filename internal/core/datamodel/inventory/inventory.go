package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID          int64               `gorm:"primaryKey"`
	Name        string              `gorm:"column:name;not null;index"`
	Barcode     string              `gorm:"column:barcode;uniqueIndex;not null"`
	Quantity    int64               `gorm:"column:quantity;not null;default:0"`
	Reserved    int64               `gorm:"column:reserved;not null;default:0"`
	Unit        string              `gorm:"column:unit;not null;default:'pcs'"`
	MinQuantity *int64              `gorm:"column:min_quantity"`
	Location    string              `gorm:"column:location"`
	Category    string              `gorm:"column:category;index"`
	Price       decimal.NullDecimal `gorm:"column:price;type:decimal(14,2)"`
	Description string              `gorm:"column:description"`
	Version     int64               `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Item) TableName() string { return "inventory_items" }

// Transaction is an append-only ledger row. Quantity is the operand as
// submitted; QuantityAfter and ReservedAfter snapshot the counters it produced.
type Transaction struct {
	ID            int64     `gorm:"primaryKey"`
	ItemID        int64     `gorm:"column:item_id;not null;index"`
	UserID        int64     `gorm:"column:user_id;not null;index"`
	Type          string    `gorm:"column:type;not null;index"`
	Quantity      int64     `gorm:"column:quantity;not null"`
	QuantityAfter int64     `gorm:"column:quantity_after;not null"`
	ReservedAfter int64     `gorm:"column:reserved_after;not null"`
	Reason        *string   `gorm:"column:reason"`
	GuideID       *int64    `gorm:"column:guide_id;index"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index"`
	Item          *Item     `gorm:"foreignKey:ItemID"`
}

func (Transaction) TableName() string { return "inventory_transactions" }

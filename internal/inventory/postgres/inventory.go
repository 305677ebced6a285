package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/production-management/internal/core/database"
	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	"github.com/frahmantamala/production-management/internal/inventory"
	"github.com/frahmantamala/production-management/pkg/pagination"
	"gorm.io/gorm"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) inventory.RepositoryAPI {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) GetItem(ctx context.Context, id int64) (*inventoryDatamodel.Item, error) {
	return r.first(database.GetDB(ctx, r.db).Where("id = ?", id))
}

func (r *InventoryRepository) GetItemByBarcode(ctx context.Context, barcode string) (*inventoryDatamodel.Item, error) {
	if barcode == "" {
		return nil, nil
	}
	return r.first(database.GetDB(ctx, r.db).Where("barcode = ?", barcode))
}

func (r *InventoryRepository) first(q *gorm.DB) (*inventoryDatamodel.Item, error) {
	var item inventoryDatamodel.Item
	if err := q.First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *InventoryRepository) ListItems(ctx context.Context, filter inventory.ItemFilter, p pagination.Params) ([]*inventoryDatamodel.Item, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&inventoryDatamodel.Item{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(barcode) LIKE ? OR LOWER(description) LIKE ?", like, like, like)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.LowStock {
		q = q.Where("min_quantity IS NOT NULL AND quantity - reserved <= min_quantity")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []*inventoryDatamodel.Item
	err := q.Order("name ASC, id ASC").Offset(p.Offset).Limit(p.Limit).Find(&items).Error
	return items, total, err
}

func (r *InventoryRepository) CreateItem(ctx context.Context, item *inventoryDatamodel.Item) error {
	return database.GetDB(ctx, r.db).Create(item).Error
}

// UpdateItem writes metadata columns only; counters and version belong to
// SwapCounters.
func (r *InventoryRepository) UpdateItem(ctx context.Context, item *inventoryDatamodel.Item) error {
	return database.GetDB(ctx, r.db).Model(&inventoryDatamodel.Item{}).
		Where("id = ?", item.ID).
		Updates(map[string]interface{}{
			"name":         item.Name,
			"barcode":      item.Barcode,
			"unit":         item.Unit,
			"min_quantity": item.MinQuantity,
			"location":     item.Location,
			"category":     item.Category,
			"price":        item.Price,
			"description":  item.Description,
		}).Error
}

func (r *InventoryRepository) DeleteItem(ctx context.Context, id int64) error {
	return database.GetDB(ctx, r.db).Where("id = ?", id).Delete(&inventoryDatamodel.Item{}).Error
}

func (r *InventoryRepository) SwapCounters(ctx context.Context, id, version int64, c inventory.Counters) (bool, error) {
	res := database.GetDB(ctx, r.db).Model(&inventoryDatamodel.Item{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"quantity": c.Quantity,
			"reserved": c.Reserved,
			"version":  gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *InventoryRepository) CreateTransaction(ctx context.Context, t *inventoryDatamodel.Transaction) error {
	return database.GetDB(ctx, r.db).Omit("Item").Create(t).Error
}

func (r *InventoryRepository) ListTransactions(ctx context.Context, filter inventory.TransactionFilter, p pagination.Params) ([]*inventoryDatamodel.Transaction, int64, error) {
	q := database.GetDB(ctx, r.db).Model(&inventoryDatamodel.Transaction{})
	if filter.ItemID != nil {
		q = q.Where("item_id = ?", *filter.ItemID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.GuideID != nil {
		q = q.Where("guide_id = ?", *filter.GuideID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*inventoryDatamodel.Transaction
	err := q.Preload("Item").Order("created_at DESC, id DESC").Offset(p.Offset).Limit(p.Limit).Find(&rows).Error
	return rows, total, err
}

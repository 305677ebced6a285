package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const (
	countItemsQuery    = `SELECT COUNT(*) FROM inventory_items`
	countLowStockQuery = `SELECT COUNT(*) FROM inventory_items
		WHERE min_quantity IS NOT NULL AND quantity - reserved <= min_quantity`
	stockValueQuery = `SELECT COALESCE(SUM(price * quantity), 0) FROM inventory_items
		WHERE price IS NOT NULL`
	guidesByStatusQuery = `SELECT status, COUNT(*) AS count FROM production_guides
		WHERE deleted_at IS NULL GROUP BY status`
	activeUsersQuery        = `SELECT COUNT(*) FROM users WHERE is_active = ?`
	recentTransactionsQuery = `SELECT COUNT(*) FROM inventory_transactions WHERE created_at >= ?`
	unreadQuery             = `SELECT COUNT(*) FROM notifications
		WHERE recipient_id = ? AND read_at IS NULL AND send_at <= ?`
)

// Repository runs the read-only aggregate queries behind the dashboard.
// Queries use ? placeholders and are rebound for the connection's driver.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}

// Load fills every stats field for userID. Recent means created at or after
// since; notifications scheduled after now are not counted.
func (r *Repository) Load(ctx context.Context, userID int64, since, now time.Time) (*Stats, error) {
	stats := &Stats{GuidesByStatus: make(map[string]int64)}
	var err error

	if stats.Items, err = r.count(ctx, countItemsQuery); err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	if stats.LowStockItems, err = r.count(ctx, countLowStockQuery); err != nil {
		return nil, fmt.Errorf("count low stock: %w", err)
	}

	var value decimal.Decimal
	if err := r.db.GetContext(ctx, &value, stockValueQuery); err != nil {
		return nil, fmt.Errorf("stock value: %w", err)
	}
	stats.StockValue = value.Round(2)

	var rows []statusCount
	if err := r.db.SelectContext(ctx, &rows, guidesByStatusQuery); err != nil {
		return nil, fmt.Errorf("guides by status: %w", err)
	}
	for _, row := range rows {
		stats.GuidesByStatus[row.Status] = row.Count
	}

	if stats.ActiveUsers, err = r.count(ctx, activeUsersQuery, true); err != nil {
		return nil, fmt.Errorf("count active users: %w", err)
	}
	if stats.RecentTransactions, err = r.count(ctx, recentTransactionsQuery, since); err != nil {
		return nil, fmt.Errorf("count recent transactions: %w", err)
	}
	if stats.UnreadNotifications, err = r.count(ctx, unreadQuery, userID, now); err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	return stats, nil
}

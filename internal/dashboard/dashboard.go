package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats is the landing-page summary for one user.
type Stats struct {
	Items               int64            `json:"items"`
	LowStockItems       int64            `json:"low_stock_items"`
	StockValue          decimal.Decimal  `json:"stock_value"`
	GuidesByStatus      map[string]int64 `json:"guides_by_status"`
	ActiveUsers         int64            `json:"active_users"`
	RecentTransactions  int64            `json:"recent_transactions"`
	UnreadNotifications int64            `json:"unread_notifications"`
	GeneratedAt         time.Time        `json:"generated_at"`
}

type statusCount struct {
	Status string `db:"status"`
	Count  int64  `db:"count"`
}

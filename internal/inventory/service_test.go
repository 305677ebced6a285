package inventory_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	auditPostgres "github.com/frahmantamala/production-management/internal/audit/postgres"
	"github.com/frahmantamala/production-management/internal/core/database"
	"github.com/frahmantamala/production-management/internal/core/database/dbtest"
	auditDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/audit"
	inventoryDatamodel "github.com/frahmantamala/production-management/internal/core/datamodel/inventory"
	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/inventory"
	inventoryPostgres "github.com/frahmantamala/production-management/internal/inventory/postgres"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestInventory(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Inventory Suite")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// staleRepository loses every compare-and-swap, as if another writer always
// got there first.
type staleRepository struct {
	inventory.RepositoryAPI
}

func (staleRepository) SwapCounters(context.Context, int64, int64, inventory.Counters) (bool, error) {
	return false, nil
}

func counterValue(reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

var _ = Describe("Inventory Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		service   *inventory.Service
		publisher *recordingPublisher
		registry  *prometheus.Registry
		worker    *permission.Principal
		manager   *permission.Principal
		admin     *permission.Principal
		slogger   *slog.Logger
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())

		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		publisher = &recordingPublisher{}
		registry = prometheus.NewRegistry()
		service = inventory.NewService(
			inventoryPostgres.NewInventoryRepository(db),
			database.NewTxManager(db),
			audit.NewService(auditPostgres.NewAuditRepository(db), slogger),
			publisher,
			inventory.NewMetrics(registry),
			slogger,
		)

		worker = &permission.Principal{UserID: 1, Permissions: permission.Set{"inventory.stock": permission.LevelView}}
		manager = &permission.Principal{UserID: 2, Permissions: permission.Set{"inventory.stock": permission.LevelEdit}}
		admin = &permission.Principal{UserID: 3, Superuser: true}
	})

	newItem := func(quantity int64) *inventory.Item {
		item, err := service.CreateItem(ctx, admin, inventory.CreateItemDTO{Name: "Bolt M6", Quantity: quantity})
		Expect(err).NotTo(HaveOccurred())
		return item
	}

	move := func(actor *permission.Principal, id int64, t inventory.TxType, n int64) (*inventory.Result, error) {
		return service.Move(ctx, actor, id, t, inventory.StockMovementDTO{Quantity: n})
	}

	transactionCount := func(itemID int64) int64 {
		var n int64
		Expect(db.Model(&inventoryDatamodel.Transaction{}).Where("item_id = ?", itemID).Count(&n).Error).To(Succeed())
		return n
	}

	Describe("CreateItem", func() {
		It("generates a barcode and posts the initial quantity as ADD", func() {
			item := newItem(10)

			Expect(item.Barcode).To(HavePrefix("INV-"))
			Expect(item.Quantity).To(Equal(int64(10)))
			Expect(item.Available).To(Equal(int64(10)))

			page, err := service.ItemTransactions(ctx, item.ID, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Data).To(HaveLen(1))
			Expect(page.Data[0].Type).To(Equal(inventory.TxAdd))
			Expect(page.Data[0].QuantityAfter).To(Equal(int64(10)))
		})

		It("writes no ledger row for an empty item", func() {
			item := newItem(0)
			Expect(transactionCount(item.ID)).To(BeZero())
		})

		It("rejects a duplicate barcode", func() {
			_, err := service.CreateItem(ctx, admin, inventory.CreateItemDTO{Name: "A", Barcode: "X-1"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CreateItem(ctx, admin, inventory.CreateItemDTO{Name: "B", Barcode: "X-1"})
			Expect(errors.Is(err, internal.ErrBarcodeTaken)).To(BeTrue())
		})

		It("keeps decimal prices exact", func() {
			item, err := service.CreateItem(ctx, admin, inventory.CreateItemDTO{
				Name:  "Gasket",
				Price: decimal.NewNullDecimal(decimal.RequireFromString("12.35")),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Price.Valid).To(BeTrue())
			Expect(item.Price.Decimal.String()).To(Equal("12.35"))
		})
	})

	Describe("ledger", func() {
		It("reserves then issues without changing availability", func() {
			// Given an item {quantity:10, reserved:0}
			item := newItem(10)

			// When RESERVE(4)
			res, err := service.Post(ctx, inventory.Movement{ItemID: item.ID, UserID: 1, Type: inventory.TxReserve, Quantity: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.Quantity).To(Equal(int64(10)))
			Expect(res.Item.Reserved).To(Equal(int64(4)))
			Expect(res.Item.Available).To(Equal(int64(6)))

			// And ISSUE(4)
			res, err = service.Post(ctx, inventory.Movement{ItemID: item.ID, UserID: 1, Type: inventory.TxIssue, Quantity: 4})
			Expect(err).NotTo(HaveOccurred())

			// Then {6,0} with available still 6, and two more ledger rows
			Expect(res.Item.Quantity).To(Equal(int64(6)))
			Expect(res.Item.Reserved).To(BeZero())
			Expect(res.Item.Available).To(Equal(int64(6)))

			page, err := service.ListTransactions(ctx, inventory.TransactionFilter{ItemID: &item.ID}, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(3)))
			types := []inventory.TxType{}
			for _, t := range page.Data {
				types = append(types, t.Type)
			}
			Expect(types).To(ContainElements(inventory.TxReserve, inventory.TxIssue))
		})

		It("restores reserved after RESERVE then RELEASE", func() {
			item := newItem(10)
			_, err := move(worker, item.ID, inventory.TxReserve, 3)
			Expect(err).NotTo(HaveOccurred())
			res, err := move(worker, item.ID, inventory.TxRelease, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.Reserved).To(BeZero())
			Expect(res.Item.Quantity).To(Equal(int64(10)))
		})

		It("rejects REMOVE beyond available without writing anything", func() {
			item := newItem(5)
			_, err := move(worker, item.ID, inventory.TxReserve, 2)
			Expect(err).NotTo(HaveOccurred())
			before := transactionCount(item.ID)

			_, err = move(worker, item.ID, inventory.TxRemove, 4)
			Expect(errors.Is(err, internal.ErrInsufficientStock)).To(BeTrue())

			Expect(transactionCount(item.ID)).To(Equal(before))
			got, err := service.GetItem(ctx, item.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Quantity).To(Equal(int64(5)))
			Expect(got.Reserved).To(Equal(int64(2)))
		})

		It("bumps the version on every posting", func() {
			item := newItem(5)
			res, err := move(worker, item.ID, inventory.TxAdd, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.Version).To(Equal(item.Version + 1))
		})

		It("writes an audit row next to each posting", func() {
			item := newItem(5)
			_, err := move(worker, item.ID, inventory.TxRemove, 1)
			Expect(err).NotTo(HaveOccurred())

			var n int64
			Expect(db.Model(&auditDatamodel.Log{}).
				Where("entity_type = ? AND action = ?", audit.EntityItem, audit.ActionLedger).
				Count(&n).Error).To(Succeed())
			Expect(n).To(Equal(int64(2)))
		})

		It("fails with a conflict when the version moved underneath", func() {
			item := newItem(5)
			stale := inventory.NewService(
				staleRepository{RepositoryAPI: inventoryPostgres.NewInventoryRepository(db)},
				database.NewTxManager(db), nil, nil, nil, slogger,
			)

			_, err := stale.Post(ctx, inventory.Movement{ItemID: item.ID, UserID: 1, Type: inventory.TxRemove, Quantity: 1})
			Expect(errors.Is(err, internal.ErrConcurrentModification)).To(BeTrue())
			Expect(transactionCount(item.ID)).To(Equal(int64(1)))
		})

		It("returns not found for unknown items", func() {
			_, err := move(admin, 4040, inventory.TxAdd, 1)
			Expect(errors.Is(err, internal.ErrItemNotFound)).To(BeTrue())
		})
	})

	Describe("permission levels", func() {
		It("lets level 1 add and remove", func() {
			item := newItem(5)
			_, err := move(worker, item.ID, inventory.TxAdd, 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires level 2 to ADJUST", func() {
			item := newItem(5)
			_, err := move(worker, item.ID, inventory.TxAdjust, 3)
			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())

			res, err := move(manager, item.ID, inventory.TxAdjust, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.Quantity).To(Equal(int64(3)))
		})

		It("requires level 3 to FORCE", func() {
			item := newItem(5)
			_, err := move(manager, item.ID, inventory.TxForce, 1)
			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())

			full := &permission.Principal{UserID: 4, Permissions: permission.Set{"inventory.stock": permission.LevelFull}}
			res, err := move(full, item.ID, inventory.TxForce, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.Quantity).To(Equal(int64(1)))
		})

		It("keeps ISSUE off the direct stock endpoints", func() {
			item := newItem(5)
			_, err := service.PostTransaction(ctx, admin, item.ID, inventory.StockMovementDTO{Type: "ISSUE", Quantity: 1})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("rejects unknown types", func() {
			item := newItem(5)
			_, err := service.PostTransaction(ctx, admin, item.ID, inventory.StockMovementDTO{Type: "GIFT", Quantity: 1})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("low stock", func() {
		It("publishes when a posting drops availability to the minimum", func() {
			minimum := int64(3)
			item, err := service.CreateItem(ctx, admin, inventory.CreateItemDTO{Name: "Rivet", Quantity: 5, MinQuantity: &minimum})
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.events).To(BeEmpty())

			_, err = move(worker, item.ID, inventory.TxRemove, 2)
			Expect(err).NotTo(HaveOccurred())

			Expect(publisher.events).To(HaveLen(1))
			low, ok := publisher.events[0].(*events.StockLowEvent)
			Expect(ok).To(BeTrue())
			Expect(low.Available).To(Equal(int64(3)))

			page, err := service.ListItems(ctx, inventory.ItemFilter{LowStock: true}, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
		})
	})

	Describe("UpdateItem and DeleteItem", func() {
		It("refuses direct quantity edits", func() {
			item := newItem(5)
			q := int64(99)
			_, err := service.UpdateItem(ctx, admin, item.ID, inventory.UpdateItemDTO{Quantity: &q})
			Expect(err).To(HaveOccurred())
		})

		It("updates metadata without touching counters", func() {
			item := newItem(5)
			name := "Bolt M8"
			updated, err := service.UpdateItem(ctx, admin, item.ID, inventory.UpdateItemDTO{Name: &name})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Bolt M8"))
			Expect(updated.Quantity).To(Equal(int64(5)))
			Expect(updated.Version).To(Equal(item.Version))
		})

		It("blocks deleting an item with reservations", func() {
			item := newItem(5)
			_, err := move(worker, item.ID, inventory.TxReserve, 1)
			Expect(err).NotTo(HaveOccurred())

			err = service.DeleteItem(ctx, admin, item.ID)
			Expect(errors.Is(err, internal.ErrItemReserved)).To(BeTrue())

			_, err = move(worker, item.ID, inventory.TxRelease, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(service.DeleteItem(ctx, admin, item.ID)).To(Succeed())

			_, err = service.GetItem(ctx, item.ID)
			Expect(errors.Is(err, internal.ErrItemNotFound)).To(BeTrue())
			Expect(transactionCount(item.ID)).To(Equal(int64(3)))
		})
	})

	It("counts postings by outcome", func() {
		item := newItem(1)
		_, _ = move(worker, item.ID, inventory.TxRemove, 5)

		Expect(counterValue(registry, "production_inventory_ledger_operations_total",
			map[string]string{"type": "ADD", "result": "ok"})).To(Equal(1.0))
		Expect(counterValue(registry, "production_inventory_ledger_operations_total",
			map[string]string{"type": "REMOVE", "result": "rejected"})).To(Equal(1.0))
	})
})

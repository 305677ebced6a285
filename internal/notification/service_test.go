package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/audit"
	auditPostgres "github.com/frahmantamala/production-management/internal/audit/postgres"
	"github.com/frahmantamala/production-management/internal/core/database"
	"github.com/frahmantamala/production-management/internal/core/database/dbtest"
	"github.com/frahmantamala/production-management/internal/notification"
	notificationPostgres "github.com/frahmantamala/production-management/internal/notification/postgres"
	"github.com/frahmantamala/production-management/internal/permission"
	"github.com/frahmantamala/production-management/pkg/pagination"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestNotification(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Notification Suite")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubResolver struct {
	holders map[int64][]int64
}

func (r *stubResolver) IDsWithRole(_ context.Context, roleID int64) ([]int64, error) {
	return r.holders[roleID], nil
}

type stubDeliverer struct {
	mu       sync.Mutex
	sent     []notification.Notification
	rejected bool
}

func (d *stubDeliverer) Enqueue(n notification.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rejected {
		return notification.ErrQueueFull
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *stubDeliverer) reject(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejected = v
}

func (d *stubDeliverer) recipients() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int64, 0, len(d.sent))
	for _, n := range d.sent {
		out = append(out, n.RecipientID)
	}
	return out
}

func newTestService(resolver notification.RecipientResolver, deliverer notification.Deliverer, now *time.Time) *notification.Service {
	db, err := dbtest.Open()
	Expect(err).NotTo(HaveOccurred())
	logger := quietLogger()
	svc := notification.NewService(
		notificationPostgres.NewNotificationRepository(db),
		database.NewTxManager(db),
		resolver,
		deliverer,
		audit.NewService(auditPostgres.NewAuditRepository(db), logger),
		logger,
	)
	svc.SetClock(func() time.Time { return *now })
	return svc
}

var _ = Describe("Notification Service", func() {
	var (
		ctx       context.Context
		service   *notification.Service
		deliverer *stubDeliverer
		resolver  *stubResolver
		now       time.Time
		sender    *permission.Principal
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
		deliverer = &stubDeliverer{}
		resolver = &stubResolver{holders: map[int64][]int64{7: {2, 3}}}
		service = newTestService(resolver, deliverer, &now)
		sender = &permission.Principal{UserID: 1, Permissions: permission.Set{"notifications.send": permission.LevelFull}}
	})

	Describe("Schedule", func() {
		It("fans out to users and role holders once each and delivers immediately", func() {
			result, err := service.Schedule(ctx, sender, notification.ScheduleDTO{
				Title:   "Shift change",
				Message: "Line B starts at 10",
				UserIDs: []int64{2, 4},
				RoleIDs: []int64{7},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Recipients).To(Equal(3))
			Expect(result.Delivered).To(BeTrue())
			Expect(deliverer.recipients()).To(ConsistOf(int64(2), int64(3), int64(4)))

			page, err := service.ListMine(ctx, 2, false, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(Equal(int64(1)))
			Expect(page.Data[0].Title).To(Equal("Shift change"))
			Expect(page.Data[0].DeliveredAt).NotTo(BeNil())
			Expect(*page.Data[0].SenderID).To(Equal(int64(1)))
		})

		It("holds future notifications until they are due", func() {
			later := now.Add(2 * time.Hour)
			result, err := service.Schedule(ctx, sender, notification.ScheduleDTO{
				Title:   "Inventory count",
				Message: "Count aisle 4",
				UserIDs: []int64{5},
				SendAt:  &later,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Delivered).To(BeFalse())
			Expect(deliverer.recipients()).To(BeEmpty())

			page, err := service.ListMine(ctx, 5, false, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Total).To(BeZero())

			n, err := service.DeliverDue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			now = later.Add(time.Minute)
			n, err = service.DeliverDue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(deliverer.recipients()).To(ConsistOf(int64(5)))

			n, err = service.DeliverDue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			count, err := service.UnreadCount(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})

		It("treats a past send time as now", func() {
			earlier := now.Add(-time.Hour)
			result, err := service.Schedule(ctx, sender, notification.ScheduleDTO{
				Title: "Late", Message: "Already due", UserIDs: []int64{2}, SendAt: &earlier,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Delivered).To(BeTrue())
			Expect(result.SendAt).To(BeTemporally("==", now))
		})

		It("requires at least one recipient", func() {
			_, err := service.Schedule(ctx, sender, notification.ScheduleDTO{Title: "Empty", Message: "Nobody"})
			Expect(err).To(HaveOccurred())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("leaves rows the dispatcher refused for the poller", func() {
			deliverer.reject(true)
			_, err := service.Schedule(ctx, sender, notification.ScheduleDTO{
				Title: "Retry", Message: "Queue was full", UserIDs: []int64{2},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(deliverer.recipients()).To(BeEmpty())

			deliverer.reject(false)
			n, err := service.DeliverDue(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(deliverer.recipients()).To(ConsistOf(int64(2)))
		})
	})

	Describe("Read state", func() {
		var id int64

		BeforeEach(func() {
			rows, err := service.Send(ctx, notification.Draft{Title: "Hello", Message: "World"}, []int64{2, 2, 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
			id = rows[0].ID
			Expect(rows[0].RecipientID).To(Equal(int64(2)))
		})

		It("marks a notification read once and stays idempotent", func() {
			Expect(service.MarkRead(ctx, 2, id)).To(Succeed())
			Expect(service.MarkRead(ctx, 2, id)).To(Succeed())

			unread, err := service.ListMine(ctx, 2, true, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(unread.Total).To(BeZero())

			all, err := service.ListMine(ctx, 2, false, pagination.New(1, 10))
			Expect(err).NotTo(HaveOccurred())
			Expect(all.Data[0].Read).To(BeTrue())
		})

		It("hides other users' notifications", func() {
			err := service.MarkRead(ctx, 3, id)
			Expect(errors.Is(err, internal.ErrNotificationNotFound)).To(BeTrue())
		})

		It("marks everything read", func() {
			_, err := service.Send(ctx, notification.Draft{Title: "Second", Message: "Again"}, []int64{2})
			Expect(err).NotTo(HaveOccurred())

			n, err := service.MarkAllRead(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))

			count, err := service.UnreadCount(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(BeZero())

			count, err = service.UnreadCount(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})
})

package notification_test

import (
	"context"
	"sync"
	"time"

	"github.com/frahmantamala/production-management/internal/core/events"
	"github.com/frahmantamala/production-management/internal/notification"
	"github.com/frahmantamala/production-management/pkg/pagination"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (b *recordingBroadcaster) Broadcast(msg notification.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

var _ = Describe("Notification EventHandler", func() {
	var (
		ctx         context.Context
		service     *notification.Service
		handler     *notification.EventHandler
		deliverer   *stubDeliverer
		broadcaster *recordingBroadcaster
		now         time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
		resolver := &stubResolver{holders: map[int64][]int64{9: {20, 21, 30}}}
		deliverer = &stubDeliverer{}
		broadcaster = &recordingBroadcaster{}
		service = newTestService(resolver, deliverer, &now)
		handler = notification.NewEventHandler(service, resolver, broadcaster, quietLogger())
	})

	stepEvent := func() *events.StepUpdatedEvent {
		e := events.NewStepUpdatedEvent(11, "Assemble pump", 12, "Weld", "COMPLETED", 30)
		e.CreatorID = 10
		roleID := int64(9)
		e.RoleID = &roleID
		return e
	}

	It("notifies the creator, role holders and listed users but not the actor", func() {
		e := stepEvent()
		e.NotifyCreator = true
		e.NotifyRoleHolder = true
		e.RecipientIDs = []int64{40, 30}

		Expect(handler.HandleStepUpdated(ctx, e)).To(Succeed())
		Expect(deliverer.recipients()).To(ConsistOf(int64(10), int64(20), int64(21), int64(40)))

		page, err := service.ListMine(ctx, 10, false, pagination.New(1, 10))
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Data).To(HaveLen(1))
		Expect(page.Data[0].Message).To(ContainSubstring("Weld"))
		Expect(*page.Data[0].GuideID).To(Equal(int64(11)))
		Expect(*page.Data[0].StepID).To(Equal(int64(12)))
		Expect(page.Data[0].Link).To(Equal("/production/guides/11"))
	})

	It("uses the caller's message when given", func() {
		e := stepEvent()
		e.RecipientIDs = []int64{40}
		e.Message = "Weld done, please inspect"

		Expect(handler.HandleStepUpdated(ctx, e)).To(Succeed())
		page, err := service.ListMine(ctx, 40, false, pagination.New(1, 10))
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Data[0].Message).To(Equal("Weld done, please inspect"))
	})

	It("sends nothing when no recipients were chosen", func() {
		Expect(handler.HandleStepUpdated(ctx, stepEvent())).To(Succeed())
		Expect(deliverer.recipients()).To(BeEmpty())
	})

	It("tells the creator when someone else archives a guide", func() {
		Expect(handler.HandleGuideArchived(ctx, events.NewGuideArchivedEvent(11, 10, 30))).To(Succeed())
		Expect(deliverer.recipients()).To(ConsistOf(int64(10)))
	})

	It("stays quiet when the creator archives their own guide", func() {
		Expect(handler.HandleGuideArchived(ctx, events.NewGuideArchivedEvent(11, 10, 10))).To(Succeed())
		Expect(deliverer.recipients()).To(BeEmpty())
	})

	It("broadcasts low stock", func() {
		Expect(handler.HandleStockLow(ctx, events.NewStockLowEvent(5, "Bolts", 3, 10))).To(Succeed())
		Expect(broadcaster.messages).To(HaveLen(1))
		Expect(broadcaster.messages[0].Event).To(Equal(notification.EventStockLow))
	})

	It("rejects events of the wrong type", func() {
		Expect(handler.HandleStepUpdated(ctx, events.NewStockLowEvent(5, "Bolts", 3, 10))).NotTo(Succeed())
	})

	It("runs through the event bus", func() {
		bus := events.NewEventBus(quietLogger())
		handler.RegisterEventHandlers(bus)

		e := stepEvent()
		e.NotifyCreator = true
		Expect(bus.PublishSync(ctx, e)).To(Succeed())
		Expect(deliverer.recipients()).To(ConsistOf(int64(10)))
	})
})

package cmd

import (
	"testing"

	"github.com/frahmantamala/production-management/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cmd Suite")
}

var _ = Describe("decodeEvent", func() {
	It("decodes a step update with its recipient selection", func() {
		e, err := decodeEvent(events.EventTypeStepUpdated, []byte(`{"guide_id":4,"step_id":9,"status":"COMPLETED","actor_id":2,"notify_creator":true,"creator_id":7}`))
		Expect(err).NotTo(HaveOccurred())

		step, ok := e.(*events.StepUpdatedEvent)
		Expect(ok).To(BeTrue())
		Expect(step.GuideID).To(Equal(int64(4)))
		Expect(step.NotifyCreator).To(BeTrue())
		Expect(step.CreatorID).To(Equal(int64(7)))
		Expect(step.EventType()).To(Equal(events.EventTypeStepUpdated))
		Expect(step.EventID()).NotTo(BeEmpty())
	})

	It("decodes stock low events", func() {
		e, err := decodeEvent(events.EventTypeStockLow, []byte(`{"item_id":3,"item_name":"Bolts","available":1,"min_quantity":5}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(e.(*events.StockLowEvent).ItemName).To(Equal("Bolts"))
	})

	It("rejects a malformed payload for a known type", func() {
		_, err := decodeEvent(events.EventTypeGuideArchived, []byte(`{"guide_id":"x"}`))
		Expect(err).To(HaveOccurred())
	})

	It("wraps unknown types in a generic event", func() {
		e, err := decodeEvent("test.event", []byte(`not json`))
		Expect(err).NotTo(HaveOccurred())
		Expect(e.EventType()).To(Equal("test.event"))
		Expect(e.Payload()).To(HaveKeyWithValue("message", "not json"))
	})
})

var _ = Describe("flag overrides", func() {
	It("prefers set flags over config values", func() {
		Expect(getIntFlag(0, 4)).To(Equal(4))
		Expect(getIntFlag(8, 4)).To(Equal(8))
		Expect(getStringFlag("", "http://cfg")).To(Equal("http://cfg"))
		Expect(getStringFlag("http://flag", "http://cfg")).To(Equal("http://flag"))
	})
})

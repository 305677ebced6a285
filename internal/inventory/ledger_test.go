package inventory_test

import (
	"errors"
	"math"

	"github.com/frahmantamala/production-management/internal"
	"github.com/frahmantamala/production-management/internal/inventory"
	"github.com/frahmantamala/production-management/internal/permission"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Apply", func() {
	c := func(q, r int64) inventory.Counters { return inventory.Counters{Quantity: q, Reserved: r} }

	DescribeTable("successful postings",
		func(t inventory.TxType, n int64, start, want inventory.Counters) {
			got, err := inventory.Apply(t, n, start)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
			Expect(got.Reserved).To(BeNumerically(">=", 0))
			Expect(got.Reserved).To(BeNumerically("<=", got.Quantity))
		},
		Entry("ADD", inventory.TxAdd, int64(5), c(10, 2), c(15, 2)),
		Entry("ADD of zero", inventory.TxAdd, int64(0), c(10, 2), c(10, 2)),
		Entry("ADD up to the maximum", inventory.TxAdd, int64(math.MaxInt64-10), c(10, 2), c(math.MaxInt64, 2)),
		Entry("REMOVE up to available", inventory.TxRemove, int64(8), c(10, 2), c(2, 2)),
		Entry("RESERVE", inventory.TxReserve, int64(4), c(10, 0), c(10, 4)),
		Entry("RELEASE", inventory.TxRelease, int64(4), c(10, 4), c(10, 0)),
		Entry("REMOVE_RESERVED", inventory.TxRemoveReserved, int64(3), c(10, 4), c(7, 1)),
		Entry("ISSUE", inventory.TxIssue, int64(4), c(10, 4), c(6, 0)),
		Entry("RETURN", inventory.TxReturn, int64(4), c(6, 0), c(10, 0)),
		Entry("ADJUST to the reserved floor", inventory.TxAdjust, int64(4), c(10, 4), c(4, 4)),
		Entry("ADJUST to zero", inventory.TxAdjust, int64(0), c(10, 0), c(0, 0)),
		Entry("FORCE clamps reserved", inventory.TxForce, int64(2), c(10, 6), c(2, 2)),
		Entry("FORCE to zero", inventory.TxForce, int64(0), c(10, 6), c(0, 0)),
		Entry("FORCE_REMOVE caps at quantity", inventory.TxForceRemove, int64(50), c(10, 6), c(0, 0)),
		Entry("FORCE_REMOVE bypasses availability", inventory.TxForceRemove, int64(7), c(10, 6), c(3, 3)),
	)

	DescribeTable("rejected postings leave counters untouched",
		func(t inventory.TxType, n int64, start inventory.Counters, want error) {
			got, err := inventory.Apply(t, n, start)
			Expect(err).To(HaveOccurred())
			if want != nil {
				Expect(errors.Is(err, want)).To(BeTrue())
			}
			Expect(got).To(Equal(start))
		},
		Entry("REMOVE beyond available", inventory.TxRemove, int64(9), c(10, 2), internal.ErrInsufficientStock),
		Entry("RESERVE beyond available", inventory.TxReserve, int64(7), c(10, 4), internal.ErrInsufficientStock),
		Entry("RELEASE beyond reserved", inventory.TxRelease, int64(5), c(10, 4), internal.ErrInsufficientReservation),
		Entry("ISSUE beyond reserved", inventory.TxIssue, int64(5), c(10, 4), internal.ErrInsufficientReservation),
		Entry("REMOVE_RESERVED beyond reserved", inventory.TxRemoveReserved, int64(5), c(10, 4), internal.ErrInsufficientReservation),
		Entry("ADJUST below reserved", inventory.TxAdjust, int64(3), c(10, 4), nil),
		Entry("zero RETURN", inventory.TxReturn, int64(0), c(10, 0), nil),
		Entry("negative ADD", inventory.TxAdd, int64(-1), c(10, 0), nil),
		Entry("ADD past the maximum", inventory.TxAdd, int64(math.MaxInt64), c(1, 0), nil),
		Entry("RETURN past the maximum", inventory.TxReturn, int64(math.MaxInt64), c(5, 3), nil),
		Entry("negative RETURN", inventory.TxReturn, int64(-1), c(10, 0), nil),
		Entry("negative FORCE", inventory.TxForce, int64(-1), c(10, 0), nil),
	)

	It("maps transaction types to stock levels", func() {
		Expect(inventory.TxAdd.RequiredLevel()).To(Equal(permission.LevelView))
		Expect(inventory.TxReserve.RequiredLevel()).To(Equal(permission.LevelView))
		Expect(inventory.TxAdjust.RequiredLevel()).To(Equal(permission.LevelEdit))
		Expect(inventory.TxForce.RequiredLevel()).To(Equal(permission.LevelFull))
		Expect(inventory.TxForceRemove.RequiredLevel()).To(Equal(permission.LevelFull))
	})

	It("parses types case-insensitively", func() {
		t, ok := inventory.ParseTxType(" remove_reserved ")
		Expect(ok).To(BeTrue())
		Expect(t).To(Equal(inventory.TxRemoveReserved))

		_, ok = inventory.ParseTxType("STEAL")
		Expect(ok).To(BeFalse())
	})
})

package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

var _ = Describe("Recorder", func() {
	var (
		ctx      context.Context
		stores   *mockStores
		tx       *mockTxRunner
		notifier *mockNotifier
		recorder *service.Recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = newMockStores()
		tx = &mockTxRunner{stores: stores}
		notifier = &mockNotifier{}
		recorder = service.NewRecorder(tx, capture.New(capture.NewRegistry()), notifier)
	})

	It("captures the mutation and notifies after commit", func() {
		ev, err := recorder.Record(ctx, model.OperationInsert, "task", "TASK-1", map[string]any{"title": "t"})

		Expect(err).NotTo(HaveOccurred())
		Expect(ev.ID).To(Equal(int64(1)))
		Expect(tx.calls).To(Equal(1))
		Expect(notifier.published).To(Equal(1))
	})

	It("returns capture failures without notifying", func() {
		_, err := recorder.Record(ctx, model.OperationInsert, "widget", "W-1", nil)

		Expect(err).To(HaveOccurred())
		Expect(capture.IsCaptureError(err)).To(BeTrue())
		Expect(errors.Is(err, store.ErrUnregisteredEntityType)).To(BeTrue())
		Expect(notifier.published).To(BeZero())
	})

	It("does not notify when the transaction fails to commit", func() {
		tx.commitErr = errors.New("serialization failure")

		_, err := recorder.Record(ctx, model.OperationInsert, "task", "TASK-1", map[string]any{})

		Expect(err).To(HaveOccurred())
		Expect(notifier.published).To(BeZero())
	})

	It("tolerates a nil notifier", func() {
		recorder = service.NewRecorder(tx, capture.New(capture.NewRegistry()), nil)

		_, err := recorder.Record(ctx, model.OperationInsert, "task", "TASK-1", map[string]any{})
		Expect(err).NotTo(HaveOccurred())
	})
})

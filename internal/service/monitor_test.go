package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

var _ = Describe("MonitorService", func() {
	var (
		ctx      context.Context
		stores   *mockStores
		notifier *mockNotifier
		monitor  service.MonitorService
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = newMockStores()
		notifier = &mockNotifier{}
		monitor = service.NewMonitorService(stores, []string{model.ConsumerVector, model.ConsumerGraph}, notifier)
	})

	Describe("PendingCounts", func() {
		It("reports the backlog per consumer", func() {
			stores.outbox.pendingCountFn = func(_ context.Context, consumer string) (int64, error) {
				if consumer == model.ConsumerVector {
					return 12, nil
				}
				return 0, nil
			}

			counts, err := monitor.PendingCounts(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(map[string]int64{
				model.ConsumerVector: 12,
				model.ConsumerGraph:  0,
			}))
		})

		It("propagates store failures", func() {
			stores.outbox.pendingCountFn = func(_ context.Context, _ string) (int64, error) {
				return 0, errors.New("connection reset")
			}

			_, err := monitor.PendingCounts(ctx)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("DeadLetters", func() {
		It("lists unresolved dead letters with a default limit", func() {
			var gotLimit int32
			stores.deadLetters.listUnresolvedFn = func(_ context.Context, consumer string, limit int32) ([]model.DeadLetter, error) {
				gotLimit = limit
				return []model.DeadLetter{{ID: 7, Consumer: consumer}}, nil
			}

			dls, err := monitor.DeadLetters(ctx, model.ConsumerVector, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(dls).To(HaveLen(1))
			Expect(gotLimit).To(Equal(int32(100)))
		})
	})

	Describe("Redrive", func() {
		It("resolves the dead letter and wakes dispatchers", func() {
			resolved := time.Now()
			resolvedCalls := 0
			stores.deadLetters.getByIDFn = func(_ context.Context, id int64) (*model.DeadLetter, error) {
				dl := &model.DeadLetter{ID: id, EventID: 42, Consumer: model.ConsumerVector}
				if resolvedCalls > 0 {
					dl.ResolvedAt = &resolved
				}
				return dl, nil
			}
			stores.deadLetters.resolveFn = func(_ context.Context, _ int64) error {
				resolvedCalls++
				return nil
			}

			dl, err := monitor.Redrive(ctx, 7)

			Expect(err).NotTo(HaveOccurred())
			Expect(dl.ResolvedAt).NotTo(BeNil())
			Expect(resolvedCalls).To(Equal(1))
			Expect(notifier.published).To(Equal(1))
		})

		It("returns not found for an unknown dead letter", func() {
			_, err := monitor.Redrive(ctx, 999)

			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			Expect(notifier.published).To(BeZero())
		})

		It("rejects redriving an already resolved dead letter", func() {
			resolved := time.Now()
			stores.deadLetters.getByIDFn = func(_ context.Context, id int64) (*model.DeadLetter, error) {
				return &model.DeadLetter{ID: id, ResolvedAt: &resolved}, nil
			}

			_, err := monitor.Redrive(ctx, 7)

			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			Expect(notifier.published).To(BeZero())
		})
	})
})

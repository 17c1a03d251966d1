package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/http/handler"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

type recordingOutbox struct {
	store.OutboxStore
	appendErr error
	appended  []model.OutboxEvent
}

func (r *recordingOutbox) Append(_ context.Context, ev *model.OutboxEvent) (int64, error) {
	if r.appendErr != nil {
		return 0, r.appendErr
	}
	ev.ID = int64(len(r.appended) + 1)
	r.appended = append(r.appended, *ev)
	return ev.ID, nil
}

type recordingStores struct {
	outbox *recordingOutbox
}

func (r *recordingStores) Outbox() store.OutboxStore          { return r.outbox }
func (r *recordingStores) DeadLetters() store.DeadLetterStore { return nil }

type fakeTxRunner struct {
	stores    *recordingStores
	commitErr error
}

func (f *fakeTxRunner) WithTx(_ context.Context, fn func(stores service.StoreProvider) error) error {
	if err := fn(f.stores); err != nil {
		return err
	}
	return f.commitErr
}

var _ = Describe("MutationHandler", func() {
	var (
		outbox *recordingOutbox
		tx     *fakeTxRunner
		router *gin.Engine
	)

	BeforeEach(func() {
		outbox = &recordingOutbox{}
		tx = &fakeTxRunner{stores: &recordingStores{outbox: outbox}}
		recorder := service.NewRecorder(tx, capture.New(capture.NewRegistry()), nil)

		router = gin.New()
		router.POST("/api/v1/mutations", handler.NewMutationHandler(recorder).Record)
	})

	perform := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/mutations", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	It("records a mutation and returns the event", func() {
		w := perform(`{
			"operation": "INSERT",
			"entity_type": "task",
			"entity_id": "TASK-1",
			"payload": {"title": "Write chapter 3"}
		}`)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(outbox.appended).To(HaveLen(1))
		Expect(outbox.appended[0].EntityType).To(Equal("task"))
		Expect(w.Body.String()).To(ContainSubstring(`"id":1`))
	})

	It("rejects a body missing required fields", func() {
		w := perform(`{"operation": "INSERT"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(outbox.appended).To(BeEmpty())
	})

	It("rejects an unknown operation", func() {
		w := perform(`{
			"operation": "MERGE",
			"entity_type": "task",
			"entity_id": "TASK-1"
		}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 422 for an unregistered entity type", func() {
		w := perform(`{
			"operation": "INSERT",
			"entity_type": "widget",
			"entity_id": "W-1"
		}`)
		Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
		Expect(outbox.appended).To(BeEmpty())
	})

	It("returns 500 when the transaction fails to commit", func() {
		tx.commitErr = errors.New("serialization failure")

		w := perform(`{
			"operation": "INSERT",
			"entity_type": "task",
			"entity_id": "TASK-1"
		}`)
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
	})

	It("accepts a DELETE without a payload", func() {
		w := perform(`{
			"operation": "DELETE",
			"entity_type": "task",
			"entity_id": "TASK-1"
		}`)

		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(outbox.appended).To(HaveLen(1))
		Expect(string(outbox.appended[0].Payload)).To(MatchJSON(`{"id": "TASK-1"}`))
	})
})

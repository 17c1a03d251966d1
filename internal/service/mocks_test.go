package service_test

import (
	"context"

	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

type mockOutboxStore struct {
	store.OutboxStore
	appendFn       func(ctx context.Context, ev *model.OutboxEvent) (int64, error)
	pendingCountFn func(ctx context.Context, consumer string) (int64, error)
}

func (m *mockOutboxStore) Append(ctx context.Context, ev *model.OutboxEvent) (int64, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, ev)
	}
	ev.ID = 1
	return ev.ID, nil
}

func (m *mockOutboxStore) PendingCount(ctx context.Context, consumer string) (int64, error) {
	if m.pendingCountFn != nil {
		return m.pendingCountFn(ctx, consumer)
	}
	return 0, nil
}

type mockDeadLetterStore struct {
	store.DeadLetterStore
	getByIDFn        func(ctx context.Context, id int64) (*model.DeadLetter, error)
	listUnresolvedFn func(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error)
	resolveFn        func(ctx context.Context, id int64) error
}

func (m *mockDeadLetterStore) GetByID(ctx context.Context, id int64) (*model.DeadLetter, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockDeadLetterStore) ListUnresolved(ctx context.Context, consumer string, limit int32) ([]model.DeadLetter, error) {
	if m.listUnresolvedFn != nil {
		return m.listUnresolvedFn(ctx, consumer, limit)
	}
	return nil, nil
}

func (m *mockDeadLetterStore) Resolve(ctx context.Context, id int64) error {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id)
	}
	return nil
}

type mockStores struct {
	outbox      *mockOutboxStore
	deadLetters *mockDeadLetterStore
}

func newMockStores() *mockStores {
	return &mockStores{
		outbox:      &mockOutboxStore{},
		deadLetters: &mockDeadLetterStore{},
	}
}

func (m *mockStores) Outbox() store.OutboxStore          { return m.outbox }
func (m *mockStores) DeadLetters() store.DeadLetterStore { return m.deadLetters }

// mockTxRunner runs the closure against mock stores without a database,
// optionally failing the commit.
type mockTxRunner struct {
	stores    *mockStores
	commitErr error
	calls     int
}

func (m *mockTxRunner) WithTx(_ context.Context, fn func(stores service.StoreProvider) error) error {
	m.calls++
	if err := fn(m.stores); err != nil {
		return err
	}
	return m.commitErr
}

type mockNotifier struct {
	published int
}

func (m *mockNotifier) Publish(context.Context) {
	m.published++
}

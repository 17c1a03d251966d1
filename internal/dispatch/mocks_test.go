package dispatch_test

import (
	"context"
	"sync"
	"time"

	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/store"
)

// fakeStores is an in-memory stand-in for the outbox and dead-letter stores
// with the same pending semantics: id order, per-consumer processed flags,
// and lineage holds for unresolved dead letters.
type fakeStores struct {
	mu          sync.Mutex
	events      []model.OutboxEvent
	processed   map[string]map[int64]bool
	deadLetters []model.DeadLetter
	nextDLIndex int

	pendingErr error
	markErr    error
	createErr  error
}

func newFakeStores(events ...model.OutboxEvent) *fakeStores {
	return &fakeStores{
		events:    events,
		processed: make(map[string]map[int64]bool),
	}
}

func (f *fakeStores) Outbox() store.OutboxStore          { return (*fakeOutbox)(f) }
func (f *fakeStores) DeadLetters() store.DeadLetterStore { return (*fakeDeadLetters)(f) }

func (f *fakeStores) addEvent(ev model.OutboxEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeStores) processedIDs(consumer string) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, ev := range f.events {
		if f.processed[consumer][ev.ID] {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

func (f *fakeStores) unresolvedDeadLetters() []model.DeadLetter {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeadLetter
	for _, dl := range f.deadLetters {
		if dl.ResolvedAt == nil {
			out = append(out, dl)
		}
	}
	return out
}

func (f *fakeStores) resolveAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.deadLetters {
		if f.deadLetters[i].ResolvedAt == nil {
			f.deadLetters[i].ResolvedAt = &now
		}
	}
}

func (f *fakeStores) lineageHeld(consumer, entityType, entityID string) bool {
	for _, dl := range f.deadLetters {
		if dl.Consumer == consumer && dl.EntityType == entityType && dl.EntityID == entityID && dl.ResolvedAt == nil {
			return true
		}
	}
	return false
}

type fakeOutbox fakeStores

func (f *fakeOutbox) Append(_ context.Context, _ *model.OutboxEvent) (int64, error) {
	return 0, store.ErrNoTransaction
}

func (f *fakeOutbox) Pending(_ context.Context, consumer string, limit int32) ([]model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []model.OutboxEvent
	for _, ev := range f.events {
		if f.processed[consumer][ev.ID] {
			continue
		}
		if (*fakeStores)(f).lineageHeld(consumer, ev.EntityType, ev.EntityID) {
			continue
		}
		out = append(out, ev)
		if int32(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkProcessed(_ context.Context, consumer string, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	if f.processed[consumer] == nil {
		f.processed[consumer] = make(map[int64]bool)
	}
	f.processed[consumer][eventID] = true
	return nil
}

func (f *fakeOutbox) IsProcessed(_ context.Context, consumer string, eventID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[consumer][eventID], nil
}

func (f *fakeOutbox) PendingCount(ctx context.Context, consumer string) (int64, error) {
	events, err := f.Pending(ctx, consumer, 1<<30)
	return int64(len(events)), err
}

func (f *fakeOutbox) GetByID(_ context.Context, id int64) (*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ev := range f.events {
		if ev.ID == id {
			return &ev, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeDeadLetters fakeStores

func (f *fakeDeadLetters) Create(_ context.Context, dl *model.DeadLetter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	dl.CreatedAt = time.Now()
	f.deadLetters = append(f.deadLetters, *dl)
	return nil
}

func (f *fakeDeadLetters) GetByID(_ context.Context, id int64) (*model.DeadLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dl := range f.deadLetters {
		if dl.ID == id {
			return &dl, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDeadLetters) ListUnresolved(_ context.Context, consumer string, limit int32) ([]model.DeadLetter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DeadLetter
	for _, dl := range f.deadLetters {
		if dl.Consumer == consumer && dl.ResolvedAt == nil {
			out = append(out, dl)
			if int32(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDeadLetters) Resolve(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for i := range f.deadLetters {
		if f.deadLetters[i].ID == id && f.deadLetters[i].ResolvedAt == nil {
			f.deadLetters[i].ResolvedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

// mockSink records every apply in order and delegates to applyFn when set.
type mockSink struct {
	name    string
	applyFn func(ctx context.Context, ev model.OutboxEvent) error

	mu      sync.Mutex
	applied []int64
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Apply(ctx context.Context, ev model.OutboxEvent) error {
	if m.applyFn != nil {
		if err := m.applyFn(ctx, ev); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, ev.ID)
	return nil
}

func (m *mockSink) appliedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.applied...)
}

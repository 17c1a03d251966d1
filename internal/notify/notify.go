// Package notify carries the "an append just committed" wake-up signal from
// producers to dispatchers over redis pub/sub. It is purely an optimization:
// a dropped or late signal costs one poll interval of latency, never
// correctness, so publishing is fire-and-forget and never fails a producer.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "syncd:outbox:append"

type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Publish signals that new events are visible. Call after the capturing
// transaction commits, never inside it.
func (p *Publisher) Publish(ctx context.Context) {
	if p == nil || p.client == nil {
		return
	}
	if err := p.client.Publish(ctx, p.channel, "1").Err(); err != nil {
		slog.WarnContext(ctx, "append notification failed", "error", err, "channel", p.channel)
	}
}

// Listener fans the append signal out to every subscribed dispatcher.
type Listener struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	subs []chan struct{}

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewListener(client *redis.Client, channel string) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		client:    client,
		channel:   channel,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Subscribe returns a wake channel for one dispatcher. The channel has a
// one-slot buffer; a signal arriving while one is already queued is dropped,
// which is fine because one wake-up drains everything pending.
func (l *Listener) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// Run receives notifications and broadcasts them. Blocks until the context
// is cancelled or Stop is called.
func (l *Listener) Run(ctx context.Context) error {
	defer close(l.stoppedCh)

	pubsub := l.client.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", l.channel, err)
	}

	slog.InfoContext(ctx, "append listener started", "channel", l.channel)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopCh:
			slog.InfoContext(ctx, "append listener stopping")
			return nil
		case _, ok := <-msgs:
			if !ok {
				return nil
			}
			l.broadcast()
		}
	}
}

func (l *Listener) Stop() {
	close(l.stopCh)
	<-l.stoppedCh
}

func (l *Listener) broadcast() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Package feed provides ordered, lossless fan-out of published values to
// subscribers. It backs the event log, scan history and scanner status feeds.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by Next once a subscription has been removed and its
// queue drained.
var ErrClosed = errors.New("feed subscription closed")

// Subscription receives every value published after it was created, in
// publish order.
type Subscription[T any] struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	queue  []T
	ready  chan struct{}
	closed bool
}

// Next blocks until a value is available, the subscription is closed, or ctx
// is done. Values queued before close are still delivered.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.closed {
			s.mu.Unlock()
			return zero, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-s.ready:
		}
	}
}

// Pending returns the number of queued values not yet received.
func (s *Subscription[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Subscription[T]) push(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription[T]) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Broker manages subscriptions and publishing.
type Broker[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscription[T]
	logger      *slog.Logger
	name        string
}

// NewBroker creates a new broker. name is used in log lines only.
func NewBroker[T any](name string, logger *slog.Logger) *Broker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker[T]{
		subscribers: make(map[string]*Subscription[T]),
		logger:      logger,
		name:        name,
	}
}

// Subscribe creates a new subscription.
func (b *Broker[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		ready:     make(chan struct{}, 1),
	}
	b.subscribers[sub.ID] = sub
	b.logger.Debug("subscriber added", "feed", b.name, "subscriber_id", sub.ID)

	return sub
}

// Unsubscribe removes a subscription. Pending values remain readable.
func (b *Broker[T]) Unsubscribe(sub *Subscription[T]) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID]; exists {
		delete(b.subscribers, sub.ID)
		sub.close()
		b.logger.Debug("subscriber removed", "feed", b.name, "subscriber_id", sub.ID)
	}
}

// Publish delivers v to every current subscriber. It never blocks on a slow
// subscriber.
func (b *Broker[T]) Publish(v T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		sub.push(v)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

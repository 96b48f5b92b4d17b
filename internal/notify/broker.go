package notify

import (
	"context"
	"sync"
)

const bufferSize = 16

// EventType names what happened to a run.
type EventType string

const (
	CompletedEvent EventType = "completed"
	FailedEvent    EventType = "failed"
)

// Event carries a typed payload to subscribers.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// Broker is an in-memory fan-out. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Broker[T any] struct {
	subs     map[chan Event[T]]struct{}
	mu       sync.RWMutex
	done     chan struct{}
	once     sync.Once
	capacity int
}

func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](bufferSize)
}

func NewBrokerWithBuffer[T any](capacity int) *Broker[T] {
	if capacity <= 0 {
		capacity = bufferSize
	}
	return &Broker[T]{
		subs:     make(map[chan Event[T]]struct{}),
		done:     make(chan struct{}),
		capacity: capacity,
	}
}

// Shutdown closes every subscriber channel. Safe to call more than once.
func (b *Broker[T]) Shutdown() {
	b.once.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		close(b.done)
		for ch := range b.subs {
			delete(b.subs, ch)
			close(ch)
		}
	})
}

// Subscribe returns a channel that receives events until ctx is done or the
// broker shuts down, after which it is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.done:
		ch := make(chan Event[T])
		close(ch)
		return ch
	default:
	}

	sub := make(chan Event[T], b.capacity)
	b.subs[sub] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub)
		}
	}()

	return sub
}

func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers to every subscriber with room in its buffer and reports
// how many received the event. The read lock is held while sending so a
// concurrent unsubscribe cannot close a channel mid-send.
func (b *Broker[T]) Publish(t EventType, payload T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.done:
		return 0
	default:
	}

	event := Event[T]{Type: t, Payload: payload}
	delivered := 0
	for sub := range b.subs {
		select {
		case sub <- event:
			delivered++
		default:
		}
	}
	return delivered
}

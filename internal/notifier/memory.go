package notifier

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer bounds how many undelivered events a subscriber may
// lag behind before further events to it are dropped.
const subscriberBuffer = 64

// MemoryBus fans events out to in-process subscribers.  A subscriber
// whose buffer is full misses the event.  Subscribers treat events as
// a signal to re-read, so any later read repairs their view, including
// a missed room delete once the read no longer lists them.
type MemoryBus struct {
	mu     sync.RWMutex
	rooms  map[string]map[*memorySub]struct{}
	closed bool
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{rooms: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers ev to every subscriber of ev.RoomID without blocking.
func (b *MemoryBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.rooms[ev.RoomID] {
		sub.deliver(ev)
	}
	return nil
}

// Subscribe registers a subscriber for roomID.
func (b *MemoryBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySub{
		bus:    b,
		roomID: roomID,
		ch:     make(chan Event, subscriberBuffer),
		done:   make(chan struct{}),
	}
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[*memorySub]struct{})
	}
	b.rooms[roomID][sub] = struct{}{}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Subscribers returns how many live subscriptions a room has.
func (b *MemoryBus) Subscribers(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// Close releases every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	subs := make([]*memorySub, 0)
	for _, room := range b.rooms {
		for sub := range room {
			subs = append(subs, sub)
		}
	}
	b.closed = true
	b.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (b *MemoryBus) remove(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room, ok := b.rooms[sub.roomID]; ok {
		delete(room, sub)
		if len(room) == 0 {
			delete(b.rooms, sub.roomID)
		}
	}
}

type memorySub struct {
	bus    *MemoryBus
	roomID string
	mu     sync.Mutex
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"component": "notifier",
			"room_id":   s.roomID,
			"table":     ev.Table,
			"type":      ev.Type,
		}).Warn("subscriber buffer full, dropping change event")
	}
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.bus.remove(s)
		s.mu.Lock()
		close(s.done)
		close(s.ch)
		s.mu.Unlock()
	})
	return nil
}

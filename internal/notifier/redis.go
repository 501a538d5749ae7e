package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus carries change events over Redis pub/sub so that every
// server instance sees mutations committed by the others.  Each room
// has its own channel, which makes the room filter server-side.
type RedisBus struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBus creates a RedisBus.  An empty prefix defaults to "lobby:".
func NewRedisBus(client *redis.Client, keyPrefix string) *RedisBus {
	if client == nil {
		panic("redis client cannot be nil for RedisBus")
	}
	if keyPrefix == "" {
		keyPrefix = "lobby:"
	}
	return &RedisBus{client: client, keyPrefix: keyPrefix}
}

func (b *RedisBus) roomChannel(roomID string) string {
	return fmt.Sprintf("%sroom:%s:changes", b.keyPrefix, roomID)
}

// Publish sends ev to the channel of its room.
func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notifier: marshal %s %s event: %w", ev.Table, ev.Type, err)
	}
	channel := b.roomChannel(ev.RoomID)
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "notifier",
			"channel":      channel,
			"payload_size": len(payload),
		}).WithError(err).Error("redis publish failed")
		return fmt.Errorf("notifier: publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a subscription on the room channel and waits for the
// server to confirm it, so events published after Subscribe returns
// are not missed.
func (b *RedisBus) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	channel := b.roomChannel(roomID)
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("notifier: subscribe to %s: %w", channel, err)
	}
	sub := &redisSub{
		ps:   ps,
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	go sub.pump(roomID)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) pump(roomID string) {
	defer close(s.ch)
	log := logrus.WithFields(logrus.Fields{"component": "notifier", "room_id": roomID})
	for msg := range s.ps.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.WithError(err).Warn("discarding malformed change event")
			continue
		}
		if ev.RoomID != roomID {
			continue
		}
		select {
		case s.ch <- ev:
		case <-s.done:
			return
		default:
			log.WithField("table", ev.Table).Warn("subscriber buffer full, dropping change event")
		}
	}
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

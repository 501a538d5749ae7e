// Package service publishes lobby lifecycle events to RabbitMQ.  Errors
// are logged and returned so callers can ignore failures without
// interrupting the main request flow.
package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/config"
	"github.com/iliyamo/room-lobby/internal/model"
	q "github.com/iliyamo/room-lobby/internal/queue"
)

// QueuePublisher sends persistent JSON messages to durable queues over
// one lazily dialled connection.  A failed publish drops the connection
// so the next call re-dials.
type QueuePublisher struct {
	cfg  config.QueueConfig
	log  *logrus.Entry
	mu   sync.Mutex
	conn *amqp.Connection
	now  func() time.Time
}

// NewQueuePublisher returns a publisher; it does not connect until the
// first event.
func NewQueuePublisher(cfg config.QueueConfig) *QueuePublisher {
	return &QueuePublisher{
		cfg: cfg,
		log: logrus.WithField("component", "rabbitmq"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// GameStarted publishes a GameStartedEvent to the game-started queue.
func (p *QueuePublisher) GameStarted(ctx context.Context, room model.Room, roster []model.Player) error {
	return p.publish(ctx, p.cfg.GameStartedQueue, q.GameStartedEvent{
		RoomID:    room.ID,
		Code:      room.Code,
		HostName:  room.HostName,
		Players:   names(roster),
		StartedAt: p.now().Format(time.RFC3339),
	})
}

// RoomClosed publishes a RoomClosedEvent to the room-closed queue.
// players are the rows removed by the cascade.
func (p *QueuePublisher) RoomClosed(ctx context.Context, room model.Room, players []model.Player) error {
	return p.publish(ctx, p.cfg.RoomClosedQueue, q.RoomClosedEvent{
		RoomID:   room.ID,
		Code:     room.Code,
		HostName: room.HostName,
		Players:  names(players),
		ClosedAt: p.now().Format(time.RFC3339),
	})
}

// Close releases the broker connection.
func (p *QueuePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *QueuePublisher) publish(ctx context.Context, queue string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		p.log.WithError(err).Error("marshal event failed")
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.cfg.URL)
		if err != nil {
			p.log.WithError(err).Warn("dial failed")
			return err
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		p.log.WithError(err).Warn("channel open failed")
		p.dropLocked()
		return err
	}
	defer func() { _ = ch.Close() }()

	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		p.log.WithField("queue", queue).WithError(err).Warn("queue declare failed")
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.WithField("queue", queue).WithError(err).Warn("publish failed")
		p.dropLocked()
		return err
	}
	return nil
}

func (p *QueuePublisher) dropLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func names(players []model.Player) []string {
	out := make([]string, 0, len(players))
	for _, pl := range players {
		out = append(out, pl.Name)
	}
	return out
}

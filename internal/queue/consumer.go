package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/config"
)

const logFileName = "lobby.log"

// Consumer drains the lifecycle queues into a single-line log file.
type Consumer struct {
	cfg config.QueueConfig
	log *logrus.Entry
	mu  sync.Mutex // serializes appends to the log file
}

// NewConsumer returns a consumer for the queues named in cfg.
func NewConsumer(cfg config.QueueConfig) *Consumer {
	return &Consumer{cfg: cfg, log: logrus.WithField("component", "lobby-consumer")}
}

// Run connects to RabbitMQ, declares both durable queues and consumes
// them until ctx is cancelled.  Broken connections are re-dialled with
// exponential backoff capped at 30s.  Messages that cannot be handled
// are rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.cfg.URL)
		if err != nil {
			c.log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}

	queues := []string{c.cfg.GameStartedQueue, c.cfg.RoomClosedQueue}
	deliveries := make([]<-chan amqp.Delivery, 0, len(queues))
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", q, err)
		}
		msgs, err := ch.Consume(q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", q, err)
		}
		deliveries = append(deliveries, msgs)
	}

	games, closed := deliveries[0], deliveries[1]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-games:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.ack(d, c.HandleGameStarted(d.Body))
		case d, ok := <-closed:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.ack(d, c.HandleRoomClosed(d.Body))
		}
	}
}

func (c *Consumer) ack(d amqp.Delivery, err error) {
	if err != nil {
		c.log.WithField("queue", d.RoutingKey).WithError(err).Error("handle message failed")
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// HandleGameStarted decodes one game-started message and appends it to
// the log file.
func (c *Consumer) HandleGameStarted(body []byte) error {
	var ev GameStartedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return c.appendLine(fmt.Sprintf("[%s] Game started | room_id=%s | code=%s | host=%q | players=[%s]\n",
		ev.StartedAt, ev.RoomID, ev.Code, ev.HostName, strings.Join(ev.Players, ",")))
}

// HandleRoomClosed decodes one room-closed message and appends it to
// the log file.
func (c *Consumer) HandleRoomClosed(body []byte) error {
	var ev RoomClosedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return c.appendLine(fmt.Sprintf("[%s] Room closed | room_id=%s | code=%s | host=%q | players=[%s]\n",
		ev.ClosedAt, ev.RoomID, ev.Code, ev.HostName, strings.Join(ev.Players, ",")))
}

func (c *Consumer) appendLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.cfg.LogDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

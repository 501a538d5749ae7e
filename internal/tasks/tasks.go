// Package tasks defines the background jobs run by the asynq worker and
// the client used to schedule them.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	// TypeReapOrphanRoom deletes a room that still has no players some
	// time after it was created.
	TypeReapOrphanRoom = "room:reap_orphan"

	QueueDefault = "default"
)

// ReapOrphanPayload names the room to check.
type ReapOrphanPayload struct {
	RoomID string `json:"room_id"`
}

// NewReapOrphanTask builds the task for roomID.
func NewReapOrphanTask(roomID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReapOrphanPayload{RoomID: roomID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReapOrphanRoom, payload), nil
}

// Enqueuer is the subset of *asynq.Client used for scheduling.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler schedules orphan checks for newly created rooms.
type Scheduler struct {
	client Enqueuer
	after  time.Duration
	log    *logrus.Entry
}

// NewScheduler returns a scheduler that runs checks after the given
// delay.
func NewScheduler(client Enqueuer, after time.Duration) *Scheduler {
	return &Scheduler{client: client, after: after, log: logrus.WithField("component", "scheduler")}
}

// ScheduleReap enqueues one orphan check per room.  The task id is
// derived from the room id so repeated calls do not stack.
func (s *Scheduler) ScheduleReap(ctx context.Context, roomID string) error {
	task, err := NewReapOrphanTask(roomID)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(s.after),
		asynq.MaxRetry(3),
		asynq.TaskID("reap:"+roomID),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", TypeReapOrphanRoom, err)
	}
	s.log.WithFields(logrus.Fields{"room_id": roomID, "task_id": info.ID}).Debug("orphan check scheduled")
	return nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/tasks"
)

// RoomReaper deletes a room only if it has no players.
type RoomReaper interface {
	ReapIfEmpty(ctx context.Context, roomID string) (bool, error)
}

// ReapOrphanHandler processes room:reap_orphan tasks.
type ReapOrphanHandler struct {
	rooms RoomReaper
}

func NewReapOrphanHandler(rooms RoomReaper) *ReapOrphanHandler {
	return &ReapOrphanHandler{rooms: rooms}
}

// ProcessTask implements asynq.Handler.  A malformed payload is not
// retried; store errors are.
func (h *ReapOrphanHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"component": "worker",
		"task_type": t.Type(),
		"retry":     retry,
	})

	var payload tasks.ReapOrphanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RoomID == "" {
		logCtx.WithError(err).Error("bad reap payload")
		return fmt.Errorf("bad payload %q: %w", t.Payload(), asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	reaped, err := h.rooms.ReapIfEmpty(ctx, payload.RoomID)
	if err != nil {
		logCtx.WithError(err).Warn("reap failed")
		return fmt.Errorf("reap room %s: %w", payload.RoomID, err)
	}
	if reaped {
		logCtx.Info("orphan room deleted")
	}
	return nil
}

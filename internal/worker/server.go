// Package worker runs the asynq server that executes background tasks.
package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/room-lobby/internal/tasks"
)

// WorkerServer wraps the asynq server lifecycle.
type WorkerServer struct {
	server *asynq.Server
	rooms  RoomReaper
	log    *logrus.Entry
}

// NewWorkerServer creates a server bound to redisOpt.
func NewWorkerServer(redisOpt asynq.RedisClientOpt, rooms RoomReaper) *WorkerServer {
	logEntry := logrus.WithField("component", "worker_server")
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{tasks.QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logEntry.WithFields(logrus.Fields{
				"task_type": task.Type(),
				"retries":   retry,
				"max_retry": maxRetry,
			}).WithError(err).Error("task failed")
		}),
	})
	return &WorkerServer{server: server, rooms: rooms, log: logEntry}
}

// Mux returns the task routing table.
func (ws *WorkerServer) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeReapOrphanRoom, NewReapOrphanHandler(ws.rooms))
	return mux
}

// Start runs the server until Shutdown.  Call it on its own goroutine.
func (ws *WorkerServer) Start() {
	ws.log.Info("worker server starting")
	if err := ws.server.Run(ws.Mux()); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		ws.log.WithError(err).Error("worker server stopped")
		return
	}
	ws.log.Info("worker server stopped")
}

// Shutdown waits for in-flight tasks and stops the server.
func (ws *WorkerServer) Shutdown() {
	ws.server.Shutdown()
}

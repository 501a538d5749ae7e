package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/room-lobby/internal/tasks"
)

type mockReaper struct{ mock.Mock }

func (m *mockReaper) ReapIfEmpty(ctx context.Context, roomID string) (bool, error) {
	args := m.Called(ctx, roomID)
	return args.Bool(0), args.Error(1)
}

func TestReapOrphanHandler(t *testing.T) {
	reaper := &mockReaper{}
	reaper.On("ReapIfEmpty", mock.Anything, "room-1").Return(true, nil).Once()
	h := NewReapOrphanHandler(reaper)

	task, err := tasks.NewReapOrphanTask("room-1")
	require.NoError(t, err)
	assert.NoError(t, h.ProcessTask(context.Background(), task))
	reaper.AssertExpectations(t)
}

func TestReapOrphanHandler_StoreErrorIsRetried(t *testing.T) {
	reaper := &mockReaper{}
	reaper.On("ReapIfEmpty", mock.Anything, "room-1").Return(false, errors.New("db down"))
	h := NewReapOrphanHandler(reaper)

	task, err := tasks.NewReapOrphanTask("room-1")
	require.NoError(t, err)
	err = h.ProcessTask(context.Background(), task)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestReapOrphanHandler_BadPayloadSkipsRetry(t *testing.T) {
	h := NewReapOrphanHandler(&mockReaper{})
	err := h.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeReapOrphanRoom, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

package task

import (
	"Portfolio_Pipeline/pkg/logger"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Run(t *testing.T) {
	m := NewManager(logger.Discard())

	task, err := m.Run(context.Background(), "generate", func(ctx context.Context, l *slog.Logger) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.EndTime)
	_, err = uuid.Parse(task.ID)
	assert.NoError(t, err)
	assert.False(t, task.EndTime.Before(task.StartTime))
	assert.Equal(t, task.EndTime.Sub(task.StartTime), task.Duration())
}

func TestManager_RunFailure(t *testing.T) {
	m := NewManager(logger.Discard())
	boom := errors.New("boom")

	task, err := m.Run(context.Background(), "orphans", func(ctx context.Context, l *slog.Logger) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)
}

func TestManager_RejectsConcurrentSameName(t *testing.T) {
	m := NewManager(logger.Discard())

	_, err := m.Run(context.Background(), "generate", func(ctx context.Context, l *slog.Logger) error {
		_, inner := m.Run(ctx, "generate", func(context.Context, *slog.Logger) error { return nil })
		assert.Error(t, inner)

		_, other := m.Run(ctx, "orphans", func(context.Context, *slog.Logger) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)
}

package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockDeduper struct {
	mock.Mock
}

func (m *mockDeduper) MarkDelivered(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockDeduper) Forget(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func TestFailoverDeduper(t *testing.T) {
	primary := new(mockDeduper)
	fallback := new(mockDeduper)
	logger := zerolog.New(io.Discard)
	d := NewFailoverDeduper(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("MarkDelivered", ctx, "evt_1", time.Hour).Return(true, nil).Once()

		fresh, err := d.MarkDelivered(ctx, "evt_1", time.Hour)
		assert.NoError(t, err)
		assert.True(t, fresh)
		assert.False(t, d.IsDegraded())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("MarkDelivered", ctx, "evt_2", time.Hour).Return(false, errors.New("fail")).Once()
		fallback.On("MarkDelivered", ctx, "evt_2", time.Hour).Return(true, nil).Once()

		fresh, err := d.MarkDelivered(ctx, "evt_2", time.Hour)
		assert.NoError(t, err)
		assert.True(t, fresh)
		assert.True(t, d.IsDegraded())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("MarkDelivered", ctx, "evt_3", time.Hour).Return(false, nil).Once()

		fresh, err := d.MarkDelivered(ctx, "evt_3", time.Hour)
		assert.NoError(t, err)
		assert.False(t, fresh)
		primary.AssertNotCalled(t, "MarkDelivered", ctx, "evt_3", time.Hour)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		d.mu.Lock()
		d.lastCheck = time.Now().Add(-2 * time.Minute)
		d.mu.Unlock()

		primary.On("MarkDelivered", ctx, "evt_4", time.Hour).Return(true, nil).Once()

		fresh, err := d.MarkDelivered(ctx, "evt_4", time.Hour)
		assert.NoError(t, err)
		assert.True(t, fresh)
		assert.False(t, d.IsDegraded())
		primary.AssertExpectations(t)
	})

	t.Run("ForgetClearsBoth", func(t *testing.T) {
		primary.On("Forget", ctx, "evt_5").Return(nil).Once()
		fallback.On("Forget", ctx, "evt_5").Return(nil).Once()

		assert.NoError(t, d.Forget(ctx, "evt_5"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

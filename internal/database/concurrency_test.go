package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentClaims(t *testing.T) {
	db := setupFileDB(t)
	ctx := context.Background()

	const numGoroutines = 20
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	start := make(chan struct{})

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			<-start
			results <- db.ClaimSlot(ctx, newBooking(fmt.Sprintf("CN-C%02d", id), "2025-06-01", "09:00"))
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	successCount := 0
	takenCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrSlotTaken):
			takenCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one claim must win the slot")
	assert.Equal(t, numGoroutines-1, takenCount)

	bookings, total, err := db.ListBookings(ctx, models.BookingFilter{Date: "2025-06-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, bookings, 1)
}

func TestConcurrentTransitions(t *testing.T) {
	db := setupFileDB(t)
	ctx := context.Background()

	b := newBooking("CN-CT", "2025-06-01", "12:00")
	require.NoError(t, db.ClaimSlot(ctx, b))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	var mu sync.Mutex
	wins := 0

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			_, err := db.TransitionBooking(ctx, models.Transition{BookingID: b.BookingID, FromVersion: 1, To: models.StatusCancelled})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, domain.ErrConcurrentModification), "got %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := db.GetBooking(ctx, b.BookingID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

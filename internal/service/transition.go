package service

import (
	"context"
	"errors"
	"fmt"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/models"

	"github.com/rs/zerolog"
)

// planFunc inspects the freshly read booking and returns the write to attempt.
// A nil transition means there is nothing to write.
type planFunc func(b *models.Booking) (*models.Transition, error)

// runTransition is the optimistic read-plan-write loop. A lost race re-reads
// state, so a concurrent duplicate lands on the no-op path instead of failing.
func runTransition(ctx context.Context, repo domain.BookingStore, bookingID string, plan planFunc) (*models.Booking, bool, error) {
	for attempt := 0; attempt < models.MaxTransitionAttempts; attempt++ {
		b, err := repo.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, false, err
		}

		tr, err := plan(b)
		if err != nil {
			return b, false, err
		}
		if tr == nil {
			return b, false, nil
		}
		tr.BookingID = b.BookingID
		tr.FromVersion = b.Version

		updated, err := repo.TransitionBooking(ctx, *tr)
		if errors.Is(err, domain.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return b, false, err
		}
		return updated, true, nil
	}
	return nil, false, fmt.Errorf("booking %s: %w", bookingID, domain.ErrConcurrentModification)
}

func eventTypeForStatus(status models.BookingStatus) string {
	switch status {
	case models.StatusConfirmed:
		return events.EventBookingConfirmed
	case models.StatusPaymentFailed:
		return events.EventBookingPaymentFailed
	case models.StatusCancelled:
		return events.EventBookingCancelled
	case models.StatusCompleted:
		return events.EventBookingCompleted
	case models.StatusPending:
		return events.EventBookingCreated
	}
	return ""
}

func publish(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, payload events.BookingEventPayload) {
	if bus == nil || eventType == "" {
		return
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", payload.BookingID).Msg("publish event error")
	}
}

func enqueueSync(ctx context.Context, w domain.SyncWorker, logger *zerolog.Logger, taskType string, b *models.Booking) {
	if w == nil || b == nil {
		return
	}
	if err := w.EnqueueTask(ctx, taskType, b); err != nil {
		logger.Error().Err(err).Str("booking_id", b.BookingID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

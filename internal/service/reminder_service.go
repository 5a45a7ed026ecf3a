package service

import (
	"context"
	"fmt"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ReminderService sends day-before reminders for confirmed bookings, once per booking.
type ReminderService struct {
	repo     domain.Repository
	notifier domain.Notifier
	schedule string
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewReminderService(repo domain.Repository, notifier domain.Notifier, schedule string, logger *zerolog.Logger) *ReminderService {
	if schedule == "" {
		schedule = models.ReminderCron
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReminderService{
		repo:     repo,
		notifier: notifier,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds the reminder job to c.
func (s *ReminderService) Register(c *cron.Cron) error {
	_, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.SendReminders(ctx); err != nil {
			s.logger.Error().Err(err).Msg("reminder run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders %q: %w", s.schedule, err)
	}
	return nil
}

// SendReminders notifies every confirmed booking dated tomorrow that has not
// had a reminder delivered yet and returns how many were dispatched.
func (s *ReminderService) SendReminders(ctx context.Context) (int, error) {
	tomorrow := s.now().AddDate(0, 0, 1).Format(models.DateLayout)
	bookings, _, err := s.repo.ListBookings(ctx, models.BookingFilter{Date: tomorrow, Status: models.StatusConfirmed})
	if err != nil {
		return 0, fmt.Errorf("list bookings for %s: %w", tomorrow, err)
	}

	sent := 0
	for _, b := range bookings {
		done, err := s.repo.HasNotification(ctx, b.BookingID, models.KindBookingReminder, models.ChannelEmail)
		if err != nil {
			s.logger.Error().Err(err).Str("booking_id", b.BookingID).Msg("reminder: log lookup failed")
			continue
		}
		if done {
			continue
		}
		s.notifier.Notify(ctx, b.BookingID, models.KindBookingReminder)
		sent++
	}

	s.logger.Info().Str("date", tomorrow).Int("candidates", len(bookings)).Int("sent", sent).Msg("reminders dispatched")
	return sent, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/metrics"
	"cubenotary/internal/models"

	"github.com/rs/zerolog"
)

// CreateBookingRequest carries the customer-supplied fields of a new booking.
type CreateBookingRequest struct {
	CustomerName    string             `json:"customer_name" validate:"required,max=200"`
	CustomerEmail   string             `json:"customer_email" validate:"required,email"`
	CustomerPhone   string             `json:"customer_phone" validate:"max=32"`
	ServiceType     models.ServiceType `json:"service_type" validate:"required,service_type"`
	AppointmentDate string             `json:"appointment_date" validate:"required,calendar_date"`
	AppointmentTime string             `json:"appointment_time" validate:"required,slot_time"`
	MeetingAddress  string             `json:"meeting_address" validate:"required,max=500"`
	Notes           string             `json:"notes" validate:"max=2000"`
}

func (r *CreateBookingRequest) normalize() {
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.MeetingAddress = strings.TrimSpace(r.MeetingAddress)
	r.Notes = strings.TrimSpace(r.Notes)
}

// TransitionResult reports a state machine outcome. Changed is false when the
// booking was already in the requested state.
type TransitionResult struct {
	Booking *models.Booking
	Changed bool
}

type BookingService struct {
	repo         domain.Repository
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	fees         models.FeeSchedule
	logger       *zerolog.Logger
	now          func() time.Time
	newID        func(time.Time) string
}

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, fees models.FeeSchedule, logger *zerolog.Logger) *BookingService {
	if fees == nil {
		fees = models.DefaultFees()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		fees:         fees,
		logger:       logger,
		now:          time.Now,
		newID:        models.NewBookingID,
	}
}

// Fees returns the price list used for new bookings.
func (s *BookingService) Fees() models.FeeSchedule {
	return s.fees
}

// CreateBooking claims the requested slot and snapshots the current fee onto
// the new booking. A lost slot race surfaces as domain.ErrSlotTaken.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	req.normalize()
	if err := Validate(req); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ServiceType:     req.ServiceType,
		AppointmentDate: req.AppointmentDate,
		AppointmentTime: req.AppointmentTime,
		MeetingAddress:  req.MeetingAddress,
		Notes:           req.Notes,
		AmountDue:       s.fees.FeeFor(req.ServiceType),
	}

	if err := s.claim(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrSlotTaken) {
			metrics.IncSlotClaim("taken")
			s.logger.Info().
				Str("date", booking.AppointmentDate).
				Str("time", booking.AppointmentTime).
				Msg("slot already taken")
			return nil, err
		}
		metrics.IncSlotClaim("error")
		return nil, fmt.Errorf("claim slot: %w", err)
	}
	metrics.IncSlotClaim("claimed")

	s.logger.Info().
		Str("booking_id", booking.BookingID).
		Str("date", booking.AppointmentDate).
		Str("time", booking.AppointmentTime).
		Str("service", string(booking.ServiceType)).
		Str("amount", booking.AmountDue.StringFixed(2)).
		Msg("booking created")

	customer := &models.Customer{
		Email:   booking.CustomerEmail,
		Name:    booking.CustomerName,
		Phone:   booking.CustomerPhone,
		Address: booking.MeetingAddress,
	}
	if err := s.repo.UpsertCustomer(ctx, customer); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", booking.BookingID).Msg("customer upsert failed")
	}

	publish(s.eventBus, s.logger, events.EventBookingCreated, events.NewBookingPayload(booking, "customer"))
	enqueueSync(ctx, s.sheetsWorker, s.logger, "upsert", booking)

	return booking, nil
}

// claim draws a fresh id and retries when the random suffix collides.
func (s *BookingService) claim(ctx context.Context, booking *models.Booking) error {
	var err error
	for attempt := 0; attempt < models.MaxTransitionAttempts; attempt++ {
		booking.BookingID = s.newID(s.now())
		err = s.repo.ClaimSlot(ctx, booking)
		if !errors.Is(err, domain.ErrDuplicateID) {
			return err
		}
		s.logger.Warn().Str("booking_id", booking.BookingID).Msg("booking id collision, drawing a new one")
	}
	return err
}

// Availability lists the free and occupied slots of date.
func (s *BookingService) Availability(ctx context.Context, date string) (*models.Availability, error) {
	if !models.IsValidDate(date) {
		return nil, domain.Invalid("date", "must be a date in YYYY-MM-DD format")
	}
	booked, err := s.repo.BookedTimes(ctx, date)
	if err != nil {
		return nil, err
	}
	return &models.Availability{
		Date:           date,
		AvailableTimes: models.FreeSlots(booked),
		BookedTimes:    booked,
	}, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, bookingID)
}

func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	errs := domain.ValidationErrors{}
	if filter.Date != "" && !models.IsValidDate(filter.Date) {
		errs["date"] = "must be a date in YYYY-MM-DD format"
	}
	if filter.Status != "" && !filter.Status.Valid() {
		errs["status"] = "unknown booking status"
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		errs["pagination"] = "limit and offset must not be negative"
	}
	if len(errs) > 0 {
		return nil, 0, errs
	}

	if filter.Limit == 0 {
		filter.Limit = models.DefaultPageSize
	}
	if filter.Limit > models.MaxPageSize {
		filter.Limit = models.MaxPageSize
	}
	return s.repo.ListBookings(ctx, filter)
}

// SetStatus is the admin transition. Only cancelled and completed can be
// requested; confirmation is driven by payments alone.
func (s *BookingService) SetStatus(ctx context.Context, bookingID string, status models.BookingStatus, changedBy string) (*TransitionResult, error) {
	if !status.Valid() {
		return nil, domain.Invalid("status", fmt.Sprintf("unknown booking status %q", status))
	}

	var event BookingEvent
	switch status {
	case models.StatusCancelled:
		event = EventCancel
	case models.StatusCompleted:
		event = EventComplete
	default:
		if _, err := s.repo.GetBooking(ctx, bookingID); err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{From: "admin", Event: "set " + string(status)}
	}
	return s.ApplyTransition(ctx, bookingID, event, changedBy)
}

// ApplyTransition drives one booking through the state machine. Events that
// touch a payment record go through PaymentService instead.
func (s *BookingService) ApplyTransition(ctx context.Context, bookingID string, event BookingEvent, changedBy string) (*TransitionResult, error) {
	updated, changed, err := runTransition(ctx, s.repo, bookingID, func(b *models.Booking) (*models.Transition, error) {
		d, err := Next(b, event)
		if err != nil {
			return nil, err
		}
		if d.Idempotent {
			return nil, nil
		}
		return &models.Transition{To: d.To, PaymentStatus: d.PaymentStatus}, nil
	})
	if err != nil {
		var te *domain.TransitionError
		if errors.As(err, &te) {
			s.logger.Info().Str("booking_id", bookingID).Str("event", string(event)).Str("status", te.From).Msg("transition rejected")
		}
		return nil, err
	}

	if changed {
		metrics.IncTransition(string(updated.Status))
		s.logger.Info().
			Str("booking_id", bookingID).
			Str("event", string(event)).
			Str("status", string(updated.Status)).
			Str("changed_by", changedBy).
			Msg("booking transitioned")
		publish(s.eventBus, s.logger, eventTypeForStatus(updated.Status), events.NewBookingPayload(updated, changedBy))
		enqueueSync(ctx, s.sheetsWorker, s.logger, "upsert", updated)
	}
	return &TransitionResult{Booking: updated, Changed: changed}, nil
}

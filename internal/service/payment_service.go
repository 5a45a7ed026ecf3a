package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/metrics"
	"cubenotary/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	reasonUnknownReference   = "unknown_reference"
	reasonConflictingOutcome = "conflicting_outcome"
	reasonAmountMismatch     = "amount_mismatch"
	reasonInvalidTransition  = "invalid_transition"
	reasonDuplicate          = "duplicate"
	reasonConcurrent         = "concurrent_modification"
	reasonUnreadable         = "unreadable_event"
)

type PaymentOptions struct {
	Currency  string
	Tolerance decimal.Decimal
	DedupeTTL time.Duration
}

// ReconcileOutcome is the result of one reconciliation call. Reason is set for
// ignored and rejected outcomes.
type ReconcileOutcome struct {
	Result    models.ReconcileResult `json:"result"`
	Reason    string                 `json:"reason,omitempty"`
	Reference string                 `json:"payment_intent_id"`
	BookingID string                 `json:"booking_id,omitempty"`
	Booking   *models.Booking        `json:"-"`
}

// WebhookOutcome describes how a provider delivery was handled.
type WebhookOutcome struct {
	EventID string
	Type    string
	ReconcileOutcome
}

type PaymentService struct {
	repo         domain.Repository
	provider     domain.PaymentProvider
	deduper      domain.DeliveryDeduper
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	opts         PaymentOptions
	logger       *zerolog.Logger
}

func NewPaymentService(repo domain.Repository, provider domain.PaymentProvider, deduper domain.DeliveryDeduper, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, opts PaymentOptions, logger *zerolog.Logger) *PaymentService {
	if opts.Currency == "" {
		opts.Currency = models.DefaultCurrency
	}
	if opts.Tolerance.IsZero() {
		opts.Tolerance = decimal.New(1, -2)
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = models.DefaultWebhookDedupeTTL * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PaymentService{
		repo:         repo,
		provider:     provider,
		deduper:      deduper,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		opts:         opts,
		logger:       logger,
	}
}

// CreateIntent opens a provider payment for a pending booking. A client-quoted
// amount, when given, must agree with the booking's snapshotted fee.
func (s *PaymentService) CreateIntent(ctx context.Context, bookingID string, quoted *decimal.Decimal) (*domain.Intent, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusPending {
		return nil, fmt.Errorf("booking %s is %s, not pending: %w", bookingID, b.Status, domain.ErrNotFound)
	}
	if quoted != nil {
		if err := CheckAmount(b.AmountDue, *quoted, s.opts.Tolerance); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", bookingID).Msg("create intent amount mismatch")
			return nil, err
		}
	}

	if intent := s.openIntent(ctx, b); intent != nil {
		return intent, nil
	}

	intent, err := s.provider.CreateIntent(ctx, domain.IntentRequest{
		BookingID:     b.BookingID,
		Amount:        b.AmountDue,
		Currency:      s.opts.Currency,
		CustomerEmail: b.CustomerEmail,
		CustomerName:  b.CustomerName,
		Description:   fmt.Sprintf("%s appointment %s %s", b.ServiceType, b.AppointmentDate, b.AppointmentTime),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w: %v", domain.ErrProvider, err)
	}

	record := &models.PaymentRecord{
		Reference:     intent.Reference,
		BookingID:     b.BookingID,
		Amount:        b.AmountDue,
		Currency:      s.opts.Currency,
		CustomerEmail: b.CustomerEmail,
	}
	if err := s.repo.UpsertPaymentRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("store payment record: %w", err)
	}

	s.logger.Info().
		Str("booking_id", b.BookingID).
		Str("payment_intent_id", intent.Reference).
		Str("amount", b.AmountDue.StringFixed(2)).
		Msg("payment intent created")
	return intent, nil
}

// openIntent returns the booking's current provider intent when it can still
// be paid, so repeated checkout attempts share one intent.
func (s *PaymentService) openIntent(ctx context.Context, b *models.Booking) *domain.Intent {
	if b.PaymentReference == nil {
		return nil
	}
	ref := *b.PaymentReference
	rec, err := s.repo.GetPaymentRecord(ctx, ref)
	if err != nil || rec.Status != models.PaymentRecordPending || !rec.Amount.Equal(b.AmountDue) {
		return nil
	}
	intent, err := s.provider.RetrieveIntent(ctx, ref)
	if err != nil {
		s.logger.Warn().Err(err).Str("payment_intent_id", ref).Msg("reuse payment intent: retrieve failed")
		return nil
	}
	if intent.Status == "canceled" {
		return nil
	}
	s.logger.Debug().Str("booking_id", b.BookingID).Str("payment_intent_id", ref).Msg("payment intent reused")
	return intent
}

// Reconcile applies a provider outcome for reference. Replays of an outcome
// already recorded are Ignored; a succeeded payment is never downgraded.
func (s *PaymentService) Reconcile(ctx context.Context, reference string, outcome models.PaymentOutcome, amount decimal.Decimal) (*ReconcileOutcome, error) {
	return s.reconcile(ctx, reference, outcome, amount, "", "")
}

// reconcile checks currency against the stored record when the provider
// reported one.
func (s *PaymentService) reconcile(ctx context.Context, reference string, outcome models.PaymentOutcome, amount decimal.Decimal, currency, refundID string) (*ReconcileOutcome, error) {
	event, ok := EventForOutcome(outcome)
	if !ok {
		return nil, domain.Invalid("outcome", fmt.Sprintf("unknown payment outcome %q", outcome))
	}
	target := outcome.RecordStatus()
	res := &ReconcileOutcome{Reference: reference}

	for attempt := 0; attempt < models.MaxTransitionAttempts; attempt++ {
		rec, err := s.repo.GetPaymentRecord(ctx, reference)
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Str("payment_intent_id", reference).Str("outcome", string(outcome)).Msg("reconcile: unknown payment reference")
			return s.reject(res, reasonUnknownReference), fmt.Errorf("payment %s: %w", reference, domain.ErrUnknownReference)
		}
		if err != nil {
			return nil, err
		}
		res.BookingID = rec.BookingID

		if rec.Status.Terminal() {
			if rec.Status == target {
				return s.ignore(res, reasonDuplicate), nil
			}
			if !(rec.Status == models.PaymentRecordSucceeded && outcome == models.OutcomeRefunded) {
				err := fmt.Errorf("payment %s is %s, received %s: %w", reference, rec.Status, outcome, domain.ErrConflictingOutcome)
				s.anomaly(rec.BookingID, reference, reasonConflictingOutcome, err)
				return s.reject(res, reasonConflictingOutcome), err
			}
		}
		if outcome == models.OutcomeRefunded && rec.Status != models.PaymentRecordSucceeded {
			err := &domain.TransitionError{From: "payment " + string(rec.Status), Event: string(EventRefund)}
			s.logger.Warn().Str("payment_intent_id", reference).Msg("reconcile: refund for a payment that never succeeded")
			return s.reject(res, reasonInvalidTransition), err
		}

		b, err := s.repo.GetBooking(ctx, rec.BookingID)
		if err != nil {
			return nil, err
		}
		res.Booking = b

		if outcome == models.OutcomeSucceeded {
			err := CheckCurrency(rec.Currency, currency)
			if err == nil {
				err = CheckAmount(b.AmountDue, amount, s.opts.Tolerance)
			}
			if err != nil {
				s.anomaly(b.BookingID, reference, reasonAmountMismatch, err)
				return s.reject(res, reasonAmountMismatch), err
			}
		}

		d, err := Next(b, event)
		if err != nil {
			s.anomaly(b.BookingID, reference, reasonInvalidTransition, err)
			return s.reject(res, reasonInvalidTransition), err
		}

		updated, err := s.repo.TransitionBooking(ctx, models.Transition{
			BookingID:     b.BookingID,
			FromVersion:   b.Version,
			To:            d.To,
			PaymentStatus: d.PaymentStatus,
			Payment: &models.PaymentChange{
				Reference: reference,
				From:      rec.Status,
				To:        target,
				RefundID:  refundID,
			},
		})
		if errors.Is(err, domain.ErrConcurrentModification) {
			continue
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.anomaly(b.BookingID, reference, reasonInvalidTransition, err)
			return s.reject(res, reasonInvalidTransition), err
		}
		if err != nil {
			return nil, err
		}

		res.Booking = updated
		res.Result = models.ReconcileApplied
		metrics.IncReconcile(string(models.ReconcileApplied), string(outcome))
		s.logger.Info().
			Str("payment_intent_id", reference).
			Str("booking_id", updated.BookingID).
			Str("outcome", string(outcome)).
			Str("status", string(updated.Status)).
			Msg("payment reconciled")

		if !d.Idempotent {
			metrics.IncTransition(string(updated.Status))
			publish(s.eventBus, s.logger, eventTypeForStatus(updated.Status), events.NewBookingPayload(updated, "payment"))
			enqueueSync(ctx, s.sheetsWorker, s.logger, "upsert", updated)
		}
		return res, nil
	}

	metrics.IncReconcile(string(models.ReconcileRejected), reasonConcurrent)
	return nil, fmt.Errorf("payment %s: %w", reference, domain.ErrConcurrentModification)
}

func (s *PaymentService) ignore(res *ReconcileOutcome, reason string) *ReconcileOutcome {
	res.Result = models.ReconcileIgnored
	res.Reason = reason
	metrics.IncReconcile(string(res.Result), reason)
	s.logger.Debug().Str("payment_intent_id", res.Reference).Str("reason", reason).Msg("reconcile ignored")
	return res
}

func (s *PaymentService) reject(res *ReconcileOutcome, reason string) *ReconcileOutcome {
	res.Result = models.ReconcileRejected
	res.Reason = reason
	metrics.IncReconcile(string(res.Result), reason)
	return res
}

// anomaly logs a payment the system refuses to apply and alerts operators.
func (s *PaymentService) anomaly(bookingID, reference, reason string, err error) {
	s.logger.Warn().
		Err(err).
		Str("booking_id", bookingID).
		Str("payment_intent_id", reference).
		Str("reason", reason).
		Msg("payment anomaly")

	payload := events.BookingEventPayload{BookingID: bookingID, Reference: reference, Reason: err.Error(), ChangedBy: "payment"}
	publish(s.eventBus, s.logger, events.EventPaymentAnomaly, payload)
}

// HandleWebhook verifies and reconciles one provider delivery. Unknown
// references and rejections are acknowledged so the provider stops retrying;
// only storage failures are returned as errors.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookOutcome, error) {
	evt, err := s.provider.ParseWebhook(payload, signature)
	if errors.Is(err, domain.ErrUnreadableEvent) {
		// Redelivery cannot fix the body, so it is acknowledged and left to operators.
		s.logger.Warn().Err(err).Msg("webhook event verified but unreadable")
		metrics.IncReconcile(string(models.ReconcileIgnored), reasonUnreadable)
		out := &WebhookOutcome{}
		out.Result = models.ReconcileIgnored
		out.Reason = reasonUnreadable
		return out, nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("webhook signature verification failed")
		return nil, domain.Invalid("signature", "webhook signature verification failed")
	}

	out := &WebhookOutcome{EventID: evt.ID, Type: evt.Type}
	out.Reference = evt.Reference
	if evt.Outcome == "" {
		out.Result = models.ReconcileIgnored
		out.Reason = "unhandled_event_type"
		s.logger.Debug().Str("event_id", evt.ID).Str("type", evt.Type).Msg("webhook event type ignored")
		return out, nil
	}

	if s.deduper != nil && evt.ID != "" {
		fresh, err := s.deduper.MarkDelivered(ctx, evt.ID, s.opts.DedupeTTL)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook dedupe unavailable")
		case !fresh:
			out.Result = models.ReconcileIgnored
			out.Reason = reasonDuplicate
			metrics.IncReconcile(string(out.Result), reasonDuplicate)
			return out, nil
		}
	}

	res, err := s.reconcile(ctx, evt.Reference, evt.Outcome, evt.Amount, evt.Currency, "")
	if res != nil {
		out.ReconcileOutcome = *res
	}
	if err != nil && !isDomainError(err) {
		if s.deduper != nil && evt.ID != "" {
			if ferr := s.deduper.Forget(ctx, evt.ID); ferr != nil {
				s.logger.Warn().Err(ferr).Str("event_id", evt.ID).Msg("webhook dedupe forget failed")
			}
		}
		return out, err
	}
	if err != nil {
		s.logger.Info().Err(err).Str("event_id", evt.ID).Str("type", evt.Type).Msg("webhook event not applied")
	}
	return out, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrValidation,
		domain.ErrUnknownReference,
		domain.ErrConflictingOutcome,
		domain.ErrInvalidTransition,
		domain.ErrAmountMismatch,
		domain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Refund returns the money of a succeeded payment and cancels its booking.
func (s *PaymentService) Refund(ctx context.Context, reference, reason string) (*domain.Refund, *ReconcileOutcome, error) {
	rec, err := s.repo.GetPaymentRecord(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != models.PaymentRecordSucceeded {
		return nil, nil, &domain.TransitionError{From: "payment " + string(rec.Status), Event: string(EventRefund)}
	}
	// The booking must be able to absorb the refund before any money moves.
	b, err := s.repo.GetBooking(ctx, rec.BookingID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := Next(b, EventRefund); err != nil {
		s.logger.Warn().Err(err).Str("payment_intent_id", reference).Str("booking_id", b.BookingID).Msg("refund refused")
		return nil, nil, err
	}

	refund, err := s.provider.Refund(ctx, reference, reason)
	if err != nil {
		return nil, nil, fmt.Errorf("refund %s: %w: %v", reference, domain.ErrProvider, err)
	}
	s.logger.Info().Str("payment_intent_id", reference).Str("refund_id", refund.ID).Str("reason", reason).Msg("refund issued")

	res, err := s.reconcile(ctx, reference, models.OutcomeRefunded, refund.Amount, "", refund.ID)
	if err != nil {
		return refund, res, err
	}
	return refund, res, nil
}

// ConfirmPayment asks the provider for the current state of reference and
// reconciles it when it has settled.
func (s *PaymentService) ConfirmPayment(ctx context.Context, reference string) (*domain.Intent, *ReconcileOutcome, error) {
	if _, err := s.repo.GetPaymentRecord(ctx, reference); err != nil {
		return nil, nil, err
	}
	intent, err := s.provider.RetrieveIntent(ctx, reference)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve payment intent: %w: %v", domain.ErrProvider, err)
	}

	var outcome models.PaymentOutcome
	switch intent.Status {
	case "succeeded":
		outcome = models.OutcomeSucceeded
	case "canceled":
		outcome = models.OutcomeFailed
	default:
		return intent, &ReconcileOutcome{Result: models.ReconcileIgnored, Reason: "intent_" + intent.Status, Reference: reference}, nil
	}

	res, err := s.reconcile(ctx, reference, outcome, intent.Amount, intent.Currency, "")
	return intent, res, err
}

func (s *PaymentService) PaymentStatus(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	return s.repo.GetPaymentRecord(ctx, reference)
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Webhook event types the reconciler acts on.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
	EventChargeRefunded  = "charge.refunded"
)

// ErrSignature is returned when a webhook payload fails verification.
var ErrSignature = errors.New("invalid webhook signature")

// StripeProvider talks to Stripe PaymentIntents and Refunds.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zerolog.Logger
}

// NewStripeProvider builds a provider. backends may be nil to use Stripe's hosted API.
func NewStripeProvider(secretKey, webhookSecret string, backends *stripe.Backends, logger *zerolog.Logger) *StripeProvider {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &StripeProvider{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req domain.IntentRequest) (*domain.Intent, error) {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(req.Amount)),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata("booking_id", req.BookingID)
	params.AddMetadata("customer_name", req.CustomerName)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	p.logger.Info().Str("payment_intent_id", pi.ID).Str("booking_id", req.BookingID).Msg("payment intent created")
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) RetrieveIntent(ctx context.Context, reference string) (*domain.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve payment intent: %w", err)
	}
	return intentFromStripe(pi), nil
}

// Refund refunds the whole intent. Stripe only accepts its own reason codes,
// so the operator's free-text reason travels in metadata.
func (p *StripeProvider) Refund(ctx context.Context, reference, reason string) (*domain.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	p.logger.Info().Str("payment_intent_id", reference).Str("refund_id", r.ID).Msg("refund created")
	return &domain.Refund{
		ID:     r.ID,
		Status: string(r.Status),
		Amount: fromMinorUnits(r.Amount),
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and reduces the event to
// what reconciliation needs.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*domain.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if signatureFailure(err) {
			return nil, fmt.Errorf("%w: %v", ErrSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableEvent, err)
	}

	out := &domain.ProviderEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventIntentSucceeded, EventIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("event %s: decode payment intent: %w: %v", event.ID, domain.ErrUnreadableEvent, err)
		}
		out.Reference = pi.ID
		out.Currency = string(pi.Currency)
		if out.Type == EventIntentSucceeded {
			out.Outcome = models.OutcomeSucceeded
			out.Amount = fromMinorUnits(pi.AmountReceived)
		} else {
			out.Outcome = models.OutcomeFailed
			out.Amount = fromMinorUnits(pi.Amount)
		}
	case EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("event %s: decode charge: %w: %v", event.ID, domain.ErrUnreadableEvent, err)
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return nil, fmt.Errorf("event %s: refunded charge has no payment intent: %w", event.ID, domain.ErrUnreadableEvent)
		}
		out.Reference = ch.PaymentIntent.ID
		out.Outcome = models.OutcomeRefunded
		out.Amount = fromMinorUnits(ch.AmountRefunded)
		out.Currency = string(ch.Currency)
	default:
		p.logger.Debug().Str("event_id", event.ID).Str("type", out.Type).Msg("webhook event type not handled")
	}
	return out, nil
}

func signatureFailure(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func intentFromStripe(pi *stripe.PaymentIntent) *domain.Intent {
	return &domain.Intent{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       fromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
	}
}

// toMinorUnits converts dollars to cents, rounding half away from zero.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func fromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

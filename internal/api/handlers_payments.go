package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/logging"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const maxWebhookBytes = 64 << 10

type createIntentRequest struct {
	BookingID string           `json:"booking_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		writeDomainError(w, r, s.logger, domain.Invalid("booking_id", "is required"))
		return
	}

	intent, err := s.deps.Payments.CreateIntent(r.Context(), req.BookingID, req.Amount)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"client_secret":     intent.ClientSecret,
		"payment_intent_id": intent.Reference,
		"amount":            intent.Amount.StringFixed(2),
		"currency":          intent.Currency,
	})
}

type referenceRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	Reason          string `json:"reason,omitempty"`
}

func (s *Server) decodeReference(w http.ResponseWriter, r *http.Request) (*referenceRequest, bool) {
	var req referenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.logger, err)
		return nil, false
	}
	req.PaymentIntentID = strings.TrimSpace(req.PaymentIntentID)
	if req.PaymentIntentID == "" {
		writeDomainError(w, r, s.logger, domain.Invalid("payment_intent_id", "is required"))
		return nil, false
	}
	return &req, true
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReference(w, r)
	if !ok {
		return
	}

	intent, res, err := s.deps.Payments.ConfirmPayment(r.Context(), req.PaymentIntentID)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_intent_id": intent.Reference,
		"status":            intent.Status,
		"result":            res.Result,
		"reason":            res.Reason,
		"booking_id":        res.BookingID,
	})
}

// handleWebhook acknowledges every verified delivery. Only a bad signature or
// a storage failure makes the provider retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	out, err := s.deps.Payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Webhook signature verification failed")
			return
		}
		logging.FromContext(r.Context(), s.logger).Error().Err(err).Msg("webhook processing failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"result":   out.Result,
		"reason":   out.Reason,
	})
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Payments.PaymentStatus(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeReference(w, r)
	if !ok {
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "requested by " + s.actor(r)
	}

	refund, res, err := s.deps.Payments.Refund(r.Context(), req.PaymentIntentID, reason)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	resp := map[string]any{
		"success":   true,
		"refund_id": refund.ID,
		"status":    refund.Status,
		"amount":    refund.Amount.StringFixed(2),
	}
	if res != nil {
		resp["booking_id"] = res.BookingID
		resp["result"] = res.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/export"
	"cubenotary/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleNotificationLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	logs, err := s.deps.Notifications.Logs(r.Context(), models.NotificationFilter{
		BookingID: q.Get("booking_id"),
		Channel:   models.Channel(q.Get("channel")),
		Kind:      models.NotificationKind(q.Get("kind")),
		Status:    q.Get("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if logs == nil {
		logs = []*models.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": logs, "count": len(logs)})
}

type resendRequest struct {
	BookingID string                  `json:"booking_id"`
	Kind      models.NotificationKind `json:"kind,omitempty"`
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		writeDomainError(w, r, s.logger, domain.Invalid("booking_id", "is required"))
		return
	}
	if req.Kind == "" {
		req.Kind = models.KindBookingCreated
	}

	entries, err := s.deps.Notifications.Resend(r.Context(), req.BookingID, req.Kind)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	sent := 0
	for _, e := range entries {
		if e.Status == models.NotificationSent {
			sent++
		}
	}
	if entries == nil {
		entries = []*models.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       sent > 0,
		"sent":          sent,
		"notifications": entries,
	})
}

func (s *Server) handleNotificationConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.deps.Notifications.Channels()})
}

// handleExport pages through every matching booking and returns a workbook.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := export.Period{From: q.Get("from"), To: q.Get("to")}
	if err := checkRange(period.From, period.To); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	var all []*models.Booking
	filter := models.BookingFilter{DateFrom: period.From, DateTo: period.To, Limit: models.MaxPageSize}
	for {
		page, total, err := s.deps.Bookings.ListBookings(r.Context(), filter)
		if err != nil {
			writeDomainError(w, r, s.logger, err)
			return
		}
		all = append(all, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	var buf bytes.Buffer
	if err := export.BookingsWorkbook(&buf, all, period); err != nil {
		writeDomainError(w, r, s.logger, fmt.Errorf("build export: %w", err))
		return
	}

	name := fmt.Sprintf("bookings_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	s.logger.Info().Int("bookings", len(all)).Str("period", period.String()).Msg("bookings exported")
}

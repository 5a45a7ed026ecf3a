package api

import (
	"net/http"
	"strconv"
	"strings"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"
	"cubenotary/internal/service"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	avail, err := s.deps.Bookings.Availability(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req service.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	booking, err := s.deps.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":    true,
		"booking_id": booking.BookingID,
		"message":    "Booking created successfully",
		"booking":    booking,
	})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.deps.Bookings.GetBooking(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	filter := models.BookingFilter{
		Date:     q.Get("date"),
		DateFrom: q.Get("from"),
		DateTo:   q.Get("to"),
		Status:   models.BookingStatus(q.Get("status")),
		Limit:    limit,
		Offset:   offset,
	}
	if err := checkRange(filter.DateFrom, filter.DateTo); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	bookings, total, err := s.deps.Bookings.ListBookings(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if limit == 0 {
		limit = models.DefaultPageSize
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"total":    total,
		"limit":    min(limit, models.MaxPageSize),
		"offset":   offset,
	})
}

type statusRequest struct {
	Status models.BookingStatus `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	res, err := s.deps.Bookings.SetStatus(r.Context(), chi.URLParam(r, "bookingID"), req.Status, s.actor(r))
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}

	msg := "Booking status updated"
	if !res.Changed {
		msg = "Booking already in requested status"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
		"booking": res.Booking,
		"changed": res.Changed,
	})
}

func (s *Server) handleBookingNotifications(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	if _, err := s.deps.Bookings.GetBooking(r.Context(), bookingID); err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	logs, err := s.deps.Notifications.Logs(r.Context(), models.NotificationFilter{BookingID: bookingID, Limit: models.MaxPageSize})
	if err != nil {
		writeDomainError(w, r, s.logger, err)
		return
	}
	if logs == nil {
		logs = []*models.NotificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking_id": bookingID, "notifications": logs})
}

// actor names the caller in audit fields: the API key's name, or "admin".
func (s *Server) actor(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get(s.auth.cfg.Auth.HeaderAPIKey))
	if c, ok := s.auth.clients[key]; ok && c.Name != "" {
		return c.Name
	}
	return "admin"
}

func pagination(rawLimit, rawOffset string) (int, int, error) {
	errs := domain.ValidationErrors{}
	limit, offset := 0, 0
	if rawLimit != "" {
		v, err := strconv.Atoi(rawLimit)
		if err != nil || v < 0 {
			errs["limit"] = "must be a non-negative integer"
		}
		limit = v
	}
	if rawOffset != "" {
		v, err := strconv.Atoi(rawOffset)
		if err != nil || v < 0 {
			errs["offset"] = "must be a non-negative integer"
		}
		offset = v
	}
	if len(errs) > 0 {
		return 0, 0, errs
	}
	return limit, offset, nil
}

func checkRange(from, to string) error {
	errs := domain.ValidationErrors{}
	if from != "" && !models.IsValidDate(from) {
		errs["from"] = "must be a date in YYYY-MM-DD format"
	}
	if to != "" && !models.IsValidDate(to) {
		errs["to"] = "must be a date in YYYY-MM-DD format"
	}
	if len(errs) == 0 && from != "" && to != "" && from > to {
		errs["to"] = "must not be before from"
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

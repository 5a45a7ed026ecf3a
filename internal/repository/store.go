package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cubenotary/internal/domain"
	"cubenotary/internal/models"
)

// MemoryStore is an in-process domain.Repository. One mutex serializes every
// write, so the check on activeSlots and the insert are a single step.
type MemoryStore struct {
	mu            sync.RWMutex
	bookings      map[string]*models.Booking
	activeSlots   map[string]string
	payments      map[string]*models.PaymentRecord
	customers     map[string]*models.Customer
	notifications []*models.NotificationLogEntry
	seq           int64
}

var _ domain.Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:    make(map[string]*models.Booking),
		activeSlots: make(map[string]string),
		payments:    make(map[string]*models.PaymentRecord),
		customers:   make(map[string]*models.Customer),
	}
}

func (s *MemoryStore) ClaimSlot(ctx context.Context, booking *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := booking.SlotKey()
	if _, ok := s.activeSlots[key]; ok {
		return fmt.Errorf("claim %s: %w", key, domain.ErrSlotTaken)
	}
	if _, ok := s.bookings[booking.BookingID]; ok {
		return fmt.Errorf("booking id %s: %w", booking.BookingID, domain.ErrDuplicateID)
	}

	now := time.Now().UTC()
	booking.Status = models.StatusPending
	booking.PaymentStatus = models.PaymentUnpaid
	booking.PaymentReference = nil
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now

	s.bookings[booking.BookingID] = booking.Clone()
	s.activeSlots[key] = booking.BookingID
	return nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", bookingID, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

func matchesBooking(b *models.Booking, f models.BookingFilter) bool {
	if f.Date != "" && b.AppointmentDate != f.Date {
		return false
	}
	if f.DateFrom != "" && b.AppointmentDate < f.DateFrom {
		return false
	}
	if f.DateTo != "" && b.AppointmentDate > f.DateTo {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

func (s *MemoryStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Booking, 0)
	for _, b := range s.bookings {
		if matchesBooking(b, filter) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].BookingID < matched[j].BookingID
	})

	total := len(matched)
	page := paginate(total, filter.Limit, filter.Offset)
	out := make([]*models.Booking, 0, page.end-page.start)
	for _, b := range matched[page.start:page.end] {
		out = append(out, b.Clone())
	}
	return out, total, nil
}

type window struct{ start, end int }

func paginate(total, limit, offset int) window {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return window{start: offset, end: end}
}

func (s *MemoryStore) BookedTimes(ctx context.Context, date string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	times := make([]string, 0)
	prefix := date + " "
	for key := range s.activeSlots {
		if strings.HasPrefix(key, prefix) {
			times = append(times, strings.TrimPrefix(key, prefix))
		}
	}
	sort.Strings(times)
	return times, nil
}

func (s *MemoryStore) TransitionBooking(ctx context.Context, tr models.Transition) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[tr.BookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", tr.BookingID, domain.ErrNotFound)
	}
	if b.Version != tr.FromVersion {
		return nil, domain.ErrConcurrentModification
	}

	key := b.SlotKey()
	if tr.To.OccupiesSlot() && !b.Status.OccupiesSlot() {
		if holder, taken := s.activeSlots[key]; taken && holder != b.BookingID {
			return nil, fmt.Errorf("claim %s: %w", key, domain.ErrSlotTaken)
		}
	}

	var rec *models.PaymentRecord
	if p := tr.Payment; p != nil {
		rec, ok = s.payments[p.Reference]
		if !ok || rec.Status != p.From {
			return nil, domain.ErrConcurrentModification
		}
		if p.To == models.PaymentRecordSucceeded {
			for _, other := range s.payments {
				if other.BookingID == rec.BookingID && other.Reference != rec.Reference && other.Status == models.PaymentRecordSucceeded {
					return nil, fmt.Errorf("booking %s already has a succeeded payment: %w", tr.BookingID, domain.ErrInvalidTransition)
				}
			}
		}
	}

	now := time.Now().UTC()
	if rec != nil {
		rec.Status = tr.Payment.To
		if tr.Payment.RefundID != "" {
			rec.RefundID = tr.Payment.RefundID
		}
		rec.UpdatedAt = now
	}

	wasActive := b.Status.OccupiesSlot()
	b.Status = tr.To
	if tr.PaymentStatus != "" {
		b.PaymentStatus = tr.PaymentStatus
	}
	b.Version++
	b.UpdatedAt = now

	switch {
	case wasActive && !b.Status.OccupiesSlot():
		delete(s.activeSlots, key)
	case !wasActive && b.Status.OccupiesSlot():
		s.activeSlots[key] = b.BookingID
	}
	return b.Clone(), nil
}

func (s *MemoryStore) UpsertPaymentRecord(ctx context.Context, record *models.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[record.BookingID]
	if !ok {
		return fmt.Errorf("booking %s: %w", record.BookingID, domain.ErrNotFound)
	}

	now := time.Now().UTC()
	if record.Status == "" {
		record.Status = models.PaymentRecordPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	existing, ok := s.payments[record.Reference]
	switch {
	case !ok:
		cp := *record
		s.payments[record.Reference] = &cp
	case existing.Status == models.PaymentRecordPending && existing.BookingID == record.BookingID:
		existing.Amount = record.Amount
		existing.Currency = record.Currency
		existing.CustomerEmail = record.CustomerEmail
		existing.UpdatedAt = now
	}

	ref := record.Reference
	b.PaymentReference = &ref
	b.UpdatedAt = now
	return nil
}

func (s *MemoryStore) GetPaymentRecord(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[reference]
	if !ok {
		return nil, fmt.Errorf("payment %s: %w", reference, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPaymentRecords(ctx context.Context, bookingID string) ([]*models.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.PaymentRecord, 0)
	for _, p := range s.payments {
		if p.BookingID == bookingID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpsertCustomer(ctx context.Context, customer *models.Customer) error {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	if customer.Email == "" {
		return domain.Invalid("email", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	customer.UpdatedAt = now
	if existing, ok := s.customers[customer.Email]; ok {
		customer.CreatedAt = existing.CreatedAt
	} else {
		customer.CreatedAt = now
	}
	cp := *customer
	s.customers[customer.Email] = &cp
	return nil
}

func (s *MemoryStore) AppendNotification(ctx context.Context, entry *models.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.seq++
	entry.ID = s.seq
	cp := *entry
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]*models.NotificationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.NotificationLogEntry, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		e := s.notifications[i]
		if filter.BookingID != "" && e.BookingID != filter.BookingID {
			continue
		}
		if filter.Channel != "" && e.Channel != filter.Channel {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		cp := *e
		matched = append(matched, &cp)
	}
	page := paginate(len(matched), filter.Limit, filter.Offset)
	return matched[page.start:page.end], nil
}

func (s *MemoryStore) HasNotification(ctx context.Context, bookingID string, kind models.NotificationKind, channel models.Channel) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.notifications {
		if e.BookingID == bookingID && e.Kind == kind && e.Channel == channel && e.Status == models.NotificationSent {
			return true, nil
		}
	}
	return false, nil
}

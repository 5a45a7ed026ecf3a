package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cubenotary/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheetsAPI keeps column A of the Bookings sheet and records writes.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	ids      []string
	updates  []string
	appends  int
	idReads  int
	failWith int
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/values/Bookings!A:A"):
		f.idReads++
		values := make([][]interface{}, 0, len(f.ids))
		for _, id := range f.ids {
			values = append(values, []interface{}{id})
		}
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: values})
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/values/Bookings!A1"):
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"Booking ID"}}})
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		var body sheets.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.appends++
		f.ids = append(f.ids, fmt.Sprint(body.Values[0][0]))
		row := len(f.ids)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: fmt.Sprintf("Bookings!A%d:M%d", row, row)},
		})
	case r.Method == http.MethodPut:
		f.updates = append(f.updates, path[strings.LastIndex(path, "/")+1:])
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	default:
		http.NotFound(w, r)
	}
}

func setupFakeSheets(t *testing.T, api *fakeSheetsAPI) *SheetsService {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	s, err := NewSheetsServiceWithOptions(context.Background(), "bookings_tid", nil,
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return s
}

func sheetBooking(id string) *models.Booking {
	return &models.Booking{
		BookingID:       id,
		CustomerName:    "Jane Doe",
		CustomerEmail:   "jane@example.com",
		ServiceType:     models.ServiceRON,
		AppointmentDate: "2026-11-02",
		AppointmentTime: "14:00",
		Status:          models.StatusConfirmed,
		PaymentStatus:   models.PaymentPaid,
		AmountDue:       decimal.NewFromInt(30),
		CreatedAt:       time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2026, 10, 1, 9, 5, 0, 0, time.UTC),
	}
}

func TestSheetsService_TestConnection(t *testing.T) {
	s := setupFakeSheets(t, &fakeSheetsAPI{})
	assert.NoError(t, s.TestConnection(context.Background()))
}

func TestSheetsService_TestConnectionError(t *testing.T) {
	s := setupFakeSheets(t, &fakeSheetsAPI{failWith: http.StatusForbidden})
	assert.Error(t, s.TestConnection(context.Background()))
}

func TestSheetsService_EnsureHeader(t *testing.T) {
	api := &fakeSheetsAPI{}
	s := setupFakeSheets(t, api)
	require.NoError(t, s.EnsureHeader(context.Background()))
	assert.Equal(t, []string{"Bookings!A1:M1"}, api.updates)
}

func TestSheetsService_WarmUpCache(t *testing.T) {
	api := &fakeSheetsAPI{ids: []string{"Booking ID", "CN-A", "", "CN-B"}}
	s := setupFakeSheets(t, api)

	require.NoError(t, s.WarmUpCache(context.Background()))

	row, ok := s.getCachedRow("CN-A")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
	row, ok = s.getCachedRow("CN-B")
	assert.True(t, ok)
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow("Booking ID")
	assert.False(t, ok, "header row is not a booking")
}

func TestSheetsService_UpsertAppendsThenUpdates(t *testing.T) {
	api := &fakeSheetsAPI{ids: []string{"Booking ID"}}
	s := setupFakeSheets(t, api)
	ctx := context.Background()

	b := sheetBooking("CN-NEW")
	require.NoError(t, s.UpsertBooking(ctx, b))
	assert.Equal(t, 1, api.appends)

	row, ok := s.getCachedRow("CN-NEW")
	require.True(t, ok)
	assert.Equal(t, 2, row)

	b.Status = models.StatusCompleted
	require.NoError(t, s.UpsertBooking(ctx, b))
	assert.Equal(t, 1, api.appends, "second upsert must update in place")
	assert.Equal(t, []string{"Bookings!A2:M2"}, api.updates)
}

func TestSheetsService_FindBookingRow(t *testing.T) {
	api := &fakeSheetsAPI{ids: []string{"Booking ID", "CN-A", "CN-B"}}
	s := setupFakeSheets(t, api)
	ctx := context.Background()

	row, err := s.FindBookingRow(ctx, "CN-B")
	require.NoError(t, err)
	assert.Equal(t, 3, row)

	// served from cache
	_, err = s.FindBookingRow(ctx, "CN-B")
	require.NoError(t, err)
	assert.Equal(t, 1, api.idReads)

	_, err = s.FindBookingRow(ctx, "CN-MISSING")
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = s.FindBookingRow(ctx, "")
	assert.Error(t, err)
}

func TestBookingRowValues(t *testing.T) {
	row := bookingRowValues(sheetBooking("CN-1"))
	require.Len(t, row, len(bookingHeaders))
	assert.Equal(t, "CN-1", row[0])
	assert.Equal(t, "RON", row[3])
	assert.Equal(t, "confirmed", row[8])
	assert.Equal(t, "30.00", row[10])
	assert.Equal(t, "2026-10-01 09:00:00", row[11])
}

func TestFirstRow(t *testing.T) {
	n, ok := firstRow("Bookings!A10:M10")
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = firstRow("garbage")
	assert.False(t, ok)
}

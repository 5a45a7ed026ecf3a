package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cubenotary/internal/config"
	"cubenotary/internal/domain"
	"cubenotary/internal/models"
	"cubenotary/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type BookingAPI interface {
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*models.Booking, error)
	Availability(ctx context.Context, date string) (*models.Availability, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	SetStatus(ctx context.Context, bookingID string, status models.BookingStatus, changedBy string) (*service.TransitionResult, error)
}

type PaymentAPI interface {
	CreateIntent(ctx context.Context, bookingID string, quoted *decimal.Decimal) (*domain.Intent, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookOutcome, error)
	Refund(ctx context.Context, reference, reason string) (*domain.Refund, *service.ReconcileOutcome, error)
	ConfirmPayment(ctx context.Context, reference string) (*domain.Intent, *service.ReconcileOutcome, error)
	PaymentStatus(ctx context.Context, reference string) (*models.PaymentRecord, error)
}

type NotificationAPI interface {
	Resend(ctx context.Context, bookingID string, kind models.NotificationKind) ([]*models.NotificationLogEntry, error)
	Logs(ctx context.Context, filter models.NotificationFilter) ([]*models.NotificationLogEntry, error)
	Channels() map[models.Channel]bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// SyncStats reports sheets sync queue depth per status.
type SyncStats interface {
	SyncQueueStats(ctx context.Context) (map[string]int, error)
}

// DegradedReporter is implemented by stores that can fall back to memory.
type DegradedReporter interface {
	IsDegraded() bool
}

// Deps are the collaborators the HTTP layer calls into. Health fields are optional.
type Deps struct {
	Bookings      BookingAPI
	Payments      PaymentAPI
	Notifications NotificationAPI
	DB            Pinger
	Sync          SyncStats
	Dedupe        DegradedReporter
	Currency      string
}

// Server exposes the booking API over HTTP.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	auth   *HTTPAuth
	logger *zerolog.Logger
	router chi.Router
	server *http.Server
}

func NewServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()
	if deps.Currency == "" {
		deps.Currency = models.DefaultCurrency
	}

	s := &Server{cfg: cfg, deps: deps, auth: NewHTTPAuth(cfg), logger: &l}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader, s.auth.cfg.Auth.HeaderAPIKey, s.auth.cfg.Auth.HeaderExtra},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.RateLimit)

		r.Route("/bookings", func(r chi.Router) {
			r.Get("/availability/{date}", s.handleAvailability)
			r.Post("/", s.handleCreateBooking)
			r.With(s.auth.Require(permReadBookings)).Get("/", s.handleListBookings)
			r.Get("/{bookingID}", s.handleGetBooking)
			r.With(s.auth.Require(permWriteBookings)).Patch("/{bookingID}/status", s.handleSetStatus)
			r.With(s.auth.Require(permNotifications)).Get("/{bookingID}/notifications", s.handleBookingNotifications)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-intent", s.handleCreateIntent)
			r.Post("/confirm", s.handleConfirmPayment)
			r.Post("/webhook", s.handleWebhook)
			r.Get("/status/{reference}", s.handlePaymentStatus)
			r.With(s.auth.Require(permRefunds)).Post("/refund", s.handleRefund)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(s.auth.Require(permNotifications))
			r.Get("/logs", s.handleNotificationLogs)
			r.Post("/resend", s.handleResend)
			r.Get("/config", s.handleNotificationConfig)
		})

		r.With(s.auth.Require(permExport)).Get("/admin/bookings/export", s.handleExport)
	})

	return r
}

// Handler returns the routed handler, used by tests and embedding servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			resp["status"] = "unavailable"
			resp["database"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp["database"] = "ok"
		}
	}
	if s.deps.Dedupe != nil && s.deps.Dedupe.IsDegraded() {
		resp["webhook_dedupe"] = "degraded"
		if code == http.StatusOK {
			resp["status"] = "degraded"
		}
	}
	if s.deps.Sync != nil {
		if stats, err := s.deps.Sync.SyncQueueStats(r.Context()); err == nil {
			resp["sync_queue"] = stats
		}
	}
	writeJSON(w, code, resp)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cubenotary/internal/api"
	"cubenotary/internal/bot"
	"cubenotary/internal/config"
	"cubenotary/internal/database"
	"cubenotary/internal/domain"
	"cubenotary/internal/events"
	"cubenotary/internal/google"
	"cubenotary/internal/logging"
	"cubenotary/internal/metrics"
	"cubenotary/internal/notify"
	"cubenotary/internal/payments"
	"cubenotary/internal/repository"
	"cubenotary/internal/service"
	"cubenotary/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	fees, err := cfg.Pricing.FeeSchedule()
	if err != nil {
		return err
	}
	tolerance, err := cfg.Payments.Tolerance()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	deduper, dedupeHealth := initDeduper(redisClient, logger)

	bus := events.NewEventBus(logging.Component(logger, "events"))

	var syncWorker domain.SyncWorker
	if sheets := initGoogleSheets(ctx, cfg, logger); sheets != nil {
		w := worker.NewSheetsWorker(db, sheets, redisClient, worker.PolicyFromConfig(cfg.Google.Sync), logging.Component(logger, "sheets-worker"))
		if n, err := w.RequeueFailed(ctx); err != nil {
			logger.Warn().Err(err).Msg("requeue failed sheet tasks")
		} else if n > 0 {
			logger.Info().Int("tasks", n).Msg("failed sheet tasks requeued")
		}
		go w.Start(ctx)
		go sheets.RunCacheRefresh(ctx, time.Hour)
		syncWorker = w
	}

	notifier := service.NewNotificationService(db, initSenders(cfg, logger), adminContacts(cfg), cfg.App.Name, logging.Component(logger, "notifications"))
	notifier.Subscribe(bus)

	bookings := service.NewBookingService(db, bus, syncWorker, fees, logging.Component(logger, "bookings"))
	provider := payments.NewStripeProvider(cfg.Payments.StripeSecretKey, cfg.Payments.WebhookSecret, nil, logging.Component(logger, "stripe"))
	paymentSvc := service.NewPaymentService(db, provider, deduper, bus, syncWorker, service.PaymentOptions{
		Currency:  cfg.Pricing.Currency,
		Tolerance: tolerance,
		DedupeTTL: cfg.Payments.DedupeTTL,
	}, logging.Component(logger, "payments"))

	scheduler, err := initCron(cfg, db, notifier, logger)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	startMetrics(ctx, cfg, logger)
	startOperatorBot(ctx, cfg, bookings, logger)

	server := api.NewServer(cfg.API, api.Deps{
		Bookings:      bookings,
		Payments:      paymentSvc,
		Notifications: notifier,
		DB:            db,
		Sync:          db,
		Dedupe:        dedupeHealth,
		Currency:      cfg.Pricing.Currency,
	}, logger)

	err = serve(ctx, server, cfg, logger)
	// Let queued notifications finish before the process exits.
	notifier.Wait()
	return err
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initDeduper prefers redis and falls back to process memory when it is
// missing or down.
func initDeduper(client *redis.Client, logger *zerolog.Logger) (domain.DeliveryDeduper, api.DegradedReporter) {
	if client == nil {
		return repository.NewMemoryDeduper(), nil
	}
	d := repository.NewFailoverDeduper(repository.NewRedisDeduper(client), repository.NewMemoryDeduper(), logging.Component(logger, "dedupe"))
	return d, d
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, logging.Component(logger, "sheets"))
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header write failed")
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheets
}

func initSenders(cfg *config.Config, logger *zerolog.Logger) []domain.Sender {
	var senders []domain.Sender
	n := cfg.Notifications

	if n.Email.Enabled {
		s, err := notify.NewEmailSender(notify.EmailConfig{
			Host:     n.Email.SMTPHost,
			Port:     n.Email.SMTPPort,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
			FromName: n.Email.FromName,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("email channel disabled")
		} else {
			senders = append(senders, s)
		}
	}
	if n.SMS.Enabled {
		s, err := notify.NewSMSSender(n.SMS.AccountSID, n.SMS.AuthToken, n.SMS.FromNumber, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("sms channel disabled")
		} else {
			senders = append(senders, s)
		}
	}
	if n.Telegram.Enabled {
		s, err := notify.NewTelegramSender(n.Telegram.BotToken, n.Telegram.Debug, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram channel disabled")
		} else {
			senders = append(senders, s)
		}
	}
	return senders
}

func adminContacts(cfg *config.Config) service.AdminContacts {
	admin := service.AdminContacts{Phone: cfg.Notifications.SMS.AdminPhone}
	if id := cfg.Notifications.Telegram.AdminChatID; id != 0 {
		admin.TelegramChatID = strconv.FormatInt(id, 10)
	}
	return admin
}

func initCron(cfg *config.Config, db *database.DB, notifier domain.Notifier, logger *zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()

	if cfg.Reminders.Enabled {
		reminders := service.NewReminderService(db, notifier, cfg.Reminders.Schedule, logging.Component(logger, "reminders"))
		if err := reminders.Register(c); err != nil {
			return nil, err
		}
	}
	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup"))
		if _, err := c.AddFunc(cfg.Backup.Schedule, backups.Run); err != nil {
			return nil, fmt.Errorf("schedule backups %q: %w", cfg.Backup.Schedule, err)
		}
	}
	return c, nil
}

func startOperatorBot(ctx context.Context, cfg *config.Config, bookings bot.BookingOps, logger *zerolog.Logger) {
	tg := cfg.Notifications.Telegram
	if !tg.Commands || tg.BotToken == "" {
		return
	}
	botAPI, err := tgbotapi.NewBotAPI(tg.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("operator bot disabled")
		return
	}
	botAPI.Debug = tg.Debug

	admins := append([]int64{tg.AdminChatID}, tg.Admins...)
	b := bot.NewBot(bot.NewBotWrapper(botAPI), bookings, admins, bot.NewMetrics(), logging.Component(logger, "operator-bot"))
	go b.Start(ctx)
	go func() {
		<-ctx.Done()
		b.Stop()
	}()
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, server *api.Server, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cubenotary/internal/config"
	"cubenotary/internal/database"
	"cubenotary/internal/export"
	"cubenotary/internal/models"
	"cubenotary/internal/worker"

	"github.com/rs/zerolog"
)

// Operator maintenance tasks run against the live database:
//
//	go run ./scripts -task export -from 2025-06-01 -to 2025-06-30
//	go run ./scripts -task backup
//	go run ./scripts -task requeue
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to config.yaml")
		task       = flag.String("task", "", "export, backup or requeue")
		from       = flag.String("from", "", "export: first appointment date (YYYY-MM-DD)")
		to         = flag.String("to", "", "export: last appointment date (YYYY-MM-DD)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch *task {
	case "export":
		path, n, err := exportBookings(ctx, db, cfg.Exports.Path, export.Period{From: *from, To: *to})
		if err != nil {
			return err
		}
		fmt.Printf("done: exported=%d file=%s\n", n, path)
	case "backup":
		backupCfg := cfg.Backup
		backupCfg.Enabled = true
		path, err := database.NewBackupService(db, backupCfg, &logger).PerformBackup(ctx)
		if err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		fmt.Printf("done: backup=%s\n", path)
	case "requeue":
		n, err := worker.NewSheetsWorker(db, nil, nil, worker.RetryPolicy{}, &logger).RequeueFailed(ctx)
		if err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
		fmt.Printf("done: requeued=%d\n", n)
	default:
		flag.Usage()
		return fmt.Errorf("unknown task %q", *task)
	}
	return nil
}

func exportBookings(ctx context.Context, db *database.DB, dir string, period export.Period) (string, int, error) {
	if (period.From != "" && !models.IsValidDate(period.From)) || (period.To != "" && !models.IsValidDate(period.To)) {
		return "", 0, fmt.Errorf("dates must be YYYY-MM-DD")
	}

	var all []*models.Booking
	filter := models.BookingFilter{DateFrom: period.From, DateTo: period.To, Limit: models.MaxPageSize}
	for {
		page, total, err := db.ListBookings(ctx, filter)
		if err != nil {
			return "", 0, fmt.Errorf("list bookings: %w", err)
		}
		all = append(all, page...)
		filter.Offset += len(page)
		if len(page) == 0 || filter.Offset >= total {
			break
		}
	}

	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if err := export.BookingsWorkbook(f, all, period); err != nil {
		return "", 0, fmt.Errorf("write workbook: %w", err)
	}
	return path, len(all), nil
}

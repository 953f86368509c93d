package commands

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/esoto/expense-tracker-sub008/internal/config"
	"github.com/esoto/expense-tracker-sub008/internal/database"
	"github.com/esoto/expense-tracker-sub008/internal/database/repository"
	"github.com/esoto/expense-tracker-sub008/internal/metrics"
	"github.com/esoto/expense-tracker-sub008/internal/service"
)

// runtime holds everything a command needs, built once per invocation.
type runtime struct {
	cfg      config.Config
	db       *sql.DB
	log      *slog.Logger
	recorder metrics.Recorder

	expenses  *repository.ExpenseRepo
	conflicts *repository.ConflictRepo
	sessions  *repository.SyncSessionRepo

	detector     *service.Detector
	resolver     *service.Resolver
	autoResolver *service.AutoResolver
	intake       *service.IntakeService
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		log:      log,
		recorder: metrics.NewPrometheus(),
	}
	rt.expenses = repository.NewExpenseRepo(db)
	rt.conflicts = repository.NewConflictRepo(db)
	rt.sessions = repository.NewSyncSessionRepo(db)

	thresholds := service.Thresholds{
		Similar:     cfg.Detection.SimilarThreshold,
		Duplicate:   cfg.Detection.DuplicateThreshold,
		AutoResolve: cfg.Detection.AutoResolveThreshold,
		WindowDays:  cfg.Detection.WindowDays,
	}
	scorer := service.NewScorer(service.Weights{
		Amount:      cfg.Scoring.AmountWeight,
		Merchant:    cfg.Scoring.MerchantWeight,
		Date:        cfg.Scoring.DateWeight,
		Description: cfg.Scoring.DescriptionWeight,
	})

	rt.detector = &service.Detector{
		DB:         db,
		Expenses:   rt.expenses,
		Conflicts:  rt.conflicts,
		Scorer:     scorer,
		Thresholds: thresholds,
		Log:        log,
	}
	rt.resolver = &service.Resolver{
		DB:        db,
		Expenses:  rt.expenses,
		Conflicts: rt.conflicts,
		Metrics:   rt.recorder,
		Log:       log,
	}
	rt.autoResolver = &service.AutoResolver{
		Conflicts: rt.conflicts,
		Resolver:  rt.resolver,
		Threshold: thresholds.AutoResolve,
		Log:       log,
	}
	rt.intake = &service.IntakeService{
		Expenses: rt.expenses,
		Sessions: rt.sessions,
		Detector: rt.detector,
	}
	return rt, nil
}

func (rt *runtime) Close() {
	_ = rt.db.Close()
}

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/vietddude/genledger/internal/core/config"
	"github.com/vietddude/genledger/internal/core/worker"
	"github.com/vietddude/genledger/internal/health"
	"github.com/vietddude/genledger/internal/infra/compute"
	"github.com/vietddude/genledger/internal/infra/objstore"
	redisclient "github.com/vietddude/genledger/internal/infra/redis"
	"github.com/vietddude/genledger/internal/infra/storage"
	"github.com/vietddude/genledger/internal/infra/storage/memory"
	"github.com/vietddude/genledger/internal/infra/storage/postgres"
	"github.com/vietddude/genledger/internal/jobs"
	"github.com/vietddude/genledger/internal/ledger"
	"github.com/vietddude/genledger/migrations"
)

// App is the main application struct wiring the credit ledger, the job
// orchestrator and their supporting workers.
type App struct {
	cfg          Config
	credits      *ledger.Service
	orchestrator *jobs.Orchestrator
	regenerator  *worker.Regenerator
	balanceRepo  storage.BalanceRepository
	subsRepo     storage.SubscriptionRepository
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port     int
	Jobs     config.JobsConfig
	Regen    config.RegenConfig
	Compute  compute.Config
	Storage  objstore.Config
	Redis    redisclient.Config
	Database postgres.Config
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg Config) (*App, error) {

	// 1. Initialize Storage
	var balanceRepo storage.BalanceRepository
	var ledgerRepo storage.LedgerRepository
	var jobRepo storage.JobRepository
	var subsRepo storage.SubscriptionRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run embedded migrations
		goose.SetBaseFS(migrations.FS)
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "."); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		balanceRepo = postgres.NewBalanceRepo(db)
		ledgerRepo = postgres.NewLedgerRepo(db)
		jobRepo = postgres.NewJobRepo(db)
		subsRepo = postgres.NewSubscriptionRepo(db)

		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		balanceRepo = memory.NewBalanceRepo(store)
		ledgerRepo = memory.NewLedgerRepo(store)
		jobRepo = memory.NewJobRepo(store)
		subsRepo = memory.NewSubscriptionRepo(store)

		slog.Info("Using Memory storage")
	}

	// 2. Initialize Redis event emitter (optional)
	var redisClient *redisclient.Client
	var emitter jobs.Emitter
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, job events disabled", "error", err)
		} else {
			emitter = redisClient
			slog.Info("Job event stream enabled")
		}
	}

	// 3. Core services
	credits := ledger.NewService(balanceRepo, ledgerRepo, subsRepo)

	computeClient := compute.NewHTTPClient(cfg.Compute)
	store := objstore.NewHTTPStore(cfg.Storage)

	orchestrator := jobs.NewOrchestrator(
		jobs.Config{ConcurrencyCap: cfg.Jobs.ConcurrencyCap},
		jobRepo,
		credits,
		computeClient,
		store,
		emitter,
	)

	regenerator := worker.NewRegenerator(cfg.Regen.SweepInterval, balanceRepo, credits)

	// 4. Health monitoring
	var dbPinger, redisPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthMon := health.NewMonitor(dbPinger, redisPinger, jobRepo, cfg.Jobs.StuckAfter)
	healthServer := health.NewServer(healthMon, cfg.Port)

	return &App{
		cfg:          cfg,
		credits:      credits,
		orchestrator: orchestrator,
		regenerator:  regenerator,
		balanceRepo:  balanceRepo,
		subsRepo:     subsRepo,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Credits returns the credit ledger service.
func (a *App) Credits() *ledger.Service {
	return a.credits
}

// Jobs returns the job orchestrator.
func (a *App) Jobs() *jobs.Orchestrator {
	return a.orchestrator
}

// Sweep runs one regeneration sweep over all accounts.
func (a *App) Sweep(ctx context.Context) error {
	return a.regenerator.Sweep(ctx)
}

// ApplyScheduledDowngrades applies every pending downgrade. Invoked by
// the billing-cycle trigger at period boundaries.
func (a *App) ApplyScheduledDowngrades(ctx context.Context) error {
	accounts, err := a.balanceRepo.ListAccountIDs(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	for _, accountID := range accounts {
		if err := a.credits.ApplyScheduledDowngrade(ctx, accountID); err != nil {
			a.log.Warn("Failed to apply scheduled downgrade", "account", accountID, "error", err)
		}
	}
	return nil
}

// Start starts the app and all its background components.
func (a *App) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Health Monitor Background Tasks
	go a.healthMon.Start(ctx)

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Regeneration Sweeps
	go a.regenerator.Start(ctx)

	a.log.Info("genledger started", "port", a.cfg.Port)
	return nil
}

// Stop shuts the app down gracefully. In-flight job pipelines are not
// interrupted; they finish or compensate on their own.
func (a *App) Stop(ctx context.Context) error {
	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Warn("Health server shutdown error", "error", err)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Redis close error", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("DB close error", "error", err)
		}
	}
	a.log.Info("genledger stopped")
	return nil
}

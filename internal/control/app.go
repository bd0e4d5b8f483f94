// Package control wires the application together: storage, broadcaster,
// sync executors, queue driver, scheduler and health server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OneClickTag/tracksync/internal/core/config"
	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/health"
	"github.com/OneClickTag/tracksync/internal/infra/broadcast"
	"github.com/OneClickTag/tracksync/internal/infra/googleapi"
	"github.com/OneClickTag/tracksync/internal/infra/storage"
	"github.com/OneClickTag/tracksync/internal/infra/storage/memory"
	"github.com/OneClickTag/tracksync/internal/infra/storage/postgres"
	"github.com/OneClickTag/tracksync/internal/queue"
	"github.com/OneClickTag/tracksync/internal/syncexec"
)

// App is the main application struct that manages the service lifecycle.
type App struct {
	cfg          *config.AppConfig
	store        storage.Store
	db           *postgres.Store
	broadcaster  broadcast.Broadcaster
	redisEvents  *broadcast.RedisBroadcaster
	driver       *queue.Driver
	scheduler    *cron.Cron
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp creates a new App instance with all dependencies initialized.
func NewApp(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log}

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewStore(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		app.db = db
		app.store = db
		log.Info("Using PostgreSQL storage")
	} else {
		app.store = memory.NewMemoryStorage()
		log.Info("Using Memory storage")
	}

	// 2. Initialize Broadcaster
	if cfg.Redis.URL != "" {
		events, err := broadcast.NewRedisBroadcaster(cfg.Redis, log)
		if err != nil {
			log.Warn("Failed to connect to Redis, progress events disabled", "error", err)
			app.broadcaster = broadcast.Noop{}
		} else {
			app.redisEvents = events
			app.broadcaster = events
		}
	} else {
		app.broadcaster = broadcast.Noop{}
	}

	// 3. Initialize Sync Executors
	adsClient := googleapi.NewAdsClient(cfg.Google.Ads)
	tagClient := googleapi.NewTagManagerClient(cfg.Google.TagManager)
	ads := syncexec.NewAdsSync(adsClient, app.store.Trackings(), log)
	tags := syncexec.NewTagManagerSync(tagClient, app.store.Trackings(), log)

	// 4. Initialize Queue
	handler := queue.NewErrorHandler(app.store, app.broadcaster, log)
	handler.SetPauseDivisor(cfg.Queue.PauseDivisor)
	processor := queue.NewProcessor(app.store, ads, tags, app.broadcaster, handler, log)
	app.driver = queue.NewDriver(app.store, processor, handler, app.broadcaster, log)
	app.driver.SetStuckThreshold(cfg.Queue.StuckThreshold)

	// 5. Schedule the driver tick. SkipIfStillRunning keeps slow ticks from
	// piling up; the driver itself is safe under overlap regardless.
	app.scheduler = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	spec := fmt.Sprintf("@every %s", cfg.Queue.TickInterval)
	if _, err := app.scheduler.AddFunc(spec, app.tick); err != nil {
		return nil, fmt.Errorf("failed to schedule driver tick: %w", err)
	}

	// 6. Initialize Health Monitor
	monitor := health.NewMonitor()
	monitor.RegisterCritical("store", app.store.Health)
	if app.redisEvents != nil {
		monitor.RegisterOptional("broadcaster", app.redisEvents.Health)
	}
	app.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return app, nil
}

// CreateBatch registers a tracking batch for processing. Jobs carry the
// configured attempt budget and are dispatched FIFO by the driver.
func (a *App) CreateBatch(ctx context.Context, customerID, tenantID, requestedBy string, trackingIDs []string) (*domain.Batch, error) {
	if len(trackingIDs) == 0 {
		return nil, fmt.Errorf("batch needs at least one tracking")
	}

	batch, jobs := queue.NewBatchWithBudget(
		customerID, tenantID, requestedBy, trackingIDs,
		a.cfg.Queue.MaxAttempts, time.Now(),
	)
	if err := a.store.CreateBatch(ctx, batch, jobs); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	a.log.Info("batch created",
		"batch_id", batch.ID, "customer_id", customerID, "jobs", len(jobs))
	return batch, nil
}

// Store exposes the backing store for read-only inspection commands.
func (a *App) Store() storage.Store {
	return a.store
}

// Driver exposes the queue driver for manual maintenance commands.
func (a *App) Driver() *queue.Driver {
	return a.driver
}

// Start starts the scheduler and the health server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	a.scheduler.Start()
	a.log.Info("scheduler started", "tick_interval", a.cfg.Queue.TickInterval)
	return nil
}

// Stop stops the scheduler, waits for a running tick and closes connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping tracksync...")

	// Stop returns after the in-flight tick (if any) completes.
	<-a.scheduler.Stop().Done()

	if a.redisEvents != nil {
		if err := a.redisEvents.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

func (a *App) tick() {
	if err := a.driver.Tick(context.Background()); err != nil {
		a.log.Error("driver tick failed", "error", err)
	}
}

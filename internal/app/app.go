package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/yungbote/lineflow-backend/internal/data/db"
	"github.com/yungbote/lineflow-backend/internal/data/reporting"
	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/http"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/temporalx"
	"github.com/yungbote/lineflow-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	pg           *db.PostgresService
	reportDB     *sqlx.DB
	temporal     temporalsdkclient.Client
	server       *http.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func NewLogger() (*logger.Logger, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}

// OpenDatabase connects to Postgres and migrates the schema.
func OpenDatabase(log *logger.Logger, cfg Config) (*db.PostgresService, error) {
	pg, err := db.NewPostgresService(log, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	return pg, nil
}

func New(log *logger.Logger) (*App, error) {
	log.Info("Loading configuration...")
	cfg := LoadConfig(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
	})
	a.Metrics = observability.Init(log)

	pg, err := OpenDatabase(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pg = pg
	a.DB = pg.DB()

	a.Repos = repos.NewSet(a.DB, log)

	clients, err := wireClients(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients = clients

	svc, err := wireServices(log, cfg, a.Repos, clients, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = svc

	var funnel reporting.FunnelRepo
	if cfg.ReportingEnabled {
		reportDB, err := reporting.Open(pg.DSN())
		if err != nil {
			log.Warn("reporting disabled", "error", err)
		} else {
			a.reportDB = reportDB
			funnel = reporting.NewFunnelRepo(reportDB, log)
		}
	}

	handlers := wireHandlers(log, cfg, a.DB, svc, funnel)
	middleware := wireMiddleware(log, cfg)
	a.Router = wireRouter(log, cfg, handlers, middleware, a.Metrics)
	return a, nil
}

// Start launches background work: metric collectors and the due-sweep
// scheduler selected by SCHEDULER_MODE.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.Metrics.StartPostgresCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Cfg.Redis.Addr)

	switch a.Cfg.SchedulerMode {
	case SchedulerTicker:
		if a.Services.SweepWorker != nil {
			a.Services.SweepWorker.Start(ctx)
		}
	case SchedulerTemporal:
		tc, err := temporalx.NewClient(a.Log, a.Cfg.Temporal)
		if err != nil {
			return fmt.Errorf("temporal client: %w", err)
		}
		a.temporal = tc
		runner, err := temporalworker.NewRunner(a.Log, tc, a.Cfg.Temporal, a.Services.Scheduler)
		if err != nil {
			return err
		}
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("temporal worker: %w", err)
		}
	default:
		a.Log.Info("Due sweep scheduler off; use POST /internal/sweep or `lineflow sweep`")
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.server = &http.Server{Engine: a.Router}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return a.server.Run(":" + a.Cfg.Port)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.SweepWorker != nil {
		a.Services.SweepWorker.Wait()
	}
	if a.temporal != nil {
		a.temporal.Close()
	}
	a.Clients.Close()
	if a.reportDB != nil {
		_ = a.reportDB.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	a.Log.Sync()
}

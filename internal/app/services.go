package app

import (
	"fmt"

	"github.com/yungbote/lineflow-backend/internal/data/repos"
	"github.com/yungbote/lineflow-backend/internal/jobs/worker"
	"github.com/yungbote/lineflow-backend/internal/observability"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
	"github.com/yungbote/lineflow-backend/internal/render"
	"github.com/yungbote/lineflow-backend/internal/services"
)

type Services struct {
	Story        services.StoryEngine
	Survey       services.SurveyEngine
	Scheduler    services.Scheduler
	Router       services.EventRouter
	FollowerSync services.FollowerSync
	SweepWorker  *worker.Worker
}

func wireServices(log *logger.Logger, cfg Config, rs repos.Set, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	resolver, err := services.LoadSkipRules(cfg.SurveyRulesPath)
	if err != nil {
		return Services{}, fmt.Errorf("load skip rules: %w", err)
	}

	engineCfg := cfg.engineConfig()
	renderer := render.New()
	out := services.NewOutbound(log, clients.Line, rs.UserFlow, metrics)

	story := services.NewStoryEngine(log, engineCfg, rs, renderer, out, clients.Line)
	survey := services.NewSurveyEngine(
		log, engineCfg, rs, renderer,
		services.NewOptionSource(log, rs.Survey, rs.Response, rs.Catalog),
		resolver,
		services.NewProfileSync(log, rs.Response, rs.Catalog, rs.Customer),
		story,
		metrics,
	)
	scheduler := services.NewScheduler(log, rs, story, clients.Redis, metrics)

	// Without Redis the processed_event table is the shared dedupe record.
	var deduper services.Deduper
	if clients.Shared {
		deduper = clients.Redis
	}
	router := services.NewEventRouter(log, services.RouterConfig{
		DedupeTTL:   cfg.EventDedupeTTL,
		Concurrency: cfg.DispatchConcurrency,
	}, rs, story, survey, out, deduper, clients.Redis, metrics)

	svc := Services{
		Story:        story,
		Survey:       survey,
		Scheduler:    scheduler,
		Router:       router,
		FollowerSync: services.NewFollowerSync(log, clients.Line, clients.Line, rs.Customer, metrics),
	}
	if cfg.SchedulerMode == SchedulerTicker {
		svc.SweepWorker = worker.NewWorker(log, scheduler, rs.ProcessedEvent, worker.Options{
			Interval:       cfg.SweepInterval,
			EventRetention: cfg.EventRetention,
		})
	}
	return svc, nil
}

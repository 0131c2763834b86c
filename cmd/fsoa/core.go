package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/franksunye/fsoa-agent/internal/analytics"
	"github.com/franksunye/fsoa-agent/internal/cache"
	"github.com/franksunye/fsoa-agent/internal/calendar"
	"github.com/franksunye/fsoa-agent/internal/config"
	"github.com/franksunye/fsoa-agent/internal/dashboard"
	"github.com/franksunye/fsoa-agent/internal/notification"
	"github.com/franksunye/fsoa-agent/internal/orchestrator"
	"github.com/franksunye/fsoa-agent/internal/scheduler"
	"github.com/franksunye/fsoa-agent/internal/sla"
	"github.com/franksunye/fsoa-agent/internal/store"
	"github.com/franksunye/fsoa-agent/internal/tracker"
	"github.com/franksunye/fsoa-agent/internal/webhookclient"
)

// healthAdapter satisfies dashboard.HealthProvider over an Orchestrator,
// translating its concrete HealthReport into the dashboard's
// decoupled HealthView.
type healthAdapter struct {
	orch *orchestrator.Orchestrator
}

func (h healthAdapter) Health(ctx context.Context) dashboard.HealthView {
	r := h.orch.Health(ctx)
	return dashboard.HealthView{
		StoreOK:     r.StoreOK,
		AnalyticsOK: r.AnalyticsOK,
		WebhookOK:   r.WebhookOK,
		TrackerBusy: r.TrackerBusy,
		CheckedAt:   r.CheckedAt,
	}
}

// CoreContext is the explicit, hand-wired set of collaborators every
// command builds before doing anything — no package-level singletons
// (Design Notes).
type CoreContext struct {
	Backend      store.Store
	ConfigStore  *config.Store
	Calendar     *calendar.BusinessCalendar
	Evaluator    *sla.Evaluator
	Data         *cache.DataStrategy
	Notifier     *notification.Manager
	Tracker      *tracker.Tracker
	Webhook      webhookclient.Client
	Orchestrator *orchestrator.Orchestrator
	Log          *logrus.Logger
}

// buildCore wires one CoreContext from a loaded Bootstrap, performing the
// same construction order as the teacher's main.go: store first, then
// clock/calendar, then the clients each domain component needs, then the
// components themselves, and finally the orchestrator that composes them.
func buildCore(ctx context.Context, bootstrapPath string) (*CoreContext, error) {
	log := logrus.New()

	boot, err := config.LoadBootstrap(bootstrapPath)
	if err != nil {
		return nil, err
	}

	backend, err := store.NewPostgresStore(ctx, boot.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	cfg := config.NewStore(backend)
	seeds := config.DefaultSeeds()
	for k, v := range boot.Seeds {
		seeds[k] = v
	}
	if err := cfg.Seed(ctx, seeds); err != nil {
		return nil, err
	}

	loc := time.Local
	workStart, err := cfg.GetInt(ctx, "work_start_hour")
	if err != nil {
		return nil, err
	}
	workEnd, err := cfg.GetInt(ctx, "work_end_hour")
	if err != nil {
		return nil, err
	}
	workDaysList, err := cfg.GetCSVIntList(ctx, "work_days")
	if err != nil {
		return nil, err
	}
	workDays := map[int]bool{}
	for _, d := range workDaysList {
		workDays[d] = true
	}
	cal := calendar.New(loc, workStart, workEnd, workDays)
	evaluator := sla.NewEvaluator(cal)

	analyticsClient := analytics.NewHTTPClient(boot.Analytics.BaseURL, time.Duration(boot.Analytics.TimeoutSeconds)*time.Second, log)

	ttlHours, err := cfg.GetFloat(ctx, "cache_ttl_hours")
	if err != nil {
		return nil, err
	}
	data := cache.New(backend, analyticsClient, evaluator, calendar.SystemClock{Location: loc}, boot.Analytics.ReportID, time.Duration(ttlHours*float64(time.Hour)))

	var dedupBackend notification.DedupBackend
	if boot.Redis.Enabled {
		dedupBackend = &notification.RedisDedupBackend{Client: redis.NewClient(&redis.Options{Addr: boot.Redis.Addr})}
	}
	dedup := notification.NewDedup(dedupBackend)

	var webhook webhookclient.Client = webhookclient.NewSlackClient(4)

	cooldownHours, err := cfg.GetFloat(ctx, "notification_cooldown_hours")
	if err != nil {
		return nil, err
	}
	mentionUsers, err := cfg.GetCSVStringList(ctx, "escalation_mention_users")
	if err != nil {
		return nil, err
	}
	maxListed, err := cfg.GetInt(ctx, "escalation_max_listed")
	if err != nil {
		return nil, err
	}

	notifier := notification.New(backend, webhook, dedup, log, mentionUsers, time.Duration(cooldownHours*float64(time.Hour)))
	notifier.SetMaxListed(maxListed)

	tr := tracker.New(backend)
	orch := orchestrator.New(backend, data, evaluator, notifier, tr, webhook, log, time.Now)

	return &CoreContext{
		Backend:      backend,
		ConfigStore:  cfg,
		Calendar:     cal,
		Evaluator:    evaluator,
		Data:         data,
		Notifier:     notifier,
		Tracker:      tr,
		Webhook:      webhook,
		Orchestrator: orch,
		Log:          log,
	}, nil
}

// newScheduler builds the periodic trigger over the CoreContext's
// orchestrator, reading the interval from system_config.
func (c *CoreContext) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	minutes, err := c.ConfigStore.GetInt(ctx, "agent_interval_minutes")
	if err != nil {
		return nil, err
	}
	return scheduler.New(func(ctx context.Context, dryRun bool) error {
		_, err := c.Orchestrator.Execute(ctx, dryRun)
		return err
	}, time.Duration(minutes)*time.Minute, c.Log), nil
}

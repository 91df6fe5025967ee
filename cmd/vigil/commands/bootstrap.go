package commands

import (
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/config"
	"github.com/vigilhq/vigil/db"
	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/logger"
	"github.com/vigilhq/vigil/monitor/classify"
	"github.com/vigilhq/vigil/monitor/collect"
	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/event"
	"github.com/vigilhq/vigil/monitor/notify"
	"github.com/vigilhq/vigil/monitor/run"
	"github.com/vigilhq/vigil/monitor/schedule"
	"github.com/vigilhq/vigil/monitor/signal"
	"github.com/vigilhq/vigil/monitor/workflow"
)

// stack is the fully wired monitoring subsystem a command operates on.
type stack struct {
	cfg      *config.Config
	db       *sql.DB
	registry *schedule.Registry
	tracker  *run.Tracker
	runner   *workflow.Runner
	log      *zap.SugaredLogger
}

// openStack loads config, opens and migrates the database, and wires the
// registry, tracker, engine, and runner together.
func openStack() (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	if cfg.Log.File != "" {
		if err := logger.InitializeWithFile(cfg.Log.JSON, cfg.Log.File); err != nil {
			return nil, errors.Wrap(err, "failed to initialize file logging")
		}
	}
	log := logger.Logger

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	registry := schedule.NewRegistry(schedule.NewStore(database), log)
	tracker := run.NewTracker(run.NewStore(database), registry, log)

	clients := entity.NewStore(database)
	signals := signal.NewStore(database)
	events := event.NewStore(database)
	prefs := notify.NewPreferenceStore(database)
	deliveries := notify.NewDeliveryStore(database)

	timeout := time.Duration(cfg.Monitor.CollaboratorTimeoutSeconds) * time.Second

	// No external source/classifier collaborators ship with the core
	// binary; the aggregator's synthetic fallback and the rule-based
	// classifier keep the pipeline exercised until real ones are plugged in.
	aggregator := collect.NewAggregator(nil, signals, timeout, log)
	adapter := classify.NewAdapter(nil, log)

	var email notify.Channel
	if cfg.Dispatch.SendGridAPIKey != "" {
		email = notify.NewEmailChannel(cfg.Dispatch.SendGridAPIKey, cfg.Dispatch.FromName, cfg.Dispatch.FromEmail, log)
	} else {
		email = notify.NewNoopChannel(notify.ChannelEmail)
	}
	dispatcher := notify.NewDispatcher(notify.NewInAppChannel(log), email, deliveries, log)

	engine := workflow.NewEngine(workflow.Config{
		Workers:            cfg.Monitor.Workers,
		LookbackHours:      cfg.Monitor.LookbackHours,
		MaxEventsPerEntity: cfg.Monitor.MaxEventsPerEntity,
		EnrichTimeout:      timeout,
	}, aggregator, nil, adapter, clients, events, signals, prefs, dispatcher, log)

	return &stack{
		cfg:      cfg,
		db:       database,
		registry: registry,
		tracker:  tracker,
		runner:   workflow.NewRunner(engine, tracker, clients, log),
		log:      log,
	}, nil
}

func (s *stack) close() {
	if err := s.db.Close(); err != nil {
		s.log.Warnw("Failed to close database", "error", err)
	}
}

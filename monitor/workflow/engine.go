// Package workflow drives one complete monitoring run: collection,
// classification, event materialization, policy evaluation, and dispatch.
package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/classify"
	"github.com/vigilhq/vigil/monitor/collect"
	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/event"
	"github.com/vigilhq/vigil/monitor/notify"
	"github.com/vigilhq/vigil/monitor/run"
	"github.com/vigilhq/vigil/monitor/signal"
)

// Config bounds the engine's parallelism and per-entity output.
type Config struct {
	Workers            int
	LookbackHours      int
	MaxEventsPerEntity int
	EnrichTimeout      time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:            4,
		LookbackHours:      24,
		MaxEventsPerEntity: 25,
		EnrichTimeout:      15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.LookbackHours <= 0 {
		c.LookbackHours = d.LookbackHours
	}
	if c.MaxEventsPerEntity <= 0 {
		c.MaxEventsPerEntity = d.MaxEventsPerEntity
	}
	if c.EnrichTimeout <= 0 {
		c.EnrichTimeout = d.EnrichTimeout
	}
	return c
}

// Engine executes job runs over a set of target clients.
type Engine struct {
	cfg        Config
	aggregator *collect.Aggregator
	enricher   Enricher
	adapter    *classify.Adapter
	clients    *entity.Store
	events     *event.Store
	signals    *signal.Store
	prefs      *notify.PreferenceStore
	dispatcher *notify.Dispatcher
	log        *zap.SugaredLogger
}

// NewEngine wires the pipeline. enricher may be nil; the no-op enricher is
// substituted.
func NewEngine(
	cfg Config,
	aggregator *collect.Aggregator,
	enricher Enricher,
	adapter *classify.Adapter,
	clients *entity.Store,
	events *event.Store,
	signals *signal.Store,
	prefs *notify.PreferenceStore,
	dispatcher *notify.Dispatcher,
	log *zap.SugaredLogger,
) *Engine {
	if enricher == nil {
		enricher = NoopEnricher{}
	}
	return &Engine{
		cfg:        cfg.withDefaults(),
		aggregator: aggregator,
		enricher:   enricher,
		adapter:    adapter,
		clients:    clients,
		events:     events,
		signals:    signals,
		prefs:      prefs,
		dispatcher: dispatcher,
		log:        log,
	}
}

// entityResult carries one entity's tallies back to the pool collector.
type entityResult struct {
	signalsFound      int
	signalsNew        int
	notificationsSent int
	err               error
}

// Execute processes every target client under bounded parallelism and
// returns the aggregated counters. Per-entity failures are isolated; the
// returned error is non-nil only when the run as a whole failed: no targets
// (ErrStructural), every entity failed, or cancellation stopped the run
// before all entities were attempted.
func (e *Engine) Execute(ctx context.Context, runID string, targets []*entity.Client) (run.Counters, error) {
	var counters run.Counters

	if len(targets) == 0 {
		return counters, errors.NewStructuralError("no target entities resolved for run %s", runID)
	}

	sem := make(chan struct{}, e.cfg.Workers)
	results := make([]entityResult, len(targets))
	started := 0

	var wg sync.WaitGroup
	for i, client := range targets {
		// Cancellation lets in-flight entities finish but starts no new ones.
		if ctx.Err() != nil {
			break
		}

		started++
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, client *entity.Client) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.processEntity(ctx, runID, client)
		}(i, client)
	}
	wg.Wait()

	failures := 0
	for _, res := range results[:started] {
		if res.err != nil {
			failures++
			continue
		}
		counters.EntitiesProcessed++
		counters.SignalsFound += res.signalsFound
		counters.SignalsNew += res.signalsNew
		counters.NotificationsSent += res.notificationsSent
	}

	if started < len(targets) {
		return counters, errors.Wrapf(ctx.Err(),
			"run cancelled after %d of %d entities", started, len(targets))
	}
	if failures == len(targets) {
		return counters, errors.NewStructuralError("all %d entities failed in run %s", len(targets), runID)
	}

	return counters, nil
}

// processEntity runs the full pipeline for one client. Every step degrades
// rather than aborts except collection persistence itself.
func (e *Engine) processEntity(ctx context.Context, runID string, client *entity.Client) entityResult {
	var res entityResult

	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("Entity processing panicked",
				"client_id", client.ID,
				"panic", r)
			res.err = errors.Newf("panic while processing entity %s: %v", client.ID, r)
		}
	}()

	window := collect.Window{
		From: time.Now().UTC().Add(-time.Duration(e.cfg.LookbackHours) * time.Hour),
		To:   time.Now().UTC(),
	}

	payloads, err := e.aggregator.Collect(ctx, runID, client, window)
	if err != nil {
		e.log.Errorw("Collection failed for entity",
			"client_id", client.ID,
			"run_id", runID,
			"error", err)
		res.err = err
		return res
	}
	res.signalsFound = len(payloads)

	enrichment := e.enrich(ctx, client)
	subscribers, err := e.clients.Subscribers(client.ID)
	if err != nil {
		res.err = err
		return res
	}

	created := 0
	for _, payload := range payloads {
		if created >= e.cfg.MaxEventsPerEntity {
			e.log.Warnw("Per-entity event cap reached, remaining signals deferred",
				"client_id", client.ID,
				"cap", e.cfg.MaxEventsPerEntity)
			break
		}

		ev, isNew, err := e.materialize(ctx, runID, client, payload, enrichment)
		if err != nil {
			// Consistency anomalies are logged per entity without
			// aborting the remaining signals.
			e.log.Errorw("Event materialization failed",
				"client_id", client.ID,
				"title", payload.Title,
				"error", err)
			continue
		}
		if !isNew {
			continue
		}

		created++
		res.signalsNew++
		res.notificationsSent += e.notifySubscribers(ctx, ev, subscribers)
	}

	return res
}

func (e *Engine) enrich(ctx context.Context, client *entity.Client) Enrichment {
	enrichCtx, cancel := context.WithTimeout(ctx, e.cfg.EnrichTimeout)
	defer cancel()

	enrichment, err := e.enricher.Enrich(enrichCtx, client)
	if err != nil {
		e.log.Warnw("Enrichment failed, continuing without it",
			"client_id", client.ID,
			"error", err)
		return nil
	}
	return enrichment
}

// materialize classifies a payload and creates its event idempotently.
// isNew is false when the fingerprint already resolved to an event.
func (e *Engine) materialize(ctx context.Context, runID string, client *entity.Client, payload signal.Payload, enrichment Enrichment) (*event.Event, bool, error) {
	enriched := client
	if len(enrichment) > 0 {
		c := *client
		for _, v := range enrichment {
			c.Keywords = append(c.Keywords, v)
		}
		enriched = &c
	}

	classification := e.adapter.Classify(ctx, payload, enriched)
	fingerprint := signal.Fingerprint(payload.Title, payload.URL)

	ev := &event.Event{
		ID:           uuid.New().String(),
		ClientID:     client.ID,
		Title:        payload.Title,
		Summary:      payload.Summary,
		URL:          payload.URL,
		Source:       payload.Source,
		Category:     classification.Category,
		Relevance:    classification.Relevance,
		Sentiment:    classification.Sentiment,
		DiscoveredAt: time.Now().UTC(),
		Fingerprint:  fingerprint,
	}
	if !payload.OccurredAt.IsZero() {
		occurred := payload.OccurredAt
		ev.OccurredAt = &occurred
	}

	stored, isNew, err := e.events.CreateIdempotent(ev)
	if err != nil {
		return nil, false, err
	}

	// Link the raw rows whether the event is new or pre-existing; a
	// re-collected story still counts as processed.
	if err := e.signals.MarkProcessedByFingerprint(runID, client.ID, fingerprint, stored.ID); err != nil {
		e.log.Warnw("Failed to link raw signals to event",
			"event_id", stored.ID,
			"error", err)
	}

	if isNew {
		if ins, ok := e.adapter.GenerateInsight(ctx, stored); ok {
			if err := e.events.SetInsight(stored.ID, ins.Narrative, ins.RecommendedAction); err != nil {
				e.log.Warnw("Failed to store insight",
					"event_id", stored.ID,
					"error", err)
			} else {
				stored.Insight = ins.Narrative
				stored.RecommendedAction = ins.RecommendedAction
			}
		}
	}

	return stored, isNew, nil
}

func (e *Engine) notifySubscribers(ctx context.Context, ev *event.Event, subscribers []string) int {
	sent := 0
	for _, subscriberID := range subscribers {
		pref, err := e.prefs.Get(subscriberID)
		if err != nil {
			e.log.Errorw("Failed to load subscriber preference",
				"subscriber_id", subscriberID,
				"error", err)
			continue
		}

		// Subscribers come from the entity's assignment list, so the
		// assignment-scope check is satisfied by construction.
		decision := notify.Decide(ev, pref, true)
		if !decision.Notify {
			e.log.Debugw("Notification suppressed",
				"subscriber_id", subscriberID,
				"event_id", ev.ID,
				"reason", decision.Reason)
			continue
		}

		attempts, err := e.dispatcher.Dispatch(ctx, ev, pref, decision)
		if err != nil {
			e.log.Errorw("Dispatch failed",
				"subscriber_id", subscriberID,
				"event_id", ev.ID,
				"error", err)
			continue
		}
		sent += attempts
	}
	return sent
}

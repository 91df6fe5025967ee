// Package collect gathers raw signals for a tracked client from pluggable
// source collaborators, persists them, and merges the deduplicated survivors.
package collect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/signal"
)

// Window is the lookback period a collection covers.
type Window struct {
	From time.Time
	To   time.Time
}

// Source is a pluggable signal collaborator. Implementations must honor
// ctx cancellation; the aggregator enforces a per-call timeout.
type Source interface {
	Name() string
	Search(ctx context.Context, client *entity.Client, window Window) ([]signal.Payload, error)
}

// Outbound source calls are rate limited across the whole aggregator, so a
// large target set cannot hammer external collaborators.
const (
	sourceCallsPerSecond = 5
	sourceCallBurst      = 5
)

// Aggregator fans out to every configured source and merges the results.
type Aggregator struct {
	sources  []Source
	fallback Source
	signals  *signal.Store
	timeout  time.Duration
	limiter  *rate.Limiter
	log      *zap.SugaredLogger
}

// NewAggregator creates an aggregator over the given sources. timeout bounds
// each individual source call.
func NewAggregator(sources []Source, signals *signal.Store, timeout time.Duration, log *zap.SugaredLogger) *Aggregator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Aggregator{
		sources:  sources,
		fallback: NewSyntheticSource(),
		signals:  signals,
		timeout:  timeout,
		limiter:  rate.NewLimiter(sourceCallsPerSecond, sourceCallBurst),
		log:      log,
	}
}

// Collect gathers signals for one client. Source failures are logged and
// swallowed; the synthetic fallback runs only when no real source produced a
// result set. Every raw payload is persisted before dedup so provenance
// survives even for discarded duplicates.
func (a *Aggregator) Collect(ctx context.Context, runID string, client *entity.Client, window Window) ([]signal.Payload, error) {
	var merged []signal.Payload
	anySucceeded := false

	for _, src := range a.sources {
		payloads, err := a.searchOne(ctx, src, client, window)
		if err != nil {
			a.log.Warnw("Source collection failed",
				"source", src.Name(),
				"client_id", client.ID,
				"error", err)
			continue
		}
		anySucceeded = true
		merged = append(merged, payloads...)
	}

	if !anySucceeded {
		if len(a.sources) > 0 {
			a.log.Warnw("All sources failed, using synthetic fallback",
				"client_id", client.ID,
				"sources", len(a.sources))
		}
		payloads, err := a.searchOne(ctx, a.fallback, client, window)
		if err != nil {
			return nil, errors.Wrap(err, "synthetic fallback failed")
		}
		merged = payloads
	}

	if err := a.persistRaw(runID, client.ID, merged); err != nil {
		return nil, err
	}

	known, err := a.signals.KnownFingerprints(client.ID)
	if err != nil {
		return nil, err
	}

	kept := signal.Dedupe(merged, known)
	signal.SortByOccurrence(kept)
	a.log.Infow("Collection complete",
		"client_id", client.ID,
		"raw", len(merged),
		"kept", len(kept))

	return kept, nil
}

func (a *Aggregator) searchOne(ctx context.Context, src Source, client *entity.Client, window Window) ([]signal.Payload, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// Queueing for a rate-limit slot counts against the call timeout.
	if err := a.limiter.Wait(callCtx); err != nil {
		return nil, errors.WrapCollaborator(err, src.Name())
	}

	payloads, err := src.Search(callCtx, client, window)
	if err != nil {
		return nil, errors.WrapCollaborator(err, src.Name())
	}
	return payloads, nil
}

func (a *Aggregator) persistRaw(runID, clientID string, payloads []signal.Payload) error {
	for _, p := range payloads {
		data, err := json.Marshal(p)
		if err != nil {
			return errors.Wrap(err, "marshal raw payload")
		}
		sig := &signal.RawSignal{
			ID:          uuid.New().String(),
			RunID:       runID,
			ClientID:    clientID,
			Source:      p.Source,
			Payload:     string(data),
			Fingerprint: signal.Fingerprint(p.Title, p.URL),
		}
		if err := a.signals.Create(sig); err != nil {
			return err
		}
	}
	return nil
}

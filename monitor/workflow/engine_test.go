package workflow

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	vigiltesting "github.com/vigilhq/vigil/internal/testing"
	"github.com/vigilhq/vigil/monitor/classify"
	"github.com/vigilhq/vigil/monitor/collect"
	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/event"
	"github.com/vigilhq/vigil/monitor/notify"
	"github.com/vigilhq/vigil/monitor/run"
	"github.com/vigilhq/vigil/monitor/signal"
)

type stubSource struct {
	name     string
	payloads []signal.Payload
	err      error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(_ context.Context, _ *entity.Client, _ collect.Window) ([]signal.Payload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payloads, nil
}

type fixture struct {
	db         *sql.DB
	clients    *entity.Store
	events     *event.Store
	signals    *signal.Store
	prefs      *notify.PreferenceStore
	deliveries *notify.DeliveryStore
	tracker    *run.Tracker
	inApp      *recordingChannel
}

type recordingChannel struct {
	sent []notify.Message
}

func (c *recordingChannel) Name() string { return notify.ChannelInApp }

func (c *recordingChannel) Send(_ context.Context, msg notify.Message) (notify.Receipt, error) {
	c.sent = append(c.sent, msg)
	return notify.Receipt{}, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := vigiltesting.CreateTestDB(t)
	return &fixture{
		db:         database,
		clients:    entity.NewStore(database),
		events:     event.NewStore(database),
		signals:    signal.NewStore(database),
		prefs:      notify.NewPreferenceStore(database),
		deliveries: notify.NewDeliveryStore(database),
		tracker:    run.NewTracker(run.NewStore(database), nil, zap.NewNop().Sugar()),
		inApp:      &recordingChannel{},
	}
}

func (f *fixture) newEngine(t *testing.T, sources []collect.Source) *Engine {
	t.Helper()
	log := zap.NewNop().Sugar()
	aggregator := collect.NewAggregator(sources, f.signals, time.Second, log)
	adapter := classify.NewAdapter(nil, log)
	dispatcher := notify.NewDispatcher(f.inApp, nil, f.deliveries, log)
	return NewEngine(Config{Workers: 2}, aggregator, nil, adapter, f.clients, f.events, f.signals, f.prefs, dispatcher, log)
}

func (f *fixture) seedClient(t *testing.T, name string) *entity.Client {
	t.Helper()
	c := &entity.Client{
		ID:       uuid.New().String(),
		TenantID: "tenant-1",
		Name:     name,
	}
	require.NoError(t, f.clients.Create(c))
	return c
}

func (f *fixture) openRun(t *testing.T) *run.Run {
	t.Helper()
	r, err := f.tracker.Open("")
	require.NoError(t, err)
	r, err = f.tracker.Start(r.ID)
	require.NoError(t, err)
	return r
}

func fundingPayload(source string) signal.Payload {
	return signal.Payload{
		Title:  "Acme raises $10M Series A",
		URL:    "https://news.example.com/acme-funding",
		Source: source,
	}
}

func TestExecuteCreatesEventsAndNotifies(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")
	require.NoError(t, f.clients.Assign(client.ID, "sub-1"))

	// Keep the default threshold below the fallback classifier's relevance.
	pref, err := f.prefs.Get("sub-1")
	require.NoError(t, err)
	pref.RelevanceThreshold = 0.3
	require.NoError(t, f.prefs.Update(pref))

	engine := f.newEngine(t, []collect.Source{
		&stubSource{name: "news", payloads: []signal.Payload{fundingPayload("news")}},
	})
	jobRun := f.openRun(t)

	counters, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.EntitiesProcessed)
	assert.Equal(t, 1, counters.SignalsFound)
	assert.Equal(t, 1, counters.SignalsNew)
	assert.Equal(t, 1, counters.NotificationsSent)

	events, err := f.events.ListByClient(client.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.CategoryFunding, events[0].Category)
	assert.Len(t, f.inApp.sent, 1)
}

func TestExecuteIdempotentAcrossReRuns(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")

	sources := []collect.Source{
		&stubSource{name: "news", payloads: []signal.Payload{fundingPayload("news")}},
	}
	engine := f.newEngine(t, sources)

	first := f.openRun(t)
	counters, err := engine.Execute(context.Background(), first.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.SignalsNew)

	second := f.openRun(t)
	counters, err = engine.Execute(context.Background(), second.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Zero(t, counters.SignalsNew)

	events, err := f.events.ListByClient(client.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestExecuteSameStoryFromTwoSources(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")

	engine := f.newEngine(t, []collect.Source{
		&stubSource{name: "source-a", payloads: []signal.Payload{fundingPayload("source-a")}},
		&stubSource{name: "source-b", payloads: []signal.Payload{fundingPayload("source-b")}},
	})
	jobRun := f.openRun(t)

	counters, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.SignalsNew)

	events, err := f.events.ListByClient(client.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Both raw rows were persisted and both are linked to the one event.
	raw, err := f.signals.ListByRun(jobRun.ID)
	require.NoError(t, err)
	require.Len(t, raw, 2)
	for _, sig := range raw {
		assert.True(t, sig.Processed)
		assert.Equal(t, events[0].ID, sig.EventID)
	}
}

func TestExecuteSurvivesPartialSourceFailure(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")

	engine := f.newEngine(t, []collect.Source{
		&stubSource{name: "broken-a", err: errors.New("unreachable")},
		&stubSource{name: "news", payloads: []signal.Payload{fundingPayload("news")}},
		&stubSource{name: "broken-b", err: errors.New("rate limited")},
	})
	jobRun := f.openRun(t)

	counters, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.SignalsNew)
}

func TestExecuteNoTargetsIsStructural(t *testing.T) {
	f := newFixture(t)
	engine := f.newEngine(t, nil)
	jobRun := f.openRun(t)

	_, err := engine.Execute(context.Background(), jobRun.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
}

func TestExecuteEventCapPerEntity(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")

	// Distinct titles so dedup keeps them all.
	titles := []string{
		"Acme raises $10M Series A",
		"Acme acquires Widget Co outright",
		"Acme appoints new chief executive",
		"Acme launches flagship analytics product",
	}
	var payloads []signal.Payload
	for _, title := range titles {
		payloads = append(payloads, signal.Payload{
			Title:  title,
			URL:    "https://news.example.com/story-" + uuid.New().String(),
			Source: "news",
		})
	}

	log := zap.NewNop().Sugar()
	aggregator := collect.NewAggregator([]collect.Source{
		&stubSource{name: "news", payloads: payloads},
	}, f.signals, time.Second, log)
	adapter := classify.NewAdapter(nil, log)
	dispatcher := notify.NewDispatcher(f.inApp, nil, f.deliveries, log)
	engine := NewEngine(Config{Workers: 1, MaxEventsPerEntity: 2},
		aggregator, nil, adapter, f.clients, f.events, f.signals, f.prefs, dispatcher, log)

	jobRun := f.openRun(t)
	counters, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{client})
	require.NoError(t, err)
	assert.Equal(t, 4, counters.SignalsFound)
	assert.Equal(t, 2, counters.SignalsNew)

	events, err := f.events.ListByClient(client.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestExecutePartialEntityFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	healthy := f.seedClient(t, "Acme Corp")
	// A client missing from storage makes its subscriber lookup succeed but
	// collection still works; simulate failure with a deleted client row
	// after resolution instead: use an unseeded client so signal insert
	// violates the foreign key.
	broken := &entity.Client{ID: uuid.New().String(), TenantID: "tenant-1", Name: "Ghost Co"}

	engine := f.newEngine(t, []collect.Source{
		&stubSource{name: "news", payloads: []signal.Payload{fundingPayload("news")}},
	})
	jobRun := f.openRun(t)

	counters, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{healthy, broken})
	require.NoError(t, err)
	assert.Equal(t, 1, counters.EntitiesProcessed)
}

func TestExecuteAllEntitiesFailed(t *testing.T) {
	f := newFixture(t)
	broken := &entity.Client{ID: uuid.New().String(), TenantID: "tenant-1", Name: "Ghost Co"}

	engine := f.newEngine(t, []collect.Source{
		&stubSource{name: "news", payloads: []signal.Payload{fundingPayload("news")}},
	})
	jobRun := f.openRun(t)

	_, err := engine.Execute(context.Background(), jobRun.ID, []*entity.Client{broken})
	require.Error(t, err)
	assert.True(t, errors.IsStructural(err))
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	client := f.seedClient(t, "Acme Corp")

	engine := f.newEngine(t, nil)
	jobRun := f.openRun(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Execute(ctx, jobRun.ID, []*entity.Client{client})
	require.Error(t, err)
}

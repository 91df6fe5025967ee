package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vigilhq/vigil/errors"
	vigiltesting "github.com/vigilhq/vigil/internal/testing"
	"github.com/vigilhq/vigil/internal/util"
)

func newTestStore(t *testing.T) (*Store, string) {
	database := vigiltesting.CreateTestDB(t)
	store := NewStore(database)

	clientID := uuid.New().String()
	_, err := database.Exec(`
		INSERT INTO clients (id, tenant_id, name, created_at, updated_at)
		VALUES (?, 'tenant-1', 'Acme Corp', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`, clientID)
	require.NoError(t, err)

	return store, clientID
}

func testEvent(clientID string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		Title:        "Acme raises $10M Series A",
		Summary:      "Acme Corp announced a $10M Series A round.",
		URL:          "https://news.example.com/acme-funding",
		Source:       "news",
		Category:     CategoryFunding,
		Relevance:    0.85,
		Sentiment:    util.Ptr(0.6),
		DiscoveredAt: time.Now().UTC(),
		Fingerprint:  "fp-acme-funding",
	}
}

func TestCreateAndGet(t *testing.T) {
	store, clientID := newTestStore(t)

	e := testEvent(clientID)
	require.NoError(t, store.Create(e))

	got, err := store.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Title, got.Title)
	assert.Equal(t, CategoryFunding, got.Category)
	assert.InDelta(t, 0.85, got.Relevance, 0.001)
	require.NotNil(t, got.Sentiment)
	assert.InDelta(t, 0.6, *got.Sentiment, 0.001)
	assert.False(t, got.Read)
}

func TestCreateValidation(t *testing.T) {
	store, clientID := newTestStore(t)

	e := testEvent(clientID)
	e.Relevance = 1.5
	err := store.Create(e)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	e = testEvent(clientID)
	e.Category = "gossip"
	err = store.Create(e)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	e = testEvent(clientID)
	e.Sentiment = util.Ptr(-2.0)
	err = store.Create(e)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestCreateDuplicateFingerprintConflicts(t *testing.T) {
	store, clientID := newTestStore(t)

	first := testEvent(clientID)
	require.NoError(t, store.Create(first))

	second := testEvent(clientID)
	second.ID = uuid.New().String()
	err := store.Create(second)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestCreateIdempotentReturnsExisting(t *testing.T) {
	store, clientID := newTestStore(t)

	first := testEvent(clientID)
	created, isNew, err := store.CreateIdempotent(first)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, first.ID, created.ID)

	second := testEvent(clientID)
	second.ID = uuid.New().String()
	existing, isNew, err := store.CreateIdempotent(second)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, first.ID, existing.ID)
}

func TestSameFingerprintDifferentClients(t *testing.T) {
	store, clientA := newTestStore(t)

	clientB := uuid.New().String()
	_, err := store.db.Exec(`
		INSERT INTO clients (id, tenant_id, name, created_at, updated_at)
		VALUES (?, 'tenant-1', 'Widget Co', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')
	`, clientB)
	require.NoError(t, err)

	a := testEvent(clientA)
	require.NoError(t, store.Create(a))

	b := testEvent(clientB)
	b.ID = uuid.New().String()
	require.NoError(t, store.Create(b))
}

func TestUserMutations(t *testing.T) {
	store, clientID := newTestStore(t)

	e := testEvent(clientID)
	require.NoError(t, store.Create(e))

	require.NoError(t, store.MarkRead(e.ID, true))
	require.NoError(t, store.SetStarred(e.ID, true))
	require.NoError(t, store.SetNote(e.ID, "follow up with the account team"))
	require.NoError(t, store.SetInsight(e.ID, "Significant funding milestone.", "Congratulate and propose expansion."))

	got, err := store.Get(e.ID)
	require.NoError(t, err)
	assert.True(t, got.Read)
	assert.True(t, got.Starred)
	assert.Equal(t, "follow up with the account team", got.Note)
	assert.Equal(t, "Significant funding milestone.", got.Insight)
	assert.Equal(t, "Congratulate and propose expansion.", got.RecommendedAction)
}

func TestMutationsOnMissingEvent(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.MarkRead("no-such-event", true)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestListByClientOrdersNewestFirst(t *testing.T) {
	store, clientID := newTestStore(t)

	older := testEvent(clientID)
	older.Fingerprint = "fp-older"
	older.DiscoveredAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, store.Create(older))

	newer := testEvent(clientID)
	newer.ID = uuid.New().String()
	newer.Fingerprint = "fp-newer"
	newer.DiscoveredAt = time.Now().UTC()
	require.NoError(t, store.Create(newer))

	events, err := store.ListByClient(clientID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "fp-newer", events[0].Fingerprint)
}

func TestCountByClientSince(t *testing.T) {
	store, clientID := newTestStore(t)

	old := testEvent(clientID)
	old.Fingerprint = "fp-old"
	old.DiscoveredAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.Create(old))

	recent := testEvent(clientID)
	recent.ID = uuid.New().String()
	recent.Fingerprint = "fp-recent"
	recent.DiscoveredAt = time.Now().UTC()
	require.NoError(t, store.Create(recent))

	count, err := store.CountByClientSince(clientID, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

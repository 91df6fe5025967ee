package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigilhq/vigil/errors"
	vigiltesting "github.com/vigilhq/vigil/internal/testing"
	"github.com/vigilhq/vigil/monitor/event"
)

type stubChannel struct {
	name string
	err  error
	sent []Message
}

func (c *stubChannel) Name() string { return c.name }

func (c *stubChannel) Send(_ context.Context, msg Message) (Receipt, error) {
	if c.err != nil {
		return Receipt{}, c.err
	}
	c.sent = append(c.sent, msg)
	return Receipt{ProviderMessageID: "stub-1"}, nil
}

func dispatchEvent() *event.Event {
	return &event.Event{
		ID:        "e1",
		ClientID:  "client-1",
		Title:     "Acme raises $10M",
		Summary:   "Funding round announced.",
		Category:  event.CategoryFunding,
		Relevance: 0.9,
	}
}

func TestDispatchInstantBothChannels(t *testing.T) {
	deliveries := NewDeliveryStore(vigiltesting.CreateTestDB(t))
	inApp := &stubChannel{name: ChannelInApp}
	email := &stubChannel{name: ChannelEmail}
	d := NewDispatcher(inApp, email, deliveries, zap.NewNop().Sugar())

	pref := DefaultPreference("sub-1")
	pref.Email = "analyst@example.com"

	attempts, err := d.Dispatch(context.Background(), dispatchEvent(), pref, Decision{Notify: true, Bucket: FrequencyInstant})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, inApp.sent, 1)
	assert.Len(t, email.sent, 1)
	assert.Equal(t, "analyst@example.com", email.sent[0].Recipient)
}

func TestDispatchRespectsChannelFlags(t *testing.T) {
	deliveries := NewDeliveryStore(vigiltesting.CreateTestDB(t))
	inApp := &stubChannel{name: ChannelInApp}
	email := &stubChannel{name: ChannelEmail}
	d := NewDispatcher(inApp, email, deliveries, zap.NewNop().Sugar())

	pref := DefaultPreference("sub-1")
	pref.EmailEnabled = false

	attempts, err := d.Dispatch(context.Background(), dispatchEvent(), pref, Decision{Notify: true, Bucket: FrequencyInstant})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Len(t, inApp.sent, 1)
	assert.Empty(t, email.sent)
}

func TestDispatchSuppressedDecision(t *testing.T) {
	deliveries := NewDeliveryStore(vigiltesting.CreateTestDB(t))
	inApp := &stubChannel{name: ChannelInApp}
	d := NewDispatcher(inApp, nil, deliveries, zap.NewNop().Sugar())

	attempts, err := d.Dispatch(context.Background(), dispatchEvent(), DefaultPreference("sub-1"), Decision{Notify: false})
	require.NoError(t, err)
	assert.Zero(t, attempts)
	assert.Empty(t, inApp.sent)
}

func TestDispatchFailureRecordedNotPropagated(t *testing.T) {
	database := vigiltesting.CreateTestDB(t)
	deliveries := NewDeliveryStore(database)
	email := &stubChannel{name: ChannelEmail, err: errors.New("provider down")}
	d := NewDispatcher(nil, email, deliveries, zap.NewNop().Sugar())

	pref := DefaultPreference("sub-1")
	pref.Email = "analyst@example.com"

	attempts, err := d.Dispatch(context.Background(), dispatchEvent(), pref, Decision{Notify: true, Bucket: FrequencyInstant})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	var status string
	var retries int
	err = database.QueryRow(`SELECT status, retry_count FROM delivery_log WHERE subscriber_id = 'sub-1'`).Scan(&status, &retries)
	require.NoError(t, err)
	assert.Equal(t, string(DeliveryFailed), status)
	assert.Equal(t, 1, retries)
}

func TestDispatchDigestQueuesPendingEntry(t *testing.T) {
	deliveries := NewDeliveryStore(vigiltesting.CreateTestDB(t))
	inApp := &stubChannel{name: ChannelInApp}
	d := NewDispatcher(inApp, nil, deliveries, zap.NewNop().Sugar())

	pref := DefaultPreference("sub-1")
	pref.Frequency = FrequencyDigest

	attempts, err := d.Dispatch(context.Background(), dispatchEvent(), pref, Decision{Notify: true, Bucket: FrequencyDigest})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	// Nothing went out instantly; the event waits in the digest queue.
	assert.Empty(t, inApp.sent)
	pending, err := deliveries.ListPendingDigest("sub-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].EventID)
}

package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vigilhq/vigil/monitor/event"
)

func eligibleEvent() *event.Event {
	return &event.Event{
		ID:        "e1",
		ClientID:  "client-1",
		Category:  event.CategoryFunding,
		Relevance: 0.8,
	}
}

func openPreference() *Preference {
	p := DefaultPreference("sub-1")
	p.RelevanceThreshold = 0.5
	return p
}

func TestDecideEligible(t *testing.T) {
	d := Decide(eligibleEvent(), openPreference(), false)
	assert.True(t, d.Notify)
	assert.Equal(t, FrequencyInstant, d.Bucket)
}

func TestDecideAllChannelsDisabled(t *testing.T) {
	p := openPreference()
	p.InAppEnabled = false
	p.EmailEnabled = false

	d := Decide(eligibleEvent(), p, true)
	assert.False(t, d.Notify)
}

func TestDecideOneChannelStillEligible(t *testing.T) {
	p := openPreference()
	p.EmailEnabled = false

	d := Decide(eligibleEvent(), p, false)
	assert.True(t, d.Notify)
}

func TestDecideRelevanceThreshold(t *testing.T) {
	p := openPreference()
	p.RelevanceThreshold = 0.8

	ev := eligibleEvent()
	ev.Relevance = 0.75
	assert.False(t, Decide(ev, p, false).Notify)

	ev.Relevance = 0.8
	assert.True(t, Decide(ev, p, false).Notify)

	ev.Relevance = 0.85
	assert.True(t, Decide(ev, p, false).Notify)
}

func TestDecideCategoryAllowList(t *testing.T) {
	ev := eligibleEvent()

	// nil allow-list admits every category.
	p := openPreference()
	p.Categories = nil
	assert.True(t, Decide(ev, p, false).Notify)

	// Empty allow-list blocks every category.
	p.Categories = []event.Category{}
	assert.False(t, Decide(ev, p, false).Notify)

	// Populated allow-list admits only its members.
	p.Categories = []event.Category{event.CategoryFunding, event.CategoryRisk}
	assert.True(t, Decide(ev, p, false).Notify)

	ev.Category = event.CategoryPress
	assert.False(t, Decide(ev, p, false).Notify)
}

func TestDecideAssignmentScope(t *testing.T) {
	p := openPreference()
	p.AssignedOnly = true

	assert.False(t, Decide(eligibleEvent(), p, false).Notify)
	assert.True(t, Decide(eligibleEvent(), p, true).Notify)
}

func TestDecideDigestBucket(t *testing.T) {
	p := openPreference()
	p.Frequency = FrequencyDigest

	d := Decide(eligibleEvent(), p, false)
	assert.True(t, d.Notify)
	assert.Equal(t, FrequencyDigest, d.Bucket)
}

func TestDecideIsPure(t *testing.T) {
	ev := eligibleEvent()
	p := openPreference()

	first := Decide(ev, p, true)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Decide(ev, p, true))
	}
}

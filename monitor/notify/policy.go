package notify

import (
	"github.com/vigilhq/vigil/monitor/event"
)

// Decision is the policy engine's verdict for one (event, subscriber) pair.
type Decision struct {
	Notify bool
	Bucket Frequency // meaningful only when Notify is true
	Reason string    // set when suppressed, for diagnostics
}

// Decide is a pure function mapping an event and a subscriber preference to
// notify or suppress. assignedToEntity reports whether the subscriber is
// assigned to the event's client; the caller resolves it since policy holds
// no storage.
func Decide(ev *event.Event, pref *Preference, assignedToEntity bool) Decision {
	if !pref.InAppEnabled && !pref.EmailEnabled {
		return Decision{Reason: "all channels disabled"}
	}
	if ev.Relevance < pref.RelevanceThreshold {
		return Decision{Reason: "below relevance threshold"}
	}
	if !pref.allowsCategory(ev.Category) {
		return Decision{Reason: "category not in allow-list"}
	}
	if pref.AssignedOnly && !assignedToEntity {
		return Decision{Reason: "subscriber not assigned to entity"}
	}
	return Decision{Notify: true, Bucket: pref.Frequency}
}

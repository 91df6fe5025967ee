// Package notify decides who hears about an event and delivers the message.
package notify

import (
	"time"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/monitor/event"
)

// Frequency is how a subscriber wants notifications delivered.
type Frequency string

const (
	FrequencyInstant Frequency = "instant"
	FrequencyDigest  Frequency = "digest"
)

// Preference is one subscriber's notification policy. Categories nil means
// all categories are allowed; an empty non-nil slice blocks every category.
type Preference struct {
	SubscriberID       string
	Email              string
	InAppEnabled       bool
	EmailEnabled       bool
	RelevanceThreshold float64
	Categories         []event.Category
	Frequency          Frequency
	AssignedOnly       bool
	DigestHour         int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DefaultPreference is the policy applied lazily on first access.
func DefaultPreference(subscriberID string) *Preference {
	return &Preference{
		SubscriberID:       subscriberID,
		InAppEnabled:       true,
		EmailEnabled:       true,
		RelevanceThreshold: 0.5,
		Categories:         nil,
		Frequency:          FrequencyInstant,
		AssignedOnly:       false,
		DigestHour:         8,
	}
}

// Validate checks ranges before persistence.
func (p *Preference) Validate() error {
	if p.SubscriberID == "" {
		return errors.NewValidationError("preference subscriber ID is required")
	}
	if p.RelevanceThreshold < 0 || p.RelevanceThreshold > 1 {
		return errors.Wrapf(errors.ErrValidation, "relevance threshold %.2f outside [0,1]", p.RelevanceThreshold)
	}
	if p.Frequency != FrequencyInstant && p.Frequency != FrequencyDigest {
		return errors.Wrapf(errors.ErrValidation, "unknown frequency %q", p.Frequency)
	}
	if p.DigestHour < 0 || p.DigestHour > 23 {
		return errors.Wrapf(errors.ErrValidation, "digest hour %d outside [0,23]", p.DigestHour)
	}
	for _, c := range p.Categories {
		if !c.IsValid() {
			return errors.Wrapf(errors.ErrValidation, "unknown category %q in allow-list", c)
		}
	}
	return nil
}

// allowsCategory applies the allow-list semantics: nil allows everything,
// empty allows nothing.
func (p *Preference) allowsCategory(c event.Category) bool {
	if p.Categories == nil {
		return true
	}
	for _, allowed := range p.Categories {
		if allowed == c {
			return true
		}
	}
	return false
}

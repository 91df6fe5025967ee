// Package classify normalizes pluggable classifier output into the
// category, relevance, and sentiment triple events are built from.
package classify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vigilhq/vigil/monitor/entity"
	"github.com/vigilhq/vigil/monitor/event"
	"github.com/vigilhq/vigil/monitor/signal"
)

// HighRelevanceThreshold gates insight generation.
const HighRelevanceThreshold = 0.7

// Classification is the normalized classifier output.
type Classification struct {
	Category  event.Category
	Relevance float64
	Sentiment *float64 // nil when the classifier yields none
	Rationale string
}

// Insight is a richer narrative for a high-relevance event.
type Insight struct {
	Narrative         string
	RecommendedAction string
}

// Classifier is the pluggable classification collaborator.
type Classifier interface {
	Classify(ctx context.Context, payload signal.Payload, client *entity.Client) (Classification, error)
	Insight(ctx context.Context, ev *event.Event) (Insight, error)
}

// Adapter wraps a Classifier with validation and a deterministic rule-based
// fallback, so classification always yields a usable triple.
type Adapter struct {
	classifier Classifier
	log        *zap.SugaredLogger
}

// NewAdapter creates a classification adapter. classifier may be nil, in
// which case every signal goes through the rule-based fallback.
func NewAdapter(classifier Classifier, log *zap.SugaredLogger) *Adapter {
	return &Adapter{classifier: classifier, log: log}
}

// Classify runs the collaborator and falls back to keyword rules on failure
// or malformed output. It never returns an error: a degraded classification
// beats a stalled pipeline.
func (a *Adapter) Classify(ctx context.Context, payload signal.Payload, client *entity.Client) Classification {
	if a.classifier != nil {
		c, err := a.classifier.Classify(ctx, payload, client)
		if err != nil {
			a.log.Warnw("Classifier failed, using rule-based fallback",
				"client_id", client.ID,
				"title", payload.Title,
				"error", err)
		} else if valid(c) {
			return c
		} else {
			a.log.Warnw("Classifier returned malformed output, using rule-based fallback",
				"client_id", client.ID,
				"category", c.Category,
				"relevance", c.Relevance)
		}
	}
	return ruleBased(payload)
}

// GenerateInsight produces a narrative and recommended action for a
// high-relevance event. Returns ok=false when the event is below threshold,
// no collaborator is configured, or the collaborator failed; failures are
// logged and never block event creation.
func (a *Adapter) GenerateInsight(ctx context.Context, ev *event.Event) (Insight, bool) {
	if ev.Relevance < HighRelevanceThreshold || a.classifier == nil {
		return Insight{}, false
	}

	ins, err := a.classifier.Insight(ctx, ev)
	if err != nil {
		a.log.Warnw("Insight generation failed, event created without insight",
			"event_id", ev.ID,
			"error", err)
		return Insight{}, false
	}
	if ins.Narrative == "" {
		return Insight{}, false
	}
	return ins, true
}

func valid(c Classification) bool {
	if !c.Category.IsValid() {
		return false
	}
	if c.Relevance < 0 || c.Relevance > 1 {
		return false
	}
	if c.Sentiment != nil && (*c.Sentiment < -1 || *c.Sentiment > 1) {
		return false
	}
	return true
}

// categoryKeywords drive the fallback classifier. First match in declaration
// order wins.
var categoryKeywords = []struct {
	category event.Category
	words    []string
}{
	{event.CategoryFunding, []string{"raises", "funding", "series a", "series b", "series c", "seed round", "investment"}},
	{event.CategoryAcquisition, []string{"acquires", "acquisition", "merger", "merges", "buyout"}},
	{event.CategoryLeadership, []string{"ceo", "cfo", "cto", "appoints", "resigns", "hires", "steps down"}},
	{event.CategoryProduct, []string{"launches", "launch", "releases", "unveils", "new product", "beta"}},
	{event.CategoryLegal, []string{"lawsuit", "sues", "settlement", "regulator", "investigation", "fined"}},
	{event.CategoryFinancial, []string{"earnings", "revenue", "quarterly", "ipo", "profit", "loss"}},
	{event.CategoryRisk, []string{"breach", "layoffs", "bankruptcy", "recall", "outage", "downgrade"}},
	{event.CategoryPress, []string{"announces", "interview", "featured", "award"}},
}

// fallbackRelevance is deliberately conservative so rule-classified events
// stay below the insight threshold.
const fallbackRelevance = 0.4

func ruleBased(payload signal.Payload) Classification {
	text := strings.ToLower(payload.Title + " " + payload.Summary)
	neutral := 0.0

	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(text, w) {
				return Classification{
					Category:  ck.category,
					Relevance: fallbackRelevance,
					Sentiment: &neutral,
					Rationale: "keyword match: " + w,
				}
			}
		}
	}

	return Classification{
		Category:  event.CategoryOther,
		Relevance: fallbackRelevance,
		Sentiment: &neutral,
		Rationale: "no keyword match",
	}
}

package event

import (
	"time"

	"github.com/vigilhq/vigil/errors"
)

// Category is the closed set of event classifications.
type Category string

const (
	CategoryFunding     Category = "funding"
	CategoryAcquisition Category = "acquisition"
	CategoryLeadership  Category = "leadership"
	CategoryProduct     Category = "product"
	CategoryLegal       Category = "legal"
	CategoryFinancial   Category = "financial"
	CategoryRisk        Category = "risk"
	CategoryPress       Category = "press"
	CategoryOther       Category = "other"
)

// AllCategories lists every valid category.
var AllCategories = []Category{
	CategoryFunding,
	CategoryAcquisition,
	CategoryLeadership,
	CategoryProduct,
	CategoryLegal,
	CategoryFinancial,
	CategoryRisk,
	CategoryPress,
	CategoryOther,
}

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	for _, valid := range AllCategories {
		if c == valid {
			return true
		}
	}
	return false
}

// Event is a materialized, user-facing finding about a client.
type Event struct {
	ID                string
	ClientID          string
	Title             string
	Summary           string
	URL               string
	Source            string
	Category          Category
	Relevance         float64
	Sentiment         *float64 // nil when the classifier yields none
	OccurredAt        *time.Time
	DiscoveredAt      time.Time
	Fingerprint       string
	Insight           string
	RecommendedAction string
	Read              bool
	Starred           bool
	Note              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the event's score ranges and category before persistence.
func (e *Event) Validate() error {
	if e.ClientID == "" {
		return errors.NewValidationError("event client ID is required")
	}
	if e.Title == "" {
		return errors.NewValidationError("event title is required")
	}
	if e.Fingerprint == "" {
		return errors.NewValidationError("event fingerprint is required")
	}
	if !e.Category.IsValid() {
		return errors.Wrapf(errors.ErrValidation, "unknown event category %q", e.Category)
	}
	if e.Relevance < 0 || e.Relevance > 1 {
		return errors.Wrapf(errors.ErrValidation, "relevance %.2f outside [0,1]", e.Relevance)
	}
	if e.Sentiment != nil && (*e.Sentiment < -1 || *e.Sentiment > 1) {
		return errors.Wrapf(errors.ErrValidation, "sentiment %.2f outside [-1,1]", *e.Sentiment)
	}
	return nil
}

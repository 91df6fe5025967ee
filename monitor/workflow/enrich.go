package workflow

import (
	"context"

	"github.com/vigilhq/vigil/monitor/entity"
)

// Enrichment is contextual data a CRM collaborator contributes to
// classification.
type Enrichment map[string]string

// Enricher is the pluggable enrichment collaborator. Enrichment is
// best-effort: failures leave the pipeline running without it.
type Enricher interface {
	Enrich(ctx context.Context, client *entity.Client) (Enrichment, error)
}

// NoopEnricher is the default when no CRM collaborator is configured.
type NoopEnricher struct{}

func (NoopEnricher) Enrich(_ context.Context, _ *entity.Client) (Enrichment, error) {
	return nil, nil
}

package pipeline

import "compliance-ingestion-service/internal/models"

// AutoProcessPolicy decides whether a freshly ingested source record should be
// pushed through matching immediately or parked at pending_review for a
// manual trigger. Injected so deployments can tighten or relax the rule
// without touching the gateway.
type AutoProcessPolicy interface {
	ShouldProcess(rec *models.SourceRecord, requested bool) bool
}

// DefaultAutoProcessPolicy processes immediately only when the caller asked
// for it and the payload carries all identity-critical fields. Incomplete
// payloads always wait for review.
type DefaultAutoProcessPolicy struct{}

func (DefaultAutoProcessPolicy) ShouldProcess(rec *models.SourceRecord, requested bool) bool {
	return requested && rec.ValidationErrors == ""
}

package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// Processing outcomes reported by ProcessSourceRecord.
const (
	OutcomeCreated     = "created"
	OutcomeAutoLinked  = "auto_linked"
	OutcomeNeedsReview = "needs_review"
)

// ProcessResult describes how the pipeline routed one source record.
type ProcessResult struct {
	Record       *models.SourceRecord      `json:"record"`
	Outcome      string                    `json:"outcome"`
	Materialized *MaterializeResult        `json:"materialized,omitempty"`
	Suggestions  []models.DedupeSuggestion `json:"suggestions,omitempty"`
}

// recordMetadata is the structured part of SourceRecord.Metadata.
type recordMetadata struct {
	Supersedes string `json:"supersedes,omitempty"`
}

// Gateway is the single entry point for external data. It persists every
// payload as a SourceRecord before any matching or materialization happens,
// so nothing downstream can lose the original submission.
type Gateway struct {
	db           *gorm.DB
	matcher      *MatchEngine
	materializer *Materializer
	mapper       *MappingEngine
	policy       AutoProcessPolicy
	locker       *keyedLocker
}

func NewGateway(db *gorm.DB, matcher *MatchEngine, materializer *Materializer, mapper *MappingEngine, policy AutoProcessPolicy) *Gateway {
	if policy == nil {
		policy = DefaultAutoProcessPolicy{}
	}
	return &Gateway{
		db:           db,
		matcher:      matcher,
		materializer: materializer,
		mapper:       mapper,
		policy:       policy,
		locker:       newKeyedLocker(),
	}
}

// Ingest validates and durably stores one payload. Returns the stored record
// and whether it was newly created; a replay of (source, external_id) within
// the tenant returns the original record untouched.
func (g *Gateway) Ingest(tenantID uuid.UUID, req models.IngestRequestBody) (*models.SourceRecord, bool, error) {
	source := models.SourceSystem(strings.ToUpper(strings.TrimSpace(req.Source)))
	if !models.ValidSourceSystems[source] {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidSource, req.Source)
	}
	entityType := models.EntityType(strings.ToLower(strings.TrimSpace(req.Metadata.EntityType)))
	if !models.ValidEntityTypes[entityType] {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidEntityType, req.Metadata.EntityType)
	}

	if req.Metadata.ExternalID != "" {
		if existing, err := g.findByExternalID(tenantID, source, req.Metadata.ExternalID); err != nil {
			return nil, false, err
		} else if existing != nil {
			log.Printf("Ingest replay for tenant %s source %s external id %s; returning existing record %s",
				tenantID, source, req.Metadata.ExternalID, existing.ID)
			return existing, false, nil
		}
	}

	data := normalizeSourceData(req.Payload)
	missing, err := validateIdentityFields(entityType, data)
	if err != nil {
		return nil, false, err
	}

	rec := models.SourceRecord{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Source:           source,
		EntityType:       entityType,
		ExternalID:       req.Metadata.ExternalID,
		RawPayload:       toJSON(req.Payload),
		SourceData:       toJSON(data),
		DocumentIDs:      toJSON(req.Metadata.DocumentIDs),
		Status:           models.RecordStatusPendingReview,
		ValidationErrors: toJSON(missing),
		IngestedBy:       req.Metadata.Actor,
		Metadata:         toJSON(recordMetadata{Supersedes: req.Metadata.Supersedes}),
	}
	if len(missing) == 0 {
		rec.ValidationErrors = ""
	}

	if err := g.db.Create(&rec).Error; err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Concurrent replay lost the race on the unique index; the
			// winner's record is the durable one.
			existing, lookupErr := g.findByExternalID(tenantID, source, req.Metadata.ExternalID)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to persist source record: %w", err)
	}
	log.Printf("Ingested source record %s (tenant %s, %s from %s)", rec.ID, tenantID, entityType, source)

	if g.policy.ShouldProcess(&rec, req.Metadata.AutoProcess) {
		if _, err := g.ProcessSourceRecord(tenantID, rec.ID); err != nil {
			// The payload is already durable; processing failures only
			// surface through the record's status.
			log.Printf("Auto-processing of source record %s failed: %v", rec.ID, err)
		}
		if err := g.db.First(&rec, "id = ?", rec.ID).Error; err != nil {
			return nil, false, fmt.Errorf("failed to reload source record %s: %w", rec.ID, err)
		}
	}
	return &rec, true, nil
}

// ProcessSourceRecord pushes one pending or errored record through matching
// and routes the result. Exactly one of three things happens: a new canonical
// entity is created, the record auto-links to a single strong-key match, or
// dedupe suggestions are raised and the record returns to pending_review.
func (g *Gateway) ProcessSourceRecord(tenantID, recordID uuid.UUID) (*ProcessResult, error) {
	var rec models.SourceRecord
	err := g.db.First(&rec, "id = ? AND tenant_id = ?", recordID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: source record %s", ErrNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source record %s: %w", recordID, err)
	}

	if rec.Status != models.RecordStatusPendingReview && rec.Status != models.RecordStatusError {
		return nil, fmt.Errorf("%w: record %s is %s", ErrRecordNotProcessable, rec.ID, rec.Status)
	}
	if rec.ValidationErrors != "" {
		return nil, fmt.Errorf("%w: record %s is missing identity fields %s", ErrRecordNotProcessable, rec.ID, rec.ValidationErrors)
	}
	if g.hasPendingSuggestions(rec.ID) {
		return nil, fmt.Errorf("%w: record %s has undecided dedupe suggestions", ErrRecordNotProcessable, rec.ID)
	}

	data := fromJSONMap(rec.SourceData)
	release, err := g.lockRecordIdentity(&rec, data)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := g.db.Model(&models.SourceRecord{}).Where("id = ?", rec.ID).
		Update("status", models.RecordStatusProcessing).Error; err != nil {
		return nil, fmt.Errorf("failed to move record %s to processing: %w", rec.ID, err)
	}
	rec.Status = models.RecordStatusProcessing

	candidates, err := g.matcher.FindCandidates(tenantID, rec.EntityType, data)
	if err != nil {
		return nil, g.materializer.failRecord(&rec, err)
	}

	switch {
	case len(candidates) == 0:
		result, err := g.materializer.Create(&rec)
		if err != nil {
			return nil, err
		}
		g.proposeMappings(&rec, result.EntityID, data)
		return &ProcessResult{Record: &rec, Outcome: OutcomeCreated, Materialized: result}, nil

	case len(candidates) == 1 && candidates[0].Strong:
		correction := g.isCorrection(&rec)
		result, err := g.materializer.Link(&rec, candidates[0].EntityID, models.RecordStatusMerged, correction)
		if err != nil {
			return nil, err
		}
		g.proposeMappings(&rec, result.EntityID, data)
		return &ProcessResult{Record: &rec, Outcome: OutcomeAutoLinked, Materialized: result}, nil

	default:
		suggestions, err := g.raiseSuggestions(&rec, data, candidates)
		if err != nil {
			return nil, g.materializer.failRecord(&rec, err)
		}
		return &ProcessResult{Record: &rec, Outcome: OutcomeNeedsReview, Suggestions: suggestions}, nil
	}
}

// lockRecordIdentity serializes processing per (tenant, entityType, primary
// identity value) so two records claiming the same identity cannot both take
// the create path. Records without a primary identity value lock on their own
// id, which still guards against double-processing the same record.
func (g *Gateway) lockRecordIdentity(rec *models.SourceRecord, data map[string]string) (func(), error) {
	field, err := primaryIdentityField(rec.EntityType)
	if err != nil {
		return nil, err
	}
	value := strings.TrimSpace(data[field])
	if value == "" {
		value = rec.ID.String()
	}
	return g.locker.Lock(identityLockKey(rec.TenantID, rec.EntityType, value)), nil
}

// raiseSuggestions writes one pending DedupeSuggestion per candidate and
// returns the record to pending_review, all in one transaction. Ambiguity is
// never resolved silently, even when one candidate scores higher.
func (g *Gateway) raiseSuggestions(rec *models.SourceRecord, data map[string]string, candidates []Candidate) ([]models.DedupeSuggestion, error) {
	suggestions := make([]models.DedupeSuggestion, 0, len(candidates))
	err := g.db.Transaction(func(tx *gorm.DB) error {
		for _, cand := range candidates {
			strength := "weak"
			if cand.Strong {
				strength = "strong"
			}
			suggestion := models.DedupeSuggestion{
				ID:                 uuid.New(),
				TenantID:           rec.TenantID,
				EntityType:         rec.EntityType,
				SourceRecordID:     rec.ID,
				CandidateEntityID:  cand.EntityID,
				SourceSnapshot:     rec.SourceData,
				TargetSnapshot:     toJSON(cand.Snapshot),
				Confidence:         cand.Confidence,
				MatchingAttributes: toJSON(cand.MatchingAttributes),
				Rationale:          fmt.Sprintf("%s match on %s", strength, strings.Join(cand.MatchingAttributes, ", ")),
				Status:             models.SuggestionStatusPending,
			}
			if err := tx.Create(&suggestion).Error; err != nil {
				return fmt.Errorf("failed to write dedupe suggestion: %w", err)
			}
			suggestions = append(suggestions, suggestion)
		}
		if err := tx.Model(&models.SourceRecord{}).Where("id = ?", rec.ID).
			Update("status", models.RecordStatusPendingReview).Error; err != nil {
			return fmt.Errorf("failed to return record %s to pending_review: %w", rec.ID, err)
		}
		rec.Status = models.RecordStatusPendingReview
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Raised %d dedupe suggestions for source record %s", len(suggestions), rec.ID)
	return suggestions, nil
}

// proposeMappings runs the mapping engine after a successful materialization.
// Proposal failures are logged, never propagated; relationship discovery is
// best-effort on top of an already committed pipeline outcome.
func (g *Gateway) proposeMappings(rec *models.SourceRecord, entityID uuid.UUID, data map[string]string) {
	if g.mapper == nil {
		return
	}
	if _, err := g.mapper.ProposeMappings(rec.TenantID, rec.EntityType, entityID, data); err != nil {
		log.Printf("Mapping proposals for record %s failed: %v", rec.ID, err)
	}
}

func (g *Gateway) isCorrection(rec *models.SourceRecord) bool {
	if rec.Metadata == "" {
		return false
	}
	meta := recordMetadata{}
	if err := jsonUnmarshal(rec.Metadata, &meta); err != nil {
		return false
	}
	return meta.Supersedes != ""
}

func (g *Gateway) hasPendingSuggestions(recordID uuid.UUID) bool {
	var count int64
	err := g.db.Model(&models.DedupeSuggestion{}).
		Where("source_record_id = ? AND status = ?", recordID, models.SuggestionStatusPending).
		Count(&count).Error
	if err != nil {
		log.Printf("Failed to count pending suggestions for record %s: %v", recordID, err)
		return false
	}
	return count > 0
}

// findByExternalID resolves the idempotence check. Errored records are
// excluded so a corrected payload can be re-ingested under the same external
// id; the partial unique index mirrors that scope.
func (g *Gateway) findByExternalID(tenantID uuid.UUID, source models.SourceSystem, externalID string) (*models.SourceRecord, error) {
	var existing models.SourceRecord
	err := g.db.First(&existing, "tenant_id = ? AND source = ? AND external_id = ? AND status <> ?",
		tenantID, source, externalID, models.RecordStatusError).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing source record: %w", err)
	}
	return &existing, nil
}

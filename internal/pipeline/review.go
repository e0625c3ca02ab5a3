package pipeline

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// Decision actions accepted by the review workflow.
const (
	DecisionMerge     = "merge"
	DecisionCreateNew = "create_new"
	DecisionApprove   = "approve"
	DecisionReject    = "reject"
)

// reasonSupersededByDecision closes sibling dedupe suggestions once one of
// them resolved the source record, so the reason-code invariant holds even
// for suggestions nobody decided individually.
const reasonSupersededByDecision = "superseded_by_decision"

// ReviewService is the only write path for suggestion decisions. Every
// decision lands as an append-only ReviewEvent, and merges additionally
// capture an EvidencePack with the compared snapshots.
type ReviewService struct {
	db           *gorm.DB
	materializer *Materializer
}

func NewReviewService(db *gorm.DB, materializer *Materializer) *ReviewService {
	return &ReviewService{db: db, materializer: materializer}
}

// ResolveIdentityConflict applies a human decision to a pending dedupe
// suggestion. merge links the source record to the candidate entity,
// create_new materializes a fresh canonical entity, reject closes just this
// suggestion. merge and create_new also close sibling suggestions for the
// same source record since it can only resolve once.
func (s *ReviewService) ResolveIdentityConflict(tenantID, suggestionID uuid.UUID, req models.DecisionRequest) (*models.DedupeSuggestion, error) {
	if strings.TrimSpace(req.ReasonCode) == "" {
		return nil, ErrReasonRequired
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	var suggestion models.DedupeSuggestion
	err := s.db.First(&suggestion, "id = ? AND tenant_id = ?", suggestionID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: dedupe suggestion %s", ErrNotFound, suggestionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dedupe suggestion %s: %w", suggestionID, err)
	}
	if suggestion.Status != models.SuggestionStatusPending {
		return nil, fmt.Errorf("%w: dedupe suggestion %s is %s", ErrSuggestionClosed, suggestionID, suggestion.Status)
	}

	var rec models.SourceRecord
	err = s.db.First(&rec, "id = ? AND tenant_id = ?", suggestion.SourceRecordID, tenantID).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load source record %s for suggestion %s: %w", suggestion.SourceRecordID, suggestionID, err)
	}

	switch req.Action {
	case DecisionMerge:
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if _, err := s.materializer.linkIn(tx, &rec, suggestion.CandidateEntityID, models.RecordStatusMerged, false); err != nil {
				return err
			}
			pack := models.EvidencePack{
				ID:             uuid.New(),
				TenantID:       tenantID,
				SuggestionID:   suggestion.ID,
				SourceSnapshot: suggestion.SourceSnapshot,
				TargetSnapshot: suggestion.TargetSnapshot,
				Rationale:      suggestion.Rationale,
				ReasonCode:     req.ReasonCode,
			}
			if err := tx.Create(&pack).Error; err != nil {
				return fmt.Errorf("failed to write evidence pack: %w", err)
			}
			if err := s.closeSuggestion(tx, &suggestion, models.SuggestionStatusApprovedMerge, req, actor); err != nil {
				return err
			}
			if err := s.closeSiblings(tx, &suggestion, actor); err != nil {
				return err
			}
			entityID := suggestion.CandidateEntityID
			return s.recordEvent(tx, &suggestion, &rec, req, actor, &entityID, &pack.ID)
		})
	case DecisionCreateNew:
		err = s.db.Transaction(func(tx *gorm.DB) error {
			result, err := s.materializer.createIn(tx, &rec)
			if err != nil {
				return err
			}
			if err := s.closeSuggestion(tx, &suggestion, models.SuggestionStatusApprovedCreate, req, actor); err != nil {
				return err
			}
			if err := s.closeSiblings(tx, &suggestion, actor); err != nil {
				return err
			}
			return s.recordEvent(tx, &suggestion, &rec, req, actor, &result.EntityID, nil)
		})
	case DecisionReject:
		// Rejecting one candidate does not resolve the record; it stays at
		// pending_review until a merge or create_new decision lands.
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.closeSuggestion(tx, &suggestion, models.SuggestionStatusRejected, req, actor); err != nil {
				return err
			}
			return s.recordEvent(tx, &suggestion, &rec, req, actor, nil, nil)
		})
	default:
		return nil, fmt.Errorf("%w: %q on a dedupe suggestion", ErrInvalidAction, req.Action)
	}

	if err != nil {
		if req.Action == DecisionMerge || req.Action == DecisionCreateNew {
			return nil, s.materializer.failRecord(&rec, err)
		}
		return nil, err
	}

	log.Printf("Dedupe suggestion %s decided as %s by %s (reason %s)", suggestion.ID, req.Action, actor, req.ReasonCode)
	return &suggestion, nil
}

// DecideMappingSuggestion applies a human decision to a pending relationship
// proposal. Approval commits the EntityLink edge in the same transaction as
// the decision bookkeeping.
func (s *ReviewService) DecideMappingSuggestion(tenantID, suggestionID uuid.UUID, req models.DecisionRequest) (*models.DataMappingSuggestion, error) {
	if strings.TrimSpace(req.ReasonCode) == "" {
		return nil, ErrReasonRequired
	}
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	var suggestion models.DataMappingSuggestion
	err := s.db.First(&suggestion, "id = ? AND tenant_id = ?", suggestionID, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: mapping suggestion %s", ErrNotFound, suggestionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping suggestion %s: %w", suggestionID, err)
	}
	if suggestion.Status != models.SuggestionStatusPending {
		return nil, fmt.Errorf("%w: mapping suggestion %s is %s", ErrSuggestionClosed, suggestionID, suggestion.Status)
	}

	var status string
	switch req.Action {
	case DecisionApprove:
		status = models.SuggestionStatusApproved
	case DecisionReject:
		status = models.SuggestionStatusRejected
	default:
		return nil, fmt.Errorf("%w: %q on a mapping suggestion", ErrInvalidAction, req.Action)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"status":      status,
			"reason_code": req.ReasonCode,
			"comment":     req.Comment,
			"decided_by":  actor,
			"decided_at":  &now,
		}
		if err := tx.Model(&models.DataMappingSuggestion{}).Where("id = ?", suggestion.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to close mapping suggestion %s: %w", suggestion.ID, err)
		}
		suggestion.Status = status
		suggestion.ReasonCode = req.ReasonCode
		suggestion.Comment = req.Comment
		suggestion.DecidedBy = actor
		suggestion.DecidedAt = &now

		if req.Action == DecisionApprove {
			link := models.EntityLink{
				ID:               uuid.New(),
				TenantID:         tenantID,
				MappingType:      suggestion.MappingType,
				SourceEntityType: suggestion.SourceEntityType,
				SourceEntityID:   suggestion.SourceEntityID,
				TargetEntityType: suggestion.TargetEntityType,
				TargetEntityID:   suggestion.TargetEntityID,
				SuggestionID:     suggestion.ID,
			}
			if err := tx.Create(&link).Error; err != nil {
				return fmt.Errorf("failed to commit entity link for suggestion %s: %w", suggestion.ID, err)
			}
		}

		sourceID := suggestion.SourceEntityID
		event := models.ReviewEvent{
			ID:           uuid.New(),
			TenantID:     tenantID,
			Actor:        actor,
			Action:       req.Action,
			ReasonCode:   req.ReasonCode,
			Comment:      req.Comment,
			SuggestionID: suggestion.ID,
			EntityType:   suggestion.SourceEntityType,
			EntityID:     &sourceID,
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to write review event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Mapping suggestion %s decided as %s by %s (reason %s)", suggestion.ID, req.Action, actor, req.ReasonCode)
	return &suggestion, nil
}

// ListReviewEvents returns the audit trail for a tenant, optionally narrowed
// to one canonical entity.
func (s *ReviewService) ListReviewEvents(tenantID uuid.UUID, entityType models.EntityType, entityID *uuid.UUID) ([]models.ReviewEvent, error) {
	query := s.db.Where("tenant_id = ?", tenantID)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	if entityID != nil {
		query = query.Where("entity_id = ?", *entityID)
	}

	var events []models.ReviewEvent
	if err := query.Order("created_at desc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list review events: %w", err)
	}
	return events, nil
}

func (s *ReviewService) closeSuggestion(tx *gorm.DB, suggestion *models.DedupeSuggestion, status string, req models.DecisionRequest, actor string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"reason_code": req.ReasonCode,
		"comment":     req.Comment,
		"decided_by":  actor,
		"decided_at":  &now,
	}
	if err := tx.Model(&models.DedupeSuggestion{}).Where("id = ?", suggestion.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to close dedupe suggestion %s: %w", suggestion.ID, err)
	}
	suggestion.Status = status
	suggestion.ReasonCode = req.ReasonCode
	suggestion.Comment = req.Comment
	suggestion.DecidedBy = actor
	suggestion.DecidedAt = &now
	return nil
}

// closeSiblings rejects the remaining pending suggestions for the same source
// record once one of them resolved it.
func (s *ReviewService) closeSiblings(tx *gorm.DB, decided *models.DedupeSuggestion, actor string) error {
	now := time.Now()
	err := tx.Model(&models.DedupeSuggestion{}).
		Where("source_record_id = ? AND id <> ? AND status = ?", decided.SourceRecordID, decided.ID, models.SuggestionStatusPending).
		Updates(map[string]interface{}{
			"status":      models.SuggestionStatusRejected,
			"reason_code": reasonSupersededByDecision,
			"decided_by":  actor,
			"decided_at":  &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to close sibling suggestions for record %s: %w", decided.SourceRecordID, err)
	}
	return nil
}

func (s *ReviewService) recordEvent(tx *gorm.DB, suggestion *models.DedupeSuggestion, rec *models.SourceRecord, req models.DecisionRequest, actor string, entityID, packID *uuid.UUID) error {
	recID := rec.ID
	event := models.ReviewEvent{
		ID:             uuid.New(),
		TenantID:       suggestion.TenantID,
		Actor:          actor,
		Action:         req.Action,
		ReasonCode:     req.ReasonCode,
		Comment:        req.Comment,
		SuggestionID:   suggestion.ID,
		SourceRecordID: &recID,
		EntityType:     suggestion.EntityType,
		EntityID:       entityID,
		EvidencePackID: packID,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to write review event: %w", err)
	}
	return nil
}

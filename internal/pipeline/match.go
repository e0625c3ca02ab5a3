package pipeline

import (
	"log"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// Candidate is one existing canonical entity that plausibly represents the
// same real-world object as an incoming source payload.
type Candidate struct {
	EntityID           uuid.UUID
	Snapshot           map[string]string
	Confidence         int
	MatchingAttributes []string
	Strong             bool
}

// MatchEngine finds existing canonical entities matching a new source payload.
// It only reads canonical state; routing the result is the gateway's job.
type MatchEngine struct {
	db *gorm.DB
}

func NewMatchEngine(db *gorm.DB) *MatchEngine {
	return &MatchEngine{db: db}
}

// FindCandidates evaluates the identity policy of the entity type in priority
// order and returns every distinct canonical entity matched on at least one
// field, ordered by confidence descending. Two entities matching on the same
// field value both appear in the result; the engine never picks a winner in a
// multi-way tie.
func (e *MatchEngine) FindCandidates(tenantID uuid.UUID, entityType models.EntityType, sourceData map[string]string) ([]Candidate, error) {
	policy, err := identityPolicy(entityType)
	if err != nil {
		return nil, err
	}

	byEntity := make(map[uuid.UUID]*Candidate)
	var order []uuid.UUID

	for _, field := range policy {
		value := sourceData[field.Name]
		if matchValue(field, value) == "" {
			continue
		}

		refs, err := findEntitiesByField(e.db, tenantID, entityType, field, value)
		if err != nil {
			return nil, err
		}
		if len(refs) > 1 {
			log.Printf("Match engine: %d canonical %s entities share %s=%q in tenant %s; surfacing all of them",
				len(refs), entityType, field.Name, value, tenantID)
		}

		for _, ref := range refs {
			cand, seen := byEntity[ref.ID]
			if !seen {
				cand = &Candidate{EntityID: ref.ID, Snapshot: ref.Snapshot}
				byEntity[ref.ID] = cand
				order = append(order, ref.ID)
			}
			cand.MatchingAttributes = append(cand.MatchingAttributes, field.Name)
			if field.Weight > cand.Confidence {
				cand.Confidence = field.Weight
			}
			if field.Strong {
				cand.Strong = true
			}
		}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, *byEntity[id])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	return candidates, nil
}

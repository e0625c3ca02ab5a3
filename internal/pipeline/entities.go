package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"compliance-ingestion-service/internal/models"
)

// entityRef is the type-erased view of one canonical entity row used by the
// match engine and the suggestion snapshots. The typed gorm models stay the
// single write surface; entityRef only carries reads.
type entityRef struct {
	ID       uuid.UUID
	Snapshot map[string]string
}

func supplierSnapshot(s *models.Supplier) map[string]string {
	return map[string]string{
		"vat_number":     s.VATNumber,
		"eori_number":    s.EORINumber,
		"duns_number":    s.DUNSNumber,
		"legal_name":     s.LegalName,
		"contact_person": s.ContactPerson,
		"email":          s.Email,
		"phone":          s.Phone,
		"address":        s.Address,
		"city":           s.City,
		"country":        s.Country,
	}
}

func materialSnapshot(m *models.Material) map[string]string {
	return map[string]string{
		"material_number": m.MaterialNumber,
		"cas_number":      m.CASNumber,
		"name":            m.Name,
		"category":        m.Category,
		"unit":            m.Unit,
		"supplier_name":   m.SupplierName,
	}
}

func productSnapshot(p *models.Product) map[string]string {
	return map[string]string{
		"sku":      p.SKU,
		"gtin":     p.GTIN,
		"name":     p.Name,
		"category": p.Category,
	}
}

func bomSnapshot(b *models.BillOfMaterial) map[string]string {
	return map[string]string{
		"bom_number":  b.BOMNumber,
		"name":        b.Name,
		"version":     b.Version,
		"product_sku": b.ProductSKU,
	}
}

// findEntitiesByField loads every canonical entity of the given type whose
// column equals value within the tenant. Weak fields compare case-insensitively.
func findEntitiesByField(db *gorm.DB, tenantID uuid.UUID, entityType models.EntityType, field IdentityField, value string) ([]entityRef, error) {
	query := db.Where("tenant_id = ?", tenantID)
	if field.Strong {
		query = query.Where(fmt.Sprintf("%s = ?", field.Name), strings.TrimSpace(value))
	} else {
		query = query.Where(fmt.Sprintf("LOWER(%s) = ?", field.Name), strings.ToLower(strings.TrimSpace(value)))
	}

	var refs []entityRef
	switch entityType {
	case models.EntityTypeSupplier:
		var rows []models.Supplier
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to query suppliers by %s: %w", field.Name, err)
		}
		for i := range rows {
			refs = append(refs, entityRef{ID: rows[i].ID, Snapshot: supplierSnapshot(&rows[i])})
		}
	case models.EntityTypeMaterial:
		var rows []models.Material
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to query materials by %s: %w", field.Name, err)
		}
		for i := range rows {
			refs = append(refs, entityRef{ID: rows[i].ID, Snapshot: materialSnapshot(&rows[i])})
		}
	case models.EntityTypeProduct:
		var rows []models.Product
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to query products by %s: %w", field.Name, err)
		}
		for i := range rows {
			refs = append(refs, entityRef{ID: rows[i].ID, Snapshot: productSnapshot(&rows[i])})
		}
	case models.EntityTypeBOM:
		var rows []models.BillOfMaterial
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to query bills of material by %s: %w", field.Name, err)
		}
		for i := range rows {
			refs = append(refs, entityRef{ID: rows[i].ID, Snapshot: bomSnapshot(&rows[i])})
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
	return refs, nil
}

// loadEntityRef fetches one canonical entity by id as a type-erased reference.
func loadEntityRef(db *gorm.DB, entityType models.EntityType, entityID uuid.UUID) (*entityRef, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		var row models.Supplier
		if err := db.First(&row, "id = ?", entityID).Error; err != nil {
			return nil, wrapLookupErr(err, "supplier", entityID)
		}
		return &entityRef{ID: row.ID, Snapshot: supplierSnapshot(&row)}, nil
	case models.EntityTypeMaterial:
		var row models.Material
		if err := db.First(&row, "id = ?", entityID).Error; err != nil {
			return nil, wrapLookupErr(err, "material", entityID)
		}
		return &entityRef{ID: row.ID, Snapshot: materialSnapshot(&row)}, nil
	case models.EntityTypeProduct:
		var row models.Product
		if err := db.First(&row, "id = ?", entityID).Error; err != nil {
			return nil, wrapLookupErr(err, "product", entityID)
		}
		return &entityRef{ID: row.ID, Snapshot: productSnapshot(&row)}, nil
	case models.EntityTypeBOM:
		var row models.BillOfMaterial
		if err := db.First(&row, "id = ?", entityID).Error; err != nil {
			return nil, wrapLookupErr(err, "bill of material", entityID)
		}
		return &entityRef{ID: row.ID, Snapshot: bomSnapshot(&row)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

// entityModel returns an empty typed model for gorm table targeting.
func entityModel(entityType models.EntityType) (interface{}, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		return &models.Supplier{}, nil
	case models.EntityTypeMaterial:
		return &models.Material{}, nil
	case models.EntityTypeProduct:
		return &models.Product{}, nil
	case models.EntityTypeBOM:
		return &models.BillOfMaterial{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

func wrapLookupErr(err error, kind string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, id, err)
}

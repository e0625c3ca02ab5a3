package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"compliance-ingestion-service/internal/models"
)

// IdentityField is one entry in the ordered matching policy of an entity type.
// Strong fields are trusted enough that an exact match alone may auto-merge;
// weak fields (names) only ever produce a suggestion because they collide
// across real-world entities.
type IdentityField struct {
	Name   string
	Weight int
	Strong bool
}

// identityPolicy returns the ordered identity key fields for an entity type,
// highest-priority first. The switch is exhaustive over the closed EntityType
// set so adding a type forces a policy decision here.
func identityPolicy(entityType models.EntityType) ([]IdentityField, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		return []IdentityField{
			{Name: "vat_number", Weight: 95, Strong: true},
			{Name: "eori_number", Weight: 92, Strong: true},
			{Name: "duns_number", Weight: 90, Strong: true},
			{Name: "legal_name", Weight: 60, Strong: false},
		}, nil
	case models.EntityTypeMaterial:
		return []IdentityField{
			{Name: "material_number", Weight: 95, Strong: true},
			{Name: "cas_number", Weight: 88, Strong: true},
			{Name: "name", Weight: 55, Strong: false},
		}, nil
	case models.EntityTypeProduct:
		return []IdentityField{
			{Name: "sku", Weight: 95, Strong: true},
			{Name: "gtin", Weight: 92, Strong: true},
			{Name: "name", Weight: 55, Strong: false},
		}, nil
	case models.EntityTypeBOM:
		return []IdentityField{
			{Name: "bom_number", Weight: 95, Strong: true},
			{Name: "name", Weight: 50, Strong: false},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

// canonicalFields returns the set of canonical columns the materializer maps
// source data into, in deterministic order.
func canonicalFields(entityType models.EntityType) ([]string, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		return []string{"vat_number", "eori_number", "duns_number", "legal_name",
			"contact_person", "email", "phone", "address", "city", "country"}, nil
	case models.EntityTypeMaterial:
		return []string{"material_number", "cas_number", "name", "category", "unit", "supplier_name"}, nil
	case models.EntityTypeProduct:
		return []string{"sku", "gtin", "name", "category"}, nil
	case models.EntityTypeBOM:
		return []string{"bom_number", "name", "version", "product_sku"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

// identityCriticalFields are the fields that must be present and well-formed
// for a payload to be considered complete for its entity type.
func identityCriticalFields(entityType models.EntityType) ([]string, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		return []string{"vat_number", "legal_name"}, nil
	case models.EntityTypeMaterial:
		return []string{"material_number", "name"}, nil
	case models.EntityTypeProduct:
		return []string{"sku", "name"}, nil
	case models.EntityTypeBOM:
		return []string{"bom_number", "name"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

// primaryIdentityField is the field serialization of concurrent ingestions is
// keyed on, and the column carrying the per-tenant unique index.
func primaryIdentityField(entityType models.EntityType) (string, error) {
	switch entityType {
	case models.EntityTypeSupplier:
		return "vat_number", nil
	case models.EntityTypeMaterial:
		return "material_number", nil
	case models.EntityTypeProduct:
		return "sku", nil
	case models.EntityTypeBOM:
		return "bom_number", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrInvalidEntityType, entityType)
	}
}

// normalizeSourceData flattens a raw payload into the denormalized string
// key/value view matching and materialization work on. Keys are lower-cased
// with spaces collapsed to underscores; nil and empty values are dropped.
func normalizeSourceData(payload map[string]interface{}) map[string]string {
	data := make(map[string]string, len(payload))
	for key, value := range payload {
		if value == nil {
			continue
		}
		normalizedKey := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), " ", "_"))
		var str string
		switch v := value.(type) {
		case string:
			str = strings.TrimSpace(v)
		case float64:
			// JSON numbers arrive as float64; render integers without a fraction.
			if v == float64(int64(v)) {
				str = fmt.Sprintf("%d", int64(v))
			} else {
				str = fmt.Sprintf("%v", v)
			}
		case bool:
			str = fmt.Sprintf("%t", v)
		default:
			str = fmt.Sprintf("%v", v)
		}
		if str == "" {
			continue
		}
		data[normalizedKey] = str
	}
	return data
}

// matchValue normalizes a field value for equality comparison. Weak name
// fields are case-folded; strong identifiers are compared verbatim after
// trimming.
func matchValue(field IdentityField, raw string) string {
	trimmed := strings.TrimSpace(raw)
	if field.Strong {
		return trimmed
	}
	return strings.ToLower(trimmed)
}

// validateIdentityFields returns the list of identity-critical fields missing
// or malformed in the source data. An empty result means the payload is
// complete for its entity type.
func validateIdentityFields(entityType models.EntityType, data map[string]string) ([]string, error) {
	critical, err := identityCriticalFields(entityType)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, field := range critical {
		value := strings.TrimSpace(data[field])
		if len(value) < 2 {
			missing = append(missing, field)
		}
	}
	return missing, nil
}

func toJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func jsonUnmarshal(s string, v interface{}) error {
	return json.Unmarshal([]byte(s), v)
}

func fromJSONMap(s string) map[string]string {
	data := make(map[string]string)
	if s == "" {
		return data
	}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return map[string]string{}
	}
	return data
}

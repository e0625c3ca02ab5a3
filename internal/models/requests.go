package models

// IngestRequestBody defines the request payload for the ingest endpoint.
type IngestRequestBody struct {
	Source   string                 `json:"source" binding:"required"`
	Payload  map[string]interface{} `json:"payload" binding:"required"`
	Metadata IngestMetadata         `json:"metadata" binding:"required"`
}

// IngestMetadata carries the routing information alongside an ingestion payload.
type IngestMetadata struct {
	EntityType  string   `json:"entity_type" binding:"required"`
	ExternalID  string   `json:"external_id,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	AutoProcess bool     `json:"auto_process,omitempty"`
	Actor       string   `json:"actor,omitempty"`
	Supersedes  string   `json:"supersedes,omitempty"` // id of the SourceRecord this payload corrects
}

// DecisionRequest defines the request payload for suggestion decisions.
type DecisionRequest struct {
	Action     string `json:"action" binding:"required"`
	ReasonCode string `json:"reason_code" binding:"required"`
	Comment    string `json:"comment,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// CreateERPConnectionRequest defines the request payload for registering an ERP connection.
type CreateERPConnectionRequest struct {
	Name           string   `json:"name" binding:"required,min=1,max=255"`
	BaseURL        string   `json:"base_url" binding:"required,url"`
	APIKey         string   `json:"api_key,omitempty"`
	EntityTypes    []string `json:"entity_types" binding:"required,min=1"`
	Mode           string   `json:"mode,omitempty" binding:"omitempty,oneof=full incremental"`
	CronExpression string   `json:"cron_expression,omitempty"`
	IsEnabled      *bool    `json:"is_enabled,omitempty"`
}

// TriggerSyncRequest defines the optional overrides for a manual sync trigger.
type TriggerSyncRequest struct {
	EntityTypes []string `json:"entity_types,omitempty"`
	Mode        string   `json:"mode,omitempty" binding:"omitempty,oneof=full incremental"`
}

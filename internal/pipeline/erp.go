package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"compliance-ingestion-service/internal/models"
)

// ERPRecord is one entity payload fetched from an external ERP endpoint.
type ERPRecord struct {
	ExternalID string                 `json:"external_id"`
	Payload    map[string]interface{} `json:"payload"`
}

// ERPClient defines the interface for fetching entity batches from an ERP
// system. This allows for easier testing and decoupling from the HTTP wire.
type ERPClient interface {
	FetchEntities(ctx context.Context, entityType models.EntityType, mode string) ([]ERPRecord, error)
}

// ERPClientFactory builds a client for one configured connection. Injected
// into the sync service so tests can substitute a fake ERP.
type ERPClientFactory func(conn *models.ERPConnection) ERPClient

// HTTPERPClient is an implementation of ERPClient using HTTP.
type HTTPERPClient struct {
	BaseURL    string
	APIKey     string
	HttpClient *http.Client
}

// NewHTTPERPClient creates a new client for an ERP endpoint.
func NewHTTPERPClient(baseURL, apiKey string) *HTTPERPClient {
	return &HTTPERPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HttpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// DefaultERPClientFactory builds HTTP clients from connection settings.
func DefaultERPClientFactory(conn *models.ERPConnection) ERPClient {
	return NewHTTPERPClient(conn.BaseURL, conn.APIKey)
}

type erpEntitiesResponse struct {
	Records []ERPRecord `json:"records"`
}

// FetchEntities pulls one entity-type batch from the ERP endpoint.
func (c *HTTPERPClient) FetchEntities(ctx context.Context, entityType models.EntityType, mode string) ([]ERPRecord, error) {
	url := fmt.Sprintf("%s/api/entities/%s?mode=%s", c.BaseURL, entityType, mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to ERP endpoint: %w", err)
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call ERP endpoint at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ERP endpoint returned non-OK status: %d for entity type %s", resp.StatusCode, entityType)
	}

	var body erpEntitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode ERP response for entity type %s: %w", entityType, err)
	}
	return body.Records, nil
}

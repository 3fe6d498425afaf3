package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MunnymanCommunications/gemdesign/internal/models"
)

// BillingClient talks to billing-service, the collaborator that owns the
// payment-processor integration (checkout sessions, webhooks, customer
// portal). This service only asks it to reconcile and checks its health.
type BillingClient struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

// NewBillingClient creates a billing-service client.
func NewBillingClient(baseURL, internalKey string) *BillingClient {
	return &BillingClient{
		baseURL:     baseURL,
		internalKey: internalKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type reconcileRequest struct {
	UserID string `json:"user_id"`
}

// ReconcileWithProcessor asks billing-service to re-read the user's
// subscription from the payment processor and upsert the local row.
// Idempotent: safe to call repeatedly; billing-service keys its writes on
// user_id. A 404 means the user has no processor customer yet, which is
// normal for never-subscribed users.
func (c *BillingClient) ReconcileWithProcessor(ctx context.Context, userID string) error {
	url := fmt.Sprintf("%s/api/internal/billing/reconcile", c.baseURL)

	body, err := json.Marshal(reconcileRequest{UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal reconcile request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Secret", c.internalKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.CollaboratorUnavailableError{Collaborator: "billing-service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}

	if resp.StatusCode >= 500 {
		return &models.CollaboratorUnavailableError{
			Collaborator: "billing-service",
			Err:          fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing-service returned status %d", resp.StatusCode)
	}

	return nil
}

// ProcessorStatusResponse reports whether the payment processor is
// configured on the billing side (secret key present and valid).
type ProcessorStatusResponse struct {
	Configured bool   `json:"configured"`
	Error      string `json:"error,omitempty"`
}

// ProcessorStatus checks processor configuration through billing-service.
// Surfaced on the admin settings page so a missing key is visible before a
// customer hits a broken checkout.
func (c *BillingClient) ProcessorStatus(ctx context.Context) (*ProcessorStatusResponse, error) {
	url := fmt.Sprintf("%s/api/internal/billing/status", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Internal-Secret", c.internalKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.CollaboratorUnavailableError{Collaborator: "billing-service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("billing-service returned status %d", resp.StatusCode)
	}

	var result ProcessorStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// Package invoicing talks to the external invoice authority.
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is the authority's answer for an issued invoice.
type Invoice struct {
	Number     string `json:"number"`
	Authorized bool   `json:"authorized"`
}

// IssueRequest is the payload sent when issuing an invoice for a sale.
type IssueRequest struct {
	TenantID   uuid.UUID       `json:"tenant_id"`
	SaleID     uuid.UUID       `json:"sale_id"`
	SaleNumber string          `json:"sale_number"`
	CustomerID uuid.UUID       `json:"customer_id"`
	Total      decimal.Decimal `json:"total"`
	Tax        decimal.Decimal `json:"tax"`
	IssuedAt   time.Time       `json:"issued_at"`
}

// Client wraps interactions with the invoicing API. Callers must not hold
// database locks across these calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks if the remote invoicing service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("invoicing returned status %d", resp.StatusCode)
	}
	return nil
}

// Issue asks the authority to issue an invoice for the sale.
func (c *Client) Issue(ctx context.Context, in IssueRequest) (Invoice, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return Invoice{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/invoices", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return Invoice{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Invoice{}, fmt.Errorf("invoicing: issue for sale %s: %w", in.SaleID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return Invoice{}, fmt.Errorf("invoicing: issue failed with status %d", resp.StatusCode)
	}
	var inv Invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return Invoice{}, fmt.Errorf("invoicing: decode issue response: %w", err)
	}
	return inv, nil
}

// IsAuthorized re-reads the authorization state of a sale's invoice. Void
// checks this immediately before taking any locks.
func (c *Client) IsAuthorized(ctx context.Context, tenantID, saleID uuid.UUID) (bool, error) {
	url := fmt.Sprintf("%s/invoices/%s/%s/authorization", c.baseURL, tenantID, saleID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("invoicing: authorization for sale %s: %w", saleID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("invoicing: authorization check failed with status %d", resp.StatusCode)
	}
	var out struct {
		Authorized bool `json:"authorized"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("invoicing: decode authorization response: %w", err)
	}
	return out.Authorized, nil
}

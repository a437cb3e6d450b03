package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nexofarma/whatsapp-backend/internal/identity"
)

// Client implements the identity.IdentityLookup interface against the PLEX
// pharmacy ERP customer API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for the PLEX client
type Config struct {
	BaseURL string // e.g. "https://erp.example.com/api/v1"
	APIKey  string
	Timeout time.Duration
}

// New creates a new PLEX ERP client
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("plex: BaseURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("plex: APIKey is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Search looks up customer accounts by document, customer ID, or phone.
// PLEX: GET /clientes?dni={dni} (also cuit=, id=, telefono=)
func (c *Client) Search(ctx context.Context, q identity.LookupQuery) ([]identity.ExternalIdentity, error) {
	params := url.Values{}
	switch {
	case q.CustomerID != "":
		params.Set("id", q.CustomerID)
	case q.Document != "":
		if len(q.Document) == 11 {
			params.Set("cuit", q.Document)
		} else {
			params.Set("dni", q.Document)
		}
	case q.Phone != "":
		params.Set("telefono", q.Phone)
	default:
		return nil, fmt.Errorf("plex: empty lookup query")
	}

	endpoint := fmt.Sprintf("%s/clientes?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("plex: failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, identity.CollaboratorError("plex search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, identity.CollaboratorError("plex search",
			fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, identity.CollaboratorError("plex search", fmt.Errorf("failed to decode response: %w", err))
	}

	out := make([]identity.ExternalIdentity, 0, len(sr.Customers))
	for _, cust := range sr.Customers {
		out = append(out, toIdentity(cust))
	}
	return out, nil
}

func toIdentity(c Customer) identity.ExternalIdentity {
	doc := c.DNI
	if doc == "" {
		doc = c.CUIT
	}
	return identity.ExternalIdentity{
		ID:             c.ID,
		FullName:       strings.TrimSpace(c.FullName),
		DocumentNumber: doc,
		Phone:          c.Phone,
		// Accounts missing a name or document cannot be verified and are
		// skipped by the identification flow.
		ValidForIdentification: c.Active && strings.TrimSpace(c.FullName) != "" && doc != "",
	}
}

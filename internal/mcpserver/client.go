package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Walletscope API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional API key for deployments behind a gateway
}

// WalletscopeClient is a pure HTTP client for the Walletscope API.
type WalletscopeClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewWalletscopeClient creates a new client for the Walletscope API.
func NewWalletscopeClient(cfg Config) *WalletscopeClient {
	return &WalletscopeClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *WalletscopeClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// AnalyzeWallet runs a full risk analysis for a wallet address.
func (c *WalletscopeClient) AnalyzeWallet(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/wallets/"+address+"/report", nil, nil)
}

// WalletGraph returns the transaction graph and clusters for a wallet.
func (c *WalletscopeClient) WalletGraph(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/wallets/"+address+"/graph", nil, nil)
}

// WalletHistory returns stored analysis reports for a wallet, newest first.
func (c *WalletscopeClient) WalletHistory(ctx context.Context, address string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/wallets/"+address+"/history", q, nil)
}

// ThreatLookup returns the threat-intel verdict for a single address.
func (c *WalletscopeClient) ThreatLookup(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/threat/"+address, nil, nil)
}

// ThreatBatch returns threat verdicts for multiple addresses.
func (c *WalletscopeClient) ThreatBatch(ctx context.Context, addresses []string) (json.RawMessage, error) {
	body := map[string]any{"addresses": addresses}
	return c.doRequest(ctx, http.MethodPost, "/v1/threat/batch", nil, body)
}

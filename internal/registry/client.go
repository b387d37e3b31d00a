// Package registry is the REST client for the asset registry, the external
// collaborator that tracks custody of transferable assets. The registry
// applies each transfer atomically: it either moves custody or rejects the
// request, so the marketplace can treat a non-error response as committed.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vktrn/marketd/internal/domain"
)

// Client talks to the asset registry HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a registry client.
//
// baseURL is the registry API root, e.g. "https://registry.internal:8443".
// apiKey authorizes the marketplace to move assets whose owners have
// approved it; it may be empty for unauthenticated registries.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// transferRequest is the wire form of a custody transfer.
type transferRequest struct {
	Asset   string `json:"asset"`
	AssetID string `json:"asset_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// errorResponse is the registry's error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Transfer moves custody of (asset, assetID) from one account to another.
// The registry rejects the transfer when from does not hold custody or has
// not authorized the caller; that surfaces as ErrTransferFailed with the
// registry's reason attached.
func (c *Client) Transfer(ctx context.Context, asset, assetID, from, to string) error {
	reqBody, err := json.Marshal(transferRequest{
		Asset:   asset,
		AssetID: assetID,
		From:    from,
		To:      to,
	})
	if err != nil {
		return fmt.Errorf("registry: marshal transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/transfers", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("registry: build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: %w: %v", domain.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registry: %w: %s", domain.ErrTransferFailed, readError(resp))
	}
	return nil
}

// ownerResponse is the registry's custody lookup body.
type ownerResponse struct {
	Owner string `json:"owner"`
}

// OwnerOf returns the current custodian of (asset, assetID).
func (c *Client) OwnerOf(ctx context.Context, asset, assetID string) (string, error) {
	path := fmt.Sprintf("%s/assets/%s/%s/owner",
		c.baseURL, url.PathEscape(asset), url.PathEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("registry: build owner request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry: owner of %s/%s: %w", asset, assetID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("registry: owner of %s/%s: %s", asset, assetID, readError(resp))
	}

	var body ownerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("registry: decode owner response: %w", err)
	}
	return body.Owner, nil
}

// readError extracts the registry's error message from a non-2xx response,
// falling back to the HTTP status.
func readError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var body errorResponse
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return fmt.Sprintf("%s (%s)", body.Error, resp.Status)
		}
	}
	return resp.Status
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*Client)(nil)

// Package powerbi implements the export job client for the Power BI REST API.
//
// Every method is a single authenticated round trip with no internal retry
// and no caching; orchestration (polling, retries, backoff) lives in the
// export package.
package powerbi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reportexporter/internal/apperrors"
	"reportexporter/internal/export"
	"reportexporter/internal/observability"
)

// DefaultBaseURL is the public Power BI REST endpoint.
const DefaultBaseURL = "https://api.powerbi.com/v1.0/myorg"

// maxErrorBody bounds how much of an error response body is retained.
const maxErrorBody = 2048

// Config holds configuration for a Client.
type Config struct {
	BaseURL     string        // Default: DefaultBaseURL
	AccessToken string        // Bearer token attached to every request
	HTTPTimeout time.Duration // Per-request timeout (default: 30s)
	Metrics     *observability.Metrics
}

// Client issues the primitive export operations against the reporting API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	metrics *observability.Metrics
}

// NewClient creates a new reporting API client with standard transport settings.
func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   cfg.AccessToken,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: cfg.Metrics,
	}
}

// Report identifies an exportable report in a workspace.
type Report struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Wire types for the export endpoints.
type exportToRequest struct {
	Format    string   `json:"format"`
	PageNames []string `json:"pageNames,omitempty"`
	URLFilter string   `json:"urlFilter,omitempty"`
}

type exportToResponse struct {
	ID string `json:"id"`
}

type exportStatusResponse struct {
	ID                    string `json:"id"`
	Status                string `json:"status"`
	RetryAfter            int    `json:"retryAfter"`
	ResourceLocation      string `json:"resourceLocation"`
	ReportName            string `json:"reportName"`
	ResourceFileExtension string `json:"resourceFileExtension"`
}

type reportListResponse struct {
	Value []Report `json:"value"`
}

// Submit starts an export job and returns its ID.
func (c *Client) Submit(ctx context.Context, req export.Request) (string, error) {
	const op = "powerbi.submit"
	url := fmt.Sprintf("%s/groups/%s/reports/%s/ExportTo", c.baseURL, req.WorkspaceID, req.ReportID)
	body := exportToRequest{
		Format:    string(req.Format),
		PageNames: req.PageNames,
		URLFilter: req.URLFilter,
	}

	resp, err := c.do(ctx, op, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out exportToResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.API(op, resp.StatusCode, "malformed response body")
	}
	if out.ID == "" {
		return "", apperrors.API(op, resp.StatusCode, "response carried no export id")
	}
	return out.ID, nil
}

// Status fetches a fresh status snapshot for a submitted export. Absent
// optional fields map to zero values, not errors.
func (c *Client) Status(ctx context.Context, req export.Request, exportID string) (*export.Status, error) {
	const op = "powerbi.status"
	url := fmt.Sprintf("%s/groups/%s/reports/%s/exports/%s", c.baseURL, req.WorkspaceID, req.ReportID, exportID)

	resp, err := c.do(ctx, op, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw exportStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, apperrors.API(op, resp.StatusCode, "malformed response body")
	}

	id := raw.ID
	if id == "" {
		id = exportID
	}
	return &export.Status{
		ID:               id,
		State:            export.ParseState(raw.Status),
		RetryAfter:       time.Duration(raw.RetryAfter) * time.Second,
		ResourceLocation: raw.ResourceLocation,
		ReportName:       raw.ReportName,
		FileExtension:    raw.ResourceFileExtension,
	}, nil
}

// Download retrieves the complete artifact from the resource location
// reported by a succeeded status. The location is an absolute URL. The
// returned bytes are verified against the server-reported length so a
// truncated body is surfaced as a fault, never as a short artifact.
func (c *Client) Download(ctx context.Context, resourceLocation string) ([]byte, error) {
	const op = "powerbi.download"

	resp, err := c.do(ctx, op, http.MethodGet, resourceLocation, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, apperrors.Transport(op,
			fmt.Errorf("short read: got %d of %d bytes", len(data), resp.ContentLength))
	}
	return data, nil
}

// Reports enumerates the reports available in a workspace.
func (c *Client) Reports(ctx context.Context, workspaceID string) ([]Report, error) {
	const op = "powerbi.reports"
	url := fmt.Sprintf("%s/groups/%s/reports", c.baseURL, workspaceID)

	resp, err := c.do(ctx, op, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out reportListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperrors.API(op, resp.StatusCode, "malformed response body")
	}
	return out.Value, nil
}

// do executes one request and classifies the response. On a 2xx it returns
// the open response, which the caller must close; anything else is mapped to
// the error taxonomy (transport fault, 401/403 auth rejection, or API error
// with a bounded body excerpt).
func (c *Client) do(ctx context.Context, op, method, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.Transport(op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Transport(op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordAPIRequest(ctx, op, 0, time.Since(start).Seconds())
		}
		return nil, apperrors.Transport(op, err)
	}
	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, op, resp.StatusCode, time.Since(start).Seconds())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperrors.Auth(op, resp.StatusCode)
	}
	return nil, apperrors.API(op, resp.StatusCode, string(excerpt))
}

// Verify Client implements the orchestrator's API surface
var _ export.API = (*Client)(nil)

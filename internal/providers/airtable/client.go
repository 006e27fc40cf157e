// Package airtable is a read-only client for the Airtable records API.
package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

// ErrMissingCredentials indicates the client lacks an API key or base id.
var ErrMissingCredentials = errors.New("airtable: api key and base id are required")

// maxPages bounds pagination against a misbehaving offset cursor.
const maxPages = 100

// Options configures the client.
type Options struct {
	APIKey         string
	BaseID         string
	Table          string
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	Logger         *infra.Logger
}

// Client lists records from one table.
type Client struct {
	apiKey     string
	baseID     string
	table      string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Attachment is an attachment cell entry.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Record is a table row with raw field values.
type Record struct {
	ID     string                     `json:"id"`
	Fields map[string]json.RawMessage `json:"fields"`
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

type errorResponse struct {
	Error json.RawMessage `json:"error"`
}

// NewClient constructs a client with defaults.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" || strings.TrimSpace(opts.BaseID) == "" {
		return nil, ErrMissingCredentials
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.airtable.com/v0"
	}
	table := opts.Table
	if table == "" {
		table = "Coloring Book Pages"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseID:     strings.TrimSpace(opts.BaseID),
		table:      table,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// ListRecords returns every record in the table, following offset cursors.
func (c *Client) ListRecords(ctx context.Context) ([]Record, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.baseID), url.PathEscape(c.table))
	var (
		records []Record
		offset  string
	)
	for page := 0; page < maxPages; page++ {
		resp, err := c.list(ctx, endpoint, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, resp.Records...)
		if resp.Offset == "" {
			c.logger.Debug().Int("records", len(records)).Int("pages", page+1).Msg("airtable: listed records")
			return records, nil
		}
		offset = resp.Offset
	}
	return nil, &domain.UpstreamError{Service: "airtable", Message: "too many result pages"}
}

func (c *Client) list(ctx context.Context, endpoint, offset string) (*listResponse, error) {
	u := endpoint
	if offset != "" {
		u += "?" + url.Values{"offset": {offset}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("airtable: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "airtable", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("airtable: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(raw)).Msg("airtable: list failed")
		return nil, &domain.UpstreamError{
			Service: "airtable",
			Status:  strconv.Itoa(resp.StatusCode),
			Message: errorMessage(raw),
		}
	}
	var out listResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.UpstreamError{Service: "airtable", Message: "malformed response: " + err.Error()}
	}
	return &out, nil
}

// errorMessage accepts both {"error":"CODE"} and {"error":{"type":..,"message":..}}.
func errorMessage(raw []byte) string {
	var env errorResponse
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Error) == 0 {
		return strings.TrimSpace(string(raw))
	}
	var code string
	if err := json.Unmarshal(env.Error, &code); err == nil {
		return code
	}
	var detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &detail); err == nil {
		return strings.Trim(detail.Type+": "+detail.Message, ": ")
	}
	return string(env.Error)
}

// String returns a text field, or "" when absent or not a string.
func (r Record) String(field string) string {
	var s string
	if err := json.Unmarshal(r.Fields[field], &s); err != nil {
		return ""
	}
	return s
}

// Float returns a numeric field. Numeric strings are accepted; anything else
// yields 0.
func (r Record) Float(field string) float64 {
	raw, ok := r.Fields[field]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// FirstAttachmentURL returns the url of the first attachment in field.
func (r Record) FirstAttachmentURL(field string) string {
	var atts []Attachment
	if err := json.Unmarshal(r.Fields[field], &atts); err != nil || len(atts) == 0 {
		return ""
	}
	return strings.TrimSpace(atts[0].URL)
}

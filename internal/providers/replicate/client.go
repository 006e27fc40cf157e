package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

const defaultMaxDownloadBytes = 32 << 20

// Prediction status values reported by the service.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// Options configures the prediction client.
type Options struct {
	APIToken string
	BaseURL  string
	// ModelVersion is "owner/name:version" or a bare version id.
	ModelVersion   string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// MaxDownloadBytes caps a single output download. Defaults to 32MiB.
	MaxDownloadBytes int64
}

// Client talks to the Replicate predictions API.
type Client struct {
	token       string
	baseURL     string
	model       string
	version     string
	httpClient  *http.Client
	logger      *infra.Logger
	maxDownload int64
}

// Input is the model input for a coloring page.
type Input struct {
	Prompt       string `json:"prompt"`
	OutputFormat string `json:"output_format,omitempty"`
}

// Prediction mirrors the service's prediction object.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// OutputURLs returns the output location(s); the service reports either a
// single string or a list depending on the model.
func (p *Prediction) OutputURLs() []string {
	if p == nil || len(p.Output) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single = strings.TrimSpace(single); single != "" {
			return []string{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(p.Output, &many); err != nil {
		return nil
	}
	out := many[:0]
	for _, u := range many {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ErrorMessage returns the upstream error text, if any.
func (p *Prediction) ErrorMessage() string {
	if p == nil || len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(p.Error, &msg); err == nil {
		return msg
	}
	return string(p.Error)
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = defaultMaxDownloadBytes
	}
	model, version := splitModelVersion(opts.ModelVersion)
	if version == "" {
		return nil, errors.New("replicate: model version is required")
	}
	return &Client{
		token:       strings.TrimSpace(opts.APIToken),
		baseURL:     baseURL,
		model:       model,
		version:     version,
		httpClient:  httpClient,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		maxDownload: maxDownload,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.token != ""
}

// Create submits a prediction and returns the initial state.
func (c *Client) Create(ctx context.Context, input Input) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	endpoint := c.baseURL + "/predictions"
	payload := map[string]any{"input": input}
	if c.model != "" {
		endpoint = fmt.Sprintf("%s/models/%s/versions/%s/predictions", c.baseURL, c.model, url.PathEscape(c.version))
	} else {
		payload["version"] = c.version
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	pred, err := c.doPrediction(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("prediction_id", pred.ID).Str("status", pred.Status).Msg("replicate: prediction created")
	return pred, nil
}

// Get fetches the current state of a prediction from its status URL.
func (c *Client) Get(ctx context.Context, statusURL string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	if strings.TrimSpace(statusURL) == "" {
		return nil, errors.New("replicate: status url is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	return c.doPrediction(req)
}

// Download fetches a prediction output. Output URLs are pre-signed, so no
// credentials are attached.
func (c *Client) Download(ctx context.Context, outputURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(outputURL))
	if err != nil || parsed.Scheme == "" {
		return nil, "", fmt.Errorf("replicate: invalid output url: %s", outputURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("replicate: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &domain.UpstreamError{Service: "replicate", Message: "download output: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &domain.UpstreamError{Service: "replicate", Status: strconv.Itoa(resp.StatusCode), Message: "download output"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return nil, "", fmt.Errorf("replicate: read output: %w", err)
	}
	if int64(len(data)) > c.maxDownload {
		return nil, "", &domain.UpstreamError{Service: "replicate", Message: fmt.Sprintf("output exceeds %d bytes", c.maxDownload)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) doPrediction(req *http.Request) (*Prediction, error) {
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamError{Service: "replicate", Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		upstream := &domain.UpstreamError{Service: "replicate", Status: strconv.Itoa(resp.StatusCode)}
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && (detail.Detail != "" || detail.Title != "") {
			upstream.Message = strings.TrimSpace(detail.Title + ": " + detail.Detail)
			upstream.Message = strings.Trim(upstream.Message, ": ")
		} else {
			upstream.Message = strings.TrimSpace(string(raw))
		}
		return nil, upstream
	}

	var pred Prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, &domain.UpstreamError{Service: "replicate", Message: "malformed prediction: " + err.Error()}
	}
	if pred.Status == "" {
		return nil, &domain.UpstreamError{Service: "replicate", Message: "prediction without status"}
	}
	return &pred, nil
}

func splitModelVersion(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, ":"); idx >= 0 {
		return strings.Trim(raw[:idx], "/"), raw[idx+1:]
	}
	return "", raw
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
)

/**
 * Import Endpoint Client
 *
 * Features:
 * - dsXml request encoding over a single POST endpoint
 * - JSON envelope decoding with per-record rejections
 * - Retryable vs terminal failure classification
 * - Rate limiting integration
 * - Finalize and target catalogue calls
 *
 * Author: TradeImport Team
 * Updated: 2025-02-12
 */

const (
	// ActionImportChunk uploads one chunk of rows.
	ActionImportChunk = "ImportChunk"

	// ActionUpdateSequence finalizes an imported file.
	ActionUpdateSequence = "UpdateSequence"

	// ActionImportTargets lists the import target catalogue.
	ActionImportTargets = "ImportFileList"

	maxErrorBody = 512
)

// ClientConfig configures the endpoint client.
type ClientConfig struct {
	BaseURL      string
	UploadPath   string
	FinalizePath string
	TargetsPath  string
	Timeout      time.Duration
	UserID       string
	UserType     string
}

// Client talks to the backend import endpoint.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	rateLimiter *AdaptiveRateLimiter
	logger      *logger.Logger
}

// NewClient creates a new endpoint client.
func NewClient(config ClientConfig, rateLimiter *AdaptiveRateLimiter, log *logger.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if rateLimiter == nil {
		rateLimiter = NewAdaptiveRateLimiter(nil)
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: rateLimiter,
		logger:      log.With("component", "api"),
	}
}

// RateLimiter exposes the limiter for metrics.
func (c *Client) RateLimiter() *AdaptiveRateLimiter {
	return c.rateLimiter
}

// URL joins the base URL with an endpoint path.
func (c *Client) URL(path string) string {
	if path == "" {
		return c.config.BaseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// Do performs one POST without retrying. The returned error is typed:
// network failures, 5xx, 408 and 429 are retryable; a response with a
// false status is a retryable server error carrying the backend message.
func (c *Client) Do(ctx context.Context, path string, req *Request) (*Response, error) {
	endpoint := c.URL(path)
	if endpoint == "" {
		return nil, errors.New(errors.ErrorTypeConfiguration, "post", path, errors.NewSimple("api base_url is not configured"))
	}

	if req.UserID == "" {
		req.UserID = c.config.UserID
	}
	if req.UserType == "" {
		req.UserType = c.config.UserType
	}

	body, err := req.Encode()
	if err != nil {
		return nil, errors.New(errors.ErrorTypeParse, "encode_request", endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.ErrorTypeConfiguration, "build_request", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/xml")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(errors.ErrorTypeContext, "post", endpoint, err)
		}
		return nil, errors.New(errors.ErrorTypeNetwork, "post", endpoint, err)
	}
	defer httpResp.Body.Close()

	c.logger.LogRequest(http.MethodPost, endpoint, httpResp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, "read_response", endpoint, err)
	}

	if httpResp.StatusCode >= 300 {
		if httpResp.StatusCode == http.StatusTooManyRequests {
			c.rateLimiter.RecordRateLimitError()
		}
		return nil, statusError(endpoint, httpResp.StatusCode, raw)
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.New(errors.ErrorTypeServer, "decode_response", endpoint,
			fmt.Errorf("invalid response: %s", snippet(raw))).WithCode(httpResp.StatusCode)
	}

	if !resp.OK() {
		msg := resp.Message
		if msg == "" {
			msg = "request rejected by server"
		}
		return &resp, errors.New(errors.ErrorTypeServer, req.Action, endpoint, errors.NewSimple(msg)).
			WithCode(httpResp.StatusCode)
	}

	c.rateLimiter.RecordSuccess()
	return &resp, nil
}

// statusError types every non-2xx answer as a retryable server failure.
func statusError(endpoint string, code int, body []byte) error {
	msg := fmt.Sprintf("HTTP %d", code)
	if s := snippet(body); s != "" {
		msg = fmt.Sprintf("HTTP %d: %s", code, s)
	}

	return errors.New(errors.ErrorTypeServer, "post", endpoint, errors.NewSimple(msg)).WithCode(code)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// Finalize tells the backend a target's import sequence is complete.
func (c *Client) Finalize(ctx context.Context, target Target, filters map[string]string) error {
	if err := c.rateLimiter.WaitForControl(ctx); err != nil {
		return err
	}

	merged := make(map[string]string, len(filters)+2)
	for k, v := range filters {
		merged[k] = v
	}
	merged["ImportKey"] = target.ImportKey
	merged["FileType"] = target.FileType

	_, err := c.Do(ctx, c.config.FinalizePath, &Request{
		Action:  ActionUpdateSequence,
		Filters: merged,
	})
	if err != nil {
		return errors.Wrapf(err, "finalize %s", target.FileName)
	}
	return nil
}

// FetchTargets retrieves the import target catalogue. The first slice
// holds enabled targets only; the second holds every target.
func (c *Client) FetchTargets(ctx context.Context) ([]Target, []Target, error) {
	if c.config.TargetsPath == "" {
		return nil, nil, errors.New(errors.ErrorTypeConfiguration, "fetch_targets", "", errors.NewSimple("api targets_path is not configured"))
	}
	if err := c.rateLimiter.WaitForControl(ctx); err != nil {
		return nil, nil, err
	}

	resp, err := c.Do(ctx, c.config.TargetsPath, &Request{Action: ActionImportTargets})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to fetch import targets")
	}

	rows, err := resp.Rows()
	if err != nil {
		return nil, nil, errors.New(errors.ErrorTypeServer, "fetch_targets", c.config.TargetsPath, err)
	}

	all := make([]Target, 0, len(rows))
	enabled := make([]Target, 0, len(rows))
	for _, row := range rows {
		t := Target{
			ID:        field(row, "ID", "FileID", "Id"),
			FileName:  field(row, "FileName"),
			FileType:  field(row, "FileType"),
			Exchange:  field(row, "Exchange"),
			Segment:   field(row, "Segment"),
			ImportKey: field(row, "ImportKey", "SequenceKey", "Key"),
			Enabled:   true,
		}
		if t.FileName == "" {
			continue
		}
		for k, v := range row {
			if strings.EqualFold(k, "Enabled") || strings.EqualFold(k, "IsEnabled") || strings.EqualFold(k, "IsActive") {
				t.Enabled = truthy(v)
			}
		}
		all = append(all, t)
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}

	c.logger.Debug("Fetched import targets", "total", len(all), "enabled", len(enabled))
	return enabled, all, nil
}

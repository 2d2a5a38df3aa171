// Package client provides the HTTP client for the remote DevScript service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"devscript.dev/devscript/internal/apperr"
	"devscript.dev/devscript/pkg/protocol"
)

// Client is the DevScript service API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// New creates a new service client.
func New(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.With().Str("component", "client").Logger(),
	}
}

// APIError is a non-2xx answer from the service. Its message is the
// server's detail text.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return e.Detail
}

// ============================================================
// API methods
// ============================================================

// Usage returns the account's usage statistics. It doubles as the API key
// check during setup.
func (c *Client) Usage(ctx context.Context) (*protocol.UsageResponse, error) {
	c.logger.Debug().Str("url", c.baseURL+"/user/usage").Msg("Fetching usage")

	var resp protocol.UsageResponse
	if err := c.do(ctx, http.MethodGet, "/user/usage", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Convert sends DevScript source to the service. model may be empty.
func (c *Client) Convert(ctx context.Context, code, model string) (*protocol.ConvertResponse, error) {
	c.logger.Debug().Int("source_bytes", len(code)).Str("model", model).Msg("Requesting conversion")

	var resp protocol.ConvertResponse
	req := protocol.ConvertRequest{Code: code, Model: model}
	if err := c.do(ctx, http.MethodPost, "/convert", req, &resp); err != nil {
		return nil, err
	}

	if resp.PythonCode == "" {
		return nil, apperr.New(apperr.KindInvalidResponse, "convert", "response contained no python_code")
	}
	return &resp, nil
}

// Explain asks the service to explain an error raised by code.
func (c *Client) Explain(ctx context.Context, code, errText string) (*protocol.ExplainResponse, error) {
	var resp protocol.ExplainResponse
	req := protocol.ExplainRequest{Code: code, Error: errText}
	if err := c.do(ctx, http.MethodPost, "/explain", req, &resp); err != nil {
		return nil, err
	}

	if resp.Explanation == "" {
		return nil, apperr.New(apperr.KindInvalidResponse, "explain", "response contained no explanation")
	}
	return &resp, nil
}

// ============================================================
// Helper methods
// ============================================================

func (c *Client) do(ctx context.Context, method, path string, body interface{}, response interface{}) error {
	op := strings.TrimPrefix(path, "/")

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(protocol.APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrapf(apperr.KindNetworkFailure, op, err, "error connecting to DevScript API")
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return apperr.Wrapf(apperr.KindInvalidResponse, op, err, "invalid JSON response from API")
	}
	return nil
}

// parseError prefers the JSON detail field, then the raw body, then a
// generic message.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: "API error"}

	var errResp struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Detail) > 0 {
		if detail := renderDetail(errResp.Detail); detail != "" {
			apiErr.Detail = detail
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && !json.Valid(body) {
		apiErr.Detail = text
	}

	c.logger.Warn().Int("status", resp.StatusCode).Str("detail", apiErr.Detail).Msg("API error")

	return apperr.Wrap(statusKind(resp.StatusCode), "", apiErr)
}

// renderDetail turns a detail value into a message. Strings are used as is;
// validation lists ([{"loc": [...], "msg": "..."}]) become "loc: msg" lines
// joined by "; "; anything else is the compact JSON text.
func renderDetail(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var items []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg == "" {
				continue
			}
			if len(item.Loc) == 0 {
				msgs = append(msgs, item.Msg)
				continue
			}
			loc := make([]string, len(item.Loc))
			for i, part := range item.Loc {
				loc[i] = fmt.Sprint(part)
			}
			msgs = append(msgs, strings.Join(loc, ".")+": "+item.Msg)
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	if string(raw) == "null" {
		return ""
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}

func statusKind(status int) apperr.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperr.KindConfigMissing
	case status >= 500:
		return apperr.KindNetworkFailure
	default:
		return apperr.KindInvalidResponse
	}
}

// AsAPIError returns the APIError in err's chain, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// Package apiclient is a typed client for the KasiViral HTTP API used by the
// dashboard route guard and local tooling.
package apiclient

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
)

const defaultTimeout = 15 * time.Second

// TokenSource returns the caller's current bearer credential. An empty token
// means the caller is signed out.
type TokenSource func(ctx context.Context) (string, error)

// ErrSignedOut is returned when the token source has no credential.
var ErrSignedOut = errors.New("no credential available")

// Error is a decoded API error envelope.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// Reason returns details.reason when present.
func (e *Error) Reason() string {
	if e == nil || e.Details == nil {
		return ""
	}
	reason, _ := e.Details["reason"].(string)
	return reason
}

// AsError unwraps an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// EntitlementView mirrors the server's entitlement projection.
type EntitlementView struct {
	Status    string    `json:"status"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsActive  bool      `json:"isActive"`
}

// RegisterResult is the response of POST /principal/register.
type RegisterResult struct {
	Entitlement       EntitlementView `json:"entitlement"`
	AlreadyRegistered bool            `json:"alreadyRegistered"`
}

// Thread is a generated thread.
type Thread struct {
	Text      string `json:"text"`
	WordCount int    `json:"wordCount"`
	UnitCount int    `json:"unitCount"`
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      TokenSource
}

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base url is required")
	}
	if opts.Token == nil {
		return nil, errors.New("token source is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: base, http: httpClient, token: opts.Token}, nil
}

// Me fetches the caller's entitlement view. The server provisions the default
// row on first sight.
func (c *Client) Me(ctx context.Context) (EntitlementView, error) {
	var out EntitlementView
	err := c.do(ctx, http.MethodGet, "/entitlement/me", nil, nil, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context) (RegisterResult, error) {
	var out RegisterResult
	err := c.do(ctx, http.MethodPost, "/principal/register", nil, nil, &out)
	return out, err
}

// Activate calls the development activation shortcut.
func (c *Client) Activate(ctx context.Context, plan string, expiresAt time.Time) (EntitlementView, error) {
	var out EntitlementView
	body := map[string]any{"plan": plan, "expiresAt": expiresAt.UTC().Format(time.RFC3339)}
	err := c.do(ctx, http.MethodPost, "/entitlement/activate", body, nil, &out)
	return out, err
}

// GenerateThread requests a thread. A non-empty idempotencyKey makes retries safe.
func (c *Client) GenerateThread(ctx context.Context, topic, length, idempotencyKey string) (Thread, error) {
	var out Thread
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	body := map[string]any{"topic": topic, "length": length}
	err := c.do(ctx, http.MethodPost, "/threads/generate", body, headers, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return ErrSignedOut
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	envelope := struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}{}
	apiErr := &Error{Status: status}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

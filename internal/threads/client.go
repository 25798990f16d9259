package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/kasiviral/kasiviral-backend/pkg/breaker"
	"github.com/kasiviral/kasiviral-backend/pkg/config"
	"github.com/kasiviral/kasiviral-backend/pkg/enums"
	pkgerrors "github.com/kasiviral/kasiviral-backend/pkg/errors"
	"github.com/kasiviral/kasiviral-backend/pkg/logger"
)

const systemPrompt = "You write engaging social media threads. Separate every post with one blank line. Do not number posts. Do not add commentary before or after the thread."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ClientParams configures the HTTP generator.
type ClientParams struct {
	Config     config.ThreadsConfig
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client generates threads through an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	logg     *logger.Logger
	breaker  *gobreaker.CircuitBreaker[any]
}

// NewClient validates configuration and builds the generator.
func NewClient(params ClientParams) (*Client, error) {
	cfg := params.Config
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("threads endpoint is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("threads api key is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     httpClient,
		logg:     params.Logger,
		breaker:  breaker.New("thread-generator", params.Logger, breaker.Options{}),
	}, nil
}

func (c *Client) Generate(ctx context.Context, topic string, tier enums.LengthTier) (Thread, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Thread{}, pkgerrors.New(pkgerrors.CodeValidation, "topic is required")
	}
	if !tier.IsValid() {
		return Thread{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid length %q", tier))
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.complete(ctx, topic, tier)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Thread{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "thread generator unavailable")
		}
		return Thread{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate thread")
	}

	thread := NewThread(result.(string))
	if thread.Text == "" {
		return Thread{}, pkgerrors.New(pkgerrors.CodeDependency, "thread generator returned empty text")
	}
	return thread, nil
}

func (c *Client) complete(ctx context.Context, topic string, tier enums.LengthTier) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Write a thread of exactly %d posts about: %s", tier.Units(), topic)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

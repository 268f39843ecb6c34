package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/gateway"
)

const defaultBaseURL = "https://api.openai.com/v1"

// responsesRequest is the minimal request shape for the Responses endpoint.
type responsesRequest struct {
	Model              string   `json:"model"`
	Instructions       string   `json:"instructions,omitempty"`
	Input              string   `json:"input"`
	PreviousResponseID string   `json:"previous_response_id,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"max_output_tokens,omitempty"`
}

// responsesResponse is the minimal response shape returned by the Responses endpoint.
type responsesResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// outputText concatenates every output_text part of every message item.
func (r responsesResponse) outputText() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

// KeySource resolves the API key.
type KeySource func(ctx context.Context) (string, error)

// StaticKey returns a KeySource for a key known at startup.
func StaticKey(key string) KeySource {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(key) == "" {
			return "", errors.New("openai: API key is empty")
		}
		return key, nil
	}
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client is a focused OpenAI client for the Responses API. It implements
// gateway.Generator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	keySource  KeySource

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client. The key is resolved on the first successful
// call and reused for the lifetime of the process; failed lookups are retried
// on the next call.
func NewClient(keys KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		keySource:  keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.keySource(ctx)
	if err != nil {
		return "", fmt.Errorf("openai: resolve API key: %w", err)
	}
	c.apiKey = key
	return key, nil
}

// resolvedHTTPClient returns the configured HTTP client, or a default with a
// 60s timeout if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

func responsesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/responses"
	}
	return base + "/v1/responses"
}

// Generate creates a response, continuing req.PreviousThread when set. The
// returned ThreadID is the response id.
func (c *Client) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
	out, err := c.generate(ctx, req)
	if err != nil {
		return domain.GeneratedText{}, gateway.AsProviderError("openai responses", err)
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, req domain.GenerateRequest) (domain.GeneratedText, error) {
	if req.Model == "" {
		return domain.GeneratedText{}, errors.New("openai: model must not be empty")
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return domain.GeneratedText{}, err
	}

	temperature := req.Temperature
	body, err := json.Marshal(responsesRequest{
		Model:              req.Model,
		Instructions:       req.Instructions,
		Input:              req.Prompt,
		PreviousResponseID: req.PreviousThread,
		Temperature:        &temperature,
		MaxOutputTokens:    req.MaxOutputTokens,
	})
	if err != nil {
		return domain.GeneratedText{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := responsesURL(c.baseURL)

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return domain.GeneratedText{}, fmt.Errorf("openai: create request: %w", reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(httpReq, url)
	if err != nil {
		return domain.GeneratedText{}, fmt.Errorf("openai: request failed: %w", err)
	}

	var payload responsesResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return domain.GeneratedText{}, fmt.Errorf("openai: decode response: %w", decErr)
	}
	if payload.Status == "failed" {
		msg := "unknown error"
		if payload.Error != nil {
			msg = payload.Error.Code + ": " + payload.Error.Message
		}
		return domain.GeneratedText{}, fmt.Errorf("openai: response failed: %s", msg)
	}
	if payload.ID == "" {
		return domain.GeneratedText{}, errors.New("openai: response missing id")
	}
	text := strings.TrimSpace(payload.outputText())
	if text == "" {
		return domain.GeneratedText{}, errors.New("openai: no output text in response")
	}

	return domain.GeneratedText{Text: text, ThreadID: payload.ID}, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

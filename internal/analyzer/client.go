package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ocrai/ocrai/pkg/logger"
	"github.com/ocrai/ocrai/pkg/models"
)

const (
	DefaultAPIURL = "https://openrouter.ai/api/v1/chat/completions"
	DefaultModel  = "google/gemini-2.5-pro"

	requestTimeout = 180 * time.Second
	maxRetries     = 3
)

// RetryBaseDelay controls the base duration for exponential backoff on
// retryable responses. Tests override this to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// Client talks to an OpenRouter-compatible chat-completions endpoint.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logger.Logger
}

type Option func(*Client)

func WithAPIURL(url string) Option {
	return func(c *Client) {
		c.apiURL = url
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(apiKey, model string, log *logger.Logger, options ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		apiURL:     DefaultAPIURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     log,
	}

	for _, opt := range options {
		opt(c)
	}

	return c
}

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze issues one request for the page and parses the structured
// JSON the model returns. All failures come back classified as
// AnalysisFailed so the caller can skip just this page.
func (c *Client) Analyze(ctx context.Context, req models.PageRequest) (*models.AnalysisResult, error) {
	fail := func(err error) (*models.AnalysisResult, error) {
		return nil, models.NewPageError(models.ErrAnalysisFailed, req.DocumentName, req.PageNumber, err)
	}

	if c.apiKey == "" {
		return fail(fmt.Errorf("API key is not set"))
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return fail(fmt.Errorf("failed to marshal request: %w", err))
	}

	respBody, err := c.sendWithRetry(ctx, body)
	if err != nil {
		return fail(err)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return fail(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(chat.Choices) == 0 {
		return fail(fmt.Errorf("response contains no choices"))
	}

	content := stripJSONFences(chat.Choices[0].Message.Content)

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		c.logger.Debug("Raw model content for %s page %d: %s", req.DocumentName, req.PageNumber, content)
		return fail(fmt.Errorf("model did not return the expected JSON object: %w", err))
	}

	if strings.TrimSpace(result.Markdown) == "" {
		return fail(fmt.Errorf("model returned empty markdown_text"))
	}

	return &result, nil
}

func (c *Client) buildRequest(req models.PageRequest) chatRequest {
	parts := []contentPart{
		{Type: "text", Text: buildPrompt(req)},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL("png", req.PageImage)}},
	}

	for _, sub := range req.SubImages {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(sub.Format, sub.Data)},
		})
	}

	return chatRequest{
		Model:          c.model,
		Messages:       []message{{Role: "user", Content: parts}},
		Temperature:    0.0,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
}

// sendWithRetry posts the request, retrying transport errors and
// retryable status codes with exponential backoff.
func (c *Client) sendWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := RetryBaseDelay << (attempt - 1)
			c.logger.Info("Retrying model request in %v (attempt %d/%d)...", backoff, attempt, maxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return respBody, nil
		}

		lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
		if !shouldRetry(resp.StatusCode) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", maxRetries+1, lastErr)
}

func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func dataURL(format string, data []byte) string {
	return "data:" + mimeType(format) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func mimeType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "", "png":
		return "image/png"
	default:
		return "image/" + format
	}
}

// stripJSONFences drops a ```json ... ``` wrapper some models emit even
// in JSON mode.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

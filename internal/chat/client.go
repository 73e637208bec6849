package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mrxnn/meetscribe/internal/store"
)

// systemInstruction is the fixed instruction prepended to every request
const systemInstruction = "You are a helpful meeting assistant. Answer questions about the meeting " +
	"using only the transcript provided below. If the transcript does not contain " +
	"the answer, say so.\n\nTranscript:\n"

// placeholderAnswer is returned when the endpoint responds without any completion
const placeholderAnswer = "(no response)"

// APIError reports a failed chat completion call. It is scoped to the
// current chat turn only and does not invalidate the transcript or prior
// messages.
type APIError struct {
	StatusCode int
	Reason     string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chat API error (status %d): %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("chat API error: %s", e.Reason)
}

// Config contains chat completion client configuration
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// wireMessage is the message shape of the chat completion protocol
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the JSON request body
type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// completionResponse is the minimal JSON response shape
type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client calls the remote chat completion endpoint
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a chat completion client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Complete sends the fixed system instruction, the full transcript, the
// prior messages in order, and the new user message to the endpoint and
// returns the first completion's text. Transient failures (5xx, 429,
// network) are retried with exponential backoff; anything else fails the
// turn with an APIError.
func (c *Client) Complete(ctx context.Context, transcript string, prior []store.Message, userText string) (string, error) {
	messages := make([]wireMessage, 0, len(prior)+2)
	messages = append(messages, wireMessage{
		Role:    "system",
		Content: systemInstruction + transcript,
	})
	for _, m := range prior {
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, wireMessage{Role: "user", Content: userText})

	body, err := json.Marshal(completionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
	})
	if err != nil {
		return "", &APIError{Reason: fmt.Sprintf("failed to encode request: %v", err)}
	}

	var answer string

	operation := func() error {
		result, err := c.doRequest(ctx, body)
		if err != nil {
			return err
		}
		answer = result
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.config.MaxRetries)),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = &APIError{Reason: err.Error()}
		}
		return "", apiErr
	}

	return answer, nil
}

// doRequest performs a single completion call. Retryable failures are
// returned as-is; terminal ones are wrapped in backoff.Permanent.
func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(&APIError{Reason: fmt.Sprintf("failed to build request: %v", err)})
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors are retryable
		return "", &APIError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &APIError{Reason: fmt.Sprintf("failed to read response: %v", err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", &APIError{StatusCode: resp.StatusCode, Reason: string(respBody)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Reason: string(respBody)})
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", backoff.Permanent(&APIError{
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("malformed response: %v", err),
		})
	}

	if len(parsed.Choices) == 0 {
		c.logger.Warn("Chat endpoint returned no completions")
		return placeholderAnswer, nil
	}

	return parsed.Choices[0].Message.Content, nil
}

package ai

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

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrModel marks language-model failures. A model error only aborts the
// current generation attempt; the chat returns to idle without retry.
var ErrModel = errors.New("model error")

// Client is the language-model collaborator.
type Client interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// OpenAIClient implements Client against an OpenAI-compatible
// chat/completions endpoint.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      *logrus.Logger

	// retryBase is the first backoff delay; doubled per attempt.
	retryBase time.Duration
}

// NewOpenAIClient creates a new model client.
func NewOpenAIClient(cfg *config.ModelConfig, logger *logrus.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Name,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger:    logger,
		retryBase: 2 * time.Second,
	}
}

// Complete sends the messages to the model and returns the completion text,
// retrying transient failures with exponential backoff.
func (c *OpenAIClient) Complete(ctx context.Context, messages []models.Message) (string, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := c.complete(ctx, messages, attempt)
		if err == nil {
			return response, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, errClientRejected) {
			return "", fmt.Errorf("%w: %v", ErrModel, err)
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err.Error(),
			"model":   c.model,
		}).Warn("Model request failed, retrying...")

		if attempt < maxRetries {
			waitTime := c.retryBase << uint(attempt-1)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("%w: all retry attempts failed: %v", ErrModel, lastErr)
}

// errClientRejected marks 4xx responses, which retrying cannot fix.
var errClientRejected = errors.New("request rejected")

func (c *OpenAIClient) complete(ctx context.Context, messages []models.Message, attempt int) (string, error) {
	reqBody := map[string]interface{}{
		"model":       c.model,
		"messages":    messages,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.WithFields(logrus.Fields{
		"model":    c.model,
		"messages": len(messages),
		"attempt":  attempt,
	}).Debug("Sending model request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"status":  resp.StatusCode,
			"body":    string(body),
			"attempt": attempt,
		}).Error("Model request failed")

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", fmt.Errorf("%w: status %d: %s", errClientRejected, resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Error.Message != "" {
		return "", fmt.Errorf("model error: %s", result.Error.Message)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return result.Choices[0].Message.Content, nil
}

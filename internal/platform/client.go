package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ReplAI-Neo/ReplAI/internal/config"
	"github.com/ReplAI-Neo/ReplAI/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrPlatform marks failures of the messaging bridge API so the poll loop
// can distinguish them from other errors and back off.
var ErrPlatform = errors.New("platform api error")

// Client is the messaging bridge consumed by the poll loop and scheduler.
type Client interface {
	ListUnreadChats(ctx context.Context) ([]models.Chat, error)
	ListRecentMessages(ctx context.Context, chatID string, limit int) ([]models.PlatformMessage, error)
	SendMessage(ctx context.Context, chatID, text string) error
}

// HTTPClient talks to a local messaging bridge over its REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logrus.Logger
}

// NewHTTPClient creates a bridge client. Outbound sends are throttled by a
// shared rate limiter to protect the bridge.
func NewHTTPClient(cfg *config.PlatformConfig, logger *logrus.Logger) *HTTPClient {
	rps := float64(cfg.SendsPerMinute) / 60.0
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), cfg.SendBurst),
		logger:  logger,
	}
}

// ListUnreadChats returns the chats that currently have unread messages.
func (c *HTTPClient) ListUnreadChats(ctx context.Context) ([]models.Chat, error) {
	var result struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := c.get(ctx, "/chats/unread", &result); err != nil {
		return nil, err
	}
	return result.Chats, nil
}

// ListRecentMessages returns up to limit most recent messages of a chat.
func (c *HTTPClient) ListRecentMessages(ctx context.Context, chatID string, limit int) ([]models.PlatformMessage, error) {
	var result struct {
		Messages []models.PlatformMessage `json:"messages"`
	}
	path := fmt.Sprintf("/chats/%s/messages?limit=%d", url.PathEscape(chatID), limit)
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

// SendMessage posts one outbound message to a chat.
func (c *HTTPClient) SendMessage(ctx context.Context, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqBody := map[string]string{"text": text}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal send request: %w", err)
	}

	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: send message: %v", ErrPlatform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		c.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"status":  resp.StatusCode,
			"body":    string(body),
		}).Error("Send message failed")
		return fmt.Errorf("%w: send message: status %d", ErrPlatform, resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %v", ErrPlatform, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", ErrPlatform, path, err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
			"body":   string(body),
		}).Error("Platform request failed")
		return fmt.Errorf("%w: %s: status %d", ErrPlatform, path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s: parse response: %v", ErrPlatform, path, err)
	}

	return nil
}

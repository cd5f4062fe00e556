package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mindease/backend/internal/config"
)

// NoReplyText is rendered when the service answers without any
// recognizable reply field.
const NoReplyText = "No reply."

// Reply is the remote service's answer to one user message.
type Reply struct {
	Text string
	Mood *float64
}

// Fetcher abstracts the remote reply service for the controller and tests.
type Fetcher interface {
	Fetch(ctx context.Context, message string, voice bool) (Reply, error)
}

// Client talks to the MindEase reply service over plain HTTP. One POST,
// no retries, no backoff: failures surface uniformly to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.ReplyConfig, log *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

type chatRequest struct {
	Message string `json:"message"`
	Voice   bool   `json:"voice"`
}

// chatResponse covers both response shapes the service has shipped:
// a flat {reply, mood} object and a nested {message: {text, mood}}.
type chatResponse struct {
	Reply   string   `json:"reply"`
	Mood    *float64 `json:"mood"`
	Message struct {
		Text string   `json:"text"`
		Mood *float64 `json:"mood"`
	} `json:"message"`
}

// Fetch submits one message and decodes the reply. A non-2xx status is
// a uniform failure regardless of body content.
func (c *Client) Fetch(ctx context.Context, message string, voice bool) (Reply, error) {
	body, err := json.Marshal(chatRequest{Message: message, Voice: voice})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.baseURL + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.WithFields(logrus.Fields{
		"url":   url,
		"voice": voice,
	}).Debug("sending chat request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(raw),
		}).Error("chat request failed")
		return Reply{}, fmt.Errorf("chat request failed with status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Reply{}, fmt.Errorf("parse chat response: %w", err)
	}

	return extractReply(parsed), nil
}

// extractReply applies the first-matching-field rules.
func extractReply(parsed chatResponse) Reply {
	text := parsed.Reply
	if text == "" {
		text = parsed.Message.Text
	}
	if text == "" {
		text = NoReplyText
	}

	mood := parsed.Mood
	if mood == nil {
		mood = parsed.Message.Mood
	}

	return Reply{Text: text, Mood: mood}
}

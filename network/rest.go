package network

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
	"sync"
	"time"

	"go.uber.org/zap"

	"swipechat/errs"
	"swipechat/models"
)

// maxResponseSize bounds how much of a REST response body is read.
const maxResponseSize = 8 * 1024 * 1024

// ClientOptions controls runtime behavior of Client.
type ClientOptions struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the chat REST API with bearer authentication.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger

	tokenMu sync.RWMutex
	token   string
}

// LoginResult is the decoded POST /auth/login response.
type LoginResult struct {
	User  models.User `json:"user"`
	Token AccessToken `json:"token"`
}

// NewClient validates options and returns a REST client.
func NewClient(options ClientOptions) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(options.BaseURL), "/")
	if raw == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base URL %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme %q", base.Scheme)
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = DefaultConnectionTimeout
	}
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		logger:  logger.Named("rest"),
		token:   options.Token,
	}, nil
}

// SetToken replaces the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = token
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Login exchanges credentials for a user record and access token, and
// installs the token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result LoginResult
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	if result.Token == "" || result.User.ID == "" {
		return nil, &errs.FetchError{Op: "login", Err: errors.New("response missing user or token")}
	}

	c.SetToken(string(result.Token))
	return &result, nil
}

// ListConversations fetches every conversation of the current user.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	for i := range conversations {
		normalizeConversation(&conversations[i])
	}
	return conversations, nil
}

// GetConversation fetches one conversation including its message history.
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, errors.New("conversation_id is required")
	}

	var conversation models.Conversation
	path := "/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, "get conversation", http.MethodGet, path, nil, &conversation); err != nil {
		return nil, err
	}
	if conversation.ID == "" {
		conversation.ID = conversationID
	}
	normalizeConversation(&conversation)
	return &conversation, nil
}

// PostMessage persists a message and returns the confirmed record.
func (c *Client) PostMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	if conversationID == "" {
		return nil, errors.New("conversation_id is required")
	}

	var message models.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "post message", http.MethodPost, path, map[string]string{"content": content}, &message); err != nil {
		return nil, err
	}
	if message.ConversationID == "" {
		message.ConversationID = conversationID
	}
	message.Normalize()
	return &message, nil
}

// ListUsers fetches the discovery deck.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var envelope struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, "list users", http.MethodGet, "/users", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Users, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.baseURL.String() + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return &errs.FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &errs.FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &errs.FetchError{Op: op, Status: resp.StatusCode, Err: statusError(resp.StatusCode, raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errs.FetchError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError maps an HTTP status to the error taxonomy, keeping the server's
// message when one is present.
func statusError(status int, body []byte) error {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &payload)
	detail := payload.Message
	if detail == "" {
		detail = payload.Error
	}

	var base error
	switch status {
	case http.StatusNotFound, http.StatusForbidden:
		base = errs.ErrNotFound
	case http.StatusUnauthorized:
		base = errs.ErrUnauthorized
	default:
		if detail == "" {
			detail = http.StatusText(status)
		}
		return errors.New(detail)
	}

	if detail == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, detail)
}

func normalizeConversation(conversation *models.Conversation) {
	for i := range conversation.Messages {
		conversation.Messages[i].Normalize()
		if conversation.Messages[i].ConversationID == "" {
			conversation.Messages[i].ConversationID = conversation.ID
		}
	}
	if conversation.LastMessage != nil {
		conversation.LastMessage.Normalize()
		if conversation.LastMessage.ConversationID == "" {
			conversation.LastMessage.ConversationID = conversation.ID
		}
	}
}

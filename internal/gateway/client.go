// Package gateway is the REST client for the hotel platform's message API:
// send, delete, mark-read and window loads. It owns the mapping from HTTP
// status codes to the engine's error taxonomy.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ostelo/deskchat/internal/chat"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestTimeout = 15 * time.Second

// Client talks to the message gateway.
type Client struct {
	http            *fasthttp.Client
	baseURL         string
	logger          *zap.Logger
	markReadLimiter *rate.Limiter
}

// NewClient creates a gateway client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		http:    &fasthttp.Client{},
		baseURL: baseURL,
		logger:  logger,
		// Server-side read propagation fans out to the peer channel; one
		// call every couple of seconds per engine is plenty.
		markReadLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// SendRequest is the payload for a message send. ClientKey is the
// idempotency token the gateway echoes back on the confirmed message.
type SendRequest struct {
	Body        string            `json:"body,omitempty"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	ClientKey   string            `json:"client_key"`
}

type listResponse struct {
	Messages []*chat.Message `json:"messages"`
}

// SendMessage posts a new message and returns the canonical confirmed
// message.
func (c *Client) SendMessage(ctx context.Context, ectx chat.Context, sr SendRequest) (*chat.Message, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, ectx.ConversationID)

	var msg chat.Message
	if err := c.doJSON(ctx, ectx, fasthttp.MethodPost, uri, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage deletes a message and returns the updated (soft-deleted)
// message. A 404 maps to ErrNotFound, which the caller treats as "already
// deleted", not as an error to surface.
func (c *Client) DeleteMessage(ctx context.Context, ectx chat.Context, messageID string) (*chat.Message, error) {
	uri := fmt.Sprintf("%s/messages/%s", c.baseURL, messageID)

	var msg chat.Message
	if err := c.doJSON(ctx, ectx, fasthttp.MethodDelete, uri, nil, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkConversationRead triggers server-side propagation of read events to
// the peer channel. Calls are rate-limited; a suppressed call is a no-op
// because the next allowed call covers the same read frontier.
func (c *Client) MarkConversationRead(ctx context.Context, ectx chat.Context) error {
	if !c.markReadLimiter.Allow() {
		return nil
	}
	uri := fmt.Sprintf("%s/conversations/%s/read", c.baseURL, ectx.ConversationID)
	return c.doJSON(ctx, ectx, fasthttp.MethodPost, uri, nil, nil)
}

// ListMessages fetches the newest window of messages for the conversation.
func (c *Client) ListMessages(ctx context.Context, ectx chat.Context, limit int) ([]*chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	uri := fmt.Sprintf("%s/conversations/%s/messages?limit=%d", c.baseURL, ectx.ConversationID, limit)

	var lr listResponse
	if err := c.doJSON(ctx, ectx, fasthttp.MethodGet, uri, nil, &lr); err != nil {
		return nil, err
	}
	return lr.Messages, nil
}

func (c *Client) doJSON(ctx context.Context, ectx chat.Context, method, uri string, body []byte, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if ectx.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+ectx.Credential)
	}
	if body != nil {
		req.SetBody(body)
	}

	deadline := time.Now().Add(requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, uri, err)
	}

	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: %s %s: status %d", ErrPermissionDenied, method, uri, code)
	case code == fasthttp.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, method, uri)
	default:
		return fmt.Errorf("%w: %s %s: status %d", ErrNetwork, method, uri, code)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	return nil
}

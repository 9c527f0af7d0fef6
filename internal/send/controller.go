// Package send implements the optimistic send lifecycle: a provisional
// message appears in the store the instant the user commits a send, the
// network write happens in the background, and the provisional entry either
// converges with the confirmed message or settles to failed for explicit
// retry. Queued sends are written through to the durable outbox so an
// interrupted send is still visible after a restart.
package send

import (
	"context"
	"errors"
	"time"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/cache"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/gateway"
	"github.com/ostelo/deskchat/internal/identity"
	"github.com/ostelo/deskchat/internal/metrics"
	"github.com/ostelo/deskchat/internal/store"
	"go.uber.org/zap"
)

// ErrNotRetryable is returned when Retry is called for an entry that is not
// in the failed state.
var ErrNotRetryable = errors.New("send: entry is not in a retryable state")

// Sender is the gateway surface the controller needs.
type Sender interface {
	SendMessage(ctx context.Context, ectx chat.Context, req gateway.SendRequest) (*chat.Message, error)
}

// Controller drives optimistic sends for one conversation.
type Controller struct {
	store  *store.Store
	sender Sender
	outbox *cache.DB
	bus    *bus.Bus
	ectx   chat.Context
	logger *zap.Logger
}

// NewController creates a send controller.
func NewController(s *store.Store, sender Sender, outbox *cache.DB, b *bus.Bus, ectx chat.Context, logger *zap.Logger) *Controller {
	return &Controller{store: s, sender: sender, outbox: outbox, bus: b, ectx: ectx, logger: logger}
}

// Send creates the provisional message, makes it observable immediately, and
// issues the network write in the background. It returns the provisional
// local key; progress is observable through the store and bus.
func (c *Controller) Send(ctx context.Context, body string, attachments []chat.Attachment, replyToID string) string {
	localKey := identity.NewLocalKey()

	provisional := &chat.Message{
		LocalKey:       localKey,
		ConversationID: c.ectx.ConversationID,
		SenderClass:    c.ectx.ViewerRole,
		SenderRef:      c.ectx.ViewerRef,
		SenderName:     c.ectx.ViewerName,
		Body:           body,
		Attachments:    attachments,
		ReplyToID:      replyToID,
		CreatedAt:      time.Now(),
		Optimistic:     true,
	}
	c.store.Upsert(provisional)
	c.store.InitState(localKey, chat.StatePending)
	c.notify(localKey)

	if err := c.outbox.Queue(&cache.OutboxEntry{
		ClientKey:      localKey,
		ConversationID: c.ectx.ConversationID,
		Body:           body,
		ReplyToID:      replyToID,
		Attachments:    attachments,
	}); err != nil {
		c.logger.Warn("failed to persist outbox entry", zap.Error(err), zap.String("client_key", localKey))
	}

	go c.deliver(ctx, localKey, gateway.SendRequest{
		Body:        body,
		Attachments: attachments,
		ReplyTo:     replyToID,
		ClientKey:   localKey,
	})

	return localKey
}

// Retry re-enters the send flow for a failed entry: the failed message is
// removed and its content goes out as a fresh send under a new local key.
func (c *Controller) Retry(ctx context.Context, localKey string) (string, error) {
	msg, ok := c.store.Get(localKey)
	if !ok || c.store.State(localKey) != chat.StateFailed {
		return "", ErrNotRetryable
	}

	c.store.Remove(localKey)
	if err := c.outbox.Delete(localKey); err != nil {
		c.logger.Warn("failed to drop outbox entry", zap.Error(err), zap.String("client_key", localKey))
	}
	c.notify(localKey)

	return c.Send(ctx, msg.Body, msg.Attachments, msg.ReplyToID), nil
}

// Resume re-issues sends that were queued but never delivered, typically
// after a crash between the optimistic insert and the network write.
func (c *Controller) Resume(ctx context.Context) {
	pending, err := c.outbox.Pending()
	if err != nil {
		c.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, e := range pending {
		if e.ConversationID != c.ectx.ConversationID {
			continue
		}
		if _, ok := c.store.Get(e.ClientKey); !ok {
			c.store.Upsert(&chat.Message{
				LocalKey:       e.ClientKey,
				ConversationID: e.ConversationID,
				SenderClass:    c.ectx.ViewerRole,
				SenderRef:      c.ectx.ViewerRef,
				SenderName:     c.ectx.ViewerName,
				Body:           e.Body,
				Attachments:    e.Attachments,
				ReplyToID:      e.ReplyToID,
				CreatedAt:      time.Now(),
				Optimistic:     true,
			})
			c.store.InitState(e.ClientKey, chat.StatePending)
			c.notify(e.ClientKey)
		}
		go c.deliver(ctx, e.ClientKey, gateway.SendRequest{
			Body:        e.Body,
			Attachments: e.Attachments,
			ReplyTo:     e.ReplyToID,
			ClientKey:   e.ClientKey,
		})
	}
}

func (c *Controller) deliver(ctx context.Context, localKey string, req gateway.SendRequest) {
	if err := c.outbox.MarkSending(localKey); err != nil {
		c.logger.Warn("failed to mark sending", zap.Error(err), zap.String("client_key", localKey))
	}

	confirmed, err := c.sender.SendMessage(ctx, c.ectx, req)
	if err != nil {
		c.fail(localKey, err)
		return
	}

	if confirmed.ClientKey == "" {
		// Older gateway builds do not echo the token; reconciliation then
		// falls back to the fingerprint heuristic inside Upsert.
		confirmed.ClientKey = localKey
	}

	// Either replaces the provisional entry, or — when the push event beat
	// the REST response — updates the already-present confirmed entry.
	c.store.Upsert(confirmed)
	c.store.SetState(confirmed.ID, chat.StateDelivered)

	if err := c.outbox.MarkSent(localKey, confirmed.ID); err != nil {
		c.logger.Warn("failed to mark sent", zap.Error(err), zap.String("client_key", localKey))
	}

	c.logger.Info("message sent",
		zap.String("client_key", localKey),
		zap.String("message_id", confirmed.ID))
	c.bus.Publish("message.send_ack", map[string]string{
		"client_key": localKey,
		"message_id": confirmed.ID,
	})
	c.notify(confirmed.ID)
}

func (c *Controller) fail(localKey string, err error) {
	c.logger.Error("failed to send message", zap.Error(err), zap.String("client_key", localKey))
	metrics.SendsFailed.Inc()

	// The entry is retained so the user can inspect and retry it. If the
	// confirmed message already arrived through the push channel, the
	// provisional entry is gone and there is nothing to mark.
	if _, ok := c.store.Get(localKey); ok {
		c.store.SetState(localKey, chat.StateFailed)
	}

	if err := c.outbox.MarkFailed(localKey, err.Error()); err != nil {
		c.logger.Warn("failed to mark outbox entry failed", zap.Error(err), zap.String("client_key", localKey))
	}
	c.bus.Publish("message.send_failed", map[string]string{
		"client_key": localKey,
	})
	c.notify(localKey)
}

func (c *Controller) notify(key string) {
	c.bus.Publish("message.updated", map[string]string{
		"conversation_id": c.ectx.ConversationID,
		"message_id":      key,
	})
}

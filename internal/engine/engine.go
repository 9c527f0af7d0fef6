// Package engine exposes the operation surface the UI layer calls: send,
// delete, mark-read, visibility reports, reply resolution and snapshots.
// One Engine instance owns one open conversation's state; the UI only reads
// snapshots and never mutates the store directly.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/deletion"
	"github.com/ostelo/deskchat/internal/gateway"
	"github.com/ostelo/deskchat/internal/metrics"
	"github.com/ostelo/deskchat/internal/push"
	"github.com/ostelo/deskchat/internal/receipts"
	"github.com/ostelo/deskchat/internal/reply"
	"github.com/ostelo/deskchat/internal/send"
	"github.com/ostelo/deskchat/internal/store"
	intsync "github.com/ostelo/deskchat/internal/sync"
	"go.uber.org/zap"
)

const windowSize = 50

// Gateway is the REST surface the engine consumes.
type Gateway interface {
	SendMessage(ctx context.Context, ectx chat.Context, req gateway.SendRequest) (*chat.Message, error)
	DeleteMessage(ctx context.Context, ectx chat.Context, messageID string) (*chat.Message, error)
	MarkConversationRead(ctx context.Context, ectx chat.Context) error
	ListMessages(ctx context.Context, ectx chat.Context, limit int) ([]*chat.Message, error)
}

// Binder is the push-channel surface the engine needs for conversation
// scoping.
type Binder interface {
	Bind(channel string)
	Unbind(channel string)
}

// Engine ties the store, the two producers and the policy layers together
// for one conversation.
type Engine struct {
	ectx       chat.Context
	store      *store.Store
	gw         Gateway
	binder     Binder
	controller *send.Controller
	reconciler *intsync.Reconciler
	tracker    *receipts.Tracker
	bus        *bus.Bus
	logger     *zap.Logger
}

// New assembles an engine from its collaborators.
func New(
	ectx chat.Context,
	s *store.Store,
	gw Gateway,
	binder Binder,
	controller *send.Controller,
	reconciler *intsync.Reconciler,
	tracker *receipts.Tracker,
	b *bus.Bus,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		ectx:       ectx,
		store:      s,
		gw:         gw,
		binder:     binder,
		controller: controller,
		reconciler: reconciler,
		tracker:    tracker,
		bus:        b,
		logger:     logger,
	}
}

// Subscribe binds the conversation's push channel, seeds the store with the
// newest message window, starts event reconciliation and resumes stranded
// sends.
func (e *Engine) Subscribe(ctx context.Context) error {
	e.binder.Bind(push.ConversationChannel(e.ectx.ConversationID))
	e.reconciler.Start(ctx)

	msgs, err := e.gw.ListMessages(ctx, e.ectx, windowSize)
	if err != nil {
		return fmt.Errorf("load message window: %w", err)
	}
	e.store.Seed(msgs)
	for _, m := range msgs {
		e.store.InitState(m.ID, initialState(m, e.ectx))
	}
	e.logger.Info("conversation subscribed",
		zap.String("conversation_id", e.ectx.ConversationID),
		zap.Int("window", len(msgs)))

	e.controller.Resume(ctx)
	return nil
}

// Unsubscribe unbinds only this conversation's channel and stops its
// handlers; other conversations sharing the push connection are unaffected.
func (e *Engine) Unsubscribe() {
	e.binder.Unbind(push.ConversationChannel(e.ectx.ConversationID))
	e.reconciler.Stop()
	e.tracker.Stop()
}

// SendMessage starts an optimistic send and returns its provisional local
// key. Fire-and-forget: progress is observable via Snapshot and bus events.
func (e *Engine) SendMessage(ctx context.Context, body string, attachments []chat.Attachment, replyToID string) string {
	return e.controller.Send(ctx, body, attachments, replyToID)
}

// RetrySend re-sends a failed entry's content as a fresh send.
func (e *Engine) RetrySend(ctx context.Context, localKey string) (string, error) {
	return e.controller.Retry(ctx, localKey)
}

// DeleteMessage deletes a message through the gateway and reconciles local
// state immediately, without waiting for the confirming push event (which
// then lands as a no-op).
//
// 403 surfaces as ErrPermissionDenied with the message untouched. 404 means
// the message is already gone elsewhere; local state is reconciled with the
// generic deletion text instead of surfacing an error.
func (e *Engine) DeleteMessage(ctx context.Context, messageID string) error {
	orig, present := e.store.Get(messageID)

	updated, err := e.gw.DeleteMessage(ctx, e.ectx, messageID)
	switch {
	case err == nil:
		if !present {
			return nil
		}
		serverText := ""
		if updated != nil && updated.Deleted {
			serverText = updated.Body
		}
		text := deletion.Resolve(serverText, e.ectx.ViewerRole, orig.SenderClass, e.ectx.ViewerName, e.ectx.IsGuestViewer())
		e.store.MarkDeleted(messageID, text, e.ectx.ViewerRole)
		e.notify(messageID)
		return nil

	case errors.Is(err, gateway.ErrNotFound):
		metrics.DeletesReconciled.Inc()
		if present {
			e.store.MarkDeleted(messageID, deletion.Generic, e.ectx.ViewerRole)
			e.notify(messageID)
		}
		return nil

	case errors.Is(err, gateway.ErrPermissionDenied):
		e.bus.Publish("engine.error", map[string]string{
			"operation":  "delete",
			"message_id": messageID,
			"error":      err.Error(),
		})
		return err

	default:
		return err
	}
}

// MarkConversationRead is the explicit mark-read path (staff composer
// focus).
func (e *Engine) MarkConversationRead(ctx context.Context) error {
	return e.tracker.MarkExplicit(ctx)
}

// ReportVisible feeds the local visibility detection of the read-receipt
// tracker.
func (e *Engine) ReportVisible(ctx context.Context, messageID string, fraction float64) {
	e.tracker.ReportVisible(ctx, messageID, fraction)
}

// ResolveReply computes the reply preview for a message.
func (e *Engine) ResolveReply(messageID string) reply.Display {
	msg, ok := e.store.Get(messageID)
	if !ok {
		return reply.Display{}
	}
	return reply.Resolve(&msg, e.store)
}

// Snapshot returns the ordered message list and delivery-state map.
func (e *Engine) Snapshot() ([]chat.Message, map[string]chat.DeliveryState) {
	return e.store.Snapshot()
}

// Handler returns the conversation's current staff handler, if any.
func (e *Engine) Handler() *chat.Handler {
	return e.store.Handler()
}

func (e *Engine) notify(messageID string) {
	e.bus.Publish("message.updated", map[string]string{
		"conversation_id": e.ectx.ConversationID,
		"message_id":      messageID,
	})
}

// initialState derives the delivery state for a message loaded from the
// server window.
func initialState(m *chat.Message, ectx chat.Context) chat.DeliveryState {
	readByPeer := (ectx.ViewerRole == chat.SenderGuest && m.ReadByStaff) ||
		(ectx.ViewerRole == chat.SenderStaff && m.ReadByGuest)
	if readByPeer {
		return chat.StateRead
	}
	return chat.StateDelivered
}

// Package sync reconciles inbound push events into the message store. The
// push channel is at-least-once and unordered, so every application must be
// idempotent and commutative with respect to replays: applying the same
// event twice leaves the store exactly as applying it once.
package sync

import (
	"context"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/deletion"
	"github.com/ostelo/deskchat/internal/metrics"
	"github.com/ostelo/deskchat/internal/store"
	"go.uber.org/zap"
)

// Reconciler consumes decoded push events for one conversation and applies
// them to the store.
type Reconciler struct {
	store  *store.Store
	ectx   chat.Context
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewReconciler creates a reconciler bound to one conversation's store.
func NewReconciler(s *store.Store, ectx chat.Context, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: s, ectx: ectx, bus: b, logger: logger}
}

// Start subscribes to decoded push events on the bus.
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				if pe, ok := evt.Payload.(*chat.Event); ok {
					r.Apply(pe)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Apply routes one event through the reducer. It never returns an error:
// the push channel offers no replay or dead-letter path, so an event that
// cannot be applied is a logged no-op.
func (r *Reconciler) Apply(evt *chat.Event) {
	// The notifications channel is shared; skip events for conversations
	// other than the one this store holds.
	if evt.ConversationID != "" && evt.ConversationID != r.store.ConversationID() {
		return
	}

	switch evt.Kind {
	case chat.EventMessageCreated:
		r.applyCreated(evt.Message)
	case chat.EventMessageDelivered:
		if r.store.SetState(evt.MessageID, chat.StateDelivered) {
			metrics.EventsApplied.WithLabelValues(string(evt.Kind)).Inc()
			r.notify(evt.MessageID)
		} else {
			metrics.DuplicatesSuppressed.Inc()
		}
	case chat.EventReadByStaff:
		r.applyRead(chat.SenderStaff, evt.MessageIDs)
	case chat.EventReadByGuest:
		r.applyRead(chat.SenderGuest, evt.MessageIDs)
	case chat.EventMessageDeleted:
		r.applyDeleted(evt)
	case chat.EventAttachmentDeleted:
		r.store.RemoveAttachment(evt.MessageID, evt.AttachmentID)
		metrics.EventsApplied.WithLabelValues(string(evt.Kind)).Inc()
		r.notify(evt.MessageID)
	case chat.EventStaffAssigned:
		r.store.SetHandler(evt.Handler)
		metrics.EventsApplied.WithLabelValues(string(evt.Kind)).Inc()
		r.bus.Publish("conversation.handler_changed", evt.Handler)
	default:
		r.logger.Warn("unhandled event kind", zap.String("kind", string(evt.Kind)))
	}
}

func (r *Reconciler) applyCreated(m *chat.Message) {
	if m == nil {
		return
	}
	// The same message may arrive on both the conversation channel and the
	// notifications channel; the second delivery is a no-op.
	if _, ok := r.store.Get(m.ID); ok {
		metrics.DuplicatesSuppressed.Inc()
		return
	}

	replaced := r.store.Upsert(m)
	if replaced == "" {
		// Fresh entry from the other party (or another device); it is on
		// the server already, so it starts delivered.
		r.store.InitState(m.ID, chat.StateDelivered)
	}
	// When an optimistic entry was replaced, its pending state migrated to
	// the canonical id; the REST response advances it to delivered.

	metrics.EventsApplied.WithLabelValues(string(chat.EventMessageCreated)).Inc()
	r.notify(m.ID)
}

func (r *Reconciler) applyRead(peer chat.SenderClass, ids []string) {
	r.store.MarkReadBy(peer, ids)
	metrics.EventsApplied.WithLabelValues("messages.read_by_" + string(peer)).Inc()
	for _, id := range ids {
		r.notify(id)
	}
}

func (r *Reconciler) applyDeleted(evt *chat.Event) {
	msg, ok := r.store.Get(evt.MessageID)
	if !ok || msg.Deleted {
		// Unknown id, or the local delete flow already applied it.
		metrics.DuplicatesSuppressed.Inc()
		return
	}

	text := deletion.Resolve(evt.DisplayText, evt.DeletedBy, msg.SenderClass, evt.DeletedByName, r.ectx.IsGuestViewer())
	r.store.MarkDeleted(evt.MessageID, text, evt.DeletedBy)
	metrics.EventsApplied.WithLabelValues(string(chat.EventMessageDeleted)).Inc()
	r.notify(evt.MessageID)
}

func (r *Reconciler) notify(messageID string) {
	r.bus.Publish("message.updated", map[string]string{
		"conversation_id": r.store.ConversationID(),
		"message_id":      messageID,
	})
}

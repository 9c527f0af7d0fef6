// Package receipts tracks read receipts from both directions: local
// visibility detection (the viewer actually seeing a message) and remote
// read events (the peer's side, applied by the reconciler). Only the local
// half lives here; the shared state sits in the message store.
package receipts

import (
	"context"
	"sync"
	"time"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/store"
	"go.uber.org/zap"
)

// visibleFraction is the minimum rendered-area fraction for a message to
// count as seen.
const visibleFraction = 0.5

// DefaultDebounce guards against marking messages read before the guest has
// actually looked at them.
const DefaultDebounce = 800 * time.Millisecond

// Marker is the gateway surface the tracker needs.
type Marker interface {
	MarkConversationRead(ctx context.Context, ectx chat.Context) error
}

// Tracker turns visibility reports into local seen state and, for guest
// viewers only, into a debounced mark-read call. Staff-side mark-read is
// explicit (composer focus): staff work many conversations at once and
// auto-marking on view would be misleading.
type Tracker struct {
	store    *store.Store
	marker   Marker
	bus      *bus.Bus
	ectx     chat.Context
	logger   *zap.Logger
	debounce time.Duration

	mu    sync.Mutex
	seen  map[string]struct{}
	timer *time.Timer
}

// NewTracker creates a tracker for one conversation. A zero debounce falls
// back to DefaultDebounce.
func NewTracker(s *store.Store, marker Marker, b *bus.Bus, ectx chat.Context, debounce time.Duration, logger *zap.Logger) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		store:    s,
		marker:   marker,
		bus:      b,
		ectx:     ectx,
		logger:   logger,
		debounce: debounce,
		seen:     make(map[string]struct{}),
	}
}

// ReportVisible records that a message's rendered region is visible to the
// viewer at the given fraction. Messages under the threshold, the viewer's
// own messages, and already-seen messages are ignored. For guest viewers a
// debounced mark-read call is scheduled; repeated reports within the window
// coalesce into one call.
func (t *Tracker) ReportVisible(ctx context.Context, messageID string, fraction float64) {
	if fraction < visibleFraction {
		return
	}
	msg, ok := t.store.Get(messageID)
	if !ok || msg.SenderClass == t.ectx.ViewerRole {
		return
	}

	t.mu.Lock()
	if _, dup := t.seen[messageID]; dup {
		t.mu.Unlock()
		return
	}
	t.seen[messageID] = struct{}{}

	schedule := t.ectx.IsGuestViewer()
	if schedule {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.timer = time.AfterFunc(t.debounce, func() { t.flush(ctx) })
	}
	t.mu.Unlock()

	t.store.MarkReadBy(t.ectx.ViewerRole, []string{messageID})
	t.bus.Publish("message.updated", map[string]string{
		"conversation_id": t.ectx.ConversationID,
		"message_id":      messageID,
	})
}

// MarkExplicit performs an immediate mark-read, the staff-side path
// triggered by focusing the composer.
func (t *Tracker) MarkExplicit(ctx context.Context) error {
	return t.marker.MarkConversationRead(ctx, t.ectx)
}

// Stop cancels any scheduled flush.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) flush(ctx context.Context) {
	if err := t.marker.MarkConversationRead(ctx, t.ectx); err != nil {
		// No retry here: the next visibility report schedules a fresh
		// flush covering the same read frontier.
		t.logger.Warn("mark-read failed", zap.Error(err))
	}
}

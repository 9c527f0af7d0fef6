// Package store holds the ordered, deduplicated message collection for one
// open conversation, plus the parallel per-message delivery-state map. It is
// the single structure both producers (the optimistic send controller and the
// event reconciler) write into; convergence between them happens entirely in
// Upsert.
package store

import (
	"slices"
	"sync"

	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/identity"
)

type entry struct {
	msg *chat.Message
	seq int
}

// Store is the in-memory message collection for one conversation. All
// operations are total: unknown ids are silent no-ops, because
// already-deleted-elsewhere is an expected race, not an error.
type Store struct {
	mu      sync.RWMutex
	convID  string
	entries []*entry
	index   map[string]*entry
	states  map[string]chat.DeliveryState
	handler *chat.Handler
	seq     int
}

// New creates an empty store for a conversation.
func New(conversationID string) *Store {
	return &Store{
		convID: conversationID,
		index:  make(map[string]*entry),
		states: make(map[string]chat.DeliveryState),
	}
}

// ConversationID returns the conversation this store belongs to.
func (s *Store) ConversationID() string {
	return s.convID
}

// Seed loads an initial or paginated window. Arrival order is preserved;
// messages already present by canonical id are skipped.
func (s *Store) Seed(msgs []*chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		if _, ok := s.index[m.Key()]; ok {
			continue
		}
		s.appendLocked(m)
	}
	s.sortLocked()
}

// Upsert merges a message into the store.
//
// If an entry with the same canonical id exists it is replaced (duplicate
// push delivery collapses here). Otherwise, if the incoming message is
// confirmed and reconciles against a pending optimistic entry, that entry is
// replaced with the confirmed one and no optimistic-only fields are carried
// over. Otherwise the message is appended. The visible order is re-sorted by
// CreatedAt whenever an insert lands out of order, so two racing producers
// still yield chronological display.
//
// It returns the provisional key that was replaced, if any.
func (s *Store) Upsert(m *chat.Message) (replacedKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID != "" {
		if e, ok := s.index[m.ID]; ok {
			e.msg = m
			// The confirmed entry was already inserted by the other
			// producer; a provisional twin that survived that insert is
			// redundant now.
			if match := s.findOptimisticLocked(m); match != nil {
				old := match.Key()
				if old != m.ID {
					replacedKey = old
					delete(s.states, old)
					if x, ok := s.index[old]; ok {
						delete(s.index, old)
						s.entries = slices.DeleteFunc(s.entries, func(y *entry) bool { return y == x })
					}
				}
			}
			s.sortLocked()
			return replacedKey
		}
		if match := s.findOptimisticLocked(m); match != nil {
			old := match.Key()
			e := s.index[old]
			delete(s.index, old)
			e.msg = m
			s.index[m.ID] = e
			// Migrate delivery state to the canonical key.
			if st, ok := s.states[old]; ok {
				delete(s.states, old)
				if _, exists := s.states[m.ID]; !exists {
					s.states[m.ID] = st
				}
			}
			s.sortLocked()
			return old
		}
	}

	if _, ok := s.index[m.Key()]; ok {
		return ""
	}
	s.appendLocked(m)
	s.sortLocked()
	return ""
}

// Remove hard-deletes a message and its delivery state. Unknown keys are
// ignored.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[key]
	if !ok {
		return
	}
	delete(s.index, key)
	delete(s.states, key)
	s.entries = slices.DeleteFunc(s.entries, func(x *entry) bool { return x == e })
}

// MarkDeleted soft-deletes a message: the body becomes the viewer-relative
// display text and attachments are cleared. Unknown ids are ignored.
func (s *Store) MarkDeleted(id, displayText string, deletedBy chat.SenderClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return
	}
	e.msg.Deleted = true
	e.msg.DeletedBy = deletedBy
	e.msg.Body = displayText
	e.msg.Attachments = nil
}

// RemoveAttachment filters one attachment out of one message. A no-op if
// either the message or the attachment is missing.
func (s *Store) RemoveAttachment(messageID, attachmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[messageID]
	if !ok {
		return
	}
	e.msg.Attachments = slices.DeleteFunc(e.msg.Attachments, func(a chat.Attachment) bool {
		return a.ID == attachmentID
	})
}

// MarkReadBy records that the given peer class has read the listed messages:
// the per-message read flag is set for display and the delivery state
// advances to read where the monotonicity rule allows.
func (s *Store) MarkReadBy(peer chat.SenderClass, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if e, ok := s.index[id]; ok {
			switch peer {
			case chat.SenderStaff:
				e.msg.ReadByStaff = true
			case chat.SenderGuest:
				e.msg.ReadByGuest = true
			}
		}
		s.advanceLocked(id, chat.StateRead)
	}
}

// SetState attempts a delivery state transition for a key, enforcing
// monotonicity. Returns true if the state changed. Keys without a recorded
// state start from pending.
func (s *Store) SetState(key string, to chat.DeliveryState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(key, to)
}

// InitState records the initial delivery state for a key, without
// monotonicity checks. Used when a brand-new entry enters the store.
func (s *Store) InitState(key string, st chat.DeliveryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = st
}

// State returns the delivery state recorded for a key, defaulting to pending.
func (s *Store) State(key string) chat.DeliveryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[key]; ok {
		return st
	}
	return chat.StatePending
}

// Get returns a copy of the message tracked under key.
func (s *Store) Get(key string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[key]
	if !ok {
		return chat.Message{}, false
	}
	return cloneMessage(e.msg), true
}

// SetHandler updates the conversation's current staff handler aggregate.
func (s *Store) SetHandler(h *chat.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Handler returns the current staff handler, if any.
func (s *Store) Handler() *chat.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handler == nil {
		return nil
	}
	h := *s.handler
	return &h
}

// Len returns the number of messages in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the ordered message list and the delivery-state
// map. Consumers only ever read snapshots; all mutation goes through the
// operation surface.
func (s *Store) Snapshot() ([]chat.Message, map[string]chat.DeliveryState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]chat.Message, len(s.entries))
	for i, e := range s.entries {
		msgs[i] = cloneMessage(e.msg)
	}
	states := make(map[string]chat.DeliveryState, len(s.states))
	for k, v := range s.states {
		states[k] = v
	}
	return msgs, states
}

func (s *Store) appendLocked(m *chat.Message) {
	e := &entry{msg: m, seq: s.seq}
	s.seq++
	s.entries = append(s.entries, e)
	s.index[m.Key()] = e
}

func (s *Store) advanceLocked(key string, to chat.DeliveryState) bool {
	from, ok := s.states[key]
	if !ok {
		from = chat.StatePending
	}
	if !chat.CanAdvance(from, to) {
		return false
	}
	s.states[key] = to
	return true
}

// sortLocked restores chronological order by CreatedAt. The sort is stable
// with arrival sequence as tie-break, so same-timestamp messages keep the
// order they arrived in.
func (s *Store) sortLocked() {
	slices.SortStableFunc(s.entries, func(a, b *entry) int {
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		return a.seq - b.seq
	})
}

func (s *Store) findOptimisticLocked(confirmed *chat.Message) *chat.Message {
	var candidates []*chat.Message
	for _, e := range s.entries {
		if e.msg.Optimistic {
			candidates = append(candidates, e.msg)
		}
	}
	return identity.FindMatch(confirmed, candidates)
}

func cloneMessage(m *chat.Message) chat.Message {
	out := *m
	out.Attachments = slices.Clone(m.Attachments)
	return out
}

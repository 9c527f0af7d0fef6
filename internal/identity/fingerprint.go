// Package identity derives per-message identity: the provisional local key a
// send is tracked under before the server assigns a canonical id, and the
// optimistic-match fingerprint used to reconcile a confirmed message against
// a still-pending optimistic one.
package identity

import (
	"strings"

	"github.com/google/uuid"
	"github.com/ostelo/deskchat/internal/chat"
)

// NewLocalKey generates a provisional client key. It is also sent to the
// gateway as an idempotency token and echoed back on the confirmed message,
// which makes reconciliation exact whenever the gateway supports it.
func NewLocalKey() string {
	return "local-" + uuid.NewString()
}

// Fingerprint is the heuristic identity of a message before its canonical id
// is known: sender class plus normalized body text.
type Fingerprint struct {
	Sender chat.SenderClass
	Body   string
}

// Of computes the fingerprint of a message.
func Of(m *chat.Message) Fingerprint {
	return Fingerprint{
		Sender: m.SenderClass,
		Body:   strings.TrimSpace(m.Body),
	}
}

// Matches reports whether a confirmed incoming message reconciles against a
// candidate optimistic entry.
//
// An exact client-key echo always wins. Otherwise the fingerprint heuristic
// applies: same sender class and equal normalized body, and for guest senders
// the guest refs must agree unless either side is missing. This is a
// heuristic, not a correctness guarantee: two identical-text sends from the
// same sender in the same instant may reconcile to the wrong entry, which is
// harmless because the rendered content is identical.
func Matches(confirmed, candidate *chat.Message) bool {
	if !candidate.Optimistic {
		return false
	}
	if confirmed.ClientKey != "" && candidate.LocalKey != "" {
		return confirmed.ClientKey == candidate.LocalKey
	}
	if Of(confirmed) != Of(candidate) {
		return false
	}
	if confirmed.SenderClass == chat.SenderGuest {
		if confirmed.SenderRef != "" && candidate.SenderRef != "" &&
			confirmed.SenderRef != candidate.SenderRef {
			return false
		}
	}
	return true
}

// FindMatch returns the optimistic entry a confirmed message reconciles to,
// or nil. First match wins; ties break by earliest CreatedAt among
// candidates.
func FindMatch(confirmed *chat.Message, candidates []*chat.Message) *chat.Message {
	var best *chat.Message
	for _, c := range candidates {
		if !Matches(confirmed, c) {
			continue
		}
		if best == nil || c.CreatedAt.Before(best.CreatedAt) {
			best = c
		}
	}
	return best
}

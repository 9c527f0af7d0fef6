// Package reply resolves the quoted-message relationship: given a message
// that replies to another, it produces the sender label and snippet to show
// in the reply preview, and the jump target for scroll-to-original.
package reply

import "github.com/ostelo/deskchat/internal/chat"

const snippetLimit = 80

// Lookup is the read surface the resolver needs from the message store.
type Lookup interface {
	Get(key string) (chat.Message, bool)
}

// Display is the rendered form of a reply reference.
type Display struct {
	SenderLabel string
	Snippet     string
	// Available reports whether the original message is in the currently
	// loaded window; when false the jump-to-original action is a no-op.
	Available bool
}

// Reference returns the canonical id a message replies to, or "" when the
// message is not a reply.
func Reference(m *chat.Message) string {
	return m.ReplyToID
}

// Resolve computes the reply preview for a message. When the original is not
// in the loaded window, it falls back to the sender-label metadata carried on
// the reply payload itself; with neither available the preview renders as an
// attachment-only fallback.
func Resolve(m *chat.Message, window Lookup) Display {
	if m.ReplyToID == "" {
		return Display{}
	}

	if orig, ok := window.Get(m.ReplyToID); ok {
		return Display{
			SenderLabel: senderLabel(&orig),
			Snippet:     truncate(orig.Body, snippetLimit),
			Available:   true,
		}
	}

	return Display{
		SenderLabel: m.ReplyToLabel,
		Snippet:     truncate(m.ReplyToSnippet, snippetLimit),
		Available:   false,
	}
}

func senderLabel(m *chat.Message) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	switch m.SenderClass {
	case chat.SenderStaff:
		return "Staff"
	case chat.SenderGuest:
		return "Guest"
	default:
		return "System"
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

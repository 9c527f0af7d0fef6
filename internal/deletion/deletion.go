// Package deletion implements the soft/hard delete policy: viewer-relative
// display text for soft-deleted messages and the local reconciliation rules
// for delete races.
package deletion

import "github.com/ostelo/deskchat/internal/chat"

// Generic is the fallback text used when no more specific phrasing applies,
// including the 404 already-gone reconciliation path.
const Generic = "Message deleted"

// DisplayText computes the viewer-relative text shown in place of a
// soft-deleted message. Backend-supplied smart text, when present on the
// event, takes precedence over this and is applied by the caller.
func DisplayText(deletedBy, originalSender chat.SenderClass, staffName string, isGuestViewer bool) string {
	if isGuestViewer {
		switch {
		case deletedBy == chat.SenderGuest && originalSender == chat.SenderGuest:
			return "You deleted this message"
		case deletedBy == chat.SenderStaff && originalSender == chat.SenderGuest:
			return "Message removed by staff"
		default:
			return Generic
		}
	}

	// Staff viewer.
	switch deletedBy {
	case chat.SenderGuest:
		return "Message deleted by guest"
	case chat.SenderStaff:
		if staffName != "" {
			return "Message deleted by " + staffName
		}
		return Generic
	default:
		return Generic
	}
}

// Resolve picks the text to apply for a deletion: the server-computed text
// when the event carries one, the contextual local text otherwise.
func Resolve(serverText string, deletedBy, originalSender chat.SenderClass, staffName string, isGuestViewer bool) string {
	if serverText != "" {
		return serverText
	}
	return DisplayText(deletedBy, originalSender, staffName, isGuestViewer)
}

package chat

// EventKind enumerates the closed set of push event variants the engine
// understands. Anything else coming off the wire is dropped by the decoder.
type EventKind string

const (
	EventMessageCreated    EventKind = "message.created"
	EventMessageDelivered  EventKind = "message.delivered"
	EventReadByStaff       EventKind = "messages.read_by_staff"
	EventReadByGuest       EventKind = "messages.read_by_guest"
	EventMessageDeleted    EventKind = "message.deleted"
	EventMessageRemoved    EventKind = "message.removed"
	EventAttachmentDeleted EventKind = "attachment.deleted"
	EventStaffAssigned     EventKind = "staff.assigned"
)

// Event is a decoded push event, already normalized: only the fields relevant
// to its Kind are populated. message.removed is a wire alias of
// message.deleted and both reconcile identically.
type Event struct {
	Kind           EventKind
	ConversationID string

	// message.created
	Message *Message

	// message.delivered, message.deleted, attachment.deleted
	MessageID string

	// messages.read_by_*
	MessageIDs []string

	// attachment.deleted
	AttachmentID string

	// message.deleted: who deleted it, and optional server-computed
	// display text that overrides the locally derived one.
	DeletedBy     SenderClass
	DeletedByName string
	DisplayText   string

	// staff.assigned
	Handler *Handler
}

package chat

import "time"

// SenderClass identifies which side of the conversation authored a message.
type SenderClass string

const (
	SenderStaff  SenderClass = "staff"
	SenderGuest  SenderClass = "guest"
	SenderSystem SenderClass = "system"
)

// Attachment describes one file attached to a message.
type Attachment struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Kind string `json:"kind"`
	Size int64  `json:"size"`
}

// Message is the unit of conversation content.
//
// ID is the canonical server-assigned identifier and is empty while the
// message is still optimistic; LocalKey is the client-generated provisional
// key used until reconciliation. LocalKey doubles as the idempotency token
// sent to the gateway, which echoes it back as ClientKey on the confirmed
// message.
type Message struct {
	ID             string       `json:"id"`
	LocalKey       string       `json:"-"`
	ClientKey      string       `json:"client_key,omitempty"`
	ConversationID string       `json:"conversation_id"`
	SenderClass    SenderClass  `json:"sender_class"`
	SenderRef      string       `json:"sender_ref,omitempty"`
	SenderName     string       `json:"sender_name,omitempty"`
	Body           string       `json:"body"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReplyToID      string       `json:"reply_to_id,omitempty"`
	ReplyToLabel   string       `json:"reply_to_label,omitempty"`
	ReplyToSnippet string       `json:"reply_to_snippet,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	Deleted        bool         `json:"deleted,omitempty"`
	DeletedBy      SenderClass  `json:"deleted_by,omitempty"`
	Optimistic     bool         `json:"-"`
	ReadByStaff    bool         `json:"read_by_staff,omitempty"`
	ReadByGuest    bool         `json:"read_by_guest,omitempty"`
}

// Key returns the identity under which the message is tracked: the canonical
// ID once known, the provisional LocalKey before that.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalKey
}

// Handler is the staff member currently assigned to a conversation.
type Handler struct {
	StaffID   string
	StaffName string
}

// Context carries the viewer identity an engine operation runs under.
// It is passed explicitly instead of read from ambient globals.
type Context struct {
	ConversationID string
	ViewerRole     SenderClass
	ViewerRef      string
	ViewerName     string
	Credential     string
}

// IsGuestViewer reports whether the operating viewer is on the guest side.
func (c Context) IsGuestViewer() bool {
	return c.ViewerRole == SenderGuest
}

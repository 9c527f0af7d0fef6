package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ostelo/deskchat/internal/chat"
)

// ErrMalformed marks a push frame that is structurally invalid or missing a
// required field. Such frames are logged and dropped: the push channel has no
// replay or dead-letter mechanism, so failing loudly would only crash the
// consumer for no benefit.
var ErrMalformed = errors.New("push: malformed event")

// ErrUnknownKind marks a frame whose event name is outside the closed union.
var ErrUnknownKind = errors.New("push: unknown event kind")

// frame is the wire envelope of a push event.
type frame struct {
	Event          string          `json:"event"`
	Channel        string          `json:"channel"`
	ConversationID string          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
}

type messageRefData struct {
	MessageID string `json:"message_id"`
}

type readData struct {
	MessageIDs []string `json:"message_ids"`
}

type deletedData struct {
	MessageID     string           `json:"message_id"`
	DeletedBy     chat.SenderClass `json:"deleted_by"`
	DeletedByName string           `json:"deleted_by_name"`
	DisplayText   string           `json:"display_text"`
}

type attachmentData struct {
	MessageID    string `json:"message_id"`
	AttachmentID string `json:"attachment_id"`
}

type staffAssignedData struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
}

// Decode normalizes a raw push frame into a typed event. message.removed is
// decoded as message.deleted; both names are bound to the same handling.
func Decode(raw []byte) (*chat.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	evt := &chat.Event{
		Kind:           chat.EventKind(f.Event),
		ConversationID: f.ConversationID,
	}

	switch chat.EventKind(f.Event) {
	case chat.EventMessageCreated:
		var m chat.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return nil, fmt.Errorf("%w: message.created: %v", ErrMalformed, err)
		}
		if m.ID == "" {
			return nil, fmt.Errorf("%w: message.created without id", ErrMalformed)
		}
		evt.Message = &m

	case chat.EventMessageDelivered:
		var d messageRefData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.MessageID == "" {
			return nil, fmt.Errorf("%w: message.delivered without message_id", ErrMalformed)
		}
		evt.MessageID = d.MessageID

	case chat.EventReadByStaff, chat.EventReadByGuest:
		var d readData
		if err := json.Unmarshal(f.Data, &d); err != nil || len(d.MessageIDs) == 0 {
			return nil, fmt.Errorf("%w: %s without message_ids", ErrMalformed, f.Event)
		}
		evt.MessageIDs = d.MessageIDs

	case chat.EventMessageDeleted, chat.EventMessageRemoved:
		var d deletedData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.MessageID == "" {
			return nil, fmt.Errorf("%w: %s without message_id", ErrMalformed, f.Event)
		}
		evt.Kind = chat.EventMessageDeleted
		evt.MessageID = d.MessageID
		evt.DeletedBy = d.DeletedBy
		evt.DeletedByName = d.DeletedByName
		evt.DisplayText = d.DisplayText

	case chat.EventAttachmentDeleted:
		var d attachmentData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.MessageID == "" || d.AttachmentID == "" {
			return nil, fmt.Errorf("%w: attachment.deleted missing ids", ErrMalformed)
		}
		evt.MessageID = d.MessageID
		evt.AttachmentID = d.AttachmentID

	case chat.EventStaffAssigned:
		var d staffAssignedData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.StaffID == "" {
			return nil, fmt.Errorf("%w: staff.assigned without staff_id", ErrMalformed)
		}
		evt.Handler = &chat.Handler{StaffID: d.StaffID, StaffName: d.StaffName}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
	}

	return evt, nil
}

package push

import (
	"errors"
	"testing"

	"github.com/ostelo/deskchat/internal/chat"
)

func TestDecodeMessageCreated(t *testing.T) {
	raw := []byte(`{
		"event": "message.created",
		"channel": "conversation.c1",
		"conversation_id": "c1",
		"data": {
			"id": "55",
			"conversation_id": "c1",
			"sender_class": "guest",
			"body": "Hi",
			"created_at": "2026-03-01T12:00:00Z"
		}
	}`)

	evt, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if evt.Kind != chat.EventMessageCreated {
		t.Errorf("Kind = %s", evt.Kind)
	}
	if evt.Message == nil || evt.Message.ID != "55" || evt.Message.SenderClass != chat.SenderGuest {
		t.Errorf("Message = %+v", evt.Message)
	}
}

func TestDecodeRemovedAliasesDeleted(t *testing.T) {
	for _, name := range []string{"message.deleted", "message.removed"} {
		raw := []byte(`{"event":"` + name + `","conversation_id":"c1","data":{"message_id":"9","deleted_by":"staff","display_text":""}}`)
		evt, err := Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%s) error = %v", name, err)
		}
		if evt.Kind != chat.EventMessageDeleted {
			t.Errorf("Decode(%s).Kind = %s, want message.deleted", name, evt.Kind)
		}
		if evt.MessageID != "9" || evt.DeletedBy != chat.SenderStaff {
			t.Errorf("Decode(%s) = %+v", name, evt)
		}
	}
}

func TestDecodeReadEvents(t *testing.T) {
	raw := []byte(`{"event":"messages.read_by_staff","conversation_id":"c1","data":{"message_ids":["1","2"]}}`)
	evt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Kind != chat.EventReadByStaff || len(evt.MessageIDs) != 2 {
		t.Errorf("evt = %+v", evt)
	}
}

func TestDecodeAttachmentDeleted(t *testing.T) {
	raw := []byte(`{"event":"attachment.deleted","conversation_id":"c1","data":{"message_id":"9","attachment_id":"att-1"}}`)
	evt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if evt.MessageID != "9" || evt.AttachmentID != "att-1" {
		t.Errorf("evt = %+v", evt)
	}
}

func TestDecodeStaffAssigned(t *testing.T) {
	raw := []byte(`{"event":"staff.assigned","conversation_id":"c1","data":{"staff_id":"st-1","staff_name":"Ana"}}`)
	evt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if evt.Handler == nil || evt.Handler.StaffName != "Ana" {
		t.Errorf("evt = %+v", evt)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"deletion without message_id", `{"event":"message.deleted","data":{}}`},
		{"created without id", `{"event":"message.created","data":{"body":"x"}}`},
		{"delivered without message_id", `{"event":"message.delivered","data":{}}`},
		{"read without ids", `{"event":"messages.read_by_guest","data":{"message_ids":[]}}`},
		{"attachment missing id", `{"event":"attachment.deleted","data":{"message_id":"9"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"event":"trivia.answered","data":{}}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

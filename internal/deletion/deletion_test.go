package deletion

import (
	"testing"

	"github.com/ostelo/deskchat/internal/chat"
)

func TestDisplayText(t *testing.T) {
	tests := []struct {
		name           string
		deletedBy      chat.SenderClass
		originalSender chat.SenderClass
		staffName      string
		guestViewer    bool
		want           string
	}{
		{"guest deleted own, guest view", chat.SenderGuest, chat.SenderGuest, "", true, "You deleted this message"},
		{"staff deleted guest's, guest view", chat.SenderStaff, chat.SenderGuest, "Ana", true, "Message removed by staff"},
		{"staff deleted own, guest view", chat.SenderStaff, chat.SenderStaff, "Ana", true, "Message deleted"},
		{"guest deleted own, staff view", chat.SenderGuest, chat.SenderGuest, "", false, "Message deleted by guest"},
		{"staff deleted, staff view, named", chat.SenderStaff, chat.SenderGuest, "Ana", false, "Message deleted by Ana"},
		{"staff deleted, staff view, unnamed", chat.SenderStaff, chat.SenderStaff, "", false, "Message deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DisplayText(tt.deletedBy, tt.originalSender, tt.staffName, tt.guestViewer)
			if got != tt.want {
				t.Errorf("DisplayText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvePrefersServerText(t *testing.T) {
	got := Resolve("This file was removed", chat.SenderStaff, chat.SenderGuest, "Ana", true)
	if got != "This file was removed" {
		t.Errorf("Resolve() = %q, want the server-supplied text", got)
	}
}

func TestResolveFallsBackToLocalText(t *testing.T) {
	got := Resolve("", chat.SenderStaff, chat.SenderGuest, "Ana", true)
	if got != "Message removed by staff" {
		t.Errorf("Resolve() = %q, want contextual local text", got)
	}
}

package store

import (
	"testing"
	"time"

	"github.com/ostelo/deskchat/internal/chat"
)

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestUpsertAppendsAndDeduplicates(t *testing.T) {
	s := New("c1")

	m := &chat.Message{ID: "9", ConversationID: "c1", SenderClass: chat.SenderStaff, Body: "hello", CreatedAt: ts(1)}
	s.Upsert(m)
	// Same id arriving on a second delivery channel.
	dup := *m
	s.Upsert(&dup)

	if s.Len() != 1 {
		t.Fatalf("got %d messages, want 1 after duplicate upsert", s.Len())
	}
}

func TestUpsertDropsStrandedProvisionalOnIDReplace(t *testing.T) {
	s := New("c1")

	// The push copy landed first but carried neither token nor a matching
	// fingerprint, so the provisional entry survived it.
	s.Upsert(&chat.Message{LocalKey: "local-1", ClientKey: "local-1", SenderClass: chat.SenderGuest,
		Body: "Hi!", Optimistic: true, CreatedAt: ts(1)})
	s.InitState("local-1", chat.StatePending)
	s.Upsert(&chat.Message{ID: "55", SenderClass: chat.SenderGuest, Body: "Hi", CreatedAt: ts(2)})
	if s.Len() != 2 {
		t.Fatalf("precondition: got %d messages, want 2", s.Len())
	}

	// The REST response carries the echoed token, resolving the pair.
	replaced := s.Upsert(&chat.Message{ID: "55", ClientKey: "local-1", SenderClass: chat.SenderGuest,
		Body: "Hi", CreatedAt: ts(2)})

	if replaced != "local-1" {
		t.Errorf("replaced key = %q, want local-1", replaced)
	}
	if s.Len() != 1 {
		t.Fatalf("got %d messages, want 1 (converged)", s.Len())
	}
	if _, ok := s.Get("local-1"); ok {
		t.Error("provisional entry still present")
	}
}

func TestUpsertReplacesOptimisticMatch(t *testing.T) {
	s := New("c1")

	opt := &chat.Message{LocalKey: "local-1", SenderClass: chat.SenderGuest, Body: "Hi", Optimistic: true, CreatedAt: ts(1)}
	s.Upsert(opt)
	s.InitState("local-1", chat.StatePending)

	confirmed := &chat.Message{ID: "55", SenderClass: chat.SenderGuest, Body: "Hi", CreatedAt: ts(2)}
	replaced := s.Upsert(confirmed)

	if replaced != "local-1" {
		t.Errorf("replaced key = %q, want local-1", replaced)
	}
	if s.Len() != 1 {
		t.Fatalf("got %d messages, want 1 (converged)", s.Len())
	}
	got, ok := s.Get("55")
	if !ok {
		t.Fatal("confirmed message not reachable by canonical id")
	}
	if got.Optimistic {
		t.Error("replacement carried over the optimistic flag")
	}
	if _, ok := s.Get("local-1"); ok {
		t.Error("provisional key still resolves after reconciliation")
	}
	// Delivery state migrated to the canonical key.
	if st := s.State("55"); st != chat.StatePending {
		t.Errorf("state = %s, want pending carried over", st)
	}
}

func TestUpsertNoMatchAppends(t *testing.T) {
	s := New("c1")

	opt := &chat.Message{LocalKey: "local-1", SenderClass: chat.SenderGuest, Body: "Hi", Optimistic: true, CreatedAt: ts(1)}
	s.Upsert(opt)

	other := &chat.Message{ID: "70", SenderClass: chat.SenderStaff, Body: "Welcome!", CreatedAt: ts(2)}
	s.Upsert(other)

	if s.Len() != 2 {
		t.Fatalf("got %d messages, want 2", s.Len())
	}
}

func TestOrderingAfterMixedMerge(t *testing.T) {
	s := New("c1")

	// Timestamps arrive as [3,1,2] via a mixed optimistic+event sequence.
	s.Upsert(&chat.Message{ID: "a", Body: "third", CreatedAt: ts(3)})
	s.Upsert(&chat.Message{LocalKey: "l1", Body: "first", Optimistic: true, CreatedAt: ts(1)})
	s.Upsert(&chat.Message{ID: "b", Body: "second", CreatedAt: ts(2)})

	msgs, _ := s.Snapshot()
	var got []string
	for _, m := range msgs {
		got = append(got, m.Body)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestOrderingStableOnTies(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "a", Body: "one", CreatedAt: ts(1)})
	s.Upsert(&chat.Message{ID: "b", Body: "two", CreatedAt: ts(1)})

	msgs, _ := s.Snapshot()
	if msgs[0].ID != "a" || msgs[1].ID != "b" {
		t.Errorf("tie order = [%s %s], want arrival order [a b]", msgs[0].ID, msgs[1].ID)
	}
}

func TestSeedPreservesArrivalOrder(t *testing.T) {
	s := New("c1")
	s.Seed([]*chat.Message{
		{ID: "1", CreatedAt: ts(1)},
		{ID: "2", CreatedAt: ts(2)},
		{ID: "1", CreatedAt: ts(1)}, // duplicate page overlap
	})
	if s.Len() != 2 {
		t.Errorf("got %d messages, want 2 after seeding with overlap", s.Len())
	}
}

func TestMarkDeletedClearsAttachments(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "9", Body: "photo", CreatedAt: ts(1), Attachments: []chat.Attachment{{ID: "att-1", URL: "u", Kind: "image"}}})

	s.MarkDeleted("9", "Message deleted", chat.SenderStaff)

	got, _ := s.Get("9")
	if !got.Deleted {
		t.Error("message not marked deleted")
	}
	if got.Body != "Message deleted" {
		t.Errorf("body = %q, want display text", got.Body)
	}
	if len(got.Attachments) != 0 {
		t.Errorf("attachments = %d, want 0 after soft delete", len(got.Attachments))
	}
}

func TestMarkDeletedUnknownIDIsNoOp(t *testing.T) {
	s := New("c1")
	s.MarkDeleted("ghost", "x", chat.SenderStaff) // must not panic
	s.Remove("ghost")
	s.RemoveAttachment("ghost", "att")
	if s.Len() != 0 {
		t.Error("no-op operations changed the store")
	}
}

func TestRemoveHardDeletes(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "9", CreatedAt: ts(1)})
	s.InitState("9", chat.StateDelivered)

	s.Remove("9")

	if s.Len() != 0 {
		t.Error("message still present after Remove")
	}
	if _, states := s.Snapshot(); len(states) != 0 {
		t.Error("delivery state leaked after Remove")
	}
}

func TestRemoveAttachment(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "9", CreatedAt: ts(1), Attachments: []chat.Attachment{
		{ID: "att-1"}, {ID: "att-2"},
	}})

	s.RemoveAttachment("9", "att-1")

	got, _ := s.Get("9")
	if len(got.Attachments) != 1 || got.Attachments[0].ID != "att-2" {
		t.Errorf("attachments = %+v, want only att-2", got.Attachments)
	}
}

func TestStateMonotonic(t *testing.T) {
	s := New("c1")
	s.InitState("9", chat.StatePending)

	if !s.SetState("9", chat.StateDelivered) {
		t.Error("pending→delivered rejected")
	}
	if !s.SetState("9", chat.StateRead) {
		t.Error("delivered→read rejected")
	}
	if s.SetState("9", chat.StateDelivered) {
		t.Error("read→delivered accepted; status must be monotonic")
	}
	if st := s.State("9"); st != chat.StateRead {
		t.Errorf("state = %s, want read", st)
	}
}

func TestMarkReadBySetsFlagsAndState(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "9", CreatedAt: ts(1)})
	s.InitState("9", chat.StateDelivered)

	s.MarkReadBy(chat.SenderStaff, []string{"9", "missing"})
	// Replay must be a no-op the second time.
	s.MarkReadBy(chat.SenderStaff, []string{"9"})

	got, _ := s.Get("9")
	if !got.ReadByStaff {
		t.Error("ReadByStaff flag not set")
	}
	if st := s.State("9"); st != chat.StateRead {
		t.Errorf("state = %s, want read", st)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New("c1")
	s.Upsert(&chat.Message{ID: "9", Body: "orig", CreatedAt: ts(1), Attachments: []chat.Attachment{{ID: "a"}}})

	msgs, _ := s.Snapshot()
	msgs[0].Body = "mutated"
	msgs[0].Attachments[0].ID = "mutated"

	got, _ := s.Get("9")
	if got.Body != "orig" || got.Attachments[0].ID != "a" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestHandlerAggregate(t *testing.T) {
	s := New("c1")
	if s.Handler() != nil {
		t.Error("handler should start nil")
	}
	s.SetHandler(&chat.Handler{StaffID: "st-1", StaffName: "Ana"})
	h := s.Handler()
	if h == nil || h.StaffName != "Ana" {
		t.Errorf("handler = %+v, want Ana", h)
	}
}

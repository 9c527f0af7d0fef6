package send

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ostelo/deskchat/internal/bus"
	"github.com/ostelo/deskchat/internal/cache"
	"github.com/ostelo/deskchat/internal/chat"
	"github.com/ostelo/deskchat/internal/gateway"
	"github.com/ostelo/deskchat/internal/store"
	"go.uber.org/zap"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	mu    sync.Mutex
	calls []gateway.SendRequest
	err   error
	delay time.Duration
	reply func(req gateway.SendRequest) *chat.Message
}

func (m *mockSender) SendMessage(_ context.Context, _ chat.Context, req gateway.SendRequest) (*chat.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.reply != nil {
		return m.reply(req), nil
	}
	return &chat.Message{
		ID:          "srv-1",
		ClientKey:   req.ClientKey,
		Body:        req.Body,
		SenderClass: chat.SenderGuest,
		CreatedAt:   time.Now(),
	}, nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testOutbox(t *testing.T) *cache.DB {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func guestCtx() chat.Context {
	return chat.Context{ConversationID: "c1", ViewerRole: chat.SenderGuest, ViewerRef: "g-1"}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for condition")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSendOptimisticInsert(t *testing.T) {
	s := store.New("c1")
	mock := &mockSender{delay: 300 * time.Millisecond}
	c := NewController(s, mock, testOutbox(t), bus.New(), guestCtx(), zap.NewNop())

	key := c.Send(context.Background(), "hello", nil, "")

	// Visible immediately, before the network write completes.
	msg, ok := s.Get(key)
	if !ok {
		t.Fatal("provisional message not in store")
	}
	if !msg.Optimistic || msg.Body != "hello" {
		t.Errorf("provisional = %+v", msg)
	}
	if st := s.State(key); st != chat.StatePending {
		t.Errorf("state = %s, want pending", st)
	}

	waitFor(t, func() bool { return s.State("srv-1") == chat.StateDelivered })
	if s.Len() != 1 {
		t.Errorf("got %d messages, want 1 after convergence", s.Len())
	}
}

func TestSendFailureRetained(t *testing.T) {
	s := store.New("c1")
	b := bus.New()
	mock := &mockSender{err: errors.New("status 500")}
	c := NewController(s, mock, testOutbox(t), b, guestCtx(), zap.NewNop())

	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	key := c.Send(context.Background(), "will-fail", nil, "")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for send_failed")
	}

	if st := s.State(key); st != chat.StateFailed {
		t.Errorf("state = %s, want failed", st)
	}
	if _, ok := s.Get(key); !ok {
		t.Error("failed message removed; must be retained for retry")
	}
}

func TestRetryProducesFreshPendingEntry(t *testing.T) {
	s := store.New("c1")
	outbox := testOutbox(t)
	mock := &mockSender{err: errors.New("status 500")}
	c := NewController(s, mock, outbox, bus.New(), guestCtx(), zap.NewNop())

	key := c.Send(context.Background(), "hello", nil, "")
	waitFor(t, func() bool { return s.State(key) == chat.StateFailed })

	mock.mu.Lock()
	mock.err = nil
	mock.mu.Unlock()

	newKey, err := c.Retry(context.Background(), key)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if newKey == key {
		t.Error("retry reused the failed local key")
	}
	if _, ok := s.Get(key); ok {
		t.Error("failed entry still present after retry")
	}

	msg, ok := s.Get(newKey)
	if !ok {
		waitFor(t, func() bool { _, ok := s.Get("srv-1"); return ok })
		msg, _ = s.Get("srv-1")
	}
	if msg.Body != "hello" {
		t.Errorf("retried body = %q, want identical content", msg.Body)
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	s := store.New("c1")
	c := NewController(s, &mockSender{delay: time.Second}, testOutbox(t), bus.New(), guestCtx(), zap.NewNop())

	key := c.Send(context.Background(), "in flight", nil, "")
	if _, err := c.Retry(context.Background(), key); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Retry on pending = %v, want ErrNotRetryable", err)
	}
	if _, err := c.Retry(context.Background(), "ghost"); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Retry on unknown = %v, want ErrNotRetryable", err)
	}
}

func TestPushBeatsRest(t *testing.T) {
	s := store.New("c1")
	release := make(chan struct{})
	mock := &mockSender{reply: func(req gateway.SendRequest) *chat.Message {
		<-release
		return &chat.Message{ID: "55", ClientKey: req.ClientKey, Body: req.Body, SenderClass: chat.SenderGuest, CreatedAt: time.Now()}
	}}
	c := NewController(s, mock, testOutbox(t), bus.New(), guestCtx(), zap.NewNop())

	key := c.Send(context.Background(), "Hi", nil, "")
	waitFor(t, func() bool { return mock.callCount() == 1 })

	// The push event for the confirmed message lands first.
	s.Upsert(&chat.Message{ID: "55", ClientKey: key, Body: "Hi", SenderClass: chat.SenderGuest, CreatedAt: time.Now()})

	// Now the REST response resolves.
	close(release)
	waitFor(t, func() bool { return s.State("55") == chat.StateDelivered })

	if s.Len() != 1 {
		t.Fatalf("got %d messages, want exactly one final entry", s.Len())
	}
	if _, ok := s.Get(key); ok {
		t.Error("provisional entry survived convergence")
	}
}

func TestSendWritesThroughOutbox(t *testing.T) {
	s := store.New("c1")
	outbox := testOutbox(t)
	c := NewController(s, &mockSender{}, outbox, bus.New(), guestCtx(), zap.NewNop())

	key := c.Send(context.Background(), "durable", nil, "")
	waitFor(t, func() bool { _, ok := s.Get("srv-1"); return ok })

	var status, serverID string
	if err := outbox.QueryRow(`SELECT status, server_msg_id FROM outbox WHERE client_key = ?`, key).Scan(&status, &serverID); err != nil {
		t.Fatal(err)
	}
	if status != "sent" || serverID != "srv-1" {
		t.Errorf("outbox status=%q server=%q", status, serverID)
	}
}

func TestResumeReissuesQueuedSends(t *testing.T) {
	s := store.New("c1")
	outbox := testOutbox(t)
	if err := outbox.Queue(&cache.OutboxEntry{ClientKey: "local-old", ConversationID: "c1", Body: "stranded"}); err != nil {
		t.Fatal(err)
	}
	// An entry for another conversation must be left alone.
	if err := outbox.Queue(&cache.OutboxEntry{ClientKey: "local-other", ConversationID: "c2", Body: "elsewhere"}); err != nil {
		t.Fatal(err)
	}

	mock := &mockSender{}
	c := NewController(s, mock, outbox, bus.New(), guestCtx(), zap.NewNop())

	c.Resume(context.Background())
	waitFor(t, func() bool { return mock.callCount() == 1 })

	mock.mu.Lock()
	sent := mock.calls[0]
	mock.mu.Unlock()
	if sent.Body != "stranded" || sent.ClientKey != "local-old" {
		t.Errorf("resumed send = %+v", sent)
	}
}

package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solochat/internal/derive"
	"solochat/internal/models"
	"solochat/internal/storage"
)

// stubProvider returns a scripted reply, optionally waiting on gate so
// tests can observe the pending state.
type stubProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	gate  chan struct{}
}

func (p *stubProvider) Respond(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	gate := p.gate
	reply, err := p.reply, p.err
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func newTestStore(t *testing.T, prov *stubProvider) (*Store, *storage.MemoryArchive) {
	t.Helper()
	archive := storage.NewMemoryArchive()
	s := New(archive, prov)
	t.Cleanup(s.Close)
	return s, archive
}

func waitReply(t *testing.T, res *SendResult) (*models.Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-res.Reply:
		return msg, ok
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reply")
		return nil, false
	}
}

func TestSendCreatesConversationAndResolvesReply(t *testing.T) {
	prov := &stubProvider{reply: "Hello! How can I help?", gate: make(chan struct{})}
	s, _ := newTestStore(t, prov)

	res, err := s.Send(context.Background(), "Hi there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.UserMessage.Role != models.RoleUser || res.UserMessage.Content != "Hi there" {
		t.Fatalf("unexpected user message: %#v", res.UserMessage)
	}

	conv := s.Get(res.ConversationID)
	if conv == nil {
		t.Fatalf("conversation not created")
	}
	if conv.Title != "Hi there" {
		t.Fatalf("title = %q, want %q", conv.Title, "Hi there")
	}
	if len(conv.Messages) != 1 {
		t.Fatalf("message count before reply = %d", len(conv.Messages))
	}
	if !s.Pending(res.ConversationID) {
		t.Fatalf("conversation should be pending")
	}
	if s.ActiveID() != res.ConversationID {
		t.Fatalf("new conversation should be active")
	}

	close(prov.gate)
	msg, ok := waitReply(t, res)
	if !ok || msg == nil {
		t.Fatalf("expected assistant reply")
	}
	if msg.Role != models.RoleAssistant || msg.Content == "" {
		t.Fatalf("unexpected assistant message: %#v", msg)
	}

	conv = s.Get(res.ConversationID)
	if len(conv.Messages) != 2 {
		t.Fatalf("message count after reply = %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != models.RoleUser || conv.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("messages out of order: %#v", conv.Messages)
	}
	if s.Pending(res.ConversationID) {
		t.Fatalf("pending flag stuck after reply")
	}
}

func TestSendBlankContentIsNoop(t *testing.T) {
	s, _ := newTestStore(t, &stubProvider{reply: "hi"})

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(context.Background(), content); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("Send(%q) err = %v, want ErrEmptyMessage", content, err)
		}
	}
	if n := len(s.List()); n != 0 {
		t.Fatalf("blank send created %d conversations", n)
	}
	if s.ActiveID() != "" {
		t.Fatalf("blank send set active id %q", s.ActiveID())
	}
}

func TestSendAppendsAcrossExchanges(t *testing.T) {
	prov := &stubProvider{reply: "first reply"}
	s, _ := newTestStore(t, prov)

	res1, err := s.Send(context.Background(), "question one?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitReply(t, res1)

	prov.mu.Lock()
	prov.reply = "second reply"
	prov.mu.Unlock()

	res2, err := s.Send(context.Background(), "question two")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	waitReply(t, res2)

	if res1.ConversationID != res2.ConversationID {
		t.Fatalf("second send switched conversations")
	}
	conv := s.Get(res1.ConversationID)
	if len(conv.Messages) != 4 {
		t.Fatalf("message count = %d, want 4", len(conv.Messages))
	}
	wantRoles := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser, models.RoleAssistant}
	for i, m := range conv.Messages {
		if m.Role != wantRoles[i] {
			t.Fatalf("message %d role = %s, want %s", i, m.Role, wantRoles[i])
		}
		if i > 0 && m.CreatedAt.Before(conv.Messages[i-1].CreatedAt) {
			t.Fatalf("timestamps not monotonic at message %d", i)
		}
	}
	// Title stays pinned to the first message.
	if conv.Title != "question one" {
		t.Fatalf("title = %q", conv.Title)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Fatalf("updated_at precedes created_at")
	}
}

func TestSecondSendRejectedWhilePending(t *testing.T) {
	prov := &stubProvider{reply: "slow reply", gate: make(chan struct{})}
	s, _ := newTestStore(t, prov)

	res, err := s.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrReplyPending) {
		t.Fatalf("second send err = %v, want ErrReplyPending", err)
	}

	close(prov.gate)
	waitReply(t, res)

	conv := s.Get(res.ConversationID)
	if len(conv.Messages) != 2 {
		t.Fatalf("rejected send leaked messages: %d", len(conv.Messages))
	}
}

func TestSelect(t *testing.T) {
	s, _ := newTestStore(t, &stubProvider{reply: "hi"})
	first := s.Create()
	second := s.Create()
	if s.ActiveID() != second {
		t.Fatalf("create should activate the new conversation")
	}

	s.Select(first)
	if s.ActiveID() != first {
		t.Fatalf("select did not switch to %s", first)
	}

	// Unknown ids leave the selection untouched.
	s.Select("nonexistent")
	if s.ActiveID() != first {
		t.Fatalf("select of unknown id changed active to %q", s.ActiveID())
	}
}

func TestDeselect(t *testing.T) {
	s, _ := newTestStore(t, &stubProvider{reply: "hi"})
	id := s.Create()
	s.Deselect()
	if s.ActiveID() != "" {
		t.Fatalf("deselect left active id %q", s.ActiveID())
	}
	if s.Get(id) == nil {
		t.Fatalf("deselect deleted the conversation")
	}
	if s.Active() != nil {
		t.Fatalf("active conversation should be nil after deselect")
	}
}

func TestDeleteReassignsActive(t *testing.T) {
	s, _ := newTestStore(t, &stubProvider{reply: "hi"})
	a := s.Create()
	b := s.Create() // display order: [b, a], b active

	s.Select(a)
	s.Delete(a)
	if s.ActiveID() != b {
		t.Fatalf("active = %q, want %q", s.ActiveID(), b)
	}

	s.Delete(b)
	if s.ActiveID() != "" {
		t.Fatalf("active = %q after last delete, want none", s.ActiveID())
	}
	if n := len(s.List()); n != 0 {
		t.Fatalf("%d conversations remain", n)
	}

	// Deleting an unknown id is a no-op.
	s.Delete("nonexistent")
}

func TestDeleteKeepsInactiveSelection(t *testing.T) {
	s, _ := newTestStore(t, &stubProvider{reply: "hi"})
	a := s.Create()
	b := s.Create()
	s.Select(b)
	s.Delete(a)
	if s.ActiveID() != b {
		t.Fatalf("deleting an inactive conversation moved the pointer")
	}
}

func TestDeleteDuringPendingDiscardsReply(t *testing.T) {
	prov := &stubProvider{reply: "late reply", gate: make(chan struct{})}
	s, _ := newTestStore(t, prov)

	res, err := s.Send(context.Background(), "delete me")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	s.Delete(res.ConversationID)
	close(prov.gate)

	if msg, ok := waitReply(t, res); ok {
		t.Fatalf("reply should be discarded, got %#v", msg)
	}
	if s.Get(res.ConversationID) != nil {
		t.Fatalf("deleted conversation resurrected")
	}
	if len(s.List()) != 0 {
		t.Fatalf("collection not empty after delete")
	}
	if s.Pending(res.ConversationID) {
		t.Fatalf("pending flag stuck for deleted conversation")
	}
}

func TestProviderFailureAppendsFallback(t *testing.T) {
	prov := &stubProvider{err: errors.New("upstream timeout")}
	s, _ := newTestStore(t, prov)

	res, err := s.Send(context.Background(), "hello?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, ok := waitReply(t, res)
	if !ok {
		t.Fatalf("expected fallback assistant message")
	}
	if msg.Content != failureReply {
		t.Fatalf("fallback content = %q", msg.Content)
	}
	if s.Pending(res.ConversationID) {
		t.Fatalf("pending flag stuck after provider failure")
	}
	conv := s.Get(res.ConversationID)
	if len(conv.Messages) != 2 || conv.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("fallback not appended: %#v", conv.Messages)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	archive := storage.NewMemoryArchive()
	prov := &stubProvider{reply: "persisted reply"}

	s := New(archive, prov)
	res, err := s.Send(context.Background(), "remember this")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitReply(t, res)
	extra := s.Create()
	s.Select(res.ConversationID)
	before := s.List()
	s.Close()

	reloaded := New(archive, prov)
	defer reloaded.Close()

	after := reloaded.List()
	if len(after) != len(before) {
		t.Fatalf("conversation count = %d, want %d", len(after), len(before))
	}
	for i := range before {
		want, got := before[i], after[i]
		if got.ID != want.ID || got.Title != want.Title {
			t.Fatalf("conversation %d mismatch: %#v", i, got)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
			t.Fatalf("conversation %d timestamps drifted", i)
		}
		if len(got.Messages) != len(want.Messages) {
			t.Fatalf("conversation %d message count mismatch", i)
		}
		for j := range want.Messages {
			wm, gm := want.Messages[j], got.Messages[j]
			if gm.ID != wm.ID || gm.Role != wm.Role || gm.Content != wm.Content || !gm.CreatedAt.Equal(wm.CreatedAt) {
				t.Fatalf("message %d/%d drifted: %#v", i, j, gm)
			}
		}
	}
	if reloaded.ActiveID() != res.ConversationID {
		t.Fatalf("active id not restored, got %q", reloaded.ActiveID())
	}
	if reloaded.Get(extra) == nil {
		t.Fatalf("empty conversation lost in round trip")
	}
}

func TestRehydrateIgnoresDanglingActiveID(t *testing.T) {
	archive := storage.NewMemoryArchive()
	archive.Save(context.Background(), &storage.Snapshot{ActiveID: "gone"})

	s := New(archive, &stubProvider{reply: "hi"})
	defer s.Close()
	if s.ActiveID() != "" {
		t.Fatalf("dangling active id survived rehydrate: %q", s.ActiveID())
	}
}

func TestListPreviews(t *testing.T) {
	prov := &stubProvider{reply: "A short answer."}
	s, _ := newTestStore(t, prov)

	res, err := s.Send(context.Background(), "What is Go?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	waitReply(t, res)

	list := s.List()
	if len(list) != 1 {
		t.Fatalf("list length = %d", len(list))
	}
	if want := derive.Preview("A short answer."); list[0].Preview != want {
		t.Fatalf("preview = %q, want %q", list[0].Preview, want)
	}
}

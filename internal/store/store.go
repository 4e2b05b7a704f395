// Package store owns the conversation collection: creation, selection,
// deletion, message appends, and the pending-reply lifecycle. It is the
// single source of truth the HTTP layer reads from.
package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"solochat/internal/derive"
	"solochat/internal/ident"
	"solochat/internal/models"
	"solochat/internal/provider"
	"solochat/internal/storage"
)

// failureReply substitutes for the assistant when the provider fails,
// so the exchange always resolves.
const failureReply = "Sorry, I encountered an error. Please try again."

var (
	// ErrEmptyMessage rejects sends whose content trims to nothing.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrReplyPending rejects a send while the conversation already has
	// a reply outstanding.
	ErrReplyPending = errors.New("reply already pending for conversation")
)

// SendResult reports the synchronous half of Send. Reply delivers the
// appended assistant message once the provider returns; it is closed
// without a value if the conversation was deleted while the reply was
// outstanding.
type SendResult struct {
	ConversationID string
	UserMessage    *models.Message
	Reply          <-chan *models.Message
}

// Store holds every conversation (display order, newest first) and the
// active-selection pointer. All mutations take the mutex; the only
// asynchronous boundary is the provider call spawned by Send, whose
// completion re-validates the target conversation before appending.
type Store struct {
	mu            sync.Mutex
	conversations []*models.Conversation
	activeID      string
	pending       map[string]struct{}
	closed        bool

	provider provider.Provider
	archive  storage.Archive

	flushCh chan *storage.Snapshot
	done    chan struct{}
	wg      sync.WaitGroup

	// overridable for tests
	now   func() time.Time
	newID func() string
}

// New rehydrates the store from the archive and starts the background
// snapshot writer.
func New(archive storage.Archive, prov provider.Provider) *Store {
	s := &Store{
		pending:  make(map[string]struct{}),
		provider: prov,
		archive:  archive,
		flushCh:  make(chan *storage.Snapshot, 1),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    ident.New,
	}

	snap := archive.Load(context.Background())
	s.conversations = snap.Conversations
	if s.conversations == nil {
		s.conversations = []*models.Conversation{}
	}
	if s.lookup(snap.ActiveID) != nil {
		s.activeID = snap.ActiveID
	}

	s.wg.Add(1)
	go s.flusher()
	return s
}

// Close flushes the latest snapshot and stops the background writer.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queueSnapshot()
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

// Create inserts an empty conversation at the front of the display
// order, makes it active, and returns its id.
func (s *Store) Create() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.createConversation()
	s.queueSnapshot()
	return conv.ID
}

// Select makes the given conversation active. Unknown ids are silently
// ignored so a stale selection can never dangle.
func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(id) == nil || s.activeID == id {
		return
	}
	s.activeID = id
	s.queueSnapshot()
}

// Deselect clears the active pointer without touching any
// conversation; the next Send starts a fresh one.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == "" {
		return
	}
	s.activeID = ""
	s.queueSnapshot()
}

// Delete removes the conversation if present (no-op otherwise). When
// the active conversation is removed, the pointer moves to the first
// remaining conversation in display order, or clears when none remain.
// A reply still outstanding for the deleted conversation is discarded
// on arrival.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, c := range s.conversations {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	s.conversations = append(s.conversations[:idx], s.conversations[idx+1:]...)
	delete(s.pending, id)
	if s.activeID == id {
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		} else {
			s.activeID = ""
		}
	}
	s.queueSnapshot()
}

// Send appends a user message to the active conversation (creating one
// when nothing is active), marks the conversation pending, and requests
// a reply from the provider without blocking the store.
func (s *Store) Send(ctx context.Context, content string) (*SendResult, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	conv := s.lookup(s.activeID)
	if conv == nil {
		conv = s.createConversation()
	}
	if _, busy := s.pending[conv.ID]; busy {
		s.mu.Unlock()
		return nil, ErrReplyPending
	}

	now := s.now()
	userMsg := &models.Message{
		ID:        s.newID(),
		Role:      models.RoleUser,
		Content:   trimmed,
		CreatedAt: now,
	}
	if len(conv.Messages) == 0 {
		conv.Title = derive.Title(trimmed)
	}
	conv.Messages = append(conv.Messages, userMsg)
	conv.UpdatedAt = now
	s.pending[conv.ID] = struct{}{}
	s.queueSnapshot()

	replyCh := make(chan *models.Message, 1)
	convID := conv.ID
	s.mu.Unlock()

	go s.awaitReply(ctx, convID, trimmed, replyCh)

	return &SendResult{
		ConversationID: convID,
		UserMessage:    userMsg,
		Reply:          replyCh,
	}, nil
}

// awaitReply resolves one outstanding provider call. The conversation
// id was captured at send time: if it no longer exists when the reply
// arrives, the reply is dropped rather than resurrecting the
// conversation.
func (s *Store) awaitReply(ctx context.Context, convID, prompt string, replyCh chan *models.Message) {
	content, err := s.provider.Respond(ctx, prompt)
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil {
			log.Printf("store: reply for conversation %s failed: %v", convID, err)
		}
		content = failureReply
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, convID)
	conv := s.lookup(convID)
	if conv == nil {
		close(replyCh)
		return
	}

	now := s.now()
	msg := &models.Message{
		ID:        s.newID(),
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: now,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now
	s.queueSnapshot()

	replyCh <- msg
	close(replyCh)
}

// Active returns a copy of the active conversation, or nil when no
// conversation is selected.
func (s *Store) Active() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.lookup(s.activeID))
}

// ActiveID returns the active conversation id, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Get returns a copy of the conversation with the given id, or nil.
func (s *Store) Get(id string) *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.lookup(id))
}

// List returns copies of all conversations in display order.
func (s *Store) List() []*models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = s.view(c)
	}
	return out
}

// Pending reports whether a reply is outstanding for the conversation.
func (s *Store) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	return ok
}

func (s *Store) createConversation() *models.Conversation {
	now := s.now()
	conv := &models.Conversation{
		ID:        s.newID(),
		Title:     derive.DefaultTitle,
		Messages:  []*models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations = append([]*models.Conversation{conv}, s.conversations...)
	s.activeID = conv.ID
	return conv
}

func (s *Store) lookup(id string) *models.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// view clones a conversation for callers and freshens the derived
// preview from the latest message.
func (s *Store) view(conv *models.Conversation) *models.Conversation {
	if conv == nil {
		return nil
	}
	out := conv.Clone()
	if last := out.LastMessage(); last != nil {
		out.Preview = derive.Preview(last.Content)
	}
	return out
}

// queueSnapshot hands a deep-copied snapshot to the background writer,
// coalescing with any snapshot still waiting. Called with the mutex
// held; never blocks.
func (s *Store) queueSnapshot() {
	snap := &storage.Snapshot{
		Conversations: make([]*models.Conversation, len(s.conversations)),
		ActiveID:      s.activeID,
	}
	for i, c := range s.conversations {
		snap.Conversations[i] = c.Clone()
	}

	select {
	case s.flushCh <- snap:
	default:
		// Drop the stale queued snapshot; this one supersedes it. The
		// mutex makes us the only producer, so the send cannot block.
		select {
		case <-s.flushCh:
		default:
		}
		s.flushCh <- snap
	}
}

func (s *Store) flusher() {
	defer s.wg.Done()
	for {
		select {
		case snap := <-s.flushCh:
			s.archive.Save(context.Background(), snap)
		case <-s.done:
			// Final flush of whatever is still queued.
			select {
			case snap := <-s.flushCh:
				s.archive.Save(context.Background(), snap)
			default:
			}
			return
		}
	}
}

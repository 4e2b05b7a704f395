package models

import "time"

// Conversation is a titled, append-only transcript of messages.
// Preview is a derived cache of the latest message and is filled on
// read paths; it is not authoritative state.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Preview   string     `json:"preview,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so callers can hand conversations across
// API boundaries without exposing the store's internal slices.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		msg := *m
		out.Messages[i] = &msg
	}
	return &out
}

// LastMessage returns the most recent message, or nil for an empty
// conversation.
func (c *Conversation) LastMessage() *Message {
	if c == nil || len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

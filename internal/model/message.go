package model

import (
	"time"
)

// Sender is the normalized author class of a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// Message is the canonical shape of a conversation message.
type Message struct {
	// ID may be a client-generated temporary id ("tmp-" prefix) until the
	// server echo supersedes it.
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	IsNote    bool      `json:"is_note"`

	// SenderID is the raw author identity, kept for self-echo suppression.
	// Empty for customer messages.
	SenderID string `json:"sender_id,omitempty"`
}

// SameAs is the de-duplication predicate: two messages describe the same
// logical fact if they share an id, or share identical content and timestamp.
// This is what keeps a message that arrives once via push and once via the
// next snapshot poll from appearing twice.
func (m Message) SameAs(other Message) bool {
	if m.ID != "" && m.ID == other.ID {
		return true
	}
	return m.Content == other.Content && m.Timestamp.Equal(other.Timestamp)
}

// SendMessageRequest is the console API request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
	IsNote  bool   `json:"is_note,omitempty"`
}

// AssignRequest is the console API request to change a conversation's assignee.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
	Name       string `json:"name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
}

// UpdateStatusRequest is the console API request to change a conversation's status.
type UpdateStatusRequest struct {
	Status Status `json:"status"`
}

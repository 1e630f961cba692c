package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/support-console/internal/model"
)

var operator = model.Agent{ID: "op-1", Name: "Riley"}

func testRow() model.RawConversation {
	return model.RawConversation{
		ID:       "c1",
		Customer: model.RawCustomer{ID: "cust-1", Name: "Dana Ray", Email: "dana@example.com"},
		Channel:  "web",
		Status:   "waiting_agent",
		Priority: "high",
		Tags:     []string{"vip"},
		Messages: []model.RawMessage{
			{ID: "m1", Content: "hello", Sender: "user", Timestamp: "2025-06-01T12:00:00Z"},
			{ID: "m2", Content: "hi, how can I help?", Sender: "admin", Timestamp: "2025-06-01T12:01:00Z"},
			{ID: "m3", Content: "escalated to billing", Sender: "agent", Type: "system", Timestamp: "2025-06-01T12:02:00Z"},
		},
		CreatedAt: "2025-06-01T12:00:00Z",
		UpdatedAt: "2025-06-01T12:02:00Z",
	}
}

func TestSnapshotRowNormalizes(t *testing.T) {
	n := New(operator)
	p, err := n.SnapshotRow(testRow())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if p.Op != model.OpUpsertConversation || p.ConversationID != "c1" {
		t.Fatalf("unexpected patch header: %+v", p)
	}

	conv := p.Conversation
	if conv.Status != model.StatusWaitingAgent || conv.Priority != model.PriorityHigh {
		t.Fatalf("enums not mapped: %s %s", conv.Status, conv.Priority)
	}

	// Sender classification: admin and agent fold to agent, user to customer.
	if conv.Messages[0].Sender != model.SenderCustomer {
		t.Fatalf("raw sender 'user' should normalize to customer")
	}
	if conv.Messages[1].Sender != model.SenderAgent || conv.Messages[2].Sender != model.SenderAgent {
		t.Fatalf("raw senders 'admin'/'agent' should normalize to agent")
	}

	// isNote iff raw type is "system".
	if conv.Messages[2].IsNote != true || conv.Messages[1].IsNote != false {
		t.Fatalf("note flag wrong: %+v", conv.Messages)
	}

	if conv.LastMessage == nil || conv.LastMessage.ID != "m3" {
		t.Fatalf("last message not derived: %+v", conv.LastMessage)
	}
	if conv.CreatedAt.IsZero() {
		t.Fatalf("createdAt not parsed")
	}
}

func TestSnapshotRowToleratesMalformedTimestamps(t *testing.T) {
	row := testRow()
	row.CreatedAt = "not-a-timestamp"
	row.Messages[0].Timestamp = "garbage"

	p, err := New(operator).SnapshotRow(row)
	if err != nil {
		t.Fatalf("malformed timestamp must not fail the row: %v", err)
	}
	if !p.Conversation.CreatedAt.IsZero() {
		t.Fatalf("malformed createdAt should map to zero time")
	}
	if !p.Conversation.Messages[0].Timestamp.IsZero() {
		t.Fatalf("malformed message timestamp should map to zero time")
	}
}

func TestSnapshotRowWithoutIDIsMalformed(t *testing.T) {
	_, err := New(operator).SnapshotRow(model.RawConversation{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestNewMessageEvent(t *testing.T) {
	n := New(operator)
	patches, err := n.PushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m5", Content: "any update?", Sender: "user", SenderID: "cust-1",
			Timestamp: "2025-06-01T12:05:00Z",
		},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(patches) != 1 || patches[0].Op != model.OpAppendMessage {
		t.Fatalf("unexpected patches: %+v", patches)
	}
	if patches[0].AutoAssign != nil {
		t.Fatalf("customer messages must not trigger auto-assignment")
	}
}

func TestAgentMessageCarriesAutoAssignment(t *testing.T) {
	n := New(operator)
	patches, err := n.PushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m6", Content: "taking this one", Sender: "admin", SenderID: "op-2",
			Timestamp: "2025-06-01T12:06:00Z",
		},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if patches[0].AutoAssign == nil || patches[0].AutoAssign.ID != operator.ID {
		t.Fatalf("agent message should carry the acting operator for auto-assignment")
	}
}

func TestSelfEchoSuppressed(t *testing.T) {
	n := New(operator)
	_, err := n.PushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m7", Content: "done", Sender: "admin", SenderID: operator.ID,
			Timestamp: "2025-06-01T12:07:00Z",
		},
	})
	if !errors.Is(err, ErrSelfEcho) {
		t.Fatalf("expected ErrSelfEcho, got %v", err)
	}
}

func TestChatUpdatedEvent(t *testing.T) {
	n := New(operator)
	patches, err := n.PushEvent(model.PushEvent{
		Type:       model.EventChatUpdated,
		ChatID:     "c1",
		Status:     "active",
		AssignedTo: &model.RawAssignee{ID: "op-2", Name: "Sam"},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("expected status + assignee patches, got %d", len(patches))
	}
	if patches[0].Op != model.OpPatchStatus || patches[0].Status != model.StatusActive {
		t.Fatalf("unexpected status patch: %+v", patches[0])
	}
	if patches[1].Op != model.OpPatchAssignee || patches[1].AssigneeID != "op-2" {
		t.Fatalf("unexpected assignee patch: %+v", patches[1])
	}
}

func TestChatDeletedEvent(t *testing.T) {
	n := New(operator)
	patches, err := n.PushEvent(model.PushEvent{Type: model.EventChatDeleted, ChatID: "c1"})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(patches) != 1 || patches[0].Op != model.OpRemoveConversation || patches[0].ConversationID != "c1" {
		t.Fatalf("unexpected patches: %+v", patches)
	}
}

func TestMalformedEventsAreRejectedWhole(t *testing.T) {
	n := New(operator)
	cases := []model.PushEvent{
		{Type: model.EventNewMessage, ChatID: "c1"},           // no message
		{Type: model.EventNewMessage},                         // no chat id
		{Type: model.EventChatUpdated, ChatID: "c1"},          // no change
		{Type: model.EventChatCreated},                        // no chat
		{Type: model.EventChatDeleted},                        // no chat id
		{Type: model.PushEventType("presence"), ChatID: "c1"}, // unknown type
	}
	for i, ev := range cases {
		patches, err := n.PushEvent(ev)
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("case %d: expected ErrMalformed, got %v", i, err)
		}
		if len(patches) != 0 {
			t.Fatalf("case %d: malformed event must not partially apply", i)
		}
	}
}

func TestLocalMessage(t *testing.T) {
	n := New(operator)
	now := time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC)
	p := n.LocalMessage("c1", "on my way", false, now)

	if p.Op != model.OpAppendMessage || p.ConversationID != "c1" {
		t.Fatalf("unexpected patch header: %+v", p)
	}
	if !strings.HasPrefix(p.Message.ID, "tmp-") {
		t.Fatalf("local message should get a temporary id, got %q", p.Message.ID)
	}
	if p.Message.Sender != model.SenderAgent || p.Message.SenderID != operator.ID {
		t.Fatalf("local message should be agent-authored by the operator: %+v", p.Message)
	}
	if p.AutoAssign == nil || p.AutoAssign.ID != operator.ID {
		t.Fatalf("local message should carry auto-assignment")
	}
	if !p.Message.Timestamp.Equal(now) {
		t.Fatalf("local message timestamp should be the injected now")
	}
}

// Package normalize converts raw upstream payloads (snapshot rows, push
// events, local operator intents) into canonical patches for the
// reconciliation store. All three update sources meet here, so merge rules
// downstream only ever see one shape.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/support-console/internal/model"
)

var (
	// ErrSelfEcho marks a push message authored by the session operator;
	// it was already applied optimistically at send time.
	ErrSelfEcho = errors.New("self echo suppressed")

	// ErrMalformed marks a payload missing required fields. Callers drop
	// the event with a diagnostic log; nothing is partially applied.
	ErrMalformed = errors.New("malformed payload")
)

// Normalizer folds raw payloads into canonical patches. It carries the
// session operator identity for self-echo suppression and the
// auto-assignment inference.
type Normalizer struct {
	operator model.Agent
}

// New returns a Normalizer acting on behalf of operator.
func New(operator model.Agent) *Normalizer {
	return &Normalizer{operator: operator}
}

// Operator returns the session operator identity.
func (n *Normalizer) Operator() model.Agent {
	return n.operator
}

// SnapshotRow normalizes one conversation row from a snapshot poll into an
// upsert patch.
func (n *Normalizer) SnapshotRow(row model.RawConversation) (model.Patch, error) {
	if row.ID == "" {
		return model.Patch{}, fmt.Errorf("%w: snapshot row without id", ErrMalformed)
	}
	conv := n.conversation(row)
	return model.Patch{
		Op:             model.OpUpsertConversation,
		ConversationID: row.ID,
		Conversation:   conv,
	}, nil
}

// PushEvent normalizes one typed event from the push channel. It may yield
// more than one patch (chat_updated can carry both a status and an assignee
// change). ErrSelfEcho and ErrMalformed are the only expected failures.
func (n *Normalizer) PushEvent(ev model.PushEvent) ([]model.Patch, error) {
	switch ev.Type {
	case model.EventNewMessage:
		if ev.ChatID == "" || ev.Message == nil {
			return nil, fmt.Errorf("%w: new_message without chatId or message", ErrMalformed)
		}
		if ev.Message.SenderID != "" && ev.Message.SenderID == n.operator.ID {
			return nil, ErrSelfEcho
		}
		p := n.appendPatch(ev.ChatID, *ev.Message)
		return []model.Patch{p}, nil

	case model.EventChatUpdated:
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: chat_updated without chatId", ErrMalformed)
		}
		var patches []model.Patch
		if ev.Status != "" {
			patches = append(patches, model.Patch{
				Op:             model.OpPatchStatus,
				ConversationID: ev.ChatID,
				Status:         model.Status(ev.Status),
			})
		}
		if ev.AssignedTo != nil {
			patches = append(patches, model.Patch{
				Op:             model.OpPatchAssignee,
				ConversationID: ev.ChatID,
				AssigneeID:     ev.AssignedTo.ID,
				Assignee:       assignee(ev.AssignedTo),
			})
		}
		if len(patches) == 0 {
			return nil, fmt.Errorf("%w: chat_updated carries no change", ErrMalformed)
		}
		return patches, nil

	case model.EventChatCreated:
		if ev.Chat == nil || ev.Chat.ID == "" {
			return nil, fmt.Errorf("%w: chat_created without chat", ErrMalformed)
		}
		p, err := n.SnapshotRow(*ev.Chat)
		if err != nil {
			return nil, err
		}
		return []model.Patch{p}, nil

	case model.EventChatDeleted:
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: chat_deleted without chatId", ErrMalformed)
		}
		return []model.Patch{{
			Op:             model.OpRemoveConversation,
			ConversationID: ev.ChatID,
		}}, nil

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformed, ev.Type)
	}
}

// LocalMessage builds the optimistic append patch for a message the session
// operator just sent. The message gets a temporary client id; the server
// echo later de-duplicates against it by content and timestamp.
func (n *Normalizer) LocalMessage(conversationID, content string, isNote bool, now time.Time) model.Patch {
	msg := model.Message{
		ID:        "tmp-" + uuid.NewString(),
		Content:   content,
		Sender:    model.SenderAgent,
		SenderID:  n.operator.ID,
		Timestamp: now,
		IsNote:    isNote,
	}
	op := n.operator
	return model.Patch{
		Op:             model.OpAppendMessage,
		ConversationID: conversationID,
		Message:        &msg,
		AutoAssign:     &op,
	}
}

func (n *Normalizer) appendPatch(chatID string, raw model.RawMessage) model.Patch {
	msg := normalizeMessage(raw)
	p := model.Patch{
		Op:             model.OpAppendMessage,
		ConversationID: chatID,
		Message:        &msg,
	}
	if msg.Sender == model.SenderAgent {
		op := n.operator
		p.AutoAssign = &op
	}
	return p
}

func (n *Normalizer) conversation(row model.RawConversation) *model.Conversation {
	conv := &model.Conversation{
		ID:       row.ID,
		Channel:  model.Channel(row.Channel),
		Status:   model.Status(row.Status),
		Priority: model.Priority(row.Priority),
		Customer: model.Customer{
			ID:       row.Customer.ID,
			Name:     row.Customer.Name,
			Email:    row.Customer.Email,
			Phone:    row.Customer.Phone,
			Language: row.Customer.Language,
			Timezone: row.Customer.Timezone,
			LastSeen: row.Customer.LastSeen,
		},
		Tags:      row.Tags,
		CreatedAt: parseInstant(row.CreatedAt),
		UpdatedAt: parseInstant(row.UpdatedAt),
	}
	if row.AssignedTo != nil {
		conv.AssigneeID = row.AssignedTo.ID
		conv.Assignee = assignee(row.AssignedTo)
	}
	if row.Rating != nil {
		conv.Rating = &model.Rating{
			Score:    row.Rating.Score,
			Feedback: row.Rating.Feedback,
			RatedAt:  parseInstant(row.Rating.RatedAt),
		}
	}
	if row.Commerce != nil {
		conv.Commerce = &model.Commerce{
			OrderID:        row.Commerce.OrderID,
			OrderStatus:    row.Commerce.OrderStatus,
			SubscriptionID: row.Commerce.SubscriptionID,
			PlanName:       row.Commerce.PlanName,
		}
	}
	for _, rm := range row.Messages {
		conv.Messages = append(conv.Messages, normalizeMessage(rm))
	}
	if len(conv.Messages) > 0 {
		last := conv.Messages[len(conv.Messages)-1]
		conv.LastMessage = &last
	}
	return conv
}

// normalizeMessage applies the sender classification rule: raw tags "admin"
// and "agent" fold to agent, everything else to customer. A message is an
// internal note iff its raw type is "system".
func normalizeMessage(raw model.RawMessage) model.Message {
	sender := model.SenderCustomer
	switch strings.ToLower(raw.Sender) {
	case "admin", "agent":
		sender = model.SenderAgent
	}
	return model.Message{
		ID:        raw.ID,
		Content:   raw.Content,
		Sender:    sender,
		SenderID:  raw.SenderID,
		Timestamp: parseInstant(raw.Timestamp),
		IsNote:    strings.EqualFold(raw.Type, "system"),
	}
}

func assignee(raw *model.RawAssignee) *model.Agent {
	if raw == nil || raw.ID == "" {
		return nil
	}
	return &model.Agent{ID: raw.ID, Name: raw.Name, Avatar: raw.Avatar}
}

// parseInstant parses an ISO instant, tolerating a missing fractional part.
// Malformed input yields the zero time, which downstream treats as "no
// elapsed time" rather than an error.
func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

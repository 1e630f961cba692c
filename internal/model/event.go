package model

// PushEventType discriminates events on the persistent upstream stream.
type PushEventType string

const (
	EventNewMessage  PushEventType = "new_message"
	EventChatUpdated PushEventType = "chat_updated"
	EventChatCreated PushEventType = "chat_created"
	EventChatDeleted PushEventType = "chat_deleted"
)

// PushEvent is the envelope carried on the push channel. Which payload
// fields are populated depends on Type.
type PushEvent struct {
	Type       PushEventType    `json:"type"`
	ChatID     string           `json:"chatId,omitempty"`
	Message    *RawMessage      `json:"message,omitempty"`
	Status     string           `json:"status,omitempty"`
	AssignedTo *RawAssignee     `json:"assignedTo,omitempty"`
	Chat       *RawConversation `json:"chat,omitempty"`
}

// OutboundCommand is a command written back over the push channel.
type OutboundCommand struct {
	Type    string `json:"type"`
	ChatID  string `json:"chatId"`
	Content string `json:"content,omitempty"`
	MsgType string `json:"msgType,omitempty"`
}

// RawMessage is a message as the upstream backend serializes it, before
// normalization. Sender tags and message types are free-form upstream; the
// normalizer folds them into the canonical enums. Timestamps stay strings so
// a malformed instant degrades instead of failing the whole decode.
type RawMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	SenderID  string `json:"senderId,omitempty"`
	Type      string `json:"type,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RawAssignee is an assignment as the upstream backend serializes it.
type RawAssignee struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// RawCustomer is a customer as the upstream backend serializes it.
type RawCustomer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// RawRating is a rating as the upstream backend serializes it.
type RawRating struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
	RatedAt  string `json:"ratedAt,omitempty"`
}

// RawCommerce is linked commerce context as the upstream backend serializes it.
type RawCommerce struct {
	OrderID        string `json:"orderId,omitempty"`
	OrderStatus    string `json:"orderStatus,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	PlanName       string `json:"planName,omitempty"`
}

// RawConversation is a snapshot row (or chat_created payload) as the
// upstream backend serializes it.
type RawConversation struct {
	ID         string       `json:"id"`
	Customer   RawCustomer  `json:"customer"`
	Channel    string       `json:"channel"`
	Status     string       `json:"status"`
	Priority   string       `json:"priority"`
	AssignedTo *RawAssignee `json:"assignedTo,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
	Rating     *RawRating   `json:"rating,omitempty"`
	Messages   []RawMessage `json:"messages"`
	CreatedAt  string       `json:"createdAt"`
	UpdatedAt  string       `json:"updatedAt"`
	Commerce   *RawCommerce `json:"commerce,omitempty"`
}

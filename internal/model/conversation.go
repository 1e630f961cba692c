// Package model defines data structures for the support console.
package model

import (
	"time"
)

// Channel is the origin channel of a conversation.
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelEmail    Channel = "email"
	ChannelPhone    Channel = "phone"
	ChannelWhatsApp Channel = "whatsapp"
)

// Status is the lifecycle status of a conversation.
type Status string

const (
	StatusActive          Status = "active"
	StatusWaitingCustomer Status = "waiting_customer"
	StatusWaitingAgent    Status = "waiting_agent"
	StatusSnoozed         Status = "snoozed"
	StatusClosed          Status = "closed"
	StatusConverted       Status = "converted"
)

// Open reports whether the conversation is still being worked.
func (s Status) Open() bool {
	return s != StatusClosed && s != StatusConverted
}

// Priority is the urgency level of a conversation.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the ordinal used for priority sorting, higher first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Customer is the person on the other side of a conversation.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	LastSeen string `json:"last_seen,omitempty"`
}

// Agent identifies a support operator.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Rating is post-conversation customer feedback.
type Rating struct {
	Score    int       `json:"score"`
	Feedback string    `json:"feedback,omitempty"`
	RatedAt  time.Time `json:"rated_at"`
}

// Commerce is read-only purchase context attached to a conversation by an
// external collaborator. The engine never derives or mutates it.
type Commerce struct {
	OrderID        string `json:"order_id,omitempty"`
	OrderStatus    string `json:"order_status,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	PlanName       string `json:"plan_name,omitempty"`
}

// Conversation is the canonical in-memory shape of a support conversation.
// Instances held in a store snapshot are treated as immutable; any change
// produces a new value through the patch/apply path.
type Conversation struct {
	ID          string    `json:"id"`
	Customer    Customer  `json:"customer"`
	Channel     Channel   `json:"channel"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	AssigneeID  string    `json:"assignee_id,omitempty"`
	Assignee    *Agent    `json:"assignee,omitempty"`
	LastMessage *Message  `json:"last_message,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Rating      *Rating   `json:"rating,omitempty"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Commerce    *Commerce `json:"commerce,omitempty"`
}

// Clone returns a shallow copy with its own Messages and Tags slices, so the
// copy can be mutated without aliasing the original snapshot's data.
func (c *Conversation) Clone() *Conversation {
	out := *c
	if c.Messages != nil {
		out.Messages = append([]Message(nil), c.Messages...)
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}

// Stats is the separately-sourced aggregate summary shown in the console
// header. It is display-only external data, never derived from the store.
type Stats struct {
	TotalsByStatus       map[string]int `json:"totals_by_status"`
	BreachCount          int            `json:"breach_count"`
	AvgFirstResponseSecs float64        `json:"avg_first_response_seconds"`
	AvgResolutionSecs    float64        `json:"avg_resolution_seconds"`
	AvgRating            float64        `json:"avg_rating"`
}

package handler

import (
	"time"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/sla"
)

// SLAView is the derived countdown state attached to every conversation the
// API returns, recomputed at response time.
type SLAView struct {
	sla.Countdown
	FirstResponseDisplay string `json:"first_response_display"`
	ResolutionDisplay    string `json:"resolution_display"`
}

// ConversationView is a conversation plus its derived SLA state.
type ConversationView struct {
	*model.Conversation
	SLA SLAView `json:"sla"`
}

func newView(c *model.Conversation, budgets sla.Budgets, now time.Time) ConversationView {
	countdown := budgets.Compute(c.CreatedAt, c.Status, now)
	return ConversationView{
		Conversation: c,
		SLA: SLAView{
			Countdown:            countdown,
			FirstResponseDisplay: sla.Format(countdown.FirstResponseRemaining),
			ResolutionDisplay:    sla.Format(countdown.ResolutionRemaining),
		},
	}
}

func newViews(convs []*model.Conversation, budgets sla.Budgets, now time.Time) []ConversationView {
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, newView(c, budgets, now))
	}
	return out
}

// Package queue computes the ordered subset of conversations visible for an
// operator's selected tab and search term. It is a strict function of its
// inputs: same snapshot, tab, term and instant in, byte-identical order out.
package queue

import (
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/sla"
	"github.com/capitalize-ai/support-console/internal/store"
)

// Tab is one of the console's queue tabs.
type Tab string

const (
	TabMyInbox         Tab = "my-inbox"
	TabUnassigned      Tab = "unassigned"
	TabWaitingCustomer Tab = "waiting-customer"
	TabWaitingAgent    Tab = "waiting-agent"
	TabHighPriority    Tab = "high-priority"
	TabClosed          Tab = "closed"
)

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool {
	switch t {
	case TabMyInbox, TabUnassigned, TabWaitingCustomer, TabWaitingAgent, TabHighPriority, TabClosed:
		return true
	}
	return false
}

// breachRiskMargin is the first-response threshold, in seconds, below which
// a conversation jumps ahead of everything regardless of priority.
const breachRiskMargin = 30

// Visible returns the ordered conversations for the given tab and search
// term, as seen by operatorID at instant now. The sort is stable, so ties
// keep the snapshot's deterministic base order.
func Visible(snap *store.Snapshot, tab Tab, search, operatorID string, budgets sla.Budgets, now time.Time) []*model.Conversation {
	var out []*model.Conversation
	for _, c := range snap.All() {
		if !matchesTab(c, tab, operatorID) {
			continue
		}
		if !matchesSearch(c, search) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i], out[j], budgets, now)
	})
	return out
}

func matchesTab(c *model.Conversation, tab Tab, operatorID string) bool {
	switch tab {
	case TabMyInbox:
		return c.AssigneeID == operatorID && c.AssigneeID != "" && c.Status != model.StatusClosed
	case TabUnassigned:
		return c.AssigneeID == "" && c.Status != model.StatusClosed
	case TabWaitingCustomer:
		return c.Status == model.StatusWaitingCustomer
	case TabWaitingAgent:
		return c.Status == model.StatusWaitingAgent
	case TabHighPriority:
		return c.Priority == model.PriorityUrgent || c.Priority == model.PriorityHigh
	case TabClosed:
		return c.Status == model.StatusClosed
	default:
		return false
	}
}

// matchesSearch is a case-insensitive substring match against customer name,
// customer email, last-message content, or any tag.
func matchesSearch(c *model.Conversation, search string) bool {
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Customer.Name), term) {
		return true
	}
	if strings.Contains(strings.ToLower(c.Customer.Email), term) {
		return true
	}
	if c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), term) {
		return true
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

// less is the sort comparator, strict tie-break order: first-response breach
// risk, then priority descending, then last-message recency descending.
func less(a, b *model.Conversation, budgets sla.Budgets, now time.Time) bool {
	aRisk := budgets.Compute(a.CreatedAt, a.Status, now).AtRisk(a.Status, breachRiskMargin)
	bRisk := budgets.Compute(b.CreatedAt, b.Status, now).AtRisk(b.Status, breachRiskMargin)
	if aRisk != bRisk {
		return aRisk
	}

	if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
		return ar > br
	}

	at, bt := lastActivity(a), lastActivity(b)
	return at.After(bt)
}

func lastActivity(c *model.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return c.UpdatedAt
}

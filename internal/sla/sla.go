// Package sla derives response-time countdowns from conversation state.
// Everything here is a pure function of its inputs; countdowns are
// recomputed on every read and never persisted.
package sla

import (
	"fmt"
	"time"

	"github.com/capitalize-ai/support-console/internal/model"
)

// Budgets holds the countdown budgets for a support tier.
type Budgets struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

// Default is the standard tier: 5 minutes to first response, 1 hour to
// resolution.
var Default = Budgets{
	FirstResponse: 5 * time.Minute,
	Resolution:    time.Hour,
}

// Countdown is the derived SLA state of a conversation at an instant.
// Remaining seconds floor at zero; a zero while the countdown still applies
// is a breach.
type Countdown struct {
	FirstResponseRemaining int  `json:"first_response_remaining_seconds"`
	ResolutionRemaining    int  `json:"resolution_remaining_seconds"`
	FirstResponseBreached  bool `json:"first_response_breached"`
	ResolutionBreached     bool `json:"resolution_breached"`
}

// AtRisk reports whether the conversation is within the given margin of a
// first-response breach. Conversations whose first-response countdown has
// stopped (agent engaged, or closed) are never at risk.
func (c Countdown) AtRisk(status model.Status, margin int) bool {
	return firstResponsePending(status) && c.FirstResponseRemaining <= margin
}

// Compute derives the countdown for a conversation created at createdAt with
// the given status, as of now. A malformed (zero) createdAt is treated as
// zero elapsed time so clock skew cannot trigger a breach storm.
func (b Budgets) Compute(createdAt time.Time, status model.Status, now time.Time) Countdown {
	var elapsed time.Duration
	if !createdAt.IsZero() && now.After(createdAt) {
		elapsed = now.Sub(createdAt)
	}

	var c Countdown
	if firstResponsePending(status) {
		c.FirstResponseRemaining = remaining(b.FirstResponse, elapsed)
		c.FirstResponseBreached = c.FirstResponseRemaining == 0
	}
	if status.Open() {
		c.ResolutionRemaining = remaining(b.Resolution, elapsed)
		c.ResolutionBreached = c.ResolutionRemaining == 0
	}
	return c
}

// firstResponsePending reports whether the first-response countdown is still
// running: the conversation is open and no agent has engaged yet.
func firstResponsePending(status model.Status) bool {
	return status.Open() && status != model.StatusActive
}

func remaining(budget, elapsed time.Duration) int {
	left := budget - elapsed
	if left < 0 {
		return 0
	}
	return int(left / time.Second)
}

// Format renders a countdown value as "Xm Ys" for display.
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

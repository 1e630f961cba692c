// Package store holds the authoritative in-memory collection of
// conversations and the merge rules that reconcile the three update
// channels feeding it. The apply path is the only mutation surface;
// everything the console displays is a pure recomputation over the current
// snapshot.
package store

import (
	"sync"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/pkg/metrics"
)

// Outcome reports what applying a patch did.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeNoop       Outcome = "noop"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeTombstoned Outcome = "tombstoned"
)

// Store owns the current snapshot and the tombstone set. Apply is
// serialized; reads take the snapshot by reference and never block writers
// for long.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot
	tomb *Tombstones
}

// New returns an empty store.
func New() *Store {
	return &Store{
		snap: emptySnapshot(),
		tomb: NewTombstones(),
	}
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Tombstones returns the session tombstone set.
func (s *Store) Tombstones() *Tombstones {
	return s.tomb
}

// Apply reconciles one normalized patch into the collection and returns the
// resulting snapshot. Applying the same patch twice, in any order relative
// to other patches carrying the same facts, converges on the same state.
func (s *Store) Apply(p model.Patch) (*Snapshot, Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, outcome := apply(s.snap, s.tomb, p)
	s.snap = next

	metrics.PatchesApplied.WithLabelValues(string(p.Op), string(outcome)).Inc()
	metrics.ConversationsVisible.Set(float64(next.Len()))
	return next, outcome
}

// apply is the pure core: same (snapshot, patch) in, same snapshot out. A
// patch that changes nothing returns the incoming snapshot unchanged.
func apply(snap *Snapshot, tomb *Tombstones, p model.Patch) (*Snapshot, Outcome) {
	if p.Op == model.OpRemoveConversation {
		if _, ok := snap.Get(p.ConversationID); !ok {
			return snap, OutcomeNoop
		}
		return snap.without(p.ConversationID), OutcomeApplied
	}

	// Deleted ids never re-enter, no matter which channel carries them.
	if tomb.Contains(p.ConversationID) {
		return snap, OutcomeTombstoned
	}

	switch p.Op {
	case model.OpUpsertConversation:
		return applyUpsert(snap, p)
	case model.OpAppendMessage:
		return applyAppend(snap, p)
	case model.OpPatchStatus:
		return applyStatus(snap, p)
	case model.OpPatchAssignee:
		return applyAssignee(snap, p)
	default:
		return snap, OutcomeNoop
	}
}

func applyUpsert(snap *Snapshot, p model.Patch) (*Snapshot, Outcome) {
	if p.Conversation == nil {
		return snap, OutcomeNoop
	}
	cur, ok := snap.Get(p.ConversationID)
	if !ok {
		conv := p.Conversation.Clone()
		syncLastMessage(conv)
		return snap.with(conv), OutcomeApplied
	}
	merged, changed := mergeConversation(cur, p.Conversation)
	if !changed {
		return snap, OutcomeNoop
	}
	return snap.with(merged), OutcomeApplied
}

func applyAppend(snap *Snapshot, p model.Patch) (*Snapshot, Outcome) {
	if p.Message == nil {
		return snap, OutcomeNoop
	}
	cur, ok := snap.Get(p.ConversationID)
	if !ok {
		// Appends never create conversations; only a snapshot row or a
		// chat_created event does.
		return snap, OutcomeNoop
	}
	for _, m := range cur.Messages {
		if m.SameAs(*p.Message) {
			return snap, OutcomeDuplicate
		}
	}
	next := cur.Clone()
	next.Messages = append(next.Messages, *p.Message)
	syncLastMessage(next)
	if p.Message.Timestamp.After(next.UpdatedAt) {
		next.UpdatedAt = p.Message.Timestamp
	}
	if p.AutoAssign != nil && next.AssigneeID == "" && p.Message.Sender == model.SenderAgent {
		a := *p.AutoAssign
		next.AssigneeID = a.ID
		next.Assignee = &a
	}
	return snap.with(next), OutcomeApplied
}

func applyStatus(snap *Snapshot, p model.Patch) (*Snapshot, Outcome) {
	cur, ok := snap.Get(p.ConversationID)
	if !ok || p.Status == "" {
		return snap, OutcomeNoop
	}
	if cur.Status == p.Status {
		return snap, OutcomeNoop
	}
	next := cur.Clone()
	next.Status = p.Status
	return snap.with(next), OutcomeApplied
}

func applyAssignee(snap *Snapshot, p model.Patch) (*Snapshot, Outcome) {
	cur, ok := snap.Get(p.ConversationID)
	if !ok {
		return snap, OutcomeNoop
	}
	if cur.AssigneeID == p.AssigneeID && agentEqual(cur.Assignee, p.Assignee) {
		return snap, OutcomeNoop
	}
	next := cur.Clone()
	next.AssigneeID = p.AssigneeID
	if p.Assignee != nil {
		a := *p.Assignee
		next.Assignee = &a
	} else if p.AssigneeID == "" {
		next.Assignee = nil
	}
	return snap.with(next), OutcomeApplied
}

// mergeConversation folds a partial incoming conversation into cur,
// field-by-field: zero-valued incoming fields leave cur alone. cur is only
// cloned once a real difference is found, so an upsert carrying facts the
// store already knows returns the original object untouched.
func mergeConversation(cur, inc *model.Conversation) (*model.Conversation, bool) {
	out := cur
	changed := false
	mutable := func() *model.Conversation {
		if !changed {
			out = cur.Clone()
			changed = true
		}
		return out
	}

	if inc.Channel != "" && inc.Channel != cur.Channel {
		mutable().Channel = inc.Channel
	}
	if inc.Status != "" && inc.Status != cur.Status {
		mutable().Status = inc.Status
	}
	if inc.Priority != "" && inc.Priority != cur.Priority {
		mutable().Priority = inc.Priority
	}
	if inc.Customer != (model.Customer{}) && inc.Customer != cur.Customer {
		mutable().Customer = inc.Customer
	}
	if inc.AssigneeID != "" && (inc.AssigneeID != cur.AssigneeID || !agentEqual(cur.Assignee, inc.Assignee)) {
		m := mutable()
		m.AssigneeID = inc.AssigneeID
		if inc.Assignee != nil {
			a := *inc.Assignee
			m.Assignee = &a
		}
	}
	if inc.Tags != nil && !sameTagSet(cur.Tags, inc.Tags) {
		mutable().Tags = append([]string(nil), inc.Tags...)
	}
	if inc.Rating != nil && (cur.Rating == nil || *cur.Rating != *inc.Rating) {
		r := *inc.Rating
		mutable().Rating = &r
	}
	if inc.Commerce != nil && (cur.Commerce == nil || *cur.Commerce != *inc.Commerce) {
		cm := *inc.Commerce
		mutable().Commerce = &cm
	}
	if !inc.CreatedAt.IsZero() && !inc.CreatedAt.Equal(cur.CreatedAt) {
		mutable().CreatedAt = inc.CreatedAt
	}
	if !inc.UpdatedAt.IsZero() && inc.UpdatedAt.After(cur.UpdatedAt) {
		mutable().UpdatedAt = inc.UpdatedAt
	}

	// Messages union with de-duplication: locally-known messages (including
	// optimistic temp-id ones) are kept, incoming messages already present
	// under the dedup predicate are skipped.
	for _, im := range inc.Messages {
		dup := false
		for _, em := range out.Messages {
			if em.SameAs(im) {
				dup = true
				break
			}
		}
		if !dup {
			m := mutable()
			m.Messages = append(m.Messages, im)
		}
	}
	if changed {
		syncLastMessage(out)
	}
	return out, changed
}

// syncLastMessage restores the invariant that LastMessage mirrors the final
// element of Messages.
func syncLastMessage(c *model.Conversation) {
	if len(c.Messages) == 0 {
		c.LastMessage = nil
		return
	}
	last := c.Messages[len(c.Messages)-1]
	c.LastMessage = &last
}

func agentEqual(a, b *model.Agent) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// sameTagSet compares tags as sets; insertion order is irrelevant.
func sameTagSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, t := range a {
		seen[t]++
	}
	for _, t := range b {
		if seen[t] == 0 {
			return false
		}
		seen[t]--
	}
	return true
}

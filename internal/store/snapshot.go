package store

import (
	"sort"

	"github.com/capitalize-ai/support-console/internal/model"
)

// Snapshot is an immutable view of the conversation collection. Applying a
// patch yields a new Snapshot; a patch that changes nothing yields the same
// Snapshot, and an unchanged conversation keeps its exact object identity
// across applies. Downstream consumers rely on that referential stability to
// skip recomputation, so it is part of the contract, not an optimization.
type Snapshot struct {
	byID map[string]*model.Conversation
}

func emptySnapshot() *Snapshot {
	return &Snapshot{byID: make(map[string]*model.Conversation)}
}

// Get returns the conversation with the given id, if present.
func (s *Snapshot) Get(id string) (*model.Conversation, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Len returns the number of visible conversations.
func (s *Snapshot) Len() int {
	return len(s.byID)
}

// All returns the conversations ordered by id. The deterministic base order
// is what lets a stable sort downstream produce identical output for
// identical input.
func (s *Snapshot) All() []*model.Conversation {
	out := make([]*model.Conversation, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// with returns a copy of the snapshot with conv replacing (or adding) its id.
func (s *Snapshot) with(conv *model.Conversation) *Snapshot {
	next := make(map[string]*model.Conversation, len(s.byID)+1)
	for id, c := range s.byID {
		next[id] = c
	}
	next[conv.ID] = conv
	return &Snapshot{byID: next}
}

// without returns a copy of the snapshot with id removed.
func (s *Snapshot) without(id string) *Snapshot {
	next := make(map[string]*model.Conversation, len(s.byID))
	for cid, c := range s.byID {
		if cid != id {
			next[cid] = c
		}
	}
	return &Snapshot{byID: next}
}

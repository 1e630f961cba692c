package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/pkg/metrics"
)

var (
	// ErrDeletionInFlight is returned when a second deletion is requested
	// while one is active. At most one conversation may be Deleting per
	// session.
	ErrDeletionInFlight = errors.New("another deletion is already in progress")

	// ErrDeletionTimeout is returned when the server answers neither
	// success nor failure within the deletion timeout. The conversation
	// stays visible; it is never left in a permanent deleting limbo.
	ErrDeletionTimeout = errors.New("delete request timed out, the conversation was not removed")
)

// deletionState tracks the single id allowed to be in the Deleting state.
type deletionState struct {
	mu sync.Mutex
	id string
}

// begin transitions Idle -> Deleting(id), refusing if another deletion is
// active.
func (d *deletionState) begin(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id != "" {
		return false
	}
	d.id = id
	return true
}

// end transitions back to Idle.
func (d *deletionState) end() {
	d.mu.Lock()
	d.id = ""
	d.mu.Unlock()
}

// active returns the id currently Deleting, or "".
func (d *deletionState) active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id
}

// Delete runs the optimistic-delete protocol for one conversation:
//
//	Idle -> Deleting -> Idle
//
// Success tombstones the id, removes it from the store, clears the
// selection if it pointed at it, and broadcasts the removal to peer
// sessions. Failure surfaces the server's reason and leaves the store
// untouched. If the server answers nothing within the deletion timeout the
// machine force-returns to Idle with ErrDeletionTimeout and the
// conversation stays exactly as it was: no tombstone, no dimming.
func (e *Engine) Delete(ctx context.Context, conversationID string) error {
	if _, ok := e.store.Snapshot().Get(conversationID); !ok {
		return ErrNotFound
	}
	if !e.del.begin(conversationID) {
		return ErrDeletionInFlight
	}

	result := make(chan error, 1)
	go func() {
		result <- e.upstream.DeleteConversation(ctx, conversationID)
	}()

	select {
	case err := <-result:
		if err != nil {
			e.del.end()
			metrics.DeletionsTotal.WithLabelValues("failure").Inc()
			e.logger.Warn("delete rejected by server",
				zap.String("conversation_id", conversationID), zap.Error(err))
			return err
		}
		e.confirmDeletion(conversationID)
		return nil

	case <-e.clock.After(e.deleteTimeout):
		// A response landing after this point hits a buffered channel
		// nobody reads; the stale completion is a no-op. If the server
		// did delete, the chat_deleted push event converges us later.
		e.del.end()
		metrics.DeletionsTotal.WithLabelValues("timeout").Inc()
		e.logger.Error("delete timed out", zap.String("conversation_id", conversationID))
		return ErrDeletionTimeout
	}
}

// confirmDeletion applies the success transition's side effects in order:
// tombstone, remove, clear selection, broadcast, Idle.
func (e *Engine) confirmDeletion(conversationID string) {
	e.store.Tombstones().Mark(conversationID)
	e.store.Apply(model.Patch{
		Op:             model.OpRemoveConversation,
		ConversationID: conversationID,
	})
	e.selected.clearIf(conversationID)

	if e.bus != nil {
		if err := e.bus.PublishRemoved(conversationID); err != nil {
			e.logger.Warn("removal broadcast failed",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}

	e.del.end()
	metrics.DeletionsTotal.WithLabelValues("success").Inc()
	e.logger.Info("conversation deleted", zap.String("conversation_id", conversationID))
}

// Package engine owns the live conversation view: it schedules snapshot
// polls, ingests push events, applies optimistic operator mutations, and
// runs the deletion protocol. Every collaborator is injected, so the whole
// thing runs deterministically under fake clocks and transports.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/normalize"
	"github.com/capitalize-ai/support-console/internal/queue"
	"github.com/capitalize-ai/support-console/internal/sla"
	"github.com/capitalize-ai/support-console/internal/store"
	"github.com/capitalize-ai/support-console/pkg/logger"
	"github.com/capitalize-ai/support-console/pkg/metrics"
)

// ErrNotFound is returned for operations against an unknown conversation.
var ErrNotFound = errors.New("conversation not found")

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SnapshotSource pulls the periodic conversation listing.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) ([]model.RawConversation, error)
}

// CommandClient issues mutation commands against the upstream backend.
type CommandClient interface {
	AssignConversation(ctx context.Context, conversationID, assigneeID string) error
	UpdateStatus(ctx context.Context, conversationID string, status model.Status) error
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Upstream is the full request/response channel.
type Upstream interface {
	SnapshotSource
	CommandClient
}

// PushSender carries outbound commands over the persistent stream.
type PushSender interface {
	SendMessage(chatID, content, msgType string) error
	JoinChat(chatID string) error
}

// Broadcaster announces confirmed removals to peer sessions.
type Broadcaster interface {
	PublishRemoved(conversationID string) error
}

// Options wires an Engine. Store, Upstream and Operator are required; nil
// Push and Bus degrade to no-ops, nil Clock means wall time.
type Options struct {
	Store    *store.Store
	Upstream Upstream
	Push     PushSender
	Bus      Broadcaster
	Clock    Clock
	Operator model.Agent
	Logger   *logger.Logger

	PollInterval  time.Duration
	DeleteTimeout time.Duration
	Budgets       sla.Budgets
}

// Engine is the conversation sync engine for one operator session.
type Engine struct {
	store    *store.Store
	norm     *normalize.Normalizer
	upstream Upstream
	push     PushSender
	bus      Broadcaster
	clock    Clock
	operator model.Agent
	logger   *logger.Logger

	pollInterval  time.Duration
	deleteTimeout time.Duration
	budgets       sla.Budgets

	del      *deletionState
	selected selectedRef

}

// New builds an Engine from opts.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = 15 * time.Second
	}
	if opts.Budgets == (sla.Budgets{}) {
		opts.Budgets = sla.Default
	}
	return &Engine{
		store:         opts.Store,
		norm:          normalize.New(opts.Operator),
		upstream:      opts.Upstream,
		push:          opts.Push,
		bus:           opts.Bus,
		clock:         opts.Clock,
		operator:      opts.Operator,
		logger:        opts.Logger,
		pollInterval:  opts.PollInterval,
		deleteTimeout: opts.DeleteTimeout,
		budgets:       opts.Budgets,
		del:           &deletionState{},
	}
}

// SetPush attaches the outbound push channel. The driver needs the
// engine's event handler to exist first, so wiring happens in two steps.
func (e *Engine) SetPush(p PushSender) { e.push = p }

// Store returns the reconciliation store.
func (e *Engine) Store() *store.Store { return e.store }

// Operator returns the session operator identity.
func (e *Engine) Operator() model.Agent { return e.operator }

// Budgets returns the SLA budgets in force.
func (e *Engine) Budgets() sla.Budgets { return e.budgets }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Run polls snapshots on the configured interval until ctx is done. The
// push driver and bus subscription run outside and feed HandlePushEvent and
// HandleRemoteRemoval.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.PollOnce(ctx); err != nil {
		// A failed first fetch renders an empty queue rather than
		// blocking the session.
		e.logger.Warn("initial snapshot fetch failed", zap.Error(err))
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.PollOnce(ctx); err != nil {
				e.logger.Warn("snapshot poll failed, retrying next cycle", zap.Error(err))
			}
		}
	}
}

// PollOnce performs one snapshot fetch-and-merge. The poll is skipped
// entirely, not delayed, while any deletion is in flight: a racing stale
// snapshot must not undo an optimistic delete.
func (e *Engine) PollOnce(ctx context.Context) error {
	if e.del.active() != "" {
		metrics.SnapshotPollsSkipped.Inc()
		e.logger.Debug("snapshot poll suppressed during deletion")
		return nil
	}

	start := e.clock.Now()
	rows, err := e.upstream.FetchSnapshot(ctx)
	if err != nil {
		metrics.RecordPoll("error", e.clock.Now().Sub(start).Seconds())
		return err
	}
	metrics.RecordPoll("ok", e.clock.Now().Sub(start).Seconds())

	e.ingestSnapshot(rows)
	return nil
}

// ingestSnapshot merges snapshot rows into the store. Rows for tombstoned
// ids are rejected by the store; rows for an id whose deletion started
// after this fetch went out are rejected here. A row the snapshot omitted
// is "not yet visible", never a deletion: partial and paginated listings
// must not drop locally-known conversations.
func (e *Engine) ingestSnapshot(rows []model.RawConversation) {
	deleting := e.del.active()
	for _, row := range rows {
		if row.ID != "" && row.ID == deleting {
			continue
		}
		p, err := e.norm.SnapshotRow(row)
		if err != nil {
			e.logger.Warn("dropping malformed snapshot row", zap.Error(err))
			continue
		}
		e.store.Apply(p)
	}
}

// HandlePushEvent ingests one event from the push channel. Malformed events
// are dropped with a diagnostic log and never partially applied.
func (e *Engine) HandlePushEvent(ev model.PushEvent) {
	if ev.Type == model.EventChatDeleted && ev.ChatID != "" {
		// A peer session's confirmed deletion: same effect as our own
		// success path, minus the broadcast.
		e.removeLocally(ev.ChatID)
		return
	}

	patches, err := e.norm.PushEvent(ev)
	if err != nil {
		switch {
		case errors.Is(err, normalize.ErrSelfEcho):
			metrics.PushEventsDropped.WithLabelValues("self_echo").Inc()
		default:
			metrics.PushEventsDropped.WithLabelValues("malformed").Inc()
			e.logger.Warn("dropping push event", zap.String("type", string(ev.Type)), zap.Error(err))
		}
		return
	}
	for _, p := range patches {
		e.store.Apply(p)
	}
}

// HandleRemoteRemoval ingests a removal broadcast by a peer session.
func (e *Engine) HandleRemoteRemoval(conversationID string) {
	e.removeLocally(conversationID)
}

// removeLocally tombstones and drops a conversation, clearing the selection
// if it pointed at it. Used by every remove path except the local success
// path, which additionally broadcasts.
func (e *Engine) removeLocally(conversationID string) {
	e.store.Tombstones().Mark(conversationID)
	e.store.Apply(model.Patch{
		Op:             model.OpRemoveConversation,
		ConversationID: conversationID,
	})
	e.selected.clearIf(conversationID)
}

// Queue returns the visible ordered conversations for a tab and search term.
func (e *Engine) Queue(tab queue.Tab, search string) []*model.Conversation {
	return queue.Visible(e.store.Snapshot(), tab, search, e.operator.ID, e.budgets, e.clock.Now())
}

// Get returns one conversation by id.
func (e *Engine) Get(conversationID string) (*model.Conversation, error) {
	conv, ok := e.store.Snapshot().Get(conversationID)
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

// Select marks a conversation as the operator's current focus and joins its
// push-channel room.
func (e *Engine) Select(conversationID string) {
	e.selected.set(conversationID)
	if e.push != nil {
		if err := e.push.JoinChat(conversationID); err != nil {
			e.logger.Warn("join_chat failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}
}

// Selected returns the currently focused conversation id, if any.
func (e *Engine) Selected() string { return e.selected.get() }

// Deleting returns the conversation id currently in the Deleting state, or
// "" when idle. The UI uses this to dim the row being deleted.
func (e *Engine) Deleting() string { return e.del.active() }

// SendMessage optimistically appends an operator message and dispatches the
// outbound send_message command. The optimistic append and the eventual
// server echo both run through the same apply path and deduplicate there.
func (e *Engine) SendMessage(ctx context.Context, conversationID, content string, isNote bool) (model.Message, error) {
	if _, ok := e.store.Snapshot().Get(conversationID); !ok {
		return model.Message{}, ErrNotFound
	}

	p := e.norm.LocalMessage(conversationID, content, isNote, e.clock.Now())
	e.store.Apply(p)

	if e.push != nil {
		msgType := "text"
		if isNote {
			msgType = "system"
		}
		if err := e.push.SendMessage(conversationID, content, msgType); err != nil {
			return *p.Message, err
		}
	}
	return *p.Message, nil
}

// Assign issues the upstream assign command and, on success, patches the
// store. Failures surface to the operator; nothing was optimistically
// committed, so there is nothing to roll back.
func (e *Engine) Assign(ctx context.Context, conversationID string, assignee model.Agent) error {
	if _, ok := e.store.Snapshot().Get(conversationID); !ok {
		return ErrNotFound
	}
	if err := e.upstream.AssignConversation(ctx, conversationID, assignee.ID); err != nil {
		return err
	}
	p := model.Patch{
		Op:             model.OpPatchAssignee,
		ConversationID: conversationID,
		AssigneeID:     assignee.ID,
	}
	if assignee.ID != "" {
		a := assignee
		p.Assignee = &a
	}
	e.store.Apply(p)
	return nil
}

// UpdateStatus issues the upstream status command and, on success, patches
// the store. Same contract as Assign.
func (e *Engine) UpdateStatus(ctx context.Context, conversationID string, status model.Status) error {
	if _, ok := e.store.Snapshot().Get(conversationID); !ok {
		return ErrNotFound
	}
	if err := e.upstream.UpdateStatus(ctx, conversationID, status); err != nil {
		return err
	}
	e.store.Apply(model.Patch{
		Op:             model.OpPatchStatus,
		ConversationID: conversationID,
		Status:         status,
	})
	return nil
}

// selectedRef tracks the operator's focused conversation.
type selectedRef struct {
	mu sync.Mutex
	id string
}

func (s *selectedRef) set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *selectedRef) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *selectedRef) clearIf(id string) {
	s.mu.Lock()
	if s.id == id {
		s.id = ""
	}
	s.mu.Unlock()
}

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/store"
	"github.com/capitalize-ai/support-console/internal/upstream"
)

var (
	operator = model.Agent{ID: "op-1", Name: "Riley"}
	baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

// fakeClock is a deterministic Clock. After returns a channel the test
// controls: pre-fire it to force timeouts, leave it idle otherwise.
type fakeClock struct {
	now     time.Time
	afterCh chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime, afterCh: make(chan time.Time, 1)}
}

func (c *fakeClock) Now() time.Time                         { return c.now }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return c.afterCh }

func (c *fakeClock) fireTimeout() { c.afterCh <- c.now }

// fakeUpstream implements Upstream with scripted responses.
type fakeUpstream struct {
	mu sync.Mutex

	rows     []model.RawConversation
	fetchErr error
	fetches  int

	deleteErr   error
	deleteGate  chan struct{} // when set, DeleteConversation blocks on it
	deleted     []string
	assignErr   error
	assigned    map[string]string
	statusErr   error
	statuses    map[string]model.Status
}

func newFakeUpstream(rows ...model.RawConversation) *fakeUpstream {
	return &fakeUpstream{
		rows:     rows,
		assigned: make(map[string]string),
		statuses: make(map[string]model.Status),
	}
}

func (f *fakeUpstream) FetchSnapshot(ctx context.Context) ([]model.RawConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]model.RawConversation(nil), f.rows...), nil
}

func (f *fakeUpstream) AssignConversation(ctx context.Context, conversationID, assigneeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned[conversationID] = assigneeID
	return nil
}

func (f *fakeUpstream) UpdateStatus(ctx context.Context, conversationID string, status model.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses[conversationID] = status
	return nil
}

func (f *fakeUpstream) DeleteConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	gate := f.deleteGate
	err := f.deleteErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.deleted = append(f.deleted, conversationID)
	f.mu.Unlock()
	return nil
}

func (f *fakeUpstream) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakePush records outbound commands.
type fakePush struct {
	mu       sync.Mutex
	sent     []model.OutboundCommand
	joined   []string
	sendErr  error
}

func (f *fakePush) SendMessage(chatID, content, msgType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, model.OutboundCommand{Type: "send_message", ChatID: chatID, Content: content, MsgType: msgType})
	return nil
}

func (f *fakePush) JoinChat(chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, chatID)
	return nil
}

// fakeBus records removal broadcasts.
type fakeBus struct {
	mu      sync.Mutex
	removed []string
}

func (f *fakeBus) PublishRemoved(conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, conversationID)
	return nil
}

func rawRow(id string) model.RawConversation {
	return model.RawConversation{
		ID:       id,
		Customer: model.RawCustomer{ID: "cust-" + id, Name: "Customer " + id, Email: id + "@example.com"},
		Channel:  "web",
		Status:   "waiting_agent",
		Priority: "medium",
		Messages: []model.RawMessage{
			{ID: "m-" + id, Content: "hello from " + id, Sender: "user", Timestamp: "2025-06-01T11:59:00Z"},
		},
		CreatedAt: "2025-06-01T11:55:00Z",
		UpdatedAt: "2025-06-01T11:59:00Z",
	}
}

func newTestEngine(up Upstream, clock Clock) (*Engine, *fakePush, *fakeBus) {
	p := &fakePush{}
	b := &fakeBus{}
	eng := New(Options{
		Store:    store.New(),
		Upstream: up,
		Push:     p,
		Bus:      b,
		Clock:    clock,
		Operator: operator,
	})
	return eng, p, b
}

func TestPollOnceIngestsSnapshot(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"), rawRow("c2"))
	eng, _, _ := newTestEngine(up, newFakeClock())

	if err := eng.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if eng.Store().Snapshot().Len() != 2 {
		t.Fatalf("expected 2 conversations, got %d", eng.Store().Snapshot().Len())
	}
}

func TestFirstFetchFailureRendersEmptyQueue(t *testing.T) {
	up := newFakeUpstream()
	up.fetchErr = errors.New("connection refused")
	eng, _, _ := newTestEngine(up, newFakeClock())

	if err := eng.PollOnce(context.Background()); err == nil {
		t.Fatalf("expected poll error")
	}
	if eng.Store().Snapshot().Len() != 0 {
		t.Fatalf("failed fetch must leave the store empty, not corrupt")
	}
}

func TestPushAndSnapshotDeliverSameMessageOnce(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	// Push delivers m1 first...
	eng.HandlePushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m1", Content: "Hi", Sender: "user", Timestamp: "2025-06-01T12:00:30Z",
		},
	})
	// ...then the next snapshot poll returns the same message.
	row := rawRow("c1")
	row.Messages = append(row.Messages, model.RawMessage{
		ID: "m1", Content: "Hi", Sender: "user", Timestamp: "2025-06-01T12:00:30Z",
	})
	up.mu.Lock()
	up.rows = []model.RawConversation{row}
	up.mu.Unlock()
	eng.PollOnce(context.Background())

	conv, _ := eng.Store().Snapshot().Get("c1")
	count := 0
	for _, m := range conv.Messages {
		if m.Content == "Hi" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one copy of the message, got %d", count)
	}
}

func TestAgentPushMessageAutoAssigns(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	eng.HandlePushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m2", Content: "I got this", Sender: "admin", SenderID: "op-2",
			Timestamp: "2025-06-01T12:01:00Z",
		},
	})

	conv, _ := eng.Store().Snapshot().Get("c1")
	if conv.AssigneeID != operator.ID {
		t.Fatalf("agent message into unassigned conversation should assign the acting operator, got %q", conv.AssigneeID)
	}
	if conv.LastMessage == nil || conv.LastMessage.Content != "I got this" {
		t.Fatalf("message not appended: %+v", conv.LastMessage)
	}
}

func TestSelfEchoDoesNotDoubleApply(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	msg, err := eng.SendMessage(context.Background(), "c1", "on my way", false)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// The server echoes our own message back over the push channel.
	eng.HandlePushEvent(model.PushEvent{
		Type:   model.EventNewMessage,
		ChatID: "c1",
		Message: &model.RawMessage{
			ID: "m-server", Content: "on my way", Sender: "admin", SenderID: operator.ID,
			Timestamp: "2025-06-01T12:00:05Z",
		},
	})

	conv, _ := eng.Store().Snapshot().Get("c1")
	count := 0
	for _, m := range conv.Messages {
		if m.Content == "on my way" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("self echo re-applied the optimistic message: %d copies", count)
	}
	if conv.LastMessage.ID != msg.ID {
		t.Fatalf("optimistic message should remain the last message")
	}
}

func TestSendMessageDispatchesOutbound(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, p, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	if _, err := eng.SendMessage(context.Background(), "c1", "hello", false); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if _, err := eng.SendMessage(context.Background(), "c1", "internal note", true); err != nil {
		t.Fatalf("send note failed: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sent) != 2 {
		t.Fatalf("expected 2 outbound commands, got %d", len(p.sent))
	}
	if p.sent[0].MsgType != "text" || p.sent[1].MsgType != "system" {
		t.Fatalf("note flag not mapped to outbound msg type: %+v", p.sent)
	}
}

func TestAssignFailureLeavesStoreUntouched(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	up.assignErr = &upstream.HTTPError{StatusCode: 403, Reason: "not allowed"}
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	err := eng.Assign(context.Background(), "c1", model.Agent{ID: "op-2", Name: "Sam"})
	if err == nil || err.Error() != "not allowed" {
		t.Fatalf("expected surfaced reason, got %v", err)
	}
	conv, _ := eng.Store().Snapshot().Get("c1")
	if conv.AssigneeID != "" {
		t.Fatalf("failed command must not mutate the store, got assignee %q", conv.AssigneeID)
	}
}

func TestAssignSuccessPatchesStore(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	if err := eng.Assign(context.Background(), "c1", model.Agent{ID: "op-2", Name: "Sam"}); err != nil {
		t.Fatalf("assign failed: %v", err)
	}
	conv, _ := eng.Store().Snapshot().Get("c1")
	if conv.AssigneeID != "op-2" || conv.Assignee == nil || conv.Assignee.Name != "Sam" {
		t.Fatalf("assignment not applied: %+v", conv.Assignee)
	}
}

func TestDeleteSuccess(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"), rawRow("c2"))
	eng, _, b := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())
	eng.Select("c1")

	if err := eng.Delete(context.Background(), "c1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, ok := eng.Store().Snapshot().Get("c1"); ok {
		t.Fatalf("deleted conversation still visible")
	}
	if !eng.Store().Tombstones().Contains("c1") {
		t.Fatalf("deleted id not tombstoned")
	}
	if eng.Selected() != "" {
		t.Fatalf("selection still points at the deleted conversation")
	}
	b.mu.Lock()
	broadcasts := len(b.removed)
	b.mu.Unlock()
	if broadcasts != 1 {
		t.Fatalf("expected 1 removal broadcast, got %d", broadcasts)
	}
	if eng.Deleting() != "" {
		t.Fatalf("machine not back to idle")
	}

	// A later stale snapshot still listing c1 must not resurrect it.
	eng.PollOnce(context.Background())
	if _, ok := eng.Store().Snapshot().Get("c1"); ok {
		t.Fatalf("stale snapshot resurrected the deleted conversation")
	}
}

func TestDeleteFailureKeepsConversation(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	up.deleteErr = &upstream.HTTPError{StatusCode: 500, Reason: "database unavailable"}
	eng, _, b := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	err := eng.Delete(context.Background(), "c1")
	if err == nil || err.Error() != "database unavailable" {
		t.Fatalf("expected surfaced server reason, got %v", err)
	}
	if _, ok := eng.Store().Snapshot().Get("c1"); !ok {
		t.Fatalf("failed delete must leave the conversation visible")
	}
	if eng.Store().Tombstones().Contains("c1") {
		t.Fatalf("failed delete must not tombstone")
	}
	if eng.Deleting() != "" {
		t.Fatalf("machine not back to idle after failure")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.removed) != 0 {
		t.Fatalf("failed delete must not broadcast")
	}
}

func TestDeleteTimeoutRevertsToIdle(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	up.deleteGate = make(chan struct{}) // server never responds
	defer close(up.deleteGate)

	clock := newFakeClock()
	eng, _, _ := newTestEngine(up, clock)
	eng.PollOnce(context.Background())

	clock.fireTimeout()
	err := eng.Delete(context.Background(), "c1")
	if !errors.Is(err, ErrDeletionTimeout) {
		t.Fatalf("expected ErrDeletionTimeout, got %v", err)
	}

	if _, ok := eng.Store().Snapshot().Get("c1"); !ok {
		t.Fatalf("timed-out delete must leave the conversation visible")
	}
	if eng.Store().Tombstones().Contains("c1") {
		t.Fatalf("timed-out delete must not tombstone")
	}
	if eng.Deleting() != "" {
		t.Fatalf("machine stuck in deleting after timeout")
	}
}

func TestSecondDeleteWhileDeletingIsRejected(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"), rawRow("c2"))
	gate := make(chan struct{})
	up.deleteGate = gate

	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	done := make(chan error, 1)
	go func() { done <- eng.Delete(context.Background(), "c1") }()

	// Wait for the machine to enter Deleting.
	waitFor(t, func() bool { return eng.Deleting() == "c1" })

	if err := eng.Delete(context.Background(), "c2"); !errors.Is(err, ErrDeletionInFlight) {
		t.Fatalf("expected ErrDeletionInFlight, got %v", err)
	}

	// Polling is suppressed while the deletion is in flight.
	before := up.fetchCount()
	if err := eng.PollOnce(context.Background()); err != nil {
		t.Fatalf("suppressed poll returned error: %v", err)
	}
	if up.fetchCount() != before {
		t.Fatalf("poll was not suppressed during deletion")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
}

func TestChatDeletedPushConvergesLikeLocalDeletion(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, b := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())
	eng.Select("c1")

	eng.HandlePushEvent(model.PushEvent{Type: model.EventChatDeleted, ChatID: "c1"})

	if _, ok := eng.Store().Snapshot().Get("c1"); ok {
		t.Fatalf("chat_deleted did not remove the conversation")
	}
	if !eng.Store().Tombstones().Contains("c1") {
		t.Fatalf("chat_deleted did not tombstone")
	}
	if eng.Selected() != "" {
		t.Fatalf("chat_deleted did not clear the selection")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.removed) != 0 {
		t.Fatalf("an upstream deletion must not be re-broadcast")
	}

	// Stale snapshot still listing c1 cannot bring it back.
	eng.PollOnce(context.Background())
	if _, ok := eng.Store().Snapshot().Get("c1"); ok {
		t.Fatalf("stale snapshot resurrected a remotely deleted conversation")
	}
}

func TestRemoteRemovalFromPeerSession(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())

	eng.HandleRemoteRemoval("c1")

	if _, ok := eng.Store().Snapshot().Get("c1"); ok {
		t.Fatalf("peer removal did not remove the conversation")
	}
	if !eng.Store().Tombstones().Contains("c1") {
		t.Fatalf("peer removal did not tombstone")
	}
}

func TestMalformedPushEventIsDroppedWhole(t *testing.T) {
	up := newFakeUpstream(rawRow("c1"))
	eng, _, _ := newTestEngine(up, newFakeClock())
	eng.PollOnce(context.Background())
	before := eng.Store().Snapshot()

	eng.HandlePushEvent(model.PushEvent{Type: model.EventNewMessage, ChatID: "c1"})
	eng.HandlePushEvent(model.PushEvent{Type: model.PushEventType("typing"), ChatID: "c1"})

	if eng.Store().Snapshot() != before {
		t.Fatalf("malformed events must not touch the store")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

package model

// PatchOp tags a normalized patch with the store operation it requests.
type PatchOp string

const (
	OpUpsertConversation PatchOp = "upsert_conversation"
	OpAppendMessage      PatchOp = "append_message"
	OpPatchStatus        PatchOp = "patch_status"
	OpPatchAssignee      PatchOp = "patch_assignee"
	OpRemoveConversation PatchOp = "remove_conversation"
)

// Patch is one normalized, channel-agnostic fact about a conversation.
// Every update source (snapshot row, push event, local intent) is reduced to
// this shape before touching the store, so duplicate delivery and disorder
// between channels are absorbed by a single merge path.
type Patch struct {
	Op             PatchOp
	ConversationID string

	// OpUpsertConversation: partial conversation; zero-valued fields mean
	// "unspecified" and do not overwrite existing state.
	Conversation *Conversation

	// OpAppendMessage.
	Message *Message

	// AutoAssign carries the acting operator for agent-authored appends.
	// The store applies it only if the conversation has no assignee yet; it
	// is a local inference, superseded by any later authoritative patch.
	AutoAssign *Agent

	// OpPatchStatus. Empty means no status change.
	Status Status

	// OpPatchAssignee. Empty AssigneeID clears the assignment.
	AssigneeID string
	Assignee   *Agent
}

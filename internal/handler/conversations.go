// Package handler provides HTTP handlers for the console API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/support-console/internal/engine"
	"github.com/capitalize-ai/support-console/internal/middleware"
	"github.com/capitalize-ai/support-console/internal/model"
	"github.com/capitalize-ai/support-console/internal/queue"
	"github.com/capitalize-ai/support-console/pkg/logger"
)

// ConversationHandler serves the queue view and conversation commands.
type ConversationHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(eng *engine.Engine, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		engine: eng,
		logger: log,
	}
}

// Queue handles GET /api/v1/queue?tab=<tab>&q=<term>
func (h *ConversationHandler) Queue(w http.ResponseWriter, r *http.Request) {
	tab := queue.Tab(r.URL.Query().Get("tab"))
	if tab == "" {
		tab = queue.TabMyInbox
	}
	if !tab.Valid() {
		writeError(w, http.StatusBadRequest, "unknown tab")
		return
	}

	convs := h.engine.Queue(tab, r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tab":           tab,
		"conversations": newViews(convs, h.engine.Budgets(), h.engine.Now()),
		"total":         len(convs),
	})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.engine.Get(conversationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	writeJSON(w, http.StatusOK, newView(conv, h.engine.Budgets(), h.engine.Now()))
}

// Select handles POST /api/v1/conversations/{id}/select
func (h *ConversationHandler) Select(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.engine.Get(conversationID); err != nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	h.engine.Select(conversationID)
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /api/v1/conversations/{id}/messages
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.engine.SendMessage(r.Context(), conversationID, req.Content, req.IsNote)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, msg)
}

// Assign handles PUT /api/v1/conversations/{id}/assignee
func (h *ConversationHandler) Assign(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignee := model.Agent{ID: req.AssigneeID, Name: req.Name, Avatar: req.Avatar}
	if err := h.engine.Assign(r.Context(), conversationID, assignee); err != nil {
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateStatus handles PUT /api/v1/conversations/{id}/status
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateStatus(req.Status); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.UpdateStatus(r.Context(), conversationID, req.Status); err != nil {
		writeEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Delete(r.Context(), conversationID); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"id":     conversationID,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/council/store"
)

// ConversationHandler serves the conversation CRUD endpoints.
type ConversationHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewConversationHandler creates the CRUD handler.
func NewConversationHandler(s store.Store, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{store: s, logger: logger.With(zap.String("component", "conversation_handler"))}
}

// HandleList serves GET /api/conversations.
func (h *ConversationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List(r.Context())
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}
	WriteSuccess(w, summaries)
}

// HandleCreate serves POST /api/conversations.
func (h *ConversationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.Create(r.Context(), uuid.NewString())
	if err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}
	h.logger.Info("conversation created", zap.String("conversation_id", conv.ID))
	WriteSuccess(w, conv)
}

// HandleGet serves GET /api/conversations/{id}.
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteErrorMessage(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}
	WriteSuccess(w, conv)
}

// HandleDelete serves DELETE /api/conversations/{id}.
func (h *ConversationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteErrorMessage(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}
	h.logger.Info("conversation deleted", zap.String("conversation_id", id))
	WriteSuccess(w, map[string]string{"status": "deleted"})
}

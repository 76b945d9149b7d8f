package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/council/api"
	"github.com/BaSui01/council/council"
	"github.com/BaSui01/council/store"
)

// Deliberator runs one deliberation and generates titles. Satisfied by
// council.Orchestrator.
type Deliberator interface {
	Execute(ctx context.Context, userQuery string, history []string, gate council.ClarificationGate, emit council.EventSink) (*council.Run, error)
	Title(ctx context.Context, userQuery string) string
}

// RunMetrics tracks run lifecycle counters. May be nil.
type RunMetrics interface {
	RunStarted()
	RunFinished(status string)
}

// DeliberationHandler serves the streaming message endpoint and the
// clarification submit endpoint.
type DeliberationHandler struct {
	orch    Deliberator
	store   store.Store
	gates   *GateRegistry
	metrics RunMetrics
	logger  *zap.Logger
}

// NewDeliberationHandler wires the streaming handler. metrics may be nil.
func NewDeliberationHandler(orch Deliberator, s store.Store, gates *GateRegistry, metrics RunMetrics, logger *zap.Logger) *DeliberationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliberationHandler{
		orch:    orch,
		store:   s,
		gates:   gates,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "deliberation_handler")),
	}
}

// HandleStream serves POST /api/conversations/{id}/message/stream. It
// runs the full pipeline and streams one SSE event per stage
// transition. The connection stays open across the clarification
// pause; answers arrive through HandleClarification.
func (h *DeliberationHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Content == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "content is required", h.logger)
		return
	}

	ctx := r.Context()
	conv, err := h.store.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteErrorMessage(w, http.StatusNotFound, "not_found", "conversation not found", h.logger)
			return
		}
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}
	isFirstMessage := len(conv.Messages) == 0
	history := historyLines(conv)

	if err := h.store.AddUserMessage(ctx, conversationID, req.Content); err != nil {
		WriteErrorMessage(w, http.StatusInternalServerError, "storage_error", err.Error(), h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, http.StatusInternalServerError, "internal_error", "streaming not supported", h.logger)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Title generation overlaps the run on a first message.
	var titleCh chan string
	if isFirstMessage {
		titleCh = make(chan string, 1)
		go func() { titleCh <- h.orch.Title(ctx, req.Content) }()
	}

	var gate council.ClarificationGate = council.SkipGate{}
	if !req.SkipClarification {
		channelGate := h.gates.Register(conversationID)
		defer h.gates.Remove(conversationID)
		gate = channelGate
	}

	if h.metrics != nil {
		h.metrics.RunStarted()
	}

	events := make(chan council.Event, 64)
	var run *council.Run
	var runErr error
	go func() {
		defer close(events)
		run, runErr = h.orch.Execute(ctx, req.Content, history, gate, func(e council.Event) { events <- e })
	}()

	for ev := range events {
		switch ev.Type {
		case council.EventClarificationRequest:
			if prompt, ok := ev.Data.(council.ClarificationPrompt); ok {
				if err := h.store.AddPendingIntent(ctx, conversationID, prompt.Draft, prompt.Questions); err != nil {
					h.logger.Warn("failed to persist pending intent", zap.Error(err))
				}
			}
		case council.EventComplete:
			// Held back so title_complete can precede it.
			continue
		}
		writeSSE(w, flusher, ev)
	}

	if runErr != nil {
		if h.metrics != nil {
			h.metrics.RunFinished("failed")
		}
		h.logger.Error("deliberation run failed",
			zap.String("conversation_id", conversationID),
			zap.Error(runErr))
		// Synthesis failures already emitted an error event.
		if ctx.Err() == nil && !errors.Is(runErr, context.Canceled) {
			writeSSE(w, flusher, council.Event{Type: council.EventError, Data: map[string]any{"message": runErr.Error()}})
		}
		return
	}

	if err := h.store.FinalizeDeliberation(ctx, conversationID, run); err != nil {
		h.logger.Error("failed to persist deliberation", zap.Error(err))
	}

	if titleCh != nil {
		title := <-titleCh
		if err := h.store.UpdateTitle(ctx, conversationID, title); err != nil {
			h.logger.Warn("failed to update title", zap.Error(err))
		}
		writeSSE(w, flusher, council.Event{Type: council.EventTitleComplete, Data: map[string]string{"title": title}})
	}

	if h.metrics != nil {
		h.metrics.RunFinished("ok")
	}
	writeSSE(w, flusher, council.Event{Type: council.EventComplete})
}

// HandleClarification serves POST /api/conversations/{id}/clarification.
// It resumes a run paused at the clarification gate.
func (h *DeliberationHandler) HandleClarification(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req api.ClarificationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	gate := h.gates.Lookup(conversationID)
	if gate == nil {
		WriteErrorMessage(w, http.StatusConflict, "no_pending_run", "no run is waiting for clarification", h.logger)
		return
	}

	if err := gate.Submit(council.ClarificationResponse{Answers: req.Answers, Skip: req.Skip}); err != nil {
		WriteErrorMessage(w, http.StatusConflict, "no_pending_run", "no run is waiting for clarification", h.logger)
		return
	}

	if err := h.store.ResolvePendingIntent(r.Context(), conversationID, req.Answers); err != nil {
		h.logger.Warn("failed to persist clarification answers", zap.Error(err))
	}

	h.logger.Info("clarification submitted",
		zap.String("conversation_id", conversationID),
		zap.Int("answers", len(req.Answers)),
		zap.Bool("skip", req.Skip))
	WriteSuccess(w, api.StatusResponse{Status: "submitted"})
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev council.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

// historyLines flattens prior messages for the intent stage context.
func historyLines(conv *store.Conversation) []string {
	lines := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		if m.Content == "" {
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	return lines
}

// Package handlers implements the HTTP endpoints of the deliberation
// service.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/council/llm"
)

// Response is the unified API envelope.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the serialized error body.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteErrorMessage writes an error envelope with a plain message.
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status))
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// WriteProviderError maps an upstream gateway error onto the envelope.
func WriteProviderError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if llmErr := llm.AsError(err); llmErr != nil {
		status := llmErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		if logger != nil {
			logger.Error("upstream error",
				zap.String("code", string(llmErr.Code)),
				zap.String("model", llmErr.Model),
				zap.Error(err))
		}
		WriteJSON(w, status, Response{
			Success:   false,
			Error:     &ErrorInfo{Code: string(llmErr.Code), Message: llmErr.Message, Retryable: llmErr.Retryable},
			Timestamp: time.Now(),
		})
		return
	}
	WriteErrorMessage(w, http.StatusInternalServerError, "internal_error", err.Error(), logger)
}

// DecodeJSONBody decodes the request body, writing the error response
// itself on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error(), logger)
		return err
	}
	return nil
}

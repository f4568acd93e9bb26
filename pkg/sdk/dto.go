package sdk

import (
	"encoding/json"
	"time"

	"github.com/ethanbaker/api/pkg/api_types"
)

// ApiResponse represents the envelope used by the admin endpoints
type ApiResponse[T any] struct {
	Status  api_types.StatusType `json:"status"`          // Status message
	Code    int                  `json:"code"`            // Status code
	Message string               `json:"message"`         // Human-readable message
	Data    T                    `json:"data,omitempty"`  // Optional data field for successful responses
	Error   any                  `json:"error,omitempty"` // Optional errors field for error responses
}

// AsGinResponse converts the ApiResponse to a format suitable for Gin framework
func (r ApiResponse[T]) AsGinResponse() (int, any) {
	return r.Code, r
}

func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  api_types.StatusSuccess,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func NewErrorResponse(code int, message string, err any) ApiResponse[any] {
	return ApiResponse[any]{
		Status:  api_types.StatusError,
		Code:    code,
		Message: message,
		Error:   err,
	}
}

/** Chat */

// AskRequest is the body of POST /api/chat/ask
type AskRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Query     string `json:"query" binding:"required"`
}

// AskResponse is returned by POST /api/chat/ask
type AskResponse struct {
	Success   bool   `json:"success"`
	Answer    string `json:"answer,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"` // Set on failure
}

// Message is one entry of a session history
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TurnID    string    `json:"turnId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryResponse is returned by GET /api/chat/history/:sessionId
type HistoryResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`
}

// StatusResponse is a bare success flag with a message, used by clear and by
// failed asks
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

/** Realtime */

// Realtime event names
const (
	EventChatMessage     = "chat:message"
	EventChatResponse    = "chat:response"
	EventChatHistory     = "chat:history"
	EventHistoryResponse = "chat:history:response"
	EventChatClear       = "chat:clear"
	EventChatCleared     = "chat:cleared"
	EventChatError       = "chat:error"
)

// Event is the envelope of every realtime frame
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data into an Event
func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// ChatPayload carries a query inbound and an answer outbound
type ChatPayload struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// SessionPayload identifies a session for history and clear events
type SessionPayload struct {
	SessionID string `json:"sessionId"`
}

// HistoryPayload is the data of chat:history:response
type HistoryPayload struct {
	SessionID string    `json:"sessionId"`
	History   []Message `json:"history"`
}

// ErrorPayload is the data of chat:error
type ErrorPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Event     string `json:"event,omitempty"` // Inbound event that failed
	Message   string `json:"message"`
}

/** Admin */

// Transcript is one persisted query/response pair
type Transcript struct {
	ID        uint      `json:"id"`
	SessionID string    `json:"sessionId"`
	TurnID    string    `json:"turnId,omitempty"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// IngestStats reports the outcome of a news ingestion run
type IngestStats struct {
	Feeds       int `json:"feeds"`
	FailedFeeds int `json:"failedFeeds"`
	Articles    int `json:"articles"`
	Indexed     int `json:"indexed"`
	Skipped     int `json:"skipped"`
}

package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in a session's conversation log
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	TurnID    string    `json:"turnId,omitempty"` // Correlates a user message with the assistant reply of the same turn
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(role Role, content, turnID string) Message {
	return Message{
		Role:      role,
		Content:   content,
		TurnID:    turnID,
		Timestamp: time.Now().UTC(),
	}
}

// NewTurnID generates a fresh correlation id for a conversational turn
func NewTurnID() string {
	return uuid.NewString()
}

// Pair is a completed user query and assistant response
type Pair struct {
	SessionID string
	TurnID    string
	Query     string
	Response  string
	Timestamp time.Time
}

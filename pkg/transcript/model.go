package transcript

import (
	"time"

	"github.com/ethanbaker/ragchat/pkg/session"
)

// Record is one completed query/response pair. Rows are only ever inserted
type Record struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"column:session_id;size:255;not null;index"`
	TurnID    string    `json:"turn_id" gorm:"column:turn_id;size:36;index"`
	Query     string    `json:"query" gorm:"type:text;not null"`
	Response  string    `json:"response" gorm:"type:text;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
}

// TableName sets the table name for GORM
func (Record) TableName() string {
	return "chat_transcripts"
}

// NewRecord converts a session pair into a transcript row
func NewRecord(pair session.Pair) *Record {
	ts := pair.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &Record{
		SessionID: pair.SessionID,
		TurnID:    pair.TurnID,
		Query:     pair.Query,
		Response:  pair.Response,
		Timestamp: ts.UTC(),
	}
}

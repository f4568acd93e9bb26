package chat

import (
	"context"

	"github.com/ethanbaker/ragchat/pkg/rag"
	"github.com/ethanbaker/ragchat/pkg/sdk"
	"github.com/ethanbaker/ragchat/pkg/session"
)

// Service is the conversational core the chat routes call into
type Service interface {
	ProcessTurn(ctx context.Context, sessionID, query string) (*rag.TurnResult, error)
	History(ctx context.Context, sessionID string) ([]session.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// ToSDKMessages converts stored messages to their wire form. The result is
// never nil so it encodes as []
func ToSDKMessages(messages []session.Message) []sdk.Message {
	out := make([]sdk.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, sdk.Message{
			Role:      string(m.Role),
			Content:   m.Content,
			TurnID:    m.TurnID,
			Timestamp: m.Timestamp,
		})
	}
	return out
}

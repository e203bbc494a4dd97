package application

import (
	"context"

	"voice-agent/internal/domain"
)

type AgentEndpoint interface {
	Send(ctx context.Context, sessionID string, payload domain.Payload) (*domain.AgentReply, error)
}

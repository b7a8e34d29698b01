package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogBackend records the message instead of sending it. It is the last
// resort in the chain and the only backend in development.
type LogBackend struct{}

func (LogBackend) Name() string { return "log" }

func (LogBackend) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	zap.L().Info("notification",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

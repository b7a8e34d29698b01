// Package notify delivers best-effort messages to agents and clients.
//
// Delivery never fails the operation that triggered it: backends are tried in
// rank order, failures are logged, and the caller only learns whether any
// backend accepted the message.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("message has no recipient address")

type Message struct {
	UserID  string
	To      string
	Name    string
	Subject string
	Body    string

	// Event fields are pushed over the websocket hub to UserID.
	Event         string
	TransactionID string
	Status        string
}

type Backend interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Sender is what the dispatcher needs from a Chain.
type Sender interface {
	Notify(ctx context.Context, msg Message) bool
}

// Chain tries its backends in order and stops at the first success.
type Chain struct {
	backends []Backend
}

func NewChain(backends ...Backend) *Chain {
	return &Chain{backends: backends}
}

func (c *Chain) Backends() []string {
	names := make([]string, 0, len(c.backends))
	for _, backend := range c.backends {
		names = append(names, backend.Name())
	}
	return names
}

func (c *Chain) Notify(ctx context.Context, msg Message) bool {
	if msg.To == "" {
		return false
	}
	for _, backend := range c.backends {
		err := safeSend(ctx, backend, msg)
		if err == nil {
			zap.L().Debug("notification sent", zap.String("backend", backend.Name()), zap.String("to", msg.To), zap.String("subject", msg.Subject))
			return true
		}
		zap.L().Warn("notification backend failed",
			zap.String("backend", backend.Name()),
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
	zap.L().Warn("notification not delivered", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return false
}

func safeSend(ctx context.Context, backend Backend, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", backend.Name(), r)
		}
	}()
	return backend.Send(ctx, msg)
}

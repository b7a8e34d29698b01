package notify

import (
	"context"
	"sync"
	"time"

	"dust2cash/internal/websocket"

	"go.uber.org/zap"
)

type Pusher interface {
	Publish(userID string, event websocket.Event)
}

// Dispatcher decouples delivery from the request path. Enqueue pushes the
// websocket event immediately and queues the email for a worker; when the
// queue is full the email is dropped and logged.
type Dispatcher struct {
	sender  Sender
	pusher  Pusher
	queue   chan Message
	workers int
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, pusher Pusher, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sender:  sender,
		pusher:  pusher,
		queue:   make(chan Message, queueSize),
		workers: workers,
		timeout: 30 * time.Second,
	}
}

func (d *Dispatcher) Enqueue(msgs ...Message) {
	for _, msg := range msgs {
		if msg.UserID != "" && msg.Event != "" && d.pusher != nil {
			d.pusher.Publish(msg.UserID, websocket.Event{
				Type:          msg.Event,
				TransactionID: msg.TransactionID,
				Status:        msg.Status,
				Message:       msg.Subject,
			})
		}
		if msg.To == "" {
			continue
		}
		select {
		case d.queue <- msg:
		default:
			zap.L().Warn("notification queue full, dropping message", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		}
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx)
	}
	d.wg.Wait()
	if pending := len(d.queue); pending > 0 {
		zap.L().Warn("notification dispatcher stopped with queued messages", zap.Int("pending", pending))
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("notification worker recovered", zap.Any("panic", r), zap.String("to", msg.To))
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	d.sender.Notify(sendCtx, msg)
}

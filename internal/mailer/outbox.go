package mailer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"taskflow.dev/internal/obs"
)

// ErrOutboxClosed is returned by Enqueue after Close.
var ErrOutboxClosed = errors.New("mailer: outbox closed")

// Queue accepts messages for asynchronous delivery.
type Queue interface {
	Enqueue(msg Message) error
}

// Outbox delivers messages on background workers. Enqueue never blocks the caller: when the
// queue is full the message is dropped and logged.
type Outbox struct {
	sender  Sender
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	wg     sync.WaitGroup
}

var _ Queue = (*Outbox)(nil)

// NewOutbox starts workers goroutines draining a queue of the given size.
func NewOutbox(sender Sender, log *zap.Logger, workers, size int) *Outbox {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Outbox{
		sender:  sender,
		log:     log,
		timeout: 30 * time.Second,
		queue:   make(chan Message, size),
	}
	o.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go o.work()
	}
	return o
}

// Enqueue schedules msg for delivery.
func (o *Outbox) Enqueue(msg Message) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrOutboxClosed
	}
	select {
	case o.queue <- msg:
		return nil
	default:
		obs.MailTotal.WithLabelValues("dropped").Inc()
		o.log.Warn("mail queue full, dropping message", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		return nil
	}
}

// Verify checks the underlying transport and logs the outcome. It never fails startup.
func (o *Outbox) Verify(ctx context.Context) bool {
	if err := o.sender.Verify(ctx); err != nil {
		o.log.Warn("email service not configured", zap.Error(err))
		return false
	}
	o.log.Info("email service configured successfully")
	return true
}

// Close stops accepting messages and waits for queued ones to be attempted, or ctx to end.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) work() {
	defer o.wg.Done()
	for msg := range o.queue {
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		err := o.sender.Send(ctx, msg)
		cancel()
		if err != nil {
			obs.MailTotal.WithLabelValues("failed").Inc()
			o.log.Error("failed to send email", zap.String("to", msg.To), zap.String("subject", msg.Subject), zap.Error(err))
			continue
		}
		obs.MailTotal.WithLabelValues("sent").Inc()
	}
}

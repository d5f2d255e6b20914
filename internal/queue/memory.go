package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is an in-process Bus. Each instance is independent; tests and
// local runs create their own.
type MemoryBus struct {
	mu     sync.Mutex
	queues map[string][]Message
	signal chan struct{}
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		queues: make(map[string][]Message),
		signal: make(chan struct{}),
	}
}

var _ Bus = (*MemoryBus)(nil)

// Send appends msg to queue and wakes every waiting receiver.
func (b *MemoryBus) Send(ctx context.Context, queue string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg.Body = append([]byte(nil), msg.Body...)

	b.mu.Lock()
	b.queues[queue] = append(b.queues[queue], msg)
	close(b.signal)
	b.signal = make(chan struct{})
	b.mu.Unlock()
	return nil
}

// ReceiveSession waits for the message tagged with session.
func (b *MemoryBus) ReceiveSession(ctx context.Context, queue string, session SessionToken, timeout time.Duration) (Message, error) {
	return b.receive(ctx, queue, timeout, func(m Message) bool { return m.Session.Equal(session) })
}

// Receive waits for the next message on queue regardless of session.
func (b *MemoryBus) Receive(ctx context.Context, queue string, timeout time.Duration) (Message, error) {
	return b.receive(ctx, queue, timeout, func(Message) bool { return true })
}

// Pending returns a copy of the messages waiting on queue.
func (b *MemoryBus) Pending(queue string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.queues[queue]...)
}

func (b *MemoryBus) receive(ctx context.Context, queue string, timeout time.Duration, match func(Message) bool) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		pending := b.queues[queue]
		for i, m := range pending {
			if match(m) {
				b.queues[queue] = append(pending[:i:i], pending[i+1:]...)
				b.mu.Unlock()
				return m, nil
			}
		}
		wake := b.signal
		b.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return Message{}, ErrReceiveTimeout
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

package dequeue

import (
	"context"

	"postoffice/internal/contracts"
	"postoffice/internal/queue"
	"postoffice/internal/types"
)

// Notifier tells the producing subsystem that a bundle's content is no
// longer needed.
type Notifier interface {
	NotifyDequeued(ctx context.Context, bundle *types.Bundle) error
}

// BusNotifier publishes a Dequeue message to the origin's dequeue queue.
type BusNotifier struct {
	sender queue.Sender
}

// NewBusNotifier creates a notifier over sender.
func NewBusNotifier(sender queue.Sender) *BusNotifier {
	return &BusNotifier{sender: sender}
}

var _ Notifier = (*BusNotifier)(nil)

// NotifyDequeued sends the dequeue notice. The bundle ID is the idempotency
// key so a resumed acknowledgement can be deduplicated downstream.
func (n *BusNotifier) NotifyDequeued(ctx context.Context, bundle *types.Bundle) error {
	notice := &contracts.DequeueNotice{
		NotificationIDs: bundle.NotificationIDs,
		Recipient:       bundle.Recipient.String(),
	}
	msg := queue.NewMessage(ctx, types.MessageDequeue, notice.Marshal())
	msg.IdempotencyKey = bundle.ID
	return n.sender.Send(ctx, queue.DequeueQueue(bundle.Origin), msg)
}

package intake

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"postoffice/internal/contracts"
	"postoffice/internal/queue"
	"postoffice/internal/types"
)

// Submitter is the part of Service the queue handler needs.
type Submitter interface {
	Submit(ctx context.Context, n *types.DataAvailableNotification, token string) (SubmitResult, error)
}

// Handler consumes DataAvailable messages delivered by an SQS event source
// mapping with ReportBatchItemFailures enabled.
type Handler struct {
	submitter Submitter
	codec     *queue.Codec
	logger    *slog.Logger
}

// NewHandler creates the queue handler.
func NewHandler(submitter Submitter, codec *queue.Codec, logger *slog.Logger) *Handler {
	return &Handler{submitter: submitter, codec: codec, logger: logger}
}

// Handle processes a batch. Messages that can never succeed (protocol or
// validation errors) are logged and acknowledged; storage and other
// transient failures are returned as batch item failures for redelivery.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		if err := h.handleRecord(ctx, record); err != nil {
			if types.IsProtocol(err) || types.IsValidation(err) {
				h.logger.WarnContext(ctx, "discarding poison notification message",
					"message_id", record.MessageId,
					"error", err.Error(),
				)
				continue
			}
			h.logger.ErrorContext(ctx, "notification intake failed, will retry",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
		}
	}
	return resp, nil
}

func (h *Handler) handleRecord(ctx context.Context, record events.SQSMessage) error {
	msg, err := h.codec.Decode(record.Body, queue.AttributesFromEvent(record.MessageAttributes))
	if err != nil {
		return err
	}
	if msg.Type != types.MessageDataAvailable {
		return types.NewAppErrorWithDetails(types.ErrCodeProtocolMalformed, "unexpected message type on intake queue", nil,
			map[string]any{"message_type": string(msg.Type)})
	}
	contract, err := contracts.UnmarshalDataAvailable(msg.Body)
	if err != nil {
		return err
	}

	ctx = types.WithCorrelationID(ctx, msg.CorrelationID)
	ctx = types.WithLogger(ctx, h.logger.With(
		"correlation_id", msg.CorrelationID,
		"event_id", msg.EventID,
	))
	_, err = h.submitter.Submit(ctx, contract.ToDomain(), msg.IdempotencyKey)
	return err
}

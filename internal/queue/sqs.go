package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sony/gobreaker/v2"

	"postoffice/internal/types"
)

// SQSAPI is the subset of *sqs.Client the bus uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// maxLongPoll is the SQS ceiling for WaitTimeSeconds.
const maxLongPoll = 20 * time.Second

const (
	// foreignVisibility hides another session's reply from this receiver
	// for a moment so the next long poll does not return it straight away.
	foreignVisibility int32 = 1

	// foreignPause separates polls that only returned other sessions' replies.
	foreignPause = 100 * time.Millisecond

	// staleGrace absorbs clock skew between SQS and this host when deciding
	// that a reply has outlived every receiver that could want it.
	staleGrace = 5 * time.Second
)

// SQSBus implements Bus on Amazon SQS. Queue names resolve to URLs by
// joining them to urlPrefix. Each destination queue gets its own circuit
// breaker, created on first send and reused afterwards; breakers hold no
// per-request state.
type SQSBus struct {
	client    SQSAPI
	urlPrefix string
	codec     *Codec
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*sqs.SendMessageOutput]
}

// NewSQSBus creates a bus over client.
func NewSQSBus(client SQSAPI, urlPrefix string, codec *Codec, logger *slog.Logger) *SQSBus {
	return &SQSBus{
		client:    client,
		urlPrefix: strings.TrimSuffix(urlPrefix, "/"),
		codec:     codec,
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*sqs.SendMessageOutput]),
	}
}

var _ Bus = (*SQSBus)(nil)

// QueueURL resolves a queue name.
func (b *SQSBus) QueueURL(name string) string {
	return b.urlPrefix + "/" + name
}

func (b *SQSBus) breaker(queue string) *gobreaker.CircuitBreaker[*sqs.SendMessageOutput] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[queue]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*sqs.SendMessageOutput](gobreaker.Settings{
		Name:        "sqs:" + queue,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the queue's health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("sqs circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	b.breakers[queue] = cb
	return cb
}

// Send publishes msg to queue. FIFO queues (".fifo") are grouped by
// session, falling back to correlation id, and deduplicated by event id.
func (b *SQSBus) Send(ctx context.Context, queue string, msg Message) error {
	queueURL := b.QueueURL(queue)
	body, encoding := b.codec.EncodeBody(msg.Body)

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: b.codec.Attributes(msg, encoding),
	}
	if strings.HasSuffix(queue, ".fifo") {
		group := msg.Session.String()
		if group == "" {
			group = msg.CorrelationID
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(msg.EventID)
	}

	_, err := b.breaker(queue).Execute(func() (*sqs.SendMessageOutput, error) {
		return b.client.SendMessage(ctx, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return types.NewAppErrorWithDetails(types.ErrCodeUpstreamBus, "queue circuit open", err,
				map[string]any{"queue": queue})
		}
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamBus, "failed to send message", err,
			map[string]any{"queue": queue})
	}

	b.logger.DebugContext(ctx, "bus message sent",
		"queue", queue,
		"message_type", string(msg.Type),
		"event_id", msg.EventID,
		"correlation_id", msg.CorrelationID,
		"session_id", msg.Session.String(),
		"content_encoding", encoding,
	)
	return nil
}

// ReceiveSession long-polls queue until a message tagged with session
// arrives, the timeout passes, or ctx is cancelled.
//
// Messages for other sessions are handled in one of two ways:
//   - A reply sent longer ago than timeout (plus staleGrace) is deleted.
//     Its receiver used the same timeout and has already given up, so
//     nobody will ever claim it.
//   - Any other foreign reply is hidden for foreignVisibility seconds and
//     the loop pauses before polling again, so a queue holding only
//     foreign replies cannot turn the long poll into a busy loop.
//
// The matching message is deleted even when its body is malformed, so a
// poison reply cannot be received twice.
func (b *SQSBus) ReceiveSession(ctx context.Context, queue string, session SessionToken, timeout time.Duration) (Message, error) {
	queueURL := b.QueueURL(queue)
	deadline := time.Now().Add(timeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	want := session.String()
	staleAfter := timeout + staleGrace
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, ErrReceiveTimeout
		}

		out, err := b.client.ReceiveMessage(pollCtx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(queueURL),
			MaxNumberOfMessages:         10,
			WaitTimeSeconds:             longPollSeconds(remaining),
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{sqsTypes.MessageSystemAttributeNameSentTimestamp},
		})
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			if pollCtx.Err() != nil {
				return Message{}, ErrReceiveTimeout
			}
			return Message{}, types.NewAppErrorWithDetails(types.ErrCodeUpstreamBus, "failed to receive messages", err,
				map[string]any{"queue": queue})
		}

		var (
			found    bool
			matched  Message
			matchErr error
		)
		for _, raw := range out.Messages {
			attrs := AttributesFromSQS(raw.MessageAttributes)
			if found || attrs[AttrSessionID] != want {
				if age, ok := messageAge(raw); ok && age > staleAfter {
					b.logger.InfoContext(ctx, "discarding stale reply for expired session",
						"queue_url", queueURL,
						"message_id", aws.ToString(raw.MessageId),
						"session_id", attrs[AttrSessionID],
						"age", age.String(),
					)
					b.remove(ctx, queueURL, raw)
					continue
				}
				b.release(ctx, queueURL, raw)
				continue
			}
			found = true
			matched, matchErr = b.codec.Decode(aws.ToString(raw.Body), attrs)
			b.remove(ctx, queueURL, raw)
		}
		if found {
			return matched, matchErr
		}
		if len(out.Messages) > 0 {
			if err := pause(pollCtx, min(foreignPause, time.Until(deadline))); err != nil {
				if ctx.Err() != nil {
					return Message{}, ctx.Err()
				}
				return Message{}, ErrReceiveTimeout
			}
		}
	}
}

// longPollSeconds rounds remaining up to whole seconds, capped at the SQS
// ceiling. Rounding down would turn the final second into short polls;
// the poll context still ends the call at the real deadline.
func longPollSeconds(remaining time.Duration) int32 {
	wait := min(remaining, maxLongPoll)
	return int32((wait + time.Second - 1) / time.Second)
}

// messageAge reports how long ago SQS accepted raw, using the
// SentTimestamp system attribute (milliseconds since the epoch).
func messageAge(raw sqsTypes.Message) (time.Duration, bool) {
	ms, ok := raw.Attributes[string(sqsTypes.MessageSystemAttributeNameSentTimestamp)]
	if !ok {
		return 0, false
	}
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Since(time.UnixMilli(millis)), true
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (b *SQSBus) release(ctx context.Context, queueURL string, raw sqsTypes.Message) {
	_, err := b.client.ChangeMessageVisibility(context.WithoutCancel(ctx), &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueURL),
		ReceiptHandle:     raw.ReceiptHandle,
		VisibilityTimeout: foreignVisibility,
	})
	if err != nil {
		b.logger.WarnContext(ctx, "failed to release foreign session message",
			"queue_url", queueURL, "message_id", aws.ToString(raw.MessageId), "error", err)
	}
}

func (b *SQSBus) remove(ctx context.Context, queueURL string, raw sqsTypes.Message) {
	_, err := b.client.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		b.logger.WarnContext(ctx, "failed to delete received message",
			"queue_url", queueURL, "message_id", aws.ToString(raw.MessageId), "error", err)
	}
}

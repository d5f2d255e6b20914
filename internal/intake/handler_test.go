package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"postoffice/internal/contracts"
	"postoffice/internal/queue"
	"postoffice/internal/types"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, n *types.DataAvailableNotification, token string) (SubmitResult, error) {
	args := m.Called(ctx, n, token)
	return args.Get(0).(SubmitResult), args.Error(1)
}

func sqsRecord(t *testing.T, codec *queue.Codec, id string, msg queue.Message) events.SQSMessage {
	t.Helper()
	body, enc := codec.EncodeBody(msg.Body)
	attrs := make(map[string]events.SQSMessageAttribute)
	for k, v := range queue.AttributesFromSQS(codec.Attributes(msg, enc)) {
		v := v
		attrs[k] = events.SQSMessageAttribute{StringValue: &v, DataType: "String"}
	}
	return events.SQSMessage{MessageId: id, Body: body, MessageAttributes: attrs}
}

func dataAvailableMessage(n *contracts.DataAvailable, key string) queue.Message {
	msg := queue.NewMessage(context.Background(), types.MessageDataAvailable, n.Marshal())
	msg.IdempotencyKey = key
	return msg
}

func newHandlerForTest(t *testing.T, s Submitter) (*Handler, *queue.Codec) {
	t.Helper()
	codec, err := queue.NewCodec(0)
	require.NoError(t, err)
	return NewHandler(s, codec, slog.New(slog.NewTextHandler(io.Discard, nil))), codec
}

func TestHandler_SubmitsDecodedNotification(t *testing.T) {
	sub := &mockSubmitter{}
	h, codec := newHandlerForTest(t, sub)

	contract := &contracts.DataAvailable{
		UUID: uuid.NewString(), Recipient: "R1", ContentType: "TimeSeries",
		Origin: "TimeSeries", SupportsBundling: true, Weight: 3,
	}
	sub.On("Submit", mock.Anything, mock.MatchedBy(func(n *types.DataAvailableNotification) bool {
		return n.ID == contract.UUID && n.Weight == 3 && n.SupportsBundling
	}), "key-1").Return(SubmitResult{Outcome: OutcomeAccepted}, nil)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, codec, "m1", dataAvailableMessage(contract, "key-1")),
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	sub.AssertExpectations(t)
}

func TestHandler_PoisonMessagesAreAcknowledged(t *testing.T) {
	sub := &mockSubmitter{}
	h, codec := newHandlerForTest(t, sub)

	wrongType := queue.NewMessage(context.Background(), types.MessageDequeue, nil)
	garbage := queue.NewMessage(context.Background(), types.MessageDataAvailable, []byte{0xff, 0xff})
	invalid := dataAvailableMessage(&contracts.DataAvailable{
		UUID: uuid.NewString(), Recipient: "R1", ContentType: "x", Origin: "Nope", Weight: 1,
	}, "")
	sub.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(SubmitResult{}, types.NewAppError(types.ErrCodeValidationOrigin, "unrecognized origin", nil))

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, codec, "wrong-type", wrongType),
		sqsRecord(t, codec, "garbage", garbage),
		sqsRecord(t, codec, "invalid", invalid),
		{MessageId: "no-attrs", Body: "AA=="},
	}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestHandler_StorageErrorsAreRetried(t *testing.T) {
	sub := &mockSubmitter{}
	h, codec := newHandlerForTest(t, sub)
	sub.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(SubmitResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed", errors.New("conn reset"))).Once()
	sub.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(SubmitResult{Outcome: OutcomeAccepted}, nil).Once()

	mk := func() *contracts.DataAvailable {
		return &contracts.DataAvailable{UUID: uuid.NewString(), Recipient: "R1", ContentType: "x", Origin: "Charges", Weight: 1}
	}
	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, codec, "fails", dataAvailableMessage(mk(), "")),
		sqsRecord(t, codec, "ok", dataAvailableMessage(mk(), "")),
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "fails", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandler_EndToEndWithService(t *testing.T) {
	svc, _ := newTestService()
	h, codec := newHandlerForTest(t, svc)

	contract := &contracts.DataAvailable{
		UUID: uuid.NewString(), Recipient: "R1", ContentType: "x", Origin: "MarketRoles", Weight: 1,
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, codec, "a", dataAvailableMessage(contract, "")),
		sqsRecord(t, codec, "b", dataAvailableMessage(contract, "")),
	}}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := svc.Get(context.Background(), contract.UUID)
	require.NoError(t, err)
	assert.Equal(t, types.OriginMarketRoles, got.Origin)
}

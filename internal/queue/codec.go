package queue

import (
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/klauspost/compress/zstd"

	"postoffice/internal/types"
)

// Message attribute names carried alongside every SQS body.
const (
	AttrMessageType     = "message_type"
	AttrCorrelationID   = "correlation_id"
	AttrEventID         = "event_id"
	AttrSchemaVersion   = "schema_version"
	AttrSessionID       = "session_id"
	AttrReplyTo         = "reply_to"
	AttrIdempotencyKey  = "idempotency_key"
	AttrContentEncoding = "content_encoding"

	encodingZstd = "zstd"
)

// Codec maps envelopes to SQS bodies and attributes. Bodies are base64 of
// the contract bytes, zstd-compressed first when larger than compressAbove.
type Codec struct {
	compressAbove int
	encoder       *zstd.Encoder
	decoders      sync.Pool
}

// NewCodec creates a codec. compressAbove <= 0 disables compression.
func NewCodec(compressAbove int) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("queue: creating zstd encoder: %w", err)
	}
	c := &Codec{compressAbove: compressAbove, encoder: enc}
	c.decoders.New = func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			// Never fails with nil input and default options.
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return d
	}
	return c, nil
}

// EncodeBody returns the SQS body for raw and the content encoding used.
func (c *Codec) EncodeBody(raw []byte) (string, string) {
	if c.compressAbove > 0 && len(raw) > c.compressAbove {
		compressed := c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
		return base64.StdEncoding.EncodeToString(compressed), encodingZstd
	}
	return base64.StdEncoding.EncodeToString(raw), ""
}

// DecodeBody reverses EncodeBody.
func (c *Codec) DecodeBody(body string, encoding string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("body is not base64: %w", err)
	}
	switch encoding {
	case "":
		return raw, nil
	case encodingZstd:
		d := c.decoders.Get().(*zstd.Decoder)
		defer c.decoders.Put(d)
		out, err := d.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd body: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown content encoding %q", encoding)
	}
}

// Attributes renders the envelope fields as SQS message attributes.
func (c *Codec) Attributes(m Message, contentEncoding string) map[string]sqsTypes.MessageAttributeValue {
	attrs := make(map[string]sqsTypes.MessageAttributeValue, 8)
	put := func(name, value string) {
		if value == "" {
			return
		}
		attrs[name] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(value),
		}
	}
	put(AttrMessageType, string(m.Type))
	put(AttrCorrelationID, m.CorrelationID)
	put(AttrEventID, m.EventID)
	put(AttrSchemaVersion, m.SchemaVersion)
	put(AttrSessionID, m.Session.String())
	put(AttrReplyTo, m.ReplyTo)
	put(AttrIdempotencyKey, m.IdempotencyKey)
	put(AttrContentEncoding, contentEncoding)
	return attrs
}

// Decode rebuilds an envelope from an SQS body and flattened attributes.
// Anything this service cannot interpret is a protocol error.
func (c *Codec) Decode(body string, attrs map[string]string) (Message, error) {
	m := Message{
		Type:           types.MessageType(attrs[AttrMessageType]),
		CorrelationID:  attrs[AttrCorrelationID],
		EventID:        attrs[AttrEventID],
		SchemaVersion:  attrs[AttrSchemaVersion],
		ReplyTo:        attrs[AttrReplyTo],
		IdempotencyKey: attrs[AttrIdempotencyKey],
	}
	if raw := attrs[AttrSessionID]; raw != "" {
		session, err := ParseSessionToken(raw)
		if err != nil {
			return Message{}, types.NewAppError(types.ErrCodeProtocolMalformed, "invalid session id", err)
		}
		m.Session = session
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	payload, err := c.DecodeBody(body, attrs[AttrContentEncoding])
	if err != nil {
		return Message{}, types.NewAppError(types.ErrCodeProtocolMalformed, "undecodable message body", err)
	}
	m.Body = payload
	return m, nil
}

// AttributesFromSQS flattens SDK message attributes to their string values.
func AttributesFromSQS(in map[string]sqsTypes.MessageAttributeValue) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}

// AttributesFromEvent flattens Lambda SQS event attributes.
func AttributesFromEvent(in map[string]events.SQSMessageAttribute) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}

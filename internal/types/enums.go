package types

import "strings"

// Origin identifies the subsystem that produced a dataset. The set is closed.
type Origin string

const (
	OriginTimeSeries     Origin = "TimeSeries"
	OriginCharges        Origin = "Charges"
	OriginAggregations   Origin = "Aggregations"
	OriginMarketRoles    Origin = "MarketRoles"
	OriginMeteringPoints Origin = "MeteringPoints"
)

// AllOrigins lists every recognized origin in a stable order.
var AllOrigins = []Origin{
	OriginTimeSeries,
	OriginCharges,
	OriginAggregations,
	OriginMarketRoles,
	OriginMeteringPoints,
}

// ParseOrigin resolves raw case-insensitively against the closed origin set.
func ParseOrigin(raw string) (Origin, error) {
	trimmed := strings.TrimSpace(raw)
	for _, o := range AllOrigins {
		if strings.EqualFold(string(o), trimmed) {
			return o, nil
		}
	}
	return "", NewAppErrorWithDetails(ErrCodeValidationOrigin, "unrecognized origin", nil,
		map[string]any{"origin": raw})
}

// IsValid reports whether o is one of the recognized origins.
func (o Origin) IsValid() bool {
	for _, known := range AllOrigins {
		if o == known {
			return true
		}
	}
	return false
}

// NotificationState is the lifecycle position of a notification.
// Transitions only move forward: available -> bundled -> dequeued.
type NotificationState string

const (
	NotificationAvailable NotificationState = "available"
	NotificationBundled   NotificationState = "bundled"
	NotificationDequeued  NotificationState = "dequeued"
)

// BundleState is derived from a bundle's content and archive flag.
type BundleState string

const (
	BundlePending      BundleState = "pending"
	BundleContentReady BundleState = "content_ready"
	BundleArchived     BundleState = "archived"
)

// MessageType identifies the payload carried by a bus envelope.
type MessageType string

const (
	MessageDataAvailable      MessageType = "DataAvailable"
	MessageRequestDataBundle  MessageType = "RequestDataBundle"
	MessageDataBundleResponse MessageType = "DataBundleResponse"
	MessageDequeue            MessageType = "Dequeue"
)

// IsValid reports whether t is a known message type.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageDataAvailable, MessageRequestDataBundle, MessageDataBundleResponse, MessageDequeue:
		return true
	}
	return false
}

// SchemaVersion is the only envelope schema version currently produced and accepted.
const SchemaVersion = "1"

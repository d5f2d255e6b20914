package types

import (
	"strings"
	"time"
	"unicode"
)

// MarketOperator is the validated location number of a market participant.
// The zero value is not a valid recipient.
type MarketOperator string

// NewMarketOperator trims raw and rejects blank values or values with
// embedded whitespace.
func NewMarketOperator(raw string) (MarketOperator, error) {
	gln := strings.TrimSpace(raw)
	if gln == "" {
		return "", NewAppError(ErrCodeValidationRecipient, "recipient must not be blank", nil)
	}
	if strings.IndexFunc(gln, unicode.IsSpace) >= 0 {
		return "", NewAppErrorWithDetails(ErrCodeValidationRecipient, "recipient must not contain whitespace", nil,
			map[string]any{"recipient": raw})
	}
	return MarketOperator(gln), nil
}

// String returns the location number.
func (m MarketOperator) String() string { return string(m) }

// DataAvailableNotification announces that a dataset is ready for a recipient.
// ID, Recipient, ContentType, Origin, SupportsBundling and Weight are immutable
// after intake; State and BundleID move forward as the notification is
// bundled and dequeued.
type DataAvailableNotification struct {
	ID               string            `json:"id" validate:"required,uuid"`
	Recipient        MarketOperator    `json:"recipient" validate:"required"`
	ContentType      string            `json:"content_type" validate:"required"`
	Origin           Origin            `json:"origin" validate:"required,origin"`
	SupportsBundling bool              `json:"supports_bundling"`
	Weight           int32             `json:"weight" validate:"gt=0"`
	SequenceNumber   int64             `json:"sequence_number"`
	State            NotificationState `json:"state"`
	BundleID         string            `json:"bundle_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Bundle groups the notifications that one peek hands to a recipient.
type Bundle struct {
	ID                    string         `json:"id"`
	Recipient             MarketOperator `json:"recipient"`
	Origin                Origin         `json:"origin"`
	ContentType           string         `json:"content_type"`
	NotificationIDs       []string       `json:"notification_ids"`
	Content               *string        `json:"content,omitempty"`
	NotificationsArchived bool           `json:"notifications_archived"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// State derives the lifecycle position of the bundle.
func (b *Bundle) State() BundleState {
	switch {
	case b.NotificationsArchived:
		return BundleArchived
	case b.Content != nil:
		return BundleContentReady
	default:
		return BundlePending
	}
}

// HasContent reports whether the bundle content has been materialized.
func (b *Bundle) HasContent() bool {
	return b.Content != nil && *b.Content != ""
}

// Clone returns a deep copy so callers cannot alias store-owned slices.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	c := *b
	c.NotificationIDs = append([]string(nil), b.NotificationIDs...)
	if b.Content != nil {
		content := *b.Content
		c.Content = &content
	}
	return &c
}

// IdempotencyRecord remembers that a submission token has been consumed.
type IdempotencyRecord struct {
	Token          string    `json:"token"`
	NotificationID string    `json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNotification() *DataAvailableNotification {
	return &DataAvailableNotification{
		ID:               "6f1b2c1e-1c9a-4c3e-9b0a-1d2e3f4a5b6c",
		Recipient:        "5790001330583",
		ContentType:      "timeseries",
		Origin:           OriginTimeSeries,
		SupportsBundling: true,
		Weight:           1,
	}
}

func TestValidate_Normalizes(t *testing.T) {
	n := validNotification()
	n.Recipient = "  5790001330583 "
	n.ContentType = " timeseries "
	n.Origin = "timeseries"

	require.NoError(t, n.Validate())
	assert.Equal(t, MarketOperator("5790001330583"), n.Recipient)
	assert.Equal(t, "timeseries", n.ContentType)
	assert.Equal(t, OriginTimeSeries, n.Origin)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(n *DataAvailableNotification)
		want   ErrorCode
	}{
		{"missing id", func(n *DataAvailableNotification) { n.ID = "" }, ErrCodeValidationNotificationID},
		{"non-uuid id", func(n *DataAvailableNotification) { n.ID = "not-a-uuid" }, ErrCodeValidationNotificationID},
		{"blank recipient", func(n *DataAvailableNotification) { n.Recipient = "   " }, ErrCodeValidationRecipient},
		{"recipient with space", func(n *DataAvailableNotification) { n.Recipient = "579 000" }, ErrCodeValidationRecipient},
		{"missing content type", func(n *DataAvailableNotification) { n.ContentType = " " }, ErrCodeValidationMissingField},
		{"unknown origin", func(n *DataAvailableNotification) { n.Origin = "Weather" }, ErrCodeValidationOrigin},
		{"zero weight", func(n *DataAvailableNotification) { n.Weight = 0 }, ErrCodeValidationWeight},
		{"negative weight", func(n *DataAvailableNotification) { n.Weight = -3 }, ErrCodeValidationWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := validNotification()
			tt.mutate(n)
			err := n.Validate()
			require.Error(t, err)
			assert.True(t, HasCode(err, tt.want), "got %v", err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestNewMarketOperator(t *testing.T) {
	m, err := NewMarketOperator(" 5790001330583\t")
	require.NoError(t, err)
	assert.Equal(t, "5790001330583", m.String())

	_, err = NewMarketOperator("")
	assert.True(t, HasCode(err, ErrCodeValidationRecipient))
}

func TestParseOrigin(t *testing.T) {
	for _, o := range AllOrigins {
		got, err := ParseOrigin(string(o))
		require.NoError(t, err)
		assert.Equal(t, o, got)
		assert.True(t, o.IsValid())
	}

	got, err := ParseOrigin(" meteringpoints ")
	require.NoError(t, err)
	assert.Equal(t, OriginMeteringPoints, got)

	_, err = ParseOrigin("Weather")
	assert.True(t, HasCode(err, ErrCodeValidationOrigin))
	assert.False(t, Origin("Weather").IsValid())
}

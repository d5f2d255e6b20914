package contracts

import (
	"google.golang.org/protobuf/encoding/protowire"

	"postoffice/internal/types"
)

// DataAvailable is the notification a producer sends when a dataset is ready.
//
//	1 uuid, 2 recipient, 3 content_type, 4 origin, 5 supports_bundling, 6 weight
type DataAvailable struct {
	UUID             string
	Recipient        string
	ContentType      string
	Origin           string
	SupportsBundling bool
	Weight           int32
}

// Marshal encodes d.
func (d *DataAvailable) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, d.UUID)
	b = appendString(b, 2, d.Recipient)
	b = appendString(b, 3, d.ContentType)
	b = appendString(b, 4, d.Origin)
	b = appendVarint(b, 5, protowire.EncodeBool(d.SupportsBundling))
	b = appendVarint(b, 6, uint64(int64(d.Weight)))
	return b
}

// UnmarshalDataAvailable decodes a notification. Bytes that do not parse or
// carry an invalid uuid yield a protocol_malformed_message error.
func UnmarshalDataAvailable(b []byte) (*DataAvailable, error) {
	var d DataAvailable
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1, 2, 3, 4:
			s, n, err := consumeString(num, typ, v)
			if err != nil {
				return 0, err
			}
			switch num {
			case 1:
				d.UUID = s
			case 2:
				d.Recipient = s
			case 3:
				d.ContentType = s
			case 4:
				d.Origin = s
			}
			return n, nil
		case 5:
			x, n, err := consumeVarint(num, typ, v)
			d.SupportsBundling = protowire.DecodeBool(x)
			return n, err
		case 6:
			x, n, err := consumeVarint(num, typ, v)
			d.Weight = int32(x)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, malformed("data_available", err)
	}
	if err := checkUUIDs("uuid", []string{d.UUID}); err != nil {
		return nil, malformed("data_available", err)
	}
	return &d, nil
}

// ToDomain converts the contract into an unvalidated domain notification.
func (d *DataAvailable) ToDomain() *types.DataAvailableNotification {
	return &types.DataAvailableNotification{
		ID:               d.UUID,
		Recipient:        types.MarketOperator(d.Recipient),
		ContentType:      d.ContentType,
		Origin:           types.Origin(d.Origin),
		SupportsBundling: d.SupportsBundling,
		Weight:           d.Weight,
	}
}

// FromDomain builds the contract for n.
func FromDomain(n *types.DataAvailableNotification) *DataAvailable {
	return &DataAvailable{
		UUID:             n.ID,
		Recipient:        n.Recipient.String(),
		ContentType:      n.ContentType,
		Origin:           string(n.Origin),
		SupportsBundling: n.SupportsBundling,
		Weight:           n.Weight,
	}
}

package contracts

import "google.golang.org/protobuf/encoding/protowire"

// DequeueNotice tells a producer that its datasets were acknowledged.
//
//	1 repeated notification_ids, 2 recipient
type DequeueNotice struct {
	NotificationIDs []string
	Recipient       string
}

// Marshal encodes d.
func (d *DequeueNotice) Marshal() []byte {
	var b []byte
	b = appendRepeatedString(b, 1, d.NotificationIDs)
	b = appendString(b, 2, d.Recipient)
	return b
}

// UnmarshalDequeueNotice decodes a dequeue notice.
func UnmarshalDequeueNotice(b []byte) (*DequeueNotice, error) {
	var d DequeueNotice
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(num, typ, v)
			d.NotificationIDs = append(d.NotificationIDs, s)
			return n, err
		case 2:
			s, n, err := consumeString(num, typ, v)
			d.Recipient = s
			return n, err
		}
		return 0, nil
	})
	if err == nil {
		err = checkUUIDs("notification_ids", d.NotificationIDs)
	}
	if err != nil {
		return nil, malformed("dequeue", err)
	}
	return &d, nil
}

package contracts

import (
	"errors"

	"google.golang.org/protobuf/encoding/protowire"
)

// ContentRequest asks a producer to materialize a bundle.
//
//	1 idempotency_id, 2 repeated notification_ids
type ContentRequest struct {
	IdempotencyID   string
	NotificationIDs []string
}

// Marshal encodes r.
func (r *ContentRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.IdempotencyID)
	b = appendRepeatedString(b, 2, r.NotificationIDs)
	return b
}

// UnmarshalContentRequest decodes a content request.
func UnmarshalContentRequest(b []byte) (*ContentRequest, error) {
	var r ContentRequest
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			s, n, err := consumeString(num, typ, v)
			r.IdempotencyID = s
			return n, err
		case 2:
			s, n, err := consumeString(num, typ, v)
			r.NotificationIDs = append(r.NotificationIDs, s)
			return n, err
		}
		return 0, nil
	})
	if err == nil {
		err = checkUUIDs("notification_ids", r.NotificationIDs)
	}
	if err != nil {
		return nil, malformed("content_request", err)
	}
	return &r, nil
}

// FailureReason is the producer's reason for not materializing a bundle.
type FailureReason int32

const (
	FailureReasonUnspecified FailureReason = 0
	FailureReasonNotFound    FailureReason = 1
	FailureReasonInternal    FailureReason = 2
	FailureReasonTimeout     FailureReason = 3
)

// ContentSuccess carries the location of the materialized bundle.
type ContentSuccess struct {
	LocationURI     string
	NotificationIDs []string
}

// ContentFailure explains why the bundle could not be materialized.
type ContentFailure struct {
	NotificationIDs []string
	Reason          FailureReason
	Description     string
}

// ContentResponse is the producer's reply. Exactly one of Success and
// Failure is set.
//
//	oneof: 1 success {1 location_uri, 2 repeated notification_ids}
//	       2 failure {1 repeated notification_ids, 2 reason_code, 3 description}
type ContentResponse struct {
	Success *ContentSuccess
	Failure *ContentFailure
}

// NotificationIDs returns the ids of whichever branch is set.
func (r *ContentResponse) NotificationIDs() []string {
	switch {
	case r.Success != nil:
		return r.Success.NotificationIDs
	case r.Failure != nil:
		return r.Failure.NotificationIDs
	}
	return nil
}

// Marshal encodes r.
func (r *ContentResponse) Marshal() []byte {
	var b []byte
	switch {
	case r.Success != nil:
		var inner []byte
		inner = appendString(inner, 1, r.Success.LocationURI)
		inner = appendRepeatedString(inner, 2, r.Success.NotificationIDs)
		b = appendMessage(b, 1, inner)
	case r.Failure != nil:
		var inner []byte
		inner = appendRepeatedString(inner, 1, r.Failure.NotificationIDs)
		inner = appendVarint(inner, 2, uint64(int64(r.Failure.Reason)))
		inner = appendString(inner, 3, r.Failure.Description)
		b = appendMessage(b, 2, inner)
	}
	return b
}

var errNoBranch = errors.New("neither success nor failure is set")

// UnmarshalContentResponse decodes a reply. When both branches appear the
// last one wins, as with a protobuf oneof.
func UnmarshalContentResponse(b []byte) (*ContentResponse, error) {
	var r ContentResponse
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			inner, n, err := consumeBytes(num, typ, v)
			if err != nil {
				return 0, err
			}
			s, err := decodeSuccess(inner)
			if err != nil {
				return 0, err
			}
			r.Success, r.Failure = s, nil
			return n, nil
		case 2:
			inner, n, err := consumeBytes(num, typ, v)
			if err != nil {
				return 0, err
			}
			f, err := decodeFailure(inner)
			if err != nil {
				return 0, err
			}
			r.Success, r.Failure = nil, f
			return n, nil
		}
		return 0, nil
	})
	if err == nil && r.Success == nil && r.Failure == nil {
		err = errNoBranch
	}
	if err == nil {
		err = checkUUIDs("notification_ids", r.NotificationIDs())
	}
	if err != nil {
		return nil, malformed("content_response", err)
	}
	return &r, nil
}

func decodeSuccess(b []byte) (*ContentSuccess, error) {
	var s ContentSuccess
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			str, n, err := consumeString(num, typ, v)
			s.LocationURI = str
			return n, err
		case 2:
			str, n, err := consumeString(num, typ, v)
			s.NotificationIDs = append(s.NotificationIDs, str)
			return n, err
		}
		return 0, nil
	})
	return &s, err
}

func decodeFailure(b []byte) (*ContentFailure, error) {
	var f ContentFailure
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch num {
		case 1:
			str, n, err := consumeString(num, typ, v)
			f.NotificationIDs = append(f.NotificationIDs, str)
			return n, err
		case 2:
			x, n, err := consumeVarint(num, typ, v)
			f.Reason = FailureReason(int32(x))
			return n, err
		case 3:
			str, n, err := consumeString(num, typ, v)
			f.Description = str
			return n, err
		}
		return 0, nil
	})
	return &f, err
}
